package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storydub/internal/api"
	"storydub/internal/catalog"
	"storydub/internal/config"
	"storydub/internal/daemon"
	"storydub/internal/jobs"
	"storydub/internal/runner"
	"storydub/internal/testsupport"
	"storydub/internal/workflow"
)

// scriptedScheduler acts on the job's story text: "fail" fails the job,
// "block" waits for the gate, anything else logs and completes.
type scriptedScheduler struct {
	outDir string
	gate   chan struct{}
}

func (s *scriptedScheduler) Run(_ context.Context, h workflow.Job) error {
	h.Start()
	switch h.Job().Params.Text {
	case "fail":
		h.Fail("render exploded")
		return nil
	case "block":
		<-s.gate
	}
	h.EnterStage(0, "fetch")
	h.Logf("stage one\nsecond line")
	h.Warnf("slow upstream")
	out := filepath.Join(s.outDir, h.Job().ID+".mp4")
	if err := os.WriteFile(out, []byte("fake video"), 0o644); err != nil {
		h.Fail(err.Error())
		return err
	}
	h.Complete(out)
	return nil
}

type harness struct {
	cfg    *config.Config
	daemon *daemon.Daemon
	reg    *jobs.Registry
	sched  *scriptedScheduler
	server *httptest.Server
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	reg := jobs.NewRegistry(jobs.Options{Store: testsupport.MustOpenJobStore(t, cfg), WorkRoot: cfg.Paths.WorkDir})
	sched := &scriptedScheduler{outDir: t.TempDir(), gate: make(chan struct{})}
	run, err := runner.New(runner.Options{Config: cfg, Catalog: cat, Registry: reg, Scheduler: sched})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	d, err := daemon.New(daemon.Options{Config: cfg, Catalog: cat, Registry: reg, Runner: run})
	if err != nil {
		t.Fatalf("daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	server := httptest.NewServer(d.Handler())
	h := &harness{cfg: cfg, daemon: d, reg: reg, sched: sched, server: server}
	t.Cleanup(func() {
		select {
		case <-sched.gate:
		default:
			close(sched.gate)
		}
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if h.cfg.Paths.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.Paths.APIToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func (h *harness) submitStory(t *testing.T, text string) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/jobs/story", api.StoryRequest{Text: text, TargetLang: "hi-IN"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	ack := decode[api.SubmitResponse](t, resp)
	if ack.JobID == "" || ack.Status != "queued" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	return ack.JobID
}

func waitTerminal(t *testing.T, reg *jobs.Registry, id string) jobs.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := reg.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return jobs.Job{}
}

func TestSubmitAndInspectJob(t *testing.T) {
	h := newHarness(t)
	id := h.submitStory(t, "once upon a time")
	waitTerminal(t, h.reg, id)

	resp := h.do(t, http.MethodGet, "/api/jobs/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Fatal("expected correlation id header")
	}
	job := decode[api.Job](t, resp)
	if job.Status != "completed" || job.Kind != "story" || job.OutputPath == "" {
		t.Fatalf("unexpected job %+v", job)
	}
	if len(job.Progress) == 0 {
		t.Fatal("expected progress lines")
	}

	list := decode[api.JobList](t, h.do(t, http.MethodGet, "/api/jobs", nil))
	if len(list.Jobs) != 1 || list.Jobs[0].JobID != id {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name string
		path string
		body string
	}{
		{name: "malformed json", path: "/api/jobs/story", body: "{"},
		{name: "story without text or theme", path: "/api/jobs/story", body: `{"target_lang":"hi-IN"}`},
		{name: "unknown language", path: "/api/jobs/story", body: `{"text":"hi","target_lang":"xx-XX"}`},
		{name: "dub without source", path: "/api/jobs/dub", body: `{"target_lang":"hi-IN"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(h.server.URL+tc.path, "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			if msg := decode[api.ErrorResponse](t, resp); msg.Error == "" {
				t.Fatal("expected error message")
			}
		})
	}
	if got := len(h.reg.List()); got != 0 {
		t.Fatalf("expected no jobs created, got %d", got)
	}
}

func TestUnknownJobReturnsNotFound(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/jobs/nope", "/api/jobs/nope/events", "/api/jobs/nope/download"} {
		if resp := h.do(t, http.MethodGet, path, nil); resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestEventStreamReplaysAndEndsWithDone(t *testing.T) {
	h := newHarness(t)
	id := h.submitStory(t, "once upon a time")
	waitTerminal(t, h.reg, id)

	resp := h.do(t, http.MethodGet, "/api/jobs/"+id+"/events", nil)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(body)
	for _, want := range []string{
		"data: stage one\ndata: second line\n\n",
		"event: error\ndata: slow upstream\n\n",
		"event: done\ndata: completed\n\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("stream missing %q:\n%s", want, text)
		}
	}
	if !strings.HasSuffix(text, "event: done\ndata: completed\n\n") {
		t.Fatalf("expected stream to end with done:\n%s", text)
	}
}

func TestEventStreamReportsFailureBeforeDone(t *testing.T) {
	h := newHarness(t)
	id := h.submitStory(t, "fail")
	waitTerminal(t, h.reg, id)

	body, err := io.ReadAll(h.do(t, http.MethodGet, "/api/jobs/"+id+"/events", nil).Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "event: error\ndata: render exploded\n\nevent: done\ndata: failed\n\n") {
		t.Fatalf("unexpected stream:\n%s", body)
	}
}

func TestDownloadRequiresCompletedJob(t *testing.T) {
	h := newHarness(t)
	blocked := h.submitStory(t, "block")
	if resp := h.do(t, http.MethodGet, "/api/jobs/"+blocked+"/download", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for running job, got %d", resp.StatusCode)
	}
	close(h.sched.gate)
	waitTerminal(t, h.reg, blocked)

	resp := h.do(t, http.MethodGet, "/api/jobs/"+blocked+"/download", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "video/mp4" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, blocked+".mp4") {
		t.Fatalf("unexpected disposition %q", cd)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "fake video" {
		t.Fatalf("unexpected body %q", data)
	}
}

func TestCancelFinishedJobConflicts(t *testing.T) {
	h := newHarness(t)
	id := h.submitStory(t, "fail")
	waitTerminal(t, h.reg, id)
	if resp := h.do(t, http.MethodPost, "/api/jobs/"+id+"/cancel", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestAuthentication(t *testing.T) {
	h := newHarness(t, testsupport.WithAPIToken("sekret"))
	id := h.submitStory(t, "once upon a time")
	waitTerminal(t, h.reg, id)

	resp, err := http.Get(h.server.URL + "/api/jobs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, err = http.Get(h.server.URL + "/api/jobs?token=sekret")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected query token to be refused for job list, got %d", resp.StatusCode)
	}

	resp, err = http.Get(h.server.URL + "/api/jobs/" + id + "/download?token=sekret")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected query token to authorize download, got %d", resp.StatusCode)
	}

	if resp := h.do(t, http.MethodGet, "/api/jobs", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d", resp.StatusCode)
	}
}

func TestCatalogAndStatus(t *testing.T) {
	h := newHarness(t)
	cat := decode[api.CatalogResponse](t, h.do(t, http.MethodGet, "/api/config", nil))
	if len(cat.Languages) == 0 || len(cat.Themes) == 0 || len(cat.Moods) == 0 {
		t.Fatalf("unexpected catalog %+v", cat)
	}

	status := decode[api.Status](t, h.do(t, http.MethodGet, "/api/status", nil))
	if !status.Running || status.PID != os.Getpid() {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Workers.Workers < 1 {
		t.Fatalf("expected worker stats, got %+v", status.Workers)
	}
	if len(status.Preflight) == 0 || len(status.Dependencies) == 0 {
		t.Fatalf("expected preflight and dependencies, got %+v", status)
	}
}

func TestSecondInstanceCannotStart(t *testing.T) {
	h := newHarness(t)
	cat, _ := catalog.Default()
	reg := jobs.NewRegistry(jobs.Options{WorkRoot: h.cfg.Paths.WorkDir})
	run, err := runner.New(runner.Options{Config: h.cfg, Catalog: cat, Registry: reg, Scheduler: h.sched})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	other, err := daemon.New(daemon.Options{Config: h.cfg, Catalog: cat, Registry: reg, Runner: run})
	if err != nil {
		t.Fatalf("daemon: %v", err)
	}
	if err := other.Start(context.Background()); err == nil {
		t.Fatal("expected lock conflict")
	}
}
