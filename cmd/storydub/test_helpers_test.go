package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storydub/internal/catalog"
	"storydub/internal/config"
	"storydub/internal/daemon"
	"storydub/internal/jobs"
	"storydub/internal/runner"
	"storydub/internal/workflow"
)

// cannedScheduler logs two progress lines, writes a small artifact and
// completes. A story text of "fail" fails the job instead.
type cannedScheduler struct {
	outDir string
}

func (s cannedScheduler) Run(_ context.Context, h workflow.Job) error {
	h.Start()
	if h.Job().Params.Text == "fail" {
		h.Fail("narration failed")
		return nil
	}
	h.EnterStage(0, "breakdown")
	h.Logf("breaking story into scenes")
	h.Warnf("only 4 scenes")
	out := filepath.Join(s.outDir, "short.mp4")
	if err := os.WriteFile(out, []byte("short video"), 0o644); err != nil {
		h.Fail(err.Error())
		return err
	}
	h.Complete(out)
	return nil
}

type cliTestEnv struct {
	cfg        *config.Config
	registry   *jobs.Registry
	server     *httptest.Server
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("STORYDUB_API_TOKEN", "")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, base)
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	reg := jobs.NewRegistry(jobs.Options{WorkRoot: cfg.Paths.WorkDir})
	run, err := runner.New(runner.Options{Config: cfg, Catalog: cat, Registry: reg, Scheduler: cannedScheduler{outDir: t.TempDir()}})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	d, err := daemon.New(daemon.Options{Config: cfg, Catalog: cat, Registry: reg, Runner: run})
	if err != nil {
		t.Fatalf("daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	server := httptest.NewServer(d.Handler())

	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})

	return &cliTestEnv{
		cfg:        cfg,
		registry:   reg,
		server:     server,
		configPath: configPath,
		baseDir:    base,
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, e.server.URL, e.configPath)
}

func runCLI(t *testing.T, args []string, addr, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if addr != "" {
		flags = append(flags, "--addr", addr)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path, base string) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nwork_dir = %q\ncache_dir = %q\nstate_dir = %q\nlog_dir = %q\napi_bind = \"127.0.0.1:0\"\n\n[story_source]\ncache_dir = %q\n",
		filepath.Join(base, "jobs"),
		filepath.Join(base, "cache"),
		filepath.Join(base, "state"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "stories"),
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func deadAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()
	return addr
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
