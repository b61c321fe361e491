package stageexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"storydub/internal/cachestore"
	"storydub/internal/jobs"
	"storydub/internal/services"
	"storydub/internal/stage"
	"storydub/internal/testsupport"
)

func fanOutUnits(n int, dir string) func(context.Context, *stage.State) ([]stage.Unit, error) {
	return func(context.Context, *stage.State) ([]stage.Unit, error) {
		units := make([]stage.Unit, n)
		for i := range units {
			units[i] = stage.Unit{
				Index:  i,
				Label:  fmt.Sprintf("chunk %03d", i),
				Input:  fmt.Sprintf("input-%d", i),
				Target: filepath.Join(dir, fmt.Sprintf("out_%03d.txt", i)),
			}
		}
		return units, nil
	}
}

func writeUnit(u stage.Unit, text string) (stage.Output, error) {
	if err := os.WriteFile(u.Target, []byte(text), 0o644); err != nil {
		return stage.Output{}, err
	}
	return stage.Output{Path: u.Target, Meta: map[string]string{"input": u.Input}}, nil
}

func TestFanOutPreservesUnitOrder(t *testing.T) {
	dir := t.TempDir()
	exec := New(Options{FanOutWorkers: 4, Policy: Policy{Attempts: 1}})
	var merged []string
	def := stage.Definition{
		Name:   "transcribe",
		FanOut: true,
		Units:  fanOutUnits(8, dir),
		Run: func(_ context.Context, _ *stage.State, u stage.Unit) (stage.Output, error) {
			// Later units finish first.
			time.Sleep(time.Duration(8-u.Index) * 5 * time.Millisecond)
			return writeUnit(u, u.Input)
		},
		Merge: func(_ *stage.State, outputs []stage.Output) error {
			for _, out := range outputs {
				merged = append(merged, out.Meta["input"])
			}
			return nil
		},
	}
	st := &stage.State{Reporter: &testsupport.Reporter{}, Params: jobs.Params{Workers: 4}}
	if err := exec.Run(context.Background(), def, st); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, got := range merged {
		if want := fmt.Sprintf("input-%d", i); got != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestFanOutRespectsJobWorkerLimit(t *testing.T) {
	dir := t.TempDir()
	exec := New(Options{FanOutWorkers: 8, Policy: Policy{Attempts: 1}})
	var active, peak atomic.Int32
	def := stage.Definition{
		Name:   "images",
		FanOut: true,
		Units:  fanOutUnits(10, dir),
		Run: func(_ context.Context, _ *stage.State, u stage.Unit) (stage.Output, error) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			active.Add(-1)
			return writeUnit(u, "img")
		},
	}
	st := &stage.State{Reporter: &testsupport.Reporter{}, Params: jobs.Params{Workers: 2}}
	if err := exec.Run(context.Background(), def, st); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent units, saw %d", peak.Load())
	}
}

func TestFanOutStopsDispatchAfterFailure(t *testing.T) {
	dir := t.TempDir()
	exec := New(Options{FanOutWorkers: 1, Policy: Policy{Attempts: 1}})
	var calls atomic.Int32
	boom := services.Wrap(services.ErrExternalTool, "sarvam", "stt", "bad audio", nil)
	def := stage.Definition{
		Name:   "transcribe",
		FanOut: true,
		Units:  fanOutUnits(10, dir),
		Run: func(_ context.Context, _ *stage.State, u stage.Unit) (stage.Output, error) {
			calls.Add(1)
			if u.Index == 0 {
				return stage.Output{}, boom
			}
			return writeUnit(u, "ok")
		},
	}
	err := exec.Run(context.Background(), def, &stage.State{Reporter: &testsupport.Reporter{}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected unit failure, got %v", err)
	}
	if calls.Load() > 2 {
		t.Fatalf("expected dispatch to stop after the failure, got %d calls", calls.Load())
	}
}

func TestFanOutChecksCancellationBeforeDispatch(t *testing.T) {
	dir := t.TempDir()
	exec := New(Options{FanOutWorkers: 1, Policy: Policy{Attempts: 1}})
	reporter := &testsupport.Reporter{}
	var calls atomic.Int32
	def := stage.Definition{
		Name:   "synthesize",
		FanOut: true,
		Units:  fanOutUnits(5, dir),
		Run: func(_ context.Context, _ *stage.State, u stage.Unit) (stage.Output, error) {
			calls.Add(1)
			reporter.Cancel()
			return writeUnit(u, "wav")
		},
	}
	err := exec.Run(context.Background(), def, &stage.State{Reporter: reporter})
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if calls.Load() > 2 {
		t.Fatalf("expected dispatch to stop once cancelled, got %d calls", calls.Load())
	}
}

func TestFanOutRecoversUnitPanics(t *testing.T) {
	exec := New(Options{FanOutWorkers: 2, Policy: Policy{Attempts: 1}})
	def := stage.Definition{
		Name:   "narrate",
		FanOut: true,
		Units:  fanOutUnits(3, t.TempDir()),
		Run: func(context.Context, *stage.State, stage.Unit) (stage.Output, error) {
			panic("provider client bug")
		},
	}
	err := exec.Run(context.Background(), def, &stage.State{Reporter: &testsupport.Reporter{}})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected panic converted to error, got %v", err)
	}
}

func TestCacheableStageReusesResults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cache := testsupport.MustOpenCache(t, cfg)
	exec := New(Options{Cache: cache, FanOutWorkers: 2, Policy: Policy{Attempts: 1}})

	var calls atomic.Int32
	newDef := func(dir string) stage.Definition {
		return stage.Definition{
			Name:           "translate",
			FanOut:         true,
			Cacheable:      true,
			LanguageScoped: true,
			Units:          fanOutUnits(3, dir),
			Key: func(_ *stage.State, u stage.Unit) (string, error) {
				return cachestore.Fingerprint(u.Input), nil
			},
			Run: func(_ context.Context, _ *stage.State, u stage.Unit) (stage.Output, error) {
				calls.Add(1)
				return writeUnit(u, "translated "+u.Input)
			},
		}
	}

	first := &testsupport.Reporter{}
	if err := exec.Run(context.Background(), newDef(t.TempDir()), &stage.State{Reporter: first, Params: jobs.Params{TargetLang: "hi-IN"}}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !first.Contains("translate: done (3 unit(s), 0 cached") {
		t.Fatalf("unexpected first summary %v", first.Lines())
	}

	secondDir := t.TempDir()
	second := &testsupport.Reporter{}
	if err := exec.Run(context.Background(), newDef(secondDir), &stage.State{Reporter: second, Params: jobs.Params{TargetLang: "hi-IN"}}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected adapter called once per unit overall, got %d", calls.Load())
	}
	if !second.Contains("translate: chunk 001 reused cached result") || !second.Contains("3 cached") {
		t.Fatalf("expected reuse lines, got %v", second.Lines())
	}
	data, err := os.ReadFile(filepath.Join(secondDir, "out_002.txt"))
	if err != nil || string(data) != "translated input-2" {
		t.Fatalf("expected cached blob restored into job dir, got %q (%v)", data, err)
	}

	other := &testsupport.Reporter{}
	if err := exec.Run(context.Background(), newDef(t.TempDir()), &stage.State{Reporter: other, Params: jobs.Params{TargetLang: "ta-IN"}}); err != nil {
		t.Fatalf("other language run: %v", err)
	}
	if calls.Load() != 6 {
		t.Fatalf("expected a different language to miss the cache, got %d calls", calls.Load())
	}
}

func TestSkipBypassesStage(t *testing.T) {
	exec := New(Options{Policy: Policy{Attempts: 1}})
	reporter := &testsupport.Reporter{}
	def := stage.Definition{
		Name:  "publish",
		Skip:  func(*stage.State) bool { return true },
		Units: stage.Single("video", "", ""),
		Run: func(context.Context, *stage.State, stage.Unit) (stage.Output, error) {
			t.Fatal("skipped stage must not run")
			return stage.Output{}, nil
		},
	}
	if err := exec.Run(context.Background(), def, &stage.State{Reporter: reporter}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reporter.Contains("publish: skipped") {
		t.Fatalf("expected skip line, got %v", reporter.Lines())
	}
}
