// Package stageexec runs stage definitions: cache resolution, bounded
// fan-out over units, per-call timeouts and retry with backoff.
package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"storydub/internal/cachestore"
	"storydub/internal/fileutil"
	"storydub/internal/logging"
	"storydub/internal/services"
	"storydub/internal/stage"
)

// Cache is the coalescing artifact store the executor consults.
type Cache interface {
	Resolve(ctx context.Context, key cachestore.Key, compute cachestore.ComputeFunc) (cachestore.Artifact, bool, error)
}

// Options configures an Executor.
type Options struct {
	// Cache may be nil, which disables reuse.
	Cache         Cache
	Policy        Policy
	FanOutWorkers int
	Logger        *slog.Logger
	// Sleep and Jitter are replaced in tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(d time.Duration) time.Duration
}

// Executor runs one stage of a job.
type Executor struct {
	cache  Cache
	policy Policy
	fanOut int
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(d time.Duration) time.Duration
}

// New builds an Executor.
func New(opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	fanOut := opts.FanOutWorkers
	if fanOut < 1 {
		fanOut = 1
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	jitter := opts.Jitter
	if jitter == nil {
		jitter = defaultJitter
	}
	return &Executor{
		cache:  opts.Cache,
		policy: opts.Policy.normalized(),
		fanOut: fanOut,
		logger: logging.NewComponentLogger(logger, "stageexec"),
		sleep:  sleep,
		jitter: jitter,
	}
}

// Run executes def against st and merges its outputs into st.Artifacts.
func (e *Executor) Run(ctx context.Context, def stage.Definition, st *stage.State) error {
	if err := def.Validate(); err != nil {
		return services.Wrap(services.ErrConfiguration, def.Name, "validate definition", "", err)
	}
	ctx = services.WithStage(ctx, def.Name)
	logger := logging.WithContext(ctx, e.logger)

	if def.Skip != nil && def.Skip(st) {
		st.Reporter.Logf("%s: skipped", def.Name)
		logger.Debug("stage skipped", logging.String(logging.FieldEventType, "stage_skipped"))
		return nil
	}

	start := time.Now()
	units, err := def.Units(ctx, st)
	if err != nil {
		return err
	}
	if !def.FanOut && len(units) != 1 {
		return services.Wrap(services.ErrConfiguration, def.Name, "partition", fmt.Sprintf("expected one unit, got %d", len(units)), nil)
	}
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("units", len(units)),
		logging.Bool("cacheable", def.Cacheable),
	)

	outputs := make([]stage.Output, len(units))
	var cached atomic.Int32
	runOne := func(ctx context.Context, i int, u stage.Unit) error {
		out, reused, err := e.runUnit(ctx, def, st, u)
		if err != nil {
			return err
		}
		if reused {
			cached.Add(1)
		}
		outputs[i] = out
		return nil
	}

	if def.FanOut {
		err = e.fanOutUnits(ctx, def, st, units, runOne)
	} else {
		err = runOne(ctx, 0, units[0])
	}
	if err != nil {
		logger.Warn("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job stops at this stage"),
		)
		return err
	}

	if def.Merge != nil {
		if err := def.Merge(st, outputs); err != nil {
			return err
		}
	}
	elapsed := time.Since(start).Round(time.Millisecond)
	st.Reporter.Logf("%s: done (%d unit(s), %d cached, %s)", def.Name, len(units), cached.Load(), elapsed)
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("units", len(units)),
		logging.Int("cached", int(cached.Load())),
		logging.Duration("stage_duration", elapsed),
	)
	return nil
}

func (e *Executor) runUnit(ctx context.Context, def stage.Definition, st *stage.State, u stage.Unit) (stage.Output, bool, error) {
	ctx = services.WithUnit(ctx, u.Index)
	if !def.Cacheable || e.cache == nil {
		out, err := e.callWithRetry(ctx, def, st, u)
		if err != nil {
			return stage.Output{}, false, err
		}
		if out.Path == "" {
			out.Path = u.Target
		}
		return out, false, nil
	}

	fingerprint, err := def.Key(st, u)
	if err != nil {
		return stage.Output{}, false, err
	}
	key := cachestore.Key{Stage: def.Name, Fingerprint: fingerprint}
	if def.LanguageScoped {
		key.Language = st.Params.TargetLang
	}

	art, reused, err := e.cache.Resolve(ctx, key, func(ctx context.Context) (string, map[string]string, error) {
		out, err := e.callWithRetry(ctx, def, st, u)
		if err != nil {
			return "", nil, err
		}
		path := out.Path
		if path == "" {
			path = u.Target
		}
		return path, out.Meta, nil
	})
	if err != nil {
		return stage.Output{}, false, err
	}

	path := u.Target
	if path == "" {
		path = art.Path
	}
	if reused && u.Target != "" {
		if err := fileutil.CopyFile(art.Path, u.Target); err != nil {
			return stage.Output{}, false, services.Wrap(services.ErrExternalTool, def.Name, "restore cached result", u.Label, err)
		}
	}
	if reused {
		st.Reporter.Logf("%s: %s reused cached result", def.Name, u.Label)
	}
	return stage.Output{Path: path, Meta: art.Meta}, reused, nil
}
