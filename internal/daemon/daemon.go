package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"storydub/internal/api"
	"storydub/internal/catalog"
	"storydub/internal/config"
	"storydub/internal/jobs"
	"storydub/internal/logging"
	"storydub/internal/preflight"
	"storydub/internal/runner"
)

const shutdownTimeout = 30 * time.Second

// Options wires the daemon's collaborators.
type Options struct {
	Config   *config.Config
	Catalog  *catalog.Catalog
	Registry *jobs.Registry
	Runner   *runner.Runner
	Logger   *slog.Logger
}

// Daemon coordinates the job runner and HTTP API and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	registry *jobs.Registry
	runner   *runner.Runner
	logger   *slog.Logger

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	handler   http.Handler
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Catalog == nil || opts.Registry == nil || opts.Runner == nil {
		return nil, errors.New("daemon requires config, catalog, registry and runner")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := opts.Config.LockPath()
	d := &Daemon{
		cfg:      opts.Config,
		catalog:  opts.Catalog,
		registry: opts.Registry,
		runner:   opts.Runner,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.handler = newRouter(d)
	return d, nil
}

// Start acquires the daemon lock and launches the job runner.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure state dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another storydub daemon instance is already running")
	}

	d.runner.Start(ctx)
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("storydub daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop drains running jobs and releases the daemon lock. Jobs still queued
// stay queued in the job store and are failed as interrupted on the next
// start.
func (d *Daemon) Stop(ctx context.Context) error {
	if !d.running.Load() {
		return nil
	}
	err := d.runner.Shutdown(ctx)
	if err != nil {
		d.logger.Warn("job runner did not drain",
			logging.Error(err),
			logging.String(logging.FieldEventType, "runner_drain_failed"),
			logging.String(logging.FieldImpact, "running jobs will be marked interrupted on restart"),
		)
	}
	if unlockErr := d.lock.Unlock(); unlockErr != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(unlockErr))
	}
	d.running.Store(false)
	d.logger.Info("storydub daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return err
}

// Handler returns the HTTP API.
func (d *Daemon) Handler() http.Handler {
	return d.handler
}

// Serve listens on bind and serves the API until ctx ends, then shuts the
// server down gracefully.
func (d *Daemon) Serve(ctx context.Context, bind string) error {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	// No write timeout: SSE streams and downloads are long-lived.
	server := &http.Server{
		Handler:           d.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	d.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", d.cfg.Paths.APIToken != ""),
		logging.String(logging.FieldEventType, "api_listening"),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

// Status reports runtime information, dependency availability and
// preflight results.
func (d *Daemon) Status(ctx context.Context) api.Status {
	stats := d.runner.Stats()
	status := api.Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		JobDBPath:    d.cfg.JobsDBPath(),
		Workers: api.WorkerStats{
			Workers:  stats.Workers,
			Running:  stats.Running,
			Queued:   stats.Queued,
			Capacity: stats.Capacity,
		},
		JobCounts:    api.FromCounts(d.registry.Counts()),
		Dependencies: api.FromDependencies(preflight.CheckSystemDeps(d.cfg)),
		Preflight:    api.FromPreflight(preflight.RunAll(ctx, d.cfg)),
	}
	status.StartedAt = api.FormatTime(d.startedAt)
	return status
}
