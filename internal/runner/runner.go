package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"storydub/internal/catalog"
	"storydub/internal/config"
	"storydub/internal/jobs"
	"storydub/internal/logging"
	"storydub/internal/services"
	"storydub/internal/workflow"
)

// ErrQueueFull is returned by Submit when the pending queue is at capacity.
var ErrQueueFull = errors.New("job queue is full")

// ErrStopped is returned by Submit after Shutdown.
var ErrStopped = errors.New("runner stopped")

// panicReason is recorded on a job whose worker panicked.
const panicReason = "internal error: worker panicked"

// Scheduler drives one claimed job to completion.
type Scheduler interface {
	Run(ctx context.Context, h workflow.Job) error
}

// Options configures a Runner.
type Options struct {
	Config    *config.Config
	Catalog   *catalog.Catalog
	Registry  *jobs.Registry
	Scheduler Scheduler
	Logger    *slog.Logger
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers  int `json:"workers"`
	Running  int `json:"running"`
	Queued   int `json:"queued"`
	Capacity int `json:"capacity"`
}

// Runner queues submitted jobs and runs them on a bounded pool.
type Runner struct {
	catalog  *catalog.Catalog
	registry *jobs.Registry
	sched    Scheduler
	logger   *slog.Logger
	pool     *ants.Pool
	workers  int

	mu      sync.Mutex
	pending chan string
	stopped bool

	startOnce sync.Once
	done      chan struct{}
	running   sync.WaitGroup
}

// New builds a runner. Start must be called before queued jobs execute.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil || opts.Catalog == nil || opts.Registry == nil || opts.Scheduler == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "runner", "config, catalog, registry and scheduler are required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "runner")
	workers := max(opts.Config.Workflow.JobWorkers, 1)
	capacity := max(opts.Config.Workflow.QueueCapacity, 1)

	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p any) {
		logger.Error("job worker panicked",
			logging.String("panic", fmt.Sprint(p)),
			logging.Alert("worker_panic"),
			logging.String(logging.FieldEventType, "worker_panic"),
			logging.String(logging.FieldImpact, "job marked failed"),
		)
	}))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "create job pool", "", err)
	}
	return &Runner{
		catalog:  opts.Catalog,
		registry: opts.Registry,
		sched:    opts.Scheduler,
		logger:   logger,
		pool:     pool,
		workers:  workers,
		pending:  make(chan string, capacity),
		done:     make(chan struct{}),
	}, nil
}

// Submit validates params, records the job as queued and places it at the
// back of the pending queue. Invalid params return a services.ErrValidation
// error and create nothing.
func (r *Runner) Submit(ctx context.Context, kind jobs.Kind, params jobs.Params) (jobs.Job, error) {
	normalized, err := jobs.Normalize(kind, params, r.catalog)
	if err != nil {
		return jobs.Job{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return jobs.Job{}, ErrStopped
	}
	if len(r.pending) == cap(r.pending) {
		return jobs.Job{}, ErrQueueFull
	}
	job, err := r.registry.Create(ctx, kind, normalized)
	if err != nil {
		return jobs.Job{}, err
	}
	r.pending <- job.ID
	r.logger.Info("job queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobKind, string(kind)),
		logging.Int("queued", len(r.pending)),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	return job, nil
}

// Start launches the dispatcher. Jobs run with ctx as their parent context.
func (r *Runner) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.dispatch(ctx)
	})
}

func (r *Runner) dispatch(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-r.pending:
			if !ok || r.isStopped() {
				return
			}
			r.launch(ctx, id)
		}
	}
}

func (r *Runner) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// launch blocks until a worker is free, which keeps the queue FIFO.
func (r *Runner) launch(ctx context.Context, id string) {
	handle, err := r.registry.Claim(id)
	if errors.Is(err, jobs.ErrTerminal) {
		r.logger.Info("finished job left the queue",
			logging.String(logging.FieldJobID, id),
			logging.String(logging.FieldEventType, "job_skipped"),
		)
		return
	}
	if err != nil {
		r.logger.Warn("queued job could not be claimed",
			logging.String(logging.FieldJobID, id),
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_claim_failed"),
			logging.String(logging.FieldErrorHint, "job was finished or claimed elsewhere"),
			logging.String(logging.FieldImpact, "job skipped"),
		)
		return
	}
	r.running.Add(1)
	err = r.pool.Submit(func() {
		defer r.running.Done()
		defer func() {
			if !handle.Job().Status.Terminal() {
				handle.Fail(panicReason)
			}
		}()
		_ = r.sched.Run(ctx, handle)
	})
	if err != nil {
		r.running.Done()
		handle.Fail(fmt.Sprintf("dispatch: %v", err))
	}
}

// Stats reports pool occupancy.
func (r *Runner) Stats() Stats {
	return Stats{
		Workers:  r.workers,
		Running:  r.pool.Running(),
		Queued:   len(r.pending),
		Capacity: cap(r.pending),
	}
}

// Shutdown stops accepting jobs and waits up to the context deadline for
// running jobs. Jobs still queued stay queued in the registry and are marked
// interrupted on the next start.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.pending)
	}
	r.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		r.running.Wait()
		close(idle)
	}()
	var err error
	select {
	case <-idle:
	case <-ctx.Done():
		err = ctx.Err()
	}
	timeout := time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = max(time.Until(deadline), 10*time.Millisecond)
	}
	if releaseErr := r.pool.ReleaseTimeout(timeout); releaseErr != nil && err == nil && !errors.Is(releaseErr, ants.ErrPoolClosed) {
		err = releaseErr
	}
	return err
}
