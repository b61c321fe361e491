package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"storydub/internal/logging"
	"storydub/internal/services"
)

var (
	// ErrTerminal is returned when an operation needs a job that is still live.
	ErrTerminal = errors.New("job already finished")
	// ErrClaimed is returned when a second worker tries to own a job.
	ErrClaimed = errors.New("job already claimed")
)

const persistTimeout = 5 * time.Second

// Options configures a Registry.
type Options struct {
	Store            *Store
	Logger           *slog.Logger
	WorkRoot         string
	SubscriberBuffer int
	Now              func() time.Time
}

// Registry holds every job known to this process.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	order    []string
	store    *Store
	logger   *slog.Logger
	workRoot string
	buffer   int
	now      func() time.Time
}

type entry struct {
	mu        sync.Mutex
	job       Job
	log       *eventLog
	cancelled atomic.Bool
	claimed   bool
}

// NewRegistry builds an empty registry. A nil Store keeps jobs in memory only.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	buffer := opts.SubscriberBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Registry{
		entries:  make(map[string]*entry),
		store:    opts.Store,
		logger:   logging.NewComponentLogger(logger, "jobs"),
		workRoot: opts.WorkRoot,
		buffer:   buffer,
		now:      now,
	}
}

// Restore loads persisted jobs. Jobs a previous process left queued or
// running are failed with InterruptedReason. It returns how many were
// interrupted.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	stored, events, err := r.store.loadAll(ctx)
	if err != nil {
		return 0, err
	}
	interrupted := 0
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range stored {
		if _, exists := r.entries[job.ID]; exists {
			continue
		}
		history := events[job.ID]
		e := &entry{job: job, log: newEventLog(history), claimed: job.Status.Terminal()}
		for _, ev := range history {
			if ev.Type == EventLog || ev.Type == EventWarning {
				e.job.Progress = append(e.job.Progress, ev.Text)
			}
		}
		if !job.Status.Terminal() {
			e.claimed = true
			r.finishLocked(ctx, e, StatusFailed, "", InterruptedReason)
			interrupted++
		} else if !hasDone(history) {
			e.log.append(Event{JobID: job.ID, Type: EventDone, Text: string(job.Status), At: job.UpdatedAt})
		}
		r.entries[job.ID] = e
		r.order = append(r.order, job.ID)
	}
	if interrupted > 0 {
		r.logger.Warn("failed jobs interrupted by restart",
			logging.Int("count", interrupted),
			logging.String(logging.FieldEventType, "jobs_interrupted"),
			logging.String(logging.FieldImpact, "interrupted jobs must be resubmitted"),
		)
	}
	return interrupted, nil
}

func hasDone(events []Event) bool {
	return len(events) > 0 && events[len(events)-1].Type == EventDone
}

// Create registers a queued job for already normalized params.
func (r *Registry) Create(ctx context.Context, kind Kind, params Params) (Job, error) {
	now := r.now().UTC()
	id := newJobID()
	job := Job{
		ID:        id,
		Kind:      kind,
		Params:    params,
		Status:    StatusQueued,
		WorkDir:   filepath.Join(r.workRoot, fmt.Sprintf("%s-%s", kind, id)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if r.store != nil {
		if err := r.store.insert(ctx, job); err != nil {
			return Job{}, err
		}
	}
	r.mu.Lock()
	r.entries[id] = &entry{job: job, log: newEventLog(nil)}
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.logger.Info("job created",
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldJobKind, string(kind)),
		logging.String(logging.FieldEventType, "job_created"),
	)
	return cloneJob(job), nil
}

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "", "", fmt.Sprintf("job %s", id), nil)
	}
	return e, nil
}

// Get returns a snapshot of job id.
func (r *Registry) Get(id string) (Job, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Job{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneJob(e.job), nil
}

// List returns snapshots newest first.
func (r *Registry) List() []Job {
	r.mu.RLock()
	ids := slices.Clone(r.order)
	r.mu.RUnlock()
	out := make([]Job, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if job, err := r.Get(ids[i]); err == nil {
			out = append(out, job)
		}
	}
	return out
}

// Counts tallies jobs per status.
func (r *Registry) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, job := range r.List() {
		counts[job.Status]++
	}
	return counts
}

// Events returns the progress history recorded so far.
func (r *Registry) Events(id string) ([]Event, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.log.snapshot(), nil
}

// Subscribe replays the job's history and follows it until the done event.
// The channel closes after done or when ctx ends.
func (r *Registry) Subscribe(ctx context.Context, id string) (<-chan Event, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.log.subscribe(ctx, r.buffer), nil
}

// Cancel flags a live job. A job no worker has claimed yet fails at once;
// a running one notices between stages and between fan-out dispatches.
func (r *Registry) Cancel(id string) (Job, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Job{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status.Terminal() {
		return cloneJob(e.job), ErrTerminal
	}
	e.cancelled.Store(true)
	if !e.claimed {
		ctx, cancel := persistContext()
		defer cancel()
		r.emitLocked(ctx, e, EventLog, "cancelled before start")
		r.finishLocked(ctx, e, StatusFailed, "", services.ErrCancelled.Error())
		r.logger.Info("queued job cancelled",
			logging.String(logging.FieldJobID, id),
			logging.String(logging.FieldEventType, "job_cancelled"),
		)
		return cloneJob(e.job), nil
	}
	r.logger.Info("job cancellation requested",
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldEventType, "job_cancel_requested"),
	)
	return cloneJob(e.job), nil
}

// Claim hands the single-writer handle for id to the caller.
func (r *Registry) Claim(id string) (*Handle, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status.Terminal() {
		return nil, ErrTerminal
	}
	if e.claimed {
		return nil, ErrClaimed
	}
	e.claimed = true
	return &Handle{reg: r, e: e, logger: r.logger.With(logging.String(logging.FieldJobID, id))}, nil
}

// emitLocked appends an event, updates the snapshot and persists both.
// Callers hold e.mu.
func (r *Registry) emitLocked(ctx context.Context, e *entry, kind EventType, text string) Event {
	now := r.now().UTC()
	ev := e.log.append(Event{JobID: e.job.ID, Type: kind, Text: text, At: now})
	if kind == EventLog || kind == EventWarning {
		e.job.Progress = append(e.job.Progress, text)
	}
	e.job.UpdatedAt = now
	if r.store != nil {
		if err := r.store.appendEvent(ctx, ev); err != nil {
			r.persistFailed(e.job.ID, err)
		}
	}
	return ev
}

func (r *Registry) saveLocked(ctx context.Context, e *entry) {
	e.job.UpdatedAt = r.now().UTC()
	if r.store == nil {
		return
	}
	if err := r.store.update(ctx, e.job); err != nil {
		r.persistFailed(e.job.ID, err)
	}
}

func (r *Registry) finishLocked(ctx context.Context, e *entry, status Status, resultPath, reason string) {
	e.job.Status = status
	if status == StatusCompleted {
		e.job.ResultPath = resultPath
		e.job.Error = ""
	} else {
		e.job.ResultPath = ""
		e.job.Error = reason
	}
	r.saveLocked(ctx, e)
	r.emitLocked(ctx, e, EventDone, string(status))
}

func (r *Registry) persistFailed(id string, err error) {
	r.logger.Warn("job persistence failed",
		logging.String(logging.FieldJobID, id),
		logging.Error(err),
		logging.String(logging.FieldEventType, "job_persist_failed"),
		logging.String(logging.FieldImpact, "job history may be incomplete after restart"),
	)
}

func persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), persistTimeout)
}

func cloneJob(job Job) Job {
	job.Progress = slices.Clone(job.Progress)
	return job
}
