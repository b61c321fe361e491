package jobs

import (
	"fmt"
	"log/slog"
	"strings"

	"storydub/internal/logging"
)

// Handle is the single writer of one job. It satisfies the stage reporter
// contract, so executors report progress straight into the job's event log.
type Handle struct {
	reg    *Registry
	e      *entry
	logger *slog.Logger
}

// ID returns the job id.
func (h *Handle) ID() string {
	return h.e.job.ID
}

// Job returns a snapshot of the owned job.
func (h *Handle) Job() Job {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return cloneJob(h.e.job)
}

// SetLogger replaces the logger progress lines are mirrored to.
func (h *Handle) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Start moves a queued job to running.
func (h *Handle) Start() {
	h.mutate(func() {
		h.e.job.Status = StatusRunning
	})
}

// EnterStage records the stage the job is executing.
func (h *Handle) EnterStage(index int, name string) {
	h.mutate(func() {
		h.e.job.StageIndex = index
		h.e.job.StageName = name
	})
}

// SetPublishID records the id returned by the video publisher.
func (h *Handle) SetPublishID(id string) {
	h.mutate(func() {
		h.e.job.PublishID = strings.TrimSpace(id)
	})
}

// Logf appends a log event.
func (h *Handle) Logf(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if h.emit(EventLog, text) {
		h.logger.Info(text, logging.String(logging.FieldEventType, "job_progress"))
	}
}

// Warnf appends a warning event.
func (h *Handle) Warnf(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if h.emit(EventWarning, text) {
		h.logger.Warn(text,
			logging.String(logging.FieldEventType, "job_warning"),
			logging.String(logging.FieldImpact, "job continues"),
		)
	}
}

// Cancelled reports whether cancellation was requested.
func (h *Handle) Cancelled() bool {
	return h.e.cancelled.Load()
}

// Complete marks the job completed with its result artifact.
func (h *Handle) Complete(resultPath string) {
	if h.finish(StatusCompleted, resultPath, "") {
		h.logger.Info("job completed",
			logging.String("result_path", resultPath),
			logging.String(logging.FieldEventType, "job_completed"),
		)
	}
}

// Fail marks the job failed with reason.
func (h *Handle) Fail(reason string) {
	if h.finish(StatusFailed, "", reason) {
		h.logger.Error("job failed",
			logging.String("reason", reason),
			logging.String(logging.FieldEventType, "job_failed"),
			logging.String(logging.FieldImpact, "no output produced"),
		)
	}
}

func (h *Handle) mutate(apply func()) {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	if h.e.job.Status.Terminal() {
		return
	}
	apply()
	ctx, cancel := persistContext()
	defer cancel()
	h.reg.saveLocked(ctx, h.e)
}

func (h *Handle) emit(kind EventType, text string) bool {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	if h.e.job.Status.Terminal() {
		return false
	}
	ctx, cancel := persistContext()
	defer cancel()
	h.reg.emitLocked(ctx, h.e, kind, text)
	return true
}

func (h *Handle) finish(status Status, resultPath, reason string) bool {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	if h.e.job.Status.Terminal() {
		return false
	}
	ctx, cancel := persistContext()
	defer cancel()
	h.reg.finishLocked(ctx, h.e, status, resultPath, reason)
	return true
}
