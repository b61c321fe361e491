package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storydub/internal/adapters"
	"storydub/internal/catalog"
	"storydub/internal/config"
	"storydub/internal/jobs"
	"storydub/internal/logging"
	"storydub/internal/notifications"
	"storydub/internal/services"
	"storydub/internal/stage"
	"storydub/internal/stageexec"
)

// Job is the single-writer view of one job the scheduler drives.
// *jobs.Handle implements it.
type Job interface {
	stage.Reporter
	Job() jobs.Job
	SetLogger(logger *slog.Logger)
	Start()
	EnterStage(index int, name string)
	SetPublishID(id string)
	Complete(resultPath string)
	Fail(reason string)
}

// Options configures a Scheduler.
type Options struct {
	Config   *config.Config
	Catalog  *catalog.Catalog
	Adapters adapters.Set
	Executor *stageexec.Executor
	// Notifier may be nil.
	Notifier notifications.Service
	Logger   *slog.Logger
}

// Scheduler runs jobs through their pipeline, stage by stage.
type Scheduler struct {
	pipelines Pipelines
	adapters  adapters.Set
	exec      *stageexec.Executor
	notifier  notifications.Service
	logger    *slog.Logger
}

// NewScheduler builds a scheduler over the standard pipelines.
func NewScheduler(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	return &Scheduler{
		pipelines: NewPipelines(opts.Config, opts.Catalog),
		adapters:  opts.Adapters,
		exec:      opts.Executor,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "workflow"),
	}
}

// Pipelines exposes the stage definitions the scheduler runs.
func (s *Scheduler) Pipelines() Pipelines {
	return s.pipelines
}

// Run drives the job to a terminal state and returns the failure, if any.
// Stages run strictly in order; cancellation is honoured between stages and
// the first failing stage ends the job. Cached artifacts are never rolled back.
func (s *Scheduler) Run(ctx context.Context, h Job) error {
	job := h.Job()
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldJobKind, string(job.Kind)))

	stages, ok := s.pipelines[job.Kind]
	if !ok {
		err := services.Wrap(services.ErrConfiguration, "", "", fmt.Sprintf("no pipeline for kind %q", job.Kind), nil)
		s.fail(ctx, h, job, "", err, logger)
		return err
	}
	if err := os.MkdirAll(job.WorkDir, 0o755); err != nil {
		err = services.Wrap(services.ErrConfiguration, "", "create work dir", job.WorkDir, err)
		s.fail(ctx, h, job, "", err, logger)
		return err
	}
	jobLogger, closeLog := openJobLog(job.WorkDir, logger)
	defer closeLog()
	h.SetLogger(jobLogger)

	start := time.Now()
	h.Start()
	h.Logf("%s job started: %d stages (%s)", job.Kind, len(stages), strings.Join(s.pipelines.StageNames(job.Kind), ", "))

	st := &stage.State{
		JobID:    job.ID,
		Kind:     job.Kind,
		WorkDir:  job.WorkDir,
		Params:   job.Params,
		Adapters: s.adapters,
		Reporter: h,
	}
	for i, def := range stages {
		if h.Cancelled() {
			err := services.Wrap(services.ErrCancelled, def.Name, "", "cancellation requested", nil)
			s.fail(ctx, h, job, def.Name, err, jobLogger)
			return err
		}
		h.EnterStage(i, def.Name)
		if err := s.exec.Run(ctx, def, st); err != nil {
			s.fail(ctx, h, job, def.Name, err, jobLogger)
			return err
		}
	}

	if st.Artifacts.PublishID != "" {
		h.SetPublishID(st.Artifacts.PublishID)
	}
	h.Logf("job completed in %s: %s", time.Since(start).Round(time.Second), st.Artifacts.Output)
	h.Complete(st.Artifacts.Output)
	if err := s.notifier.NotifyJobCompleted(ctx, string(job.Kind), job.ID, st.Artifacts.Output); err != nil {
		logger.Debug("completion notification failed", logging.Error(err))
	}
	return nil
}

func (s *Scheduler) fail(ctx context.Context, h Job, job jobs.Job, stageName string, err error, logger *slog.Logger) {
	reason := FailureReason(stageName, err)
	logger.Error("job failed",
		logging.String(logging.FieldStage, stageName),
		logging.String(logging.FieldErrorKind, services.Kind(err)),
		logging.Error(err),
		logging.Alert("job_failure"),
		logging.String(logging.FieldEventType, "job_failure"),
		logging.String(logging.FieldErrorHint, errorHint(err)),
	)
	h.Fail(reason)
	if notifyErr := s.notifier.NotifyJobFailed(ctx, string(job.Kind), job.ID, reason); notifyErr != nil {
		if errors.Is(notifyErr, context.Canceled) {
			logger.Debug("daemon shutting down, could not send failure notification")
		} else {
			logger.Debug("failure notification failed", logging.Error(notifyErr))
		}
	}
}

// FailureReason renders the reason recorded on a failed job. Cancellation,
// quality and no-result failures carry their own message; anything else is
// prefixed with the stage that failed.
func FailureReason(stageName string, err error) string {
	switch services.Kind(err) {
	case "cancelled":
		return services.ErrCancelled.Error()
	case "quality", "no_results":
		return services.Details(err)
	}
	reason := services.Details(err)
	if stageName == "" || strings.HasPrefix(reason, stageName+":") {
		return reason
	}
	return stageName + ": " + reason
}

func errorHint(err error) string {
	switch services.Kind(err) {
	case "quality":
		return "inspect validation.json in the job directory"
	case "no_results":
		return "try a different theme, keyword or source"
	case "configuration":
		return "check config.toml and provider credentials"
	case "cancelled":
		return "job was cancelled by request"
	default:
		return "check job.log in the job directory"
	}
}

// openJobLog mirrors the job's log records into job.log inside its work
// directory. Failure to open the file keeps the base logger.
func openJobLog(workDir string, logger *slog.Logger) (*slog.Logger, func()) {
	path := filepath.Join(workDir, jobLogFile)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logging.WarnWithContext(logger, "job log unavailable", "job_log_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "progress is only logged to the daemon log"),
		)
		return logger, func() {}
	}
	return logging.TeeLogger(logger, logging.NewTextHandler(file, slog.LevelInfo)), func() {
		_ = file.Close()
	}
}
