package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storydub/internal/adapters"
	"storydub/internal/cachestore"
	"storydub/internal/catalog"
	"storydub/internal/config"
	"storydub/internal/daemon"
	"storydub/internal/deps"
	"storydub/internal/jobs"
	"storydub/internal/logging"
	"storydub/internal/media/ffmpeg"
	"storydub/internal/media/ffprobe"
	"storydub/internal/notifications"
	"storydub/internal/runner"
	"storydub/internal/services/imagen"
	"storydub/internal/services/llm"
	"storydub/internal/services/sarvam"
	"storydub/internal/services/youtube"
	"storydub/internal/services/ytdlp"
	"storydub/internal/stageexec"
	"storydub/internal/storysource"
	"storydub/internal/workflow"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storydub daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx, bind)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides paths.api_bind)")
	return cmd
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext, bind string) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(bind) == "" {
		bind = cfg.Paths.APIBind
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("storydub-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		RunID:       runID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update storydub.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "storydub-*.log", Exclude: []string{logPath}},
	)
	logDependencySnapshot(logger, cfg)

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	store, err := jobs.OpenStore(signalCtx, cfg.JobsDBPath())
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	cache, err := cachestore.Open(signalCtx, cfg.Paths.CacheDir)
	if err != nil {
		logger.Error("open artifact cache", logging.Error(err))
		return err
	}
	defer cache.Close()

	registry := jobs.NewRegistry(jobs.Options{
		Store:            store,
		Logger:           logger,
		WorkRoot:         cfg.Paths.WorkDir,
		SubscriberBuffer: cfg.Workflow.SubscriberBuffer,
	})
	interrupted, err := registry.Restore(signalCtx)
	if err != nil {
		return fmt.Errorf("restore jobs: %w", err)
	}
	if interrupted > 0 {
		logger.Warn("jobs interrupted by restart",
			logging.Int("count", interrupted),
			logging.String(logging.FieldEventType, "jobs_interrupted"),
			logging.String(logging.FieldImpact, "interrupted jobs were marked failed"),
		)
	}

	executor := stageexec.New(stageexec.Options{
		Cache: cache,
		Policy: stageexec.Policy{
			Attempts:  cfg.Workflow.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay(),
			MaxDelay:  cfg.RetryMaxDelay(),
			Timeout:   cfg.AdapterTimeout(),
		},
		FanOutWorkers: cfg.Workflow.FanOutWorkers,
		Logger:        logger,
	})
	scheduler := workflow.NewScheduler(workflow.Options{
		Config:   cfg,
		Catalog:  cat,
		Adapters: buildAdapters(cfg, cat, logger),
		Executor: executor,
		Notifier: notifications.NewService(cfg),
		Logger:   logger,
	})
	jobRunner, err := runner.New(runner.Options{
		Config:    cfg,
		Catalog:   cat,
		Registry:  registry,
		Scheduler: scheduler,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}

	d, err := daemon.New(daemon.Options{
		Config:   cfg,
		Catalog:  cat,
		Registry: registry,
		Runner:   jobRunner,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Minute)
		defer stopCancel()
		_ = d.Stop(stopCtx)
	}()

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	if err := d.Serve(signalCtx, bind); err != nil {
		logger.Error("api server stopped", logging.Error(err))
		return err
	}
	logger.Info("storydub daemon shutting down")
	return nil
}

func buildAdapters(cfg *config.Config, cat *catalog.Catalog, logger *slog.Logger) adapters.Set {
	speech := sarvam.NewClient(cfg.Sarvam, sarvam.WithLogger(logger))
	renderer := ffmpeg.NewRenderer(cfg.Tools.FFmpeg, ffmpeg.WithLogger(logger))
	return adapters.Set{
		Fetcher:     ytdlp.New(cfg.Tools.YTDLP, ytdlp.WithLogger(logger)),
		Audio:       ffmpeg.NewAudio(cfg.Tools.FFmpeg, ffmpeg.WithLogger(logger)),
		Transcriber: speech,
		Translator:  speech,
		Speech:      speech,
		Scenes: llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			Referer:        cfg.LLM.Referer,
			Title:          cfg.LLM.Title,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		}, llm.WithLanguageNames(cat.LanguageNames())),
		Images:    imagen.NewClient(cfg.Imagen, imagen.WithLogger(logger)),
		Renderer:  renderer,
		Prober:    ffprobe.NewProber(cfg.Tools.FFprobe),
		Publisher: youtube.NewClient(cfg.YouTube, youtube.WithLogger(logger)),
		Stories:   storysource.New(cfg.StorySource, cat, storysource.WithLogger(logger)),
	}
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	for _, status := range deps.CheckBinaries(deps.Tools(cfg.Tools)) {
		attrs := []any{
			logging.String("dependency", status.Name),
			logging.String("command", status.Command),
			logging.Bool("optional", status.Optional),
		}
		if status.Available {
			logger.Info("dependency available", append(attrs, logging.String("path", status.Path))...)
			continue
		}
		logger.Warn("dependency missing", append(attrs,
			logging.String("detail", status.Detail),
			logging.String(logging.FieldEventType, "dependency_missing"),
			logging.String(logging.FieldErrorHint, "install the binary or set its path in the [tools] section"),
		)...)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := currentLogPath(logDir)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}
