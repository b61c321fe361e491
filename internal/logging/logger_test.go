package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storydub/internal/config"
	"storydub/internal/logging"
	"storydub/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "storydub.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello from config") {
		t.Fatalf("expected message in log file, got %q", data)
	}
}

func TestConsoleLoggerFormatsJobSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithStage(services.WithJobID(context.Background(), "abc123def456"), "translate")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "executor")).Info("unit done", logging.Int("chars", 812))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"INFO", "[executor]", "job abc123def456 (translate)", "unit done", "chars=812"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected caller information, got %q", content)
	}
}

func TestJSONLoggerStampsRunID(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}, RunID: "run-1"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("careful", logging.String(logging.FieldJobID, "j1"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if record["run_id"] != "run-1" || record["level"] != "warn" || record["job_id"] != "j1" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestTeeLoggerDuplicatesRecords(t *testing.T) {
	var primary, mirror bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&primary, nil))
	logger := logging.TeeLogger(base, logging.NewTextHandler(&mirror, slog.LevelInfo))

	logger.Info("stage started", logging.String(logging.FieldStage, "render"))

	if !strings.Contains(primary.String(), "stage started") {
		t.Fatalf("primary missing record: %q", primary.String())
	}
	if !strings.Contains(mirror.String(), "render – stage started") {
		t.Fatalf("mirror missing record: %q", mirror.String())
	}
}

func TestTeeLoggerRespectsPerHandlerLevel(t *testing.T) {
	var primary, mirror bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&primary, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := logging.TeeLogger(base, logging.NewTextHandler(&mirror, slog.LevelWarn))

	logger.Debug("noisy")
	if mirror.Len() != 0 {
		t.Fatalf("expected mirror to skip debug, got %q", mirror.String())
	}
	if primary.Len() == 0 {
		t.Fatal("expected primary to record debug")
	}
}

func TestCleanupOldLogsRemovesExpired(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "storydub-old.log")
	freshPath := filepath.Join(dir, "storydub-new.log")
	for _, p := range []string{oldPath, freshPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	logging.CleanupOldLogs(logging.NewNop(), 3, logging.RetentionTarget{Dir: dir, Pattern: "storydub-*.log"})

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Fatalf("expected fresh log kept: %v", err)
	}
}

func TestCleanupOldLogsKeepsExcludedAndUnmatched(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "storydub-current.log")
	other := filepath.Join(dir, "notes.txt")
	past := time.Now().AddDate(0, 0, -30)
	for _, p := range []string{current, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(nil, 1, logging.RetentionTarget{Dir: dir, Pattern: "storydub-*.log", Exclude: []string{current}})
	if removed != 0 {
		t.Fatalf("expected nothing removed, got %d", removed)
	}
	for _, p := range []string{current, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
}
