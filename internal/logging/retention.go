package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a log directory, the glob of per-run files inside it,
// and paths that must survive pruning (the current run's file).
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs deletes per-run log files last modified more than
// retentionDays ago and returns how many were removed. Zero days keeps all.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		pattern := strings.TrimSpace(target.Pattern)
		if pattern == "" {
			pattern = "*"
		}
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		keep := make(map[string]bool, len(target.Exclude))
		for _, path := range target.Exclude {
			if path = strings.TrimSpace(path); path != "" {
				keep[filepath.Clean(path)] = true
			}
		}
		for _, path := range matches {
			if keep[filepath.Clean(path)] {
				continue
			}
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check permissions on log_dir"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		logger.Info("old logs pruned",
			Int("count", removed),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}
