package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"storydub/internal/logs"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func TestSnapshotReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storydub.log")
	writeLog(t, path, "a\nb\nc\n")

	lines, offset, err := logs.Snapshot(path, 2)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("expected offset 6, got %d", offset)
	}
}

func TestSnapshotMissingFile(t *testing.T) {
	lines, offset, err := logs.Snapshot(filepath.Join(t.TempDir(), "missing.log"), 5)
	if err != nil || len(lines) != 0 || offset != 0 {
		t.Fatalf("expected empty snapshot, got %#v %d %v", lines, offset, err)
	}
}

func TestReadFromLeavesPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storydub.log")
	writeLog(t, path, "one\ntw")

	lines, offset, err := logs.ReadFrom(path, 0)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(lines) != 1 || lines[0] != "one" || offset != 4 {
		t.Fatalf("unexpected read %#v offset=%d", lines, offset)
	}

	writeLog(t, path, "one\ntwo\n")
	lines, offset, err = logs.ReadFrom(path, offset)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(lines) != 1 || lines[0] != "two" || offset != 8 {
		t.Fatalf("unexpected resumed read %#v offset=%d", lines, offset)
	}
}

func TestReadFromRestartsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storydub.log")
	writeLog(t, path, "new run\n")
	lines, _, err := logs.ReadFrom(path, 500)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(lines) != 1 || lines[0] != "new run" {
		t.Fatalf("expected reread from start, got %#v", lines)
	}
}

func TestFollowDeliversAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storydub.log")
	writeLog(t, path, "start\n")
	_, offset, err := logs.Snapshot(path, 1)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, 10*time.Millisecond, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := file.WriteString("next\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	file.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "next" {
		t.Fatalf("unexpected followed lines %#v", got)
	}
}
