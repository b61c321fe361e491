package testsupport

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Reporter records progress lines in memory.
type Reporter struct {
	mu       sync.Mutex
	lines    []string
	warnings []string
	cancel   atomic.Bool
	// CancelAfter, when set, flips the cancellation flag once a line
	// containing it is logged.
	CancelAfter string
}

// Logf records a log line.
func (r *Reporter) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
	if r.CancelAfter != "" && strings.Contains(line, r.CancelAfter) {
		r.cancel.Store(true)
	}
}

// Warnf records a warning line.
func (r *Reporter) Warnf(format string, args ...any) {
	r.mu.Lock()
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

// Cancelled reports the cancellation flag.
func (r *Reporter) Cancelled() bool {
	return r.cancel.Load()
}

// Cancel sets the cancellation flag.
func (r *Reporter) Cancel() {
	r.cancel.Store(true)
}

// Lines returns the recorded log lines.
func (r *Reporter) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Warnings returns the recorded warnings.
func (r *Reporter) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.warnings...)
}

// Contains reports whether any log line contains fragment.
func (r *Reporter) Contains(fragment string) bool {
	for _, line := range r.Lines() {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}
