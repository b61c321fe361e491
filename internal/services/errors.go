package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrQuality       = errors.New("validation failed")
	ErrNoResults     = errors.New("no results")
	ErrCancelled     = errors.New("cancelled")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind reports the failure taxonomy label for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrNoResults):
		return "no_results"
	case errors.Is(err, ErrQuality):
		return "quality"
	case errors.Is(err, ErrValidation):
		return "input"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case IsRetryable(err):
		return "transient"
	default:
		return "fatal"
	}
}

// Details renders the reason recorded on a failed job. Cancellation collapses to
// the bare word; everything else keeps the marker prefix so the failure class
// is visible to clients.
func Details(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrCancelled) {
		return ErrCancelled.Error()
	}
	return strings.TrimSpace(err.Error())
}

// IsRetryable reports whether err belongs to the transient class: explicit
// transient or timeout markers, retryable HTTP statuses, network timeouts and
// per-call deadlines.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrQuality) || errors.Is(err, ErrNoResults) || errors.Is(err, ErrValidation) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return isNetTimeout(err)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
