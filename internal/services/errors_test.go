package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"storydub/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "render", "ffmpeg", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"render", "ffmpeg", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestKindMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"cancelled", services.ErrCancelled, "cancelled"},
		{"no results", services.Wrap(services.ErrNoResults, "acquire", "", "nothing matched", nil), "no_results"},
		{"quality", services.Wrap(services.ErrQuality, "validate", "", "duration", nil), "quality"},
		{"input", services.Wrap(services.ErrValidation, "submit", "", "bad lang", nil), "input"},
		{"transient", services.Wrap(services.ErrTransient, "translate", "", "", errors.New("x")), "transient"},
		{"status 503", &services.StatusError{StatusCode: http.StatusServiceUnavailable}, "transient"},
		{"status 400", &services.StatusError{StatusCode: http.StatusBadRequest}, "fatal"},
		{"plain", errors.New("boom"), "fatal"},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"429", &services.StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"408", &services.StatusError{StatusCode: http.StatusRequestTimeout}, true},
		{"500 wrapped", fmt.Errorf("call: %w", &services.StatusError{StatusCode: 500}), true},
		{"404", &services.StatusError{StatusCode: http.StatusNotFound}, false},
		{"deadline", fmt.Errorf("tts: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"timeout marker", services.Wrap(services.ErrTimeout, "", "", "slow", nil), true},
		{"quality", services.ErrQuality, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := services.IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestDetailsCollapsesCancellation(t *testing.T) {
	err := services.Wrap(services.ErrCancelled, "translate", "", "flag set", nil)
	if got := services.Details(err); got != "cancelled" {
		t.Fatalf("expected cancelled, got %q", got)
	}
	noResults := services.Wrap(services.ErrNoResults, "", "", "theme \"x\" has no stories", nil)
	if got := services.Details(noResults); !strings.HasPrefix(got, "no results") {
		t.Fatalf("expected no results prefix, got %q", got)
	}
}

func TestNewStatusErrorParsesRetryAfter(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("Retry-After", "7")
	err := services.NewStatusError("sarvam", resp, []byte("slow down"))
	if delay, ok := services.RetryAfter(err); !ok || delay != 7*time.Second {
		t.Fatalf("expected 7s retry-after, got %v %v", delay, ok)
	}
	if !strings.Contains(err.Error(), "sarvam request: http 429") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestParseRetryAfterRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "-3", "soon"} {
		if _, ok := services.ParseRetryAfter(value); ok {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}
