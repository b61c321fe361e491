package services

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StatusError captures a non-2xx response from a remote provider.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	service := strings.TrimSpace(e.Service)
	if service == "" {
		service = "remote"
	}
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s request: http %d: %s", service, e.StatusCode, body)
}

// Retryable reports whether the status belongs to the transient class.
func (e *StatusError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// NewStatusError builds a StatusError from an HTTP response whose body has
// already been read.
func NewStatusError(service string, resp *http.Response, body []byte) *StatusError {
	err := &StatusError{Service: service, Body: string(body)}
	if resp != nil {
		err.StatusCode = resp.StatusCode
		if delay, ok := ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
			err.RetryAfter = delay
		}
	}
	return err
}

// RetryAfter returns the provider-requested delay carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return statusErr.RetryAfter, true
	}
	return 0, false
}

// ParseRetryAfter accepts either delta-seconds or an HTTP date.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}
