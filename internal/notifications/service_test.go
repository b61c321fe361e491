package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"storydub/internal/config"
	"storydub/internal/notifications"
)

type capture struct {
	mu       sync.Mutex
	requests int
	title    string
	tags     string
	priority string
	body     string
}

func newServer(t *testing.T, status int) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.requests++
		c.title = r.Header.Get("Title")
		c.tags = r.Header.Get("Tags")
		c.priority = r.Header.Get("Priority")
		c.body = string(body)
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, c
}

func configFor(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(configFor(""))
	if err := svc.NotifyJobFailed(context.Background(), "dub", "abc", "boom"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "completed",
			send: func(s notifications.Service) error {
				return s.NotifyJobCompleted(context.Background(), "story", "0123456789ab", "/jobs/story-0123456789ab/short.mp4")
			},
			expectTitle:   "storydub - Job Complete",
			expectMessage: "✅ story job 0123456789ab finished\nFile: /jobs/story-0123456789ab/short.mp4",
			expectTags:    "storydub,story,completed",
		},
		{
			name: "failed",
			send: func(s notifications.Service) error {
				return s.NotifyJobFailed(context.Background(), "dub", "0123456789ab", "validation failed: duration")
			},
			expectTitle:    "storydub - Job Failed",
			expectMessage:  "❌ dub job 0123456789ab failed: validation failed: duration",
			expectTags:     "storydub,error,alert",
			expectPriority: "high",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, c := newServer(t, http.StatusOK)
			if err := tc.send(notifications.NewService(configFor(server.URL))); err != nil {
				t.Fatalf("send: %v", err)
			}
			if c.title != tc.expectTitle {
				t.Fatalf("title = %q, want %q", c.title, tc.expectTitle)
			}
			if c.body != tc.expectMessage {
				t.Fatalf("body = %q, want %q", c.body, tc.expectMessage)
			}
			if c.tags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", c.tags, tc.expectTags)
			}
			if c.priority != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", c.priority, tc.expectPriority)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	server, c := newServer(t, http.StatusOK)
	cfg := configFor(server.URL)
	cfg.Notifications.JobCompleted = false
	svc := notifications.NewService(cfg)
	if err := svc.NotifyJobCompleted(context.Background(), "dub", "id", ""); err != nil {
		t.Fatalf("NotifyJobCompleted: %v", err)
	}
	if c.requests != 0 {
		t.Fatalf("disabled completion should not be sent, got %d requests", c.requests)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server, _ := newServer(t, http.StatusForbidden)
	err := notifications.NewService(configFor(server.URL)).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}
