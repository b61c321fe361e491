package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storydub/internal/config"
)

const userAgent = "storydub/0.1.0"

// Service defines the notification surface exposed to the job runner.
type Service interface {
	NotifyJobCompleted(ctx context.Context, kind, jobID, resultPath string) error
	NotifyJobFailed(ctx context.Context, kind, jobID, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.JobCompleted,
		failed:    cfg.Notifications.JobFailed,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, kind, jobID, resultPath string) error {
	if !n.completed {
		return nil
	}
	message := fmt.Sprintf("✅ %s job %s finished", strings.TrimSpace(kind), strings.TrimSpace(jobID))
	if resultPath = strings.TrimSpace(resultPath); resultPath != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, resultPath)
	}
	return n.send(ctx, payload{
		title:   "storydub - Job Complete",
		message: message,
		tags:    []string{"storydub", strings.TrimSpace(kind), "completed"},
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, kind, jobID, reason string) error {
	if !n.failed {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	return n.send(ctx, payload{
		title:    "storydub - Job Failed",
		message:  fmt.Sprintf("❌ %s job %s failed: %s", strings.TrimSpace(kind), strings.TrimSpace(jobID), reason),
		tags:     []string{"storydub", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "storydub - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"storydub", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, string, string, string) error { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string, string) error    { return nil }
func (noopService) TestNotification(context.Context) error                           { return nil }
