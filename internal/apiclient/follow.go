package apiclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
)

// Event is one server-sent event from a job stream. Type is "message" for
// plain progress lines, "error" for warnings and failure reasons, and
// "done" for the final outcome.
type Event struct {
	Type string
	Data string
}

// ErrStreamEnded is returned when the stream closes without a done event.
var ErrStreamEnded = errors.New("event stream ended before job finished")

// Follow streams the events of job id to fn until the done event and
// returns its outcome, completed or failed. A non-nil error from fn stops
// the stream and is returned as is.
func (c *Client) Follow(ctx context.Context, id string, fn func(Event) error) (string, error) {
	resp, err := c.send(ctx, "GET", jobPath(id, "events"), nil, "text/event-stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var (
		eventType string
		data      []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) == 0 && eventType == "" {
				continue
			}
			ev := Event{Type: eventType, Data: strings.Join(data, "\n")}
			if ev.Type == "" {
				ev.Type = "message"
			}
			eventType, data = "", nil
			if err := fn(ev); err != nil {
				return "", err
			}
			if ev.Type == "done" {
				return ev.Data, nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("read event stream: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return "", ErrStreamEnded
}
