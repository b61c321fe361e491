package daemon

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"storydub/internal/jobs"
	"storydub/internal/logging"
)

// handleEvents streams a job's progress as server-sent events. History is
// replayed first; the stream ends after the done event.
func (d *Daemon) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	events, err := d.registry.Subscribe(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), errorMessage(err))
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveEvery)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if err := d.writeEvent(w, ev); err != nil {
				logging.WithContext(r.Context(), d.logger).Debug("sse client went away",
					logging.String(logging.FieldJobID, id),
					logging.Error(err),
				)
				return
			}
			flusher.Flush()
			if ev.Type == jobs.EventDone {
				return
			}
		}
	}
}

func (d *Daemon) writeEvent(w http.ResponseWriter, ev jobs.Event) error {
	switch ev.Type {
	case jobs.EventWarning:
		return writeSSE(w, "error", ev.Text)
	case jobs.EventDone:
		if ev.Text == string(jobs.StatusFailed) {
			reason := "job failed"
			if job, err := d.registry.Get(ev.JobID); err == nil && job.Error != "" {
				reason = job.Error
			}
			if err := writeSSE(w, "error", reason); err != nil {
				return err
			}
		}
		return writeSSE(w, "done", ev.Text)
	default:
		return writeSSE(w, "", ev.Text)
	}
}

// writeSSE frames one event. Multi-line payloads become one data line per
// line so clients reassemble them with newlines.
func writeSSE(w http.ResponseWriter, event, data string) error {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := fmt.Fprint(w, b.String())
	return err
}
