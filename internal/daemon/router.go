package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"storydub/internal/api"
	"storydub/internal/jobs"
	"storydub/internal/logging"
	"storydub/internal/runner"
	"storydub/internal/services"
)

const (
	maxRequestBytes  = 1 << 20
	requestIDHeader  = "X-Request-ID"
	keepaliveEvery   = 15 * time.Second
	contentTypeVideo = "video/mp4"
)

func newRouter(d *Daemon) http.Handler {
	token := d.cfg.Paths.APIToken
	r := chi.NewRouter()
	r.Use(correlationID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(token, false))
			r.Post("/jobs/dub", d.handleSubmit(jobs.KindDub))
			r.Post("/jobs/story", d.handleSubmit(jobs.KindStory))
			r.Get("/jobs", d.handleList)
			r.Get("/jobs/{id}", d.handleGet)
			r.Post("/jobs/{id}/cancel", d.handleCancel)
			r.Get("/config", d.handleConfig)
			r.Get("/status", d.handleStatus)
		})
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(token, true))
			r.Get("/jobs/{id}/events", d.handleEvents)
			r.Get("/jobs/{id}/download", d.handleDownload)
		})
	})
	return r
}

// correlationID stamps every request with an id, reusing the caller's
// X-Request-ID when present.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func requestLogger(d *Daemon) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logging.WithContext(r.Context(), d.logger).Debug("http request",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", ww.Status()),
				logging.Int("bytes", ww.BytesWritten()),
				logging.Duration("duration", time.Since(start)),
			)
		})
	}
}

func (d *Daemon) handleSubmit(kind jobs.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		var params jobs.Params
		switch kind {
		case jobs.KindDub:
			var req api.DubRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
				return
			}
			params = req.Params()
		case jobs.KindStory:
			var req api.StoryRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
				return
			}
			params = req.Params()
		}

		job, err := d.runner.Submit(r.Context(), kind, params)
		if err != nil {
			logging.WithContext(r.Context(), d.logger).Info("job rejected",
				logging.String(logging.FieldJobKind, string(kind)),
				logging.String(logging.FieldErrorKind, services.Kind(err)),
				logging.Error(err),
			)
			writeError(w, statusForError(err), errorMessage(err))
			return
		}
		writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobID: job.ID, Status: string(job.Status)})
	}
}

func (d *Daemon) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.JobList{Jobs: api.FromJobs(d.registry.List())})
}

func (d *Daemon) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := d.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusForError(err), errorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, api.FromJob(job))
}

func (d *Daemon) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := d.registry.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusForError(err), errorMessage(err))
		return
	}
	writeJSON(w, http.StatusAccepted, api.FromJob(job))
}

func (d *Daemon) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, err := d.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusForError(err), errorMessage(err))
		return
	}
	if job.Status != jobs.StatusCompleted || job.ResultPath == "" {
		writeError(w, http.StatusConflict, fmt.Sprintf("job %s is %s", job.ID, job.Status))
		return
	}
	file, err := os.Open(job.ResultPath)
	if err != nil {
		writeError(w, http.StatusGone, "artifact no longer available")
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	name := filepath.Base(job.ResultPath)
	w.Header().Set("Content-Type", contentTypeVideo)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), file)
}

func (d *Daemon) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.FromCatalog(d.catalog))
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Status(r.Context()))
}

// statusForError maps the failure taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrTerminal):
		return http.StatusConflict
	case errors.Is(err, runner.ErrQueueFull), errors.Is(err, runner.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	return services.Details(err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}
