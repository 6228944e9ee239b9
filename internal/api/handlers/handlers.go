// Package handlers contains the HTTP handlers for the API server.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ciforge/internal/cierr"
	"ciforge/internal/runtime"
	"ciforge/internal/store"
	"ciforge/pkg/api"
)

// Options holds handler tunables.
type Options struct {
	// SpoolDir is where uploaded zips are stashed until the controller
	// consumes them.
	SpoolDir string

	// NamespacePrefix matches the controller's container naming.
	NamespacePrefix string

	// QueuedStreamTimeout bounds how long a stream waits for a queued job
	// to start running.
	QueuedStreamTimeout time.Duration

	// MaxUploadBytes caps submission size. Zero means the default.
	MaxUploadBytes int64
}

const defaultMaxUploadBytes = 100 << 20

// Handlers holds all HTTP handlers and their dependencies. Handlers are
// stateless: every replica serves any request because state lives in the
// store and the container runtime.
type Handlers struct {
	store   store.StoreFactory
	runtime runtime.Runtime
	opts    Options
	logger  *slog.Logger
}

// New creates a Handlers instance.
func New(s store.StoreFactory, rt runtime.Runtime, opts Options, logger *slog.Logger) *Handlers {
	if opts.QueuedStreamTimeout <= 0 {
		opts.QueuedStreamTimeout = 30 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Handlers{store: s, runtime: rt, opts: opts, logger: logger}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// storeError maps a store/runtime error onto an HTTP status, without
// leaking internals to the client.
func (h *Handlers) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch cierr.KindOf(err) {
	case cierr.NotFound:
		h.httpError(w, "Not found", http.StatusNotFound)
	case cierr.Conflict:
		h.httpError(w, "Conflict", http.StatusConflict)
	case cierr.InvalidInput:
		h.httpError(w, "Invalid input", http.StatusBadRequest)
	case cierr.AuthRequired, cierr.AuthInvalid:
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
	default:
		h.logger.Error("internal error", "path", r.URL.Path, "error", err)
		h.httpError(w, "Internal error", http.StatusInternalServerError)
	}
}

func jobResponse(job *store.Job) api.JobResponse {
	return api.JobResponse{
		ID:          job.ID,
		UserID:      job.UserID,
		Status:      string(job.Status),
		Success:     job.Success,
		StartTime:   job.StartTime,
		EndTime:     job.EndTime,
		ContainerID: job.ContainerID,
		CreatedAt:   job.CreatedAt,
	}
}
