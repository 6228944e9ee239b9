package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ciforge/internal/api/middleware"
	"ciforge/internal/events"
	"ciforge/internal/store"
	"ciforge/pkg/api"
)

// SubmitAsync handles POST /submit-async: stash the upload, persist a
// queued job, return the id immediately. The controller picks the job up
// on its next pass.
func (h *Handlers) SubmitAsync(w http.ResponseWriter, r *http.Request) {
	job, ok := h.admitSubmission(w, r)
	if !ok {
		return
	}
	h.respondJson(w, http.StatusAccepted, api.SubmitAsyncResponse{JobID: job.ID})
}

// SubmitStream handles POST /submit-stream: same admission as
// SubmitAsync, then the response turns into an event stream that follows
// the job through to its verdict.
func (h *Handlers) SubmitStream(w http.ResponseWriter, r *http.Request) {
	job, ok := h.admitSubmission(w, r)
	if !ok {
		return
	}

	sw, ok := newSSEWriter(w)
	if !ok {
		h.httpError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	if err := sw.send(events.JobIDEvent{JobID: job.ID}); err != nil {
		return
	}
	h.streamJob(r.Context(), sw, job, true)
}

// admitSubmission performs the shared persistence steps of both submit
// endpoints: write the zip to the spool, create the queued job row. On
// failure it has already written the error response.
func (h *Handlers) admitSubmission(w http.ResponseWriter, r *http.Request) (*store.Job, bool) {
	ctx := r.Context()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		// The multipart reader does not always wrap the limit error, so
		// match on the message as well.
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			h.httpError(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		h.httpError(w, "Missing multipart field 'file'", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	jobID := uuid.NewString()
	stashPath, err := h.stashUpload(jobID, file)
	if err != nil {
		h.logger.Error("failed to stash upload", "error", err)
		h.httpError(w, "Failed to store upload", http.StatusInternalServerError)
		return nil, false
	}

	job := &store.Job{
		ID:          jobID,
		UserID:      userID,
		ZipFilePath: stashPath,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.CreateJob(ctx, job); err != nil {
		os.Remove(stashPath)
		h.storeError(w, r, err)
		return nil, false
	}

	h.logger.Info("job admitted", "job_id", job.ID, "user_id", userID)
	return job, true
}

// stashUpload writes the uploaded bytes to a unique path under the spool
// directory. The path lands in the job row; the controller deletes the
// file once the container holds the extracted copy.
func (h *Handlers) stashUpload(jobID string, file io.Reader) (string, error) {
	if err := os.MkdirAll(h.opts.SpoolDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(h.opts.SpoolDir, jobID+".zip")
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
