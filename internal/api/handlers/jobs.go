package handlers

import (
	"net/http"

	"ciforge/internal/api/middleware"
	"ciforge/pkg/api"
)

// GetJob handles GET /jobs/{id}. A job the caller does not own is
// indistinguishable from one that does not exist.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	job, err := h.store.GetJob(ctx, r.PathValue("id"), userID)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if job == nil {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, jobResponse(job))
}

// ListJobs handles GET /jobs, newest first, scoped to the caller.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobs, err := h.store.ListJobs(ctx, userID)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	resp := make([]api.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, jobResponse(job))
	}
	h.respondJson(w, http.StatusOK, resp)
}
