package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"ciforge/internal/store"
	"ciforge/pkg/api"
)

func TestSubmitAsync(t *testing.T) {
	fx := newFixture(t)

	body, contentType := multipartZip(t, []byte("zipbytes"))
	req := fx.authedRequest(t, http.MethodPost, "/submit-async", body, fx.user.ID)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	fx.handlers.SubmitAsync(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("got %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp api.SubmitAsyncResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("expected a job_id")
	}

	job, err := fx.store.GetJob(req.Context(), resp.JobID, fx.user.ID)
	if err != nil || job == nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if job.Status != store.JobStatusQueued {
		t.Errorf("got status %s, want queued", job.Status)
	}
	if job.ZipFilePath == "" {
		t.Fatal("expected a stash path on the job row")
	}

	data, err := os.ReadFile(job.ZipFilePath)
	if err != nil {
		t.Fatalf("stash file missing: %v", err)
	}
	if string(data) != "zipbytes" {
		t.Errorf("stash content mismatch: %q", string(data))
	}
}

func TestSubmitAsync_MissingFileField(t *testing.T) {
	fx := newFixture(t)

	req := fx.authedRequest(t, http.MethodPost, "/submit-async", strings.NewReader("not multipart"), fx.user.ID)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xxx")
	rec := httptest.NewRecorder()
	fx.handlers.SubmitAsync(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rec.Code)
	}
}

func TestSubmitAsync_UploadTooLarge(t *testing.T) {
	fx := newFixture(t)
	fx.handlers.opts.MaxUploadBytes = 16

	body, contentType := multipartZip(t, make([]byte, 1024))
	req := fx.authedRequest(t, http.MethodPost, "/submit-async", body, fx.user.ID)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	fx.handlers.SubmitAsync(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("got %d, want 413", rec.Code)
	}
}

func TestSubmitStream_AnnouncesJobIDFirst(t *testing.T) {
	fx := newFixture(t)

	// No controller is running, so the job stays queued and the stream
	// closes with a failure verdict after the configured timeout.
	body, contentType := multipartZip(t, []byte("zipbytes"))
	req := fx.authedRequest(t, http.MethodPost, "/submit-stream", body, fx.user.ID)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	fx.handlers.SubmitStream(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("got Content-Type %q, want text/event-stream", ct)
	}

	evs := sseEvents(t, rec.Body.String())
	if len(evs) < 2 {
		t.Fatalf("expected at least job_id and complete events, got %v", evs)
	}
	if evs[0]["type"] != "job_id" || evs[0]["job_id"] == "" {
		t.Errorf("first event must announce the job id, got %v", evs[0])
	}
	last := evs[len(evs)-1]
	if last["type"] != "complete" || last["success"] != false {
		t.Errorf("stream must close with complete/false, got %v", last)
	}
}
