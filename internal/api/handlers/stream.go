package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ciforge/internal/api/middleware"
	"ciforge/internal/events"
	"ciforge/internal/store"
)

// queuedPollInterval is how often a stream re-reads a queued job while
// waiting for the controller to start it.
const queuedPollInterval = 500 * time.Millisecond

// finalizePollTimeout bounds the wait for the controller to record the
// verdict after the log stream ends.
const finalizePollTimeout = 5 * time.Second

// StreamJob handles GET /jobs/{id}/stream. Ownership is checked before
// the response commits to SSE, so an unknown or foreign job is a plain
// 404.
func (h *Handlers) StreamJob(w http.ResponseWriter, r *http.Request) {
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

	fromBeginning := false
	if raw := r.URL.Query().Get("from_beginning"); raw != "" {
		fromBeginning, _ = strconv.ParseBool(raw)
	}

	sw, ok := newSSEWriter(w)
	if !ok {
		h.httpError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	h.streamJob(ctx, sw, job, fromBeginning)
}

// streamJob pushes the job's event sequence onto an established SSE
// response: zero or more log events closed by exactly one complete event.
// The sequence is finite and non-restartable; a cancelled ctx (peer
// disconnect) abandons it without a terminal event.
func (h *Handlers) streamJob(ctx context.Context, sw *sseWriter, job *store.Job, fromBeginning bool) {
	// Phase 1: wait out the queue. The controller owns the transition to
	// running; all we can do is poll and give up after the deadline.
	if job.Status == store.JobStatusQueued {
		var ok bool
		job, ok = h.awaitStart(ctx, sw, job)
		if !ok {
			return
		}
	}

	// Phase 2: a job already in a terminal state replays or short-closes.
	if job.Status.Terminal() {
		h.streamTerminal(ctx, sw, job, fromBeginning)
		return
	}

	// Phase 3: live tail. The runtime's follow stream ends when the
	// container exits.
	if job.Status == store.JobStatusRunning && job.ContainerID != nil {
		if err := h.copyLogs(ctx, sw, *job.ContainerID, true); err != nil {
			if ctx.Err() != nil {
				return
			}
			sw.send(events.LogEvent{Data: "Error streaming logs\n"})
		}
	}

	// Phase 4: the container exited; wait briefly for the controller to
	// record the verdict, then close the stream with it.
	sw.send(events.CompleteEvent{Success: h.awaitVerdict(ctx, job)})
}

// awaitStart polls a queued job until it leaves the queue or the
// configured timeout passes. Returns false if the stream was closed.
func (h *Handlers) awaitStart(ctx context.Context, sw *sseWriter, job *store.Job) (*store.Job, bool) {
	deadline := time.Now().Add(h.opts.QueuedStreamTimeout)
	ticker := time.NewTicker(queuedPollInterval)
	defer ticker.Stop()

	for job.Status == store.JobStatusQueued {
		if time.Now().After(deadline) {
			sw.send(events.LogEvent{Data: "Timed out waiting for job to start\n"})
			sw.send(events.CompleteEvent{Success: false})
			return nil, false
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
		}

		fresh, err := h.store.GetJob(ctx, job.ID, job.UserID)
		if err != nil || fresh == nil {
			sw.send(events.LogEvent{Data: "Job disappeared\n"})
			sw.send(events.CompleteEvent{Success: false})
			return nil, false
		}
		job = fresh
	}
	return job, true
}

// streamTerminal closes out a stream opened against a job that already
// finished. With fromBeginning the full history is replayed: from the
// container when it still exists, otherwise from the persisted events; a
// terminal job whose history is gone entirely yields just the verdict.
func (h *Handlers) streamTerminal(ctx context.Context, sw *sseWriter, job *store.Job, fromBeginning bool) {
	success := job.Success != nil && *job.Success

	if !fromBeginning {
		sw.send(events.CompleteEvent{Success: success})
		return
	}

	replayed := false
	if job.ContainerID != nil {
		if err := h.copyLogs(ctx, sw, *job.ContainerID, false); err == nil {
			replayed = true
		} else if ctx.Err() != nil {
			return
		}
	}

	if !replayed {
		stored, err := h.store.ListJobEvents(ctx, job.ID)
		if err == nil {
			for _, e := range stored {
				if e.Type == store.JobEventTypeLog && e.Data != nil {
					if err := sw.send(events.LogEvent{Data: *e.Data}); err != nil {
						return
					}
				}
			}
		}
	}

	sw.send(events.CompleteEvent{Success: success})
}

// copyLogs reads the container's log stream and forwards each chunk as a
// log event. Chunks follow emission order but are not split on line
// boundaries. Returns nil once the stream reaches EOF.
func (h *Handlers) copyLogs(ctx context.Context, sw *sseWriter, containerID string, follow bool) error {
	reader, err := h.runtime.Logs(ctx, containerID, follow)
	if err != nil {
		return err
	}
	defer reader.Close()

	// Closing the reader on disconnect unblocks a pending Read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			reader.Close()
		case <-done:
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if sendErr := sw.send(events.LogEvent{Data: string(buf[:n])}); sendErr != nil {
				return sendErr
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
	}
}

// awaitVerdict polls for the controller's terminal record of the job.
// If the verdict has not landed within the window, the stream reports
// failure rather than hanging.
func (h *Handlers) awaitVerdict(ctx context.Context, job *store.Job) bool {
	deadline := time.Now().Add(finalizePollTimeout)
	for time.Now().Before(deadline) {
		fresh, err := h.store.GetJob(ctx, job.ID, job.UserID)
		if err == nil && fresh != nil && fresh.Success != nil {
			return *fresh.Success
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return false
}

// sseWriter pushes events onto a chunked text/event-stream response,
// flushing each frame so clients observe events as they happen.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) send(event events.Event) error {
	frame, err := event.MarshalSSE()
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
