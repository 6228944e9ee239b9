package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConsumeEventStream(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"type":"job_id","job_id":"j-1"}`,
		"",
		`data: {"type":"log","data":"collected 3 items\n"}`,
		"",
		`data: {"type":"log","data":"3 passed\n"}`,
		"",
		`data: {"type":"complete","success":true}`,
		"",
	}, "\n")

	var out bytes.Buffer
	result, err := consumeEventStream(strings.NewReader(stream), &out)
	if err != nil {
		t.Fatalf("consumeEventStream failed: %v", err)
	}
	if result.JobID != "j-1" {
		t.Errorf("got job id %q, want j-1", result.JobID)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if got := out.String(); got != "collected 3 items\n3 passed\n" {
		t.Errorf("unexpected log output: %q", got)
	}
}

func TestConsumeEventStream_TruncatedStream(t *testing.T) {
	stream := `data: {"type":"log","data":"partial\n"}` + "\n\n"

	var out bytes.Buffer
	_, err := consumeEventStream(strings.NewReader(stream), &out)
	if err == nil {
		t.Fatal("expected an error for a stream without a terminal event")
	}
}

func TestClientSubmitAsync(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/submit-async" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"job_id":"j-42"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "ci_secret")
	jobID, err := client.SubmitAsync([]byte("zipbytes"))
	if err != nil {
		t.Fatalf("SubmitAsync failed: %v", err)
	}
	if jobID != "j-42" {
		t.Errorf("got job id %q, want j-42", jobID)
	}
	if gotAuth != "Bearer ci_secret" {
		t.Errorf("got Authorization %q", gotAuth)
	}
}

func TestClientStreamJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("from_beginning"); got != "true" {
			t.Errorf("got from_beginning=%q, want true", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"type":"log","data":"1 failed\n"}` + "\n\n"))
		w.Write([]byte(`data: {"type":"complete","success":false}` + "\n\n"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "ci_secret")
	var out bytes.Buffer
	result, err := client.StreamJob("j-7", true, &out)
	if err != nil {
		t.Fatalf("StreamJob failed: %v", err)
	}
	if result.Success {
		t.Error("expected failure verdict")
	}
	if !strings.Contains(out.String(), "1 failed") {
		t.Errorf("missing log output: %q", out.String())
	}
}

func TestClientGetJob_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Job not found","code":"404"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "ci_secret")
	_, err := client.GetJob("nope")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d, want 404", apiErr.StatusCode)
	}
}
