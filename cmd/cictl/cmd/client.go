package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"ciforge/pkg/api"
)

// Client handles API calls to the CIForge server.
type Client struct {
	BaseURL string
	Key     string

	// HTTPClient serves the quick request/response endpoints.
	HTTPClient *http.Client

	// StreamClient carries SSE responses and therefore has no timeout; a
	// stream lives as long as the job runs.
	StreamClient *http.Client
}

// NewClient creates a client with the given base URL and API key.
func NewClient(baseURL, key string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		BaseURL: baseURL,
		Key:     key,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		StreamClient: &http.Client{},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// StreamResult is the outcome of a consumed event stream.
type StreamResult struct {
	JobID   string
	Success bool
}

// SubmitStream uploads zipData to POST /submit-stream and follows the
// event stream, writing log chunks to out until the terminal event.
func (c *Client) SubmitStream(zipData []byte, out io.Writer) (*StreamResult, error) {
	req, err := c.multipartRequest("/submit-stream", zipData)
	if err != nil {
		return nil, err
	}

	resp, err := c.StreamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	return consumeEventStream(resp.Body, out)
}

// SubmitAsync uploads zipData to POST /submit-async and returns the job id.
func (c *Client) SubmitAsync(zipData []byte) (string, error) {
	req, err := c.multipartRequest("/submit-async", zipData)
	if err != nil {
		return "", err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result api.SubmitAsyncResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return result.JobID, nil
}

// GetJob sends GET /jobs/{id} to retrieve one job record.
func (c *Client) GetJob(jobID string) (*api.JobResponse, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/jobs/%s", c.BaseURL, jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result api.JobResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// ListJobs sends GET /jobs to retrieve the caller's jobs, newest first.
func (c *Client) ListJobs() ([]api.JobResponse, error) {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+"/jobs", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result []api.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return result, nil
}

// StreamJob follows GET /jobs/{id}/stream, writing log chunks to out
// until the terminal event.
func (c *Client) StreamJob(jobID string, fromBeginning bool, out io.Writer) (*StreamResult, error) {
	endpoint := fmt.Sprintf("%s/jobs/%s/stream?from_beginning=%t", c.BaseURL, jobID, fromBeginning)
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.StreamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	result, err := consumeEventStream(resp.Body, out)
	if err != nil {
		return nil, err
	}
	result.JobID = jobID
	return result, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Key))
}

func (c *Client) multipartRequest(path string, zipData []byte) (*http.Request, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "project.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := fw.Write(zipData); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

// streamEvent is the wire shape of one SSE payload.
type streamEvent struct {
	Type    string `json:"type"`
	JobID   string `json:"job_id"`
	Data    string `json:"data"`
	Success *bool  `json:"success"`
}

// consumeEventStream reads `data: <json>` frames, forwarding log chunks
// to out, and returns once the terminal complete event arrives.
func consumeEventStream(r io.Reader, out io.Writer) (*StreamResult, error) {
	result := &StreamResult{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			fmt.Fprintf(os.Stderr, "skipping malformed event: %v\n", err)
			continue
		}

		switch event.Type {
		case "job_id":
			result.JobID = event.JobID
		case "log":
			fmt.Fprint(out, event.Data)
		case "complete":
			if event.Success != nil {
				result.Success = *event.Success
			}
			return result, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream interrupted: %w", err)
	}
	return nil, fmt.Errorf("stream ended without a terminal event")
}
