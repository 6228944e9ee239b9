// Package api contains shared JSON request/response structs. This package
// is shared between the CLI binaries and the API server.
package api

import "time"

// JobResponse is the full JSON record for GET /jobs/{id}.
type JobResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Status      string     `json:"status"`
	Success     *bool      `json:"success"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	ContainerID *string    `json:"container_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SubmitAsyncResponse is the response body for POST /submit-async.
type SubmitAsyncResponse struct {
	JobID string `json:"job_id"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
