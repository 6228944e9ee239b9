// Package store contains the database layer for CIForge.
package store

import "time"

// User is an account provisioned by an administrator. Users are never
// deleted, only deactivated.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	IsActive  bool
}

// APIKey is a bearer credential owned by a User. The plaintext secret is
// never persisted; only KeyHash is stored.
type APIKey struct {
	ID         string
	UserID     string
	Name       string
	KeyHash    string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	IsActive   bool
}

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether status admits no further transitions in the
// core reconciliation design.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Job represents one submitted project's test run.
type Job struct {
	ID          string
	UserID      string
	Status      JobStatus
	Success     *bool // nil iff Status is queued or running
	StartTime   *time.Time
	EndTime     *time.Time
	ContainerID *string
	ZipFilePath string
	CreatedAt   time.Time
}

// JobEventType distinguishes a persisted JobEvent's payload shape.
type JobEventType string

const (
	JobEventTypeLog      JobEventType = "log"
	JobEventTypeComplete JobEventType = "complete"
)

// JobEvent is an optional, persisted replay record. The authoritative live
// log stream is tailed directly from the container runtime; JobEvent rows
// exist only so replay remains possible after the runtime has forgotten the
// container's logs.
type JobEvent struct {
	ID        int64
	JobID     string
	Type      JobEventType
	Data      *string // set for log events
	Success   *bool   // set for complete events
	Sequence  int64
	Timestamp time.Time
}
