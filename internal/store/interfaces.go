package store

import (
	"context"
	"database/sql"
	"time"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction
// to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx is a DBTransaction that can be committed or rolled back.
type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// UserStore handles durable storage of User accounts.
type UserStore interface {
	// CreateUser inserts a new user. Returns a Conflict-kind error if the
	// email already exists.
	CreateUser(ctx context.Context, user *User) error

	// GetUser returns a user by id, or nil if not found.
	GetUser(ctx context.Context, id string) (*User, error)

	// GetUserByEmail returns a user by email, or nil if not found.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// ListUsers returns every user, newest first.
	ListUsers(ctx context.Context) ([]*User, error)

	// SetUserActive flips a user's is_active flag.
	SetUserActive(ctx context.Context, id string, active bool) error
}

// APIKeyStore handles durable storage of APIKey credentials.
type APIKeyStore interface {
	// CreateAPIKey inserts a new key row. The caller supplies KeyHash; the
	// plaintext secret is never passed to the store.
	CreateAPIKey(ctx context.Context, key *APIKey) error

	// GetAPIKeyByHash returns the key matching hash, or nil if none
	// matches. Lookup is by unique index for O(1) authentication.
	GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error)

	// ListAPIKeys returns keys for userID, or every key if userID is "".
	ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error)

	// RevokeAPIKey flips is_active to false.
	RevokeAPIKey(ctx context.Context, id string) error

	// TouchAPIKey best-effort updates last_used_at. Failures here must
	// never fail the authenticated request that triggered them.
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// JobStore handles durable storage of Job definitions and their lifecycle.
type JobStore interface {
	// CreateJob inserts a job row with status=queued, success=nil.
	CreateJob(ctx context.Context, job *Job) error

	// GetJob returns a job by id. If userID is non-empty, the job is
	// returned only if owned by that user; otherwise nil is returned
	// (NotFound and not-owned are indistinguishable by design).
	GetJob(ctx context.Context, id string, userID string) (*Job, error)

	// ListJobs returns jobs newest-first, scoped to userID unless userID
	// is empty (an administrative, cross-user read).
	ListJobs(ctx context.Context, userID string) ([]*Job, error)

	// ListNonTerminalJobs returns every job whose status is queued or
	// running, across all users. This is the Controller's desired-state
	// input.
	ListNonTerminalJobs(ctx context.Context) ([]*Job, error)

	// UpdateJobStatus performs a partial update of status/start_time/
	// container_id. Implementations reject illegal transitions.
	UpdateJobStatus(ctx context.Context, id string, status JobStatus, startTime *time.Time, containerID *string) error

	// CompleteJob transitions a job to a terminal status and sets
	// success/end_time in one transaction.
	CompleteJob(ctx context.Context, id string, status JobStatus, success bool, endTime time.Time) error

	// ClearZipFilePath records that the Controller has consumed (and is
	// responsible for deleting) the stashed zip.
	ClearZipFilePath(ctx context.Context, id string) error
}

// JobEventStore handles the optional persisted replay log.
type JobEventStore interface {
	// AppendJobEvent inserts an event with the next sequence number for
	// its job.
	AppendJobEvent(ctx context.Context, event *JobEvent) error

	// ListJobEvents returns events for jobID in sequence order.
	ListJobEvents(ctx context.Context, jobID string) ([]*JobEvent, error)
}

// StoreFactory composes every store capability the API and Controller
// need, plus connection-pool-level operations.
type StoreFactory interface {
	BeginTx(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	UserStore
	APIKeyStore
	JobStore
	JobEventStore
}
