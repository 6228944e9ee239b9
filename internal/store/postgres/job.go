package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ciforge/internal/cierr"
	"ciforge/internal/store"

	"github.com/lib/pq"
)

const pgForeignKeyViolation = "23503"

const jobColumns = `id, user_id, status, success, start_time, end_time, container_id, zip_file_path, created_at`

// CreateJob inserts a job row. New jobs always enter the lifecycle as
// queued with success unset; the caller's Status/Success fields are
// ignored.
func (s *Store) CreateJob(ctx context.Context, job *store.Job) error {
	query := `
		INSERT INTO jobs (id, user_id, status, success, start_time, end_time, container_id, zip_file_path, created_at)
		VALUES ($1, $2, $3, NULL, NULL, NULL, NULL, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.UserID, store.JobStatusQueued, job.ZipFilePath, job.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation {
			return cierr.Wrap(cierr.InvalidInput, fmt.Sprintf("user %s does not exist", job.UserID), err)
		}
		return cierr.Wrap(cierr.Transient, "inserting job", err)
	}
	job.Status = store.JobStatusQueued
	job.Success = nil
	return nil
}

// GetJob returns a job by id, or nil if it does not exist. A non-empty
// userID additionally requires ownership; a miss on either condition looks
// identical to the caller.
func (s *Store) GetJob(ctx context.Context, id string, userID string) (*store.Job, error) {
	var row *sql.Row
	if userID == "" {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`, id, userID)
	}
	return scanJobRow(row)
}

// ListJobs returns jobs newest-first, scoped to userID unless it is empty.
func (s *Store) ListJobs(ctx context.Context, userID string) ([]*store.Job, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if userID == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	}
	if err != nil {
		return nil, cierr.Wrap(cierr.Transient, "listing jobs", err)
	}
	defer rows.Close()
	return scanJobRows(rows)
}

// ListNonTerminalJobs returns every queued or running job across all
// users, oldest first so the controller starts work in FIFO order.
func (s *Store) ListNonTerminalJobs(ctx context.Context) ([]*store.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ANY($1) ORDER BY created_at ASC`,
		pq.Array([]string{string(store.JobStatusQueued), string(store.JobStatusRunning)}))
	if err != nil {
		return nil, cierr.Wrap(cierr.Transient, "listing non-terminal jobs", err)
	}
	defer rows.Close()
	return scanJobRows(rows)
}

// UpdateJobStatus performs a partial update of status, start_time and
// container_id. Only forward transitions along the job state machine are
// accepted; the WHERE clause rejects everything else so a stale controller
// can never move a job backward.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status store.JobStatus, startTime *time.Time, containerID *string) error {
	prior := legalPriorStatuses(status)
	if len(prior) == 0 {
		return cierr.New(cierr.Conflict, fmt.Sprintf("no legal transition into status %q", status))
	}

	query := `
		UPDATE jobs
		SET status = $1,
		    start_time = COALESCE($2, start_time),
		    container_id = COALESCE($3, container_id)
		WHERE id = $4 AND status = ANY($5)
	`
	res, err := s.db.ExecContext(ctx, query, status, startTime, containerID, id, pq.Array(prior))
	if err != nil {
		return cierr.Wrap(cierr.Transient, "updating job status", err)
	}
	return s.checkJobMutation(ctx, res, id, status)
}

// CompleteJob transitions a job into a terminal status and records the
// outcome in one statement.
func (s *Store) CompleteJob(ctx context.Context, id string, status store.JobStatus, success bool, endTime time.Time) error {
	if !status.Terminal() {
		return cierr.New(cierr.Conflict, fmt.Sprintf("status %q is not terminal", status))
	}

	query := `
		UPDATE jobs
		SET status = $1, success = $2, end_time = $3
		WHERE id = $4 AND status = ANY($5)
	`
	res, err := s.db.ExecContext(ctx, query, status, success, endTime, id,
		pq.Array([]string{string(store.JobStatusQueued), string(store.JobStatusRunning)}))
	if err != nil {
		return cierr.Wrap(cierr.Transient, "completing job", err)
	}
	return s.checkJobMutation(ctx, res, id, status)
}

// ClearZipFilePath records that the controller has consumed the stashed
// upload. Idempotent.
func (s *Store) ClearZipFilePath(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET zip_file_path = '' WHERE id = $1`, id)
	if err != nil {
		return cierr.Wrap(cierr.Transient, "clearing job zip path", err)
	}
	return nil
}

// checkJobMutation distinguishes a missing job from an illegal transition
// after a guarded UPDATE matched zero rows.
func (s *Store) checkJobMutation(ctx context.Context, res sql.Result, id string, status store.JobStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return cierr.Wrap(cierr.Transient, "checking update result", err)
	}
	if n > 0 {
		return nil
	}

	existing, err := s.GetJob(ctx, id, "")
	if err != nil {
		return err
	}
	if existing == nil {
		return cierr.New(cierr.NotFound, "job not found")
	}
	if existing.Status == status {
		// Re-applying the same transition. Reconciliation passes repeat
		// work after a crash, so this must not surface as an error.
		return nil
	}
	return cierr.New(cierr.Conflict,
		fmt.Sprintf("illegal job transition %s -> %s", existing.Status, status))
}

func legalPriorStatuses(target store.JobStatus) []string {
	switch target {
	case store.JobStatusRunning:
		// running -> running permits refreshing container_id after a
		// stale reference.
		return []string{string(store.JobStatusQueued), string(store.JobStatusRunning)}
	case store.JobStatusCompleted, store.JobStatusFailed, store.JobStatusCancelled:
		return []string{string(store.JobStatusQueued), string(store.JobStatusRunning)}
	default:
		return nil
	}
}

func scanJobRow(row *sql.Row) (*store.Job, error) {
	j, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, cierr.Wrap(cierr.Transient, "reading job", err)
	}
	return j, nil
}

func scanJobRows(rows *sql.Rows) ([]*store.Job, error) {
	var jobs []*store.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, cierr.Wrap(cierr.Transient, "scanning job", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanJob(scan func(dest ...interface{}) error) (*store.Job, error) {
	var (
		j           store.Job
		success     sql.NullBool
		startTime   sql.NullTime
		endTime     sql.NullTime
		containerID sql.NullString
	)
	err := scan(&j.ID, &j.UserID, &j.Status, &success, &startTime, &endTime, &containerID, &j.ZipFilePath, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	if success.Valid {
		j.Success = &success.Bool
	}
	if startTime.Valid {
		t := startTime.Time
		j.StartTime = &t
	}
	if endTime.Valid {
		t := endTime.Time
		j.EndTime = &t
	}
	if containerID.Valid {
		id := containerID.String
		j.ContainerID = &id
	}
	return &j, nil
}
