package postgres

import (
	"context"

	"ciforge/internal/cierr"
	"ciforge/internal/store"
)

// AppendJobEvent inserts an event with the next sequence number for its
// job. The sequence is assigned inside the INSERT so concurrent appenders
// cannot interleave duplicates; the unique (job_id, sequence) index backs
// the guarantee.
func (s *Store) AppendJobEvent(ctx context.Context, event *store.JobEvent) error {
	query := `
		INSERT INTO job_events (job_id, type, data, success, sequence, timestamp)
		SELECT $1, $2, $3, $4, COALESCE(MAX(sequence), 0) + 1, $5
		FROM job_events WHERE job_id = $1
		RETURNING id, sequence
	`
	err := s.db.QueryRowContext(ctx, query,
		event.JobID, event.Type, event.Data, event.Success, event.Timestamp,
	).Scan(&event.ID, &event.Sequence)
	if err != nil {
		return cierr.Wrap(cierr.Transient, "appending job event", err)
	}
	return nil
}

// ListJobEvents returns events for jobID in sequence order.
func (s *Store) ListJobEvents(ctx context.Context, jobID string) ([]*store.JobEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, type, data, success, sequence, timestamp
		 FROM job_events WHERE job_id = $1 ORDER BY sequence ASC`, jobID)
	if err != nil {
		return nil, cierr.Wrap(cierr.Transient, "listing job events", err)
	}
	defer rows.Close()

	var events []*store.JobEvent
	for rows.Next() {
		var e store.JobEvent
		if err := rows.Scan(&e.ID, &e.JobID, &e.Type, &e.Data, &e.Success, &e.Sequence, &e.Timestamp); err != nil {
			return nil, cierr.Wrap(cierr.Transient, "scanning job event", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
