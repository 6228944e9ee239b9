// Package memory provides an in-memory implementation of the store
// interfaces. It backs tests for the controller and the API handlers and
// mirrors the transition rules the Postgres implementation enforces.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"ciforge/internal/cierr"
	"ciforge/internal/store"
)

// Store is a mutex-guarded, map-backed store.StoreFactory.
type Store struct {
	mu     sync.Mutex
	users  map[string]*store.User
	keys   map[string]*store.APIKey
	jobs   map[string]*store.Job
	events map[string][]*store.JobEvent
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:  make(map[string]*store.User),
		keys:   make(map[string]*store.APIKey),
		jobs:   make(map[string]*store.Job),
		events: make(map[string][]*store.JobEvent),
	}
}

// nopTx satisfies store.Tx. The in-memory store applies writes
// immediately under its mutex, so transactional scope is vacuous here; the
// raw SQL surface is never exercised by in-memory callers.
type nopTx struct{}

func (nopTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}

func (nopTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}

func (nopTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) {
	return nopTx{}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// --- UserStore ---

func (s *Store) CreateUser(ctx context.Context, user *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email {
			return cierr.New(cierr.Conflict, fmt.Sprintf("email %q already in use", user.Email))
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []*store.User
	for _, u := range s.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return cierr.New(cierr.NotFound, "user not found")
	}
	u.IsActive = active
	return nil
}

// --- APIKeyStore ---

func (s *Store) CreateAPIKey(ctx context.Context, key *store.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[key.UserID]; !ok {
		return cierr.New(cierr.InvalidInput, fmt.Sprintf("user %s does not exist", key.UserID))
	}
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*store.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.keys {
		if k.KeyHash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]*store.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []*store.APIKey
	for _, k := range s.keys {
		if userID == "" || k.UserID == userID {
			cp := *k
			keys = append(keys, &cp)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok {
		return cierr.New(cierr.NotFound, "api key not found")
	}
	k.IsActive = false
	return nil
}

func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k, ok := s.keys[id]; ok {
		t := at
		k.LastUsedAt = &t
	}
	return nil
}

// --- JobStore ---

func (s *Store) CreateJob(ctx context.Context, job *store.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[job.UserID]; !ok {
		return cierr.New(cierr.InvalidInput, fmt.Sprintf("user %s does not exist", job.UserID))
	}
	cp := *job
	cp.Status = store.JobStatusQueued
	cp.Success = nil
	s.jobs[job.ID] = &cp
	job.Status = cp.Status
	job.Success = nil
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string, userID string) (*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || (userID != "" && j.UserID != userID) {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *Store) ListJobs(ctx context.Context, userID string) ([]*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*store.Job
	for _, j := range s.jobs {
		if userID == "" || j.UserID == userID {
			cp := *j
			jobs = append(jobs, &cp)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *Store) ListNonTerminalJobs(ctx context.Context) ([]*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*store.Job
	for _, j := range s.jobs {
		if !j.Status.Terminal() {
			cp := *j
			jobs = append(jobs, &cp)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, id string, status store.JobStatus, startTime *time.Time, containerID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return cierr.New(cierr.NotFound, "job not found")
	}
	if j.Status.Terminal() {
		if j.Status == status {
			return nil
		}
		return cierr.New(cierr.Conflict,
			fmt.Sprintf("illegal job transition %s -> %s", j.Status, status))
	}
	if status != store.JobStatusRunning {
		return cierr.New(cierr.Conflict, fmt.Sprintf("no legal transition into status %q", status))
	}
	j.Status = status
	if startTime != nil {
		t := *startTime
		j.StartTime = &t
	}
	if containerID != nil {
		c := *containerID
		j.ContainerID = &c
	}
	return nil
}

func (s *Store) CompleteJob(ctx context.Context, id string, status store.JobStatus, success bool, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !status.Terminal() {
		return cierr.New(cierr.Conflict, fmt.Sprintf("status %q is not terminal", status))
	}
	j, ok := s.jobs[id]
	if !ok {
		return cierr.New(cierr.NotFound, "job not found")
	}
	if j.Status.Terminal() {
		if j.Status == status {
			return nil
		}
		return cierr.New(cierr.Conflict,
			fmt.Sprintf("illegal job transition %s -> %s", j.Status, status))
	}
	j.Status = status
	j.Success = &success
	t := endTime
	j.EndTime = &t
	return nil
}

func (s *Store) ClearZipFilePath(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[id]; ok {
		j.ZipFilePath = ""
	}
	return nil
}

// --- JobEventStore ---

func (s *Store) AppendJobEvent(ctx context.Context, event *store.JobEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	cp.Sequence = int64(len(s.events[event.JobID]) + 1)
	cp.ID = cp.Sequence
	s.events[event.JobID] = append(s.events[event.JobID], &cp)
	event.Sequence = cp.Sequence
	event.ID = cp.ID
	return nil
}

func (s *Store) ListJobEvents(ctx context.Context, jobID string) ([]*store.JobEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]*store.JobEvent, 0, len(s.events[jobID]))
	for _, e := range s.events[jobID] {
		cp := *e
		events = append(events, &cp)
	}
	return events, nil
}
