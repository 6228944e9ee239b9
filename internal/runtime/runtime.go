// Package runtime abstracts the container runtime the controller and the
// API converge against. Implementations include Docker and raw process
// execution.
package runtime

import (
	"context"
	"io"
	"strings"
	"time"
)

// Container status values as reported by Inspect and List.
const (
	StatusCreated = "created"
	StatusRunning = "running"
	StatusExited  = "exited"
	StatusDead    = "dead"
)

// Container is the runtime's view of one execution environment.
type Container struct {
	ID         string
	Name       string
	Status     string
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Exited reports whether the container has finished running.
func (c Container) Exited() bool {
	return c.Status == StatusExited || c.Status == StatusDead
}

// CreateOptions parameterizes Create.
type CreateOptions struct {
	// Name is the deterministic container name: namespace prefix plus job
	// id. Names partition the runtime between deployments.
	Name string

	// WorkspaceDir is the extracted project tree, mounted read-only at a
	// fixed path inside the container.
	WorkspaceDir string
}

// Runtime is the black-box container capability: create, start, inspect,
// stream logs, remove. All methods are safe to re-invoke; the controller
// leans on that for crash recovery.
type Runtime interface {
	// Create prepares a container without starting it and returns its
	// runtime id.
	Create(ctx context.Context, opts CreateOptions) (string, error)

	// Start begins execution of a created container.
	Start(ctx context.Context, nameOrID string) error

	// List returns every container whose name carries prefix, regardless
	// of state.
	List(ctx context.Context, prefix string) ([]Container, error)

	// Inspect returns the container's current state, or nil if the
	// runtime has no container by that name or id.
	Inspect(ctx context.Context, nameOrID string) (*Container, error)

	// Logs returns the container's combined output. With follow set the
	// reader tracks the live stream and reaches EOF when the container
	// exits; otherwise it replays what has been emitted so far.
	Logs(ctx context.Context, nameOrID string, follow bool) (io.ReadCloser, error)

	// Remove force-deletes the container. Removing an absent container is
	// not an error.
	Remove(ctx context.Context, nameOrID string) error
}

// ContainerName derives the deterministic container name for a job.
func ContainerName(prefix, jobID string) string {
	return prefix + jobID
}

// JobIDFromName recovers the job id from a namespaced container name. The
// second return is false when the name does not carry the prefix.
func JobIDFromName(prefix, name string) (string, bool) {
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(name, prefix)
	if id == "" {
		return "", false
	}
	return id, true
}
