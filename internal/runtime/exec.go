package runtime

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ciforge/internal/cierr"
)

// ExecRuntime implements Runtime using raw OS processes. It exists for
// development and tests on hosts without Docker; container state lives in
// process memory, so it does not survive a restart.
type ExecRuntime struct {
	// Command is the shell command run inside each workspace. Defaults to
	// the same install-and-test pipeline the Docker backend uses.
	Command []string

	mu         sync.Mutex
	containers map[string]*execContainer
}

// NewExecRuntime creates a process-based runtime.
func NewExecRuntime() *ExecRuntime {
	return &ExecRuntime{
		Command:    testCommand,
		containers: make(map[string]*execContainer),
	}
}

type execContainer struct {
	id        string
	name      string
	workspace string

	mu       sync.Mutex
	status   string
	exitCode int
	started  time.Time
	finished time.Time
	cmd      *exec.Cmd
	logs     *logBuffer
}

func (e *ExecRuntime) Create(ctx context.Context, opts CreateOptions) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.containers[opts.Name]; ok {
		return c.id, nil
	}

	c := &execContainer{
		id:        uuid.NewString(),
		name:      opts.Name,
		workspace: opts.WorkspaceDir,
		status:    StatusCreated,
		logs:      newLogBuffer(),
	}
	e.containers[opts.Name] = c
	return c.id, nil
}

func (e *ExecRuntime) Start(ctx context.Context, nameOrID string) error {
	c := e.lookup(nameOrID)
	if c == nil {
		return cierr.New(cierr.NotFound, "container not found")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusCreated {
		// Already started; repeated starts are a no-op.
		return nil
	}

	command := e.Command
	if len(command) == 0 {
		command = testCommand
	}
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = c.workspace
	cmd.Stdout = c.logs
	cmd.Stderr = c.logs
	if err := cmd.Start(); err != nil {
		return cierr.Wrap(cierr.RuntimeUnavailable, "starting process", err)
	}

	c.cmd = cmd
	c.status = StatusRunning
	c.started = time.Now().UTC()

	go func() {
		err := cmd.Wait()
		c.mu.Lock()
		defer c.mu.Unlock()
		c.status = StatusExited
		c.finished = time.Now().UTC()
		if exitErr, ok := err.(*exec.ExitError); ok {
			c.exitCode = exitErr.ExitCode()
		} else if err != nil {
			c.exitCode = -1
		}
		c.logs.CloseWrite()
	}()
	return nil
}

func (e *ExecRuntime) List(ctx context.Context, prefix string) ([]Container, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Container
	for name, c := range e.containers {
		if strings.HasPrefix(name, prefix) {
			out = append(out, c.snapshot())
		}
	}
	return out, nil
}

func (e *ExecRuntime) Inspect(ctx context.Context, nameOrID string) (*Container, error) {
	c := e.lookup(nameOrID)
	if c == nil {
		return nil, nil
	}
	snap := c.snapshot()
	return &snap, nil
}

func (e *ExecRuntime) Logs(ctx context.Context, nameOrID string, follow bool) (io.ReadCloser, error) {
	c := e.lookup(nameOrID)
	if c == nil {
		return nil, cierr.New(cierr.NotFound, "container not found")
	}
	if follow {
		return c.logs.FollowReader(), nil
	}
	return io.NopCloser(bytes.NewReader(c.logs.Snapshot())), nil
}

func (e *ExecRuntime) Remove(ctx context.Context, nameOrID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, c := range e.containers {
		if name == nameOrID || c.id == nameOrID {
			c.mu.Lock()
			if c.cmd != nil && c.status == StatusRunning {
				c.cmd.Process.Kill()
			}
			c.mu.Unlock()
			delete(e.containers, name)
			return nil
		}
	}
	return nil
}

func (e *ExecRuntime) lookup(nameOrID string) *execContainer {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.containers[nameOrID]; ok {
		return c
	}
	for _, c := range e.containers {
		if c.id == nameOrID {
			return c
		}
	}
	return nil
}

func (c *execContainer) snapshot() Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Container{
		ID:         c.id,
		Name:       c.name,
		Status:     c.status,
		ExitCode:   c.exitCode,
		StartedAt:  c.started,
		FinishedAt: c.finished,
	}
}

// logBuffer accumulates process output and hands out readers that either
// snapshot what has been written or follow the stream until CloseWrite.
type logBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

func newLogBuffer() *logBuffer {
	b := &logBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.buf.Write(p)
	b.cond.Broadcast()
	return n, err
}

// CloseWrite marks the stream complete, waking any followers.
func (b *logBuffer) CloseWrite() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

func (b *logBuffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

// FollowReader returns a reader that starts at the beginning of the
// stream and blocks at the tail until more output arrives or the stream
// closes. Closing the reader unblocks a pending Read.
func (b *logBuffer) FollowReader() io.ReadCloser {
	return &followReader{buf: b}
}

type followReader struct {
	buf      *logBuffer
	offset   int
	detached bool
}

func (r *followReader) Read(p []byte) (int, error) {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if r.detached {
			return 0, io.EOF
		}
		data := b.buf.Bytes()
		if r.offset < len(data) {
			n := copy(p, data[r.offset:])
			r.offset += n
			return n, nil
		}
		if b.closed {
			return 0, io.EOF
		}
		b.cond.Wait()
	}
}

func (r *followReader) Close() error {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	r.detached = true
	b.cond.Broadcast()
	return nil
}
