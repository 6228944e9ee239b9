package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"ciforge/internal/cierr"
)

// testImage is the environment every submitted project runs in.
const testImage = "python:3.12-slim"

// workspaceMount is the fixed path the extracted project tree is mounted
// at inside the container.
const workspaceMount = "/workspace"

// testCommand installs the project's declared dependencies and runs its
// test suite with verbose output on stdout. The process exit status is the
// job's verdict.
var testCommand = []string{"sh", "-c", "pip install -q -r requirements.txt && python -m pytest -v"}

// DockerRuntime implements Runtime using the Docker SDK.
type DockerRuntime struct {
	client *client.Client
}

// NewDockerRuntime creates a Docker-based runtime.
func NewDockerRuntime() (*DockerRuntime, error) {
	// Initializes client from standard environment variables (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, cierr.Wrap(cierr.RuntimeUnavailable, "creating Docker client", err)
	}
	return &DockerRuntime{client: cli}, nil
}

// Create prepares a container mounting opts.WorkspaceDir read-only at the
// workspace path, without starting it.
func (d *DockerRuntime) Create(ctx context.Context, opts CreateOptions) (string, error) {
	// Check if the image exists locally first to save time.
	if _, err := d.client.ImageInspect(ctx, testImage); err != nil {
		reader, err := d.client.ImagePull(ctx, testImage, image.PullOptions{})
		if err != nil {
			return "", cierr.Wrap(cierr.RuntimeUnavailable, fmt.Sprintf("pulling image %s", testImage), err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	containerConfig := &container.Config{
		Image:      testImage,
		Cmd:        testCommand,
		WorkingDir: workspaceMount,
		Tty:        true,
	}
	hostConfig := &container.HostConfig{
		Binds: []string{opts.WorkspaceDir + ":" + workspaceMount + ":ro"},
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, opts.Name)
	if err != nil {
		if errdefs.IsConflict(err) {
			// A container by this name already exists; reuse it so a
			// repeated pass stays idempotent.
			if existing, ierr := d.Inspect(ctx, opts.Name); ierr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return "", cierr.Wrap(cierr.RuntimeUnavailable, "creating container", err)
	}
	return resp.ID, nil
}

// Start begins execution of a created container. Starting an already
// running container is a no-op on the Docker side.
func (d *DockerRuntime) Start(ctx context.Context, nameOrID string) error {
	if err := d.client.ContainerStart(ctx, nameOrID, container.StartOptions{}); err != nil {
		return cierr.Wrap(cierr.RuntimeUnavailable, "starting container", err)
	}
	return nil
}

// List returns every container (in any state) whose name carries prefix.
func (d *DockerRuntime) List(ctx context.Context, prefix string) ([]Container, error) {
	summaries, err := d.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", prefix)),
	})
	if err != nil {
		return nil, cierr.Wrap(cierr.RuntimeUnavailable, "listing containers", err)
	}

	containers := make([]Container, 0, len(summaries))
	for _, s := range summaries {
		name := ""
		for _, n := range s.Names {
			n = strings.TrimPrefix(n, "/")
			// The name filter substring-matches; require a real prefix.
			if strings.HasPrefix(n, prefix) {
				name = n
				break
			}
		}
		if name == "" {
			continue
		}

		c := Container{
			ID:     s.ID,
			Name:   name,
			Status: s.State,
		}
		if c.Exited() {
			// The list endpoint does not carry exit codes; fetch them.
			if inspected, err := d.Inspect(ctx, s.ID); err == nil && inspected != nil {
				c.ExitCode = inspected.ExitCode
				c.StartedAt = inspected.StartedAt
				c.FinishedAt = inspected.FinishedAt
			}
		}
		containers = append(containers, c)
	}
	return containers, nil
}

// Inspect returns the container's current state, or nil if Docker has no
// container by that name or id.
func (d *DockerRuntime) Inspect(ctx context.Context, nameOrID string) (*Container, error) {
	resp, err := d.client.ContainerInspect(ctx, nameOrID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, nil
		}
		return nil, cierr.Wrap(cierr.RuntimeUnavailable, "inspecting container", err)
	}

	c := &Container{
		ID:     resp.ID,
		Name:   strings.TrimPrefix(resp.Name, "/"),
		Status: resp.State.Status,
	}
	if resp.State.ExitCode != 0 || resp.State.Status == StatusExited {
		c.ExitCode = resp.State.ExitCode
	}
	if t, err := time.Parse(time.RFC3339Nano, resp.State.StartedAt); err == nil {
		c.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, resp.State.FinishedAt); err == nil {
		c.FinishedAt = t
	}
	return c, nil
}

// Logs returns the container's combined stdout/stderr. The container runs
// with a TTY so the stream arrives unmultiplexed.
func (d *DockerRuntime) Logs(ctx context.Context, nameOrID string, follow bool) (io.ReadCloser, error) {
	reader, err := d.client.ContainerLogs(ctx, nameOrID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, cierr.Wrap(cierr.NotFound, "container not found", err)
		}
		return nil, cierr.Wrap(cierr.RuntimeUnavailable, "streaming container logs", err)
	}
	return reader, nil
}

// Remove force-deletes the container. Absent containers are not an error
// so cleanup stays idempotent.
func (d *DockerRuntime) Remove(ctx context.Context, nameOrID string) error {
	err := d.client.ContainerRemove(ctx, nameOrID, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return cierr.Wrap(cierr.RuntimeUnavailable, "removing container", err)
	}
	return nil
}
