package runtime

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func newTestExecRuntime(script string) *ExecRuntime {
	rt := NewExecRuntime()
	rt.Command = []string{"sh", "-c", script}
	return rt
}

func waitForExit(t *testing.T, rt *ExecRuntime, name string) Container {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c, err := rt.Inspect(context.Background(), name)
		if err != nil {
			t.Fatalf("Inspect failed: %v", err)
		}
		if c != nil && c.Exited() {
			return *c
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("container did not exit in time")
	return Container{}
}

func TestExecRuntime_Lifecycle(t *testing.T) {
	ctx := context.Background()
	rt := newTestExecRuntime("echo hello")

	id, err := rt.Create(ctx, CreateOptions{Name: "ciforge_j1", WorkspaceDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a container id")
	}

	c, err := rt.Inspect(ctx, "ciforge_j1")
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if c.Status != StatusCreated {
		t.Errorf("got status %s, want created", c.Status)
	}

	if err := rt.Start(ctx, "ciforge_j1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	exited := waitForExit(t, rt, "ciforge_j1")
	if exited.ExitCode != 0 {
		t.Errorf("got exit code %d, want 0", exited.ExitCode)
	}

	logs, err := rt.Logs(ctx, "ciforge_j1", false)
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	data, _ := io.ReadAll(logs)
	logs.Close()
	if !strings.Contains(string(data), "hello") {
		t.Errorf("logs missing output, got %q", string(data))
	}

	if err := rt.Remove(ctx, "ciforge_j1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	c, err = rt.Inspect(ctx, "ciforge_j1")
	if err != nil {
		t.Fatalf("Inspect after remove failed: %v", err)
	}
	if c != nil {
		t.Error("expected nil after remove")
	}

	// Removing an absent container stays silent.
	if err := rt.Remove(ctx, "ciforge_j1"); err != nil {
		t.Errorf("second Remove should be a no-op, got %v", err)
	}
}

func TestExecRuntime_NonZeroExit(t *testing.T) {
	ctx := context.Background()
	rt := newTestExecRuntime("exit 3")

	if _, err := rt.Create(ctx, CreateOptions{Name: "ciforge_j2", WorkspaceDir: t.TempDir()}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := rt.Start(ctx, "ciforge_j2"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	exited := waitForExit(t, rt, "ciforge_j2")
	if exited.ExitCode != 3 {
		t.Errorf("got exit code %d, want 3", exited.ExitCode)
	}
}

func TestExecRuntime_CreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rt := newTestExecRuntime("echo hi")

	id1, err := rt.Create(ctx, CreateOptions{Name: "ciforge_j3", WorkspaceDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	id2, err := rt.Create(ctx, CreateOptions{Name: "ciforge_j3", WorkspaceDir: t.TempDir()})
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected the same container, got %s and %s", id1, id2)
	}
}

func TestExecRuntime_FollowLogsEndAtExit(t *testing.T) {
	ctx := context.Background()
	rt := newTestExecRuntime("echo one; echo two")

	if _, err := rt.Create(ctx, CreateOptions{Name: "ciforge_j4", WorkspaceDir: t.TempDir()}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := rt.Start(ctx, "ciforge_j4"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	logs, err := rt.Logs(ctx, "ciforge_j4", true)
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	defer logs.Close()

	// Follow mode reaches EOF once the process exits.
	data, err := io.ReadAll(logs)
	if err != nil {
		t.Fatalf("reading follow stream: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "one") || !strings.Contains(out, "two") {
		t.Errorf("follow stream missing output, got %q", out)
	}
}

func TestExecRuntime_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	rt := newTestExecRuntime("echo hi")

	rt.Create(ctx, CreateOptions{Name: "ciforge_a", WorkspaceDir: t.TempDir()})
	rt.Create(ctx, CreateOptions{Name: "other_b", WorkspaceDir: t.TempDir()})

	containers, err := rt.List(ctx, "ciforge_")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(containers) != 1 || containers[0].Name != "ciforge_a" {
		t.Errorf("unexpected list result: %+v", containers)
	}
}
