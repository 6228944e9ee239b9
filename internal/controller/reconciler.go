// Package controller implements the reconciliation loop that converges
// container-runtime state to the desired state declared in the store.
package controller

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ciforge/internal/runtime"
	"ciforge/internal/store"
)

// Store is the slice of the store the reconciler needs.
type Store interface {
	store.JobStore
	store.JobEventStore
}

// Config holds the reconciler's tunables.
type Config struct {
	// NamespacePrefix partitions container names between deployments.
	NamespacePrefix string

	// WorkDir is where submissions are extracted before being mounted
	// into containers.
	WorkDir string

	// OpTimeout bounds the work done for a single job within one pass so
	// a hung runtime call cannot stall the others.
	OpTimeout time.Duration
}

// Reconciler performs level-triggered reconciliation passes. It acts on
// the current snapshot of store and runtime state, never on events, so a
// crashed and restarted controller recovers with the same code path it
// uses in steady state.
type Reconciler struct {
	store   Store
	runtime runtime.Runtime
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewReconciler creates a reconciler.
func NewReconciler(s Store, rt runtime.Runtime, cfg Config, logger *slog.Logger) *Reconciler {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 30 * time.Second
	}
	return &Reconciler{
		store:   s,
		runtime: rt,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer("ciforge-controller"),
	}
}

// ReconcileOnce executes one reconciliation pass. Per-job work is
// dispatched concurrently but every action completes before the pass
// returns; passes never overlap. Each action is idempotent, so repeating
// a pass on an unchanged world is a no-op.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "reconcile_once")
	defer span.End()

	jobs, err := r.store.ListNonTerminalJobs(ctx)
	if err != nil {
		return err
	}

	containers, err := r.runtime.List(ctx, r.cfg.NamespacePrefix)
	if err != nil {
		return err
	}
	byName := make(map[string]runtime.Container, len(containers))
	for _, c := range containers {
		byName[c.Name] = c
	}

	span.SetAttributes(
		attribute.Int("jobs.non_terminal", len(jobs)),
		attribute.Int("containers.observed", len(containers)),
	)

	// Terminal transitions first: finalizing exited containers frees
	// runtime capacity before new creations claim it.
	var wg sync.WaitGroup
	for _, job := range jobs {
		if job.Status != store.JobStatusRunning {
			continue
		}
		wg.Add(1)
		go func(job *store.Job) {
			defer wg.Done()
			r.reconcileJob(ctx, job, byName)
		}(job)
	}
	wg.Wait()

	for _, job := range jobs {
		if job.Status != store.JobStatusQueued {
			continue
		}
		wg.Add(1)
		go func(job *store.Job) {
			defer wg.Done()
			r.reconcileJob(ctx, job, byName)
		}(job)
	}
	wg.Wait()

	r.cleanupUnclaimedContainers(ctx, containers, jobs)
	return nil
}

// reconcileJob applies exactly one action for a (job, container) pair.
// Failures are logged with the job id and never abort the pass; the job
// is retried on the next tick.
func (r *Reconciler) reconcileJob(ctx context.Context, job *store.Job, byName map[string]runtime.Container) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "reconcile_job",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.status", string(job.Status)),
		))
	defer span.End()

	name := runtime.ContainerName(r.cfg.NamespacePrefix, job.ID)
	container, observed := byName[name]

	var err error
	switch job.Status {
	case store.JobStatusQueued:
		// A stale container_id on a queued job means a previous attempt
		// died before the status update committed; creation is keyed on
		// the deterministic name, so re-running it converges.
		err = r.startJob(ctx, job, name, observed, container)
	case store.JobStatusRunning:
		switch {
		case !observed:
			r.logger.Error("container for running job disappeared", "job_id", job.ID)
			err = r.failJob(ctx, job, "Container lost during execution")
		case container.Exited():
			err = r.finalizeJob(ctx, job, container)
		default:
			// Container still running; nothing to converge.
		}
	}

	if err != nil {
		r.logger.Error("error reconciling job", "job_id", job.ID, "error", err)
	}
}

// startJob drives a queued job to running: extract the stashed zip,
// create the container, start it, and record the transition. Every step
// tolerates a crashed predecessor having done part of the work.
func (r *Reconciler) startJob(ctx context.Context, job *store.Job, name string, observed bool, container runtime.Container) error {
	if observed && container.Exited() {
		// We crashed after starting the container and it already ran to
		// completion. Record running so the next pass finalizes it.
		return r.markRunning(ctx, job, container.ID)
	}

	if !observed {
		existing, err := r.runtime.Inspect(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			observed = true
			container = *existing
		}
	}

	if !observed {
		if job.ZipFilePath == "" {
			return r.failJob(ctx, job, "No submission available for job")
		}
		if _, err := os.Stat(job.ZipFilePath); err != nil {
			return r.failJob(ctx, job, "Submission zip not found: "+job.ZipFilePath)
		}

		workspace := workspacePath(r.cfg.WorkDir, name)
		if err := extractZip(job.ZipFilePath, workspace); err != nil {
			os.RemoveAll(workspace)
			return r.failJob(ctx, job, "Failed to extract submission: "+err.Error())
		}

		id, err := r.runtime.Create(ctx, runtime.CreateOptions{Name: name, WorkspaceDir: workspace})
		if err != nil {
			os.RemoveAll(workspace)
			return r.failJob(ctx, job, "Failed to create container: "+err.Error())
		}
		container = runtime.Container{ID: id, Name: name}
	}

	if err := r.runtime.Start(ctx, container.ID); err != nil {
		return r.failJob(ctx, job, "Failed to start container: "+err.Error())
	}

	if err := r.markRunning(ctx, job, container.ID); err != nil {
		return err
	}

	// The container holds the extracted copy now; the stash is ours to
	// delete.
	r.removeStash(ctx, job)
	r.logger.Info("job started", "job_id", job.ID, "container_id", container.ID)
	return nil
}

func (r *Reconciler) markRunning(ctx context.Context, job *store.Job, containerID string) error {
	now := time.Now().UTC()
	return r.store.UpdateJobStatus(ctx, job.ID, store.JobStatusRunning, &now, &containerID)
}

// finalizeJob collects an exited container's verdict, persists its output
// for replay, and releases the container and scratch directory.
func (r *Reconciler) finalizeJob(ctx context.Context, job *store.Job, container runtime.Container) error {
	success := container.ExitCode == 0

	if err := r.store.CompleteJob(ctx, job.ID, store.JobStatusCompleted, success, time.Now().UTC()); err != nil {
		return err
	}

	// Persist the captured output so replay outlives the container. A
	// failure here costs replay for a removed container, nothing more.
	if output := r.captureLogs(ctx, container.ID); output != "" {
		event := &store.JobEvent{
			JobID:     job.ID,
			Type:      store.JobEventTypeLog,
			Data:      &output,
			Timestamp: time.Now().UTC(),
		}
		if err := r.store.AppendJobEvent(ctx, event); err != nil {
			r.logger.Warn("failed to persist job output", "job_id", job.ID, "error", err)
		}
	}
	completeEvent := &store.JobEvent{
		JobID:     job.ID,
		Type:      store.JobEventTypeComplete,
		Success:   &success,
		Timestamp: time.Now().UTC(),
	}
	if err := r.store.AppendJobEvent(ctx, completeEvent); err != nil {
		r.logger.Warn("failed to persist completion event", "job_id", job.ID, "error", err)
	}

	r.releaseJobResources(ctx, job, container.Name)
	r.logger.Info("job finalized", "job_id", job.ID, "success", success, "exit_code", container.ExitCode)
	return nil
}

// failJob moves a job to failed with a terminal log event explaining why.
func (r *Reconciler) failJob(ctx context.Context, job *store.Job, reason string) error {
	r.logger.Error("job failed", "job_id", job.ID, "reason", reason)

	if err := r.store.CompleteJob(ctx, job.ID, store.JobStatusFailed, false, time.Now().UTC()); err != nil {
		return err
	}

	msg := reason + "\n"
	logEvent := &store.JobEvent{
		JobID:     job.ID,
		Type:      store.JobEventTypeLog,
		Data:      &msg,
		Timestamp: time.Now().UTC(),
	}
	if err := r.store.AppendJobEvent(ctx, logEvent); err != nil {
		r.logger.Warn("failed to persist failure reason", "job_id", job.ID, "error", err)
	}
	failed := false
	completeEvent := &store.JobEvent{
		JobID:     job.ID,
		Type:      store.JobEventTypeComplete,
		Success:   &failed,
		Timestamp: time.Now().UTC(),
	}
	if err := r.store.AppendJobEvent(ctx, completeEvent); err != nil {
		r.logger.Warn("failed to persist completion event", "job_id", job.ID, "error", err)
	}

	name := runtime.ContainerName(r.cfg.NamespacePrefix, job.ID)
	r.releaseJobResources(ctx, job, name)
	return nil
}

// captureLogs snapshots a container's output without following.
func (r *Reconciler) captureLogs(ctx context.Context, containerID string) string {
	reader, err := r.runtime.Logs(ctx, containerID, false)
	if err != nil {
		return ""
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return ""
	}
	return string(data)
}

// releaseJobResources removes the container, scratch directory and
// stashed zip for a job that reached a terminal state. Every removal is
// idempotent.
func (r *Reconciler) releaseJobResources(ctx context.Context, job *store.Job, containerName string) {
	if err := r.runtime.Remove(ctx, containerName); err != nil {
		r.logger.Warn("failed to remove container", "job_id", job.ID, "error", err)
	}
	if err := os.RemoveAll(workspacePath(r.cfg.WorkDir, containerName)); err != nil {
		r.logger.Warn("failed to remove workspace", "job_id", job.ID, "error", err)
	}
	r.removeStash(ctx, job)
}

func (r *Reconciler) removeStash(ctx context.Context, job *store.Job) {
	if job.ZipFilePath == "" {
		return
	}
	if err := os.Remove(job.ZipFilePath); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("failed to remove stashed zip", "job_id", job.ID, "error", err)
		return
	}
	if err := r.store.ClearZipFilePath(ctx, job.ID); err != nil {
		r.logger.Warn("failed to clear zip path", "job_id", job.ID, "error", err)
	}
	job.ZipFilePath = ""
}

// cleanupUnclaimedContainers removes containers in our namespace with no
// live job claiming them: leftovers of terminal jobs, and true orphans
// whose job row is gone.
func (r *Reconciler) cleanupUnclaimedContainers(ctx context.Context, containers []runtime.Container, jobs []*store.Job) {
	claimed := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		claimed[runtime.ContainerName(r.cfg.NamespacePrefix, job.ID)] = struct{}{}
	}

	for _, c := range containers {
		if _, ok := claimed[c.Name]; ok {
			continue
		}

		jobID, ok := runtime.JobIDFromName(r.cfg.NamespacePrefix, c.Name)
		if !ok {
			continue
		}

		job, err := r.store.GetJob(ctx, jobID, "")
		if err != nil {
			r.logger.Error("error looking up job for container", "container", c.Name, "error", err)
			continue
		}

		if job == nil {
			r.logger.Warn("removing orphaned container", "container", c.Name)
		}
		r.releaseJobResources(ctx, orDangling(job, jobID), c.Name)
	}
}

// orDangling substitutes a zero job record when only the container name
// is left to go on.
func orDangling(job *store.Job, jobID string) *store.Job {
	if job != nil {
		return job
	}
	return &store.Job{ID: jobID}
}
