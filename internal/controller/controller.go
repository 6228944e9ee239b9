package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ciforge/internal/logger"
)

// Controller runs the reconciliation loop on a fixed interval. Exactly
// one controller instance may run against a given store; that contract is
// the operator's to keep.
type Controller struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *slog.Logger
}

// New creates a controller ticking every interval.
func New(r *Reconciler, interval time.Duration, log *slog.Logger) *Controller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Controller{
		reconciler: r,
		interval:   interval,
		logger:     log,
	}
}

// Run blocks until ctx is cancelled, reconciling on every tick. The first
// pass runs immediately: startup recovery is the same algorithm as steady
// state, so a crashed controller picks up exactly where it left off.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller starting", "interval", c.interval.String())

	c.reconcile(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("controller stopping")
			return nil
		case <-ticker.C:
			c.reconcile(ctx)
		}
	}
}

// reconcile runs one pass. Errors are logged and absorbed; the next tick
// retries against fresh state.
func (c *Controller) reconcile(ctx context.Context) {
	passCtx := logger.WithPassID(ctx, uuid.NewString())
	if err := c.reconciler.ReconcileOnce(passCtx); err != nil {
		logger.FromContext(passCtx, c.logger).Error("reconciliation pass failed", "error", err)
	}
}
