package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/internal/config"
	"github.com/kiranshivaraju/batchlingo/internal/events"
	"github.com/kiranshivaraju/batchlingo/internal/store"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

// WatchdogStore is the job access the watchdog needs.
type WatchdogStore interface {
	ListStaleJobs(ctx context.Context, status models.JobStatus, updatedBefore time.Time) ([]*models.Job, error)
	TransitionJob(ctx context.Context, id uuid.UUID, from []models.JobStatus, to models.JobStatus, opts ...store.JobUpdateOption) (*models.Job, error)
}

// Watchdog fails running jobs that have stopped making progress and that no
// task in this process is executing, e.g. after a crash.
type Watchdog struct {
	store    WatchdogStore
	active   func(uuid.UUID) bool
	interval time.Duration
	stale    time.Duration
	notify   notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewWatchdog(st WatchdogStore, reg *Registry, cfg config.WatchdogConfig, sc StatusCache, pub events.Publisher, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	active := func(uuid.UUID) bool { return false }
	if reg != nil {
		active = reg.Active
	}
	return &Watchdog{
		store:    st,
		active:   active,
		interval: cfg.Interval,
		stale:    cfg.StaleAfter,
		notify:   newNotifier(sc, pub, logger),
		logger:   logger,
		now:      time.Now,
	}
}

func (w *Watchdog) reason() string {
	return fmt.Sprintf("Automatically marked as failed by watchdog (no progress > %s)", w.stale)
}

// Sweep fails every stale running job once and returns how many it failed.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	cutoff := w.now().UTC().Add(-w.stale)
	stale, err := w.store.ListStaleJobs(ctx, models.JobStatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	failed := 0
	for _, job := range stale {
		if w.active(job.ID) {
			continue
		}
		updated, err := w.store.TransitionJob(ctx, job.ID,
			[]models.JobStatus{models.JobStatusRunning}, models.JobStatusFailed,
			store.WithErrorMessage(w.reason()))
		if errors.Is(err, store.ErrStatusConflict) {
			continue
		}
		if err != nil {
			w.logger.Error("watchdog could not fail stale job",
				"job_id", job.ID.String(),
				"error", err,
			)
			continue
		}
		failed++
		w.logger.Warn("stale job marked as failed",
			"job_id", job.ID.String(),
			"last_update", job.UpdatedAt,
		)
		w.notify.changed(ctx, updated, events.JobFailed)
	}
	return failed, nil
}

// Run sweeps every interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.Sweep(ctx)
			if err != nil {
				w.logger.Error("watchdog sweep failed", "error", err)
				continue
			}
			if n > 0 {
				w.logger.Info("watchdog sweep finished", "failed_jobs", n)
			}
		}
	}
}
