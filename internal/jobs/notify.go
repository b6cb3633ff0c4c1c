package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/internal/cache"
	"github.com/kiranshivaraju/batchlingo/internal/events"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

// StatusCache mirrors job status for cheap polling. Optional.
type StatusCache interface {
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, ttl time.Duration) error
}

// notifier fans a status change out to the status mirror and the event
// publisher. Neither is allowed to affect the job itself.
type notifier struct {
	cache  StatusCache
	events events.Publisher
	logger *slog.Logger
}

func newNotifier(sc StatusCache, pub events.Publisher, logger *slog.Logger) notifier {
	if pub == nil {
		pub = events.Noop{}
	}
	return notifier{cache: sc, events: events.Logged(pub, logger), logger: logger}
}

func (n notifier) changed(ctx context.Context, job *models.Job, t events.Type) {
	ctx = context.WithoutCancel(ctx)
	n.mirror(ctx, job)
	_ = n.events.Publish(ctx, events.FromJob(t, job))
}

// mirror updates the status mirror only.
func (n notifier) mirror(ctx context.Context, job *models.Job) {
	if n.cache != nil {
		if err := n.cache.SetJobStatus(ctx, job.ID, job.Status, cache.JobStatusTTL); err != nil {
			n.logger.Warn("job status mirror update failed",
				"job_id", job.ID.String(),
				"status", string(job.Status),
				"error", err,
			)
		}
	}
}
