// Package events publishes job lifecycle notifications.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

type Type string

const (
	JobStarted   Type = "job.started"
	JobProgress  Type = "job.progress"
	JobCompleted Type = "job.completed"
	JobFailed    Type = "job.failed"
	JobCancelled Type = "job.cancelled"
)

// Event is a snapshot of a job at the moment something happened to it.
type Event struct {
	Type           Type             `json:"type"`
	JobID          uuid.UUID        `json:"job_id"`
	Status         models.JobStatus `json:"status"`
	Progress       int              `json:"progress"`
	TotalItems     int              `json:"total_items"`
	ProcessedItems int              `json:"processed_items"`
	FailedItems    int              `json:"failed_items"`
	Error          string           `json:"error,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

func FromJob(t Type, job *models.Job) Event {
	ev := Event{
		Type:           t,
		JobID:          job.ID,
		Status:         job.Status,
		Progress:       job.Progress,
		TotalItems:     job.TotalItems,
		ProcessedItems: job.ProcessedItems,
		FailedItems:    job.FailedItems,
		OccurredAt:     time.Now().UTC(),
	}
	if job.ErrorMessage != nil {
		ev.Error = *job.ErrorMessage
	}
	return ev
}

// TerminalType maps a terminal status to its event type.
func TerminalType(s models.JobStatus) Type {
	switch s {
	case models.JobStatusCompleted:
		return JobCompleted
	case models.JobStatusCancelled:
		return JobCancelled
	default:
		return JobFailed
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Logged wraps a Publisher so delivery failures are logged and swallowed.
// Notifications never affect job processing.
func Logged(p Publisher, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &logged{next: p, logger: logger}
}

type logged struct {
	next   Publisher
	logger *slog.Logger
}

func (l *logged) Publish(ctx context.Context, ev Event) error {
	if err := l.next.Publish(ctx, ev); err != nil {
		l.logger.Warn("event publish failed",
			"type", string(ev.Type),
			"job_id", ev.JobID.String(),
			"error", err,
		)
	}
	return nil
}
