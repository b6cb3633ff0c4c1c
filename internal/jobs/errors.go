package jobs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

var (
	ErrInvalidState   = errors.New("invalid job state")
	ErrAlreadyRunning = errors.New("job already has a running task")
	ErrShuttingDown   = errors.New("job registry is shutting down")
)

// InvalidStateError reports an operation the job's current status does not allow.
// It matches ErrInvalidState with errors.Is.
type InvalidStateError struct {
	JobID   uuid.UUID
	Op      string
	Current models.JobStatus
}

func (e *InvalidStateError) Error() string {
	switch e.Op {
	case "start":
		return fmt.Sprintf("Job is not in pending or queued status. Current status: %s", e.Current)
	default:
		return fmt.Sprintf("cannot %s job %s in status %s", e.Op, e.JobID, e.Current)
	}
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}
