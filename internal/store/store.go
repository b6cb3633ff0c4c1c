package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrStatusConflict is returned when a compare-and-set status update finds the
// job in a status other than the expected ones.
var ErrStatusConflict = errors.New("job status conflict")

// JobStore is the job-state store. The batch runner and lifecycle controller
// only touch job rows through it.
type JobStore interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// TransitionJob moves a job to status `to` only if its current status is
	// one of `from`. Returns ErrStatusConflict when the guard does not hold.
	TransitionJob(ctx context.Context, id uuid.UUID, from []models.JobStatus, to models.JobStatus, opts ...JobUpdateOption) (*models.Job, error)
	// UpdateJobProgress writes counters for a running job. Returns
	// ErrStatusConflict if the job is no longer running.
	UpdateJobProgress(ctx context.Context, id uuid.UUID, p JobProgress) error
	ListStaleJobs(ctx context.Context, status models.JobStatus, updatedBefore time.Time) ([]*models.Job, error)
}

// ResultStore persists translation results. Results are append-only and
// unique per (job, row id).
type ResultStore interface {
	// InsertResults bulk-inserts results in one statement and returns the row
	// ids that were actually stored. Rows whose (job, row id) already exists
	// are not stored and not returned.
	InsertResults(ctx context.Context, results []*models.TranslationResult) ([]string, error)
	CountResults(ctx context.Context, jobID uuid.UUID) (int, error)
	// ListResults returns results in creation order.
	ListResults(ctx context.Context, jobID uuid.UUID, offset, limit int) ([]*models.TranslationResult, error)
	ListResultRowIDs(ctx context.Context, jobID uuid.UUID) ([]string, error)
	DeleteResults(ctx context.Context, jobID uuid.UUID) (int64, error)
}

// ResourceStore reads the collaborator records a job depends on.
type ResourceStore interface {
	GetDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
	GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetModel(ctx context.Context, id uuid.UUID) (*models.Model, error)
	GetProviderKey(ctx context.Context, id uuid.UUID) (*models.ProviderKey, error)
	ListGlossaryTerms(ctx context.Context, moduleID uuid.UUID) ([]*models.GlossaryTerm, error)
}

// APIKeyStore backs operator authentication.
type APIKeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	JobStore
	ResultStore
	ResourceStore
	APIKeyStore
}

// JobProgress is the set of counters recomputed after each batch.
type JobProgress struct {
	Progress       int
	TotalItems     int
	ProcessedItems int
	FailedItems    int
	TotalTokens    int
	TotalCost      float64
}

type jobUpdateParams struct {
	ErrorMessage *string
	Progress     *JobProgress
	SkippedRows  []models.SkippedRow
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithProgress(jp JobProgress) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Progress = &jp
	}
}

func WithSkippedRows(rows []models.SkippedRow) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.SkippedRows = rows
	}
}

// ApplyJobUpdateOptions resolves options into their effect on a job. Used by
// in-memory JobStore implementations.
func ApplyJobUpdateOptions(job *models.Job, opts ...JobUpdateOption) {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		job.ErrorMessage = &msg
	}
	if params.Progress != nil {
		applyProgress(job, *params.Progress)
	}
	if params.SkippedRows != nil {
		job.SkippedRows = params.SkippedRows
	}
}

func applyProgress(job *models.Job, p JobProgress) {
	job.Progress = p.Progress
	job.TotalItems = p.TotalItems
	job.ProcessedItems = p.ProcessedItems
	job.FailedItems = p.FailedItems
	job.TotalTokens = p.TotalTokens
	job.TotalCost = p.TotalCost
}

// ApplyProgress copies counters onto a job.
func ApplyProgress(job *models.Job, p JobProgress) {
	applyProgress(job, p)
}
