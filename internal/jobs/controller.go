// Package jobs owns the job state machine: starting and cancelling jobs,
// running them in the background and making sure every run ends terminal.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/internal/blob"
	"github.com/kiranshivaraju/batchlingo/internal/events"
	"github.com/kiranshivaraju/batchlingo/internal/glossary"
	"github.com/kiranshivaraju/batchlingo/internal/rows"
	"github.com/kiranshivaraju/batchlingo/internal/store"
	"github.com/kiranshivaraju/batchlingo/internal/translate"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

const failWriteTimeout = 10 * time.Second

var (
	startable  = []models.JobStatus{models.JobStatusPending, models.JobStatusQueued}
	cancelable = []models.JobStatus{models.JobStatusPending, models.JobStatusQueued, models.JobStatusRunning}
	failable   = cancelable
)

// Store is what the controller reads and writes.
type Store interface {
	store.JobStore
	store.ResultStore
	store.ResourceStore
}

// ContentFetcher loads dataset content kept in object storage.
type ContentFetcher = blob.Fetcher

// Runner executes a running job over its rows.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID, rows []models.Row, jc *translate.JobContext) (*models.Job, error)
}

type Deps struct {
	Store  Store
	Runner Runner
	// Blobs is optional; without it datasets must carry inline content.
	Blobs  ContentFetcher
	Cache  StatusCache
	Events events.Publisher
	Logger *slog.Logger
}

type Controller struct {
	store    Store
	runner   Runner
	blobs    ContentFetcher
	glossary *glossary.Loader
	registry *Registry
	notify   notifier
	logger   *slog.Logger
}

func NewController(d Deps) *Controller {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		store:    d.Store,
		runner:   d.Runner,
		blobs:    d.Blobs,
		glossary: glossary.NewLoader(d.Store, logger),
		notify:   newNotifier(d.Cache, d.Events, logger),
		logger:   logger,
	}
	c.registry = NewRegistry(c.fail, logger)
	return c
}

// Registry exposes the background tasks, for the watchdog and shutdown.
func (c *Controller) Registry() *Registry {
	return c.registry
}

func (c *Controller) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return c.store.GetJob(ctx, id)
}

// Start moves a pending or queued job to running and launches its run. It
// returns as soon as the transition is stored. Any other status yields an
// InvalidStateError and changes nothing. When the registry refuses the task
// because the server is shutting down, the job is put back in its previous
// status so it can be started again later.
func (c *Controller) Start(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	prior, err := c.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}
	if !slices.Contains(startable, prior.Status) {
		return nil, &InvalidStateError{JobID: id, Op: "start", Current: prior.Status}
	}
	if c.registry.Closed() {
		return nil, ErrShuttingDown
	}

	job, err := c.store.TransitionJob(ctx, id, startable, models.JobStatusRunning)
	if errors.Is(err, store.ErrStatusConflict) {
		return nil, c.invalidState(ctx, id, "start")
	}
	if err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}

	c.notify.changed(ctx, job, events.JobStarted)

	snapshot := *job
	err = c.registry.Go(id, func(ctx context.Context) error {
		return c.execute(ctx, &snapshot)
	})
	switch {
	case errors.Is(err, ErrShuttingDown):
		c.restore(ctx, id, prior.Status)
		return nil, err
	case err != nil:
		c.fail(ctx, id, "Background processing failed: "+err.Error())
		return nil, fmt.Errorf("launch job: %w", err)
	}

	c.logger.Info("job started", "job_id", id.String())
	return job, nil
}

// restore undoes a start whose task never launched.
func (c *Controller) restore(ctx context.Context, id uuid.UUID, status models.JobStatus) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()

	job, err := c.store.TransitionJob(ctx, id, []models.JobStatus{models.JobStatusRunning}, status)
	if err != nil {
		c.logger.Error("failed to restore job after refused start",
			"job_id", id.String(),
			"status", string(status),
			"error", err,
		)
		return
	}
	c.notify.mirror(ctx, job)
	c.logger.Warn("job start refused during shutdown, status restored",
		"job_id", id.String(),
		"status", string(status),
	)
}

// Cancel stops a job at its next batch boundary. Cancelling a job that is
// already terminal changes nothing and returns it as stored.
func (c *Controller) Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := c.store.TransitionJob(ctx, id, cancelable, models.JobStatusCancelled)
	if errors.Is(err, store.ErrStatusConflict) {
		current, getErr := c.store.GetJob(ctx, id)
		if getErr != nil {
			return nil, fmt.Errorf("cancel job: %w", getErr)
		}
		if current.Status.Terminal() {
			c.logger.Info("cancel on terminal job ignored",
				"job_id", id.String(),
				"status", string(current.Status),
			)
			return current, nil
		}
		return nil, &InvalidStateError{JobID: id, Op: "cancel", Current: current.Status}
	}
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}

	c.logger.Info("job cancelled", "job_id", id.String())
	c.notify.changed(ctx, job, events.JobCancelled)
	return job, nil
}

// ClearResults deletes every stored result of a job that is not running.
func (c *Controller) ClearResults(ctx context.Context, id uuid.UUID) (int64, error) {
	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		return 0, err
	}
	if job.Status == models.JobStatusRunning || c.registry.Active(id) {
		return 0, &InvalidStateError{JobID: id, Op: "clear results of", Current: job.Status}
	}
	n, err := c.store.DeleteResults(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("clear results: %w", err)
	}
	c.logger.Info("job results cleared", "job_id", id.String(), "deleted", n)
	return n, nil
}

// Shutdown cancels running jobs and waits for their tasks to return.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.registry.Shutdown(ctx)
}

func (c *Controller) invalidState(ctx context.Context, id uuid.UUID, op string) error {
	current, err := c.store.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("%s job: %w", op, err)
	}
	return &InvalidStateError{JobID: id, Op: op, Current: current.Status}
}

// execute runs in the job's registry task. A returned error fails the job.
func (c *Controller) execute(ctx context.Context, job *models.Job) error {
	jc, materialized, err := c.prepare(ctx, job)
	if err != nil {
		return err
	}

	final, err := c.runner.Run(ctx, job.ID, materialized, jc)
	if err != nil {
		return err
	}
	if final.Status == models.JobStatusCompleted {
		c.notify.changed(ctx, final, events.JobCompleted)
	}
	return nil
}

// prepare resolves everything a run depends on. Any failure here fails the
// job before a single row is processed.
func (c *Controller) prepare(ctx context.Context, job *models.Job) (*translate.JobContext, []models.Row, error) {
	if strings.TrimSpace(job.TargetLanguage) == "" {
		return nil, nil, errors.New("no target language selected for this job")
	}

	agent, err := c.store.GetAgent(ctx, job.AgentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load agent %s: %w", job.AgentID, err)
	}
	model, err := c.store.GetModel(ctx, agent.ModelID)
	if err != nil {
		return nil, nil, fmt.Errorf("load model %s: %w", agent.ModelID, err)
	}
	var credential string
	if model.APIKeyID != nil {
		key, err := c.store.GetProviderKey(ctx, *model.APIKeyID)
		if err != nil {
			return nil, nil, fmt.Errorf("load api key %s: %w", *model.APIKeyID, err)
		}
		credential = key.KeyValue
	}

	dataset, err := c.store.GetDataset(ctx, job.DatasetID)
	if err != nil {
		return nil, nil, fmt.Errorf("load dataset %s: %w", job.DatasetID, err)
	}
	content, err := blob.DatasetContent(ctx, c.blobs, dataset)
	if err != nil {
		return nil, nil, err
	}
	kind, err := rows.DetectKind(dataset)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", dataset.ID, err)
	}

	lang := job.SourceLanguage
	if lang == "" {
		lang = rows.DefaultSourceLanguage
	}
	materialized, err := rows.Materialize(content, kind, job.ColumnMapping, lang)
	if err != nil {
		return nil, nil, fmt.Errorf("parse dataset %s: %w", dataset.ID, err)
	}

	jc := &translate.JobContext{
		JobID:          job.ID,
		AgentPrompt:    agent.Prompt,
		ModelName:      model.Name,
		Credential:     credential,
		TargetLanguage: job.TargetLanguage,
		Glossary:       c.glossary.Load(ctx, job.GlossaryID, job.TargetLanguage, job.GlossaryUsageMode),
	}

	c.logger.Info("job prepared",
		"job_id", job.ID.String(),
		"rows", len(materialized),
		"model", model.Name,
		"glossary_terms", len(jc.Glossary),
	)
	return jc, materialized, nil
}

// fail forces a non-terminal job into failed. The write is detached from ctx
// and its own failure is logged, never returned.
func (c *Controller) fail(ctx context.Context, jobID uuid.UUID, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()

	job, err := c.store.TransitionJob(ctx, jobID, failable, models.JobStatusFailed, store.WithErrorMessage(reason))
	switch {
	case errors.Is(err, store.ErrStatusConflict):
		c.logger.Info("job already terminal, failure not recorded",
			"job_id", jobID.String(),
			"reason", reason,
		)
	case err != nil:
		c.logger.Error("failed to mark job as failed",
			"job_id", jobID.String(),
			"reason", reason,
			"error", err,
		)
	default:
		c.logger.Warn("job failed", "job_id", jobID.String(), "reason", reason)
		c.notify.changed(ctx, job, events.JobFailed)
	}
}
