// Package batch drives a running job through its rows: fixed-size batches,
// bounded in-flight model calls, one storage write per batch, and progress
// after every batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/internal/events"
	"github.com/kiranshivaraju/batchlingo/internal/store"
	"github.com/kiranshivaraju/batchlingo/internal/translate"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultBatchSize   = 10
	DefaultConcurrency = 5

	reasonSaveFailed   = "Database save failed: "
	reasonProcessing   = "Processing error: "
	reasonDuplicateRow = "Database save failed: duplicate row id"
)

// Store is the subset of store.Store the runner writes through.
type Store interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	TransitionJob(ctx context.Context, id uuid.UUID, from []models.JobStatus, to models.JobStatus, opts ...store.JobUpdateOption) (*models.Job, error)
	UpdateJobProgress(ctx context.Context, id uuid.UUID, p store.JobProgress) error
	InsertResults(ctx context.Context, results []*models.TranslationResult) ([]string, error)
	CountResults(ctx context.Context, jobID uuid.UUID) (int, error)
	ListResultRowIDs(ctx context.Context, jobID uuid.UUID) ([]string, error)
}

// Translator classifies one row.
type Translator interface {
	Translate(ctx context.Context, row models.Row, jc *translate.JobContext) (translate.Outcome, error)
}

type Config struct {
	BatchSize   int
	Concurrency int
}

type Runner struct {
	store  Store
	tr     Translator
	events events.Publisher
	cfg    Config
	logger *slog.Logger
}

func NewRunner(st Store, tr Translator, pub events.Publisher, cfg Config, logger *slog.Logger) *Runner {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if pub == nil {
		pub = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: st, tr: tr, events: pub, cfg: cfg, logger: logger}
}

// tally is the running state of one job run.
type tally struct {
	total     int
	seen      int
	processed int
	skipped   []models.SkippedRow
	tokens    int
	cost      float64
}

func (t *tally) progress() store.JobProgress {
	return store.JobProgress{
		Progress:       percent(t.seen, t.total),
		TotalItems:     t.total,
		ProcessedItems: t.processed,
		FailedItems:    len(t.skipped),
		TotalTokens:    t.tokens,
		TotalCost:      t.cost,
	}
}

func percent(seen, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(seen) / float64(total) * 100))
}

// Run processes rows for a job that is already running and returns the job as
// last written. A returned job that is cancelled or failed means the run
// stopped early at a batch boundary. A non-nil error means the run aborted
// and the job is still running; the caller owns the failed transition.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID, rows []models.Row, jc *translate.JobContext) (*models.Job, error) {
	log := r.logger.With("job_id", jobID.String())

	todo, prior, err := r.pending(ctx, jobID, rows)
	if err != nil {
		return nil, err
	}

	t := &tally{total: len(rows), seen: prior, processed: prior}
	if prior > 0 {
		log.Info("resuming job, skipping already stored rows", "stored", prior)
	}
	if err := r.saveProgress(ctx, jobID, t); err != nil {
		return nil, err
	}

	sem := semaphore.NewWeighted(int64(r.cfg.Concurrency))

	for start := 0; start < len(todo); start += r.cfg.BatchSize {
		job, err := r.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("re-read job status: %w", err)
		}
		if job.Status != models.JobStatusRunning {
			log.Info("job no longer running, stopping before next batch",
				"status", string(job.Status),
				"rows_seen", t.seen,
			)
			return job, nil
		}

		end := min(start+r.cfg.BatchSize, len(todo))
		outcomes, runErr := r.translateBatch(ctx, sem, todo[start:end], jc)

		// The batch is committed even when ctx was cancelled mid-way, so
		// finished translations are not lost.
		r.commit(context.WithoutCancel(ctx), log, t, outcomes)
		t.seen += end - start

		if err := r.saveProgress(context.WithoutCancel(ctx), jobID, t); err != nil {
			return nil, err
		}
		if runErr != nil {
			return nil, runErr
		}
	}

	return r.finish(ctx, log, jobID, t)
}

// pending drops rows whose id already has a stored result and reports how
// many were dropped.
func (r *Runner) pending(ctx context.Context, jobID uuid.UUID, rows []models.Row) ([]models.Row, int, error) {
	stored, err := r.store.ListResultRowIDs(ctx, jobID)
	if err != nil {
		return nil, 0, fmt.Errorf("list stored results: %w", err)
	}
	if len(stored) == 0 {
		return rows, 0, nil
	}

	done := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		done[id] = struct{}{}
	}
	todo := make([]models.Row, 0, len(rows))
	for _, row := range rows {
		if _, ok := done[row.ID]; ok {
			delete(done, row.ID)
			continue
		}
		todo = append(todo, row)
	}
	return todo, len(rows) - len(todo), nil
}

// translateBatch runs every row of the batch, at most Concurrency at a time
// across the job, and returns outcomes in row order. The error is set only if
// ctx ended; rows that did not get to run are reported as processing errors.
func (r *Runner) translateBatch(ctx context.Context, sem *semaphore.Weighted, batch []models.Row, jc *translate.JobContext) ([]translate.Outcome, error) {
	outcomes := make([]translate.Outcome, len(batch))
	var (
		wg     sync.WaitGroup
		errMu  sync.Mutex
		ctxErr error
	)
	setErr := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		if ctxErr == nil {
			ctxErr = err
		}
	}

	for i, row := range batch {
		if err := sem.Acquire(ctx, 1); err != nil {
			setErr(err)
			for j := i; j < len(batch); j++ {
				outcomes[j] = translate.Outcome{Row: batch[j], Reason: reasonProcessing + err.Error()}
			}
			break
		}

		wg.Add(1)
		go func(i int, row models.Row) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("panic translating row",
						"job_id", jc.JobID.String(),
						"row_id", row.ID,
						"panic", fmt.Sprint(rec),
					)
					outcomes[i] = translate.Outcome{Row: row, Reason: reasonProcessing + fmt.Sprint(rec)}
				}
			}()

			out, err := r.tr.Translate(ctx, row, jc)
			if err != nil {
				setErr(err)
				out = translate.Outcome{Row: row, Reason: reasonProcessing + err.Error()}
			}
			outcomes[i] = out
		}(i, row)
	}

	wg.Wait()
	return outcomes, ctxErr
}

// commit writes the translated outcomes of one batch and folds everything
// into the tally. A failed write demotes the whole batch to skips.
func (r *Runner) commit(ctx context.Context, log *slog.Logger, t *tally, outcomes []translate.Outcome) {
	var translated []translate.Outcome
	for _, o := range outcomes {
		if o.Skipped() {
			t.skipped = append(t.skipped, o.Skip())
			continue
		}
		translated = append(translated, o)
		t.tokens += o.Tokens
		t.cost += o.Cost
	}
	if len(translated) == 0 {
		return
	}

	results := make([]*models.TranslationResult, len(translated))
	for i, o := range translated {
		results[i] = o.Result
	}

	inserted, err := r.store.InsertResults(ctx, results)
	if err != nil {
		log.Error("batch insert failed, demoting batch to skipped",
			"rows", len(results),
			"error", err,
		)
		for _, o := range translated {
			t.skipped = append(t.skipped, translate.SkipRecord(o.Row, reasonSaveFailed+err.Error()))
		}
		return
	}

	// Count-based matching so a row id repeated within one batch is stored once.
	stored := make(map[string]int, len(inserted))
	for _, id := range inserted {
		stored[id]++
	}
	for _, o := range translated {
		if stored[o.Row.ID] > 0 {
			stored[o.Row.ID]--
			t.processed++
			continue
		}
		t.skipped = append(t.skipped, translate.SkipRecord(o.Row, reasonDuplicateRow))
	}

	if len(inserted) != len(results) {
		log.Warn("inserted count differs from translated count",
			"translated", len(results),
			"inserted", len(inserted),
		)
	}
}

func (r *Runner) saveProgress(ctx context.Context, jobID uuid.UUID, t *tally) error {
	p := t.progress()
	err := r.store.UpdateJobProgress(ctx, jobID, p)
	if errors.Is(err, store.ErrStatusConflict) {
		// Cancelled or failed underneath us; the next status check stops the run.
		return nil
	}
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}

	_ = r.events.Publish(ctx, events.Event{
		Type:           events.JobProgress,
		JobID:          jobID,
		Status:         models.JobStatusRunning,
		Progress:       p.Progress,
		TotalItems:     p.TotalItems,
		ProcessedItems: p.ProcessedItems,
		FailedItems:    p.FailedItems,
	})
	return nil
}

// finish reconciles the processed count against storage and completes the job.
func (r *Runner) finish(ctx context.Context, log *slog.Logger, jobID uuid.UUID, t *tally) (*models.Job, error) {
	stored, err := r.store.CountResults(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("count stored results: %w", err)
	}
	if stored != t.processed {
		log.Warn("processed count does not match stored results, using stored count",
			"processed_items", t.processed,
			"stored", stored,
		)
		t.processed = stored
	}

	final := t.progress()
	final.Progress = 100

	var skipped []models.SkippedRow
	if len(t.skipped) > 0 {
		skipped = t.skipped
	}

	job, err := r.store.TransitionJob(ctx, jobID,
		[]models.JobStatus{models.JobStatusRunning}, models.JobStatusCompleted,
		store.WithProgress(final),
		store.WithSkippedRows(skipped),
	)
	if errors.Is(err, store.ErrStatusConflict) {
		// Cancelled after the last batch started; that status stands.
		return r.store.GetJob(ctx, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}

	log.Info("job completed",
		"total_items", job.TotalItems,
		"processed_items", job.ProcessedItems,
		"failed_items", job.FailedItems,
		"total_tokens", job.TotalTokens,
	)
	return job, nil
}
