package batch_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/internal/batch"
	"github.com/kiranshivaraju/batchlingo/internal/events"
	"github.com/kiranshivaraju/batchlingo/internal/store"
	"github.com/kiranshivaraju/batchlingo/internal/translate"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcTranslator adapts a function to batch.Translator.
type funcTranslator func(ctx context.Context, row models.Row, jc *translate.JobContext) (translate.Outcome, error)

func (f funcTranslator) Translate(ctx context.Context, row models.Row, jc *translate.JobContext) (translate.Outcome, error) {
	return f(ctx, row, jc)
}

func success(row models.Row, jc *translate.JobContext) translate.Outcome {
	return translate.Outcome{
		Row:    row,
		Tokens: 2,
		Cost:   0.0002,
		Result: &models.TranslationResult{
			ID:             uuid.New(),
			JobID:          jc.JobID,
			RowID:          row.ID,
			SourceText:     row.SourceText,
			TargetText:     "tr:" + row.SourceText,
			SourceLanguage: row.SourceLanguage,
			TargetLanguage: jc.TargetLanguage,
			Status:         models.ResultStatusCompleted,
			Confidence:     0.95,
			CreatedAt:      time.Now().UTC(),
		},
	}
}

func echo() funcTranslator {
	return func(_ context.Context, row models.Row, jc *translate.JobContext) (translate.Outcome, error) {
		if strings.TrimSpace(row.SourceText) == "" {
			return translate.Outcome{Row: row, Reason: translate.ReasonEmptySource}, nil
		}
		return success(row, jc), nil
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) progress() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int
	for _, ev := range p.events {
		out = append(out, ev.Progress)
	}
	return out
}

func makeRows(n int) []models.Row {
	out := make([]models.Row, n)
	for i := range out {
		out[i] = models.Row{
			Index:          i,
			ID:             fmt.Sprintf("row_%d", i+1),
			SourceText:     fmt.Sprintf("text %d", i+1),
			SourceLanguage: "en",
			Raw:            map[string]string{"text": fmt.Sprintf("text %d", i+1)},
		}
	}
	return out
}

func runningJob(t *testing.T, st *store.MemoryStore) *translate.JobContext {
	t.Helper()
	now := time.Now().UTC()
	job := &models.Job{ID: uuid.New(), Status: models.JobStatusRunning, TargetLanguage: "es", StartedAt: &now, CreatedAt: now, UpdatedAt: now}
	st.PutJob(job)
	return &translate.JobContext{JobID: job.ID, TargetLanguage: "es", ModelName: "m"}
}

func TestRun_CompletesAndConservesCounts(t *testing.T) {
	st := store.NewMemoryStore()
	jc := runningJob(t, st)
	rows := makeRows(25)
	rows[3].SourceText = ""
	rows[17].SourceText = "  "

	pub := &recordingPublisher{}
	r := batch.NewRunner(st, echo(), pub, batch.Config{BatchSize: 10, Concurrency: 5}, nil)

	job, err := r.Run(context.Background(), jc.JobID, rows, jc)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, 25, job.TotalItems)
	assert.Equal(t, 23, job.ProcessedItems)
	assert.Equal(t, 2, job.FailedItems)
	assert.Equal(t, 25, job.ProcessedItems+job.FailedItems)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 46, job.TotalTokens)
	require.Len(t, job.SkippedRows, 2)
	assert.Equal(t, "row_4", job.SkippedRows[0].RowID)
	assert.Equal(t, 4, job.SkippedRows[0].RowNumber)
	assert.Equal(t, translate.ReasonEmptySource, job.SkippedRows[0].Reason)

	n, err := st.CountResults(context.Background(), jc.JobID)
	require.NoError(t, err)
	assert.Equal(t, 23, n)

	// initial write, then 40, 80, 100 after each batch
	assert.Equal(t, []int{0, 40, 80, 100}, pub.progress())
}

func TestRun_NoSkipsLeavesSkippedRowsEmpty(t *testing.T) {
	st := store.NewMemoryStore()
	jc := runningJob(t, st)
	r := batch.NewRunner(st, echo(), nil, batch.Config{}, nil)

	job, err := r.Run(context.Background(), jc.JobID, makeRows(3), jc)
	require.NoError(t, err)
	assert.Nil(t, job.SkippedRows)
	assert.Equal(t, 3, job.ProcessedItems)
}

func TestRun_EmptyDataset(t *testing.T) {
	st := store.NewMemoryStore()
	jc := runningJob(t, st)
	r := batch.NewRunner(st, echo(), nil, batch.Config{}, nil)

	job, err := r.Run(context.Background(), jc.JobID, nil, jc)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Zero(t, job.TotalItems)
}

func TestRun_RowFailureIsIsolated(t *testing.T) {
	st := store.NewMemoryStore()
	jc := runningJob(t, st)

	tr := funcTranslator(func(ctx context.Context, row models.Row, jc *translate.JobContext) (translate.Outcome, error) {
		switch row.ID {
		case "row_2":
			panic("synthetic row failure")
		case "row_5":
			return translate.Outcome{Row: row, Reason: "Translation failed: translation API error: 500"}, nil
		}
		return success(row, jc), nil
	})
	r := batch.NewRunner(st, tr, nil, batch.Config{BatchSize: 3, Concurrency: 2}, nil)

	job, err := r.Run(context.Background(), jc.JobID, makeRows(9), jc)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 7, job.ProcessedItems)
	assert.Equal(t, 2, job.FailedItems)

	reasons := map[string]string{}
	for _, s := range job.SkippedRows {
		reasons[s.RowID] = s.Reason
	}
	assert.Equal(t, "Processing error: synthetic row failure", reasons["row_2"])
	assert.Equal(t, "Translation failed: translation API error: 500", reasons["row_5"])

	ids, err := st.ListResultRowIDs(context.Background(), jc.JobID)
	require.NoError(t, err)
	assert.Contains(t, ids, "row_1")
	assert.Contains(t, ids, "row_3")
	assert.NotContains(t, ids, "row_2")
}

func TestRun_ConcurrencyBoundHolds(t *testing.T) {
	st := store.NewMemoryStore()
	jc := runningJob(t, st)

	var inFlight, peak atomic.Int32
	tr := funcTranslator(func(_ context.Context, row models.Row, jc *translate.JobContext) (translate.Outcome, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return success(row, jc), nil
	})
	r := batch.NewRunner(st, tr, nil, batch.Config{BatchSize: 10, Concurrency: 5}, nil)

	_, err := r.Run(context.Background(), jc.JobID, makeRows(30), jc)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(5))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestRun_OutOfOrderCompletionAttributedByRow(t *testing.T) {
	st := store.NewMemoryStore()
	jc := runningJob(t, st)

	tr := funcTranslator(func(_ context.Context, row models.Row, jc *translate.JobContext) (translate.Outcome, error) {
		time.Sleep(time.Duration(rand.IntN(5)) * time.Millisecond)
		return success(row, jc), nil
	})
	r := batch.NewRunner(st, tr, nil, batch.Config{BatchSize: 10, Concurrency: 5}, nil)

	_, err := r.Run(context.Background(), jc.JobID, makeRows(10), jc)
	require.NoError(t, err)

	results, err := st.ListResults(context.Background(), jc.JobID, 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 10)
	for _, res := range results {
		assert.Equal(t, "tr:text "+strings.TrimPrefix(res.RowID, "row_"), res.TargetText)
	}
}

func TestRun_CancellationAtBatchBoundary(t *testing.T) {
	st := store.NewMemoryStore()
	jc := runningJob(t, st)

	var calls atomic.Int32
	tr := funcTranslator(func(ctx context.Context, row models.Row, jc *translate.JobContext) (translate.Outcome, error) {
		calls.Add(1)
		return success(row, jc), nil
	})

	// Cancel as soon as batch 1's results are written.
	st.InsertErr = func(results []*models.TranslationResult) error {
		_, err := st.TransitionJob(context.Background(), jc.JobID,
			[]models.JobStatus{models.JobStatusRunning}, models.JobStatusCancelled)
		return err
	}

	r := batch.NewRunner(st, tr, nil, batch.Config{BatchSize: 5, Concurrency: 5}, nil)
	job, err := r.Run(context.Background(), jc.JobID, makeRows(10), jc)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCancelled, job.Status)
	assert.Equal(t, int32(5), calls.Load(), "batch 2 must never be attempted")

	n, err := st.CountResults(context.Background(), jc.JobID)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "batch 1 fully persisted")
}

func TestRun_InsertFailureDemotesBatch(t *testing.T) {
	st := store.NewMemoryStore()
	jc := runningJob(t, st)

	var inserts atomic.Int32
	st.InsertErr = func([]*models.TranslationResult) error {
		if inserts.Add(1) == 2 {
			return errors.New("connection refused")
		}
		return nil
	}

	r := batch.NewRunner(st, echo(), nil, batch.Config{BatchSize: 4, Concurrency: 2}, nil)
	job, err := r.Run(context.Background(), jc.JobID, makeRows(12), jc)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 8, job.ProcessedItems)
	assert.Equal(t, 4, job.FailedItems)
	for _, s := range job.SkippedRows {
		assert.Equal(t, "Database save failed: connection refused", s.Reason)
	}
	assert.Equal(t, "row_5", job.SkippedRows[0].RowID)
}

func TestRun_DuplicateRowIDStoredOnce(t *testing.T) {
	st := store.NewMemoryStore()
	jc := runningJob(t, st)
	rows := makeRows(3)
	rows[2].ID = "row_1"

	r := batch.NewRunner(st, echo(), nil, batch.Config{}, nil)
	job, err := r.Run(context.Background(), jc.JobID, rows, jc)
	require.NoError(t, err)

	assert.Equal(t, 2, job.ProcessedItems)
	assert.Equal(t, 1, job.FailedItems)
	assert.Equal(t, "Database save failed: duplicate row id", job.SkippedRows[0].Reason)
	assert.Equal(t, 3, job.SkippedRows[0].RowNumber)
}

func TestRun_ResumeSkipsStoredRows(t *testing.T) {
	st := store.NewMemoryStore()
	jc := runningJob(t, st)
	rows := makeRows(6)

	var first []*models.TranslationResult
	for _, row := range rows[:4] {
		first = append(first, success(row, jc).Result)
	}
	_, err := st.InsertResults(context.Background(), first)
	require.NoError(t, err)

	var calls atomic.Int32
	tr := funcTranslator(func(_ context.Context, row models.Row, jc *translate.JobContext) (translate.Outcome, error) {
		calls.Add(1)
		return success(row, jc), nil
	})
	r := batch.NewRunner(st, tr, nil, batch.Config{}, nil)

	job, err := r.Run(context.Background(), jc.JobID, rows, jc)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 6, job.ProcessedItems)
	assert.Zero(t, job.FailedItems)
}

func TestRun_StatusReadErrorAborts(t *testing.T) {
	st := store.NewMemoryStore()
	jc := &translate.JobContext{JobID: uuid.New()}
	r := batch.NewRunner(st, echo(), nil, batch.Config{}, nil)

	_, err := r.Run(context.Background(), jc.JobID, makeRows(2), jc)
	require.Error(t, err)
}

func TestRun_ContextCancelledAborts(t *testing.T) {
	st := store.NewMemoryStore()
	jc := runningJob(t, st)
	ctx, cancel := context.WithCancel(context.Background())

	tr := funcTranslator(func(ctx context.Context, row models.Row, jc *translate.JobContext) (translate.Outcome, error) {
		if row.ID == "row_1" {
			cancel()
			return translate.Outcome{}, ctx.Err()
		}
		return success(row, jc), nil
	})
	r := batch.NewRunner(st, tr, nil, batch.Config{BatchSize: 2, Concurrency: 1}, nil)

	_, err := r.Run(ctx, jc.JobID, makeRows(6), jc)
	assert.ErrorIs(t, err, context.Canceled)

	job, err := st.GetJob(context.Background(), jc.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status, "caller owns the failed transition")
}
