package results_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/internal/results"
	"github.com/kiranshivaraju/batchlingo/internal/store"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records the limits ListResults is called with.
type countingStore struct {
	*store.MemoryStore
	mu     sync.Mutex
	limits []int
}

func (c *countingStore) ListResults(ctx context.Context, jobID uuid.UUID, offset, limit int) ([]*models.TranslationResult, error) {
	c.mu.Lock()
	c.limits = append(c.limits, limit)
	c.mu.Unlock()
	return c.MemoryStore.ListResults(ctx, jobID, offset, limit)
}

func seed(t *testing.T, n, processed int) (*countingStore, uuid.UUID) {
	t.Helper()
	ms := store.NewMemoryStore()
	job := &models.Job{ID: uuid.New(), Status: models.JobStatusCompleted, ProcessedItems: processed}
	ms.PutJob(job)

	batch := make([]*models.TranslationResult, n)
	for i := range batch {
		batch[i] = &models.TranslationResult{
			ID:         uuid.New(),
			JobID:      job.ID,
			RowID:      fmt.Sprintf("row_%d", i+1),
			SourceText: fmt.Sprintf("text %d", i+1),
			TargetText: fmt.Sprintf("texto %d", i+1),
			Status:     models.ResultStatusCompleted,
			CreatedAt:  time.Now().UTC(),
		}
	}
	if n > 0 {
		_, err := ms.InsertResults(context.Background(), batch)
		require.NoError(t, err)
	}
	return &countingStore{MemoryStore: ms}, job.ID
}

func rowIDs(rs []*models.TranslationResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.RowID
	}
	return out
}

func TestBounded(t *testing.T) {
	st, jobID := seed(t, 5, 5)
	a := results.NewAccessor(st)

	got, err := a.Bounded(context.Background(), jobID, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"row_1", "row_2", "row_3"}, rowIDs(got))
}

func TestBounded_DefaultLimit(t *testing.T) {
	st, jobID := seed(t, 2, 2)
	a := results.NewAccessor(st)

	_, err := a.Bounded(context.Background(), jobID, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{results.DefaultBoundedLimit}, st.limits)
}

func TestPaginated_ReadsAllWithoutGapsOrDuplicates(t *testing.T) {
	st, jobID := seed(t, 23, 23)
	a := results.NewAccessor(st)

	got, err := a.Paginated(context.Background(), jobID, 5)
	require.NoError(t, err)
	require.Len(t, got, 23)

	seen := map[string]bool{}
	for i, r := range got {
		assert.Equal(t, fmt.Sprintf("row_%d", i+1), r.RowID)
		assert.False(t, seen[r.RowID])
		seen[r.RowID] = true
	}
	assert.Len(t, st.limits, 5, "four full pages and one short page")
}

func TestPaginated_ExactMultipleStopsOnEmptyPage(t *testing.T) {
	st, jobID := seed(t, 10, 10)
	a := results.NewAccessor(st)

	got, err := a.Paginated(context.Background(), jobID, 5)
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Len(t, st.limits, 3)
}

func TestPaginated_Empty(t *testing.T) {
	st, jobID := seed(t, 0, 0)
	a := results.NewAccessor(st)

	got, err := a.Paginated(context.Background(), jobID, 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestComplete_SmallJobUsesBoundedRead(t *testing.T) {
	st, jobID := seed(t, 4, 100)
	a := results.NewAccessor(st)

	got, err := a.Complete(context.Background(), jobID)
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, []int{results.DefaultBoundedLimit}, st.limits)
}

func TestComplete_LargeJobPaginates(t *testing.T) {
	st, jobID := seed(t, 4, 101)
	a := results.NewAccessor(st)

	got, err := a.Complete(context.Background(), jobID)
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, []int{results.DefaultPageSize}, st.limits)
}

func TestComplete_UnknownJob(t *testing.T) {
	st, _ := seed(t, 0, 0)
	a := results.NewAccessor(st)

	_, err := a.Complete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPage(t *testing.T) {
	st, jobID := seed(t, 7, 7)
	a := results.NewAccessor(st)

	p, err := a.Page(context.Background(), jobID, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"row_4", "row_5", "row_6"}, rowIDs(p.Results))
	assert.Equal(t, 7, p.TotalCount)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasMore)

	p, err = a.Page(context.Background(), jobID, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"row_7"}, rowIDs(p.Results))
	assert.False(t, p.HasMore)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]results.Mode{
		"":          results.ModeAuto,
		"auto":      results.ModeAuto,
		"bounded":   results.ModeBounded,
		"paginated": results.ModePaginated,
	} {
		got, err := results.ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := results.ParseMode("everything")
	assert.ErrorIs(t, err, results.ErrUnknownMode)
}
