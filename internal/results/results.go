// Package results reads the stored translations of a job in creation order.
package results

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

const (
	// DefaultBoundedLimit caps a single-query read.
	DefaultBoundedLimit = 6000
	DefaultPageSize     = 1000
	// AutoPaginateAbove is the processed-item count above which Complete
	// switches to a paginated scan.
	AutoPaginateAbove = 100
)

var ErrUnknownMode = errors.New("unknown result read mode")

// Mode selects a read strategy.
type Mode string

const (
	ModeBounded   Mode = "bounded"
	ModePaginated Mode = "paginated"
	ModeAuto      Mode = "auto"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeBounded, ModePaginated:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

type Store interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	CountResults(ctx context.Context, jobID uuid.UUID) (int, error)
	ListResults(ctx context.Context, jobID uuid.UUID, offset, limit int) ([]*models.TranslationResult, error)
}

type Accessor struct {
	store Store
}

func NewAccessor(st Store) *Accessor {
	return &Accessor{store: st}
}

// Bounded returns the first limit results.
func (a *Accessor) Bounded(ctx context.Context, jobID uuid.UUID, limit int) ([]*models.TranslationResult, error) {
	if limit <= 0 {
		limit = DefaultBoundedLimit
	}
	out, err := a.store.ListResults(ctx, jobID, 0, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return out, nil
}

// Paginated reads every result, pageSize at a time, until a short page.
func (a *Accessor) Paginated(ctx context.Context, jobID uuid.UUID, pageSize int) ([]*models.TranslationResult, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var all []*models.TranslationResult
	for offset := 0; ; offset += pageSize {
		page, err := a.store.ListResults(ctx, jobID, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list results at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}
	if all == nil {
		all = []*models.TranslationResult{}
	}
	return all, nil
}

// Complete picks Bounded or Paginated from the job's processed-item count.
func (a *Accessor) Complete(ctx context.Context, jobID uuid.UUID) ([]*models.TranslationResult, error) {
	job, err := a.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ProcessedItems > AutoPaginateAbove {
		return a.Paginated(ctx, jobID, DefaultPageSize)
	}
	return a.Bounded(ctx, jobID, DefaultBoundedLimit)
}

// Read dispatches on mode. limit applies to bounded reads, pageSize to
// paginated ones.
func (a *Accessor) Read(ctx context.Context, jobID uuid.UUID, mode Mode, limit, pageSize int) ([]*models.TranslationResult, error) {
	switch mode {
	case ModeBounded:
		return a.Bounded(ctx, jobID, limit)
	case ModePaginated:
		return a.Paginated(ctx, jobID, pageSize)
	case ModeAuto, "":
		return a.Complete(ctx, jobID)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// Page is one 1-based page of results with totals.
type Page struct {
	Results    []*models.TranslationResult
	Page       int
	Limit      int
	TotalCount int
	TotalPages int
	HasMore    bool
}

func (a *Accessor) Page(ctx context.Context, jobID uuid.UUID, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	total, err := a.store.CountResults(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("count results: %w", err)
	}
	list, err := a.store.ListResults(ctx, jobID, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	pages := (total + limit - 1) / limit
	return &Page{
		Results:    list,
		Page:       page,
		Limit:      limit,
		TotalCount: total,
		TotalPages: pages,
		HasMore:    page < pages,
	}, nil
}
