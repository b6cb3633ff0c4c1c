package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/internal/api/response"
	"github.com/kiranshivaraju/batchlingo/internal/jobs"
	"github.com/kiranshivaraju/batchlingo/internal/results"
	"github.com/kiranshivaraju/batchlingo/internal/store"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

// JobService is the lifecycle surface the job handlers drive.
type JobService interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Start(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ClearResults(ctx context.Context, id uuid.UUID) (int64, error)
}

// StatusReader is the cached status fast path.
type StatusReader interface {
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (models.JobStatus, bool, error)
}

// ResultReader reads stored translations.
type ResultReader interface {
	Read(ctx context.Context, jobID uuid.UUID, mode results.Mode, limit, pageSize int) ([]*models.TranslationResult, error)
}

type jobResponse struct {
	*models.Job
	CachedStatus models.JobStatus `json:"cached_status,omitempty"`
}

// NewStartJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/start.
func NewStartJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		job, err := svc.Start(r.Context(), id)
		if err != nil {
			writeJobError(w, r, id, err)
			return
		}
		response.Accepted(w, job)
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/cancel.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		job, err := svc.Cancel(r.Context(), id)
		if err != nil {
			writeJobError(w, r, id, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// The cached status is best effort; a cache miss or error leaves it empty.
func NewGetJobHandler(svc JobService, cache StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		job, err := svc.GetJob(r.Context(), id)
		if err != nil {
			writeJobError(w, r, id, err)
			return
		}

		resp := jobResponse{Job: job}
		if cache != nil {
			status, found, err := cache.GetJobStatus(r.Context(), id)
			if err != nil {
				slog.Warn("read cached job status", "job_id", id.String(), "error", err)
			} else if found {
				resp.CachedStatus = status
			}
		}
		response.JSON(w, resp)
	}
}

// NewListResultsHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/results.
func NewListResultsHandler(svc JobService, reader ResultReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		mode, err := results.ParseMode(q.Get("mode"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
				"mode must be one of bounded, paginated, auto", nil)
			return
		}
		limit, ok := intParam(w, q.Get("limit"), "limit", results.DefaultBoundedLimit, 1, 0)
		if !ok {
			return
		}
		pageSize, ok := intParam(w, q.Get("page_size"), "page_size", results.DefaultPageSize, 1, 0)
		if !ok {
			return
		}

		if _, err := svc.GetJob(r.Context(), id); err != nil {
			writeJobError(w, r, id, err)
			return
		}

		list, err := reader.Read(r.Context(), id, mode, limit, pageSize)
		if err != nil {
			writeJobError(w, r, id, err)
			return
		}
		response.JSON(w, map[string]any{
			"job_id":  id,
			"mode":    mode,
			"count":   len(list),
			"results": list,
		})
	}
}

// NewClearResultsHandler returns an http.HandlerFunc for DELETE /api/v1/jobs/{jobID}/results.
func NewClearResultsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		if _, err := svc.ClearResults(r.Context(), id); err != nil {
			writeJobError(w, r, id, err)
			return
		}
		response.NoContent(w)
	}
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid job ID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeJobError(w http.ResponseWriter, r *http.Request, id uuid.UUID, err error) {
	var stateErr *jobs.InvalidStateError
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "Job not found", nil)
	case errors.As(err, &stateErr):
		response.Error(w, http.StatusConflict, response.CodeInvalidState, stateErr.Error(),
			map[string]any{"status": stateErr.Current})
	case errors.Is(err, jobs.ErrAlreadyRunning):
		response.Error(w, http.StatusConflict, response.CodeInvalidState, "Job is already being processed", nil)
	case errors.Is(err, jobs.ErrShuttingDown):
		response.Error(w, http.StatusServiceUnavailable, "SHUTTING_DOWN",
			"Server is shutting down, try again later", nil)
	default:
		slog.Error("job request failed",
			"job_id", id.String(),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		response.Internal(w)
	}
}
