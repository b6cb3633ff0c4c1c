package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/internal/api/response"
	"github.com/kiranshivaraju/batchlingo/internal/blob"
	"github.com/kiranshivaraju/batchlingo/internal/export"
	"github.com/kiranshivaraju/batchlingo/internal/store"
)

const (
	defaultDownloadLimit = 1000
	maxDownloadLimit     = 5000
)

// Exporter renders a job's translations.
type Exporter interface {
	Export(ctx context.Context, jobID uuid.UUID, req export.Request) (*export.File, error)
}

// NewDownloadHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/download.
func NewDownloadHandler(exp Exporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		format, err := export.ParseFormat(q.Get("format"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT",
				"Unsupported format. Use json, csv, or xml", nil)
			return
		}
		page, ok := intParam(w, q.Get("page"), "page", 1, 1, 0)
		if !ok {
			return
		}
		limit, ok := intParam(w, q.Get("limit"), "limit", defaultDownloadLimit, 1, maxDownloadLimit)
		if !ok {
			return
		}

		file, err := exp.Export(r.Context(), id, export.Request{Format: format, Page: page, Limit: limit})
		if err != nil {
			writeExportError(w, r, id, err)
			return
		}

		response.Attachment(w, file.ContentType, file.FileName, file.Body)
	}
}

func writeExportError(w http.ResponseWriter, r *http.Request, id uuid.UUID, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "Job or dataset not found", nil)
	case errors.Is(err, export.ErrUnsupportedFormat):
		response.Error(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil)
	case errors.Is(err, export.ErrNoTranslations):
		response.Error(w, http.StatusNotFound, "NO_TRANSLATIONS", "No translations found", nil)
	case errors.Is(err, blob.ErrNotFound):
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "Dataset content not found", nil)
	default:
		slog.Error("export failed",
			"job_id", id.String(),
			"path", r.URL.Path,
			"error", err,
		)
		response.Internal(w)
	}
}
