package export

import (
	"encoding/json"
	"io"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/internal/results"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

type Document struct {
	Job          JobInfo                     `json:"job"`
	Dataset      DatasetInfo                 `json:"dataset"`
	Pagination   Pagination                  `json:"pagination"`
	Translations []*models.TranslationResult `json:"translations"`
}

type JobInfo struct {
	ID             uuid.UUID        `json:"id"`
	Name           string           `json:"name"`
	Status         models.JobStatus `json:"status"`
	TargetLanguage string           `json:"target_language"`
	ProcessedItems int              `json:"processed_items"`
	FailedItems    int              `json:"failed_items"`
}

type DatasetInfo struct {
	FileType models.FileKind `json:"file_type"`
	FileName string          `json:"file_name"`
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalCount int  `json:"total_count"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

func WriteJSON(w io.Writer, job *models.Job, dataset *models.Dataset, page *results.Page) error {
	translations := page.Results
	if translations == nil {
		translations = []*models.TranslationResult{}
	}
	return json.NewEncoder(w).Encode(Document{
		Job: JobInfo{
			ID:             job.ID,
			Name:           job.Name,
			Status:         job.Status,
			TargetLanguage: job.TargetLanguage,
			ProcessedItems: job.ProcessedItems,
			FailedItems:    job.FailedItems,
		},
		Dataset: DatasetInfo{FileType: dataset.FileType, FileName: dataset.FileName},
		Pagination: Pagination{
			Page:       page.Page,
			Limit:      page.Limit,
			TotalCount: page.TotalCount,
			TotalPages: page.TotalPages,
			HasMore:    page.HasMore,
		},
		Translations: translations,
	})
}
