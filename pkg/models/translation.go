package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ResultStatusCompleted = "completed"
	ResultStatusFailed    = "failed"
	ResultStatusPending   = "pending"
)

// TranslationResult is one persisted outcome for a translated row.
// Results are never updated once written.
type TranslationResult struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	JobID          uuid.UUID `db:"job_id"          json:"job_id"`
	RowID          string    `db:"row_id"          json:"row_id"`
	SourceText     string    `db:"source_text"     json:"source_text"`
	TargetText     string    `db:"target_text"     json:"target_text"`
	SourceLanguage string    `db:"source_language" json:"source_language"`
	TargetLanguage string    `db:"target_language" json:"target_language"`
	Status         string    `db:"status"          json:"status"`
	Confidence     float64   `db:"confidence"      json:"confidence"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}
