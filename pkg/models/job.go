// Package models contains shared data models used across the batchlingo codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a translation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	// JobStatusPaused is reserved. Nothing transitions into or out of it.
	JobStatusPaused JobStatus = "paused"
)

// Terminal reports whether no further status transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Startable reports whether a job in this status may transition to running.
func (s JobStatus) Startable() bool {
	return s == JobStatusPending || s == JobStatusQueued
}

// GlossaryMode controls how glossary terms are used while translating.
type GlossaryMode string

const (
	GlossaryEnforce GlossaryMode = "enforce"
	GlossaryPrefer  GlossaryMode = "prefer"
	GlossaryIgnore  GlossaryMode = "ignore"
)

// ColumnMapping names the dataset fields that feed each row.
type ColumnMapping struct {
	SourceTextColumn     string `json:"source_text_column"`
	SourceLanguageColumn string `json:"source_language_column,omitempty"`
	RowIDColumn          string `json:"row_id_column,omitempty"`
}

// SkippedRow is a diagnostic record for a row that produced no stored translation.
type SkippedRow struct {
	RowID     string            `json:"row_id,omitempty"`
	RowNumber int               `json:"row_number"`
	Reason    string            `json:"reason"`
	Data      map[string]string `json:"data,omitempty"`
}

// Job is one batch translation run over one dataset with one agent.
// The client polls GET /api/v1/jobs/{job_id} until status is terminal.
type Job struct {
	ID                uuid.UUID     `db:"id"                 json:"id"`
	Name              string        `db:"name"               json:"name"`
	DatasetID         uuid.UUID     `db:"dataset_id"         json:"dataset_id"`
	AgentID           uuid.UUID     `db:"agent_id"           json:"agent_id"`
	GlossaryID        *uuid.UUID    `db:"glossary_id"        json:"glossary_id,omitempty"`
	GlossaryUsageMode GlossaryMode  `db:"glossary_usage_mode" json:"glossary_usage_mode"`
	SourceLanguage    string        `db:"source_language"    json:"source_language"`
	TargetLanguage    string        `db:"target_language"    json:"target_language"`
	ColumnMapping     ColumnMapping `db:"column_mapping"     json:"column_mapping"`
	Status            JobStatus     `db:"status"             json:"status"`
	Progress          int           `db:"progress"           json:"progress"`
	TotalItems        int           `db:"total_items"        json:"total_items"`
	ProcessedItems    int           `db:"processed_items"    json:"processed_items"`
	FailedItems       int           `db:"failed_items"       json:"failed_items"`
	TotalTokens       int           `db:"total_tokens"       json:"total_tokens"`
	TotalCost         float64       `db:"total_cost"         json:"total_cost"`
	ErrorMessage      *string       `db:"error_message"      json:"error_message,omitempty"`
	SkippedRows       []SkippedRow  `db:"skipped_rows"       json:"skipped_rows,omitempty"`
	StartedAt         *time.Time    `db:"started_at"         json:"started_at,omitempty"`
	CompletedAt       *time.Time    `db:"completed_at"       json:"completed_at,omitempty"`
	CreatedAt         time.Time     `db:"created_at"         json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at"         json:"updated_at"`
}
