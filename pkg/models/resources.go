package models

import (
	"time"

	"github.com/google/uuid"
)

// FileKind identifies how dataset content is encoded.
type FileKind string

const (
	FileKindCSV FileKind = "csv"
	FileKindXML FileKind = "xml"
)

// Dataset is uploaded tabular or XML content. Content is either stored inline
// or under StorageKey in object storage.
type Dataset struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	Name        string    `db:"name"         json:"name"`
	FileName    string    `db:"file_name"    json:"file_name"`
	FileType    FileKind  `db:"file_type"    json:"file_type"`
	FileContent string    `db:"file_content" json:"-"`
	StorageKey  *string   `db:"storage_key"  json:"storage_key,omitempty"`
	RowCount    int       `db:"row_count"    json:"row_count"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}

// Agent is a named prompt template bound to a model.
type Agent struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	Prompt    string    `db:"prompt"     json:"prompt"`
	ModelID   uuid.UUID `db:"model_id"   json:"model_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Model is an invocable language model and the credential it uses.
type Model struct {
	ID        uuid.UUID  `db:"id"          json:"id"`
	Name      string     `db:"name"        json:"name"`
	APIKeyID  *uuid.UUID `db:"api_key_id"  json:"api_key_id,omitempty"`
	CreatedAt time.Time  `db:"created_at"  json:"created_at"`
}

// ProviderKey is a stored model-provider credential.
type ProviderKey struct {
	ID       uuid.UUID `db:"id"        json:"id"`
	Name     string    `db:"name"      json:"name"`
	KeyValue string    `db:"key_value" json:"-"`
}

// GlossaryTerm is a source to target mapping, optionally scoped to a language.
// An empty Language, "all" or "*" applies to every target language.
type GlossaryTerm struct {
	ModuleID    uuid.UUID `db:"module_id"   json:"module_id"`
	Term        string    `db:"term"        json:"term"`
	Translation string    `db:"translation" json:"translation"`
	Language    *string   `db:"language"    json:"language,omitempty"`
	Context     string    `db:"context"     json:"context,omitempty"`
	Note        string    `db:"note"        json:"note,omitempty"`
	Type        string    `db:"type"        json:"type,omitempty"`
	Description string    `db:"description" json:"description,omitempty"`
}

// Row is one unit of translatable content derived from a dataset at run time.
type Row struct {
	Index          int               `json:"index"`
	ID             string            `json:"id"`
	SourceText     string            `json:"source_text"`
	SourceLanguage string            `json:"source_language"`
	Raw            map[string]string `json:"raw,omitempty"`
}
