// Package rows turns stored dataset content into the ordered row sequence a
// job translates. Everything here is pure: no network, no storage.
package rows

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrMalformed         = errors.New("malformed dataset content")
)

// DefaultSourceLanguage is used when neither the row nor the job names one.
const DefaultSourceLanguage = "en"

// Source is one raw dataset entry before normalization. It is either a
// DelimitedRow or an XMLEntryRow.
type Source interface {
	// Position is the 1-based position of the entry among non-blank entries.
	Position() int
	isSource()
}

// DelimitedRow is one non-blank record of a header-led delimited table.
type DelimitedRow struct {
	Number int
	Header []string
	Values []string
}

func (r DelimitedRow) Position() int { return r.Number }
func (DelimitedRow) isSource()       {}

// Field returns the value under column name, or "" if the record is short or
// the column does not exist.
func (r DelimitedRow) Field(name string) string {
	for i, h := range r.Header {
		if h == name {
			if i < len(r.Values) {
				return r.Values[i]
			}
			return ""
		}
	}
	return ""
}

// Map returns the record keyed by header.
func (r DelimitedRow) Map() map[string]string {
	m := make(map[string]string, len(r.Header))
	for i, h := range r.Header {
		if i < len(r.Values) {
			m[h] = r.Values[i]
		} else {
			m[h] = ""
		}
	}
	return m
}

// XMLEntryRow is one key/value resource entry.
type XMLEntryRow struct {
	Number int
	ID     string
	Value  string
}

func (r XMLEntryRow) Position() int { return r.Number }
func (XMLEntryRow) isSource()       {}

// Normalize projects a raw entry onto the uniform row shape. defaultLang is the
// job's configured source language.
func Normalize(src Source, m models.ColumnMapping, defaultLang string) models.Row {
	if defaultLang == "" {
		defaultLang = DefaultSourceLanguage
	}

	switch r := src.(type) {
	case DelimitedRow:
		row := models.Row{
			Index:          r.Number - 1,
			ID:             "row_" + strconv.Itoa(r.Number),
			SourceLanguage: defaultLang,
			Raw:            r.Map(),
		}
		if m.SourceTextColumn != "" {
			row.SourceText = r.Field(m.SourceTextColumn)
		}
		if m.RowIDColumn != "" {
			if id := strings.TrimSpace(r.Field(m.RowIDColumn)); id != "" {
				row.ID = id
			}
		}
		if m.SourceLanguageColumn != "" {
			if lang := strings.TrimSpace(r.Field(m.SourceLanguageColumn)); lang != "" {
				row.SourceLanguage = lang
			}
		}
		return row

	case XMLEntryRow:
		row := models.Row{
			Index:          r.Number - 1,
			ID:             r.ID,
			SourceText:     r.Value,
			SourceLanguage: defaultLang,
			Raw:            map[string]string{"key": r.ID, "value": r.Value},
		}
		if row.ID == "" {
			row.ID = "xml_entry_" + strconv.Itoa(r.Number)
		}
		return row
	}

	panic(fmt.Sprintf("rows: unknown source type %T", src))
}

// DetectKind resolves the content kind of a dataset from its declared file
// type, falling back to the file extension.
func DetectKind(d *models.Dataset) (models.FileKind, error) {
	name := strings.ToLower(d.FileName)
	switch {
	case strings.EqualFold(string(d.FileType), string(models.FileKindXML)) || strings.HasSuffix(name, ".xml"):
		return models.FileKindXML, nil
	case strings.EqualFold(string(d.FileType), string(models.FileKindCSV)) || strings.HasSuffix(name, ".csv"):
		return models.FileKindCSV, nil
	}
	return "", fmt.Errorf("%w: file type %q", ErrUnsupportedFormat, d.FileType)
}

// Parse reads raw entries of the given kind in document order.
func Parse(content string, kind models.FileKind) ([]Source, error) {
	switch kind {
	case models.FileKindCSV:
		t, err := ReadTable(content)
		if err != nil {
			return nil, err
		}
		return t.sources(), nil
	case models.FileKindXML:
		entries, err := ReadEntries(content)
		if err != nil {
			return nil, err
		}
		out := make([]Source, len(entries))
		for i, e := range entries {
			out[i] = e
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, kind)
}

// Materialize parses content and normalizes every entry. It fails as a whole
// on unsupported or malformed content, or on a mapping that names a column the
// table does not have.
func Materialize(content string, kind models.FileKind, m models.ColumnMapping, defaultLang string) ([]models.Row, error) {
	var sources []Source
	if kind == models.FileKindCSV {
		t, err := ReadTable(content)
		if err != nil {
			return nil, err
		}
		if err := checkMapping(t, m); err != nil {
			return nil, err
		}
		sources = t.sources()
	} else {
		var err error
		if sources, err = Parse(content, kind); err != nil {
			return nil, err
		}
	}

	out := make([]models.Row, len(sources))
	for i, s := range sources {
		out[i] = Normalize(s, m, defaultLang)
	}
	return out, nil
}

func checkMapping(t *Table, m models.ColumnMapping) error {
	if m.SourceTextColumn == "" {
		return fmt.Errorf("%w: no source text column mapped", ErrMalformed)
	}
	for _, col := range []string{m.SourceTextColumn, m.RowIDColumn, m.SourceLanguageColumn} {
		if col != "" && !t.HasColumn(col) {
			return fmt.Errorf("%w: column %q not found in header", ErrMalformed, col)
		}
	}
	return nil
}
