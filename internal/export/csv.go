package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/kiranshivaraju/batchlingo/internal/rows"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

// untitledColumn names the appended column when the job has no target language.
const untitledColumn = "translated"

// WriteCSV writes the original table with one extra column, named for the
// target language, holding each row's translation. Rows are joined to their
// translation by the mapped row id column, or by source text when no row id
// column is mapped. A row whose id cell is blank joins on its positional id,
// the same one it was translated under. Rows without a translation get an
// empty cell.
func WriteCSV(w io.Writer, job *models.Job, content string, translations []*models.TranslationResult) error {
	table, err := rows.ReadTable(content)
	if err != nil {
		return fmt.Errorf("read original dataset: %w", err)
	}

	m := job.ColumnMapping
	joinCol, byRowID := m.RowIDColumn, true
	if strings.TrimSpace(joinCol) == "" {
		joinCol, byRowID = m.SourceTextColumn, false
	}
	if joinCol == "" && len(table.Header) > 0 {
		joinCol = table.Header[0]
	}

	byKey := make(map[string]string, len(translations))
	for _, t := range translations {
		key := t.SourceText
		if byRowID {
			key = t.RowID
		}
		byKey[strings.TrimSpace(key)] = t.TargetText
	}

	column := job.TargetLanguage
	if column == "" {
		column = untitledColumn
	}

	cw := csv.NewWriter(w)
	header := append(append([]string{}, table.Header...), column)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range table.Rows {
		record := make([]string, len(header))
		copy(record, r.Values)
		key := r.Field(joinCol)
		if byRowID {
			key = rows.Normalize(r, m, "").ID
		}
		record[len(header)-1] = byKey[strings.TrimSpace(key)]
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
