package rows

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Table is a parsed delimited file with its header preserved in order.
type Table struct {
	Header []string
	Rows   []DelimitedRow
}

func (t *Table) HasColumn(name string) bool {
	return slices.Contains(t.Header, name)
}

// ReadTable parses comma-delimited content with a header row. Records whose
// every field is blank are dropped and do not consume a row number.
func ReadTable(content string) (*Table, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty content", ErrMalformed)
	}

	r := csv.NewReader(strings.NewReader(content))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformed, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &Table{Header: header}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if blank(rec) {
			continue
		}
		t.Rows = append(t.Rows, DelimitedRow{
			Number: len(t.Rows) + 1,
			Header: header,
			Values: rec,
		})
	}
	return t, nil
}

func (t *Table) sources() []Source {
	out := make([]Source, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r
	}
	return out
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
