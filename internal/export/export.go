// Package export renders a job's translations as a downloadable file.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/internal/blob"
	"github.com/kiranshivaraju/batchlingo/internal/results"
	"github.com/kiranshivaraju/batchlingo/internal/rows"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrNoTranslations    = errors.New("no translations found")
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXML:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// File is a rendered export.
type File struct {
	ContentType string
	FileName    string
	Body        []byte
}

type Store interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
}

// Request selects the format and, for JSON and XML, a 1-based page. CSV
// always covers every stored translation.
type Request struct {
	Format Format
	Page   int
	Limit  int
}

type Exporter struct {
	store   Store
	results *results.Accessor
	blobs   blob.Fetcher
}

// NewExporter builds an Exporter. blobs may be nil when every dataset keeps
// its content inline.
func NewExporter(st Store, acc *results.Accessor, blobs blob.Fetcher) *Exporter {
	return &Exporter{store: st, results: acc, blobs: blobs}
}

func (e *Exporter) Export(ctx context.Context, jobID uuid.UUID, req Request) (*File, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	dataset, err := e.store.GetDataset(ctx, job.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	var buf bytes.Buffer
	switch req.Format {
	case FormatJSON, "":
		page, err := e.results.Page(ctx, jobID, req.Page, req.Limit)
		if err != nil {
			return nil, err
		}
		if err := WriteJSON(&buf, job, dataset, page); err != nil {
			return nil, err
		}
		return &File{
			ContentType: "application/json",
			FileName:    fmt.Sprintf("%s_translations_page_%d.json", baseName(job), page.Page),
			Body:        buf.Bytes(),
		}, nil

	case FormatCSV:
		kind, err := rows.DetectKind(dataset)
		if err != nil || kind != models.FileKindCSV {
			return nil, fmt.Errorf("%w: csv export needs a csv dataset", ErrUnsupportedFormat)
		}
		content, err := blob.DatasetContent(ctx, e.blobs, dataset)
		if err != nil {
			return nil, err
		}
		all, err := e.results.Paginated(ctx, jobID, results.DefaultPageSize)
		if err != nil {
			return nil, err
		}
		if err := WriteCSV(&buf, job, content, all); err != nil {
			return nil, err
		}
		return &File{
			ContentType: "text/csv",
			FileName:    baseName(job) + "_translations.csv",
			Body:        buf.Bytes(),
		}, nil

	case FormatXML:
		kind, err := rows.DetectKind(dataset)
		if err != nil || kind != models.FileKindXML {
			return nil, fmt.Errorf("%w: xml export needs an xml dataset", ErrUnsupportedFormat)
		}
		page, err := e.results.Page(ctx, jobID, req.Page, req.Limit)
		if err != nil {
			return nil, err
		}
		if len(page.Results) == 0 {
			return nil, ErrNoTranslations
		}
		if err := WriteXML(&buf, page.Results); err != nil {
			return nil, err
		}
		return &File{
			ContentType: "application/xml",
			FileName:    fmt.Sprintf("%s_translations_page_%d.xml", baseName(job), page.Page),
			Body:        buf.Bytes(),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
}

// baseName is the job name made safe for a Content-Disposition filename.
func baseName(job *models.Job) string {
	name := strings.TrimSpace(job.Name)
	if name == "" {
		return "job"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '/', '\r', '\n':
			return '_'
		}
		return r
	}, name)
}
