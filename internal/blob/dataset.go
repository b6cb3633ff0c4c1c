package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

var ErrNoStore = errors.New("dataset content is in object storage, but no object storage is configured")

// Fetcher reads one object.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// DatasetContent returns a dataset's file content: the inline copy when there
// is one, otherwise the object under its storage key. f may be nil.
func DatasetContent(ctx context.Context, f Fetcher, d *models.Dataset) (string, error) {
	if d.FileContent != "" || d.StorageKey == nil || *d.StorageKey == "" {
		return d.FileContent, nil
	}
	if f == nil {
		return "", fmt.Errorf("dataset %s: %w", d.ID, ErrNoStore)
	}
	data, err := f.Fetch(ctx, *d.StorageKey)
	if err != nil {
		return "", fmt.Errorf("fetch dataset %s content: %w", d.ID, err)
	}
	return string(data), nil
}
