package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/internal/blob"
	"github.com/kiranshivaraju/batchlingo/internal/export"
	"github.com/kiranshivaraju/batchlingo/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExporter struct {
	file  *export.File
	err   error
	req   export.Request
	calls int
}

func (f *fakeExporter) Export(_ context.Context, _ uuid.UUID, req export.Request) (*export.File, error) {
	f.calls++
	f.req = req
	return f.file, f.err
}

func TestDownloadHandler_DefaultsToJSONPageOne(t *testing.T) {
	exp := &fakeExporter{file: &export.File{
		ContentType: "application/json",
		FileName:    "Products_translations_page_1.json",
		Body:        []byte(`{"translations":[]}`),
	}}
	rec := httptest.NewRecorder()

	NewDownloadHandler(exp).ServeHTTP(rec, jobRequest(http.MethodGet, "/", uuid.NewString()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.Request{Format: export.FormatJSON, Page: 1, Limit: 1000}, exp.req)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Products_translations_page_1.json"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "19", rec.Header().Get("Content-Length"))
	assert.Equal(t, `{"translations":[]}`, rec.Body.String())
}

func TestDownloadHandler_PassesFormatPageLimit(t *testing.T) {
	exp := &fakeExporter{file: &export.File{ContentType: "text/csv", FileName: "x.csv", Body: []byte("id\n")}}
	rec := httptest.NewRecorder()

	NewDownloadHandler(exp).ServeHTTP(rec,
		jobRequest(http.MethodGet, "/?format=CSV&page=3&limit=5000", uuid.NewString()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.Request{Format: export.FormatCSV, Page: 3, Limit: 5000}, exp.req)
}

func TestDownloadHandler_Validation(t *testing.T) {
	tests := []struct {
		query string
		code  string
	}{
		{"?format=pdf", "UNSUPPORTED_FORMAT"},
		{"?page=0", "INVALID_REQUEST"},
		{"?page=x", "INVALID_REQUEST"},
		{"?limit=0", "INVALID_REQUEST"},
		{"?limit=5001", "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			exp := &fakeExporter{}
			rec := httptest.NewRecorder()

			NewDownloadHandler(exp).ServeHTTP(rec, jobRequest(http.MethodGet, "/"+tt.query, uuid.NewString()))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeErr(t, rec)["code"])
			assert.Zero(t, exp.calls)
		})
	}
}

func TestDownloadHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown job", store.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"dataset kind", fmt.Errorf("%w: xml export needs an xml dataset", export.ErrUnsupportedFormat),
			http.StatusBadRequest, "UNSUPPORTED_FORMAT"},
		{"no translations", export.ErrNoTranslations, http.StatusNotFound, "NO_TRANSLATIONS"},
		{"missing object", fmt.Errorf("fetch datasets/a.csv: %w", blob.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"no object store", blob.ErrNoStore, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			NewDownloadHandler(&fakeExporter{err: tt.err}).ServeHTTP(rec,
				jobRequest(http.MethodGet, "/?format=xml", uuid.NewString()))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeErr(t, rec)["code"])
		})
	}
}
