// Package glossary loads the glossary terms that apply to a job's target language.
package glossary

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

// Wildcard language markers. A term carrying one applies to every target.
const (
	LanguageAll = "all"
	LanguageAny = "*"
)

// TermSource returns the raw, unfiltered terms of a glossary module.
type TermSource interface {
	ListGlossaryTerms(ctx context.Context, moduleID uuid.UUID) ([]*models.GlossaryTerm, error)
}

// Loader fetches and filters glossary terms. Glossaries are a soft dependency:
// a fetch failure yields no terms rather than an error.
type Loader struct {
	src    TermSource
	logger *slog.Logger
}

func NewLoader(src TermSource, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{src: src, logger: logger}
}

// Load returns the terms of glossaryID applicable to targetLang, in stored order.
// It does not query when mode is ignore or no glossary is set.
func (l *Loader) Load(ctx context.Context, glossaryID *uuid.UUID, targetLang string, mode models.GlossaryMode) []models.GlossaryTerm {
	if glossaryID == nil || mode == models.GlossaryIgnore {
		return nil
	}

	terms, err := l.src.ListGlossaryTerms(ctx, *glossaryID)
	if err != nil {
		l.logger.Warn("glossary fetch failed, continuing without glossary",
			"glossary_id", glossaryID.String(),
			"error", err,
		)
		return nil
	}

	filtered := Filter(terms, targetLang)
	l.logger.Info("glossary loaded",
		"glossary_id", glossaryID.String(),
		"target_language", targetLang,
		"total", len(terms),
		"applicable", len(filtered),
	)
	return filtered
}

// Filter keeps the terms whose language is unset, equals targetLang, or is a
// wildcard marker.
func Filter(terms []*models.GlossaryTerm, targetLang string) []models.GlossaryTerm {
	var out []models.GlossaryTerm
	for _, t := range terms {
		if t != nil && Applies(t, targetLang) {
			out = append(out, *t)
		}
	}
	return out
}

func Applies(t *models.GlossaryTerm, targetLang string) bool {
	if t.Language == nil {
		return true
	}
	switch *t.Language {
	case "", LanguageAll, LanguageAny, targetLang:
		return true
	}
	return false
}
