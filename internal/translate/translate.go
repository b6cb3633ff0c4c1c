// Package translate turns one dataset row into one model call and classifies
// the outcome.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/internal/llm"
	"github.com/kiranshivaraju/batchlingo/internal/retry"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

const (
	ReasonEmptySource       = "Empty source text"
	reasonTranslationFailed = "Translation failed: "
)

var errEmptyTranslation = errors.New("model returned empty content")

// JobContext is everything about a job that a row translation needs. It is
// resolved once before batching starts.
type JobContext struct {
	JobID          uuid.UUID
	AgentPrompt    string
	ModelName      string
	Credential     string
	TargetLanguage string
	Glossary       []models.GlossaryTerm
}

// Outcome is the classified result of one row. Exactly one of Result and
// Reason is set.
type Outcome struct {
	Row    models.Row
	Result *models.TranslationResult
	Reason string
	Tokens int
	Cost   float64
}

func (o Outcome) Skipped() bool { return o.Result == nil }

// Skip builds the diagnostic record for a skipped outcome.
func (o Outcome) Skip() models.SkippedRow {
	return SkipRecord(o.Row, o.Reason)
}

func SkipRecord(row models.Row, reason string) models.SkippedRow {
	return models.SkippedRow{
		RowID:     row.ID,
		RowNumber: row.Index + 1,
		Reason:    reason,
		Data:      row.Raw,
	}
}

type Options struct {
	// Retry defaults to retry.DefaultPolicy when none of its limits are set.
	Retry        retry.Policy
	Timeout      time.Duration
	CostPerToken float64
	Confidence   float64
	Logger       *slog.Logger
}

// Translator is safe for concurrent use.
type Translator struct {
	client       llm.Client
	policy       retry.Policy
	timeout      time.Duration
	costPerToken float64
	confidence   float64
	logger       *slog.Logger
}

func New(client llm.Client, opts Options) *Translator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.IsZero() {
		retryable := opts.Retry.Retryable
		opts.Retry = retry.DefaultPolicy
		opts.Retry.Retryable = retryable
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = llm.IsTransient
	}
	return &Translator{
		client:       client,
		policy:       opts.Retry,
		timeout:      opts.Timeout,
		costPerToken: opts.CostPerToken,
		confidence:   opts.Confidence,
		logger:       opts.Logger,
	}
}

// Translate never fails for content or availability problems; those come back
// as a skipped Outcome. The error is non-nil only when ctx ended before the
// model answered; an answer that arrived is kept even if ctx ended after.
func (t *Translator) Translate(ctx context.Context, row models.Row, jc *JobContext) (Outcome, error) {
	out := Outcome{Row: row}
	if strings.TrimSpace(row.SourceText) == "" {
		out.Reason = ReasonEmptySource
		return out, nil
	}

	req := llm.Request{
		Model: jc.ModelName,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: SystemPrompt(jc.AgentPrompt, jc.Glossary)},
			{Role: llm.RoleUser, Content: UserPrompt(row.SourceLanguage, jc.TargetLanguage, row.SourceText)},
		},
		Credential: jc.Credential,
	}

	resp, err := retry.Do(ctx, t.policy, func(ctx context.Context) (llm.Response, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()
		return t.client.Complete(attemptCtx, req)
	}, func(err error, delay time.Duration) {
		t.logger.Warn("model call rate limited, retrying",
			"job_id", jc.JobID.String(),
			"row_id", row.ID,
			"delay", delay.String(),
			"error", err,
		)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
	} else if strings.TrimSpace(resp.Content) == "" {
		err = errEmptyTranslation
	}
	if err != nil {
		out.Reason = reasonTranslationFailed + err.Error()
		return out, nil
	}

	out.Tokens = EstimateTokens(row.SourceText, resp.Content)
	out.Cost = float64(out.Tokens) * t.costPerToken
	out.Result = &models.TranslationResult{
		ID:             uuid.New(),
		JobID:          jc.JobID,
		RowID:          row.ID,
		SourceText:     row.SourceText,
		TargetText:     resp.Content,
		SourceLanguage: row.SourceLanguage,
		TargetLanguage: jc.TargetLanguage,
		Status:         models.ResultStatusCompleted,
		Confidence:     t.confidence,
		CreatedAt:      time.Now().UTC(),
	}
	return out, nil
}

// SystemPrompt appends a glossary block to the agent prompt when there are terms.
func SystemPrompt(agentPrompt string, terms []models.GlossaryTerm) string {
	if len(terms) == 0 {
		return agentPrompt
	}
	var b strings.Builder
	b.WriteString(agentPrompt)
	b.WriteString("\n\nGlossary terms to use:\n")
	for i, term := range terms {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s → %s", term.Term, term.Translation)
		if term.Context != "" {
			fmt.Fprintf(&b, " (%s)", term.Context)
		}
	}
	return b.String()
}

func UserPrompt(sourceLang, targetLang, text string) string {
	return fmt.Sprintf("Translate the following text from %s to %s:\n\n%s", sourceLang, targetLang, text)
}

// EstimateTokens is a length heuristic, roughly four characters per token.
func EstimateTokens(source, target string) int {
	n := utf8.RuneCountInString(source) + utf8.RuneCountInString(target)
	return (n + 3) / 4
}
