package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const jobColumns = `id, name, dataset_id, agent_id, glossary_id, glossary_usage_mode, source_language,
	target_language, column_mapping, status, progress, total_items, processed_items, failed_items,
	total_tokens, total_cost, error_message, skipped_rows, started_at, completed_at, created_at, updated_at`

const resultColumns = `id, job_id, row_id, source_text, target_text, source_language, target_language,
	status, confidence, created_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Jobs ---

// CreateJob inserts a job record. Jobs are normally created by the upstream
// management service; this is used for seeding and tests.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	mapping, err := json.Marshal(job.ColumnMapping)
	if err != nil {
		return fmt.Errorf("encode column mapping: %w", err)
	}
	query, args, err := psql.Insert("jobs").
		Columns("id", "name", "dataset_id", "agent_id", "glossary_id", "glossary_usage_mode",
			"source_language", "target_language", "column_mapping", "status", "created_at", "updated_at").
		Values(job.ID, job.Name, job.DatasetID, job.AgentID, job.GlossaryID, string(job.GlossaryUsageMode),
			job.SourceLanguage, job.TargetLanguage, mapping, string(job.Status), job.CreatedAt, job.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build create job: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) TransitionJob(ctx context.Context, id uuid.UUID, from []models.JobStatus, to models.JobStatus, opts ...JobUpdateOption) (*models.Job, error) {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	now := time.Now().UTC()
	b := psql.Update("jobs").
		Set("status", string(to)).
		Set("updated_at", now)

	if to == models.JobStatusRunning {
		b = b.Set("started_at", now)
	}
	if to.Terminal() {
		b = b.Set("completed_at", now)
	}
	if params.ErrorMessage != nil {
		b = b.Set("error_message", *params.ErrorMessage)
	}
	if params.Progress != nil {
		b = setProgress(b, *params.Progress)
	}
	if params.SkippedRows != nil {
		data, err := json.Marshal(params.SkippedRows)
		if err != nil {
			return nil, fmt.Errorf("encode skipped rows: %w", err)
		}
		b = b.Set("skipped_rows", data)
	}

	fromStatuses := make([]string, len(from))
	for i, st := range from {
		fromStatuses[i] = string(st)
	}

	query, args, err := b.
		Where(sq.Eq{"id": id, "status": fromStatuses}).
		Suffix("RETURNING " + jobColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build job transition: %w", err)
	}

	job, err := scanJob(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the job is missing or its status did not match the guard.
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, fmt.Errorf("transition job to %s: %w", to, err)
	}
	return job, nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, p JobProgress) error {
	query, args, err := setProgress(psql.Update("jobs"), p).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "status": string(models.JobStatusRunning)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build progress update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (s *PostgresStore) ListStaleJobs(ctx context.Context, status models.JobStatus, updatedBefore time.Time) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`,
		string(status), updatedBefore)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func setProgress(b sq.UpdateBuilder, p JobProgress) sq.UpdateBuilder {
	return b.
		Set("progress", p.Progress).
		Set("total_items", p.TotalItems).
		Set("processed_items", p.ProcessedItems).
		Set("failed_items", p.FailedItems).
		Set("total_tokens", p.TotalTokens).
		Set("total_cost", p.TotalCost)
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j       models.Job
		mode    string
		status  string
		mapping []byte
		skipped []byte
	)
	err := row.Scan(&j.ID, &j.Name, &j.DatasetID, &j.AgentID, &j.GlossaryID, &mode, &j.SourceLanguage,
		&j.TargetLanguage, &mapping, &status, &j.Progress, &j.TotalItems, &j.ProcessedItems, &j.FailedItems,
		&j.TotalTokens, &j.TotalCost, &j.ErrorMessage, &skipped, &j.StartedAt, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.GlossaryUsageMode = models.GlossaryMode(mode)
	j.Status = models.JobStatus(status)
	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &j.ColumnMapping); err != nil {
			return nil, fmt.Errorf("decode column mapping: %w", err)
		}
	}
	if len(skipped) > 0 {
		if err := json.Unmarshal(skipped, &j.SkippedRows); err != nil {
			return nil, fmt.Errorf("decode skipped rows: %w", err)
		}
	}
	return &j, nil
}

// --- Translation Results ---

func (s *PostgresStore) InsertResults(ctx context.Context, results []*models.TranslationResult) ([]string, error) {
	if len(results) == 0 {
		return nil, nil
	}

	b := psql.Insert("translation_results").
		Columns("id", "job_id", "row_id", "source_text", "target_text", "source_language",
			"target_language", "status", "confidence", "created_at")
	for _, r := range results {
		b = b.Values(r.ID, r.JobID, r.RowID, r.SourceText, r.TargetText, r.SourceLanguage,
			r.TargetLanguage, r.Status, r.Confidence, r.CreatedAt)
	}
	query, args, err := b.Suffix("ON CONFLICT (job_id, row_id) DO NOTHING RETURNING row_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert results: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert results: %w", err)
	}
	defer rows.Close()

	inserted := make([]string, 0, len(results))
	for rows.Next() {
		var rowID string
		if err := rows.Scan(&rowID); err != nil {
			return nil, fmt.Errorf("scan inserted row id: %w", err)
		}
		inserted = append(inserted, rowID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("insert results: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) CountResults(ctx context.Context, jobID uuid.UUID) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM translation_results WHERE job_id = $1`, jobID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, jobID uuid.UUID, offset, limit int) ([]*models.TranslationResult, error) {
	b := psql.Select(resultColumns).
		From("translation_results").
		Where(sq.Eq{"job_id": jobID}).
		OrderBy("seq")
	if offset > 0 {
		b = b.Offset(uint64(offset))
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list results: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := []*models.TranslationResult{}
	for rows.Next() {
		var r models.TranslationResult
		if err := rows.Scan(&r.ID, &r.JobID, &r.RowID, &r.SourceText, &r.TargetText,
			&r.SourceLanguage, &r.TargetLanguage, &r.Status, &r.Confidence, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) ListResultRowIDs(ctx context.Context, jobID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT row_id FROM translation_results WHERE job_id = $1 ORDER BY seq`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list result row ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan row id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) DeleteResults(ctx context.Context, jobID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM translation_results WHERE job_id = $1`, jobID)
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Resources ---

func (s *PostgresStore) GetDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	var d models.Dataset
	var fileType string
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, file_name, file_type, file_content, storage_key, row_count, created_at
		 FROM datasets WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.FileName, &fileType, &d.FileContent, &d.StorageKey, &d.RowCount, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	d.FileType = models.FileKind(fileType)
	return &d, nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var a models.Agent
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, prompt, model_id, created_at FROM agents WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Prompt, &a.ModelID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) GetModel(ctx context.Context, id uuid.UUID) (*models.Model, error) {
	var m models.Model
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, api_key_id, created_at FROM models WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.APIKeyID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) GetProviderKey(ctx context.Context, id uuid.UUID) (*models.ProviderKey, error) {
	var k models.ProviderKey
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, key_value FROM provider_keys WHERE id = $1`, id,
	).Scan(&k.ID, &k.Name, &k.KeyValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provider key: %w", err)
	}
	return &k, nil
}

func (s *PostgresStore) ListGlossaryTerms(ctx context.Context, moduleID uuid.UUID) ([]*models.GlossaryTerm, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT module_id, term, translation, language, context, note, type, description
		 FROM glossary_terms WHERE module_id = $1 ORDER BY id`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("list glossary terms: %w", err)
	}
	defer rows.Close()

	terms := []*models.GlossaryTerm{}
	for rows.Next() {
		var t models.GlossaryTerm
		if err := rows.Scan(&t.ModuleID, &t.Term, &t.Translation, &t.Language,
			&t.Context, &t.Note, &t.Type, &t.Description); err != nil {
			return nil, fmt.Errorf("scan glossary term: %w", err)
		}
		terms = append(terms, &t)
	}
	return terms, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
