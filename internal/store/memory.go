package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

// MemoryStore is an in-process Store with the same guard semantics as
// PostgresStore. It backs unit tests of the engine packages.
type MemoryStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*models.Job
	results  map[uuid.UUID][]*models.TranslationResult
	datasets map[uuid.UUID]*models.Dataset
	agents   map[uuid.UUID]*models.Agent
	models   map[uuid.UUID]*models.Model
	keys     map[uuid.UUID]*models.ProviderKey
	glossary map[uuid.UUID][]*models.GlossaryTerm
	apiKeys  map[uuid.UUID]*models.APIKey

	// GlossaryErr, when set, is returned by ListGlossaryTerms.
	GlossaryErr error
	// InsertErr, when set, is consulted before every InsertResults call.
	InsertErr func(results []*models.TranslationResult) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[uuid.UUID]*models.Job),
		results:  make(map[uuid.UUID][]*models.TranslationResult),
		datasets: make(map[uuid.UUID]*models.Dataset),
		agents:   make(map[uuid.UUID]*models.Agent),
		models:   make(map[uuid.UUID]*models.Model),
		keys:     make(map[uuid.UUID]*models.ProviderKey),
		glossary: make(map[uuid.UUID][]*models.GlossaryTerm),
		apiKeys:  make(map[uuid.UUID]*models.APIKey),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// --- seeding ---

func (m *MemoryStore) PutJob(j *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
}

func (m *MemoryStore) PutDataset(d *models.Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[d.ID] = d
}

func (m *MemoryStore) PutAgent(a *models.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = a
}

func (m *MemoryStore) PutModel(md *models.Model) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[md.ID] = md
}

func (m *MemoryStore) PutProviderKey(k *models.ProviderKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[k.ID] = k
}

func (m *MemoryStore) PutGlossaryTerms(moduleID uuid.UUID, terms ...*models.GlossaryTerm) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.glossary[moduleID] = append(m.glossary[moduleID], terms...)
}

// --- JobStore ---

func (m *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) TransitionJob(_ context.Context, id uuid.UUID, from []models.JobStatus, to models.JobStatus, opts ...JobUpdateOption) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !slices.Contains(from, j.Status) {
		return nil, ErrStatusConflict
	}
	now := time.Now().UTC()
	j.Status = to
	j.UpdatedAt = now
	if to == models.JobStatusRunning {
		j.StartedAt = &now
	}
	if to.Terminal() {
		j.CompletedAt = &now
	}
	ApplyJobUpdateOptions(j, opts...)
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) UpdateJobProgress(_ context.Context, id uuid.UUID, p JobProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobStatusRunning {
		return ErrStatusConflict
	}
	applyProgress(j, p)
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) ListStaleJobs(_ context.Context, status models.JobStatus, updatedBefore time.Time) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, j := range m.jobs {
		if j.Status == status && j.UpdatedAt.Before(updatedBefore) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SetUpdatedAt backdates a job for staleness checks.
func (m *MemoryStore) SetUpdatedAt(id uuid.UUID, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.UpdatedAt = t
	}
}

// --- ResultStore ---

func (m *MemoryStore) InsertResults(_ context.Context, results []*models.TranslationResult) ([]string, error) {
	if m.InsertErr != nil {
		if err := m.InsertErr(results); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var inserted []string
	for _, r := range results {
		existing := m.results[r.JobID]
		if slices.ContainsFunc(existing, func(e *models.TranslationResult) bool { return e.RowID == r.RowID }) {
			continue
		}
		cp := *r
		m.results[r.JobID] = append(existing, &cp)
		inserted = append(inserted, r.RowID)
	}
	return inserted, nil
}

func (m *MemoryStore) CountResults(_ context.Context, jobID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results[jobID]), nil
}

func (m *MemoryStore) ListResults(_ context.Context, jobID uuid.UUID, offset, limit int) ([]*models.TranslationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.results[jobID]
	if offset >= len(all) {
		return []*models.TranslationResult{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*models.TranslationResult, 0, end-offset)
	for _, r := range all[offset:end] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) ListResultRowIDs(_ context.Context, jobID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, r := range m.results[jobID] {
		ids = append(ids, r.RowID)
	}
	return ids, nil
}

func (m *MemoryStore) DeleteResults(_ context.Context, jobID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.results[jobID])
	delete(m.results, jobID)
	return int64(n), nil
}

// --- ResourceStore ---

func (m *MemoryStore) GetDataset(_ context.Context, id uuid.UUID) (*models.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.datasets[id]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetAgent(_ context.Context, id uuid.UUID) (*models.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[id]; ok {
		return a, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetModel(_ context.Context, id uuid.UUID) (*models.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if md, ok := m.models[id]; ok {
		return md, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetProviderKey(_ context.Context, id uuid.UUID) (*models.ProviderKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[id]; ok {
		return k, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListGlossaryTerms(_ context.Context, moduleID uuid.UUID) ([]*models.GlossaryTerm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GlossaryErr != nil {
		return nil, m.GlossaryErr
	}
	return slices.Clone(m.glossary[moduleID]), nil
}

// --- APIKeyStore ---

func (m *MemoryStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.APIKey
	for _, k := range m.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.apiKeys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return nil
}

func (m *MemoryStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apiKeys[key.ID]; ok {
		return ErrDuplicateKey
	}
	m.apiKeys[key.ID] = key
	return nil
}

func (m *MemoryStore) ListAPIKeys(context.Context) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.APIKey
	for _, k := range m.apiKeys {
		if k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *MemoryStore) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.apiKeys[id]
	if !ok || k.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	return nil
}
