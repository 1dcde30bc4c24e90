package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rpattn/carbonsync/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore is a deterministic in-memory IngestionStore. It backs tests
// and local development in place of Postgres; the orchestrator cannot tell
// the two apart, which is the point.
type MemoryStore struct {
	mu      sync.Mutex
	factors []domain.EmissionFactor
	logs    []domain.SyncLog
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Begin(ctx context.Context) (IngestionTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memoryTx{
		store:   s,
		factors: append([]domain.EmissionFactor(nil), s.factors...),
		logs:    append([]domain.SyncLog(nil), s.logs...),
	}, nil
}

func (s *MemoryStore) CreateSyncLog(ctx context.Context, log domain.SyncLog) (domain.SyncLog, error) {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return log, nil
}

func (s *MemoryStore) ListSyncLogs(ctx context.Context, dataSourceID uuid.UUID, limit int, offset int) ([]domain.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []domain.SyncLog{}
	for _, log := range s.logs {
		if log.DataSourceID == dataSourceID {
			matched = append(matched, log)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	if offset >= len(matched) {
		return []domain.SyncLog{}, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Factors returns a copy of the committed factors, for assertions.
func (s *MemoryStore) Factors() []domain.EmissionFactor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.EmissionFactor(nil), s.factors...)
}

// SyncLogs returns a copy of the committed sync logs, for assertions.
func (s *MemoryStore) SyncLogs() []domain.SyncLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SyncLog(nil), s.logs...)
}

// memoryTx buffers writes against a snapshot; Commit swaps the snapshot in,
// Rollback discards it. That mirrors the all-or-nothing visibility of the
// Postgres transaction.
type memoryTx struct {
	store   *MemoryStore
	factors []domain.EmissionFactor
	logs    []domain.SyncLog
	done    bool
}

func (t *memoryTx) InsertFactor(ctx context.Context, factor domain.EmissionFactor) (uuid.UUID, error) {
	if t.done {
		return uuid.Nil, fmt.Errorf("transaction already closed")
	}
	if factor.ID == uuid.Nil {
		factor.ID = uuid.New()
	}
	factor.CreatedAt = time.Now().UTC()
	factor.UpdatedAt = factor.CreatedAt
	t.factors = append(t.factors, factor)
	return factor.ID, nil
}

func (t *memoryTx) UpdateFactorByExternalID(ctx context.Context, externalID string, dataSourceID uuid.UUID, factor domain.EmissionFactor) (int64, error) {
	if t.done {
		return 0, fmt.Errorf("transaction already closed")
	}
	if externalID == "" {
		return 0, nil
	}

	var affected int64
	for i := range t.factors {
		if t.factors[i].ExternalID != externalID || t.factors[i].DataSourceID != dataSourceID {
			continue
		}
		existing := &t.factors[i]
		existing.ActivityName = factor.ActivityName
		existing.CO2eFactor = factor.CO2eFactor
		existing.Unit = factor.Unit
		existing.Category = factor.Category
		existing.Geography = factor.Geography
		existing.Scope = factor.Scope
		existing.ReferenceYear = factor.ReferenceYear
		existing.DataQualityRating = factor.DataQualityRating
		existing.Metadata = factor.Metadata
		existing.UpdatedAt = time.Now().UTC()
		affected++
	}
	return affected, nil
}

func (t *memoryTx) CreateSyncLog(ctx context.Context, log domain.SyncLog) (domain.SyncLog, error) {
	if t.done {
		return domain.SyncLog{}, fmt.Errorf("transaction already closed")
	}
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	t.logs = append(t.logs, log)
	return log, nil
}

func (t *memoryTx) UpdateSyncLog(ctx context.Context, log domain.SyncLog) error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	for i := range t.logs {
		if t.logs[i].ID == log.ID {
			t.logs[i] = log
			return nil
		}
	}
	return fmt.Errorf("sync log %s not found", log.ID)
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.store.mu.Lock()
	t.store.factors = t.factors
	t.store.logs = t.logs
	t.store.mu.Unlock()
	t.done = true
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}
