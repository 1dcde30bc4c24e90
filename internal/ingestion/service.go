package ingestion

import (
	"context"
	"fmt"

	"github.com/rpattn/carbonsync/internal/domain"
	"github.com/rpattn/carbonsync/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is the caller-facing API of the ingestion framework: it resolves a
// configured data source to its connector and runs one sync.
type Service struct {
	sources      repository.DataSourceRepository
	store        repository.IngestionStore
	registry     *Registry
	deps         Deps
	orchestrator *Orchestrator
}

// NewService wires the ingestion service.
func NewService(
	sources repository.DataSourceRepository,
	store repository.IngestionStore,
	registry *Registry,
	deps Deps,
) *Service {
	return &Service{
		sources:      sources,
		store:        store,
		registry:     registry,
		deps:         deps,
		orchestrator: NewOrchestrator(store, deps.Logger),
	}
}

// TriggerSync runs one sync for the given data source. The returned result
// is best-effort even when err is non-nil.
func (s *Service) TriggerSync(ctx context.Context, dataSourceID uuid.UUID, syncType domain.SyncType) (SyncResult, error) {
	source, err := s.sources.GetByID(ctx, dataSourceID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to load data source: %w", err)
	}
	if !source.Active {
		return SyncResult{}, fmt.Errorf("data source %q is inactive", source.Name)
	}

	factory, err := s.registry.Lookup(source.Name)
	if err != nil {
		return SyncResult{}, err
	}

	conn, err := factory(source, s.deps)
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to build connector for %q: %w", source.Name, err)
	}

	s.deps.Logger.Info("triggering sync",
		zap.String("data_source", source.Name),
		zap.String("sync_type", string(syncType)),
	)
	return s.orchestrator.ExecuteSync(ctx, source, syncType, conn)
}

// SyncHistory lists the audit trail for a data source, newest first.
func (s *Service) SyncHistory(ctx context.Context, dataSourceID uuid.UUID, limit int, offset int) ([]domain.SyncLog, error) {
	return s.store.ListSyncLogs(ctx, dataSourceID, limit, offset)
}

// ListSources returns the configured data-source catalog.
func (s *Service) ListSources(ctx context.Context) ([]domain.DataSource, error) {
	return s.sources.List(ctx)
}

// GetSource returns one catalog entry.
func (s *Service) GetSource(ctx context.Context, id uuid.UUID) (domain.DataSource, error) {
	return s.sources.GetByID(ctx, id)
}

// CreateSource adds a catalog entry. The name is the registry key, so it
// must have a registered connector, and it must be unique.
func (s *Service) CreateSource(ctx context.Context, source domain.DataSource) (domain.DataSource, error) {
	if _, err := s.registry.Lookup(source.Name); err != nil {
		return domain.DataSource{}, err
	}
	if _, err := s.sources.GetByName(ctx, source.Name); err == nil {
		return domain.DataSource{}, fmt.Errorf("data source %q already exists", source.Name)
	}
	return s.sources.Create(ctx, source)
}

// UpdateSource replaces a catalog entry; renames must still resolve to a
// registered connector.
func (s *Service) UpdateSource(ctx context.Context, source domain.DataSource) (domain.DataSource, error) {
	if _, err := s.registry.Lookup(source.Name); err != nil {
		return domain.DataSource{}, err
	}
	return s.sources.Update(ctx, source)
}

// DeleteSource removes a catalog entry; its factors and sync logs cascade.
func (s *Service) DeleteSource(ctx context.Context, id uuid.UUID) error {
	return s.sources.Delete(ctx, id)
}
