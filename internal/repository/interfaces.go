package repository

import (
	"context"

	"github.com/rpattn/carbonsync/internal/domain"

	"github.com/google/uuid"
)

// DataSourceRepository defines the interface for data-source catalog operations
type DataSourceRepository interface {
	Create(ctx context.Context, source domain.DataSource) (domain.DataSource, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.DataSource, error)
	GetByName(ctx context.Context, name string) (domain.DataSource, error)
	List(ctx context.Context) ([]domain.DataSource, error)
	Update(ctx context.Context, source domain.DataSource) (domain.DataSource, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// IngestionStore is the persistence port consumed by the sync orchestrator.
// Begin opens the transaction all upserts of one run ride in; CreateSyncLog
// on the store itself writes outside any transaction, which is what the
// failure path needs after the run's transaction has rolled back.
type IngestionStore interface {
	Begin(ctx context.Context) (IngestionTx, error)
	CreateSyncLog(ctx context.Context, log domain.SyncLog) (domain.SyncLog, error)
	ListSyncLogs(ctx context.Context, dataSourceID uuid.UUID, limit int, offset int) ([]domain.SyncLog, error)
}

// IngestionTx exposes the transactional operations of one sync run.
// Rollback after Commit is a no-op, so callers may defer it unconditionally.
type IngestionTx interface {
	InsertFactor(ctx context.Context, factor domain.EmissionFactor) (uuid.UUID, error)
	UpdateFactorByExternalID(ctx context.Context, externalID string, dataSourceID uuid.UUID, factor domain.EmissionFactor) (int64, error)
	CreateSyncLog(ctx context.Context, log domain.SyncLog) (domain.SyncLog, error)
	UpdateSyncLog(ctx context.Context, log domain.SyncLog) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
