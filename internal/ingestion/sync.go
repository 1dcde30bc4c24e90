package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rpattn/carbonsync/internal/domain"
	"github.com/rpattn/carbonsync/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncResult is returned to the caller after every run, success or failure,
// so partial progress stays inspectable. Validation errors in an otherwise
// completed result do not make the run a failure.
type SyncResult struct {
	SyncLogID        uuid.UUID         `json:"sync_log_id"`
	Status           domain.SyncStatus `json:"status"`
	RecordsProcessed int               `json:"records_processed"`
	RecordsCreated   int               `json:"records_created"`
	RecordsUpdated   int               `json:"records_updated"`
	RecordsSkipped   int               `json:"records_skipped"`
	RecordsFailed    int               `json:"records_failed"`
	Errors           []RecordError     `json:"errors,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// syncStats is the accumulator threaded through the record loop. Skipped is
// reserved for unchanged data; no current connector produces it.
type syncStats struct {
	processed int
	created   int
	updated   int
	skipped   int
	failed    int
}

func (s syncStats) applyTo(log *domain.SyncLog) {
	log.RecordsProcessed = s.processed
	log.RecordsCreated = s.created
	log.RecordsUpdated = s.updated
	log.RecordsSkipped = s.skipped
	log.RecordsFailed = s.failed
}

// Orchestrator owns the sync-log lifecycle of one run at a time. It is safe
// to run concurrently for different data sources; concurrent runs for the
// same source must be serialized by the caller.
type Orchestrator struct {
	store  repository.IngestionStore
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator over the given store.
func NewOrchestrator(store repository.IngestionStore, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{store: store, logger: logger}
}

// ExecuteSync runs one full fetch → parse → transform → validate/upsert
// pipeline inside a single transaction. Record-level validation failures are
// absorbed into counters; any systemic failure rolls the transaction back,
// writes a fresh failed sync log outside it (best effort), and is returned.
func (o *Orchestrator) ExecuteSync(ctx context.Context, source domain.DataSource, syncType domain.SyncType, conn Connector) (SyncResult, error) {
	collector := &ErrorCollector{}
	stats := syncStats{}
	log := domain.NewSyncLog(source.ID, syncType)

	logger := o.logger.With(
		zap.String("data_source", source.Name),
		zap.String("sync_log_id", log.ID.String()),
	)
	logger.Info("sync started", zap.String("sync_type", string(syncType)))

	tx, err := o.store.Begin(ctx)
	if err != nil {
		return o.fail(ctx, log, stats, collector, fmt.Errorf("failed to begin sync transaction: %w", err))
	}

	log, err = tx.CreateSyncLog(ctx, log)
	if err != nil {
		_ = tx.Rollback(ctx)
		return o.fail(ctx, log, stats, collector, err)
	}

	raw, err := conn.FetchRawData(ctx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return o.fail(ctx, log, stats, collector, err)
	}

	records, err := conn.ParseData(raw)
	if err != nil {
		_ = tx.Rollback(ctx)
		return o.fail(ctx, log, stats, collector, err)
	}

	factors, err := conn.TransformData(records)
	if err != nil {
		_ = tx.Rollback(ctx)
		return o.fail(ctx, log, stats, collector, err)
	}

	stats, err = o.processRecords(ctx, tx, factors, collector)
	if err != nil {
		_ = tx.Rollback(ctx)
		return o.fail(ctx, log, stats, collector, err)
	}

	now := time.Now().UTC()
	if !log.Status.CanTransitionTo(domain.SyncStatusCompleted) {
		_ = tx.Rollback(ctx)
		return o.fail(ctx, log, stats, collector, fmt.Errorf("invalid sync status transition %s -> %s", log.Status, domain.SyncStatusCompleted))
	}
	log.Status = domain.SyncStatusCompleted
	log.CompletedAt = &now
	stats.applyTo(&log)
	log.ErrorDetails = serializeErrors(collector.Errors())

	if err := tx.UpdateSyncLog(ctx, log); err != nil {
		_ = tx.Rollback(ctx)
		return o.fail(ctx, log, stats, collector, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return o.fail(ctx, log, stats, collector, err)
	}

	logger.Info("sync completed",
		zap.Int("processed", stats.processed),
		zap.Int("created", stats.created),
		zap.Int("updated", stats.updated),
		zap.Int("failed", stats.failed),
	)

	return buildResult(log, collector), nil
}

// processRecords validates and upserts each factor in order, returning the
// accumulated stats. A store error is systemic and aborts the batch; a
// validation failure only bumps the failed counter.
func (o *Orchestrator) processRecords(ctx context.Context, tx repository.IngestionTx, factors []domain.EmissionFactor, collector *ErrorCollector) (syncStats, error) {
	stats := syncStats{}
	touched := make(map[string]struct{})

	for _, factor := range factors {
		stats.processed++

		if !Validate(factor, collector) {
			stats.failed++
			continue
		}

		// Update-then-insert: repeated syncs of unchanged upstream data
		// converge to updates, never duplicate inserts.
		if factor.ExternalID != "" {
			affected, err := tx.UpdateFactorByExternalID(ctx, factor.ExternalID, factor.DataSourceID, factor)
			if err != nil {
				// The aborting record lands in the failed bucket so the
				// persisted counters keep processed = created+updated+skipped+failed.
				stats.failed++
				return stats, fmt.Errorf("failed to upsert factor %q: %w", factor.ExternalID, err)
			}
			if affected > 0 {
				stats.updated++
				touched[factor.ExternalID] = struct{}{}
				continue
			}
		}

		if _, err := tx.InsertFactor(ctx, factor); err != nil {
			stats.failed++
			return stats, fmt.Errorf("failed to insert factor %q: %w", factor.ActivityName, err)
		}
		stats.created++
		if factor.ExternalID != "" {
			touched[factor.ExternalID] = struct{}{}
		}
	}

	o.logger.Debug("record loop finished",
		zap.Int("processed", stats.processed),
		zap.Int("distinct_external_ids", len(touched)),
	)

	return stats, nil
}

// fail finalizes a run that hit a systemic error. The in-progress log row
// rolled back with the transaction, so a new failed log is written outside
// any transaction; if even that fails the error is swallowed so the
// original cause reaches the caller.
func (o *Orchestrator) fail(ctx context.Context, log domain.SyncLog, stats syncStats, collector *ErrorCollector, cause error) (SyncResult, error) {
	now := time.Now().UTC()

	failed := domain.SyncLog{
		ID:           uuid.New(),
		DataSourceID: log.DataSourceID,
		SyncType:     log.SyncType,
		Status:       domain.SyncStatusFailed,
		StartedAt:    log.StartedAt,
		CompletedAt:  &now,
		ErrorMessage: cause.Error(),
		ErrorDetails: serializeErrors(collector.Errors()),
	}
	stats.applyTo(&failed)

	if _, logErr := o.store.CreateSyncLog(ctx, failed); logErr != nil {
		o.logger.Error("failed to record failed sync",
			zap.String("data_source_id", log.DataSourceID.String()),
			zap.Error(logErr),
		)
	}

	o.logger.Error("sync failed",
		zap.String("data_source_id", log.DataSourceID.String()),
		zap.Error(cause),
	)

	return buildResult(failed, collector), cause
}

func buildResult(log domain.SyncLog, collector *ErrorCollector) SyncResult {
	return SyncResult{
		SyncLogID:        log.ID,
		Status:           log.Status,
		RecordsProcessed: log.RecordsProcessed,
		RecordsCreated:   log.RecordsCreated,
		RecordsUpdated:   log.RecordsUpdated,
		RecordsSkipped:   log.RecordsSkipped,
		RecordsFailed:    log.RecordsFailed,
		Errors:           collector.Errors(),
		StartedAt:        log.StartedAt,
		CompletedAt:      log.CompletedAt,
	}
}

func serializeErrors(errs []RecordError) string {
	if len(errs) == 0 {
		return ""
	}
	payload, err := json.Marshal(errs)
	if err != nil {
		return ""
	}
	return string(payload)
}
