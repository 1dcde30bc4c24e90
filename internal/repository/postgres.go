package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpattn/carbonsync/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the sync-log
// statements can run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires an IngestionStore backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) IngestionStore {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) Begin(ctx context.Context) (IngestionTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

func (s *postgresStore) CreateSyncLog(ctx context.Context, log domain.SyncLog) (domain.SyncLog, error) {
	return createSyncLog(ctx, s.pool, log)
}

func (s *postgresStore) ListSyncLogs(ctx context.Context, dataSourceID uuid.UUID, limit int, offset int) ([]domain.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT id, data_source_id, sync_type, status, started_at, completed_at,
		        records_processed, records_created, records_updated, records_skipped, records_failed,
		        error_message, error_details
		 FROM sync_logs
		 WHERE data_source_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`,
		dataSourceID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.SyncLog{}
	for rows.Next() {
		var (
			log          domain.SyncLog
			completedAt  pgtype.Timestamptz
			errorMessage pgtype.Text
			errorDetails pgtype.Text
		)
		if scanErr := rows.Scan(
			&log.ID,
			&log.DataSourceID,
			&log.SyncType,
			&log.Status,
			&log.StartedAt,
			&completedAt,
			&log.RecordsProcessed,
			&log.RecordsCreated,
			&log.RecordsUpdated,
			&log.RecordsSkipped,
			&log.RecordsFailed,
			&errorMessage,
			&errorDetails,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", scanErr)
		}
		if completedAt.Valid {
			t := completedAt.Time
			log.CompletedAt = &t
		}
		if errorMessage.Valid {
			log.ErrorMessage = errorMessage.String
		}
		if errorDetails.Valid {
			log.ErrorDetails = errorDetails.String
		}
		logs = append(logs, log)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate sync logs: %w", rowsErr)
	}

	return logs, nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) InsertFactor(ctx context.Context, factor domain.EmissionFactor) (uuid.UUID, error) {
	if factor.ID == uuid.Nil {
		factor.ID = uuid.New()
	}

	metadata, err := marshalMetadata(factor.Metadata)
	if err != nil {
		return uuid.Nil, err
	}

	_, err = t.tx.Exec(
		ctx,
		`INSERT INTO emission_factors
		   (id, data_source_id, activity_name, co2e_factor, unit, external_id,
		    category, geography, scope, reference_year, data_quality_rating, metadata)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, NULLIF($10, 0), NULLIF($11, 0.0), $12)`,
		factor.ID,
		factor.DataSourceID,
		factor.ActivityName,
		factor.CO2eFactor,
		factor.Unit,
		factor.ExternalID,
		factor.Category,
		factor.Geography,
		factor.Scope,
		factor.ReferenceYear,
		factor.DataQualityRating,
		metadata,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert emission factor: %w", err)
	}

	return factor.ID, nil
}

func (t *postgresTx) UpdateFactorByExternalID(ctx context.Context, externalID string, dataSourceID uuid.UUID, factor domain.EmissionFactor) (int64, error) {
	metadata, err := marshalMetadata(factor.Metadata)
	if err != nil {
		return 0, err
	}

	tag, err := t.tx.Exec(
		ctx,
		`UPDATE emission_factors
		 SET activity_name = $1,
		     co2e_factor = $2,
		     unit = $3,
		     category = $4,
		     geography = $5,
		     scope = $6,
		     reference_year = NULLIF($7, 0),
		     data_quality_rating = NULLIF($8, 0.0),
		     metadata = $9,
		     updated_at = now()
		 WHERE external_id = $10 AND data_source_id = $11`,
		factor.ActivityName,
		factor.CO2eFactor,
		factor.Unit,
		factor.Category,
		factor.Geography,
		factor.Scope,
		factor.ReferenceYear,
		factor.DataQualityRating,
		metadata,
		externalID,
		dataSourceID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update emission factor: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (t *postgresTx) CreateSyncLog(ctx context.Context, log domain.SyncLog) (domain.SyncLog, error) {
	return createSyncLog(ctx, t.tx, log)
}

func (t *postgresTx) UpdateSyncLog(ctx context.Context, log domain.SyncLog) error {
	return updateSyncLog(ctx, t.tx, log)
}

func (t *postgresTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func createSyncLog(ctx context.Context, q querier, log domain.SyncLog) (domain.SyncLog, error) {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	_, err := q.Exec(
		ctx,
		`INSERT INTO sync_logs
		   (id, data_source_id, sync_type, status, started_at, completed_at,
		    records_processed, records_created, records_updated, records_skipped, records_failed,
		    error_message, error_details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), NULLIF($13, ''))`,
		log.ID,
		log.DataSourceID,
		log.SyncType,
		log.Status,
		log.StartedAt,
		log.CompletedAt,
		log.RecordsProcessed,
		log.RecordsCreated,
		log.RecordsUpdated,
		log.RecordsSkipped,
		log.RecordsFailed,
		log.ErrorMessage,
		log.ErrorDetails,
	)
	if err != nil {
		return domain.SyncLog{}, fmt.Errorf("failed to create sync log: %w", err)
	}

	return log, nil
}

func updateSyncLog(ctx context.Context, q querier, log domain.SyncLog) error {
	_, err := q.Exec(
		ctx,
		`UPDATE sync_logs
		 SET status = $1,
		     completed_at = $2,
		     records_processed = $3,
		     records_created = $4,
		     records_updated = $5,
		     records_skipped = $6,
		     records_failed = $7,
		     error_message = NULLIF($8, ''),
		     error_details = NULLIF($9, '')
		 WHERE id = $10`,
		log.Status,
		log.CompletedAt,
		log.RecordsProcessed,
		log.RecordsCreated,
		log.RecordsUpdated,
		log.RecordsSkipped,
		log.RecordsFailed,
		log.ErrorMessage,
		log.ErrorDetails,
		log.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync log: %w", err)
	}
	return nil
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal factor metadata: %w", err)
	}
	return payload, nil
}
