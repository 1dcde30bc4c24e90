package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/carbonsync/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dataSourceRepository implements DataSourceRepository interface
type dataSourceRepository struct {
	pool *pgxpool.Pool
}

// NewDataSourceRepository creates a new data-source repository
func NewDataSourceRepository(pool *pgxpool.Pool) DataSourceRepository {
	return &dataSourceRepository{pool: pool}
}

const dataSourceColumns = `id, name, source_type, file_key, description, active, created_at, updated_at`

// Create creates a new data source
func (r *dataSourceRepository) Create(ctx context.Context, source domain.DataSource) (domain.DataSource, error) {
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO data_sources (id, name, source_type, file_key, description, active)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		 RETURNING `+dataSourceColumns,
		source.ID,
		source.Name,
		source.SourceType,
		source.FileKey,
		source.Description,
		source.Active,
	)

	created, err := scanDataSource(row)
	if err != nil {
		return domain.DataSource{}, fmt.Errorf("failed to create data source: %w", err)
	}
	return created, nil
}

// GetByID retrieves a data source by ID
func (r *dataSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.DataSource, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+dataSourceColumns+` FROM data_sources WHERE id = $1`, id)
	source, err := scanDataSource(row)
	if err != nil {
		return domain.DataSource{}, fmt.Errorf("failed to get data source: %w", err)
	}
	return source, nil
}

// GetByName retrieves a data source by its configured name
func (r *dataSourceRepository) GetByName(ctx context.Context, name string) (domain.DataSource, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+dataSourceColumns+` FROM data_sources WHERE name = $1`, name)
	source, err := scanDataSource(row)
	if err != nil {
		return domain.DataSource{}, fmt.Errorf("failed to get data source by name: %w", err)
	}
	return source, nil
}

// List retrieves all data sources
func (r *dataSourceRepository) List(ctx context.Context) ([]domain.DataSource, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+dataSourceColumns+` FROM data_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	defer rows.Close()

	sources := []domain.DataSource{}
	for rows.Next() {
		source, scanErr := scanDataSource(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan data source: %w", scanErr)
		}
		sources = append(sources, source)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate data sources: %w", rowsErr)
	}

	return sources, nil
}

// Update updates a data source
func (r *dataSourceRepository) Update(ctx context.Context, source domain.DataSource) (domain.DataSource, error) {
	row := r.pool.QueryRow(
		ctx,
		`UPDATE data_sources
		 SET name = $1,
		     source_type = $2,
		     file_key = NULLIF($3, ''),
		     description = NULLIF($4, ''),
		     active = $5,
		     updated_at = now()
		 WHERE id = $6
		 RETURNING `+dataSourceColumns,
		source.Name,
		source.SourceType,
		source.FileKey,
		source.Description,
		source.Active,
		source.ID,
	)

	updated, err := scanDataSource(row)
	if err != nil {
		return domain.DataSource{}, fmt.Errorf("failed to update data source: %w", err)
	}
	return updated, nil
}

// Delete deletes a data source
func (r *dataSourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM data_sources WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete data source: %w", err)
	}
	return nil
}

func scanDataSource(row pgx.Row) (domain.DataSource, error) {
	var (
		source      domain.DataSource
		fileKey     pgtype.Text
		description pgtype.Text
	)
	if err := row.Scan(
		&source.ID,
		&source.Name,
		&source.SourceType,
		&fileKey,
		&description,
		&source.Active,
		&source.CreatedAt,
		&source.UpdatedAt,
	); err != nil {
		return domain.DataSource{}, err
	}
	if fileKey.Valid {
		source.FileKey = fileKey.String
	}
	if description.Valid {
		source.Description = description.String
	}
	return source, nil
}
