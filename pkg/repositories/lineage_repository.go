package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/canonform-inc/canonform-engine/pkg/database"
	"github.com/canonform-inc/canonform-engine/pkg/models"
)

// LineageRepository persists transform results and their lineage records.
// Lineage is append-only; there are no update or delete operations.
type LineageRepository interface {
	CreateResult(ctx context.Context, result *models.TransformResult) error
	GetResultsByTenant(ctx context.Context, tenant string) ([]models.TransformResult, error)
	GetLineageByResult(ctx context.Context, resultID uuid.UUID) ([]models.LineageRecord, error)
}

type lineageRepository struct {
	db *database.DB
}

// NewLineageRepository creates a new LineageRepository.
func NewLineageRepository(db *database.DB) LineageRepository {
	return &lineageRepository{db: db}
}

var _ LineageRepository = (*lineageRepository)(nil)

func (r *lineageRepository) CreateResult(ctx context.Context, result *models.TransformResult) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	errs, err := json.Marshal(result.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transform_results (id, tenant, source_table, mapping_version, rows_processed, rows_successful, errors, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.ID, result.Tenant, result.SourceTable, result.MappingVersion,
		result.RowsProcessed, result.RowsSuccessful, errs, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transform result: %w", err)
	}

	for i := range result.Lineage {
		rec := &result.Lineage[i]
		cols, err := json.Marshal(rec.SourceColumns)
		if err != nil {
			return fmt.Errorf("failed to marshal source columns: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO lineage_records (id, result_id, output_field, source_columns, transform_applied, mapping_version, prompt_version, confidence_score, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.ID, result.ID, rec.OutputField, cols, rec.TransformApplied,
			rec.MappingVersion, rec.PromptVersion, rec.ConfidenceScore, rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert lineage record for %s: %w", rec.OutputField, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *lineageRepository) GetResultsByTenant(ctx context.Context, tenant string) ([]models.TransformResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant, source_table, mapping_version, rows_processed, rows_successful, errors, created_at
		FROM transform_results
		WHERE tenant = $1
		ORDER BY created_at DESC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to get transform results: %w", err)
	}
	defer rows.Close()

	results := make([]models.TransformResult, 0)
	for rows.Next() {
		var result models.TransformResult
		var errs []byte
		if err := rows.Scan(&result.ID, &result.Tenant, &result.SourceTable, &result.MappingVersion,
			&result.RowsProcessed, &result.RowsSuccessful, &errs, &result.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transform result: %w", err)
		}
		if err := json.Unmarshal(errs, &result.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transform results: %w", err)
	}

	return results, nil
}

func (r *lineageRepository) GetLineageByResult(ctx context.Context, resultID uuid.UUID) ([]models.LineageRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, output_field, source_columns, transform_applied, mapping_version, prompt_version, confidence_score, created_at
		FROM lineage_records
		WHERE result_id = $1
		ORDER BY created_at, output_field`, resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lineage records: %w", err)
	}
	defer rows.Close()

	records := make([]models.LineageRecord, 0)
	for rows.Next() {
		var rec models.LineageRecord
		var cols []byte
		if err := rows.Scan(&rec.ID, &rec.OutputField, &cols, &rec.TransformApplied,
			&rec.MappingVersion, &rec.PromptVersion, &rec.ConfidenceScore, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lineage record: %w", err)
		}
		if err := json.Unmarshal(cols, &rec.SourceColumns); err != nil {
			return nil, fmt.Errorf("failed to unmarshal source columns: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lineage records: %w", err)
	}

	return records, nil
}
