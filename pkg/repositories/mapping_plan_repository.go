package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/canonform-inc/canonform-engine/pkg/apperrors"
	"github.com/canonform-inc/canonform-engine/pkg/database"
	"github.com/canonform-inc/canonform-engine/pkg/models"
)

// MappingPlanRepository provides data access for mapping plans and their
// column mappings.
type MappingPlanRepository interface {
	Create(ctx context.Context, plan *models.MappingPlan) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MappingPlan, error)
	GetLatestForTenant(ctx context.Context, tenant string) (*models.MappingPlan, error)
	ListPendingReview(ctx context.Context, tenant string) ([]models.ColumnMapping, error)
	UpdateMappingDecision(ctx context.Context, mappingID uuid.UUID, status models.MappingStatus, canonicalField, feedback string) error
	Approve(ctx context.Context, planID uuid.UUID, approvedBy string) error
}

type mappingPlanRepository struct {
	db *database.DB
}

// NewMappingPlanRepository creates a new MappingPlanRepository.
func NewMappingPlanRepository(db *database.DB) MappingPlanRepository {
	return &mappingPlanRepository{db: db}
}

var _ MappingPlanRepository = (*mappingPlanRepository)(nil)

func (r *mappingPlanRepository) Create(ctx context.Context, plan *models.MappingPlan) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stats, err := json.Marshal(plan.CoverageStats)
	if err != nil {
		return fmt.Errorf("failed to marshal coverage stats: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO mapping_plans (id, tenant, version, canonical_schema_version, coverage_stats, approved_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
		plan.ID, plan.Tenant, plan.Version, plan.CanonicalSchemaVersion, stats, plan.ApprovedBy, plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert mapping plan: %w", err)
	}

	for i := range plan.Mappings {
		m := &plan.Mappings[i]

		score, err := marshalNullable(m.MappingScore)
		if err != nil {
			return fmt.Errorf("failed to marshal mapping score: %w", err)
		}
		proposalResp, err := marshalNullable(m.ProposalResponse)
		if err != nil {
			return fmt.Errorf("failed to marshal proposal response: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO column_mappings (
				id, plan_id, tenant, source_table, source_column, canonical_field,
				status, mapping_score, proposal_response, transform_rule, human_feedback, created_at
			) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), $12)`,
			m.ID, plan.ID, m.SourceColumn.Tenant, m.SourceColumn.Table, m.SourceColumn.Column,
			m.CanonicalField, m.Status, score, proposalResp, m.TransformRule, m.HumanFeedback, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert column mapping %s: %w", m.SourceColumn.QualifiedName(), err)
		}
	}

	return tx.Commit(ctx)
}

func (r *mappingPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MappingPlan, error) {
	plan, err := r.scanPlan(ctx, `
		SELECT id, tenant, version, canonical_schema_version, coverage_stats, COALESCE(approved_by, ''), created_at
		FROM mapping_plans WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return r.loadMappings(ctx, plan)
}

func (r *mappingPlanRepository) GetLatestForTenant(ctx context.Context, tenant string) (*models.MappingPlan, error) {
	plan, err := r.scanPlan(ctx, `
		SELECT id, tenant, version, canonical_schema_version, coverage_stats, COALESCE(approved_by, ''), created_at
		FROM mapping_plans WHERE tenant = $1
		ORDER BY created_at DESC LIMIT 1`, tenant)
	if err != nil {
		return nil, err
	}
	return r.loadMappings(ctx, plan)
}

func (r *mappingPlanRepository) scanPlan(ctx context.Context, query string, arg any) (*models.MappingPlan, error) {
	var plan models.MappingPlan
	var stats []byte

	err := r.db.QueryRow(ctx, query, arg).Scan(
		&plan.ID, &plan.Tenant, &plan.Version, &plan.CanonicalSchemaVersion,
		&stats, &plan.ApprovedBy, &plan.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping plan: %w", err)
	}

	if err := json.Unmarshal(stats, &plan.CoverageStats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal coverage stats: %w", err)
	}
	return &plan, nil
}

func (r *mappingPlanRepository) loadMappings(ctx context.Context, plan *models.MappingPlan) (*models.MappingPlan, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant, source_table, source_column, COALESCE(canonical_field, ''),
		       status, mapping_score, proposal_response, COALESCE(transform_rule, ''),
		       COALESCE(human_feedback, ''), created_at
		FROM column_mappings WHERE plan_id = $1
		ORDER BY source_table, source_column`, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get column mappings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanColumnMapping(rows)
		if err != nil {
			return nil, err
		}
		plan.Mappings = append(plan.Mappings, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column mappings: %w", err)
	}

	return plan, nil
}

func (r *mappingPlanRepository) ListPendingReview(ctx context.Context, tenant string) ([]models.ColumnMapping, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant, source_table, source_column, COALESCE(canonical_field, ''),
		       status, mapping_score, proposal_response, COALESCE(transform_rule, ''),
		       COALESCE(human_feedback, ''), created_at
		FROM column_mappings
		WHERE tenant = $1 AND status = $2
		ORDER BY created_at, source_table, source_column`, tenant, models.MappingStatusHITLRequired)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending mappings: %w", err)
	}
	defer rows.Close()

	mappings := make([]models.ColumnMapping, 0)
	for rows.Next() {
		m, err := scanColumnMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending mappings: %w", err)
	}

	return mappings, nil
}

func (r *mappingPlanRepository) UpdateMappingDecision(ctx context.Context, mappingID uuid.UUID, status models.MappingStatus, canonicalField, feedback string) error {
	// Rejection clears the canonical field; acceptance keeps the existing
	// field unless the reviewer selected a different one.
	tag, err := r.db.Exec(ctx, `
		UPDATE column_mappings
		SET status = $2,
		    canonical_field = CASE
		        WHEN $2 = 'rejected' THEN NULL
		        ELSE COALESCE(NULLIF($3, ''), canonical_field)
		    END,
		    human_feedback = NULLIF($4, '')
		WHERE id = $1`,
		mappingID, status, canonicalField, feedback)
	if err != nil {
		return fmt.Errorf("failed to update mapping decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *mappingPlanRepository) Approve(ctx context.Context, planID uuid.UUID, approvedBy string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE mapping_plans SET approved_by = $2 WHERE id = $1`,
		planID, approvedBy)
	if err != nil {
		return fmt.Errorf("failed to approve plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanColumnMapping(rows pgx.Rows) (*models.ColumnMapping, error) {
	var m models.ColumnMapping
	var score, proposalResp []byte

	err := rows.Scan(
		&m.ID, &m.SourceColumn.Tenant, &m.SourceColumn.Table, &m.SourceColumn.Column,
		&m.CanonicalField, &m.Status, &score, &proposalResp,
		&m.TransformRule, &m.HumanFeedback, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan column mapping: %w", err)
	}

	if len(score) > 0 {
		m.MappingScore = &models.MappingScore{}
		if err := json.Unmarshal(score, m.MappingScore); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mapping score: %w", err)
		}
	}
	if len(proposalResp) > 0 {
		m.ProposalResponse = &models.ProposalResponse{}
		if err := json.Unmarshal(proposalResp, m.ProposalResponse); err != nil {
			return nil, fmt.Errorf("failed to unmarshal proposal response: %w", err)
		}
	}

	return &m, nil
}

// marshalNullable marshals v, returning nil for a nil pointer so the column
// stays NULL.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
