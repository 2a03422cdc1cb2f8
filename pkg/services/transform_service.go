package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canonform-inc/canonform-engine/pkg/adapters/sampledata"
	"github.com/canonform-inc/canonform-engine/pkg/apperrors"
	"github.com/canonform-inc/canonform-engine/pkg/models"
	"github.com/canonform-inc/canonform-engine/pkg/profiler"
	"github.com/canonform-inc/canonform-engine/pkg/repositories"
	"github.com/canonform-inc/canonform-engine/pkg/transform"
)

// TransformService executes approved mapping plans against source data.
type TransformService interface {
	// ExecutePlan runs the identified plan. The plan must be approved.
	ExecutePlan(ctx context.Context, planID uuid.UUID) (*transform.Output, *models.TransformResult, error)

	// ExecuteLatest runs the most recent approved plan for a tenant.
	ExecuteLatest(ctx context.Context, tenant string) (*transform.Output, *models.TransformResult, error)
}

type transformService struct {
	loader      *sampledata.Loader
	transformer *transform.Transformer
	planRepo    repositories.MappingPlanRepository
	lineageRepo repositories.LineageRepository
	logger      *zap.Logger
}

// NewTransformService creates a TransformService.
func NewTransformService(
	loader *sampledata.Loader,
	transformer *transform.Transformer,
	planRepo repositories.MappingPlanRepository,
	lineageRepo repositories.LineageRepository,
	logger *zap.Logger,
) TransformService {
	return &transformService{
		loader:      loader,
		transformer: transformer,
		planRepo:    planRepo,
		lineageRepo: lineageRepo,
		logger:      logger.Named("transform-service"),
	}
}

var _ TransformService = (*transformService)(nil)

func (s *transformService) ExecutePlan(ctx context.Context, planID uuid.UUID) (*transform.Output, *models.TransformResult, error) {
	if s.planRepo == nil {
		return nil, nil, fmt.Errorf("no mapping repository configured")
	}
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	return s.execute(ctx, plan)
}

func (s *transformService) ExecuteLatest(ctx context.Context, tenant string) (*transform.Output, *models.TransformResult, error) {
	if s.planRepo == nil {
		return nil, nil, fmt.Errorf("no mapping repository configured")
	}
	plan, err := s.planRepo.GetLatestForTenant(ctx, tenant)
	if err != nil {
		return nil, nil, err
	}
	return s.execute(ctx, plan)
}

func (s *transformService) execute(ctx context.Context, plan *models.MappingPlan) (*transform.Output, *models.TransformResult, error) {
	if plan.ApprovedBy == "" {
		return nil, nil, fmt.Errorf("plan %s: %w", plan.ID, apperrors.ErrPlanNotApproved)
	}

	sourceData := s.loadSourceTables(plan)

	output, result, err := s.transformer.ApplyPlan(*plan, sourceData)
	if err != nil {
		return nil, nil, fmt.Errorf("apply plan %s: %w", plan.ID, err)
	}

	if s.lineageRepo != nil {
		if err := s.lineageRepo.CreateResult(ctx, result); err != nil {
			return nil, nil, fmt.Errorf("persist transform result: %w", err)
		}
	}

	s.logger.Info("plan executed",
		zap.String("tenant", plan.Tenant),
		zap.String("version", plan.Version),
		zap.Int("rows_processed", result.RowsProcessed),
		zap.Int("rows_successful", result.RowsSuccessful),
		zap.Int("errors", len(result.Errors)))

	return output, result, nil
}

// loadSourceTables loads sample data for every table the plan's accepted
// mappings reference. Missing tables are left out; the transformer records
// them as errors.
func (s *transformService) loadSourceTables(plan *models.MappingPlan) map[string]*profiler.TableData {
	tables := make(map[string]*profiler.TableData)
	for _, m := range plan.Mappings {
		if m.Status != models.MappingStatusAccepted {
			continue
		}
		table := m.SourceColumn.Table
		if _, seen := tables[table]; seen {
			continue
		}
		data, err := s.loader.LoadTable(plan.Tenant, table)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNoSampleData) {
				s.logger.Warn("failed to load source table",
					zap.String("table", table), zap.Error(err))
			}
			continue
		}
		tables[table] = data
	}
	return tables
}
