// Package services orchestrates the resolution pipeline: profiling source
// columns, gathering proposals, resolving mappings, and executing approved
// plans.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canonform-inc/canonform-engine/pkg/adapters/sampledata"
	"github.com/canonform-inc/canonform-engine/pkg/apperrors"
	"github.com/canonform-inc/canonform-engine/pkg/catalog"
	"github.com/canonform-inc/canonform-engine/pkg/llm"
	"github.com/canonform-inc/canonform-engine/pkg/models"
	"github.com/canonform-inc/canonform-engine/pkg/profiler"
	"github.com/canonform-inc/canonform-engine/pkg/proposal"
	"github.com/canonform-inc/canonform-engine/pkg/repositories"
	"github.com/canonform-inc/canonform-engine/pkg/resolver"
)

// MappingService drives mapping discovery and human review for tenants.
type MappingService interface {
	// DiscoverMappings profiles the given columns, gathers proposals, and
	// resolves a complete mapping plan for the tenant.
	DiscoverMappings(ctx context.Context, tenant string, columns []models.SourceColumn) (*models.MappingPlan, error)

	// ResolveTenant discovers the tenant's tables and columns from its sample
	// data and resolves a mapping plan over all of them.
	ResolveTenant(ctx context.Context, tenant string) (*models.MappingPlan, error)

	// PendingReview lists mappings awaiting a human decision.
	PendingReview(ctx context.Context, tenant string) ([]models.ColumnMapping, error)

	// ApplyHumanDecision records a reviewer's decision on a mapping.
	ApplyHumanDecision(ctx context.Context, response models.HITLResponse) error

	// ApprovePlan marks a plan as approved for transform execution.
	ApprovePlan(ctx context.Context, planID uuid.UUID, approvedBy string) error
}

type mappingService struct {
	catalog  *catalog.Catalog
	loader   *sampledata.Loader
	profiler *profiler.Profiler
	source   proposal.Source
	resolver *resolver.Resolver
	pool     *llm.WorkerPool
	repo     repositories.MappingPlanRepository
	logger   *zap.Logger
}

// NewMappingService creates a MappingService.
func NewMappingService(
	cat *catalog.Catalog,
	loader *sampledata.Loader,
	prof *profiler.Profiler,
	source proposal.Source,
	res *resolver.Resolver,
	pool *llm.WorkerPool,
	repo repositories.MappingPlanRepository,
	logger *zap.Logger,
) MappingService {
	return &mappingService{
		catalog:  cat,
		loader:   loader,
		profiler: prof,
		source:   source,
		resolver: res,
		pool:     pool,
		repo:     repo,
		logger:   logger.Named("mapping-service"),
	}
}

var _ MappingService = (*mappingService)(nil)

func (s *mappingService) DiscoverMappings(ctx context.Context, tenant string, columns []models.SourceColumn) (*models.MappingPlan, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns to map for tenant %s", tenant)
	}

	s.logger.Info("starting mapping discovery",
		zap.String("tenant", tenant),
		zap.Int("columns", len(columns)))

	profiles := s.profileColumns(tenant, columns)
	responses := s.gatherProposals(ctx, profiles)
	mappings := s.resolver.ResolveBatch(profiles, responses)

	plan := &models.MappingPlan{
		ID:                     uuid.New(),
		Tenant:                 tenant,
		Version:                time.Now().UTC().Format("20060102150405"),
		CanonicalSchemaVersion: s.catalog.Version(),
		Mappings:               mappings,
		CreatedAt:              time.Now().UTC(),
	}
	plan.CoverageStats.Tally(mappings)
	s.tallyRequiredCoverage(plan)

	if s.repo != nil {
		if err := s.repo.Create(ctx, plan); err != nil {
			return nil, fmt.Errorf("persist mapping plan: %w", err)
		}
	}

	s.logger.Info("mapping discovery complete",
		zap.String("tenant", tenant),
		zap.String("version", plan.Version),
		zap.Int("accepted", plan.CoverageStats.Accepted),
		zap.Int("hitl_required", plan.CoverageStats.HITLRequired),
		zap.Int("rejected", plan.CoverageStats.Rejected))

	return plan, nil
}

func (s *mappingService) ResolveTenant(ctx context.Context, tenant string) (*models.MappingPlan, error) {
	tables, err := s.loader.ListTables(tenant)
	if err != nil {
		return nil, fmt.Errorf("discover tables for tenant %s: %w", tenant, err)
	}

	var columns []models.SourceColumn
	for _, table := range tables {
		data, err := s.loader.LoadTable(tenant, table)
		if err != nil {
			s.logger.Warn("failed to load discovered table",
				zap.String("table", table), zap.Error(err))
			continue
		}
		for _, col := range data.Columns {
			columns = append(columns, models.SourceColumn{
				Tenant: tenant,
				Table:  table,
				Column: col,
			})
		}
	}

	return s.DiscoverMappings(ctx, tenant, columns)
}

// profileColumns loads each table's sample data once and profiles every
// column against it. Columns with no sample data get empty profiles.
func (s *mappingService) profileColumns(tenant string, columns []models.SourceColumn) []models.ColumnProfile {
	tables := make(map[string]*profiler.TableData)
	profiles := make([]models.ColumnProfile, 0, len(columns))

	for _, col := range columns {
		data, loaded := tables[col.Table]
		if !loaded {
			var err error
			data, err = s.loader.LoadTable(tenant, col.Table)
			if err != nil {
				if !errors.Is(err, apperrors.ErrNoSampleData) {
					s.logger.Warn("failed to load sample data",
						zap.String("table", col.Table), zap.Error(err))
				}
				data = nil
			}
			tables[col.Table] = data
		}
		profiles = append(profiles, s.profiler.Profile(col, data))
	}

	return profiles
}

// gatherProposals fans proposal calls out over the worker pool. A failed call
// yields no response for that column, which sends resolution down the
// heuristic-only path instead of aborting the batch.
func (s *mappingService) gatherProposals(ctx context.Context, profiles []models.ColumnProfile) map[string]*models.ProposalResponse {
	items := make([]llm.WorkItem[*models.ProposalResponse], len(profiles))
	for i, profile := range profiles {
		req := proposal.Request{Column: profile.SourceColumn, Profile: profile}
		items[i] = llm.WorkItem[*models.ProposalResponse]{
			ID: profile.SourceColumn.QualifiedName(),
			Execute: func(ctx context.Context) (*models.ProposalResponse, error) {
				return s.source.Propose(ctx, req)
			},
		}
	}

	results := llm.Process(ctx, s.pool, items, func(completed, total int) {
		s.logger.Debug("proposal progress", zap.Int("completed", completed), zap.Int("total", total))
	})

	responses := make(map[string]*models.ProposalResponse, len(results))
	for _, r := range results {
		if r.Err != nil {
			s.logger.Warn("proposal call failed, falling back to heuristics",
				zap.String("column", r.ID), zap.Error(r.Err))
			continue
		}
		responses[r.ID] = r.Result
	}
	return responses
}

// tallyRequiredCoverage counts required canonical fields covered by an
// accepted mapping.
func (s *mappingService) tallyRequiredCoverage(plan *models.MappingPlan) {
	required := s.catalog.RequiredFieldNames()
	plan.CoverageStats.RequiredFieldsTotal = len(required)

	accepted := make(map[string]bool)
	for _, m := range plan.Mappings {
		if m.Status == models.MappingStatusAccepted && m.CanonicalField != "" {
			accepted[m.CanonicalField] = true
		}
	}

	covered := 0
	for _, name := range required {
		if accepted[name] {
			covered++
		}
	}
	plan.CoverageStats.RequiredFieldsCovered = covered
}

func (s *mappingService) PendingReview(ctx context.Context, tenant string) ([]models.ColumnMapping, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("no mapping repository configured")
	}
	return s.repo.ListPendingReview(ctx, tenant)
}

func (s *mappingService) ApplyHumanDecision(ctx context.Context, response models.HITLResponse) error {
	if s.repo == nil {
		return fmt.Errorf("no mapping repository configured")
	}

	var status models.MappingStatus
	canonicalField := response.SelectedMapping

	switch response.Decision {
	case models.HITLDecisionAccept:
		status = models.MappingStatusAccepted
	case models.HITLDecisionModify:
		if response.SelectedMapping == "" {
			return fmt.Errorf("modify decision requires a selected mapping: %w", apperrors.ErrInvalidPolicy)
		}
		status = models.MappingStatusAccepted
	case models.HITLDecisionReject:
		status = models.MappingStatusRejected
		canonicalField = ""
	default:
		return fmt.Errorf("unknown decision %q: %w", response.Decision, apperrors.ErrInvalidPolicy)
	}

	if canonicalField != "" && s.catalog.FieldByName(canonicalField) == nil {
		return fmt.Errorf("selected mapping %q: %w", canonicalField, apperrors.ErrUnknownField)
	}

	if err := s.repo.UpdateMappingDecision(ctx, response.MappingID, status, canonicalField, response.Feedback); err != nil {
		return err
	}

	s.logger.Info("human decision applied",
		zap.String("mapping_id", response.MappingID.String()),
		zap.String("decision", string(response.Decision)),
		zap.String("reviewer", response.Reviewer))
	return nil
}

func (s *mappingService) ApprovePlan(ctx context.Context, planID uuid.UUID, approvedBy string) error {
	if s.repo == nil {
		return fmt.Errorf("no mapping repository configured")
	}
	if approvedBy == "" {
		return fmt.Errorf("approver is required: %w", apperrors.ErrInvalidPolicy)
	}
	return s.repo.Approve(ctx, planID, approvedBy)
}
