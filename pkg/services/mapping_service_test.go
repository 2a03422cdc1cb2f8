package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/canonform-inc/canonform-engine/pkg/adapters/sampledata"
	"github.com/canonform-inc/canonform-engine/pkg/apperrors"
	"github.com/canonform-inc/canonform-engine/pkg/catalog"
	"github.com/canonform-inc/canonform-engine/pkg/config"
	"github.com/canonform-inc/canonform-engine/pkg/llm"
	"github.com/canonform-inc/canonform-engine/pkg/models"
	"github.com/canonform-inc/canonform-engine/pkg/profiler"
	"github.com/canonform-inc/canonform-engine/pkg/proposal"
	"github.com/canonform-inc/canonform-engine/pkg/repositories"
	"github.com/canonform-inc/canonform-engine/pkg/resolver"
	"github.com/canonform-inc/canonform-engine/pkg/scoring"
)

// fakePlanRepo is an in-memory MappingPlanRepository.
type fakePlanRepo struct {
	plans     map[uuid.UUID]*models.MappingPlan
	decisions []decisionCall
	approved  map[uuid.UUID]string
}

type decisionCall struct {
	mappingID      uuid.UUID
	status         models.MappingStatus
	canonicalField string
	feedback       string
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{
		plans:    make(map[uuid.UUID]*models.MappingPlan),
		approved: make(map[uuid.UUID]string),
	}
}

func (f *fakePlanRepo) Create(ctx context.Context, plan *models.MappingPlan) error {
	f.plans[plan.ID] = plan
	return nil
}

func (f *fakePlanRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.MappingPlan, error) {
	plan, ok := f.plans[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return plan, nil
}

func (f *fakePlanRepo) GetLatestForTenant(ctx context.Context, tenant string) (*models.MappingPlan, error) {
	var latest *models.MappingPlan
	for _, p := range f.plans {
		if p.Tenant == tenant && (latest == nil || p.CreatedAt.After(latest.CreatedAt)) {
			latest = p
		}
	}
	if latest == nil {
		return nil, apperrors.ErrNotFound
	}
	return latest, nil
}

func (f *fakePlanRepo) ListPendingReview(ctx context.Context, tenant string) ([]models.ColumnMapping, error) {
	var pending []models.ColumnMapping
	for _, p := range f.plans {
		if p.Tenant != tenant {
			continue
		}
		for _, m := range p.Mappings {
			if m.Status == models.MappingStatusHITLRequired {
				pending = append(pending, m)
			}
		}
	}
	return pending, nil
}

func (f *fakePlanRepo) UpdateMappingDecision(ctx context.Context, mappingID uuid.UUID, status models.MappingStatus, canonicalField, feedback string) error {
	f.decisions = append(f.decisions, decisionCall{mappingID, status, canonicalField, feedback})
	return nil
}

func (f *fakePlanRepo) Approve(ctx context.Context, planID uuid.UUID, approvedBy string) error {
	plan, ok := f.plans[planID]
	if !ok {
		return apperrors.ErrNotFound
	}
	plan.ApprovedBy = approvedBy
	f.approved[planID] = approvedBy
	return nil
}

func serviceCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(models.CanonicalSchema{
		Version: "1.0.0",
		Fields: []models.CanonicalField{
			{Name: models.FieldContractID, Type: models.ColumnTypeString, Required: true},
			{Name: models.FieldPartyBuyer, Type: models.ColumnTypeString, Required: true},
			{Name: models.FieldEffectiveDate, Type: models.ColumnTypeDate, Required: true},
			{Name: models.FieldStatus, Type: models.ColumnTypeEnum},
			{Name: models.FieldRenewalTermMonths, Type: models.ColumnTypeInt},
		},
	})
	require.NoError(t, err)
	return cat
}

func writeSampleCSV(t *testing.T, dir, tenant, table, content string) {
	t.Helper()
	tenantDir := filepath.Join(dir, tenant)
	require.NoError(t, os.MkdirAll(tenantDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tenantDir, table+".csv"), []byte(content), 0o644))
}

func newTestService(t *testing.T, samplesDir string, source proposal.Source, repo *fakePlanRepo) MappingService {
	t.Helper()
	logger := zap.NewNop()
	cat := serviceCatalog(t)
	res := resolver.NewResolver(cat, scoring.NewScorer(cat), config.DefaultScoringConfig(), logger)
	pool := llm.NewWorkerPool(llm.DefaultWorkerPoolConfig(), logger)

	var planRepo repositories.MappingPlanRepository
	if repo != nil {
		planRepo = repo
	}
	return NewMappingService(
		cat,
		sampledata.NewLoader(samplesDir, logger),
		profiler.New(profiler.DefaultLimits(), logger),
		source,
		res,
		pool,
		planRepo,
		logger,
	)
}

func TestDiscoverMappings_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeSampleCSV(t, dir, "acme", "contracts",
		"contract_id,start_date,state\nCNT-001,2024-01-15,active\nCNT-002,2024-02-20,expired\nCNT-003,2024-03-25,active\n")

	columns := []models.SourceColumn{
		{Tenant: "acme", Table: "contracts", Column: "contract_id", DeclaredType: "varchar"},
		{Tenant: "acme", Table: "contracts", Column: "start_date", DeclaredType: "varchar"},
		{Tenant: "acme", Table: "contracts", Column: "state", DeclaredType: "varchar"},
	}

	source := &proposal.StaticSource{
		Responses: map[string]*models.ProposalResponse{
			"acme.contracts.contract_id": {ProposedMappings: []models.MappingProposal{
				{CanonicalField: models.FieldContractID, Confidence: 0.9},
			}},
			"acme.contracts.start_date": {ProposedMappings: []models.MappingProposal{
				{CanonicalField: models.FieldEffectiveDate, Confidence: 0.95, TransformHint: "parse_date"},
			}},
			"acme.contracts.state": {ProposedMappings: []models.MappingProposal{
				{CanonicalField: models.FieldStatus, Confidence: 0.8},
			}},
		},
	}

	repo := newFakePlanRepo()
	svc := newTestService(t, dir, source, repo)

	plan, err := svc.DiscoverMappings(context.Background(), "acme", columns)
	require.NoError(t, err)

	require.Len(t, plan.Mappings, 3)
	assert.Equal(t, "acme", plan.Tenant)
	assert.Equal(t, "1.0.0", plan.CanonicalSchemaVersion)
	assert.Equal(t, 3, source.ProposeCallCount())

	byColumn := map[string]models.ColumnMapping{}
	for _, m := range plan.Mappings {
		byColumn[m.SourceColumn.Column] = m
	}
	assert.Equal(t, models.MappingStatusAccepted, byColumn["contract_id"].Status)
	assert.Equal(t, models.FieldContractID, byColumn["contract_id"].CanonicalField)
	assert.Equal(t, models.MappingStatusAccepted, byColumn["start_date"].Status)
	assert.Equal(t, "parse_date", byColumn["start_date"].TransformRule)

	assert.Equal(t, 3, plan.CoverageStats.TotalColumns)
	assert.Equal(t, 3, plan.CoverageStats.RequiredFieldsTotal)
	assert.Equal(t, 2, plan.CoverageStats.RequiredFieldsCovered)

	// Plan was persisted.
	assert.Contains(t, repo.plans, plan.ID)
}

func TestResolveTenant_DiscoversColumnsFromSampleData(t *testing.T) {
	dir := t.TempDir()
	writeSampleCSV(t, dir, "acme", "contracts",
		"contract_id,start_date\nCNT-001,2024-01-15\n")
	writeSampleCSV(t, dir, "acme", "vendors",
		"vendor_name\nInitech\n")

	svc := newTestService(t, dir, &proposal.StaticSource{}, newFakePlanRepo())

	plan, err := svc.ResolveTenant(context.Background(), "acme")
	require.NoError(t, err)

	// One mapping per discovered column across both tables.
	require.Len(t, plan.Mappings, 3)
	tables := map[string]bool{}
	for _, m := range plan.Mappings {
		tables[m.SourceColumn.Table] = true
	}
	assert.True(t, tables["contracts"])
	assert.True(t, tables["vendors"])
}

func TestResolveTenant_UnknownTenant(t *testing.T) {
	svc := newTestService(t, t.TempDir(), &proposal.StaticSource{}, nil)

	_, err := svc.ResolveTenant(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperrors.ErrNoSampleData)
}

func TestDiscoverMappings_ProposalFailureFallsBackToHeuristics(t *testing.T) {
	dir := t.TempDir()
	writeSampleCSV(t, dir, "acme", "contracts",
		"contract_id\nCNT-001\nCNT-002\nCNT-003\n")

	source := &proposal.StaticSource{Err: errors.New("provider unreachable")}
	svc := newTestService(t, dir, source, newFakePlanRepo())

	plan, err := svc.DiscoverMappings(context.Background(), "acme", []models.SourceColumn{
		{Tenant: "acme", Table: "contracts", Column: "contract_id"},
	})
	require.NoError(t, err)
	require.Len(t, plan.Mappings, 1)

	// Strong heuristic evidence surfaces for review but is never accepted.
	m := plan.Mappings[0]
	assert.Equal(t, models.MappingStatusHITLRequired, m.Status)
	assert.Equal(t, models.FieldContractID, m.CanonicalField)
}

func TestDiscoverMappings_MissingSampleDataUsesEmptyProfiles(t *testing.T) {
	svc := newTestService(t, t.TempDir(), &proposal.StaticSource{}, newFakePlanRepo())

	plan, err := svc.DiscoverMappings(context.Background(), "ghost", []models.SourceColumn{
		{Tenant: "ghost", Table: "contracts", Column: "mystery"},
	})
	require.NoError(t, err)
	require.Len(t, plan.Mappings, 1)
	assert.NotEqual(t, models.MappingStatusAccepted, plan.Mappings[0].Status)
}

func TestDiscoverMappings_NoColumns(t *testing.T) {
	svc := newTestService(t, t.TempDir(), &proposal.StaticSource{}, nil)
	_, err := svc.DiscoverMappings(context.Background(), "acme", nil)
	assert.Error(t, err)
}

func TestApplyHumanDecision(t *testing.T) {
	repo := newFakePlanRepo()
	svc := newTestService(t, t.TempDir(), &proposal.StaticSource{}, repo)
	mappingID := uuid.New()

	t.Run("accept keeps existing field", func(t *testing.T) {
		err := svc.ApplyHumanDecision(context.Background(), models.HITLResponse{
			MappingID: mappingID,
			Decision:  models.HITLDecisionAccept,
			Reviewer:  "dana",
		})
		require.NoError(t, err)
		last := repo.decisions[len(repo.decisions)-1]
		assert.Equal(t, models.MappingStatusAccepted, last.status)
		assert.Empty(t, last.canonicalField)
	})

	t.Run("modify requires a selection", func(t *testing.T) {
		err := svc.ApplyHumanDecision(context.Background(), models.HITLResponse{
			MappingID: mappingID,
			Decision:  models.HITLDecisionModify,
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidPolicy)
	})

	t.Run("modify with valid field", func(t *testing.T) {
		err := svc.ApplyHumanDecision(context.Background(), models.HITLResponse{
			MappingID:       mappingID,
			Decision:        models.HITLDecisionModify,
			SelectedMapping: models.FieldPartyBuyer,
		})
		require.NoError(t, err)
		last := repo.decisions[len(repo.decisions)-1]
		assert.Equal(t, models.FieldPartyBuyer, last.canonicalField)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		err := svc.ApplyHumanDecision(context.Background(), models.HITLResponse{
			MappingID:       mappingID,
			Decision:        models.HITLDecisionAccept,
			SelectedMapping: "no_such_field",
		})
		assert.ErrorIs(t, err, apperrors.ErrUnknownField)
	})

	t.Run("reject clears the field", func(t *testing.T) {
		err := svc.ApplyHumanDecision(context.Background(), models.HITLResponse{
			MappingID: mappingID,
			Decision:  models.HITLDecisionReject,
			Feedback:  "not a contract column",
		})
		require.NoError(t, err)
		last := repo.decisions[len(repo.decisions)-1]
		assert.Equal(t, models.MappingStatusRejected, last.status)
		assert.Empty(t, last.canonicalField)
		assert.Equal(t, "not a contract column", last.feedback)
	})

	t.Run("unknown decision", func(t *testing.T) {
		err := svc.ApplyHumanDecision(context.Background(), models.HITLResponse{
			MappingID: mappingID,
			Decision:  "escalate",
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidPolicy)
	})
}

func TestApprovePlan_RequiresApprover(t *testing.T) {
	svc := newTestService(t, t.TempDir(), &proposal.StaticSource{}, newFakePlanRepo())
	err := svc.ApprovePlan(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidPolicy)
}
