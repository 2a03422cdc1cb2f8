package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/canonform-inc/canonform-engine/pkg/catalog"
	"github.com/canonform-inc/canonform-engine/pkg/config"
	"github.com/canonform-inc/canonform-engine/pkg/models"
	"github.com/canonform-inc/canonform-engine/pkg/scoring"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(models.CanonicalSchema{
		Version: "1.0.0",
		Fields: []models.CanonicalField{
			{Name: models.FieldContractID, Type: models.ColumnTypeString, Required: true},
			{Name: models.FieldPartyBuyer, Type: models.ColumnTypeString, Required: true},
			{Name: models.FieldPartySeller, Type: models.ColumnTypeString, Required: true},
			{Name: models.FieldEffectiveDate, Type: models.ColumnTypeDate, Required: true},
			{Name: models.FieldExpiryDate, Type: models.ColumnTypeDate},
			{Name: models.FieldContractValueLTV, Type: models.ColumnTypeDecimal},
			{Name: models.FieldStatus, Type: models.ColumnTypeEnum},
			{Name: models.FieldAutoRenew, Type: models.ColumnTypeBool},
			{Name: models.FieldRenewalTermMonths, Type: models.ColumnTypeInt},
		},
	})
	require.NoError(t, err)
	return cat
}

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	cat := testCatalog(t)
	return NewResolver(cat, scoring.NewScorer(cat), config.DefaultScoringConfig(), zap.NewNop())
}

func profileFor(column string) models.ColumnProfile {
	return models.ColumnProfile{
		SourceColumn: models.SourceColumn{Tenant: "acme", Table: "contracts", Column: column},
		InferredType: models.ColumnTypeString,
	}
}

func proposalFor(field string, confidence float64) *models.ProposalResponse {
	return &models.ProposalResponse{
		ProposedMappings: []models.MappingProposal{
			{CanonicalField: field, Confidence: confidence},
		},
	}
}

// ----------------------------------------------------------------------------
// Single-column resolution
// ----------------------------------------------------------------------------

func TestResolve_HighConfidenceExactMatchAccepted(t *testing.T) {
	r := testResolver(t)

	profile := models.ColumnProfile{
		SourceColumn:  models.SourceColumn{Tenant: "acme", Table: "contracts", Column: "contract_id"},
		TotalRows:     3,
		NonNullCount:  3,
		DistinctCount: 3,
		DistinctRatio: 1.0,
		SampleValues:  []string{"CNT-001", "CNT-002", "CNT-003"},
		InferredType:  models.ColumnTypeString,
	}

	mapping := r.Resolve(profile, proposalFor(models.FieldContractID, 0.9))

	assert.Equal(t, models.MappingStatusAccepted, mapping.Status)
	assert.Equal(t, models.FieldContractID, mapping.CanonicalField)
	require.NotNil(t, mapping.MappingScore)
	assert.InDelta(t, 1.0, mapping.MappingScore.NameSimilarity, 1e-9)
	assert.GreaterOrEqual(t, mapping.MappingScore.ValueRangeMatch, 0.8)
	assert.GreaterOrEqual(t, mapping.MappingScore.FinalScore, 0.75)
	assert.True(t, mapping.MappingScore.AutoAccept)
	assert.False(t, mapping.MappingScore.NeedsHITL)
}

func TestResolve_ModerateMatchGoesToReview(t *testing.T) {
	r := testResolver(t)

	profile := models.ColumnProfile{
		SourceColumn: models.SourceColumn{Tenant: "acme", Table: "contracts", Column: "cust_nm"},
		TotalRows:    2,
		NonNullCount: 2,
		SampleValues: []string{"Acme Corp", "Beta LLC"},
		InferredType: models.ColumnTypeString,
	}

	mapping := r.Resolve(profile, proposalFor(models.FieldPartyBuyer, 0.6))

	assert.Equal(t, models.MappingStatusHITLRequired, mapping.Status)
	assert.Equal(t, models.FieldPartyBuyer, mapping.CanonicalField)
	require.NotNil(t, mapping.MappingScore)
	assert.GreaterOrEqual(t, mapping.MappingScore.FinalScore, 0.5)
	assert.Less(t, mapping.MappingScore.FinalScore, 0.75)
}

func TestResolve_LowScoreRejected(t *testing.T) {
	r := testResolver(t)

	profile := profileFor("internal_notes")
	mapping := r.Resolve(profile, proposalFor(models.FieldRenewalTermMonths, 0.1))

	assert.Equal(t, models.MappingStatusRejected, mapping.Status)
	assert.Empty(t, mapping.CanonicalField)
	assert.Empty(t, mapping.TransformRule)
}

func TestResolve_PicksBestOfMultipleProposals(t *testing.T) {
	r := testResolver(t)

	profile := models.ColumnProfile{
		SourceColumn: models.SourceColumn{Tenant: "acme", Table: "contracts", Column: "start_date"},
		TotalRows:    2,
		NonNullCount: 2,
		DatePatterns: []string{models.DatePatternISO},
		SampleValues: []string{"2024-01-15", "2024-03-02"},
		InferredType: models.ColumnTypeDate,
	}

	resp := &models.ProposalResponse{
		ProposedMappings: []models.MappingProposal{
			{CanonicalField: models.FieldExpiryDate, Confidence: 0.4},
			{CanonicalField: models.FieldEffectiveDate, Confidence: 0.9},
		},
	}

	mapping := r.Resolve(profile, resp)
	assert.Equal(t, models.FieldEffectiveDate, mapping.CanonicalField)
}

func TestResolve_ProposalOrderDoesNotAffectOutcome(t *testing.T) {
	r := testResolver(t)

	// Both candidate fields are dates with identical confidence; the column
	// name resembles neither, so selection must not depend on input order.
	profile := models.ColumnProfile{
		SourceColumn: models.SourceColumn{Tenant: "acme", Table: "contracts", Column: "zz_col"},
		InferredType: models.ColumnTypeDate,
		DatePatterns: []string{models.DatePatternISO},
		SampleValues: []string{"2024-01-15", "2024-02-20"},
		TotalRows:    2,
		NonNullCount: 2,
	}

	resp := &models.ProposalResponse{
		ProposedMappings: []models.MappingProposal{
			{CanonicalField: models.FieldExpiryDate, Confidence: 0.8},
			{CanonicalField: models.FieldEffectiveDate, Confidence: 0.8},
		},
	}

	first := r.Resolve(profile, resp)
	require.NotEmpty(t, first.CanonicalField)

	// Same inputs, reversed proposal order: same outcome.
	resp.ProposedMappings[0], resp.ProposedMappings[1] = resp.ProposedMappings[1], resp.ProposedMappings[0]
	second := r.Resolve(profile, resp)
	assert.Equal(t, first.CanonicalField, second.CanonicalField)
}

func TestResolve_UnknownFieldProposalsIgnored(t *testing.T) {
	r := testResolver(t)

	profile := profileFor("mystery")
	mapping := r.Resolve(profile, proposalFor("no_such_field", 0.99))

	// The 0.99-confidence proposal names a field outside the catalog, so the
	// heuristic-only path runs. Its fuzzy matching may still surface a
	// catalog field for review, but never the unknown field and never an
	// acceptance.
	assert.NotEqual(t, models.MappingStatusAccepted, mapping.Status)
	assert.NotEqual(t, "no_such_field", mapping.CanonicalField)
	if mapping.Status == models.MappingStatusRejected {
		assert.Empty(t, mapping.CanonicalField)
	} else {
		assert.Equal(t, models.MappingStatusHITLRequired, mapping.Status)
		require.NotNil(t, mapping.MappingScore)
		assert.Zero(t, mapping.MappingScore.LLMConfidence)
	}
}

// ----------------------------------------------------------------------------
// Score invariants
// ----------------------------------------------------------------------------

func TestScoreComponentsBoundedAndWeighted(t *testing.T) {
	r := testResolver(t)
	cfg := config.DefaultScoringConfig()

	profiles := []models.ColumnProfile{
		{
			SourceColumn:  models.SourceColumn{Tenant: "t", Table: "c", Column: "contract_id"},
			DistinctRatio: 1.0,
			SampleValues:  []string{"CNT-1", "CNT-2"},
			InferredType:  models.ColumnTypeString,
			TotalRows:     2, NonNullCount: 2, DistinctCount: 2,
		},
		{
			SourceColumn: models.SourceColumn{Tenant: "t", Table: "c", Column: "x"},
			InferredType: models.ColumnTypeBool,
			SampleValues: []string{"true", "false"},
		},
		models.EmptyProfile(models.SourceColumn{Tenant: "t", Table: "c", Column: "empty"}),
	}

	for _, profile := range profiles {
		for _, field := range []string{models.FieldContractID, models.FieldAutoRenew, models.FieldEffectiveDate} {
			score := r.scoreCandidate(profile, field, 0.66)

			for name, v := range map[string]float64{
				"llm":     score.LLMConfidence,
				"name":    score.NameSimilarity,
				"type":    score.TypeCompatibility,
				"profile": score.ValueRangeMatch,
				"final":   score.FinalScore,
			} {
				assert.GreaterOrEqual(t, v, 0.0, "%s for %s/%s", name, profile.SourceColumn.Column, field)
				assert.LessOrEqual(t, v, 1.0, "%s for %s/%s", name, profile.SourceColumn.Column, field)
			}

			expected := cfg.WeightLLM*score.LLMConfidence +
				cfg.WeightName*score.NameSimilarity +
				cfg.WeightType*score.TypeCompatibility +
				cfg.WeightProfile*score.ValueRangeMatch
			assert.InDelta(t, expected, score.FinalScore, 1e-9)
		}
	}
}

func TestRisingConfidenceNeverLowersOutcome(t *testing.T) {
	r := testResolver(t)

	profile := models.ColumnProfile{
		SourceColumn: models.SourceColumn{Tenant: "t", Table: "c", Column: "contract_id"},
		InferredType: models.ColumnTypeString,
		SampleValues: []string{"CNT-1"},
		DistinctRatio: 1.0,
	}

	statusRank := map[models.MappingStatus]int{
		models.MappingStatusRejected:     0,
		models.MappingStatusHITLRequired: 1,
		models.MappingStatusAccepted:     2,
	}

	prevScore := -1.0
	prevRank := -1
	for _, confidence := range []float64{0.0, 0.2, 0.4, 0.6, 0.8, 1.0} {
		mapping := r.Resolve(profile, proposalFor(models.FieldContractID, confidence))
		require.NotNil(t, mapping.MappingScore)

		assert.GreaterOrEqual(t, mapping.MappingScore.FinalScore, prevScore)
		assert.GreaterOrEqual(t, statusRank[mapping.Status], prevRank)

		prevScore = mapping.MappingScore.FinalScore
		prevRank = statusRank[mapping.Status]
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	r := testResolver(t)

	profile := models.ColumnProfile{
		SourceColumn:  models.SourceColumn{Tenant: "acme", Table: "contracts", Column: "contract_id"},
		DistinctRatio: 1.0,
		SampleValues:  []string{"CNT-001", "CNT-002"},
		InferredType:  models.ColumnTypeString,
		TotalRows:     2, NonNullCount: 2, DistinctCount: 2,
	}
	resp := proposalFor(models.FieldContractID, 0.9)

	first := r.Resolve(profile, resp)
	second := r.Resolve(profile, resp)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.CanonicalField, second.CanonicalField)
	assert.Equal(t, *first.MappingScore, *second.MappingScore)
}

// ----------------------------------------------------------------------------
// Heuristic-only fallback
// ----------------------------------------------------------------------------

func TestHeuristicOnly_NeverAccepts(t *testing.T) {
	r := testResolver(t)

	// Strong heuristic evidence: exact name, matching type, full pattern match.
	profile := models.ColumnProfile{
		SourceColumn:  models.SourceColumn{Tenant: "acme", Table: "contracts", Column: "contract_id"},
		DistinctRatio: 1.0,
		SampleValues:  []string{"CNT-001", "CNT-002", "CNT-003"},
		InferredType:  models.ColumnTypeString,
		TotalRows:     3, NonNullCount: 3, DistinctCount: 3,
	}

	mapping := r.Resolve(profile, &models.ProposalResponse{})

	assert.Equal(t, models.MappingStatusHITLRequired, mapping.Status)
	assert.Equal(t, models.FieldContractID, mapping.CanonicalField)
	require.NotNil(t, mapping.MappingScore)
	assert.False(t, mapping.MappingScore.AutoAccept)
	assert.True(t, mapping.MappingScore.NeedsHITL)
	assert.Zero(t, mapping.MappingScore.LLMConfidence)
}

func TestHeuristicOnly_WeakEvidenceRejected(t *testing.T) {
	r := testResolver(t)

	mapping := r.Resolve(profileFor("misc_blob"), nil)

	assert.Equal(t, models.MappingStatusRejected, mapping.Status)
	assert.Empty(t, mapping.CanonicalField)
}

func TestHeuristicOnly_EmptyProfileNeverAccepted(t *testing.T) {
	r := testResolver(t)

	profile := models.EmptyProfile(models.SourceColumn{Tenant: "acme", Table: "contracts", Column: "always_null"})
	mapping := r.Resolve(profile, &models.ProposalResponse{})

	assert.NotEqual(t, models.MappingStatusAccepted, mapping.Status)
}

// ----------------------------------------------------------------------------
// Batch resolution and conflicts
// ----------------------------------------------------------------------------

func TestResolveBatch_OneMappingPerProfile(t *testing.T) {
	r := testResolver(t)

	profiles := []models.ColumnProfile{
		profileFor("contract_id"),
		profileFor("vendor_name"),
		models.EmptyProfile(models.SourceColumn{Tenant: "acme", Table: "contracts", Column: "empty_col"}),
	}

	responses := map[string]*models.ProposalResponse{
		profiles[0].SourceColumn.QualifiedName(): proposalFor(models.FieldContractID, 0.9),
	}

	mappings := r.ResolveBatch(profiles, responses)
	require.Len(t, mappings, len(profiles))
	for i, m := range mappings {
		assert.Equal(t, profiles[i].SourceColumn, m.SourceColumn)
		assert.True(t, m.Status.IsTerminal(), "mapping %d has non-terminal status %s", i, m.Status)
	}
}

func TestResolveBatch_ConflictDemotesLoser(t *testing.T) {
	r := testResolver(t)

	vendor := models.ColumnProfile{
		SourceColumn: models.SourceColumn{Tenant: "acme", Table: "contracts", Column: "vendor_name"},
		InferredType: models.ColumnTypeString,
		SampleValues: []string{"Initech"},
	}
	supplier := models.ColumnProfile{
		SourceColumn: models.SourceColumn{Tenant: "acme", Table: "contracts", Column: "supplier_name"},
		InferredType: models.ColumnTypeString,
		SampleValues: []string{"Globex"},
	}

	responses := map[string]*models.ProposalResponse{
		vendor.SourceColumn.QualifiedName():   proposalFor(models.FieldPartySeller, 1.0),
		supplier.SourceColumn.QualifiedName(): proposalFor(models.FieldPartySeller, 0.85),
	}

	mappings := r.ResolveBatch([]models.ColumnProfile{vendor, supplier}, responses)
	require.Len(t, mappings, 2)

	byColumn := map[string]models.ColumnMapping{}
	for _, m := range mappings {
		byColumn[m.SourceColumn.Column] = m
	}

	assert.Equal(t, models.MappingStatusAccepted, byColumn["vendor_name"].Status)
	assert.Equal(t, models.MappingStatusHITLRequired, byColumn["supplier_name"].Status)
	assert.Contains(t, byColumn["supplier_name"].HumanFeedback, "vendor_name")
}

func TestResolveBatch_AtMostOneAcceptedPerField(t *testing.T) {
	r := testResolver(t)

	var profiles []models.ColumnProfile
	responses := map[string]*models.ProposalResponse{}
	for _, col := range []string{"contract_id", "agreement_id", "deal_id"} {
		p := models.ColumnProfile{
			SourceColumn:  models.SourceColumn{Tenant: "acme", Table: "contracts", Column: col},
			DistinctRatio: 1.0,
			SampleValues:  []string{"CNT-1", "CNT-2"},
			InferredType:  models.ColumnTypeString,
			TotalRows:     2, NonNullCount: 2, DistinctCount: 2,
		}
		profiles = append(profiles, p)
		responses[p.SourceColumn.QualifiedName()] = proposalFor(models.FieldContractID, 0.9)
	}

	mappings := r.ResolveBatch(profiles, responses)

	accepted := 0
	for _, m := range mappings {
		if m.Status == models.MappingStatusAccepted && m.CanonicalField == models.FieldContractID {
			accepted++
		}
	}
	assert.LessOrEqual(t, accepted, 1)
}

func TestResolveBatch_NoResponsesStillCompletes(t *testing.T) {
	r := testResolver(t)

	profiles := []models.ColumnProfile{
		profileFor("colA"),
		profileFor("colB"),
	}

	mappings := r.ResolveBatch(profiles, nil)
	require.Len(t, mappings, 2)
	for _, m := range mappings {
		assert.NotEqual(t, models.MappingStatusAccepted, m.Status)
	}
}

// ----------------------------------------------------------------------------
// HITL requests
// ----------------------------------------------------------------------------

func TestNewHITLRequest(t *testing.T) {
	r := testResolver(t)

	profile := models.ColumnProfile{
		SourceColumn: models.SourceColumn{Tenant: "acme", Table: "contracts", Column: "cust_nm"},
		SampleValues: []string{"Acme Corp"},
		InferredType: models.ColumnTypeString,
	}
	resp := proposalFor(models.FieldPartyBuyer, 0.6)
	resp.Reasoning = "name column resembles buyer party"

	mapping := r.Resolve(profile, resp)
	require.Equal(t, models.MappingStatusHITLRequired, mapping.Status)

	req := NewHITLRequest(mapping, profile)
	assert.Equal(t, "acme", req.Tenant)
	assert.Equal(t, profile.SourceColumn, req.SourceColumn)
	assert.Equal(t, resp.ProposedMappings, req.ProposedMappings)
	assert.Equal(t, "name column resembles buyer party", req.Reasoning)
	assert.Equal(t, models.HITLPriorityNormal, req.Priority)
	assert.NotNil(t, req.MappingScore)
}
