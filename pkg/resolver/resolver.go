// Package resolver combines proposal source output with deterministic
// heuristic scoring to decide column mappings.
package resolver

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canonform-inc/canonform-engine/pkg/catalog"
	"github.com/canonform-inc/canonform-engine/pkg/config"
	"github.com/canonform-inc/canonform-engine/pkg/models"
	"github.com/canonform-inc/canonform-engine/pkg/scoring"
)

// Resolver scores proposals and applies the two-threshold decision rule.
// Resolution is deterministic: the same profiles and proposals always
// produce the same mappings.
type Resolver struct {
	catalog *catalog.Catalog
	scorer  *scoring.Scorer
	cfg     config.ScoringConfig
	logger  *zap.Logger
}

// NewResolver creates a resolver with the given scoring configuration.
func NewResolver(cat *catalog.Catalog, scorer *scoring.Scorer, cfg config.ScoringConfig, logger *zap.Logger) *Resolver {
	return &Resolver{
		catalog: cat,
		scorer:  scorer,
		cfg:     cfg,
		logger:  logger.Named("resolver"),
	}
}

// Resolve decides the mapping for a single column. With no usable proposals
// it falls back to heuristic-only resolution, which never auto-accepts.
func (r *Resolver) Resolve(profile models.ColumnProfile, response *models.ProposalResponse) models.ColumnMapping {
	if response == nil {
		response = &models.ProposalResponse{}
	}

	proposals := r.knownFieldProposals(profile, response.ProposedMappings)
	if len(proposals) == 0 {
		return r.heuristicOnly(profile, response)
	}

	best := proposals[0]
	mapping := models.ColumnMapping{
		ID:               uuid.New(),
		SourceColumn:     profile.SourceColumn,
		CanonicalField:   best.proposal.CanonicalField,
		MappingScore:     &best.score,
		ProposalResponse: response,
		TransformRule:    best.proposal.TransformHint,
		CreatedAt:        time.Now().UTC(),
	}

	switch {
	case best.score.AutoAccept:
		mapping.Status = models.MappingStatusAccepted
		r.logger.Info("auto-accepted mapping",
			zap.String("column", profile.SourceColumn.QualifiedName()),
			zap.String("canonical_field", mapping.CanonicalField),
			zap.Float64("score", best.score.FinalScore))
	case best.score.NeedsHITL:
		mapping.Status = models.MappingStatusHITLRequired
		r.logger.Info("review required",
			zap.String("column", profile.SourceColumn.QualifiedName()),
			zap.String("canonical_field", mapping.CanonicalField),
			zap.Float64("score", best.score.FinalScore))
	default:
		mapping.Status = models.MappingStatusRejected
		mapping.CanonicalField = ""
		mapping.TransformRule = ""
		r.logger.Info("rejected mapping",
			zap.String("column", profile.SourceColumn.QualifiedName()),
			zap.Float64("score", best.score.FinalScore))
	}

	return mapping
}

// ResolveBatch resolves every profile, then demotes cross-column conflicts.
func (r *Resolver) ResolveBatch(profiles []models.ColumnProfile, responses map[string]*models.ProposalResponse) []models.ColumnMapping {
	mappings := make([]models.ColumnMapping, 0, len(profiles))
	for _, profile := range profiles {
		mappings = append(mappings, r.Resolve(profile, responses[profile.SourceColumn.QualifiedName()]))
	}
	return r.resolveConflicts(mappings)
}

// scoredProposal pairs a proposal with its computed score.
type scoredProposal struct {
	proposal models.MappingProposal
	score    models.MappingScore
}

// knownFieldProposals scores each proposal naming a catalog field and sorts
// them best first. Equal final scores order by canonical field name so
// selection is stable across runs.
func (r *Resolver) knownFieldProposals(profile models.ColumnProfile, proposals []models.MappingProposal) []scoredProposal {
	scored := make([]scoredProposal, 0, len(proposals))
	for _, p := range proposals {
		if r.catalog.FieldByName(p.CanonicalField) == nil {
			r.logger.Warn("proposal names unknown canonical field",
				zap.String("column", profile.SourceColumn.QualifiedName()),
				zap.String("canonical_field", p.CanonicalField))
			continue
		}
		scored = append(scored, scoredProposal{
			proposal: p,
			score:    r.scoreCandidate(profile, p.CanonicalField, p.Confidence),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score.FinalScore != scored[j].score.FinalScore {
			return scored[i].score.FinalScore > scored[j].score.FinalScore
		}
		return scored[i].proposal.CanonicalField < scored[j].proposal.CanonicalField
	})

	return scored
}

// scoreCandidate computes the weighted score and decision booleans for one
// (column, canonical field) pair.
func (r *Resolver) scoreCandidate(profile models.ColumnProfile, canonicalField string, llmConfidence float64) models.MappingScore {
	nameScore := r.scorer.NameSimilarity(profile.SourceColumn.Column, canonicalField)
	typeScore := r.scorer.TypeCompatibility(profile.InferredType, canonicalField)
	profileScore := r.scorer.ProfileScore(profile, canonicalField)

	finalScore := r.cfg.WeightLLM*llmConfidence +
		r.cfg.WeightName*nameScore +
		r.cfg.WeightType*typeScore +
		r.cfg.WeightProfile*profileScore

	return models.MappingScore{
		LLMConfidence:     llmConfidence,
		NameSimilarity:    nameScore,
		TypeCompatibility: typeScore,
		ValueRangeMatch:   profileScore,
		FinalScore:        finalScore,
		AutoAccept:        finalScore >= r.cfg.AutoAcceptThreshold,
		NeedsHITL:         finalScore >= r.cfg.HITLThreshold && finalScore < r.cfg.AutoAcceptThreshold,
	}
}

// heuristicOnly maps a column using only the non-LLM sub-scores, renormalized
// to sum to one. A heuristic-only match is never trusted enough to
// auto-accept; anything above the floor goes to human review.
func (r *Resolver) heuristicOnly(profile models.ColumnProfile, response *models.ProposalResponse) models.ColumnMapping {
	heuristicWeight := r.cfg.WeightName + r.cfg.WeightType + r.cfg.WeightProfile

	var bestField string
	var bestScore float64
	var bestBreakdown models.MappingScore

	for _, fieldName := range r.catalog.FieldNames() {
		candidate := r.scoreCandidate(profile, fieldName, 0.0)
		heuristicScore := (r.cfg.WeightName*candidate.NameSimilarity +
			r.cfg.WeightType*candidate.TypeCompatibility +
			r.cfg.WeightProfile*candidate.ValueRangeMatch) / heuristicWeight

		if heuristicScore > bestScore || (heuristicScore == bestScore && bestField != "" && fieldName < bestField) {
			bestField = fieldName
			bestScore = heuristicScore
			bestBreakdown = candidate
		}
	}

	mapping := models.ColumnMapping{
		ID:               uuid.New(),
		SourceColumn:     profile.SourceColumn,
		ProposalResponse: response,
		Status:           models.MappingStatusRejected,
		CreatedAt:        time.Now().UTC(),
	}

	if bestScore > r.cfg.HeuristicFloor {
		score := bestBreakdown
		score.FinalScore = bestScore
		score.AutoAccept = false
		score.NeedsHITL = true

		mapping.CanonicalField = bestField
		mapping.MappingScore = &score
		mapping.Status = models.MappingStatusHITLRequired
		r.logger.Info("heuristic-only mapping",
			zap.String("column", profile.SourceColumn.QualifiedName()),
			zap.String("canonical_field", bestField),
			zap.Float64("score", bestScore))
	} else {
		r.logger.Info("no suitable mapping",
			zap.String("column", profile.SourceColumn.QualifiedName()),
			zap.Float64("best_score", bestScore))
	}

	return mapping
}

// resolveConflicts demotes all but the best mapping when several non-rejected
// columns target the same canonical field. The winner keeps its status;
// losers go to human review with a note naming the winning column. Ties
// break on qualified column name so the outcome is stable.
func (r *Resolver) resolveConflicts(mappings []models.ColumnMapping) []models.ColumnMapping {
	byField := make(map[string][]int)
	for i, m := range mappings {
		if m.CanonicalField == "" || m.Status == models.MappingStatusRejected {
			continue
		}
		byField[m.CanonicalField] = append(byField[m.CanonicalField], i)
	}

	for field, indexes := range byField {
		if len(indexes) <= 1 {
			continue
		}

		winner := indexes[0]
		for _, idx := range indexes[1:] {
			if betterMapping(mappings[idx], mappings[winner]) {
				winner = idx
			}
		}

		for _, idx := range indexes {
			if idx == winner {
				continue
			}
			mappings[idx].Status = models.MappingStatusHITLRequired
			mappings[idx].HumanFeedback = fmt.Sprintf("Conflict with %s", mappings[winner].SourceColumn.Column)
			r.logger.Info("conflict demoted to review",
				zap.String("canonical_field", field),
				zap.String("column", mappings[idx].SourceColumn.QualifiedName()),
				zap.String("winner", mappings[winner].SourceColumn.QualifiedName()))
		}
	}

	return mappings
}

func betterMapping(a, b models.ColumnMapping) bool {
	scoreA, scoreB := finalScore(a), finalScore(b)
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	return a.SourceColumn.QualifiedName() < b.SourceColumn.QualifiedName()
}

func finalScore(m models.ColumnMapping) float64 {
	if m.MappingScore == nil {
		return 0.0
	}
	return m.MappingScore.FinalScore
}

// NewHITLRequest builds a review item for a mapping that needs a human
// decision, carrying the proposal justifications verbatim.
func NewHITLRequest(mapping models.ColumnMapping, profile models.ColumnProfile) models.HITLRequest {
	var proposed []models.MappingProposal
	reasoning := "No proposal reasoning available"
	if mapping.ProposalResponse != nil {
		proposed = mapping.ProposalResponse.ProposedMappings
		if mapping.ProposalResponse.Reasoning != "" {
			reasoning = mapping.ProposalResponse.Reasoning
		}
	}

	return models.HITLRequest{
		Tenant:           profile.SourceColumn.Tenant,
		SourceColumn:     profile.SourceColumn,
		ProposedMappings: proposed,
		ColumnProfile:    profile,
		MappingScore:     mapping.MappingScore,
		Reasoning:        reasoning,
		Priority:         models.HITLPriorityNormal,
		CreatedAt:        time.Now().UTC(),
	}
}
