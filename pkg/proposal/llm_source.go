package proposal

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/canonform-inc/canonform-engine/pkg/jsonutil"
	"github.com/canonform-inc/canonform-engine/pkg/llm"
	"github.com/canonform-inc/canonform-engine/pkg/models"
	"github.com/canonform-inc/canonform-engine/pkg/prompts"
	"github.com/canonform-inc/canonform-engine/pkg/retry"
)

// proposalTemperature keeps mapping proposals near-deterministic.
const proposalTemperature = 0.1

// LLMSource proposes mappings by prompting an LLM with the canonical schema
// excerpt and the column's profile. Provider output shape varies between
// models, so parsing is tolerant: confidences may arrive quoted or as
// percentages, and a single proposal may arrive as a bare object instead of
// an array. Output that cannot be interpreted at all degrades to an empty
// response rather than an error.
type LLMSource struct {
	client         llm.LLMClient
	catalogExcerpt string
	retryConfig    *retry.Config
	logger         *zap.Logger
}

var _ Source = (*LLMSource)(nil)

// NewLLMSource creates a proposal source backed by the given LLM client.
func NewLLMSource(client llm.LLMClient, catalogExcerpt string, logger *zap.Logger) *LLMSource {
	return &LLMSource{
		client:         client,
		catalogExcerpt: catalogExcerpt,
		retryConfig:    retry.DefaultConfig(),
		logger:         logger.Named("proposal-source"),
	}
}

// Propose implements Source.
func (s *LLMSource) Propose(ctx context.Context, req Request) (*models.ProposalResponse, error) {
	prompt := prompts.BuildColumnMappingPrompt(s.catalogExcerpt, promptContext(req))

	var result *llm.GenerateResponseResult
	err := retry.DoIfRetryable(ctx, s.retryConfig, func() error {
		var genErr error
		result, genErr = s.client.GenerateResponse(ctx, prompt, prompts.SystemMessage, proposalTemperature)
		return genErr
	})
	if err != nil {
		return nil, fmt.Errorf("generate proposal for %s: %w", req.Column.QualifiedName(), err)
	}

	resp, parseErr := parseProposalResponse(result.Content)
	if parseErr != nil {
		s.logger.Warn("unparseable proposal response, treating as no proposal",
			zap.String("column", req.Column.QualifiedName()),
			zap.Error(parseErr))
		return &models.ProposalResponse{ProposedMappings: []models.MappingProposal{}}, nil
	}

	s.logger.Debug("proposal received",
		zap.String("column", req.Column.QualifiedName()),
		zap.Int("proposals", len(resp.ProposedMappings)),
		zap.Int("alternatives", len(resp.Alternatives)))

	return resp, nil
}

func promptContext(req Request) prompts.SourceColumnContext {
	return prompts.SourceColumnContext{
		Tenant:          req.Column.Tenant,
		Table:           req.Column.Table,
		Column:          req.Column.Column,
		DeclaredType:    req.Column.DeclaredType,
		Description:     req.Column.Description,
		Nullable:        req.Column.Nullable,
		TotalRows:       int(req.Profile.TotalRows),
		NonNullCount:    int(req.Profile.NonNullCount),
		DistinctCount:   int(req.Profile.DistinctCount),
		DistinctRatio:   req.Profile.DistinctRatio,
		InferredType:    string(req.Profile.InferredType),
		SampleValues:    req.Profile.SampleValues,
		DatePatterns:    req.Profile.DatePatterns,
		CurrencySymbols: req.Profile.CurrencySymbols,
		Cooccurring:     req.Profile.CooccurringColumns,
	}
}

// rawProposal mirrors MappingProposal with RawMessage fields so that quoted
// numbers, bare scalars, and other shape drift can be coerced.
type rawProposal struct {
	CanonicalField json.RawMessage `json:"canonical_field"`
	Justification  json.RawMessage `json:"justification"`
	TransformHint  json.RawMessage `json:"transform_hint"`
	Assumptions    json.RawMessage `json:"assumptions"`
	Confidence     json.RawMessage `json:"confidence"`
}

type rawAlternative struct {
	CanonicalField json.RawMessage `json:"canonical_field"`
	Confidence     json.RawMessage `json:"confidence"`
	Note           json.RawMessage `json:"note"`
}

type rawProposalResponse struct {
	ProposedMappings json.RawMessage `json:"proposed_mappings"`
	Alternatives     json.RawMessage `json:"alternatives"`
	Reasoning        json.RawMessage `json:"reasoning"`
}

// parseProposalResponse extracts and normalizes the provider's JSON into the
// typed contract. Confidences are clamped to [0,1]; proposals without a
// canonical field name are dropped.
func parseProposalResponse(content string) (*models.ProposalResponse, error) {
	raw, err := llm.ParseJSONResponse[rawProposalResponse](content)
	if err != nil {
		return nil, err
	}

	resp := &models.ProposalResponse{
		ProposedMappings: []models.MappingProposal{},
		Reasoning:        jsonutil.FlexibleStringValue(raw.Reasoning),
	}

	for _, rp := range decodeObjectList[rawProposal](raw.ProposedMappings) {
		field := jsonutil.FlexibleStringValue(rp.CanonicalField)
		if field == "" {
			continue
		}
		resp.ProposedMappings = append(resp.ProposedMappings, models.MappingProposal{
			CanonicalField: field,
			Justification:  jsonutil.FlexibleStringValue(rp.Justification),
			TransformHint:  jsonutil.FlexibleStringValue(rp.TransformHint),
			Assumptions:    jsonutil.FlexibleStringSlice(rp.Assumptions),
			Confidence:     clamp01(jsonutil.FlexibleFloatValue(rp.Confidence)),
		})
	}

	for _, ra := range decodeObjectList[rawAlternative](raw.Alternatives) {
		field := jsonutil.FlexibleStringValue(ra.CanonicalField)
		if field == "" {
			continue
		}
		resp.Alternatives = append(resp.Alternatives, models.AlternativeMapping{
			CanonicalField: field,
			Confidence:     clamp01(jsonutil.FlexibleFloatValue(ra.Confidence)),
			Note:           jsonutil.FlexibleStringValue(ra.Note),
		})
	}

	return resp, nil
}

// decodeObjectList accepts either a JSON array of objects or a single bare
// object, returning the decoded elements.
func decodeObjectList[T any](raw json.RawMessage) []T {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var list []T
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var single T
	if err := json.Unmarshal(raw, &single); err == nil {
		return []T{single}
	}

	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
