package proposal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/canonform-inc/canonform-engine/pkg/llm"
	"github.com/canonform-inc/canonform-engine/pkg/models"
)

func testRequest() Request {
	col := models.SourceColumn{
		Tenant:       "acme",
		Table:        "contracts",
		Column:       "start_dt",
		DeclaredType: "varchar",
	}
	return Request{
		Column:  col,
		Profile: models.ColumnProfile{SourceColumn: col, TotalRows: 10, InferredType: models.ColumnTypeDate},
	}
}

func mockClient(content string) *llm.MockLLMClient {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*llm.GenerateResponseResult, error) {
		return &llm.GenerateResponseResult{Content: content}, nil
	}
	return mock
}

func TestLLMSource_WellFormedResponse(t *testing.T) {
	content := `{
		"proposed_mappings": [
			{"canonical_field": "effective_date", "justification": "date samples", "transform_hint": "parse_date", "confidence": 0.85}
		],
		"alternatives": [
			{"canonical_field": "expiry_date", "confidence": 0.3, "note": "less likely"}
		],
		"reasoning": "column holds start dates"
	}`

	source := NewLLMSource(mockClient(content), "(schema)", zap.NewNop())
	resp, err := source.Propose(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, resp.ProposedMappings, 1)
	assert.Equal(t, "effective_date", resp.ProposedMappings[0].CanonicalField)
	assert.Equal(t, "parse_date", resp.ProposedMappings[0].TransformHint)
	assert.InDelta(t, 0.85, resp.ProposedMappings[0].Confidence, 1e-9)

	require.Len(t, resp.Alternatives, 1)
	assert.Equal(t, "expiry_date", resp.Alternatives[0].CanonicalField)
	assert.Equal(t, "column holds start dates", resp.Reasoning)
}

func TestLLMSource_ToleratesShapeDrift(t *testing.T) {
	tests := []struct {
		name           string
		content        string
		wantField      string
		wantConfidence float64
	}{
		{
			name:           "quoted confidence",
			content:        `{"proposed_mappings": [{"canonical_field": "status", "confidence": "0.7"}]}`,
			wantField:      "status",
			wantConfidence: 0.7,
		},
		{
			name:           "percentage confidence",
			content:        `{"proposed_mappings": [{"canonical_field": "status", "confidence": "70%"}]}`,
			wantField:      "status",
			wantConfidence: 0.7,
		},
		{
			name:           "single object instead of array",
			content:        `{"proposed_mappings": {"canonical_field": "status", "confidence": 0.9}}`,
			wantField:      "status",
			wantConfidence: 0.9,
		},
		{
			name:           "confidence above one is clamped",
			content:        `{"proposed_mappings": [{"canonical_field": "status", "confidence": 85}]}`,
			wantField:      "status",
			wantConfidence: 1.0,
		},
		{
			name:           "wrapped in markdown and prose",
			content:        "Here you go:\n```json\n{\"proposed_mappings\": [{\"canonical_field\": \"status\", \"confidence\": 0.6}]}\n```",
			wantField:      "status",
			wantConfidence: 0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewLLMSource(mockClient(tt.content), "(schema)", zap.NewNop())
			resp, err := source.Propose(context.Background(), testRequest())
			require.NoError(t, err)
			require.Len(t, resp.ProposedMappings, 1)
			assert.Equal(t, tt.wantField, resp.ProposedMappings[0].CanonicalField)
			assert.InDelta(t, tt.wantConfidence, resp.ProposedMappings[0].Confidence, 1e-9)
		})
	}
}

func TestLLMSource_MalformedOutputDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no JSON at all", "I am not sure about this column."},
		{"unbalanced JSON", `{"proposed_mappings": [`},
		{"empty string", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewLLMSource(mockClient(tt.content), "(schema)", zap.NewNop())
			resp, err := source.Propose(context.Background(), testRequest())
			require.NoError(t, err)
			assert.Empty(t, resp.ProposedMappings)
		})
	}
}

func TestLLMSource_DropsProposalsWithoutField(t *testing.T) {
	content := `{"proposed_mappings": [
		{"justification": "no field named", "confidence": 0.9},
		{"canonical_field": "status", "confidence": 0.5}
	]}`

	source := NewLLMSource(mockClient(content), "(schema)", zap.NewNop())
	resp, err := source.Propose(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, resp.ProposedMappings, 1)
	assert.Equal(t, "status", resp.ProposedMappings[0].CanonicalField)
}

func TestLLMSource_TransportErrorSurfaces(t *testing.T) {
	mock := llm.NewMockLLMClient()
	authErr := llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, errors.New("401"))
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*llm.GenerateResponseResult, error) {
		return nil, authErr
	}

	source := NewLLMSource(mock, "(schema)", zap.NewNop())
	_, err := source.Propose(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, authErr)
	assert.Equal(t, 1, mock.GenerateResponseCalls) // auth errors are not retried
}

func TestLLMSource_RetriesTransientErrors(t *testing.T) {
	mock := llm.NewMockLLMClient()
	calls := 0
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*llm.GenerateResponseResult, error) {
		calls++
		if calls < 2 {
			return nil, llm.NewError(llm.ErrorTypeRateLimit, "rate limited", true, nil)
		}
		return &llm.GenerateResponseResult{Content: `{"proposed_mappings": []}`}, nil
	}

	source := NewLLMSource(mock, "(schema)", zap.NewNop())
	resp, err := source.Propose(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, resp.ProposedMappings)
	assert.Equal(t, 2, calls)
}

func TestStaticSource(t *testing.T) {
	req := testRequest()
	source := &StaticSource{
		Responses: map[string]*models.ProposalResponse{
			req.Column.QualifiedName(): {
				ProposedMappings: []models.MappingProposal{{CanonicalField: "effective_date", Confidence: 0.9}},
			},
		},
	}

	resp, err := source.Propose(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.ProposedMappings, 1)

	other := req
	other.Column.Column = "unknown_col"
	resp, err = source.Propose(context.Background(), other)
	require.NoError(t, err)
	assert.Empty(t, resp.ProposedMappings)
	assert.Equal(t, 2, source.ProposeCallCount())
}
