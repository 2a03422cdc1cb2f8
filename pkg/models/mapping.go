package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Proposal Source Response
// ============================================================================

// MappingProposal is one candidate mapping from the Proposal Source.
type MappingProposal struct {
	CanonicalField string   `json:"canonical_field"`
	Justification  string   `json:"justification"`
	TransformHint  string   `json:"transform_hint,omitempty"`
	Assumptions    []string `json:"assumptions,omitempty"`
	Confidence     float64  `json:"confidence"` // [0,1]
}

// AlternativeMapping is a lower-priority suggestion from the Proposal Source.
type AlternativeMapping struct {
	CanonicalField string  `json:"canonical_field"`
	Confidence     float64 `json:"confidence"`
	Note           string  `json:"note,omitempty"`
}

// ProposalResponse is the typed contract at the Proposal Source boundary.
// Any shape variance in the provider's raw output is handled before this
// struct is built; the resolver only ever sees this form. An empty
// ProposedMappings slice means "no proposals" and is a valid state.
type ProposalResponse struct {
	ProposedMappings []MappingProposal    `json:"proposed_mappings"`
	Alternatives     []AlternativeMapping `json:"alternatives,omitempty"`
	Reasoning        string               `json:"reasoning,omitempty"`
}

// ============================================================================
// Mapping Score
// ============================================================================

// MappingScore holds the four independent sub-scores for one
// (column, candidate) pair plus the weighted final score and the decision
// booleans derived from it. Computed fresh per pair; never persisted
// independently of a ColumnMapping.
type MappingScore struct {
	LLMConfidence     float64 `json:"llm_confidence"`
	NameSimilarity    float64 `json:"name_similarity"`
	TypeCompatibility float64 `json:"type_compatibility"`
	ValueRangeMatch   float64 `json:"value_range_match"`
	FinalScore        float64 `json:"final_score"`

	// AutoAccept and NeedsHITL are mutually exclusive by construction.
	AutoAccept bool `json:"auto_accept"`
	NeedsHITL  bool `json:"needs_hitl"`
}

// ============================================================================
// Column Mapping
// ============================================================================

// MappingStatus is the decision state of a ColumnMapping.
type MappingStatus string

const (
	MappingStatusPending      MappingStatus = "pending"
	MappingStatusAccepted     MappingStatus = "accepted"
	MappingStatusHITLRequired MappingStatus = "hitl_required"
	MappingStatusRejected     MappingStatus = "rejected"
)

// IsTerminal reports whether the status is a final resolution outcome.
func (s MappingStatus) IsTerminal() bool {
	switch s {
	case MappingStatusAccepted, MappingStatusHITLRequired, MappingStatusRejected:
		return true
	}
	return false
}

// ColumnMapping is the resolved decision for one source column.
// Created by the resolver; mutated afterwards only by explicit human override
// or by conflict resolution demoting accepted -> hitl_required.
type ColumnMapping struct {
	ID           uuid.UUID    `json:"id"`
	SourceColumn SourceColumn `json:"source_column"`

	// CanonicalField is empty for rejected mappings.
	CanonicalField string `json:"canonical_field,omitempty"`

	MappingScore *MappingScore `json:"mapping_score,omitempty"`

	// ProposalResponse preserves the full Proposal Source output for audit.
	ProposalResponse *ProposalResponse `json:"proposal_response,omitempty"`

	TransformRule string        `json:"transform_rule,omitempty"`
	Status        MappingStatus `json:"status"`
	HumanFeedback string        `json:"human_feedback,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ============================================================================
// Mapping Plan
// ============================================================================

// MappingPlan is the complete set of resolved mappings for one tenant.
type MappingPlan struct {
	ID                     uuid.UUID       `json:"id"`
	Tenant                 string          `json:"tenant"`
	Version                string          `json:"version"`
	CanonicalSchemaVersion string          `json:"canonical_schema_version"`
	Mappings               []ColumnMapping `json:"mappings"`
	CoverageStats          CoverageStats   `json:"coverage_stats"`
	CreatedAt              time.Time       `json:"created_at"`
	ApprovedBy             string          `json:"approved_by,omitempty"`
}

// CoverageStats summarizes a plan's decision outcomes.
type CoverageStats struct {
	TotalColumns int `json:"total_columns"`
	Accepted     int `json:"accepted"`
	HITLRequired int `json:"hitl_required"`
	Rejected     int `json:"rejected"`

	// RequiredFieldsCovered counts required canonical fields with an
	// accepted mapping.
	RequiredFieldsCovered int `json:"required_fields_covered"`
	RequiredFieldsTotal   int `json:"required_fields_total"`
}

// Tally recomputes the status counters from the given mappings.
func (s *CoverageStats) Tally(mappings []ColumnMapping) {
	s.TotalColumns = len(mappings)
	s.Accepted, s.HITLRequired, s.Rejected = 0, 0, 0
	for _, m := range mappings {
		switch m.Status {
		case MappingStatusAccepted:
			s.Accepted++
		case MappingStatusHITLRequired:
			s.HITLRequired++
		case MappingStatusRejected:
			s.Rejected++
		}
	}
}

// ============================================================================
// Human Review
// ============================================================================

// HITLPriority classifies review urgency.
const (
	HITLPriorityLow    = "low"
	HITLPriorityNormal = "normal"
	HITLPriorityHigh   = "high"
)

// HITLRequest is a human-in-the-loop review item. It carries the full score
// breakdown and the original Proposal Source justification verbatim so a
// reviewer can see why the automatic decision landed where it did.
type HITLRequest struct {
	Tenant           string            `json:"tenant"`
	SourceColumn     SourceColumn      `json:"source_column"`
	ProposedMappings []MappingProposal `json:"proposed_mappings"`
	ColumnProfile    ColumnProfile     `json:"column_profile"`
	MappingScore     *MappingScore     `json:"mapping_score,omitempty"`
	Reasoning        string            `json:"reasoning"`
	Priority         string            `json:"priority"`
	CreatedAt        time.Time         `json:"created_at"`
}

// HITLDecision is the action a reviewer took.
type HITLDecision string

const (
	HITLDecisionAccept HITLDecision = "accept"
	HITLDecisionReject HITLDecision = "reject"
	HITLDecisionModify HITLDecision = "modify"
)

// HITLResponse records a human decision on a review request.
type HITLResponse struct {
	MappingID       uuid.UUID    `json:"mapping_id"`
	Decision        HITLDecision `json:"decision"`
	SelectedMapping string       `json:"selected_mapping,omitempty"`
	Feedback        string       `json:"feedback,omitempty"`
	Reviewer        string       `json:"reviewer"`
	ReviewedAt      time.Time    `json:"reviewed_at"`
}
