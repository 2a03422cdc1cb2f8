package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Transform Results
// ============================================================================

// Transform names recorded in lineage.
const (
	TransformStringNormalization = "string_normalization"
	TransformDateParsing         = "date_parsing"
	TransformCurrency            = "currency_normalization"
	TransformBoolean             = "boolean_conversion"
	TransformInteger             = "integer_conversion"
	TransformEnum                = "enum_normalization"
	TransformDefaultString       = "default_string"
)

// TransformResult summarizes one transform run for a tenant.
type TransformResult struct {
	ID             uuid.UUID       `json:"id"`
	Tenant         string          `json:"tenant"`
	SourceTable    string          `json:"source_table"`
	RowsProcessed  int             `json:"rows_processed"`
	RowsSuccessful int             `json:"rows_successful"`
	Errors         []string        `json:"errors,omitempty"`
	Lineage        []LineageRecord `json:"lineage,omitempty"`
	MappingVersion string          `json:"mapping_version"`
	CreatedAt      time.Time       `json:"created_at"`
}

// LineageRecord tracks how one output field was produced.
// Lineage is append-only; records are never edited after creation.
type LineageRecord struct {
	ID               uuid.UUID      `json:"id"`
	OutputField      string         `json:"output_field"`
	SourceColumns    []SourceColumn `json:"source_columns"`
	TransformApplied string         `json:"transform_applied"`
	MappingVersion   string         `json:"mapping_version"`
	PromptVersion    string         `json:"prompt_version"`
	ConfidenceScore  float64        `json:"confidence_score"`
	CreatedAt        time.Time      `json:"created_at"`
}
