package prompts

import (
	"fmt"
	"strings"
)

// SystemMessage frames the model's role for all mapping calls.
const SystemMessage = "You are a data integration specialist. You map tenant database columns " +
	"onto a canonical contract schema. Respond only with valid JSON matching the requested format."

// SourceColumnContext provides everything the model needs about one column.
type SourceColumnContext struct {
	Tenant          string
	Table           string
	Column          string
	DeclaredType    string
	Description     string
	Nullable        bool
	TotalRows       int
	NonNullCount    int
	DistinctCount   int
	DistinctRatio   float64
	InferredType    string
	SampleValues    []string
	DatePatterns    []string
	CurrencySymbols []string
	Cooccurring     []string
}

// BuildColumnMappingPrompt creates the prompt for mapping one source column
// onto the canonical schema. It includes the schema excerpt, the column's
// profile, and the JSON response contract.
func BuildColumnMappingPrompt(catalogExcerpt string, col SourceColumnContext) string {
	var prompt strings.Builder

	prompt.WriteString("# Column Mapping Analysis\n\n")
	prompt.WriteString("Map the following source column onto the canonical contract schema, or determine that no mapping exists.\n\n")

	prompt.WriteString("## Canonical Schema\n\n")
	prompt.WriteString(catalogExcerpt)
	prompt.WriteString("\n")

	prompt.WriteString("## Source Column\n\n")
	prompt.WriteString(fmt.Sprintf("### %s.%s.%s\n", col.Tenant, col.Table, col.Column))
	prompt.WriteString(fmt.Sprintf("- **Declared type**: %s\n", col.DeclaredType))
	if col.Description != "" {
		prompt.WriteString(fmt.Sprintf("- **Description**: %s\n", col.Description))
	}
	if col.Nullable {
		prompt.WriteString("- **Nullable**: yes\n")
	}

	prompt.WriteString("\n## Column Profile\n\n")
	prompt.WriteString(fmt.Sprintf("- **Rows**: %d (%d non-null, %d distinct, distinct ratio %.2f)\n",
		col.TotalRows, col.NonNullCount, col.DistinctCount, col.DistinctRatio))
	if col.InferredType != "" {
		prompt.WriteString(fmt.Sprintf("- **Inferred type**: %s\n", col.InferredType))
	}
	if len(col.SampleValues) > 0 {
		prompt.WriteString(fmt.Sprintf("- **Sample values**: %s\n", strings.Join(col.SampleValues, ", ")))
	}
	if len(col.DatePatterns) > 0 {
		prompt.WriteString(fmt.Sprintf("- **Date patterns detected**: %s\n", strings.Join(col.DatePatterns, ", ")))
	}
	if len(col.CurrencySymbols) > 0 {
		prompt.WriteString(fmt.Sprintf("- **Currency symbols detected**: %s\n", strings.Join(col.CurrencySymbols, " ")))
	}
	if len(col.Cooccurring) > 0 {
		prompt.WriteString(fmt.Sprintf("- **Co-occurring columns**: %s\n", strings.Join(col.Cooccurring, ", ")))
	}

	prompt.WriteString("\n## Instructions\n\n")
	prompt.WriteString("1. Propose at most one canonical field for this column. If nothing fits, return an empty proposed_mappings array.\n")
	prompt.WriteString("2. Base your confidence on the column name, declared type, and the profile evidence above.\n")
	prompt.WriteString("3. Note any transform the values would need (date parsing, currency normalization, enum remapping).\n")
	prompt.WriteString("4. List assumptions you are making about the tenant's data.\n")
	prompt.WriteString("5. Offer lower-confidence alternatives when more than one field is plausible.\n")

	prompt.WriteString("\n## Response Format\n\n")
	prompt.WriteString("Respond with JSON only:\n\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "proposed_mappings": [
    {
      "canonical_field": "effective_date",
      "justification": "Column name and ISO date samples indicate the contract start date",
      "transform_hint": "parse_date",
      "assumptions": ["Dates are in YYYY-MM-DD format"],
      "confidence": 0.85
    }
  ],
  "alternatives": [
    {"canonical_field": "expiry_date", "confidence": 0.3, "note": "Possible if the table tracks end dates"}
  ],
  "reasoning": "Brief explanation of the analysis"
}
`)
	prompt.WriteString("```\n")

	return prompt.String()
}
