// Package scoring computes the deterministic heuristic sub-scores used by
// mapping resolution: name similarity, type compatibility, and value-pattern
// match. All scores are in [0,1] and are pure functions of their inputs.
package scoring

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jinzhu/inflection"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/canonform-inc/canonform-engine/pkg/catalog"
	"github.com/canonform-inc/canonform-engine/pkg/models"
)

// Scorer computes heuristic sub-scores against the canonical schema.
type Scorer struct {
	catalog *catalog.Catalog
}

// NewScorer creates a scorer bound to the given canonical schema.
func NewScorer(cat *catalog.Catalog) *Scorer {
	return &Scorer{catalog: cat}
}

// ============================================================================
// Name Similarity
// ============================================================================

var nameSeparators = regexp.MustCompile(`[_\s]+`)

// NameSimilarity scores how closely a source column name matches a canonical
// field name. It takes the best of three fuzzy measures: plain ratio and
// partial ratio over separator-stripped names, and token-sort ratio over
// singularized tokens so "contract_dates" still lines up with "effective_date".
func (s *Scorer) NameSimilarity(sourceColumn, canonicalField string) float64 {
	sourceNorm := nameSeparators.ReplaceAllString(strings.ToLower(sourceColumn), "")
	canonicalNorm := nameSeparators.ReplaceAllString(strings.ToLower(canonicalField), "")

	ratio := float64(fuzzy.Ratio(sourceNorm, canonicalNorm)) / 100.0
	partial := float64(fuzzy.PartialRatio(sourceNorm, canonicalNorm)) / 100.0
	tokenSort := float64(fuzzy.TokenSortRatio(
		singularizeTokens(sourceColumn),
		singularizeTokens(canonicalField),
	)) / 100.0

	return max3(ratio, partial, tokenSort)
}

func singularizeTokens(name string) string {
	tokens := nameSeparators.Split(strings.ToLower(name), -1)
	for i, t := range tokens {
		tokens[i] = inflection.Singular(t)
	}
	return strings.Join(tokens, " ")
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// ============================================================================
// Type Compatibility
// ============================================================================

// typeCompatibility maps inferred source type to expected canonical type.
// Unlisted pairs score 0.
var typeCompatibility = map[models.ColumnType]map[models.ColumnType]float64{
	models.ColumnTypeString: {
		models.ColumnTypeString:  1.0,
		models.ColumnTypeEnum:    0.8,
		models.ColumnTypeDate:    0.6, // strings often parse as dates
		models.ColumnTypeDecimal: 0.3,
		models.ColumnTypeInt:     0.3,
		models.ColumnTypeBool:    0.2,
	},
	models.ColumnTypeInt: {
		models.ColumnTypeInt:     1.0,
		models.ColumnTypeDecimal: 0.9,
		models.ColumnTypeBool:    0.7, // 0/1 columns
		models.ColumnTypeString:  0.3,
		models.ColumnTypeEnum:    0.2,
		models.ColumnTypeDate:    0.0,
	},
	models.ColumnTypeDecimal: {
		models.ColumnTypeDecimal: 1.0,
		models.ColumnTypeInt:     0.8,
		models.ColumnTypeString:  0.3,
		models.ColumnTypeBool:    0.1,
		models.ColumnTypeEnum:    0.1,
		models.ColumnTypeDate:    0.0,
	},
	models.ColumnTypeBool: {
		models.ColumnTypeBool:    1.0,
		models.ColumnTypeInt:     0.7,
		models.ColumnTypeString:  0.5,
		models.ColumnTypeEnum:    0.4,
		models.ColumnTypeDecimal: 0.1,
		models.ColumnTypeDate:    0.0,
	},
	models.ColumnTypeDate: {
		models.ColumnTypeDate:     1.0,
		models.ColumnTypeDatetime: 0.9,
		models.ColumnTypeString:   0.6,
		models.ColumnTypeInt:      0.1,
		models.ColumnTypeDecimal:  0.0,
		models.ColumnTypeBool:     0.0,
		models.ColumnTypeEnum:     0.0,
	},
	models.ColumnTypeDatetime: {
		models.ColumnTypeDatetime: 1.0,
		models.ColumnTypeDate:     0.9,
		models.ColumnTypeString:   0.6,
		models.ColumnTypeInt:      0.1,
	},
	models.ColumnTypeEnum: {
		models.ColumnTypeEnum:    1.0,
		models.ColumnTypeString:  0.8,
		models.ColumnTypeBool:    0.6, // two-value enums
		models.ColumnTypeInt:     0.3,
		models.ColumnTypeDecimal: 0.1,
		models.ColumnTypeDate:    0.0,
	},
}

// TypeCompatibility scores how well the inferred source type fits the
// canonical field's declared type. Unknown canonical fields score 0.
func (s *Scorer) TypeCompatibility(sourceType models.ColumnType, canonicalField string) float64 {
	field := s.catalog.FieldByName(canonicalField)
	if field == nil {
		return 0.0
	}
	return typeCompatibility[sourceType][field.Type]
}

// ============================================================================
// Value-Pattern Match
// ============================================================================

var (
	idPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d+`),
		regexp.MustCompile(`^[A-Z]+\d+`),
		regexp.MustCompile(`^[A-Z0-9\-]+`),
	}
	isoDateValue   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	slashDateValue = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}`)
	monetaryValue  = regexp.MustCompile(`^[\$£€¥]?[\d,]+\.?\d*`)
)

var statusKeywords = []string{"active", "draft", "expired", "terminated", "suspended"}

var contractTypeKeywords = []string{"msa", "nda", "sow", "order", "agreement"}

var booleanLiterals = map[string]bool{
	"true": true, "false": true, "1": true, "0": true,
	"yes": true, "no": true, "t": true, "f": true,
}

// ProfileScore scores how well the column's observed values fit the canonical
// field's expected value shape. Evidence is additive per field family and the
// total is capped at 1.0. Fields with no pattern family score 0; for them the
// other sub-scores carry the decision.
func (s *Scorer) ProfileScore(profile models.ColumnProfile, canonicalField string) float64 {
	score := 0.0

	switch canonicalField {
	case models.FieldContractID:
		if profile.DistinctRatio > 0.9 {
			score += 0.5
		}
		for _, pattern := range idPatterns {
			if matchFraction(profile.SampleValues, pattern) > 0.7 {
				score += 0.3
				break
			}
		}

	case models.FieldEffectiveDate, models.FieldExpiryDate:
		if len(profile.DatePatterns) > 0 {
			score += 0.6
		}
		dateLike := 0
		for _, val := range profile.SampleValues {
			if isoDateValue.MatchString(val) || slashDateValue.MatchString(val) {
				dateLike++
			}
		}
		if len(profile.SampleValues) > 0 && float64(dateLike) > float64(len(profile.SampleValues))*0.5 {
			score += 0.4
		}

	case models.FieldContractValueLTV, models.FieldContractValueARR:
		if profile.InferredType == models.ColumnTypeDecimal || profile.InferredType == models.ColumnTypeInt {
			score += 0.4
		}
		if len(profile.CurrencySymbols) > 0 {
			score += 0.4
		}
		if matchFraction(profile.SampleValues, monetaryValue) > 0.7 {
			score += 0.2
		}

	case models.FieldStatus, models.FieldContractType:
		if profile.DistinctRatio > 0 && profile.DistinctRatio < 0.3 {
			score += 0.4
		}
		keywords := statusKeywords
		if canonicalField == models.FieldContractType {
			keywords = contractTypeKeywords
		}
		if anyValueContains(profile.SampleValues, keywords) {
			score += 0.3
		}

	case models.FieldAutoRenew:
		if profile.InferredType == models.ColumnTypeBool {
			score += 0.5
		}
		if len(profile.SampleValues) > 0 && allBooleanShaped(profile.SampleValues) {
			score += 0.4
		}

	case models.FieldRenewalTermMonths:
		if profile.InferredType == models.ColumnTypeInt {
			score += 0.4
		}
		if monthsInRange(profile.SampleValues) {
			score += 0.3
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func matchFraction(values []string, pattern *regexp.Regexp) float64 {
	if len(values) == 0 {
		return 0
	}
	matched := 0
	for _, v := range values {
		if pattern.MatchString(v) {
			matched++
		}
	}
	return float64(matched) / float64(len(values))
}

func anyValueContains(values, keywords []string) bool {
	for _, v := range values {
		lower := strings.ToLower(v)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

func allBooleanShaped(values []string) bool {
	for _, v := range values {
		if !booleanLiterals[strings.ToLower(strings.TrimSpace(v))] {
			return false
		}
	}
	return true
}

// monthsInRange reports whether all integer-shaped samples fall in 1..60,
// a plausible renewal term. At least one such sample must exist.
func monthsInRange(values []string) bool {
	found := false
	for _, v := range values {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		if n < 1 || n > 60 {
			return false
		}
		found = true
	}
	return found
}
