// Package transform executes deterministic value transformations for
// approved mapping plans. Every per-value failure degrades to null and is
// recorded; a bad value never aborts a run.
package transform

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/canonform-inc/canonform-engine/pkg/models"
	"github.com/canonform-inc/canonform-engine/pkg/profiler"
)

// promptVersion is recorded in lineage for traceability of proposal prompts.
const promptVersion = "v1"

// Output holds transformed rows in canonical form. Values are typed:
// string, int64, bool, decimal.Decimal, or time.Time. Nil means null.
type Output struct {
	Columns []string
	Rows    []map[string]any
}

// Transformer applies approved mapping plans to source data.
type Transformer struct {
	logger *zap.Logger
}

// NewTransformer creates a transformer.
func NewTransformer(logger *zap.Logger) *Transformer {
	return &Transformer{logger: logger.Named("transformer")}
}

// ApplyPlan transforms all source tables covered by the plan's accepted
// mappings. Tables missing from sourceData are skipped with an error entry.
func (t *Transformer) ApplyPlan(plan models.MappingPlan, sourceData map[string]*profiler.TableData) (*Output, *models.TransformResult, error) {
	t.logger.Info("applying mapping plan",
		zap.String("tenant", plan.Tenant),
		zap.String("version", plan.Version),
		zap.Int("mappings", len(plan.Mappings)))

	result := &models.TransformResult{
		ID:             uuid.New(),
		Tenant:         plan.Tenant,
		SourceTable:    "multiple",
		MappingVersion: plan.Version,
		CreatedAt:      time.Now().UTC(),
	}

	output := &Output{}
	byTable := acceptedByTable(plan.Mappings)

	for _, table := range sortedKeys(byTable) {
		data, ok := sourceData[table]
		if !ok || data == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("source table %s not found in data", table))
			t.logger.Warn("source table missing", zap.String("table", table))
			continue
		}

		result.RowsProcessed += data.RowCount()

		rows, lineage, errs := t.transformTable(data, byTable[table], plan.Version)
		output.Rows = append(output.Rows, rows...)
		result.RowsSuccessful += len(rows)
		result.Lineage = append(result.Lineage, lineage...)
		result.Errors = append(result.Errors, errs...)
	}

	derivedLineage := t.applyDerivedFields(output, plan.Version)
	result.Lineage = append(result.Lineage, derivedLineage...)

	output.Columns = collectColumns(output.Rows)
	return output, result, nil
}

// acceptedByTable groups accepted mappings by their source table.
func acceptedByTable(mappings []models.ColumnMapping) map[string][]models.ColumnMapping {
	byTable := make(map[string][]models.ColumnMapping)
	for _, m := range mappings {
		if m.Status != models.MappingStatusAccepted || m.CanonicalField == "" {
			continue
		}
		byTable[m.SourceColumn.Table] = append(byTable[m.SourceColumn.Table], m)
	}
	return byTable
}

// transformTable produces one canonical row per source row.
func (t *Transformer) transformTable(data *profiler.TableData, mappings []models.ColumnMapping, version string) ([]map[string]any, []models.LineageRecord, []string) {
	rows := make([]map[string]any, data.RowCount())
	for i := range rows {
		rows[i] = make(map[string]any, len(mappings))
	}

	var lineage []models.LineageRecord
	var errs []string

	for _, mapping := range mappings {
		values, ok := data.ColumnValues(mapping.SourceColumn.Column)
		if !ok {
			errs = append(errs, fmt.Sprintf("source column %s not found in data", mapping.SourceColumn.Column))
			continue
		}

		transformed, applied := t.transformColumn(values, mapping.CanonicalField, mapping.TransformRule, data)

		for i := range rows {
			rows[i][mapping.CanonicalField] = transformed[i]
		}

		lineage = append(lineage, models.LineageRecord{
			ID:               uuid.New(),
			OutputField:      mapping.CanonicalField,
			SourceColumns:    []models.SourceColumn{mapping.SourceColumn},
			TransformApplied: applied,
			MappingVersion:   version,
			PromptVersion:    promptVersion,
			ConfidenceScore:  confidence(mapping),
			CreatedAt:        time.Now().UTC(),
		})
	}

	return rows, lineage, errs
}

func confidence(m models.ColumnMapping) float64 {
	if m.MappingScore == nil {
		return 0.0
	}
	return m.MappingScore.FinalScore
}

// transformColumn applies either the mapping's custom rule or the default
// transform family for the canonical field. Returns the transformed values
// and the transform name recorded in lineage.
func (t *Transformer) transformColumn(values []string, canonicalField, rule string, data *profiler.TableData) ([]any, string) {
	if rule != "" {
		return t.applyTransformRule(values, rule, data)
	}

	switch canonicalField {
	case models.FieldContractID, models.FieldPartyBuyer, models.FieldPartySeller,
		models.FieldGoverningLaw, models.FieldJurisdiction:
		return applyEach(values, parseString), models.TransformStringNormalization

	case models.FieldEffectiveDate, models.FieldExpiryDate:
		return applyEach(values, func(v string) any { return parseDate(v, "") }), models.TransformDateParsing

	case models.FieldContractValueLTV, models.FieldContractValueARR:
		return applyEach(values, parseCurrency), models.TransformCurrency

	case models.FieldAutoRenew:
		return applyEach(values, parseBoolean), models.TransformBoolean

	case models.FieldRenewalTermMonths:
		return applyEach(values, parseInteger), models.TransformInteger

	case models.FieldStatus, models.FieldContractType:
		return applyEach(values, func(v string) any { return mapEnum(v, canonicalField) }), models.TransformEnum

	default:
		return applyEach(values, parseString), models.TransformDefaultString
	}
}

var (
	dateFormatRule = regexp.MustCompile(`format='([^']+)'`)
	currencyRule   = regexp.MustCompile(`default_currency='([^']+)'`)
)

// applyTransformRule interprets a proposal's transform hint. Unknown rules
// fall back to string normalization.
func (t *Transformer) applyTransformRule(values []string, rule string, data *profiler.TableData) ([]any, string) {
	switch {
	case strings.Contains(rule, "parse_date"):
		layout := ""
		if m := dateFormatRule.FindStringSubmatch(rule); m != nil {
			layout = strptimeToLayout(m[1])
		}
		return applyEach(values, func(v string) any { return parseDate(v, layout) }),
			"custom_date_parse: " + rule

	case strings.Contains(rule, "parse_currency"):
		// The default currency only labels the output; parsing is identical.
		_ = currencyRule.FindStringSubmatch(rule)
		return applyEach(values, parseCurrency), "custom_currency_parse: " + rule

	case strings.Contains(rule, "+") && strings.Contains(rule, "days"):
		return t.applyDateArithmetic(rule, data), "date_arithmetic: " + rule

	default:
		t.logger.Warn("unknown transform rule", zap.String("rule", rule))
		return applyEach(values, parseString), "unknown_rule: " + rule
	}
}

// applyDateArithmetic evaluates the two supported derivation rules against
// the source table. Rows missing either operand yield null.
func (t *Transformer) applyDateArithmetic(rule string, data *profiler.TableData) []any {
	switch {
	case strings.Contains(rule, "effective_date") && strings.Contains(rule, "renewal_term_months"):
		return t.deriveDateColumn(rule, data, "effective_date", "renewal_term_months", 30)

	case strings.Contains(rule, "status_date") && strings.Contains(rule, "days_remaining"):
		return t.deriveDateColumn(rule, data, "status_date", "days_remaining", 1)

	default:
		t.logger.Warn("could not apply date arithmetic rule", zap.String("rule", rule))
		return make([]any, data.RowCount())
	}
}

// deriveDateColumn computes date + count*multiplier days per row. A missing
// operand column yields an all-null column.
func (t *Transformer) deriveDateColumn(rule string, data *profiler.TableData, dateCol, countCol string, multiplier int) []any {
	out := make([]any, data.RowCount())

	dates, okDates := data.ColumnValues(dateCol)
	counts, okCounts := data.ColumnValues(countCol)
	if !okDates || !okCounts {
		t.logger.Warn("date arithmetic operand column missing",
			zap.String("rule", rule),
			zap.String("date_column", dateCol),
			zap.String("count_column", countCol))
		return out
	}

	for i := range out {
		out[i] = addDays(dates[i], counts[i], multiplier)
	}
	return out
}

// addDays parses a date and a count, returning date + count*multiplier days.
func addDays(dateValue, countValue string, multiplier int) any {
	parsed := parseDate(dateValue, "")
	date, ok := parsed.(time.Time)
	if !ok {
		return nil
	}
	count := parseInteger(countValue)
	n, ok := count.(int64)
	if !ok {
		return nil
	}
	return date.AddDate(0, 0, int(n)*multiplier)
}

// applyDerivedFields computes contract_value_arr from contract_value_ltv and
// renewal_term_months when the plan produced no direct ARR mapping. Null
// operands and zero terms propagate to null.
func (t *Transformer) applyDerivedFields(output *Output, version string) []models.LineageRecord {
	if len(output.Rows) == 0 {
		return nil
	}

	hasLTV, hasTerm, hasARR := false, false, false
	for _, row := range output.Rows {
		if _, ok := row[models.FieldContractValueLTV]; ok {
			hasLTV = true
		}
		if _, ok := row[models.FieldRenewalTermMonths]; ok {
			hasTerm = true
		}
		if v, ok := row[models.FieldContractValueARR]; ok && v != nil {
			hasARR = true
		}
	}
	if !hasLTV || !hasTerm || hasARR {
		return nil
	}

	twelve := decimal.NewFromInt(12)
	for _, row := range output.Rows {
		row[models.FieldContractValueARR] = nil

		ltv, ok := row[models.FieldContractValueLTV].(decimal.Decimal)
		if !ok {
			continue
		}
		term, ok := row[models.FieldRenewalTermMonths].(int64)
		if !ok || term == 0 {
			continue
		}
		years := decimal.NewFromInt(term).Div(twelve)
		row[models.FieldContractValueARR] = ltv.Div(years)
	}

	return []models.LineageRecord{{
		ID:               uuid.New(),
		OutputField:      models.FieldContractValueARR,
		SourceColumns:    []models.SourceColumn{},
		TransformApplied: "derived: contract_value_ltv / (renewal_term_months / 12)",
		MappingVersion:   version,
		PromptVersion:    promptVersion,
		ConfidenceScore:  1.0,
		CreatedAt:        time.Now().UTC(),
	}}
}

// ============================================================================
// Value parsers
// ============================================================================

func applyEach(values []string, fn func(string) any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = fn(v)
	}
	return out
}

func isNull(v string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || strings.EqualFold(trimmed, "null") || strings.EqualFold(trimmed, "nan")
}

func parseString(v string) any {
	if isNull(v) {
		return nil
	}
	return strings.TrimSpace(v)
}

// strptimeReplacer converts the strptime-style directives that appear in
// transform hints to Go reference-time layouts.
var strptimeReplacer = strings.NewReplacer(
	"%Y", "2006",
	"%y", "06",
	"%m", "01",
	"%d", "02",
	"%H", "15",
	"%M", "04",
	"%S", "05",
	"%b", "Jan",
	"%B", "January",
)

func strptimeToLayout(format string) string {
	return strptimeReplacer.Replace(format)
}

// dateLayouts are tried in order when no explicit format is given.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02-01-2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006",
}

func parseDate(v, layout string) any {
	if isNull(v) {
		return nil
	}
	trimmed := strings.TrimSpace(v)

	if layout != "" {
		if d, err := time.Parse(layout, trimmed); err == nil {
			return d
		}
		return nil
	}

	for _, l := range dateLayouts {
		if d, err := time.Parse(l, trimmed); err == nil {
			return d
		}
	}
	return nil
}

var nonNumeric = regexp.MustCompile(`[^\d.-]`)

func parseCurrency(v string) any {
	if isNull(v) {
		return nil
	}
	clean := nonNumeric.ReplaceAllString(v, "")
	if clean == "" {
		return nil
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return nil
	}
	return d
}

func parseBoolean(v string) any {
	if isNull(v) {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "t", "y":
		return true
	case "false", "0", "no", "f", "n":
		return false
	}
	return nil
}

func parseInteger(v string) any {
	if isNull(v) {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil
	}
	return int64(f)
}

var statusSynonyms = map[string]string{
	"draft":      models.StatusDraft,
	"active":     models.StatusActive,
	"live":       models.StatusActive,
	"suspended":  models.StatusSuspended,
	"paused":     models.StatusSuspended,
	"terminated": models.StatusTerminated,
	"cancelled":  models.StatusTerminated,
	"expired":    models.StatusExpired,
	"ended":      models.StatusExpired,
}

var contractTypeSynonyms = map[string]string{
	"msa":                      models.ContractTypeMSA,
	"master service agreement": models.ContractTypeMSA,
	"nda":                      models.ContractTypeNDA,
	"non disclosure agreement": models.ContractTypeNDA,
	"sow":                      models.ContractTypeSOW,
	"statement of work":        models.ContractTypeSOW,
	"order form":               models.ContractTypeOrderForm,
	"purchase order":           models.ContractTypeOrderForm,
	"other":                    models.ContractTypeOther,
}

// mapEnum normalizes a raw value onto the field's enum vocabulary. Direct
// lookup first, then substring match either way. Unrecognized contract types
// become OTHER; unrecognized statuses become null.
func mapEnum(v, canonicalField string) any {
	if isNull(v) {
		return nil
	}

	synonyms := statusSynonyms
	if canonicalField == models.FieldContractType {
		synonyms = contractTypeSynonyms
	}

	key := strings.ToLower(strings.TrimSpace(v))
	if mapped, ok := synonyms[key]; ok {
		return mapped
	}

	for _, syn := range sortedKeys(synonyms) {
		if strings.Contains(key, syn) || strings.Contains(syn, key) {
			return synonyms[syn]
		}
	}

	if canonicalField == models.FieldContractType {
		return models.ContractTypeOther
	}
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func collectColumns(rows []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for col := range row {
			seen[col] = struct{}{}
		}
	}
	return sortedKeys(seen)
}
