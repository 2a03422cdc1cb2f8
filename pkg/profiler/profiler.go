// Package profiler computes statistical and structural profiles of source
// columns. Profiling is a pure computation over a read-only data snapshot:
// no I/O, no randomness, no reliance on ambient time.
package profiler

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/canonform-inc/canonform-engine/pkg/models"
)

// datePatterns maps named date formats to their detection regexes.
// A pattern counts as detected when it matches more than half of the
// non-null values.
var datePatterns = []struct {
	Name  string
	Regex *regexp.Regexp
}{
	{models.DatePatternISO, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)},
	{models.DatePatternUS, regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)},
	{models.DatePatternEU, regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)},
	{models.DatePatternSlashISO, regexp.MustCompile(`^\d{4}/\d{1,2}/\d{1,2}$`)},
	{models.DatePatternISODatetime, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)},
}

// currencyGlyphs is the fixed set of currency symbols the profiler scans for.
var currencyGlyphs = regexp.MustCompile(`[\$£€¥₹₽₩]`)

// dateLayouts are tried in order when checking whether a value parses as a date.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// booleanLiterals are the values accepted for boolean type inference,
// compared case-insensitively.
var booleanLiterals = map[string]bool{
	"true": true, "false": true,
	"1": true, "0": true,
	"yes": true, "no": true,
	"t": true, "f": true,
}

// Limits bounds what the profiler collects per column.
type Limits struct {
	MaxSampleValues       int
	MaxCooccurringColumns int
}

// DefaultLimits returns the standard profiling bounds.
func DefaultLimits() Limits {
	return Limits{MaxSampleValues: 10, MaxCooccurringColumns: 5}
}

// Profiler computes ColumnProfiles from table snapshots.
type Profiler struct {
	limits Limits
	logger *zap.Logger
}

// New creates a profiler with the given bounds.
func New(limits Limits, logger *zap.Logger) *Profiler {
	if limits.MaxSampleValues < 1 {
		limits.MaxSampleValues = 10
	}
	if limits.MaxCooccurringColumns < 1 {
		limits.MaxCooccurringColumns = 5
	}
	return &Profiler{
		limits: limits,
		logger: logger.Named("profiler"),
	}
}

// Profile computes the statistical profile of one column within a table
// snapshot. A missing column or any per-column failure yields the empty
// profile; absence of sample data must never halt downstream resolution.
func (p *Profiler) Profile(col models.SourceColumn, data *TableData) (profile models.ColumnProfile) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("column profiling panicked, using empty profile",
				zap.String("column", col.QualifiedName()),
				zap.Any("panic", r))
			profile = models.EmptyProfile(col)
		}
	}()

	if data == nil {
		return models.EmptyProfile(col)
	}

	values, ok := data.ColumnValues(col.Column)
	if !ok {
		p.logger.Warn("column not found in sample data",
			zap.String("column", col.QualifiedName()))
		return models.EmptyProfile(col)
	}

	totalRows := int64(len(values))
	nonNull := make([]string, 0, len(values))
	distinct := make(map[string]struct{}, len(values))
	samples := make([]string, 0, p.limits.MaxSampleValues)

	for _, v := range values {
		if v == "" {
			continue
		}
		nonNull = append(nonNull, v)
		if _, seen := distinct[v]; !seen {
			distinct[v] = struct{}{}
			if len(samples) < p.limits.MaxSampleValues {
				samples = append(samples, v)
			}
		}
	}

	profile = models.ColumnProfile{
		SourceColumn:       col,
		TotalRows:          totalRows,
		NonNullCount:       int64(len(nonNull)),
		DistinctCount:      int64(len(distinct)),
		SampleValues:       samples,
		InferredType:       inferColumnType(nonNull),
		DatePatterns:       detectDatePatterns(nonNull),
		CurrencySymbols:    detectCurrencySymbols(nonNull),
		CooccurringColumns: p.cooccurringColumns(col.Column, data),
	}

	if totalRows > 0 {
		profile.DistinctRatio = float64(len(distinct)) / float64(totalRows)
	}
	profile.ClampDistinctRatio()

	return profile
}

// ProfileTable profiles every listed column against the same snapshot.
// Per-column failures degrade to empty profiles; the rest of the table is
// still profiled.
func (p *Profiler) ProfileTable(columns []models.SourceColumn, data *TableData) []models.ColumnProfile {
	profiles := make([]models.ColumnProfile, 0, len(columns))
	for _, col := range columns {
		profiles = append(profiles, p.Profile(col, data))
	}
	return profiles
}

// cooccurringColumns returns up to the configured number of other column
// names from the same table.
func (p *Profiler) cooccurringColumns(self string, data *TableData) []string {
	var cols []string
	for _, c := range data.Columns {
		if c == self {
			continue
		}
		cols = append(cols, c)
		if len(cols) == p.limits.MaxCooccurringColumns {
			break
		}
	}
	return cols
}

// inferColumnType infers the semantic type of a column from its non-null
// values. Order matters; the first matching type wins:
// boolean -> int -> decimal -> date -> enum -> string.
func inferColumnType(nonNull []string) models.ColumnType {
	if len(nonNull) == 0 {
		return models.ColumnTypeString
	}

	if allBoolean(nonNull) {
		return models.ColumnTypeBool
	}
	if allInteger(nonNull) {
		return models.ColumnTypeInt
	}
	if allDecimal(nonNull) {
		return models.ColumnTypeDecimal
	}
	if looksLikeDates(nonNull) {
		return models.ColumnTypeDate
	}

	distinct := make(map[string]struct{}, len(nonNull))
	for _, v := range nonNull {
		distinct[v] = struct{}{}
	}
	if len(distinct) <= 10 && float64(len(distinct))/float64(len(nonNull)) < 0.5 {
		return models.ColumnTypeEnum
	}

	return models.ColumnTypeString
}

func allBoolean(values []string) bool {
	for _, v := range values {
		if !booleanLiterals[strings.ToLower(strings.TrimSpace(v))] {
			return false
		}
	}
	return true
}

func allInteger(values []string) bool {
	for _, v := range values {
		if _, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil {
			return false
		}
	}
	return true
}

func allDecimal(values []string) bool {
	for _, v := range values {
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return false
		}
	}
	return true
}

// looksLikeDates samples up to 10 values and reports true when more than 70%
// parse as a date in one of the known layouts.
func looksLikeDates(values []string) bool {
	sampleSize := min(10, len(values))
	parsed := 0
	for _, v := range values[:sampleSize] {
		if parsesAsDate(strings.TrimSpace(v)) {
			parsed++
		}
	}
	return float64(parsed)/float64(sampleSize) > 0.7
}

func parsesAsDate(v string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// detectDatePatterns returns the named patterns matching more than 50% of
// the non-null values.
func detectDatePatterns(nonNull []string) []string {
	if len(nonNull) == 0 {
		return nil
	}

	var detected []string
	for _, dp := range datePatterns {
		matches := 0
		for _, v := range nonNull {
			if dp.Regex.MatchString(v) {
				matches++
			}
		}
		if float64(matches)/float64(len(nonNull)) > 0.5 {
			detected = append(detected, dp.Name)
		}
	}
	return detected
}

// detectCurrencySymbols scans a bounded prefix of values for currency glyphs.
// No frequency threshold applies; any occurrence is reported.
func detectCurrencySymbols(nonNull []string) []string {
	const scanLimit = 20

	seen := make(map[string]struct{})
	var symbols []string

	limit := min(scanLimit, len(nonNull))
	for _, v := range nonNull[:limit] {
		for _, sym := range currencyGlyphs.FindAllString(v, -1) {
			if _, dup := seen[sym]; !dup {
				seen[sym] = struct{}{}
				symbols = append(symbols, sym)
			}
		}
	}
	return symbols
}
