package models

import "slices"

// ============================================================================
// Column Types
// ============================================================================

// ColumnType is the inferred semantic type of a source column.
type ColumnType string

const (
	ColumnTypeString   ColumnType = "string"
	ColumnTypeInt      ColumnType = "int"
	ColumnTypeDecimal  ColumnType = "decimal"
	ColumnTypeBool     ColumnType = "bool"
	ColumnTypeDate     ColumnType = "date"
	ColumnTypeDatetime ColumnType = "datetime"
	ColumnTypeEnum     ColumnType = "enum"
)

// ValidColumnTypes contains all valid column type values.
var ValidColumnTypes = []ColumnType{
	ColumnTypeString,
	ColumnTypeInt,
	ColumnTypeDecimal,
	ColumnTypeBool,
	ColumnTypeDate,
	ColumnTypeDatetime,
	ColumnTypeEnum,
}

// IsValidColumnType checks if the given type is valid.
func IsValidColumnType(t ColumnType) bool {
	return slices.Contains(ValidColumnTypes, t)
}

// ============================================================================
// Source Column
// ============================================================================

// SourceColumn identifies one column in a tenant's source schema.
// It is the immutable identity key for all downstream records.
type SourceColumn struct {
	Tenant       string `json:"tenant"`
	Table        string `json:"table"`
	Column       string `json:"column"`
	DeclaredType string `json:"declared_type,omitempty"`
	Description  string `json:"description,omitempty"`
	Nullable     bool   `json:"nullable"`
}

// QualifiedName returns the fully qualified tenant.table.column name.
func (c SourceColumn) QualifiedName() string {
	return c.Tenant + "." + c.Table + "." + c.Column
}

// ============================================================================
// Column Profile
// ============================================================================

// Date pattern names detected by the profiler.
const (
	DatePatternISO         = "YYYY-MM-DD"
	DatePatternUS          = "MM/DD/YYYY"
	DatePatternEU          = "DD/MM/YYYY"
	DatePatternSlashISO    = "YYYY/MM/DD"
	DatePatternISODatetime = "ISO_DATETIME"
)

// ColumnProfile is a derived, read-only snapshot of one source column's data.
// Created once per column per discovery run; never mutated afterwards.
type ColumnProfile struct {
	SourceColumn SourceColumn `json:"source_column"`

	// Statistics
	TotalRows     int64   `json:"total_rows"`
	NonNullCount  int64   `json:"non_null_count"`
	DistinctCount int64   `json:"distinct_count"`
	DistinctRatio float64 `json:"distinct_ratio"` // distinct_count / total_rows, clamped to [0,1]

	// Sample values (deduplicated, stringified, bounded)
	SampleValues []string `json:"sample_values,omitempty"`

	InferredType ColumnType `json:"inferred_type"`

	// Pattern detection results
	DatePatterns    []string `json:"date_patterns,omitempty"`
	CurrencySymbols []string `json:"currency_symbols,omitempty"`

	// Other column names from the same table (bounded)
	CooccurringColumns []string `json:"cooccurring_columns,omitempty"`
}

// EmptyProfile returns the placeholder profile used when source data is
// unavailable. All counts are zero and the type defaults to string so that
// downstream resolution proceeds without a value-pattern signal.
func EmptyProfile(col SourceColumn) ColumnProfile {
	return ColumnProfile{
		SourceColumn: col,
		InferredType: ColumnTypeString,
	}
}

// IsEmpty reports whether the profile carries no sample data.
func (p *ColumnProfile) IsEmpty() bool {
	return p.NonNullCount == 0 && len(p.SampleValues) == 0
}

// ClampDistinctRatio forces DistinctRatio into [0,1].
func (p *ColumnProfile) ClampDistinctRatio() {
	if p.DistinctRatio < 0 {
		p.DistinctRatio = 0
	} else if p.DistinctRatio > 1 {
		p.DistinctRatio = 1
	}
}

// HasDatePattern reports whether the named pattern was detected.
func (p *ColumnProfile) HasDatePattern(name string) bool {
	return slices.Contains(p.DatePatterns, name)
}
