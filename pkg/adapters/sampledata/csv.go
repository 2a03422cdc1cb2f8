// Package sampledata loads tenant sample data snapshots for profiling.
// The samples directory holds one subdirectory per tenant containing CSV
// files named after their source tables.
package sampledata

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/canonform-inc/canonform-engine/pkg/apperrors"
	"github.com/canonform-inc/canonform-engine/pkg/profiler"
)

// Loader reads tenant table snapshots from a samples directory.
type Loader struct {
	dir    string
	logger *zap.Logger
}

// NewLoader creates a loader rooted at the given samples directory.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	return &Loader{
		dir:    dir,
		logger: logger.Named("sampledata"),
	}
}

// LoadTable reads the sample CSV for a tenant table. It tries the exact
// table name first, then common sample-file suffixes, then falls back to any
// CSV in the tenant directory. Returns apperrors.ErrNoSampleData when
// nothing usable exists; callers convert that to an empty profile.
func (l *Loader) LoadTable(tenant, table string) (*profiler.TableData, error) {
	tenantDir := filepath.Join(l.dir, tenant)
	if _, err := os.Stat(tenantDir); err != nil {
		return nil, fmt.Errorf("tenant %s: %w", tenant, apperrors.ErrNoSampleData)
	}

	candidates := []string{
		table + ".csv",
		table + "_sample.csv",
		table + "_data.csv",
	}
	for _, name := range candidates {
		path := filepath.Join(tenantDir, name)
		if _, err := os.Stat(path); err == nil {
			return l.readCSV(path)
		}
	}

	// No exact match: fall back to any CSV in the tenant directory.
	matches, err := filepath.Glob(filepath.Join(tenantDir, "*.csv"))
	if err == nil && len(matches) > 0 {
		sort.Strings(matches)
		l.logger.Warn("no exact sample file for table, using fallback",
			zap.String("tenant", tenant),
			zap.String("table", table),
			zap.String("fallback", filepath.Base(matches[0])))
		return l.readCSV(matches[0])
	}

	return nil, fmt.Errorf("tenant %s table %s: %w", tenant, table, apperrors.ErrNoSampleData)
}

// ListTables returns the table names (CSV base names) available for a tenant.
func (l *Loader) ListTables(tenant string) ([]string, error) {
	tenantDir := filepath.Join(l.dir, tenant)
	entries, err := os.ReadDir(tenantDir)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", tenant, apperrors.ErrNoSampleData)
	}

	var tables []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".csv")
		name = strings.TrimSuffix(name, "_sample")
		name = strings.TrimSuffix(name, "_data")
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables, nil
}

// readCSV parses a CSV file into a TableData snapshot. The first record is
// the header. Ragged rows are tolerated; short rows profile as nulls.
func (l *Loader) readCSV(path string) (*profiler.TableData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse sample file %s: %w", path, err)
	}
	if len(records) == 0 {
		return &profiler.TableData{}, nil
	}

	data := &profiler.TableData{
		Columns: records[0],
		Rows:    records[1:],
	}

	l.logger.Debug("loaded sample data",
		zap.String("path", path),
		zap.Int("rows", data.RowCount()),
		zap.Int("columns", len(data.Columns)))

	return data, nil
}
