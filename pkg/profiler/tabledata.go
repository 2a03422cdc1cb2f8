package profiler

import "slices"

// TableData is an in-memory, read-only snapshot of one source table.
// Cells are raw strings; the empty string is treated as null. How the
// snapshot was obtained (CSV sample, query result) is the import layer's
// concern, not the profiler's.
type TableData struct {
	Columns []string
	Rows    [][]string
}

// HasColumn reports whether the named column exists in the snapshot.
func (d *TableData) HasColumn(name string) bool {
	return slices.Contains(d.Columns, name)
}

// ColumnValues returns all cell values for the named column, preserving row
// order. Returns false if the column is absent. Rows shorter than the header
// contribute a null for the missing cell.
func (d *TableData) ColumnValues(name string) ([]string, bool) {
	idx := slices.Index(d.Columns, name)
	if idx < 0 {
		return nil, false
	}

	values := make([]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		if idx < len(row) {
			values = append(values, row[idx])
		} else {
			values = append(values, "")
		}
	}
	return values, true
}

// RowCount returns the number of rows in the snapshot.
func (d *TableData) RowCount() int {
	return len(d.Rows)
}
