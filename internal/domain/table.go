package domain

// Record is one flat row. Values line up with the owning Table's Columns.
type Record []string

// Table is an ordered set of records sharing one header. It is what the
// normalizer produces, what the spreadsheet layer persists and what the
// metrics engine reads back.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

// NewTable returns an empty table with a copy of columns as header.
func NewTable(name string, columns []string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Name: name, Columns: cols}
}

// Index returns the position of column using tolerant name matching, or -1.
func (t *Table) Index(column string) int {
	return MatchName(t.Columns, column)
}

// Value returns the cell of row for column, or "" when the column is unknown
// or the row is short.
func (t *Table) Value(row Record, column string) string {
	idx := t.Index(column)
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// Append adds a row, padding or trimming it to the header width.
func (t *Table) Append(values ...string) {
	rec := make(Record, len(t.Columns))
	copy(rec, values)
	t.Rows = append(t.Rows, rec)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Map returns row as a column→value map, convenient for templates.
func (t *Table) Map(row Record) map[string]string {
	m := make(map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		if i < len(row) {
			m[c] = row[i]
		} else {
			m[c] = ""
		}
	}
	return m
}
