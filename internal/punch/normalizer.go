// Package punch turns raw list rows into the flat records the spreadsheets
// and the metrics engine work with.
package punch

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/sharepoint"
)

// DateLayout is how dates are written to the spreadsheets.
const DateLayout = "02/01/2006"

var isoDateTime = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// dateColumn matches "Date" or "Target" as whole, capitalized words, so
// "Target Date" is a date column and "Last Update Comment" is not.
var dateColumn = regexp.MustCompile(`\b(Date|Target)\b`)

var dateInputLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	DateLayout,
}

// nullLiterals are renderings of missing values that must never reach a report.
var nullLiterals = map[string]bool{
	"nat":  true,
	"nan":  true,
	"none": true,
	"null": true,
}

// Normalize converts rows into a table with exactly columns as header. It is
// pure: the same input always yields the same table. Columns the schema does
// not know are kept (empty) and returned as missing.
func Normalize(name string, rows []sharepoint.RawRow, schema *sharepoint.FieldSchema, columns []string) (*domain.Table, []string) {
	table := domain.NewTable(name, columns)

	fields := make([]*sharepoint.Field, len(columns))
	var missing []string
	for i, col := range columns {
		if schema == nil {
			missing = append(missing, col)
			continue
		}
		if f, ok := schema.Lookup(col); ok {
			fields[i] = &f
		} else {
			missing = append(missing, col)
		}
	}

	for _, row := range rows {
		rec := make(domain.Record, len(columns))
		for i, col := range columns {
			if fields[i] == nil {
				continue
			}
			rec[i] = Value(row, *fields[i], col)
		}
		table.Rows = append(table.Rows, rec)
	}
	return table, missing
}

// Value renders one field of row as a display string.
func Value(row sharepoint.RawRow, f sharepoint.Field, column string) string {
	if f.Kind.Relational() {
		return Relational(row, f.InternalName).Display()
	}

	raw := row[f.InternalName]
	var s string
	if f.Kind == sharepoint.KindMultiChoice || isCollection(raw) {
		s = joinCollection(raw)
	} else {
		s = scalarString(raw)
	}

	if hasErrorMarker(s) {
		return ""
	}
	// Counters such as "Days Since Date Cleared" are numbers, not dates.
	if f.Kind == sharepoint.KindNumber || isNumber(raw) {
		return s
	}
	if isDateColumn(column) || f.Kind == sharepoint.KindDateTime || isoDateTime.MatchString(s) {
		return FormatDate(s)
	}
	return s
}

// FormatDate rewrites a date value as dd/mm/yyyy in UTC. Values that do not
// parse become empty.
func FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateInputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(DateLayout)
		}
	}
	return ""
}

func isDateColumn(column string) bool {
	return dateColumn.MatchString(column)
}

func hasErrorMarker(s string) bool {
	return strings.Contains(strings.ToLower(s), "error")
}

func joinCollection(v any) string {
	var items []any
	switch t := v.(type) {
	case map[string]any:
		items, _ = t["results"].([]any)
	case []any:
		items = t
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s := entryName(item); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, multiSeparator)
}

func scalarString(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case bool:
		if t {
			return "True"
		}
		return "False"
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		s = t.String()
	case map[string]any:
		// Deferred navigation properties and other objects carry no value.
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		s = string(b)
	}
	if nullLiterals[strings.ToLower(strings.TrimSpace(s))] {
		return ""
	}
	return s
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, int, int64, json.Number:
		return true
	}
	return false
}
