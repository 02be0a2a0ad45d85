package punch

import (
	"strconv"
	"strings"

	"github.com/ignite/punchlist-monitor/internal/sharepoint"
)

// RelationalValue is the closed set of shapes a person or lookup field can
// take once a row has been extracted.
type RelationalValue interface {
	// Display renders the value as it appears in the spreadsheet.
	Display() string
	relational()
}

// Empty is a relational field with no value.
type Empty struct{}

// Single is one resolved name.
type Single struct{ Name string }

// Many is a multi-valued field. Entries that did not resolve carry their
// "ID: <n>" marker.
type Many struct{ Names []string }

// UnresolvedID is a single identifier the directory could not name.
type UnresolvedID struct{ ID int }

// UnresolvedIDs is a multi-valued field none of whose identifiers resolved.
type UnresolvedIDs struct{ IDs []int }

func (Empty) relational()         {}
func (Single) relational()        {}
func (Many) relational()          {}
func (UnresolvedID) relational()  {}
func (UnresolvedIDs) relational() {}

func (Empty) Display() string          { return "" }
func (v Single) Display() string       { return v.Name }
func (v Many) Display() string         { return strings.Join(v.Names, multiSeparator) }
func (v UnresolvedID) Display() string { return idMarker(v.ID) }

func (v UnresolvedIDs) Display() string {
	parts := make([]string, len(v.IDs))
	for i, id := range v.IDs {
		parts[i] = idMarker(id)
	}
	return strings.Join(parts, multiSeparator)
}

const multiSeparator = "; "

func idMarker(id int) string { return "ID: " + strconv.Itoa(id) }

// Relational reads the relational field internal from row. The expanded
// object wins; the bare <internal>Id value is the fallback.
func Relational(row sharepoint.RawRow, internal string) RelationalValue {
	if v := fromExpanded(row[internal]); v != nil {
		return v
	}
	ids := sharepoint.IDs(row[internal+"Id"])
	switch {
	case len(ids) == 0:
		return Empty{}
	case isCollection(row[internal+"Id"]):
		return UnresolvedIDs{IDs: ids}
	default:
		return UnresolvedID{ID: ids[0]}
	}
}

func fromExpanded(v any) RelationalValue {
	switch t := v.(type) {
	case map[string]any:
		if results, ok := t["results"]; ok {
			items, _ := results.([]any)
			if len(items) == 0 {
				return nil
			}
			names := make([]string, 0, len(items))
			for _, item := range items {
				if name := entryName(item); name != "" {
					names = append(names, name)
				}
			}
			if len(names) == 0 {
				return nil
			}
			return Many{Names: names}
		}
		if name := entryName(t); name != "" {
			return Single{Name: name}
		}
	case string:
		if t != "" {
			return Single{Name: t}
		}
	}
	return nil
}

// entryName returns the title of an expanded entry, or the ID marker for an
// entry that only carries its identifier.
func entryName(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return scalarString(v)
	}
	if title, ok := m["Title"].(string); ok && title != "" {
		return title
	}
	if ids := sharepoint.IDs(m["Id"]); len(ids) == 1 {
		return idMarker(ids[0])
	}
	return ""
}

func isCollection(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		_, ok := t["results"]
		return ok
	case []any:
		return true
	}
	return false
}
