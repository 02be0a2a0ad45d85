package sharepoint

import (
	"github.com/ignite/punchlist-monitor/internal/domain"
)

// FieldKind is the TypeAsString the list service reports for a field.
type FieldKind string

const (
	KindText        FieldKind = "Text"
	KindNote        FieldKind = "Note"
	KindNumber      FieldKind = "Number"
	KindBoolean     FieldKind = "Boolean"
	KindChoice      FieldKind = "Choice"
	KindMultiChoice FieldKind = "MultiChoice"
	KindDateTime    FieldKind = "DateTime"
	KindCalculated  FieldKind = "Calculated"
	KindUser        FieldKind = "User"
	KindUserMulti   FieldKind = "UserMulti"
	KindLookup      FieldKind = "Lookup"
	KindLookupMulti FieldKind = "LookupMulti"
)

// Relational reports whether the field points at another entity (a person or a
// lookup row) and therefore needs expansion or directory resolution.
func (k FieldKind) Relational() bool {
	switch k {
	case KindUser, KindUserMulti, KindLookup, KindLookupMulti:
		return true
	}
	return false
}

// Multi reports whether the field holds a collection.
func (k FieldKind) Multi() bool {
	return k == KindUserMulti || k == KindLookupMulti || k == KindMultiChoice
}

// Field is one entry of a list's field metadata.
type Field struct {
	InternalName string    `json:"InternalName"`
	Title        string    `json:"Title"`
	Kind         FieldKind `json:"TypeAsString"`
}

// FieldSchema maps display names to fields for one list. It is built once per
// list per cycle and never mutated afterwards.
type FieldSchema struct {
	list   string
	fields []Field
	titles []string
	names  []string
}

// NewFieldSchema builds a schema from fields in the order the service listed
// them. When two fields share a title the earlier one wins.
func NewFieldSchema(list string, fields []Field) *FieldSchema {
	s := &FieldSchema{list: list, fields: fields}
	s.titles = make([]string, len(fields))
	s.names = make([]string, len(fields))
	for i, f := range fields {
		s.titles[i] = f.Title
		s.names[i] = f.InternalName
	}
	return s
}

// List returns the list the schema was resolved for.
func (s *FieldSchema) List() string { return s.list }

// Len returns the number of fields.
func (s *FieldSchema) Len() int { return len(s.fields) }

// Lookup finds the field for a configured display name. Titles are tried
// first with exact, then case/whitespace-insensitive, then alphanumeric
// matching; internal names are the last resort.
func (s *FieldSchema) Lookup(name string) (Field, bool) {
	if i := domain.MatchName(s.titles, name); i >= 0 {
		return s.fields[i], true
	}
	if i := domain.MatchName(s.names, name); i >= 0 {
		return s.fields[i], true
	}
	return Field{}, false
}

// RawRow is one list item as decoded from the service. Keys are internal
// field names.
type RawRow map[string]any

// Mode records which query path produced an extraction.
type Mode string

const (
	ModeBulk     Mode = "bulk"
	ModeFallback Mode = "fallback"
)

// Extraction is the output of one list extraction.
type Extraction struct {
	List   string
	Rows   []RawRow
	Schema *FieldSchema
	Mode   Mode
	// Requested and Resolved count directory identifiers on the fallback path.
	Requested int
	Resolved  int
	// Missing holds configured columns the schema does not know.
	Missing []string
}

// Partial reports whether directory resolution left identifiers unresolved.
func (e *Extraction) Partial() bool {
	return e.Mode == ModeFallback && e.Resolved < e.Requested
}
