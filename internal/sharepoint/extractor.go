package sharepoint

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
)

// DefaultBatchSize is the number of identifiers per directory request.
const DefaultBatchSize = 100

// Extractor pulls list items with an optimistic expanded query and degrades
// to directory resolution when the service rejects it.
type Extractor struct {
	api       API
	batchSize int
}

// NewExtractor creates an extractor. batchSize <= 0 uses DefaultBatchSize.
func NewExtractor(api API, batchSize int) *Extractor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Extractor{api: api, batchSize: batchSize}
}

// plan is the query shape derived from the schema for one list.
type plan struct {
	scalars    []string
	relational []Field
	missing    []string
}

func buildPlan(schema *FieldSchema, desired []string) plan {
	var p plan
	seen := make(map[string]bool)
	for _, name := range desired {
		f, ok := schema.Lookup(name)
		if !ok {
			p.missing = append(p.missing, name)
			continue
		}
		if seen[f.InternalName] {
			continue
		}
		seen[f.InternalName] = true
		if f.Kind.Relational() {
			p.relational = append(p.relational, f)
		} else {
			p.scalars = append(p.scalars, f.InternalName)
		}
	}
	return p
}

func (p plan) bulkQuery() (selectFields, expand []string) {
	selectFields = append([]string{"Id"}, p.scalars...)
	for _, f := range p.relational {
		selectFields = append(selectFields, f.InternalName+"/Title", f.InternalName+"Id")
		expand = append(expand, f.InternalName)
	}
	return selectFields, expand
}

func (p plan) baseQuery() []string {
	selectFields := append([]string{"Id"}, p.scalars...)
	for _, f := range p.relational {
		selectFields = append(selectFields, f.InternalName+"Id")
	}
	return selectFields
}

// Extract resolves the schema of list and returns its rows. Failures are
// *Failure values scoped to this list.
func (e *Extractor) Extract(ctx context.Context, list string, desired []string) (*Extraction, error) {
	schema, err := Resolve(ctx, e.api, list)
	if err != nil {
		return nil, err
	}

	p := buildPlan(schema, desired)
	if len(p.missing) > 0 {
		logger.Warn("sharepoint: columns not in schema", "list", list, "missing", p.missing)
	}

	out := &Extraction{List: list, Schema: schema, Missing: p.missing}

	selectFields, expand := p.bulkQuery()
	rows, err := e.api.Items(ctx, list, selectFields, expand)
	if err == nil {
		out.Rows = rows
		out.Mode = ModeBulk
		logger.Info("sharepoint: bulk query ok", "list", list, "rows", len(rows))
		return out, nil
	}
	if StatusOf(err) != http.StatusBadRequest {
		return nil, newFailure(list, ReasonBaseQueryFailed, err)
	}

	logger.Warn("sharepoint: bulk query rejected, falling back", "list", list, "relational", len(p.relational))

	rows, err = e.api.Items(ctx, list, p.baseQuery(), nil)
	if err != nil {
		return nil, newFailure(list, ReasonBaseQueryFailed, err)
	}

	people := directoryFields(p.relational)
	ids := collectIDs(rows, people)
	names := e.resolveDirectory(ctx, ids)
	splice(rows, people, names)

	out.Rows = rows
	out.Mode = ModeFallback
	out.Requested = len(ids)
	out.Resolved = len(names)
	logger.Info("sharepoint: fallback query ok", "list", list, "rows", len(rows),
		"resolved", out.Resolved, "requested", out.Requested)
	return out, nil
}

// resolveDirectory resolves ids in batches. A failing batch is logged and its
// ids stay unresolved.
func (e *Extractor) resolveDirectory(ctx context.Context, ids []int) map[int]string {
	names := make(map[int]string, len(ids))
	for start := 0; start < len(ids); start += e.batchSize {
		end := start + e.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		got, err := e.api.SiteUsers(ctx, batch)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return names
			}
			logger.Warn("sharepoint: directory batch failed", "size", len(batch), "error", err)
			continue
		}
		for _, id := range batch {
			if name, ok := got[id]; ok && name != "" {
				names[id] = name
			}
		}
	}
	return names
}

// directoryFields keeps the person fields. Lookup ids point at items of
// another list, not at site users, so they stay unresolved.
func directoryFields(fields []Field) []Field {
	var out []Field
	for _, f := range fields {
		if f.Kind == KindUser || f.Kind == KindUserMulti {
			out = append(out, f)
		}
	}
	return out
}

// collectIDs gathers every identifier referenced by the relational fields of
// rows, deduplicated and sorted.
func collectIDs(rows []RawRow, fields []Field) []int {
	set := make(map[int]struct{})
	for _, row := range rows {
		for _, f := range fields {
			for _, id := range IDs(row[f.InternalName+"Id"]) {
				set[id] = struct{}{}
			}
		}
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// splice writes resolved names back into each row's relational field in the
// shape an expanded query would have produced. Fields with no resolved
// identifier are left alone so the ids remain visible downstream.
func splice(rows []RawRow, fields []Field, names map[int]string) {
	for _, row := range rows {
		for _, f := range fields {
			raw, present := row[f.InternalName+"Id"]
			if !present {
				continue
			}
			ids := IDs(raw)
			if len(ids) == 0 {
				continue
			}
			resolved := false
			entries := make([]any, 0, len(ids))
			for _, id := range ids {
				if name, ok := names[id]; ok {
					resolved = true
					entries = append(entries, map[string]any{"Title": name})
				} else {
					entries = append(entries, map[string]any{"Id": float64(id)})
				}
			}
			if !resolved {
				continue
			}
			if isMultiShape(raw) {
				row[f.InternalName] = map[string]any{"results": entries}
			} else {
				row[f.InternalName] = entries[0]
			}
		}
	}
}

func isMultiShape(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		_, ok := t["results"]
		return ok
	case []any:
		return true
	}
	return false
}

// IDs extracts identifiers from a <field>Id value: a number, a numeric string
// or a {results: [...]} collection. Anything else yields nothing.
func IDs(v any) []int {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return IDs(t["results"])
	case []any:
		var out []int
		for _, item := range t {
			out = append(out, IDs(item)...)
		}
		return out
	default:
		if id, ok := toID(t); ok {
			return []int{id}
		}
	}
	return nil
}

func toID(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t > 0 && t == float64(int(t)) {
			return int(t), true
		}
	case int:
		if t > 0 {
			return t, true
		}
	case json.Number:
		if n, err := t.Int64(); err == nil && n > 0 {
			return int(n), true
		}
	case string:
		if n, err := strconv.Atoi(t); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}
