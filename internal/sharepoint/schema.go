package sharepoint

import (
	"context"

	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
)

// Resolve fetches the field metadata of list and builds its schema. Any
// failure is reported as a schema_unavailable *Failure so the caller can skip
// the list for this cycle.
func Resolve(ctx context.Context, api API, list string) (*FieldSchema, error) {
	fields, err := api.Fields(ctx, list)
	if err != nil {
		return nil, newFailure(list, ReasonSchemaUnavailable, err)
	}
	logger.Debug("sharepoint: schema resolved", "list", list, "fields", len(fields))
	return NewFieldSchema(list, fields), nil
}
