// Package domain defines the core value types shared by the punch-list
// extraction, metrics and reporting packages.
//
// Types in this package are pure value objects with no behavior, no network
// dependencies, and no file-system concerns. They are the shared language between
// the list client, the normalizer, the spreadsheet layer and the notifier.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *http.Client, no *sql.DB, no context.Context in struct fields
//   - JSON tags are allowed (they're metadata, not behavior)
//   - Pure helper methods are allowed (lookups, validation)
//   - Constants and enums belong here
package domain
