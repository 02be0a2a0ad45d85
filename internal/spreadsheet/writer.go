// Package spreadsheet persists normalized punch tables as xlsx workbooks and
// loads them back for the metrics engine.
package spreadsheet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
)

// SheetName is the worksheet every artifact is written to.
const SheetName = "Dados"

// ContentType is the MIME type of xlsx files.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	minColWidth = 8
	maxColWidth = 80
)

// ObjectStore uploads artifacts to remote destinations.
type ObjectStore interface {
	Put(ctx context.Context, dest, name, contentType string, data []byte) (string, error)
}

// Writer writes the same workbook to every destination independently.
type Writer struct {
	store  ObjectStore
	isS3   func(dest string) bool
	rename func(oldpath, newpath string) error
}

// Option tweaks a Writer.
type Option func(*Writer)

// WithObjectStore enables remote destinations recognized by isRemote.
func WithObjectStore(store ObjectStore, isRemote func(dest string) bool) Option {
	return func(w *Writer) {
		w.store = store
		w.isS3 = isRemote
	}
}

// NewWriter creates a writer for local folders and, optionally, an object store.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{
		isS3:   func(string) bool { return false },
		rename: os.Rename,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders table once and stores it as filename in each destination.
// Every destination gets its own outcome; a failure never stops the others.
func (w *Writer) Write(ctx context.Context, table *domain.Table, destinations []string, filename string) []domain.PathOutcome {
	data, err := Render(table)
	if err != nil {
		out := make([]domain.PathOutcome, len(destinations))
		for i, dest := range destinations {
			out[i] = domain.PathOutcome{Path: filepath.Join(dest, filename), Error: err.Error()}
		}
		return out
	}

	outcomes := make([]domain.PathOutcome, 0, len(destinations))
	for _, dest := range destinations {
		outcomes = append(outcomes, w.writeOne(ctx, dest, filename, data))
	}
	return outcomes
}

func (w *Writer) writeOne(ctx context.Context, dest, filename string, data []byte) domain.PathOutcome {
	if w.isS3(dest) {
		if w.store == nil {
			return domain.PathOutcome{Path: dest, Error: "no object store configured"}
		}
		uri, err := w.store.Put(ctx, dest, filename, ContentType, data)
		if err != nil {
			logger.Error("spreadsheet: upload failed", "dest", dest, "error", err)
			return domain.PathOutcome{Path: dest, Error: err.Error()}
		}
		return domain.PathOutcome{Path: uri, OK: true}
	}

	target := filepath.Join(dest, filename)
	if err := w.writeLocal(dest, target, data); err != nil {
		locked := isLockError(err)
		if locked {
			err = fmt.Errorf("%w: %s: %v", ErrFileLocked, target, err)
		}
		logger.Error("spreadsheet: write failed", "path", target, "locked", locked, "error", err)
		return domain.PathOutcome{Path: target, Locked: locked, Error: err.Error()}
	}
	return domain.PathOutcome{Path: target, OK: true}
}

// writeLocal writes to a temp file next to target and renames it over the
// target, so readers never see a half-written workbook.
func (w *Writer) writeLocal(dir, target string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".punch-*.xlsx")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := w.rename(tmpName, target); err != nil {
		return fmt.Errorf("replacing %s: %w", target, err)
	}
	return nil
}

var tableNameInvalid = regexp.MustCompile(`[^A-Za-z0-9_]`)

// TableName derives the workbook table name from a list name.
func TableName(list string) string {
	name := tableNameInvalid.ReplaceAllString(list, "_")
	if name == "" {
		name = "Punch"
	}
	return "Tabela_" + name
}

// Render builds the xlsx bytes for table: one sheet, a header row and, when
// rows exist, a named table over the whole range.
func Render(table *domain.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]interface{}, len(table.Columns))
	widths := make([]int, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c
		widths[i] = utf8.RuneCountInString(c)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	for r, rec := range table.Rows {
		row := make([]interface{}, len(table.Columns))
		for i := range table.Columns {
			if i < len(rec) {
				row[i] = rec[i]
				if n := utf8.RuneCountInString(rec[i]); n > widths[i] {
					widths[i] = n
				}
			} else {
				row[i] = ""
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", r+1, err)
		}
	}

	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetName, col, col, clampWidth(width+2)); err != nil {
			return nil, fmt.Errorf("sizing column %s: %w", col, err)
		}
	}

	if len(table.Rows) > 0 && len(table.Columns) > 0 {
		last, err := excelize.CoordinatesToCellName(len(table.Columns), len(table.Rows)+1)
		if err != nil {
			return nil, err
		}
		if err := f.AddTable(SheetName, &excelize.Table{
			Range:     "A1:" + last,
			Name:      TableName(table.Name),
			StyleName: "TableStyleMedium2",
		}); err != nil {
			return nil, fmt.Errorf("adding table: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serializing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func clampWidth(w int) float64 {
	switch {
	case w < minColWidth:
		return minColWidth
	case w > maxColWidth:
		return maxColWidth
	}
	return float64(w)
}
