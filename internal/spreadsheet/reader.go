package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ignite/punchlist-monitor/internal/domain"
)

// ReadFile loads the first sheet of the workbook at path.
func ReadFile(name, path string) (*domain.Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer fh.Close()
	return Read(name, fh)
}

// ReadBytes loads the first sheet of an in-memory workbook.
func ReadBytes(name string, data []byte) (*domain.Table, error) {
	return Read(name, bytes.NewReader(data))
}

// Read loads the first sheet of a workbook. The first row is the header;
// header cells are trimmed and short rows are padded.
func Read(name string, r io.Reader) (*domain.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return domain.NewTable(name, nil), nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	table := domain.NewTable(name, header)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		table.Append(row...)
	}
	return table, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteFile writes table to path directly, used for report attachments that
// live in a scratch directory.
func WriteFile(table *domain.Table, path string) error {
	data, err := Render(table)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
