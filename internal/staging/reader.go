package staging

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is a header row plus the data rows below it.
type Table struct {
	Header []string
	Rows   [][]string
}

// NormalizeColumn turns a header cell into a payload key: trimmed,
// lower-cased, inner spaces replaced by underscores.
func NormalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// ReadFile reads the first sheet of an .xlsx file or a whole .csv file.
func ReadFile(path string) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open workbook: %w", err)
		}
		defer f.Close()
		return readWorkbook(f)
	default:
		return nil, fmt.Errorf("unsupported source file extension %q", ext)
	}
}

// ReadCSV reads a comma separated table. Records may have fewer or more
// fields than the header.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return newTable(rows), nil
}

func readWorkbook(f *excelize.File) (*Table, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return newTable(rows), nil
}

// newTable splits off the header and drops blank rows
func newTable(rows [][]string) *Table {
	t := &Table{}
	for _, row := range rows {
		if blank(row) {
			continue
		}
		if t.Header == nil {
			t.Header = make([]string, len(row))
			for i, cell := range row {
				t.Header[i] = NormalizeColumn(cell)
			}
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Records maps each data row onto the header. Empty cells and cells under an
// empty header are left out so the cleanser sees them as absent.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Header))
		for i, cell := range row {
			if i >= len(t.Header) || t.Header[i] == "" {
				continue
			}
			if cell = strings.TrimSpace(cell); cell != "" {
				rec[t.Header[i]] = cell
			}
		}
		out = append(out, rec)
	}
	return out
}
