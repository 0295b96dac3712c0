package exporter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Format is an export file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts a format name case-insensitively. Empty means xlsx.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatXLSX, nil
	case FormatXLSX, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileName returns the default export file name for a batch.
func (f Format) FileName(batchID int64) string {
	return fmt.Sprintf("batch_%d_dq_issues.%s", batchID, f)
}

// formatFloat formats a nullable value without trailing zeros. Null is "".
func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// cellFloat returns a workbook cell value; nil leaves the cell empty.
func cellFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func formatRowNumber(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

// formatContext renders an issue context as compact JSON with sorted keys.
func formatContext(ctx map[string]interface{}) string {
	if len(ctx) == 0 {
		return ""
	}
	raw, err := json.Marshal(ctx)
	if err != nil {
		return fmt.Sprint(ctx)
	}
	return string(raw)
}
