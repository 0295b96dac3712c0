package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"kpiwarehouse/pkg/contracts/domain"
)

const (
	IssuesSheet     = "dq_issues"
	KPIResultsSheet = "kpi_results"
)

// KPIHeaders are the columns of the KPI results sheet.
var KPIHeaders = []string{"scope", "scope_id", "metric_code", "grain", "period_key", "value", "target", "weight"}

// WriteWorkbook writes a workbook with the DQ issue and KPI result sheets.
func WriteWorkbook(w io.Writer, issues []domain.DQIssue, results []domain.CalculatedKpiFact) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	issueRows := make([][]interface{}, len(issues))
	for i, issue := range issues {
		rec := issueRecord(issue)
		row := make([]interface{}, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		if issue.RowNumber != nil {
			row[0] = *issue.RowNumber
		}
		issueRows[i] = row
	}

	kpiRows := make([][]interface{}, len(results))
	for i, r := range results {
		kpiRows[i] = []interface{}{
			string(r.Scope), r.ScopeID, r.MetricCode, string(r.Grain), r.PeriodKey,
			cellFloat(r.Value), cellFloat(r.Target), cellFloat(r.Weight),
		}
	}

	if err := writeSheet(f, IssuesSheet, IssueHeaders, issueRows, headerStyle, []float64{12, 16, 48, 60, 22}); err != nil {
		return err
	}
	if err := writeSheet(f, KPIResultsSheet, KPIHeaders, kpiRows, headerStyle, []float64{10, 10, 24, 10, 12, 14, 14, 10}); err != nil {
		return err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("remove default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(IssuesSheet); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}, headerStyle int, widths []float64) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open sheet %s: %w", sheet, err)
	}
	for i, width := range widths {
		if err := sw.SetColWidth(i+1, i+1, width); err != nil {
			return err
		}
	}
	if err := sw.SetPanes(&excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return sw.Flush()
}
