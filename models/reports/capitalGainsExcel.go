package reports

import (
	"fmt"

	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/workflow"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet   = "Summary"
	shortTermSheet = "Short Term"
	longTermSheet  = "Long Term"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

type gainRow struct {
	folio string
	slice workflow.GainSlice
}

func (r gainRow) GetCellValues() []interface{} {
	s := r.slice
	return []interface{}{
		r.folio,
		s.RedemptionTransactionId,
		s.RedemptionDate.Format(models.DateLayout),
		s.PurchaseTransactionId,
		s.PurchaseDate.Format(models.DateLayout),
		s.HoldingDays,
		s.Units.InexactFloat64(),
		s.PurchaseNav.InexactFloat64(),
		s.RedemptionNav.InexactFloat64(),
		s.CostBasis.InexactFloat64(),
		s.Proceeds.InexactFloat64(),
		s.Gain.InexactFloat64(),
	}
}

type folioRow struct {
	gains workflow.FolioCapitalGains
}

func (r folioRow) GetCellValues() []interface{} {
	g := r.gains
	return []interface{}{
		g.FolioNumber,
		g.SchemeId,
		g.SchemeName,
		string(g.SchemeType),
		g.ShortTermGain.InexactFloat64(),
		g.LongTermGain.InexactFloat64(),
		g.TotalGain.InexactFloat64(),
	}
}

var slicesHeadings = []string{
	"Folio", "Redemption", "Redemption Date", "Purchase", "Purchase Date", "Holding Days",
	"Units", "Purchase NAV", "Redemption NAV", "Cost Basis", "Proceeds", "Gain",
}

var summaryHeadings = []string{
	"Folio", "Scheme", "Scheme Name", "Scheme Type", "Short Term Gain", "Long Term Gain", "Total Gain",
}

// CapitalGainsWorkbook lays out a summary sheet plus one detail sheet per holding class.
func CapitalGainsWorkbook(result *workflow.InvestorCapitalGains) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	for _, name := range []string{shortTermSheet, longTermSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	var summary, shortTerm, longTerm []ExcelExporter
	for _, g := range result.Folios {
		summary = append(summary, folioRow{gains: g})
		for _, s := range g.ShortTerm {
			shortTerm = append(shortTerm, gainRow{folio: g.FolioNumber, slice: s})
		}
		for _, s := range g.LongTerm {
			longTerm = append(longTerm, gainRow{folio: g.FolioNumber, slice: s})
		}
	}

	rowNo, err := writeRows(f, summarySheet, 1, summary, summaryHeadings...)
	if err != nil {
		return nil, err
	}
	totals := []interface{}{"Total", "", "", "",
		result.ShortTermGain.InexactFloat64(), result.LongTermGain.InexactFloat64(), result.TotalGain.InexactFloat64()}
	if err := setRow(f, summarySheet, rowNo, totals); err != nil {
		return nil, err
	}
	if result.Period != nil {
		period := fmt.Sprintf("Period %s to %s", result.Period.From.Format(models.DateLayout), result.Period.To.Format(models.DateLayout))
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("A%d", rowNo+2), period); err != nil {
			return nil, err
		}
	}
	if _, err := writeRows(f, shortTermSheet, 1, shortTerm, slicesHeadings...); err != nil {
		return nil, err
	}
	if _, err := writeRows(f, longTermSheet, 1, longTerm, slicesHeadings...); err != nil {
		return nil, err
	}
	return f, nil
}

// CapitalGainsXlsx renders the workbook into memory.
func CapitalGainsXlsx(result *workflow.InvestorCapitalGains) ([]byte, error) {
	f, err := CapitalGainsWorkbook(result)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func SaveCapitalGainsXlsx(result *workflow.InvestorCapitalGains, filename string) error {
	f, err := CapitalGainsWorkbook(result)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(filename)
}

// writeRows writes headings on startRow and data below, returning the next free row.
func writeRows(f *excelize.File, sheet string, startRow int, data []ExcelExporter, headings ...string) (int, error) {
	header := make([]interface{}, len(headings))
	for i, h := range headings {
		header[i] = h
	}
	if err := setRow(f, sheet, startRow, header); err != nil {
		return 0, err
	}
	rowNo := startRow + 1
	for _, d := range data {
		if err := setRow(f, sheet, rowNo, d.GetCellValues()); err != nil {
			return 0, err
		}
		rowNo++
	}
	return rowNo, nil
}

func setRow(f *excelize.File, sheet string, rowNo int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
