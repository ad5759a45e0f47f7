// Package export renders the persistence-ready projection as an XLSX
// workbook, for operators reviewing a processed invoice offline.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/partsdesk/invoice-pipeline/internal/project"
)

// WorkbookFromDBShape returns an XLSX workbook (as bytes) with one sheet for
// the repair order and one row per projected line item.
func WorkbookFromDBShape(shape project.DBShape) ([]byte, error) {
	f := excelize.NewFile()

	const orderSheet = "RepairOrder"
	if err := f.SetSheetName("Sheet1", orderSheet); err != nil {
		return nil, err
	}

	orderRows := [][2]any{
		{"RO Number", strOrEmpty(shape.RepairOrder.RONumber)},
		{"Vendor", strOrEmpty(shape.RepairOrder.VendorName)},
		{"Invoice Date", strOrEmpty(shape.RepairOrder.InvoiceDate)},
		{"Total Spend", floatOrEmpty(shape.RepairOrder.TotalSpend)},
		{"Status", shape.RepairOrder.Status},
		{"File Path", shape.RepairOrder.FilePath},
	}
	for i, pair := range orderRows {
		keyCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valCell, _ := excelize.CoordinatesToCellName(2, i+1)
		_ = f.SetCellValue(orderSheet, keyCell, pair[0])
		_ = f.SetCellValue(orderSheet, valCell, pair[1])
	}

	const lineSheet = "Lines"
	if _, err := f.NewSheet(lineSheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Part Number",
		"Clean Part Number",
		"Line Code",
		"Brand",
		"Description",
		"Category",
		"Quantity",
		"Unit Cost",
		"Line Discount",
		"Core Charge",
		"Line Total",
		"Is Core",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(lineSheet, cell, h)
	}

	row := 2
	for _, line := range shape.LineItems {
		values := []any{
			strOrEmpty(line.PartNumber),
			strOrEmpty(line.CleanPartNumber),
			strOrEmpty(line.LineCode),
			strOrEmpty(line.Brand),
			strOrEmpty(line.Description),
			strOrEmpty(line.Category),
			floatOrEmpty(line.Quantity),
			floatOrEmpty(line.UnitCost),
			floatOrEmpty(line.LineDiscount),
			floatOrEmpty(line.CoreCharge),
			floatOrEmpty(line.LineTotal),
			boolOrEmpty(line.IsCore),
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(lineSheet, cell, v)
		}
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func floatOrEmpty(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}

func boolOrEmpty(p *bool) any {
	if p == nil {
		return ""
	}
	return *p
}
