// Package project maps a reconciled invoice record into the persistence-ready
// shape. Pure field mapping and derivation: no extraction or reconciliation
// logic lives here, and nothing is written anywhere.
package project

import (
	"regexp"
	"strings"

	"github.com/partsdesk/invoice-pipeline/internal/invoice"
)

// RepairOrder is the invoice-level row of the projection.
type RepairOrder struct {
	ShopID       *string  `json:"shop_id"`
	RONumber     *string  `json:"ro_number"`
	VendorName   *string  `json:"vendor_name"`
	InvoiceDate  *string  `json:"invoice_date"`
	TotalSpend   *float64 `json:"total_spend"`
	Status       string   `json:"status"`
	FilePath     string   `json:"file_path"`
	VehicleYear  *int     `json:"vehicle_year"`
	VehicleMake  *string  `json:"vehicle_make"`
	VehicleModel *string  `json:"vehicle_model"`
	VehicleVIN   *string  `json:"vehicle_vin"`
}

// LineRow is one projected line item. ROID stays nil until the caller inserts
// the repair order.
type LineRow struct {
	ROID            *string   `json:"ro_id"`
	ShopID          *string   `json:"shop_id"`
	PartNumber      *string   `json:"part_number"`
	CleanPartNumber *string   `json:"clean_part_number"`
	LineCode        *string   `json:"line_code"`
	Description     *string   `json:"description"`
	Quantity        *float64  `json:"quantity"`
	UnitCost        *float64  `json:"unit_cost"`
	IsCore          *bool     `json:"is_core"`
	Category        *string   `json:"category"`
	Embedding       []float32 `json:"embedding"`
	CoreCharge      *float64  `json:"core_charge"`
	LineDiscount    *float64  `json:"line_discount"`
	LineTotal       *float64  `json:"line_total"`
	TaxRate         *float64  `json:"tax_rate"`
	Taxability      *string   `json:"taxability"`
	UOM             *string   `json:"uom"`
	Brand           *string   `json:"brand"`
}

// DBShape is the full persistence-ready projection.
type DBShape struct {
	RepairOrder RepairOrder `json:"repair_order"`
	LineItems   []LineRow   `json:"line_items"`
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// CleanPartNumber strips non-alphanumeric characters and uppercases.
// Idempotent; returns nil for empty results.
func CleanPartNumber(partNumber *string) *string {
	if partNumber == nil {
		return nil
	}
	cleaned := strings.ToUpper(nonAlnum.ReplaceAllString(*partNumber, ""))
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// LineCodeFromBrand derives a 3-character line code from the first three
// normalized characters of the brand.
func LineCodeFromBrand(brand *string) *string {
	if brand == nil {
		return nil
	}
	cleaned := strings.ToUpper(nonAlnum.ReplaceAllString(*brand, ""))
	if cleaned == "" {
		return nil
	}
	if len(cleaned) > 3 {
		cleaned = cleaned[:3]
	}
	return &cleaned
}

// PrimaryCategory takes the first taxonomy category as the line's primary.
func PrimaryCategory(categories []string) *string {
	if len(categories) == 0 {
		return nil
	}
	first := categories[0]
	return &first
}

// ToDBShape maps a reconciled record into the persistence-ready shape. The RO
// number falls back from invoice number to PO number, matching downstream
// expectations.
func ToDBShape(sourceURL string, rec invoice.Record, shopID *string) DBShape {
	roNumber := rec.Header.InvoiceNumber
	if roNumber == nil {
		roNumber = rec.Header.PONumber
	}

	order := RepairOrder{
		ShopID:      shopID,
		RONumber:    roNumber,
		VendorName:  rec.Header.VendorName,
		InvoiceDate: rec.Header.InvoiceDate,
		TotalSpend:  rec.Totals.GrandTotal,
		Status:      "processing",
		FilePath:    sourceURL,
	}

	lines := make([]LineRow, 0, len(rec.LineItems))
	for _, item := range rec.LineItems {
		lines = append(lines, LineRow{
			ShopID:          shopID,
			PartNumber:      item.PartNumber,
			CleanPartNumber: CleanPartNumber(item.PartNumber),
			LineCode:        LineCodeFromBrand(item.Brand),
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitCost:        item.UnitPrice,
			IsCore:          item.IsCore,
			Category:        PrimaryCategory(item.Categories),
			Embedding:       item.Embedding,
			CoreCharge:      item.CoreCharge,
			LineDiscount:    item.LineDiscount,
			LineTotal:       item.LineTotal,
			TaxRate:         item.TaxRate,
			Taxability:      item.Taxability,
			UOM:             item.UOM,
			Brand:           item.Brand,
		})
	}

	return DBShape{RepairOrder: order, LineItems: lines}
}
