package reconcile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsdesk/invoice-pipeline/constants"
	"github.com/partsdesk/invoice-pipeline/internal/invoice"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }
func intPtr(i int) *int         { return &i }
func boolPtr(b bool) *bool      { return &b }

func brakeLine(lineTotal *float64) invoice.LineItem {
	return invoice.LineItem{
		LineNumber:   intPtr(1),
		PartNumber:   strPtr("abc-123"),
		Description:  strPtr("Brake pad set"),
		Brand:        strPtr("ACME Parts"),
		Quantity:     f64Ptr(2),
		UnitPrice:    f64Ptr(10.00),
		LineDiscount: f64Ptr(0),
		CoreCharge:   f64Ptr(0),
		LineTotal:    lineTotal,
		Categories:   []string{"Brakes"},
		IsCore:       boolPtr(false),
	}
}

func TestReconcileAgreementRecomputesLineTotal(t *testing.T) {
	r := New(DefaultConfig(), nil)

	a := &invoice.Record{LineItems: []invoice.LineItem{brakeLine(nil)}}
	b := &invoice.Record{LineItems: []invoice.LineItem{brakeLine(nil)}}

	result, err := r.Reconcile(a, b, nil)
	require.NoError(t, err)
	require.Len(t, result.Data.LineItems, 1)
	require.NotNil(t, result.Data.LineItems[0].LineTotal)
	assert.InDelta(t, 20.00, *result.Data.LineItems[0].LineTotal, 0.001)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.FieldsNeedingReview)
	assert.Equal(t, invoice.ConfidenceHigh, result.Confidence)
}

func TestReconcileGrandTotalAnchoredSelection(t *testing.T) {
	r := New(DefaultConfig(), nil)

	a := &invoice.Record{
		LineItems: []invoice.LineItem{brakeLine(f64Ptr(20.00))},
		Totals:    invoice.Totals{GrandTotal: f64Ptr(100.00)},
	}
	b := &invoice.Record{
		LineItems: []invoice.LineItem{brakeLine(f64Ptr(20.00))},
		Totals:    invoice.Totals{GrandTotal: f64Ptr(150.00)},
	}
	anchors := map[string]float64{"total": 100.00}

	result, err := r.Reconcile(a, b, anchors)
	require.NoError(t, err)
	require.NotNil(t, result.Data.Totals.GrandTotal)
	assert.InDelta(t, 100.00, *result.Data.Totals.GrandTotal, 0.001)
	assert.Contains(t, result.FieldsNeedingReview, "totals.grand_total")
}

func TestReconcileAnchorPrefersDocumentPass(t *testing.T) {
	r := New(DefaultConfig(), nil)

	a := &invoice.Record{Totals: invoice.Totals{Tax: f64Ptr(9.99)}}
	b := &invoice.Record{Totals: invoice.Totals{Tax: f64Ptr(8.25)}}
	anchors := map[string]float64{"sales tax": 8.25}

	result, err := r.Reconcile(a, b, anchors)
	require.NoError(t, err)
	require.NotNil(t, result.Data.Totals.Tax)
	assert.InDelta(t, 8.25, *result.Data.Totals.Tax, 0.001)
	assert.Contains(t, result.FieldsNeedingReview, "totals.tax")
}

func TestReconcileDropsUnknownCategories(t *testing.T) {
	r := New(DefaultConfig(), nil)

	aLine := brakeLine(f64Ptr(20.00))
	aLine.Categories = []string{"Brakes", "Upholstery"}
	bLine := brakeLine(f64Ptr(20.00))
	bLine.Categories = []string{"Filters", "Brakes"}

	result, err := r.Reconcile(
		&invoice.Record{LineItems: []invoice.LineItem{aLine}},
		&invoice.Record{LineItems: []invoice.LineItem{bLine}},
		nil,
	)
	require.NoError(t, err)
	require.Len(t, result.Data.LineItems, 1)
	got := result.Data.LineItems[0].Categories
	assert.Equal(t, []string{"Brakes", "Filters"}, got)
	assert.NotContains(t, got, "Upholstery")

	// Merged set is always a subset of the taxonomy.
	taxonomy := constants.AsStringSlice()
	for _, c := range got {
		assert.Contains(t, taxonomy, c)
	}
}

func TestReconcileHeaderDisagreementPrefersLayoutPass(t *testing.T) {
	r := New(DefaultConfig(), nil)

	a := &invoice.Record{Header: invoice.Header{VendorName: strPtr("ACME Parts Inc")}}
	b := &invoice.Record{Header: invoice.Header{VendorName: strPtr("ACNE Parts")}}

	result, err := r.Reconcile(a, b, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Data.Header.VendorName)
	assert.Equal(t, "ACME Parts Inc", *result.Data.Header.VendorName)
	assert.Contains(t, result.FieldsNeedingReview, "header.vendor_name")
}

func TestReconcileFillsOneSidedAbsenceWithoutFlagging(t *testing.T) {
	r := New(DefaultConfig(), nil)

	a := &invoice.Record{Header: invoice.Header{InvoiceNumber: strPtr("INV-9")}}
	b := &invoice.Record{Header: invoice.Header{PaymentTerms: strPtr("NET 30")}}

	result, err := r.Reconcile(a, b, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Data.Header.InvoiceNumber)
	require.NotNil(t, result.Data.Header.PaymentTerms)
	assert.Equal(t, "INV-9", *result.Data.Header.InvoiceNumber)
	assert.Equal(t, "NET 30", *result.Data.Header.PaymentTerms)
	assert.Empty(t, result.FieldsNeedingReview)
}

func TestReconcileLineAnchorOutranksConsistencyFallback(t *testing.T) {
	r := New(DefaultConfig(), nil)

	// Layout pass states the anchored unit price but an arithmetically
	// inconsistent total; document pass is self-consistent around the wrong
	// price. The anchor must still decide.
	aLine := brakeLine(f64Ptr(25.00))
	bLine := brakeLine(f64Ptr(25.00))
	bLine.UnitPrice = f64Ptr(12.50)
	anchors := map[string]float64{"unit price": 10.00}

	result, err := r.Reconcile(
		&invoice.Record{LineItems: []invoice.LineItem{aLine}},
		&invoice.Record{LineItems: []invoice.LineItem{bLine}},
		anchors,
	)
	require.NoError(t, err)
	require.Len(t, result.Data.LineItems, 1)
	require.NotNil(t, result.Data.LineItems[0].UnitPrice)
	assert.InDelta(t, 10.00, *result.Data.LineItems[0].UnitPrice, 0.001)
	assert.Contains(t, result.FieldsNeedingReview, "line_items[0].unit_price")
}

func TestReconcileLineConsistencyFallbackWithoutAnchor(t *testing.T) {
	r := New(DefaultConfig(), nil)

	// Same disagreement with no anchor in sight: the self-consistent
	// document-pass line wins.
	aLine := brakeLine(f64Ptr(25.00))
	bLine := brakeLine(f64Ptr(25.00))
	bLine.UnitPrice = f64Ptr(12.50)

	result, err := r.Reconcile(
		&invoice.Record{LineItems: []invoice.LineItem{aLine}},
		&invoice.Record{LineItems: []invoice.LineItem{bLine}},
		nil,
	)
	require.NoError(t, err)
	require.Len(t, result.Data.LineItems, 1)
	require.NotNil(t, result.Data.LineItems[0].UnitPrice)
	assert.InDelta(t, 12.50, *result.Data.LineItems[0].UnitPrice, 0.001)
	assert.Contains(t, result.FieldsNeedingReview, "line_items[0].unit_price")
}

func TestReconcileLineTotalMismatchWarns(t *testing.T) {
	r := New(DefaultConfig(), nil)

	line := brakeLine(f64Ptr(25.00)) // stated 25, recomputed 20
	result, err := r.Reconcile(
		&invoice.Record{LineItems: []invoice.LineItem{line}},
		&invoice.Record{LineItems: []invoice.LineItem{line}},
		nil,
	)
	require.NoError(t, err)
	require.NotEmpty(t, result.Warnings)
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "line_items[0].line_total") &&
			strings.Contains(w, "20.00") && strings.Contains(w, "25.00") {
			found = true
		}
	}
	assert.True(t, found, "warning should carry field path plus expected and stated values: %v", result.Warnings)
}

func TestReconcileConfidenceMonotonic(t *testing.T) {
	r := New(DefaultConfig(), nil)
	rank := map[invoice.Confidence]int{
		invoice.ConfidenceLow:    0,
		invoice.ConfidenceMedium: 1,
		invoice.ConfidenceHigh:   2,
	}

	run := func(statedGrand float64) invoice.Confidence {
		rec := func() *invoice.Record {
			return &invoice.Record{
				LineItems: []invoice.LineItem{brakeLine(f64Ptr(20.00))},
				Totals:    invoice.Totals{Subtotal: f64Ptr(20.00), GrandTotal: f64Ptr(statedGrand)},
			}
		}
		result, err := r.Reconcile(rec(), rec(), nil)
		require.NoError(t, err)
		return result.Confidence
	}

	agree := run(20.00)     // within a cent
	minor := run(20.50)     // small mismatch
	major := run(520.00)    // way off
	assert.Equal(t, invoice.ConfidenceHigh, agree)
	assert.GreaterOrEqual(t, rank[agree], rank[minor])
	assert.GreaterOrEqual(t, rank[minor], rank[major])
	assert.Equal(t, invoice.ConfidenceLow, major)
}

func TestReconcileLineOnlyInDocumentPass(t *testing.T) {
	r := New(DefaultConfig(), nil)

	extra := brakeLine(f64Ptr(20.00))
	extra.PartNumber = strPtr("XTR-9")
	extra.LineNumber = intPtr(2)

	result, err := r.Reconcile(
		&invoice.Record{LineItems: []invoice.LineItem{brakeLine(f64Ptr(20.00))}},
		&invoice.Record{LineItems: []invoice.LineItem{brakeLine(f64Ptr(20.00)), extra}},
		nil,
	)
	require.NoError(t, err)
	require.Len(t, result.Data.LineItems, 2)
	assert.Contains(t, result.FieldsNeedingReview, "line_items[1]")
}

func TestReconcileMatchesLinesByPartNumberAcrossOrder(t *testing.T) {
	r := New(DefaultConfig(), nil)

	first := brakeLine(f64Ptr(20.00))
	second := brakeLine(f64Ptr(15.00))
	second.PartNumber = strPtr("FLT-77")
	second.Description = strPtr("Oil filter")
	second.Quantity = f64Ptr(3)
	second.UnitPrice = f64Ptr(5.00)
	second.Categories = []string{"Filters"}

	// Document pass sees the same lines in reverse order.
	result, err := r.Reconcile(
		&invoice.Record{LineItems: []invoice.LineItem{first, second}},
		&invoice.Record{LineItems: []invoice.LineItem{second, first}},
		nil,
	)
	require.NoError(t, err)
	require.Len(t, result.Data.LineItems, 2)
	assert.Empty(t, result.FieldsNeedingReview)
	assert.Equal(t, "abc-123", *result.Data.LineItems[0].PartNumber)
	assert.Equal(t, "FLT-77", *result.Data.LineItems[1].PartNumber)
}

func TestReconcileNeverMutatesInputs(t *testing.T) {
	r := New(DefaultConfig(), nil)

	a := &invoice.Record{LineItems: []invoice.LineItem{brakeLine(nil)}}
	b := &invoice.Record{LineItems: []invoice.LineItem{brakeLine(nil)}}

	_, err := r.Reconcile(a, b, nil)
	require.NoError(t, err)
	assert.Nil(t, a.LineItems[0].LineTotal, "input record must not be mutated")
	assert.Nil(t, b.LineItems[0].LineTotal, "input record must not be mutated")
}
