// Package invoice defines the structured record produced by the extraction
// passes and the normalizer that parses model output into it. All scalar
// fields are pointers: nil means the input carried no evidence for the value.
package invoice

// Header holds invoice-level identification fields.
type Header struct {
	VendorName      *string `json:"vendor_name"`
	InvoiceNumber   *string `json:"invoice_number"`
	InvoiceDate     *string `json:"invoice_date"`
	PONumber        *string `json:"po_number"`
	CustomerAccount *string `json:"customer_account"`
	StoreBranch     *string `json:"store_branch"`
	Salesperson     *string `json:"salesperson"`
	PaymentTerms    *string `json:"payment_terms"`
	Currency        *string `json:"currency"`
}

// Totals holds invoice-level amounts. Soft invariant, checked during
// reconciliation: grand_total ≈ subtotal + tax + shipping + fees − discounts.
type Totals struct {
	Subtotal    *float64 `json:"subtotal"`
	Tax         *float64 `json:"tax"`
	TaxRate     *float64 `json:"tax_rate"`
	Shipping    *float64 `json:"shipping"`
	CoreCharges *float64 `json:"core_charges"`
	Discounts   *float64 `json:"discounts"`
	Fees        *float64 `json:"fees"`
	GrandTotal  *float64 `json:"grand_total"`
	AmountPaid  *float64 `json:"amount_paid"`
	BalanceDue  *float64 `json:"balance_due"`
}

// LineItem is one invoice line. Categories are drawn exclusively from the
// fixed taxonomy; Embedding is attached post-hoc by enrichment.
type LineItem struct {
	LineNumber   *int      `json:"line_number"`
	PartNumber   *string   `json:"part_number"`
	Description  *string   `json:"description"`
	Brand        *string   `json:"brand"`
	Quantity     *float64  `json:"quantity"`
	UnitPrice    *float64  `json:"unit_price"`
	LineDiscount *float64  `json:"line_discount"`
	CoreCharge   *float64  `json:"core_charge"`
	LineTotal    *float64  `json:"line_total"`
	Taxability   *string   `json:"taxability"`
	TaxRate      *float64  `json:"tax_rate"`
	UOM          *string   `json:"uom"`
	Categories   []string  `json:"categories"`
	IsCore       *bool     `json:"is_core"`
	Embedding    []float32 `json:"embedding,omitempty"`
}

// Record is one candidate (or final) structured invoice. Line item order is
// extraction order and is not guaranteed stable across passes.
type Record struct {
	Header    Header     `json:"header"`
	Totals    Totals     `json:"totals"`
	LineItems []LineItem `json:"line_items"`

	// Warnings may be emitted by the conservative document pass when it is
	// uncertain about a value.
	Warnings []string `json:"warnings,omitempty"`
}

// Confidence is the overall reconciliation confidence level.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ReconciliationResult is the single authoritative output of arbitration
// between two candidate records.
type ReconciliationResult struct {
	Data                Record     `json:"data"`
	Warnings            []string   `json:"warnings"`
	Confidence          Confidence `json:"confidence"`
	FieldsNeedingReview []string   `json:"fields_needing_review"`
}
