// Package reconcile arbitrates between the two independently extracted
// candidate records, anchored by the layout engine's numeric key-values, and
// emits one authoritative record with confidence and review flags.
//
// Arbitration is a deterministic algorithm with explicit, configurable
// tolerances, so the same inputs always produce the same record:
//
//   - agreement keeps the agreed value;
//   - disagreement is resolved by the layout anchor, then by arithmetic
//     support (recomputed sums), then by preferring the layout-based pass,
//     and is always recorded in fields_needing_review;
//   - line totals and the grand total are recomputed; material mismatches
//     become warnings with field path and expected vs. stated values;
//   - confidence is monotonic in the disagreement and mismatch signals.
package reconcile

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/partsdesk/invoice-pipeline/constants"
	"github.com/partsdesk/invoice-pipeline/internal/common"
	"github.com/partsdesk/invoice-pipeline/internal/invoice"
)

// Config holds the numeric tolerances. A stated amount "agrees" with an
// expected one when the difference is within max(AbsTolerance,
// RelTolerance*|stated|).
type Config struct {
	AbsTolerance   float64
	RelTolerance   float64
	MediumRelLimit float64 // grand-total mismatch fraction above which confidence drops to low
	MediumMaxFlags int     // review-field count above which confidence drops to low
}

func DefaultConfig() Config {
	return Config{
		AbsTolerance:   0.01,
		RelTolerance:   0.005,
		MediumRelLimit: 0.05,
		MediumMaxFlags: 2,
	}
}

// Reconciler arbitrates candidate records. Stateless between calls; safe for
// concurrent use.
type Reconciler struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Reconciler {
	def := DefaultConfig()
	if cfg.AbsTolerance <= 0 {
		cfg.AbsTolerance = def.AbsTolerance
	}
	if cfg.RelTolerance <= 0 {
		cfg.RelTolerance = def.RelTolerance
	}
	if cfg.MediumRelLimit <= 0 {
		cfg.MediumRelLimit = def.MediumRelLimit
	}
	if cfg.MediumMaxFlags <= 0 {
		cfg.MediumMaxFlags = def.MediumMaxFlags
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{cfg: cfg, logger: logger}
}

// Reconcile merges candidates a (layout-based pass) and b (document-based
// pass) into a fresh record; neither input is mutated. anchors are the layout
// engine's numeric key-values. The merged record is re-validated through the
// normalizer schema; a validation failure is a reconciliation stage error.
func (r *Reconciler) Reconcile(a, b *invoice.Record, anchors map[string]float64) (*invoice.ReconciliationResult, error) {
	if a == nil {
		a = &invoice.Record{}
	}
	if b == nil {
		b = &invoice.Record{}
	}

	st := &state{cfg: r.cfg, anchors: anchors}

	merged := invoice.Record{}
	merged.Header = st.mergeHeader(a.Header, b.Header)
	merged.LineItems = st.mergeLineItems(a.LineItems, b.LineItems)
	lineSum, haveLineSum := st.recomputeLineTotals(merged.LineItems)
	merged.Totals = st.mergeTotals(a.Totals, b.Totals, lineSum, haveLineSum)

	grandRel := st.checkGrandTotal(&merged, lineSum, haveLineSum)

	confidence := r.confidence(len(st.review), grandRel)

	result := &invoice.ReconciliationResult{
		Data:                merged,
		Warnings:            append([]string{}, st.warnings...),
		Confidence:          confidence,
		FieldsNeedingReview: append([]string{}, st.review...),
	}
	for _, w := range b.Warnings {
		result.Warnings = append(result.Warnings, "pass_b: "+w)
	}

	if err := invoice.ValidateRecord(&merged); err != nil {
		return nil, common.NewStageError("reconcile", common.KindReconciliation, err)
	}

	r.logger.Info("reconcile.ok",
		"line_items", len(merged.LineItems),
		"warnings", len(result.Warnings),
		"fields_needing_review", len(result.FieldsNeedingReview),
		"confidence", string(confidence),
	)
	return result, nil
}

// confidence maps the disagreement signals to a level. Monotonic by
// construction: more review fields or a larger grand-total mismatch can only
// lower the level.
func (r *Reconciler) confidence(reviewCount int, grandRel float64) invoice.Confidence {
	switch {
	case reviewCount == 0 && grandRel == 0:
		return invoice.ConfidenceHigh
	case reviewCount <= r.cfg.MediumMaxFlags && grandRel <= r.cfg.MediumRelLimit:
		return invoice.ConfidenceMedium
	default:
		return invoice.ConfidenceLow
	}
}

type state struct {
	cfg      Config
	anchors  map[string]float64
	warnings []string
	review   []string
}

func (s *state) flag(path string) {
	for _, existing := range s.review {
		if existing == path {
			return
		}
	}
	s.review = append(s.review, path)
}

func (s *state) warnf(format string, args ...any) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

func (s *state) within(stated, expected float64) bool {
	tol := math.Max(s.cfg.AbsTolerance, s.cfg.RelTolerance*math.Abs(stated))
	return math.Abs(stated-expected) <= tol
}

// anchored reports whether any layout key-value amount supports v.
func (s *state) anchored(v float64) bool {
	for _, av := range s.anchors {
		if s.within(av, v) {
			return true
		}
	}
	return false
}

// pickString keeps agreement, fills one-sided absence, and on disagreement
// flags the path and prefers the layout-based candidate.
func (s *state) pickString(path string, av, bv *string) *string {
	switch {
	case av == nil && bv == nil:
		return nil
	case av == nil:
		return copyStr(bv)
	case bv == nil:
		return copyStr(av)
	}
	if strings.EqualFold(strings.TrimSpace(*av), strings.TrimSpace(*bv)) {
		return copyStr(av)
	}
	s.flag(path)
	return copyStr(av)
}

// pickFloat resolves a numeric disagreement by anchor, then by closeness to
// the arithmetic support value, then by preferring pass A. support may be nil
// when no recomputed value applies to the field.
func (s *state) pickFloat(path string, av, bv, support *float64) *float64 {
	switch {
	case av == nil && bv == nil:
		return nil
	case av == nil:
		return copyF64(bv)
	case bv == nil:
		return copyF64(av)
	}
	if s.within(*av, *bv) {
		return copyF64(av)
	}

	s.flag(path)

	aAnchored, bAnchored := s.anchored(*av), s.anchored(*bv)
	if aAnchored != bAnchored {
		if bAnchored {
			return copyF64(bv)
		}
		return copyF64(av)
	}
	if support != nil {
		if math.Abs(*bv-*support) < math.Abs(*av-*support) {
			return copyF64(bv)
		}
	}
	return copyF64(av)
}

func (s *state) pickInt(path string, av, bv *int) *int {
	switch {
	case av == nil && bv == nil:
		return nil
	case av == nil:
		v := *bv
		return &v
	case bv == nil:
		v := *av
		return &v
	}
	if *av != *bv {
		s.flag(path)
	}
	v := *av
	return &v
}

func (s *state) pickBool(path string, av, bv *bool) *bool {
	switch {
	case av == nil && bv == nil:
		return nil
	case av == nil:
		v := *bv
		return &v
	case bv == nil:
		v := *av
		return &v
	}
	if *av != *bv {
		s.flag(path)
	}
	v := *av
	return &v
}

func (s *state) mergeHeader(a, b invoice.Header) invoice.Header {
	return invoice.Header{
		VendorName:      s.pickString("header.vendor_name", a.VendorName, b.VendorName),
		InvoiceNumber:   s.pickString("header.invoice_number", a.InvoiceNumber, b.InvoiceNumber),
		InvoiceDate:     s.pickString("header.invoice_date", a.InvoiceDate, b.InvoiceDate),
		PONumber:        s.pickString("header.po_number", a.PONumber, b.PONumber),
		CustomerAccount: s.pickString("header.customer_account", a.CustomerAccount, b.CustomerAccount),
		StoreBranch:     s.pickString("header.store_branch", a.StoreBranch, b.StoreBranch),
		Salesperson:     s.pickString("header.salesperson", a.Salesperson, b.Salesperson),
		PaymentTerms:    s.pickString("header.payment_terms", a.PaymentTerms, b.PaymentTerms),
		Currency:        s.pickString("header.currency", a.Currency, b.Currency),
	}
}

func (s *state) mergeTotals(a, b invoice.Totals, lineSum float64, haveLineSum bool) invoice.Totals {
	var subSupport, grandSupport *float64
	if haveLineSum {
		subSupport = &lineSum
	}

	merged := invoice.Totals{
		Subtotal:    s.pickFloat("totals.subtotal", a.Subtotal, b.Subtotal, subSupport),
		Tax:         s.pickFloat("totals.tax", a.Tax, b.Tax, nil),
		TaxRate:     s.pickFloat("totals.tax_rate", a.TaxRate, b.TaxRate, nil),
		Shipping:    s.pickFloat("totals.shipping", a.Shipping, b.Shipping, nil),
		CoreCharges: s.pickFloat("totals.core_charges", a.CoreCharges, b.CoreCharges, nil),
		Discounts:   s.pickFloat("totals.discounts", a.Discounts, b.Discounts, nil),
		Fees:        s.pickFloat("totals.fees", a.Fees, b.Fees, nil),
		AmountPaid:  s.pickFloat("totals.amount_paid", a.AmountPaid, b.AmountPaid, nil),
		BalanceDue:  s.pickFloat("totals.balance_due", a.BalanceDue, b.BalanceDue, nil),
	}

	if haveLineSum || merged.Subtotal != nil {
		g := expectedGrand(merged, lineSum, haveLineSum)
		grandSupport = &g
	}
	merged.GrandTotal = s.pickFloat("totals.grand_total", a.GrandTotal, b.GrandTotal, grandSupport)
	return merged
}

// expectedGrand recomputes the invariant grand_total = subtotal + tax +
// shipping + fees − discounts, falling back to the line-item sum when no
// subtotal was stated.
func expectedGrand(t invoice.Totals, lineSum float64, haveLineSum bool) float64 {
	base := lineSum
	if t.Subtotal != nil {
		base = *t.Subtotal
	} else if !haveLineSum {
		base = 0
	}
	return round2(base + f64(t.Tax) + f64(t.Shipping) + f64(t.Fees) - f64(t.Discounts))
}

// checkGrandTotal warns on a material mismatch between recomputed and stated
// grand totals and returns the relative mismatch for confidence scoring.
func (s *state) checkGrandTotal(rec *invoice.Record, lineSum float64, haveLineSum bool) float64 {
	if rec.Totals.GrandTotal == nil {
		return 0
	}
	if !haveLineSum && rec.Totals.Subtotal == nil {
		// Nothing to recompute from.
		return 0
	}
	stated := *rec.Totals.GrandTotal
	expected := expectedGrand(rec.Totals, lineSum, haveLineSum)
	if s.within(stated, expected) {
		return 0
	}
	s.warnf("totals.grand_total: recomputed %.2f, stated %.2f", expected, stated)
	return math.Abs(stated-expected) / math.Max(1, math.Abs(stated))
}

func (s *state) mergeLineItems(aItems, bItems []invoice.LineItem) []invoice.LineItem {
	used := make([]bool, len(bItems))
	merged := make([]invoice.LineItem, 0, len(aItems))

	for i := range aItems {
		j := matchLine(&aItems[i], bItems, used, i)
		if j < 0 {
			merged = append(merged, s.mergeLine(len(merged), &aItems[i], nil))
			continue
		}
		used[j] = true
		merged = append(merged, s.mergeLine(len(merged), &aItems[i], &bItems[j]))
	}
	for j := range bItems {
		if used[j] {
			continue
		}
		idx := len(merged)
		merged = append(merged, s.mergeLine(idx, &bItems[j], nil))
		s.warnf("line_items[%d]: present only in document pass", idx)
		s.flag(fmt.Sprintf("line_items[%d]", idx))
	}
	return merged
}

// matchLine pairs an A line with its B counterpart: cleaned part number
// first, then line number, then positional fallback. Line order is not
// guaranteed stable across passes.
func matchLine(a *invoice.LineItem, bItems []invoice.LineItem, used []bool, idx int) int {
	aPart := normalizeKey(a.PartNumber)
	if aPart != "" {
		for j := range bItems {
			if !used[j] && normalizeKey(bItems[j].PartNumber) == aPart {
				return j
			}
		}
	}
	if a.LineNumber != nil {
		for j := range bItems {
			if !used[j] && bItems[j].LineNumber != nil && *bItems[j].LineNumber == *a.LineNumber {
				return j
			}
		}
	}
	if idx < len(bItems) && !used[idx] {
		return idx
	}
	return -1
}

func (s *state) mergeLine(idx int, a, b *invoice.LineItem) invoice.LineItem {
	if b == nil {
		out := *a
		out.Categories = constants.FilterCategories(a.Categories)
		out.Embedding = nil
		return out
	}

	path := func(field string) string { return fmt.Sprintf("line_items[%d].%s", idx, field) }

	// Arithmetic support for disagreements: a candidate whose own line is
	// internally consistent is the better witness for its values.
	aConsistent := s.lineConsistent(a)
	bConsistent := s.lineConsistent(b)
	preferB := bConsistent && !aConsistent

	// The consistency fallback never outranks a layout anchor: it applies
	// only when neither candidate value is anchored.
	pick := func(field string, av, bv *float64) *float64 {
		v := s.pickFloat(path(field), av, bv, nil)
		if preferB && av != nil && bv != nil && !s.within(*av, *bv) &&
			!s.anchored(*av) && !s.anchored(*bv) {
			return copyF64(bv)
		}
		return v
	}

	return invoice.LineItem{
		LineNumber:   s.pickInt(path("line_number"), a.LineNumber, b.LineNumber),
		PartNumber:   s.pickString(path("part_number"), a.PartNumber, b.PartNumber),
		Description:  s.pickString(path("description"), a.Description, b.Description),
		Brand:        s.pickString(path("brand"), a.Brand, b.Brand),
		Quantity:     pick("quantity", a.Quantity, b.Quantity),
		UnitPrice:    pick("unit_price", a.UnitPrice, b.UnitPrice),
		LineDiscount: pick("line_discount", a.LineDiscount, b.LineDiscount),
		CoreCharge:   pick("core_charge", a.CoreCharge, b.CoreCharge),
		LineTotal:    pick("line_total", a.LineTotal, b.LineTotal),
		Taxability:   s.pickString(path("taxability"), a.Taxability, b.Taxability),
		TaxRate:      s.pickFloat(path("tax_rate"), a.TaxRate, b.TaxRate, nil),
		UOM:          s.pickString(path("uom"), a.UOM, b.UOM),
		Categories:   constants.FilterCategories(append(append([]string{}, a.Categories...), b.Categories...)),
		IsCore:       s.pickBool(path("is_core"), a.IsCore, b.IsCore),
	}
}

// lineConsistent reports whether a candidate line's stated total matches its
// own quantity × unit_price − line_discount + core_charge.
func (s *state) lineConsistent(item *invoice.LineItem) bool {
	if item.Quantity == nil || item.UnitPrice == nil || item.LineTotal == nil {
		return false
	}
	expected := *item.Quantity**item.UnitPrice - f64(item.LineDiscount) + f64(item.CoreCharge)
	return s.within(*item.LineTotal, expected)
}

// recomputeLineTotals fills missing line totals from the recomputed value,
// warns on material mismatches, and returns the sum of effective line totals.
func (s *state) recomputeLineTotals(items []invoice.LineItem) (float64, bool) {
	var sum float64
	have := false
	for i := range items {
		item := &items[i]
		if item.Quantity == nil || item.UnitPrice == nil {
			if item.LineTotal != nil {
				sum += *item.LineTotal
				have = true
			}
			continue
		}
		expected := round2(*item.Quantity**item.UnitPrice - f64(item.LineDiscount) + f64(item.CoreCharge))
		if item.LineTotal == nil {
			item.LineTotal = &expected
		} else if !s.within(*item.LineTotal, expected) {
			s.warnf("line_items[%d].line_total: recomputed %.2f, stated %.2f", i, expected, *item.LineTotal)
		}
		sum += *item.LineTotal
		have = true
	}
	return round2(sum), have
}

func normalizeKey(s *string) string {
	if s == nil {
		return ""
	}
	return strings.ToUpper(nonAlnum.ReplaceAllString(*s, ""))
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func f64(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func copyF64(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
