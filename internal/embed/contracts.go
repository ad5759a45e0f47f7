// Package embed provides best-effort semantic embedding enrichment for
// reconciled line items. Failures never affect the overall response: a line
// that cannot be embedded simply stays without an embedding.
package embed

import (
	"context"
	"strings"

	"github.com/partsdesk/invoice-pipeline/internal/invoice"
)

// Provider generates one embedding vector for a text fingerprint.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingText builds the deterministic semantic fingerprint for a line:
// part number, brand, description and space-joined categories, non-empty
// fields only, joined by " | ". Missing fields are omitted, never rendered as
// literal null text.
func EmbeddingText(line invoice.LineItem) string {
	parts := make([]string, 0, 4)
	if v := strVal(line.PartNumber); v != "" {
		parts = append(parts, v)
	}
	if v := strVal(line.Brand); v != "" {
		parts = append(parts, v)
	}
	if v := strVal(line.Description); v != "" {
		parts = append(parts, v)
	}
	if len(line.Categories) > 0 {
		parts = append(parts, strings.Join(line.Categories, " "))
	}
	return strings.Join(parts, " | ")
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
