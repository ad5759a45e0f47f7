// Package extract runs the two independent structured-extraction passes.
// Pass A reads the layout engine's structured payload; pass B reads the raw
// document bytes and is deliberately more conservative. Neither pass sees the
// other's output — reconciliation depends on that independence.
package extract

import (
	"context"

	"github.com/partsdesk/invoice-pipeline/internal/invoice"
	"github.com/partsdesk/invoice-pipeline/internal/layout"
)

// Stage tags identify which pass produced a failure.
const (
	StagePassA = "pass_a"
	StagePassB = "pass_b"
)

// Provider is the capability interface the pipeline depends on.
type Provider interface {
	// FromLayout extracts a candidate record from the serialized layout
	// payload (pass A).
	FromLayout(ctx context.Context, payload *layout.Payload, categories []string) (*invoice.Record, error)

	// FromDocument extracts a candidate record from the raw document bytes
	// (pass B), preferring null over guessed values.
	FromDocument(ctx context.Context, document []byte, categories []string) (*invoice.Record, error)
}
