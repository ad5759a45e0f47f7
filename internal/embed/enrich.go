package embed

import (
	"context"
	"log/slog"

	"github.com/partsdesk/invoice-pipeline/internal/invoice"
)

// Enrich attaches embeddings to the record's line items, sequentially and
// failure-isolated: one line's failure is logged and skipped, never aborting
// the others. Returns the count of lines enriched. A nil provider is a no-op.
func Enrich(ctx context.Context, provider Provider, rec *invoice.Record, logger *slog.Logger) int {
	if provider == nil || rec == nil {
		return 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	count := 0
	for i := range rec.LineItems {
		text := EmbeddingText(rec.LineItems[i])
		if text == "" {
			continue
		}
		vec, err := provider.Embed(ctx, text)
		if err != nil {
			logger.Warn("embed.line_failed", "line_index", i, "error", err)
			continue
		}
		rec.LineItems[i].Embedding = vec
		count++
	}
	return count
}
