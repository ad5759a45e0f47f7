// Package pipeline coordinates the full multi-pass extraction flow:
// download → layout analysis → two concurrent extraction passes →
// reconciliation → embedding enrichment. All state is request-scoped; the
// injected provider handles are the only process-wide values and are
// read-only.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/partsdesk/invoice-pipeline/constants"
	"github.com/partsdesk/invoice-pipeline/internal/common"
	"github.com/partsdesk/invoice-pipeline/internal/embed"
	"github.com/partsdesk/invoice-pipeline/internal/extract"
	"github.com/partsdesk/invoice-pipeline/internal/invoice"
	"github.com/partsdesk/invoice-pipeline/internal/layout"
	"github.com/partsdesk/invoice-pipeline/internal/reconcile"
)

// Fetcher retrieves the source document by URL.
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Processor wires the stages together. Embedder may be nil to disable
// enrichment.
type Processor struct {
	Logger     *slog.Logger
	Fetcher    Fetcher
	Layout     layout.Provider
	Extractor  extract.Provider
	Embedder   embed.Provider
	Reconciler *reconcile.Reconciler
}

func NewProcessor(logger *slog.Logger, fetcher Fetcher, lp layout.Provider, ex extract.Provider, em embed.Provider, rec *reconcile.Reconciler) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = reconcile.New(reconcile.DefaultConfig(), logger)
	}
	return &Processor{
		Logger:     logger,
		Fetcher:    fetcher,
		Layout:     lp,
		Extractor:  ex,
		Embedder:   em,
		Reconciler: rec,
	}
}

// Result is everything the response assembly needs.
type Result struct {
	Final         *invoice.ReconciliationResult
	PassA         *invoice.Record
	PassB         *invoice.Record
	Summary       layout.Summary
	EmbeddedLines int
}

// Run downloads the document and processes it.
func (p *Processor) Run(ctx context.Context, documentURL string) (*Result, error) {
	document, err := p.Fetcher.Download(ctx, documentURL)
	if err != nil {
		return nil, common.NewStageError("download", common.KindDocumentFetch, err)
	}
	return p.ProcessDocument(ctx, document)
}

// ProcessDocument runs the pipeline over in-memory document bytes. The two
// extraction passes share no intermediate state and run concurrently, joined
// before reconciliation.
func (p *Processor) ProcessDocument(ctx context.Context, document []byte) (*Result, error) {
	rid := uuid.New().String()
	start := time.Now()
	categories := constants.AsStringSlice()

	payload, err := p.Layout.Analyze(ctx, document)
	if err != nil {
		p.Logger.Error("pipeline.layout.failed", "req_id", rid, "error", err)
		return nil, common.NewStageError("layout", common.KindLayoutAnalysis, err)
	}
	summary := layout.Summarize(payload)
	p.Logger.Info("pipeline.layout.ok",
		"req_id", rid, "pages", summary.Pages, "documents", summary.Documents, "model_id", summary.ModelID)

	var passA, passB *invoice.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := p.Extractor.FromLayout(gctx, payload, categories)
		if err != nil {
			return err
		}
		passA = rec
		return nil
	})
	g.Go(func() error {
		rec, err := p.Extractor.FromDocument(gctx, document, categories)
		if err != nil {
			return err
		}
		passB = rec
		return nil
	})
	if err := g.Wait(); err != nil {
		stage, _ := common.StageOf(err)
		p.Logger.Error("pipeline.extract.failed", "req_id", rid, "stage", stage, "error", err)
		return nil, err
	}
	p.Logger.Info("pipeline.extract.ok",
		"req_id", rid,
		"pass_a_lines", len(passA.LineItems),
		"pass_b_lines", len(passB.LineItems),
	)

	final, err := p.Reconciler.Reconcile(passA, passB, payload.NumericAnchors())
	if err != nil {
		p.Logger.Error("pipeline.reconcile.failed", "req_id", rid, "error", err)
		return nil, err
	}

	embedded := embed.Enrich(ctx, p.Embedder, &final.Data, p.Logger)

	p.Logger.Info("pipeline.ok",
		"req_id", rid,
		"confidence", string(final.Confidence),
		"embedded_lines", embedded,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Result{
		Final:         final,
		PassA:         passA,
		PassB:         passB,
		Summary:       summary,
		EmbeddedLines: embedded,
	}, nil
}
