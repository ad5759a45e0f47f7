package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"

	"github.com/partsdesk/invoice-pipeline/internal/common"
	"github.com/partsdesk/invoice-pipeline/internal/invoice"
	"github.com/partsdesk/invoice-pipeline/internal/layout"
)

// Config for the Gemini extraction client.
type Config struct {
	Model           string
	LayoutTimeout   time.Duration
	DocumentTimeout time.Duration
}

// generativeModel is the slice of the genai model surface the extractor
// calls; *genai.GenerativeModel satisfies it.
type generativeModel interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiExtractor implements Provider on top of a shared genai client. The
// client handle is constructed once per process and injected.
type GeminiExtractor struct {
	model  generativeModel
	cfg    Config
	logger *slog.Logger
}

func NewGeminiExtractor(client *genai.Client, cfg Config, logger *slog.Logger) *GeminiExtractor {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-pro"
	}
	if cfg.LayoutTimeout <= 0 {
		cfg.LayoutTimeout = 120 * time.Second
	}
	if cfg.DocumentTimeout <= 0 {
		cfg.DocumentTimeout = 180 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	ex := &GeminiExtractor{cfg: cfg, logger: logger}
	if client != nil {
		ex.model = client.GenerativeModel(cfg.Model)
	}
	return ex
}

func (g *GeminiExtractor) FromLayout(ctx context.Context, payload *layout.Payload, categories []string) (*invoice.Record, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, common.NewStageError(StagePassA, common.KindExtraction, fmt.Errorf("encode layout payload: %w", err))
	}
	return g.generate(ctx, StagePassA, g.cfg.LayoutTimeout,
		genai.Text(BuildLayoutPrompt(categories)),
		genai.Text(string(content)),
	)
}

func (g *GeminiExtractor) FromDocument(ctx context.Context, document []byte, categories []string) (*invoice.Record, error) {
	return g.generate(ctx, StagePassB, g.cfg.DocumentTimeout,
		genai.Text(BuildDocumentPrompt(categories)),
		genai.Blob{MIMEType: "application/pdf", Data: document},
	)
}

func (g *GeminiExtractor) generate(ctx context.Context, stage string, timeout time.Duration, parts ...genai.Part) (*invoice.Record, error) {
	rid := uuid.New().String()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g.logger.Info("extract.start", "req_id", rid, "stage", stage, "model", g.cfg.Model)

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		g.logger.Error("extract.provider_error",
			"req_id", rid, "stage", stage, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, common.NewStageError(stage, common.KindExtraction, err)
	}

	text, err := responseText(resp)
	if err != nil {
		g.logger.Error("extract.empty_response", "req_id", rid, "stage", stage, "error", err)
		return nil, common.NewStageError(stage, common.KindExtraction, err)
	}

	rec, err := invoice.ParseRecord(text)
	if err != nil {
		kind := common.KindExtraction
		if errors.Is(err, invoice.ErrMalformed) {
			kind = common.KindMalformedExtraction
		}
		g.logger.Error("extract.parse_error",
			"req_id", rid, "stage", stage, "error", err, "raw_bytes", len(text),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, common.NewStageError(stage, kind, err)
	}

	g.logger.Info("extract.ok",
		"req_id", rid, "stage", stage,
		"line_items", len(rec.LineItems),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates in model response")
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			out += string(t)
		}
	}
	if out == "" {
		return "", fmt.Errorf("no text parts in model response")
	}
	return out, nil
}
