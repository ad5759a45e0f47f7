package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"

	"github.com/partsdesk/invoice-pipeline/internal/common"
	"github.com/partsdesk/invoice-pipeline/internal/embed"
	"github.com/partsdesk/invoice-pipeline/internal/export"
	"github.com/partsdesk/invoice-pipeline/internal/extract"
	"github.com/partsdesk/invoice-pipeline/internal/layout"
	"github.com/partsdesk/invoice-pipeline/internal/pipeline"
	"github.com/partsdesk/invoice-pipeline/internal/project"
	"github.com/partsdesk/invoice-pipeline/internal/reconcile"
)

// One-shot runner: process a local PDF through the full pipeline and write
// the reconciled result as JSON, optionally also as an XLSX workbook.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		filePath = flag.String("file", "", "path to the invoice PDF (required)")
		shopID   = flag.String("shop", "", "shop identifier for the db-ready projection")
		xlsxPath = flag.String("xlsx", "", "optional path to write the projection workbook")
	)
	flag.Parse()
	if *filePath == "" {
		logger.Error("usage", "cmd", "runpipeline -file <invoice.pdf> [-shop id] [-xlsx out.xlsx]")
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	document, err := os.ReadFile(*filePath)
	if err != nil {
		logger.Error("read file", "path", *filePath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.Extract.APIKey))
	if err != nil {
		logger.Error("creating gemini client", "error", err)
		os.Exit(1)
	}
	defer func() { _ = genaiClient.Close() }()

	layoutClient := layout.NewAzureClient(layout.Config{
		Endpoint:     cfg.Layout.Endpoint,
		Key:          cfg.Layout.Key,
		ModelID:      cfg.Layout.ModelID,
		Timeout:      cfg.Layout.Timeout,
		PollInterval: cfg.Layout.PollInterval,
	}, logger)
	extractor := extract.NewGeminiExtractor(genaiClient, extract.Config{
		Model:           cfg.Extract.Model,
		LayoutTimeout:   cfg.Extract.LayoutTimeout,
		DocumentTimeout: cfg.Extract.DocumentTimeout,
	}, logger)
	embedder := embed.NewAzureClient(embed.Config{
		Endpoint:   cfg.Embedding.Endpoint,
		Key:        cfg.Embedding.Key,
		APIVersion: cfg.Embedding.APIVersion,
		Deployment: cfg.Embedding.Deployment,
		Model:      cfg.Embedding.Model,
		Timeout:    cfg.Embedding.Timeout,
	}, logger)
	reconciler := reconcile.New(reconcile.Config{
		AbsTolerance:   cfg.Reconcile.AbsTolerance,
		RelTolerance:   cfg.Reconcile.RelTolerance,
		MediumRelLimit: cfg.Reconcile.MediumRelLimit,
		MediumMaxFlags: cfg.Reconcile.MediumMaxFlags,
	}, logger)

	var embedProvider embed.Provider
	if embedder != nil {
		embedProvider = embedder
	}
	proc := pipeline.NewProcessor(logger, nil, layoutClient, extractor, embedProvider, reconciler)

	start := time.Now()
	result, err := proc.ProcessDocument(ctx, document)
	if err != nil {
		logger.Error("pipeline failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}
	logger.Info("pipeline OK",
		"confidence", string(result.Final.Confidence),
		"line_items", len(result.Final.Data.LineItems),
		"embedded_lines", result.EmbeddedLines,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	var shop *string
	if *shopID != "" {
		shop = shopID
	}
	shape := project.ToDBShape(*filePath, result.Final.Data, shop)

	out := map[string]any{
		"final":      result.Final,
		"di_summary": result.Summary,
		"db_ready":   shape,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("encode output", "error", err)
		os.Exit(1)
	}

	if *xlsxPath != "" {
		book, err := export.WorkbookFromDBShape(shape)
		if err != nil {
			logger.Error("build workbook", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*xlsxPath, book, 0o644); err != nil {
			logger.Error("write workbook", "path", *xlsxPath, "error", err)
			os.Exit(1)
		}
		logger.Info("workbook written", "path", *xlsxPath, "bytes", len(book))
	}
}
