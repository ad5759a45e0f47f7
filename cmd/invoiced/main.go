package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/partsdesk/invoice-pipeline/internal/common"
	"github.com/partsdesk/invoice-pipeline/internal/embed"
	"github.com/partsdesk/invoice-pipeline/internal/extract"
	"github.com/partsdesk/invoice-pipeline/internal/fetch"
	"github.com/partsdesk/invoice-pipeline/internal/layout"
	"github.com/partsdesk/invoice-pipeline/internal/pipeline"
	"github.com/partsdesk/invoice-pipeline/internal/reconcile"
	"github.com/partsdesk/invoice-pipeline/internal/server"
)

func main() {
	// Logger
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	// Env (.env is optional in deployed environments)
	if err := godotenv.Load(); err != nil {
		log.Debugw("no .env file loaded", "error", err)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Stage packages log through slog; the HTTP edge logs through zap.
	stageLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Provider clients: constructed once, shared read-only.
	genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.Extract.APIKey))
	if err != nil {
		log.Fatalf("creating gemini client: %v", err)
	}
	defer func() { _ = genaiClient.Close() }()

	layoutClient := layout.NewAzureClient(layout.Config{
		Endpoint:     cfg.Layout.Endpoint,
		Key:          cfg.Layout.Key,
		ModelID:      cfg.Layout.ModelID,
		Timeout:      cfg.Layout.Timeout,
		PollInterval: cfg.Layout.PollInterval,
	}, stageLog)

	extractor := extract.NewGeminiExtractor(genaiClient, extract.Config{
		Model:           cfg.Extract.Model,
		LayoutTimeout:   cfg.Extract.LayoutTimeout,
		DocumentTimeout: cfg.Extract.DocumentTimeout,
	}, stageLog)

	embedder := embed.NewAzureClient(embed.Config{
		Endpoint:   cfg.Embedding.Endpoint,
		Key:        cfg.Embedding.Key,
		APIVersion: cfg.Embedding.APIVersion,
		Deployment: cfg.Embedding.Deployment,
		Model:      cfg.Embedding.Model,
		Timeout:    cfg.Embedding.Timeout,
	}, stageLog)
	if embedder == nil {
		log.Infow("embedding enrichment disabled (no endpoint/key/deployment)")
	}

	reconciler := reconcile.New(reconcile.Config{
		AbsTolerance:   cfg.Reconcile.AbsTolerance,
		RelTolerance:   cfg.Reconcile.RelTolerance,
		MediumRelLimit: cfg.Reconcile.MediumRelLimit,
		MediumMaxFlags: cfg.Reconcile.MediumMaxFlags,
	}, stageLog)

	downloader := fetch.NewDownloader(fetch.Config{
		Timeout:                 cfg.Fetch.DownloadTimeout,
		StorageConnectionString: cfg.Fetch.StorageConnectionString,
	}, stageLog)

	proc := pipeline.NewProcessor(stageLog, downloader, layoutClient, extractor, providerOrNil(embedder), reconciler)

	srv := server.New(cfg.Server, cfg.Embedding, proc, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router(),
	}

	go func() {
		log.Infof("HTTP serving on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	log.Info("stopped.")
}

// providerOrNil avoids a typed-nil embed.Provider inside the processor.
func providerOrNil(c *embed.AzureClient) embed.Provider {
	if c == nil {
		return nil
	}
	return c
}
