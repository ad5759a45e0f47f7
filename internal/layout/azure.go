package layout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const apiVersion = "2023-07-31"

// Config for the Azure Document Intelligence client.
type Config struct {
	Endpoint     string        // e.g. https://<resource>.cognitiveservices.azure.com
	Key          string
	ModelID      string        // default prebuilt-read
	Timeout      time.Duration // overall budget for submit + poll
	PollInterval time.Duration
}

// AzureClient implements Provider against the Document Intelligence REST
// surface (submit returns 202 + Operation-Location; results are polled).
type AzureClient struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewAzureClient(cfg Config, logger *slog.Logger) *AzureClient {
	if cfg.ModelID == "" {
		cfg.ModelID = "prebuilt-read"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AzureClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type analyzeOperation struct {
	Status        string   `json:"status"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	AnalyzeResult *Payload `json:"analyzeResult"`
}

// Analyze submits the document and polls until the operation finishes or the
// configured timeout elapses. No retries: a provider failure is terminal for
// the request.
func (c *AzureClient) Analyze(ctx context.Context, document []byte) (*Payload, error) {
	rid := uuid.New().String()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.logger.Info("layout.analyze.start",
		"req_id", rid,
		"model_id", c.cfg.ModelID,
		"document_bytes", len(document),
	)

	opURL, err := c.submit(ctx, document)
	if err != nil {
		c.logger.Error("layout.analyze.submit_error", "req_id", rid, "error", err)
		return nil, err
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("layout analysis timed out: %w", ctx.Err())
		case <-ticker.C:
		}

		op, err := c.poll(ctx, opURL)
		if err != nil {
			c.logger.Error("layout.analyze.poll_error", "req_id", rid, "error", err)
			return nil, err
		}
		switch op.Status {
		case "succeeded":
			if op.AnalyzeResult == nil {
				return nil, fmt.Errorf("layout analysis succeeded without a result")
			}
			c.logger.Info("layout.analyze.ok",
				"req_id", rid,
				"pages", len(op.AnalyzeResult.Pages),
				"tables", len(op.AnalyzeResult.Tables),
				"key_values", len(op.AnalyzeResult.KeyValuePairs),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return op.AnalyzeResult, nil
		case "failed":
			if op.Error != nil {
				return nil, fmt.Errorf("layout analysis failed: %s: %s", op.Error.Code, op.Error.Message)
			}
			return nil, fmt.Errorf("layout analysis failed")
		default:
			// notStarted / running → keep polling
		}
	}
}

func (c *AzureClient) submit(ctx context.Context, document []byte) (string, error) {
	url := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s",
		trimSlash(c.cfg.Endpoint), c.cfg.ModelID, apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit analyze: %w", err)
	}
	defer closeBody(resp.Body, c.logger)

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("analyze submit status %d: %s", resp.StatusCode, string(body))
	}
	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("analyze submit returned no Operation-Location")
	}
	return opURL, nil
}

func (c *AzureClient) poll(ctx context.Context, opURL string) (*analyzeOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll analyze: %w", err)
	}
	defer closeBody(resp.Body, c.logger)

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("analyze poll status %d: %s", resp.StatusCode, string(body))
	}
	var op analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}
	return &op, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func closeBody(body io.ReadCloser, logger *slog.Logger) {
	if err := body.Close(); err != nil {
		logger.Warn("layout.response_body_close_error", "error", err)
	}
}
