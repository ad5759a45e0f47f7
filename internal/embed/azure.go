package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"
)

// maxInputChars guards the embedding input length.
const maxInputChars = 8000

// Config for the Azure OpenAI embedding client. Endpoint, Key and Deployment
// must all be set for enrichment to be enabled.
type Config struct {
	Endpoint   string
	Key        string
	APIVersion string
	Deployment string
	Model      string
	Timeout    time.Duration
}

// AzureClient implements Provider against the Azure OpenAI embeddings REST
// surface.
type AzureClient struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewAzureClient returns nil when the config is incomplete; a nil provider
// disables enrichment without failing the pipeline.
func NewAzureClient(cfg Config, logger *slog.Logger) *AzureClient {
	if cfg.Endpoint == "" || cfg.Key == "" || cfg.Deployment == "" {
		return nil
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-12-01-preview"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
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

func (c *AzureClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty embedding input")
	}
	if len(text) > maxInputChars {
		cut := maxInputChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		trimSlash(c.cfg.Endpoint), c.cfg.Deployment, c.cfg.APIVersion)

	body, err := json.Marshal(map[string]any{"input": text})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.Key)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding http error: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("embed.response_body_close_error", "error", cerr)
		}
	}()

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding status %d: %s", resp.StatusCode, string(raw))
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}
	return out.Data[0].Embedding, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
