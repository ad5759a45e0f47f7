package layout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:     endpoint,
		Key:          "test-key",
		ModelID:      "prebuilt-read",
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}
}

func TestAzureClientAnalyze(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-read:analyze", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "2023-07-31", r.URL.Query().Get("api-version"))
		w.Header().Set("Operation-Location", srv.URL+"/formrecognizer/documentModels/prebuilt-read/analyzeResults/op-1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-read/analyzeResults/op-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Content-Type", "application/json")
		if polls.Add(1) < 2 {
			json.NewEncoder(w).Encode(map[string]any{"status": "running"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "succeeded",
			"analyzeResult": map[string]any{
				"modelId": "prebuilt-read",
				"content": "ACME Parts Invoice",
				"pages":   []map[string]any{{"pageNumber": 1}},
				"keyValuePairs": []map[string]any{
					{"key": map[string]any{"content": "Total"}, "value": map[string]any{"content": "$21.60"}},
				},
			},
		})
	})

	client := NewAzureClient(testConfig(srv.URL), nil)
	payload, err := client.Analyze(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "prebuilt-read", payload.ModelID)
	require.Len(t, payload.Pages, 1)
	assert.GreaterOrEqual(t, polls.Load(), int32(2), "client keeps polling while running")

	anchors := payload.NumericAnchors()
	assert.InDelta(t, 21.60, anchors["total"], 0.001)
}

func TestAzureClientAnalyzeOperationFailed(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-read:analyze", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Operation-Location", srv.URL+"/op")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/op", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "failed",
			"error":  map[string]any{"code": "InvalidContent", "message": "not a PDF"},
		})
	})

	client := NewAzureClient(testConfig(srv.URL), nil)
	_, err := client.Analyze(context.Background(), []byte("garbage"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidContent")
	assert.Contains(t, err.Error(), "not a PDF")
}

func TestAzureClientAnalyzeSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":"401"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewAzureClient(testConfig(srv.URL), nil)
	_, err := client.Analyze(context.Background(), []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestAzureClientAnalyzeTimesOut(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-read:analyze", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Operation-Location", srv.URL+"/op")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/op", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "running"})
	})

	cfg := testConfig(srv.URL)
	cfg.Timeout = 100 * time.Millisecond
	client := NewAzureClient(cfg, nil)
	_, err := client.Analyze(context.Background(), []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
