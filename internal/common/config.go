package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Fetch     FetchConfig
	Layout    LayoutConfig
	Extract   ExtractConfig
	Embedding EmbeddingConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds HTTP server configuration, including the optional
// static shared-secret header gate.
type ServerConfig struct {
	Addr              string
	ExpectHeaderName  string
	ExpectHeaderValue string
}

// FetchConfig holds document download configuration. The connection string
// is optional and enables an authenticated retry for private blobs.
type FetchConfig struct {
	DownloadTimeout         time.Duration
	StorageConnectionString string
}

// LayoutConfig holds Azure Document Intelligence configuration.
type LayoutConfig struct {
	Endpoint     string
	Key          string
	ModelID      string
	Timeout      time.Duration
	PollInterval time.Duration
}

// ExtractConfig holds Gemini configuration for the two extraction passes.
type ExtractConfig struct {
	APIKey          string
	Model           string
	LayoutTimeout   time.Duration
	DocumentTimeout time.Duration
}

// EmbeddingConfig holds Azure OpenAI embedding configuration. Embeddings are
// best-effort: an empty endpoint or key disables enrichment entirely.
type EmbeddingConfig struct {
	Endpoint   string
	Key        string
	APIVersion string
	Deployment string
	Model      string
	Timeout    time.Duration
}

// ReconcileConfig holds the numeric tolerances used for arbitration.
type ReconcileConfig struct {
	AbsTolerance   float64 // dollars
	RelTolerance   float64 // fraction of the stated value
	MediumRelLimit float64 // mismatch fraction above which confidence is low
	MediumMaxFlags int     // review fields above which confidence is low
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              getEnv("ADDR", ":8080"),
			ExpectHeaderName:  getEnv("EXPECT_HEADER_NAME", ""),
			ExpectHeaderValue: getEnv("EXPECT_HEADER_VALUE", ""),
		},
		Fetch: FetchConfig{
			DownloadTimeout:         getEnvAsDuration("DOWNLOAD_TIMEOUT", 60*time.Second),
			StorageConnectionString: getEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
		},
		Layout: LayoutConfig{
			Endpoint:     getEnv("AZURE_FORMRECOGNIZER_ENDPOINT", ""),
			Key:          getEnv("AZURE_FORMRECOGNIZER_KEY", ""),
			ModelID:      getEnv("AZURE_FORMRECOGNIZER_MODEL_ID", "prebuilt-read"),
			Timeout:      getEnvAsDuration("AZURE_FORMRECOGNIZER_TIMEOUT", 120*time.Second),
			PollInterval: getEnvAsDuration("AZURE_FORMRECOGNIZER_POLL_INTERVAL", 2*time.Second),
		},
		Extract: ExtractConfig{
			APIKey:          getEnv("GEMINI_API_KEY", ""),
			Model:           getEnv("GEMINI_MODEL_NAME", "gemini-2.5-pro"),
			LayoutTimeout:   getEnvAsDuration("GEMINI_LAYOUT_TIMEOUT", 120*time.Second),
			DocumentTimeout: getEnvAsDuration("GEMINI_DOCUMENT_TIMEOUT", 180*time.Second),
		},
		Embedding: EmbeddingConfig{
			Endpoint:   getEnv("AZURE_OPENAI_EMBEDDING_ENDPOINT", ""),
			Key:        getEnv("AZURE_OPENAI_EMBEDDING_KEY", ""),
			APIVersion: getEnv("AZURE_OPENAI_EMBEDDING_API_VERSION", "2024-12-01-preview"),
			Deployment: getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT_NAME", ""),
			Model:      getEnv("AZURE_OPENAI_EMBEDDING_MODEL_NAME", ""),
			Timeout:    getEnvAsDuration("AZURE_OPENAI_EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Reconcile: ReconcileConfig{
			AbsTolerance:   getEnvAsFloat64("RECONCILE_ABS_TOLERANCE", 0.01),
			RelTolerance:   getEnvAsFloat64("RECONCILE_REL_TOLERANCE", 0.005),
			MediumRelLimit: getEnvAsFloat64("RECONCILE_MEDIUM_REL_LIMIT", 0.05),
			MediumMaxFlags: getEnvAsInt("RECONCILE_MEDIUM_MAX_FLAGS", 2),
		},
	}
}

// Validate checks that the collaborator credentials required for the core
// pipeline are present. Embedding config is optional.
func (c *Config) Validate() error {
	if c.Layout.Endpoint == "" {
		return NewStageError("config", KindInputValidation, errMissing("AZURE_FORMRECOGNIZER_ENDPOINT"))
	}
	if c.Layout.Key == "" {
		return NewStageError("config", KindInputValidation, errMissing("AZURE_FORMRECOGNIZER_KEY"))
	}
	if c.Extract.APIKey == "" {
		return NewStageError("config", KindInputValidation, errMissing("GEMINI_API_KEY"))
	}
	return nil
}

type missingEnvError string

func (e missingEnvError) Error() string { return string(e) + " is required" }

func errMissing(name string) error { return missingEnvError(name) }

// Helper functions for environment variable parsing.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
