// Package fetch retrieves the source document by caller-supplied URL.
// A failure here is a caller-fault condition: the location or its
// permissions are wrong, so the server maps it to a bad-request class.
package fetch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config for the downloader. StorageConnectionString is optional; when set,
// a failed direct GET against the account's blob endpoint is retried with
// SharedKey authorization.
type Config struct {
	Timeout                 time.Duration
	StorageConnectionString string
}

// Downloader fetches document bytes over HTTP (SAS or public URLs), with an
// optional authenticated retry for private blobs.
type Downloader struct {
	http   *http.Client
	creds  *sharedKeyCredential
	logger *slog.Logger
}

func NewDownloader(cfg Config, logger *slog.Logger) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Downloader{
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	if cfg.StorageConnectionString != "" {
		creds, err := parseConnectionString(cfg.StorageConnectionString)
		if err != nil {
			logger.Warn("fetch.connection_string_invalid", "error", err)
		} else {
			d.creds = creds
		}
	}
	return d
}

func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()

	body, err := d.get(ctx, url, false)
	if err == nil {
		d.logger.Info("fetch.ok",
			"bytes", len(body),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return body, nil
	}
	if d.creds == nil {
		return nil, err
	}

	// The direct GET failed (expired SAS, private container). Retry against
	// the same blob with SharedKey auth, dropping any query string.
	d.logger.Info("fetch.retry_authenticated", "error", err)
	authURL := url
	if i := strings.IndexByte(authURL, '?'); i >= 0 {
		authURL = authURL[:i]
	}
	body, authErr := d.get(ctx, authURL, true)
	if authErr != nil {
		return nil, fmt.Errorf("direct: %v; authenticated: %w", err, authErr)
	}
	d.logger.Info("fetch.ok",
		"bytes", len(body),
		"authenticated", true,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}

func (d *Downloader) get(ctx context.Context, url string, signed bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	if signed {
		d.creds.sign(req)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			d.logger.Warn("fetch.response_body_close_error", "error", cerr)
		}
	}()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read download body: %w", err)
	}
	return body, nil
}

// sharedKeyCredential signs storage requests with the account key from an
// AZURE_STORAGE_CONNECTION_STRING-style connection string.
type sharedKeyCredential struct {
	account string
	key     []byte
}

func parseConnectionString(s string) (*sharedKeyCredential, error) {
	var account, encodedKey string
	for _, part := range strings.Split(s, ";") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch name {
		case "AccountName":
			account = value
		case "AccountKey":
			encodedKey = value
		}
	}
	if account == "" || encodedKey == "" {
		return nil, fmt.Errorf("connection string missing AccountName or AccountKey")
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode account key: %w", err)
	}
	return &sharedKeyCredential{account: account, key: key}, nil
}

const storageAPIVersion = "2021-08-06"

// sign adds SharedKey authorization for an unconditional GET with no body.
func (c *sharedKeyCredential) sign(req *http.Request) {
	date := time.Now().UTC().Format(http.TimeFormat)
	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-version", storageAPIVersion)

	stringToSign := http.MethodGet + strings.Repeat("\n", 12) +
		"x-ms-date:" + date + "\n" +
		"x-ms-version:" + storageAPIVersion + "\n" +
		"/" + c.account + req.URL.EscapedPath()

	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	req.Header.Set("Authorization", "SharedKey "+c.account+":"+signature)
}
