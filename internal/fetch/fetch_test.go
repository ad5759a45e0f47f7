package fetch

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConnectionString() string {
	key := base64.StdEncoding.EncodeToString([]byte("test-account-key"))
	return "DefaultEndpointsProtocol=https;AccountName=testacct;AccountKey=" + key + ";EndpointSuffix=core.windows.net"
}

func TestDownloadDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	d := NewDownloader(Config{Timeout: 5 * time.Second}, nil)
	body, err := d.Download(context.Background(), srv.URL+"/container/inv.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), body)
}

func TestDownloadFailureWithoutCredentials(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDownloader(Config{Timeout: 5 * time.Second}, nil)
	_, err := d.Download(context.Background(), srv.URL+"/container/missing.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, 1, requests, "no retry without credentials")
}

func TestDownloadAuthenticatedFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.Contains(t, auth, "SharedKey testacct:")
		assert.NotEmpty(t, r.Header.Get("x-ms-date"))
		assert.Equal(t, "2021-08-06", r.Header.Get("x-ms-version"))
		assert.Empty(t, r.URL.RawQuery, "SAS query is dropped on the signed retry")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	d := NewDownloader(Config{
		Timeout:                 5 * time.Second,
		StorageConnectionString: testConnectionString(),
	}, nil)
	body, err := d.Download(context.Background(), srv.URL+"/container/inv.pdf?sv=2021&sig=expired")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), body)
}

func TestDownloadAuthenticatedFallbackAlsoFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := NewDownloader(Config{
		Timeout:                 5 * time.Second,
		StorageConnectionString: testConnectionString(),
	}, nil)
	_, err := d.Download(context.Background(), srv.URL+"/container/inv.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direct:")
	assert.Contains(t, err.Error(), "authenticated:")
}

func TestParseConnectionString(t *testing.T) {
	creds, err := parseConnectionString(testConnectionString())
	require.NoError(t, err)
	assert.Equal(t, "testacct", creds.account)
	assert.Equal(t, []byte("test-account-key"), creds.key)

	_, err = parseConnectionString("AccountName=only")
	require.Error(t, err)

	_, err = parseConnectionString("AccountName=a;AccountKey=%%%not-base64%%%")
	require.Error(t, err)
}

func TestNewDownloaderInvalidConnectionStringDisablesFallback(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := NewDownloader(Config{
		Timeout:                 5 * time.Second,
		StorageConnectionString: "garbage",
	}, nil)
	_, err := d.Download(context.Background(), srv.URL+"/container/inv.pdf")
	require.Error(t, err)
	assert.Equal(t, 1, requests)
}
