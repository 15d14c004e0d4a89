package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangafetch/mangafetch/internal/apperr"
	"github.com/mangafetch/mangafetch/internal/config"
)

func filepathBase(p string) string { return filepath.Base(p) }

func TestHTTPFetcherWritesBody(t *testing.T) {
	var gotUA, gotRef string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotRef = r.Header.Get("Referer")
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "nested", "image_000.jpg")
	fetcher := NewHTTPFetcher(srv.Client(), WithHeaders("mangafetch-test", "https://manga.example.com/"))

	var reported int64
	path, err := fetcher.Fetch(context.Background(), Job{ID: srv.URL + "/a.jpg", Dest: dest}, func(n int64) {
		reported += n
	})
	require.NoError(t, err)
	assert.Equal(t, dest, path)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
	assert.Equal(t, int64(len("image-bytes")), reported)
	assert.Equal(t, "mangafetch-test", gotUA)
	assert.Equal(t, "https://manga.example.com/", gotRef)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(dest), ".fetch-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestHTTPFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "image_000.jpg")
	_, err := NewHTTPFetcher(srv.Client()).Fetch(context.Background(), Job{ID: srv.URL, Dest: dest}, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsNetwork(err))

	code, ok := apperr.IsStatus(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, code)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestHTTPFetcherTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher(nil).Fetch(context.Background(), Job{ID: url, Dest: filepath.Join(t.TempDir(), "x.jpg")}, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsNetwork(err))
	_, isStatus := apperr.IsStatus(err)
	assert.False(t, isStatus)
}

func TestRunWithHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/1.jpg" || r.URL.Path == "/3.jpg" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	urls := []string{srv.URL + "/0.jpg", srv.URL + "/1.jpg", srv.URL + "/2.jpg", srv.URL + "/3.jpg", srv.URL + "/4.jpg"}
	jobs := JobsFor(urls, t.TempDir())

	result, err := Run(context.Background(), jobs, 2, NewHTTPFetcher(srv.Client()), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, result.Paths, 3)
	for _, idx := range []int{1, 3} {
		code, ok := apperr.IsStatus(result.Outcomes[idx].Err)
		require.True(t, ok)
		assert.Equal(t, http.StatusInternalServerError, code)
	}
}

func TestNewClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{
			FetchTimeout: config.Duration(45 * time.Second),
		},
	}

	client := NewClient(cfg)
	assert.Equal(t, 45*time.Second, client.Timeout)
	assert.Equal(t, defaultTimeout, NewClient(nil).Timeout)
}

func TestConfiguredFetcherUsesSiteHeaders(t *testing.T) {
	var gotRef string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRef = r.Header.Get("Referer")
	}))
	defer srv.Close()

	cfg := &config.Config{
		Global: config.GlobalConfig{FetchTimeout: config.Duration(time.Second), Referer: "https://global.example.com/"},
		Sites:  []config.SiteConfig{{Name: "local", Host: "127.0.0.1", Referer: "https://site.example.com/"}},
	}
	_, err := NewConfiguredFetcher(cfg).Fetch(context.Background(), Job{ID: srv.URL, Dest: filepath.Join(t.TempDir(), "a.jpg")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://site.example.com/", gotRef)
}
