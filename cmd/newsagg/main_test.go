package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/deusflow/newsagg/internal/config"
	"github.com/deusflow/newsagg/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, feedURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	feeds := filepath.Join(dir, "feeds.yaml")
	require.NoError(t, os.WriteFile(feeds, []byte(fmt.Sprintf("sources:\n  - name: Feed\n    feed_url: %s\n", feedURL)), 0o644))
	return &config.Config{
		HTTPAddr:          "127.0.0.1:0",
		StorageDriver:     config.DriverMemory,
		DataFile:          filepath.Join(dir, "news.json"),
		FeedsConfigPath:   feeds,
		MaxEntriesPerFeed: 10,
		FetchTimeout:      5 * time.Second,
		RetryAttempts:     1,
		JWTSecret:         "secret",
		TokenTTL:          time.Minute,
	}
}

func TestRun_Once(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><title>ЦБ</title><link>https://example.test/1</link></item>
</channel></rss>`))
	}))
	defer srv.Close()
	cfg := testConfig(t, srv.URL)

	assert.Equal(t, 0, run(context.Background(), cfg, logger.Discard(), true))
	assert.FileExists(t, cfg.DataFile)
}

func TestRun_FailureStillSavesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	cfg := testConfig(t, srv.URL)

	assert.Equal(t, 1, run(context.Background(), cfg, logger.Discard(), true))
	assert.FileExists(t, cfg.DataFile)
}

func TestRun_BadFeedsConfig(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.FeedsConfigPath = filepath.Join(t.TempDir(), "absent.yaml")

	assert.Equal(t, 1, run(context.Background(), cfg, logger.Discard(), true))
}
