package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/slimlo/internal/cache"
	"github.com/ocx/slimlo/internal/metrics"
	"github.com/ocx/slimlo/internal/webhooks"
	"github.com/ocx/slimlo/pkg/slimlo"
)

// sharedMetrics is reused across every test in this file: promauto
// registers collectors against the default registry, so constructing a
// fresh *metrics.Metrics per Server would panic on duplicate registration.
var sharedMetrics = metrics.NewMetrics()

// newTestPool builds a real Pool whose worker binary is never exec'd by
// these tests: NewPool only validates that WorkerPath exists, it doesn't
// spawn a child until the first conversion.
func newTestPool(t *testing.T) *slimlo.Pool {
	t.Helper()
	dir := t.TempDir()
	workerPath := filepath.Join(dir, "fake-worker")
	require.NoError(t, os.WriteFile(workerPath, []byte("#!/bin/sh\n"), 0o755))

	pool, err := slimlo.NewPool(slimlo.PoolConfig{WorkerPath: workerPath, MaxWorkers: 2})
	require.NoError(t, err)
	return pool
}

func TestHandleHealthz(t *testing.T) {
	s := NewServer(newTestPool(t), Config{Metrics: sharedMetrics})

	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleStatsReportsWorkerCount(t *testing.T) {
	s := NewServer(newTestPool(t), Config{Metrics: sharedMetrics})

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["workers"])
}

func TestCORSMiddlewareHandlesPreflight(t *testing.T) {
	s := NewServer(newTestPool(t), Config{Metrics: sharedMetrics})

	req := httptest.NewRequest(http.MethodOptions, "/v1/convert", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleRegisterWebhookWithoutRegistryConfigured(t *testing.T) {
	s := NewServer(newTestPool(t), Config{Metrics: sharedMetrics})

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewReader(nil))
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHandleRegisterWebhookCreatesSubscription(t *testing.T) {
	registry := webhooks.NewRegistry()
	s := NewServer(newTestPool(t), Config{WebhookRegistry: registry, Metrics: sharedMetrics})

	body, err := json.Marshal(webhooks.Subscription{
		URL:    "https://example.com/hook",
		Events: []webhooks.EventType{webhooks.EventConversionCompleted},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, registry.ListAll(), 1)
}

func TestHandleConvertServesFromCache(t *testing.T) {
	store := cache.NewMemoryStore()
	docBytes := []byte("cached document contents")
	cacheKey := cache.HashInput(docBytes, slimlo.FormatDOCX.String())
	require.NoError(t, store.Set(context.Background(), cacheKey, []byte("%PDF-cached"), 0))

	s := NewServer(newTestPool(t), Config{Cache: store, Metrics: sharedMetrics})

	body, contentType := multipartDocument(t, docBytes, "")
	httpReq := httptest.NewRequest(http.MethodPost, "/v1/convert", body)
	httpReq.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, httpReq)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hit", w.Header().Get("X-SlimLO-Cache"))
	assert.Equal(t, "%PDF-cached", w.Body.String())
}

func multipartDocument(t *testing.T, docBytes []byte, requestJSON string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("document", "input.docx")
	require.NoError(t, err)
	_, err = part.Write(docBytes)
	require.NoError(t, err)

	if requestJSON != "" {
		require.NoError(t, w.WriteField("request", requestJSON))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}
