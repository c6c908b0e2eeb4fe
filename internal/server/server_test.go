package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomhaven/roomhaven/internal/config"
	"github.com/roomhaven/roomhaven/internal/engine"
	"github.com/roomhaven/roomhaven/internal/server"
	"github.com/roomhaven/roomhaven/internal/storage/sqlite"
)

// startTestServer starts a server on an ephemeral port over an in-memory
// SQLite store and returns the base URL.
func startTestServer(t *testing.T, cfg *config.Config) string {
	t.Helper()

	store, err := sqlite.NewListingStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	service := engine.NewSearchService(store, engine.Options{
		KeysetPagination: cfg.Features.KeysetPagination,
		PageSize:         cfg.Search.PageSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addr, err := server.Start(ctx, cfg, service)
	require.NoError(t, err)

	// Give the listener goroutine a moment to accept.
	time.Sleep(20 * time.Millisecond)
	return "http://" + addr
}

func testConfig() *config.Config {
	cfg, _ := config.LoadConfig()
	cfg.Server.Port = 0
	cfg.Security.RateLimitPerSecond = 0 // off for deterministic tests
	return cfg
}

func TestHealthEndpoint(t *testing.T) {
	base := startTestServer(t, testConfig())

	resp, err := http.Get(base + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])

	// Security headers apply to every route.
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestSearchRouteServes(t *testing.T) {
	base := startTestServer(t, testConfig())

	resp, err := http.Get(base + "/api/v2/search?minLat=40.0&minLng=-74.2&maxLat=40.9&maxLng=-73.7")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSearchRouteRejectsPost(t *testing.T) {
	base := startTestServer(t, testConfig())

	resp, err := http.Post(base+"/api/v2/search", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAPIRoutesRequireAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Security.APIToken = "test-token"
	base := startTestServer(t, cfg)

	// Health stays open for monitoring.
	resp, err := http.Get(base + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// API routes are gated.
	resp, err = http.Get(base + "/api/v2/search/facets")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet,
		base+"/api/v2/search?minLat=40.0&minLng=-74.2&maxLat=40.9&maxLng=-73.7", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer test-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSearchV2FeatureFlag(t *testing.T) {
	cfg := testConfig()
	cfg.Features.SearchV2 = false
	base := startTestServer(t, cfg)

	resp, err := http.Get(base + "/api/v2/search?minLat=40.0&minLng=-74.2&maxLat=40.9&maxLng=-73.7")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimiting(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimitPerSecond = 1
	cfg.Security.RateLimitBurst = 2
	base := startTestServer(t, cfg)

	var lastCode int
	throttled := false
	for i := 0; i < 5; i++ {
		resp, err := http.Get(fmt.Sprintf("%s/api/health", base))
		require.NoError(t, err)
		resp.Body.Close()
		lastCode = resp.StatusCode
		if lastCode == http.StatusTooManyRequests {
			throttled = true
			break
		}
	}
	assert.True(t, throttled, "burst of 5 against limit 1/s burst 2 must throttle")
}

func TestGracefulShutdown(t *testing.T) {
	store, err := sqlite.NewListingStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	cfg := testConfig()
	service := engine.NewSearchService(store, engine.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	addr, err := server.Start(ctx, cfg, service)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	cancel()
	time.Sleep(100 * time.Millisecond)

	_, err = http.Get("http://" + addr + "/api/health")
	assert.Error(t, err, "server must stop accepting connections after shutdown")
}
