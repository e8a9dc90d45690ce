package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtrip-router/internal/config"
	"roundtrip-router/internal/geocoding"
	"roundtrip-router/internal/routing"
)

func testConfig(t *testing.T) *config.Config {
	defaults := routing.DefaultOptions()
	return &config.Config{
		ServerAddr:       "127.0.0.1:0",
		OracleURL:        "http://127.0.0.1:1",
		OracleProfile:    "foot",
		OracleTimeout:    time.Second,
		GeocoderURL:      "http://127.0.0.1:1",
		DBPath:           filepath.Join(t.TempDir(), "routes.db"),
		DefaultPace:      defaults.PaceMinutesPerKm,
		DefaultTolerance: defaults.ToleranceMinutes,
		AcceptCap:        defaults.AcceptCap,
		FanOut:           defaults.FanOut,
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	srv, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)

	addr, err := srv.Start()
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/health", addr))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	// The geocoder's rate limiter is released with the server
	_, err = srv.geocoder.Geocode(context.Background(), "Tokyo Station")
	var geoErr *geocoding.ErrGeocodingFailed
	require.ErrorAs(t, err, &geoErr)
	assert.Equal(t, "geocoder is closed", geoErr.Reason)
}

func TestNewRejectsInvalidDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.FanOut = 0

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestLoggingMiddlewareHandlesErrors(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := loggingMiddleware(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "nope")
	})
	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestLocalOrigin(t *testing.T) {
	testCases := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:5173", true},
		{"http://127.0.0.1:8080", true},
		{"https://example.com", false},
		{"", false},
	}

	for _, tc := range testCases {
		got, err := localOrigin(tc.origin)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.origin)
	}
}
