package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtrip-router/internal/geocoding"
	"roundtrip-router/internal/models"
	"roundtrip-router/internal/routing"
	"roundtrip-router/internal/sqlite"
	"roundtrip-router/internal/testutil"
)

var tokyo = models.Location{Lat: 35.6762, Lng: 139.7674}

// Mock implementations for testing

type mockGeocoder struct {
	fail bool
}

func (m *mockGeocoder) Geocode(ctx context.Context, address string) (*geocoding.GeocodingResult, error) {
	if m.fail {
		return nil, &geocoding.ErrGeocodingFailed{Address: address, Reason: "no results found"}
	}
	return &geocoding.GeocodingResult{Location: tokyo, DisplayName: "Tokyo Station, " + address}, nil
}

func (m *mockGeocoder) GeocodeWithRetry(ctx context.Context, address string, maxRetries int) (*geocoding.GeocodingResult, error) {
	return m.Geocode(ctx, address)
}

func (m *mockGeocoder) Search(ctx context.Context, query string, limit int) ([]geocoding.GeocodingResult, error) {
	if m.fail {
		return nil, &geocoding.ErrGeocodingFailed{Address: query, Reason: "HTTP 503"}
	}
	return []geocoding.GeocodingResult{{Location: tokyo, DisplayName: query}}, nil
}

func (m *mockGeocoder) Close() error { return nil }

type testServer struct {
	echo    *echo.Echo
	handler *Handler
	oracle  *testutil.FakeOracle
	geo     *mockGeocoder
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "routes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fake := testutil.NewFakeOracle()
	geocoder := &mockGeocoder{}
	h := NewHandler(db, geocoder, routing.NewOptimizer(fake), routing.DefaultOptions())

	e := echo.New()
	h.Register(e)
	return &testServer{echo: e, handler: h, oracle: fake, geo: geocoder}
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithContext(t, context.Background(), method, target, body)
}

func (s *testServer) doWithContext(t *testing.T, ctx context.Context, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader).WithContext(ctx)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func decodeOptimize(t *testing.T, rec *httptest.ResponseRecorder) OptimizeResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp OptimizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestOptimizeWithCoordinates(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/routes/optimize", map[string]interface{}{
		"start":   tokyo,
		"minutes": 30,
	})
	resp := decodeOptimize(t, rec)

	require.NotNil(t, resp.Route)
	assert.Empty(t, resp.ID)
	assert.Equal(t, tokyo, resp.Route.StartLocation)
	assert.GreaterOrEqual(t, resp.Route.EstimatedDurationMinutes, 28.0)
	assert.LessOrEqual(t, resp.Route.EstimatedDurationMinutes, 30.0)
	assert.Equal(t, tokyo, resp.Route.Path[0])
	assert.Equal(t, tokyo, resp.Route.Path[len(resp.Route.Path)-1])
	assert.Positive(t, resp.Diagnostics.Attempts)
}

func TestOptimizeAppliesOverrides(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/routes/optimize", map[string]interface{}{
		"start":      tokyo,
		"minutes":    40,
		"pace":       5,
		"tolerance":  4,
		"accept_cap": 1,
	})
	resp := decodeOptimize(t, rec)

	assert.GreaterOrEqual(t, resp.Route.EstimatedDurationMinutes, 36.0)
	assert.LessOrEqual(t, resp.Route.EstimatedDurationMinutes, 40.0)
	assert.InDelta(t, resp.Route.TotalDistanceKm*5, resp.Route.EstimatedDurationMinutes, 1e-9)
	assert.Equal(t, 1, resp.Diagnostics.Accepted)
}

func TestOptimizeWithAddressAndSave(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/routes/optimize", map[string]interface{}{
		"address": "Marunouchi, Tokyo",
		"minutes": 25,
		"save":    true,
		"name":    "Station loop",
	})
	resp := decodeOptimize(t, rec)

	assert.Equal(t, "Tokyo Station, Marunouchi, Tokyo", resp.ResolvedAddress)
	require.NotEmpty(t, resp.ID)

	saved, err := s.handler.DB.Routes().GetByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Station loop", saved.Name)
	assert.Equal(t, 25.0, saved.RequestedMinutes)
	assert.Equal(t, *resp.Route, saved.Route)
}

func TestOptimizeValidationErrors(t *testing.T) {
	testCases := []struct {
		name  string
		body  interface{}
		field string
	}{
		{name: "half a minute", body: map[string]interface{}{"start": tokyo, "minutes": 0.5}, field: "minutes"},
		{name: "missing minutes", body: map[string]interface{}{"start": tokyo}, field: "minutes"},
		{name: "too long", body: map[string]interface{}{"start": tokyo, "minutes": 301}, field: "minutes"},
		{name: "no start or address", body: map[string]interface{}{"minutes": 30}, field: "start"},
		{name: "zero pace", body: map[string]interface{}{"start": tokyo, "minutes": 30, "pace": 0}, field: "pace"},
		{name: "fan out too wide", body: map[string]interface{}{"start": tokyo, "minutes": 30, "fan_out": 17}, field: "fan_out"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := setupTestServer(t)

			rec := s.do(t, http.MethodPost, "/api/v1/routes/optimize", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			detail := decodeError(t, rec)
			assert.Equal(t, "VALIDATION_ERROR", detail.Code)
			assert.Contains(t, detail.Details, tc.field)
			assert.Zero(t, s.oracle.CallCount())
		})
	}
}

func TestOptimizeMalformedBody(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/routes/optimize", `{"minutes":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestOptimizeInvalidStartLocation(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/routes/optimize", map[string]interface{}{
		"start":   models.Location{Lat: 91, Lng: 0},
		"minutes": 30,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	detail := decodeError(t, rec)
	assert.Equal(t, "INVALID_INPUT", detail.Code)
	assert.Equal(t, map[string]interface{}{"field": "start_location"}, detail.Details)
}

func TestOptimizeGeocodingFailure(t *testing.T) {
	s := setupTestServer(t)
	s.geo.fail = true

	rec := s.do(t, http.MethodPost, "/api/v1/routes/optimize", map[string]interface{}{
		"address": "nowhere at all",
		"minutes": 30,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "GEOCODING_FAILED", decodeError(t, rec).Code)
	assert.Zero(t, s.oracle.CallCount())
}

func TestOptimizeNoRouteFound(t *testing.T) {
	s := setupTestServer(t)
	s.oracle.FixedDistanceKm = 50

	rec := s.do(t, http.MethodPost, "/api/v1/routes/optimize", map[string]interface{}{
		"start":   tokyo,
		"minutes": 30,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	detail := decodeError(t, rec)
	assert.Equal(t, "NO_ROUTE_FOUND", detail.Code)
	diagnostics, ok := detail.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "try a longer duration", diagnostics["suggestion"])
	assert.Equal(t, diagnostics["attempts"], diagnostics["too_long"])
}

func TestOptimizeCancelled(t *testing.T) {
	s := setupTestServer(t)
	s.oracle.Block = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := s.doWithContext(t, ctx, http.MethodPost, "/api/v1/routes/optimize", map[string]interface{}{
		"start":   tokyo,
		"minutes": 30,
	})
	assert.Equal(t, StatusClientClosedRequest, rec.Code)
	assert.Equal(t, "CANCELLED", decodeError(t, rec).Code)
}

func TestValidateRoute(t *testing.T) {
	s := setupTestServer(t)
	turn := models.Location{Lat: 35.6980, Lng: 139.7674}
	route := models.OptimizedRoute{
		StartLocation:            tokyo,
		Path:                     []models.Location{tokyo, turn, tokyo},
		TotalDistanceKm:          4.85,
		EstimatedDurationMinutes: 29.1,
		Shape:                    models.ShapeOutAndBack,
	}

	rec := s.do(t, http.MethodPost, "/api/v1/routes/validate", map[string]interface{}{
		"route":   route,
		"minutes": 30,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsValid)
	assert.Equal(t, 28.0, resp.Constraints.LowerBoundMinutes)

	rec = s.do(t, http.MethodPost, "/api/v1/routes/validate", map[string]interface{}{
		"route":   route,
		"minutes": 45,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.IsValid)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "outside")
}

func TestValidateRequiresRoute(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/routes/validate", map[string]interface{}{"minutes": 30})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Details, "route")
}

func saveRoute(t *testing.T, s *testServer, name string) string {
	t.Helper()
	resp := decodeOptimize(t, s.do(t, http.MethodPost, "/api/v1/routes/optimize", map[string]interface{}{
		"start":   tokyo,
		"minutes": 20,
		"save":    true,
		"name":    name,
	}))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestSavedRouteLifecycle(t *testing.T) {
	s := setupTestServer(t)
	id := saveRoute(t, s, "Lunch loop")

	rec := s.do(t, http.MethodGet, "/api/v1/routes/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var saved models.SavedRoute
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, "Lunch loop", saved.Name)

	rec = s.do(t, http.MethodGet, "/api/v1/routes/"+id+"/geojson", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Body.String(), `"FeatureCollection"`)
	assert.Contains(t, rec.Body.String(), `"LineString"`)

	rec = s.do(t, http.MethodDelete, "/api/v1/routes/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/routes/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/routes/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRoutes(t *testing.T) {
	s := setupTestServer(t)
	saveRoute(t, s, "one")
	saveRoute(t, s, "two")
	saveRoute(t, s, "three")

	rec := s.do(t, http.MethodGet, "/api/v1/routes?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListRoutesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Limit)
	assert.Len(t, resp.Routes, 2)

	rec = s.do(t, http.MethodGet, "/api/v1/routes?offset=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRouteInvalidID(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/routes/42", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestAddressSearch(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/address-search?address=abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/address-search?address=Marunouchi", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "Marunouchi"))

	s.geo.fail = true
	rec = s.do(t, http.MethodGet, "/api/v1/address-search?address=Marunouchi", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
