package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/models"
)

// PathResult is a routed path through an ordered list of points
type PathResult struct {
	DistanceKm   float64
	DurationSecs float64
	Path         []models.Location
	FallbackUsed bool
}

// Oracle resolves walking/running routes through the external routing service
type Oracle interface {
	PointToPoint(ctx context.Context, from, to models.Location) (*models.Segment, error)
	MultiPointPath(ctx context.Context, waypoints []models.Location) (*PathResult, error)
}

// ErrOracleUnavailable describes a single failed oracle call. The client
// recovers from it with a straight-line estimate unless fallback is disabled.
type ErrOracleUnavailable struct {
	Op         string
	StatusCode int
	Reason     string
}

func (e *ErrOracleUnavailable) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("routing oracle unavailable (%s): HTTP %d: %s", e.Op, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("routing oracle unavailable (%s): %s", e.Op, e.Reason)
}

const (
	DefaultBaseURL      = "https://router.project-osrm.org"
	DefaultProfile      = "foot"
	DefaultTimeout      = 8 * time.Second
	DefaultFallbackPace = 6.0
	DefaultUserAgent    = "RoundTripRouter/1.0"

	// MaxCoordinates is the most points accepted in one multi-point request
	MaxCoordinates = 25
)

// Config configures the OSRM-backed oracle. Zero values take the defaults above.
type Config struct {
	BaseURL              string
	Profile              string
	Timeout              time.Duration
	FallbackPaceMinPerKm float64
	DisableFallback      bool
	UserAgent            string
	HTTPClient           *http.Client
}

type osrmClient struct {
	baseURL         string
	profile         string
	timeout         time.Duration
	fallbackPace    float64
	disableFallback bool
	userAgent       string
	httpClient      *http.Client
}

type osrmRouteResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64       `json:"distance"`
	Duration float64       `json:"duration"`
	Geometry *osrmGeometry `json:"geometry"`
}

type osrmGeometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

// NewOSRMClient creates an oracle backed by an OSRM-compatible /route service
func NewOSRMClient(cfg Config) Oracle {
	c := &osrmClient{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		profile:         cfg.Profile,
		timeout:         cfg.Timeout,
		fallbackPace:    cfg.FallbackPaceMinPerKm,
		disableFallback: cfg.DisableFallback,
		userAgent:       cfg.UserAgent,
		httpClient:      cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.profile == "" {
		c.profile = DefaultProfile
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.fallbackPace <= 0 {
		c.fallbackPace = DefaultFallbackPace
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.httpClient == nil {
		// Per-call deadlines come from the request context
		c.httpClient = &http.Client{}
	}
	return c
}

func (c *osrmClient) PointToPoint(ctx context.Context, from, to models.Location) (*models.Segment, error) {
	if from == to {
		return &models.Segment{From: from, To: to, Path: []models.Location{from}}, nil
	}

	route, err := c.fetchRoute(ctx, "point_to_point", []models.Location{from, to})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if c.disableFallback {
			return nil, err
		}
		log.Printf("[ORACLE] Falling back to straight line: op=point_to_point from=(%.6f,%.6f) to=(%.6f,%.6f) err=%v",
			from.Lat, from.Lng, to.Lat, to.Lng, err)
		return c.straightSegment(from, to), nil
	}

	path := decodePath(route.Geometry)
	if len(path) < 2 {
		path = []models.Location{from, to}
	}

	return &models.Segment{
		From:         from,
		To:           to,
		DistanceKm:   route.Distance / geo.MetersPerKilometer,
		DurationSecs: route.Duration,
		Path:         path,
	}, nil
}

func (c *osrmClient) MultiPointPath(ctx context.Context, waypoints []models.Location) (*PathResult, error) {
	if len(waypoints) < 2 {
		return nil, fmt.Errorf("multi-point path needs at least 2 points, got %d", len(waypoints))
	}
	if len(waypoints) > MaxCoordinates {
		return nil, fmt.Errorf("multi-point path accepts at most %d points, got %d", MaxCoordinates, len(waypoints))
	}

	route, err := c.fetchRoute(ctx, "multi_point", waypoints)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if c.disableFallback {
			return nil, err
		}
		log.Printf("[ORACLE] Falling back to straight segments: op=multi_point points=%d err=%v", len(waypoints), err)
		return c.straightPath(waypoints), nil
	}

	path := decodePath(route.Geometry)
	if len(path) < 2 {
		path = append([]models.Location(nil), waypoints...)
	}

	return &PathResult{
		DistanceKm:   route.Distance / geo.MetersPerKilometer,
		DurationSecs: route.Duration,
		Path:         path,
	}, nil
}

// fetchRoute performs one bounded /route request. Every failure mode is
// reported as *ErrOracleUnavailable so callers can apply the fallback.
func (c *osrmClient) fetchRoute(ctx context.Context, op string, points []models.Location) (*osrmRoute, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	coords := make([]string, len(points))
	for i, p := range points {
		coords[i] = fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat)
	}
	queryURL := fmt.Sprintf("%s/route/v1/%s/%s?overview=full&geometries=geojson",
		c.baseURL, c.profile, strings.Join(coords, ";"))

	start := time.Now()
	log.Printf("[OSRM] Route request: op=%s points=%d", op, len(points))

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, &ErrOracleUnavailable{Op: op, Reason: err.Error()}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %v", c.timeout)
		}
		log.Printf("[ERROR] OSRM request failed: op=%s points=%d err=%v", op, len(points), err)
		return nil, &ErrOracleUnavailable{Op: op, Reason: reason}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("[ERROR] OSRM API error: op=%s status=%d body=%s", op, resp.StatusCode, string(body))
		return nil, &ErrOracleUnavailable{Op: op, StatusCode: resp.StatusCode, Reason: strings.TrimSpace(string(body))}
	}

	var osrmResp osrmRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&osrmResp); err != nil {
		log.Printf("[ERROR] Failed to decode OSRM response: op=%s err=%v", op, err)
		return nil, &ErrOracleUnavailable{Op: op, Reason: fmt.Sprintf("malformed response: %v", err)}
	}

	if osrmResp.Code != "" && osrmResp.Code != "Ok" {
		log.Printf("[ERROR] OSRM returned error code: op=%s code=%s message=%s", op, osrmResp.Code, osrmResp.Message)
		return nil, &ErrOracleUnavailable{Op: op, Reason: fmt.Sprintf("OSRM error: %s", osrmResp.Code)}
	}

	if len(osrmResp.Routes) == 0 {
		return nil, &ErrOracleUnavailable{Op: op, Reason: "no routes returned"}
	}

	route := osrmResp.Routes[0]
	if math.IsNaN(route.Distance) || math.IsInf(route.Distance, 0) || route.Distance < 0 {
		return nil, &ErrOracleUnavailable{Op: op, Reason: fmt.Sprintf("invalid distance %v", route.Distance)}
	}
	if route.Geometry != nil {
		for _, coord := range route.Geometry.Coordinates {
			if len(coord) < 2 {
				return nil, &ErrOracleUnavailable{Op: op, Reason: "malformed geometry coordinate"}
			}
		}
	}

	log.Printf("[OSRM] Route response: op=%s distance=%.0fm duration=%.0fs took=%v",
		op, route.Distance, route.Duration, time.Since(start))
	return &route, nil
}

func (c *osrmClient) straightSegment(from, to models.Location) *models.Segment {
	distKm := geo.Distance(from, to)
	return &models.Segment{
		From:         from,
		To:           to,
		DistanceKm:   distKm,
		DurationSecs: distKm * c.fallbackPace * 60,
		Path:         []models.Location{from, to},
		FallbackUsed: true,
	}
}

func (c *osrmClient) straightPath(waypoints []models.Location) *PathResult {
	distKm := geo.PathLength(waypoints)
	return &PathResult{
		DistanceKm:   distKm,
		DurationSecs: distKm * c.fallbackPace * 60,
		Path:         append([]models.Location(nil), waypoints...),
		FallbackUsed: true,
	}
}

// decodePath converts GeoJSON [lng, lat] pairs into locations
func decodePath(g *osrmGeometry) []models.Location {
	if g == nil {
		return nil
	}
	path := make([]models.Location, 0, len(g.Coordinates))
	for _, coord := range g.Coordinates {
		path = append(path, models.Location{Lat: coord[1], Lng: coord[0]})
	}
	return path
}
