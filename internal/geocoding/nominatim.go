package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/models"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "RoundTripRouter/1.0"
	// Nominatim's usage policy allows one request per second
	DefaultInterval = time.Second
)

// GeocodingResult contains the result of a geocoding operation
type GeocodingResult struct {
	Location    models.Location `json:"location"`
	DisplayName string          `json:"display_name"`
}

// Geocoder resolves free-form addresses to start locations
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeocodingResult, error)
	GeocodeWithRetry(ctx context.Context, address string, maxRetries int) (*GeocodingResult, error)
	Search(ctx context.Context, query string, limit int) ([]GeocodingResult, error)
	// Close releases the rate limiter; later lookups fail
	Close() error
}

// ErrGeocodingFailed is returned when an address cannot be geocoded
type ErrGeocodingFailed struct {
	Address string
	Reason  string
}

func (e *ErrGeocodingFailed) Error() string {
	return fmt.Sprintf("geocoding failed for address: %s - %s", e.Address, e.Reason)
}

// Config configures the Nominatim client
type Config struct {
	BaseURL    string
	UserAgent  string
	Interval   time.Duration
	HTTPClient *http.Client
}

type nominatimGeocoder struct {
	baseURL      string
	userAgent    string
	httpClient   *http.Client
	rateLimiter  *time.Ticker
	retryBackoff time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

type nominatimResponse struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewNominatimGeocoder creates a rate limited Nominatim client
func NewNominatimGeocoder(cfg Config) Geocoder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &nominatimGeocoder{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		httpClient:   cfg.HTTPClient,
		rateLimiter:  time.NewTicker(cfg.Interval),
		retryBackoff: time.Second,
		closed:       make(chan struct{}),
	}
}

func (g *nominatimGeocoder) Close() error {
	g.closeOnce.Do(func() {
		g.rateLimiter.Stop()
		close(g.closed)
	})
	return nil
}

func (g *nominatimGeocoder) Geocode(ctx context.Context, address string) (*GeocodingResult, error) {
	if strings.TrimSpace(address) == "" {
		return nil, &ErrGeocodingFailed{Address: address, Reason: "address is empty"}
	}

	results, err := g.search(ctx, address, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		log.Printf("[ERROR] No geocoding results found: address=%s", address)
		return nil, &ErrGeocodingFailed{Address: address, Reason: "no results found"}
	}

	result := results[0]
	log.Printf("[GEOCODING] Response: address=%s lat=%.6f lng=%.6f display_name=%s",
		address, result.Location.Lat, result.Location.Lng, result.DisplayName)
	return &result, nil
}

func (g *nominatimGeocoder) GeocodeWithRetry(ctx context.Context, address string, maxRetries int) (*GeocodingResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err := g.Geocode(ctx, address)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * g.retryBackoff
			log.Printf("[GEOCODING] Retry %d/%d: address=%s backoff=%v err=%v", attempt+1, maxRetries, address, backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if lastErr == nil {
		lastErr = &ErrGeocodingFailed{Address: address, Reason: "no attempts made"}
	}
	return nil, lastErr
}

func (g *nominatimGeocoder) Search(ctx context.Context, query string, limit int) ([]GeocodingResult, error) {
	if limit <= 0 {
		limit = 5
	}
	results, err := g.search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	log.Printf("[GEOCODING] Search response: query=%s results_count=%d", query, len(results))
	return results, nil
}

func (g *nominatimGeocoder) search(ctx context.Context, query string, limit int) ([]GeocodingResult, error) {
	select {
	case <-g.closed:
		return nil, &ErrGeocodingFailed{Address: query, Reason: "geocoder is closed"}
	default:
	}
	select {
	case <-g.rateLimiter.C:
	case <-g.closed:
		return nil, &ErrGeocodingFailed{Address: query, Reason: "geocoder is closed"}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(limit))
	queryURL := g.baseURL + "/search?" + params.Encode()
	log.Printf("[GEOCODING] Request: query=%s limit=%d", query, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, &ErrGeocodingFailed{Address: query, Reason: err.Error()}
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Printf("[ERROR] Geocoding API request failed: query=%s err=%v", query, err)
		return nil, &ErrGeocodingFailed{Address: query, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("[ERROR] Geocoding API error: query=%s status=%d body=%s", query, resp.StatusCode, string(body))
		return nil, &ErrGeocodingFailed{
			Address: query,
			Reason:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	var raw []nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		log.Printf("[ERROR] Failed to decode geocoding response: query=%s err=%v", query, err)
		return nil, &ErrGeocodingFailed{Address: query, Reason: err.Error()}
	}

	results := make([]GeocodingResult, 0, len(raw))
	for _, r := range raw {
		loc, err := r.location()
		if err != nil {
			log.Printf("[ERROR] Skipping geocoding result: query=%s lat=%s lon=%s err=%v", query, r.Lat, r.Lon, err)
			continue
		}
		results = append(results, GeocodingResult{Location: loc, DisplayName: r.DisplayName})
	}
	return results, nil
}

func (r nominatimResponse) location() (models.Location, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("invalid longitude: %w", err)
	}
	loc := models.Location{Lat: lat, Lng: lng}
	if !geo.ValidLocation(loc) {
		return models.Location{}, fmt.Errorf("coordinates out of range")
	}
	return loc, nil
}
