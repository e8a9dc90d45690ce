package database

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"roundtrip-router/internal/models"
)

// MaxListLimit caps a single page of saved routes
const MaxListLimit = 100

// PrepareRoute fills in the ID and creation time of a route about to be saved
// and returns the encoded route body. The input is not modified.
func PrepareRoute(r *models.SavedRoute, now time.Time) (*models.SavedRoute, []byte, error) {
	if r == nil {
		return nil, nil, fmt.Errorf("saved route is nil")
	}

	saved := *r
	if saved.ID == "" {
		saved.ID = uuid.NewString()
	} else if _, err := uuid.Parse(saved.ID); err != nil {
		return nil, nil, fmt.Errorf("invalid route id %q: %w", saved.ID, err)
	}
	saved.Name = strings.TrimSpace(saved.Name)
	if saved.Name == "" {
		saved.Name = DefaultRouteName(saved.RequestedMinutes, saved.Route.Shape)
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = now.UTC()
	}

	body, err := json.Marshal(saved.Route)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode route: %w", err)
	}
	return &saved, body, nil
}

// DecodeRoute restores the route body stored by PrepareRoute
func DecodeRoute(body []byte, into *models.SavedRoute) error {
	if err := json.Unmarshal(body, &into.Route); err != nil {
		return fmt.Errorf("failed to decode route %s: %w", into.ID, err)
	}
	return nil
}

// DefaultRouteName labels an unnamed route by its duration and shape
func DefaultRouteName(minutes float64, shape models.RouteShape) string {
	label := "loop"
	if shape == models.ShapeOutAndBack {
		label = "out-and-back"
	}
	return fmt.Sprintf("%.0f min %s", minutes, label)
}

// ClampPage normalizes list pagination
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ValidID reports whether id could name a saved route
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
