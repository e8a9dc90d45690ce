package routing

import (
	"fmt"
	"math"

	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/models"
)

// DurationConsistencyMinutes is the allowed drift between the reported
// duration and distance × pace before a warning is raised
const DurationConsistencyMinutes = 0.5

// ValidationResult contains the validation outcome for a route
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks that a route is closed at the start and that its duration
// falls inside the constraint window. Warnings never invalidate a route.
func Validate(route *models.OptimizedRoute, c models.SearchConstraints) ValidationResult {
	result := ValidationResult{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
	}
	fail := func(format string, args ...any) {
		result.IsValid = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	if route == nil {
		fail("route is missing")
		return result
	}

	if len(route.Path) == 0 {
		fail("route path is empty")
	} else {
		if d := geo.DistanceMeters(route.Path[0], c.StartLocation); d > ClosureToleranceMeters {
			fail("route does not begin at the start location (%.1fm away)", d)
		}
		if d := geo.DistanceMeters(route.Path[len(route.Path)-1], c.StartLocation); d > ClosureToleranceMeters {
			fail("route does not return to the start location (%.1fm away)", d)
		}
		if len(route.Path) < 2 {
			result.Warnings = append(result.Warnings, "route path has fewer than two points")
		}
	}

	if !finite(route.TotalDistanceKm) || route.TotalDistanceKm <= 0 {
		fail("route distance must be positive")
	}

	if !c.WithinWindow(route.EstimatedDurationMinutes) {
		fail("estimated duration %.2f min is outside [%.2f, %.2f]",
			route.EstimatedDurationMinutes, c.LowerBoundMinutes, c.UpperBoundMinutes)
	}

	if expected := route.TotalDistanceKm * c.PaceMinutesPerKm; math.Abs(route.EstimatedDurationMinutes-expected) > DurationConsistencyMinutes {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("estimated duration %.2f min differs from distance × pace (%.2f min)", route.EstimatedDurationMinutes, expected))
	}

	if route.FallbackUsed {
		result.Warnings = append(result.Warnings, "routing service was unavailable; distances are straight-line estimates")
	}

	return result
}
