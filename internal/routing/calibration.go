package routing

import (
	"math"
	"slices"

	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/models"
)

// Detour ratio bounds
const (
	MinDetourRatio = 0.5
	MaxDetourRatio = 3.0
)

// Calibration tracks routed distance ÷ straight-line plan for resolved
// candidates. Road paths run longer than the polygon a stub is planned on, so
// later stubs are placed at target ÷ ratio.
type Calibration struct {
	start  models.Location
	shapes map[models.RouteShape][]float64
	all    []float64
}

// NewCalibration starts with no observations; Ratio is 1 until Observe is called
func NewCalibration(start models.Location) *Calibration {
	return &Calibration{start: start, shapes: make(map[models.RouteShape][]float64)}
}

// Observe records one resolved candidate
func (c *Calibration) Observe(cand *models.Candidate) {
	if cand == nil || len(cand.Waypoints) == 0 {
		return
	}
	plan := make([]models.Location, 0, len(cand.Waypoints)+2)
	plan = append(plan, c.start)
	plan = append(plan, cand.Waypoints...)
	plan = append(plan, c.start)

	plannedKm := geo.PathLength(plan)
	if !finite(plannedKm) || plannedKm <= 0 || !finite(cand.TotalDistanceKm) || cand.TotalDistanceKm <= 0 {
		return
	}
	ratio := cand.TotalDistanceKm / plannedKm
	c.shapes[cand.Shape] = append(c.shapes[cand.Shape], ratio)
	c.all = append(c.all, ratio)
}

// Samples returns the number of recorded observations
func (c *Calibration) Samples() int {
	return len(c.all)
}

// Ratio returns the median ratio seen for shape. Shapes without observations
// borrow the median over every shape.
func (c *Calibration) Ratio(shape models.RouteShape) float64 {
	samples := c.shapes[shape]
	if len(samples) == 0 {
		samples = c.all
	}
	if len(samples) == 0 {
		return 1
	}
	return math.Min(MaxDetourRatio, math.Max(MinDetourRatio, median(samples)))
}

func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// halfWindowFraction is half the acceptance window relative to the target
// duration: a placement off by more than this misses the window at scale 1.
func halfWindowFraction(c models.SearchConstraints) float64 {
	target := c.TargetMinutes()
	if target <= 0 {
		return 0
	}
	return (c.UpperBoundMinutes - c.LowerBoundMinutes) / 2 / target
}

// drifted reports whether a ratio change moves placements out of the window
func drifted(from, to, halfWindow float64) bool {
	return math.Abs(to/from-1) > halfWindow
}
