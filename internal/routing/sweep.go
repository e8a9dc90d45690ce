package routing

import (
	"math"

	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/models"
)

// Loop waypoint count limits
const (
	MinLoopWaypoints = 2
	MaxLoopWaypoints = 8
)

// SweepPolicy is the single search strategy: bearings × scales × shapes.
// Generation order is fixed so identical inputs yield identical stubs.
// MaxAttempts caps evaluations, including rings rerun after recalibration.
type SweepPolicy struct {
	Bearings          []float64 `json:"bearings"`
	Scales            []float64 `json:"scales"`
	WaypointCounts    []int     `json:"waypoint_counts"`
	IncludeOutAndBack bool      `json:"include_out_and_back"`
	MaxAttempts       int       `json:"max_attempts"` // 0 = no cap
}

// Stub is an unevaluated candidate: waypoints only
type Stub struct {
	Index     int
	Shape     models.RouteShape
	Bearing   float64
	Scale     float64
	Waypoints []models.Location

	count int // waypoints to place
}

// DefaultSweepPolicy returns 8 compass bearings, scales ordered by closeness
// to the nominal distance, out-and-back plus 3/4/6 waypoint loops.
func DefaultSweepPolicy() SweepPolicy {
	return SweepPolicy{
		Bearings:          EvenBearings(8),
		Scales:            []float64{1.0, 0.95, 1.05, 0.9, 1.1, 0.85, 1.15, 0.8, 1.2},
		WaypointCounts:    []int{3, 4, 6},
		IncludeOutAndBack: true,
		MaxAttempts:       300,
	}
}

// EvenBearings returns n evenly spaced bearings starting at north
func EvenBearings(n int) []float64 {
	bearings := make([]float64, n)
	for i := range bearings {
		bearings[i] = float64(i) * 360 / float64(n)
	}
	return bearings
}

// Validate rejects policies that cannot produce a meaningful sweep
func (p SweepPolicy) Validate() error {
	if len(p.Bearings) == 0 {
		return &ErrInvalidInput{Field: "sweep.bearings", Reason: "at least one bearing is required"}
	}
	for _, b := range p.Bearings {
		if !finite(b) {
			return &ErrInvalidInput{Field: "sweep.bearings", Reason: "bearings must be finite"}
		}
	}
	if len(p.Scales) == 0 {
		return &ErrInvalidInput{Field: "sweep.scales", Reason: "at least one scale is required"}
	}
	for _, s := range p.Scales {
		if !finite(s) || s <= 0 {
			return &ErrInvalidInput{Field: "sweep.scales", Reason: "scales must be positive"}
		}
	}
	for _, n := range p.WaypointCounts {
		if n < MinLoopWaypoints || n > MaxLoopWaypoints {
			return &ErrInvalidInput{Field: "sweep.waypoint_counts", Reason: "loop waypoint counts must be between 2 and 8"}
		}
	}
	if !p.IncludeOutAndBack && len(p.WaypointCounts) == 0 {
		return &ErrInvalidInput{Field: "sweep", Reason: "no route shape enabled"}
	}
	if p.MaxAttempts < 0 {
		return &ErrInvalidInput{Field: "sweep.max_attempts", Reason: "must not be negative"}
	}
	return nil
}

// Size returns how many stubs Generate will produce
func (p SweepPolicy) Size() int {
	n := p.gridSize()
	if p.MaxAttempts > 0 && n > p.MaxAttempts {
		return p.MaxAttempts
	}
	return n
}

func (p SweepPolicy) gridSize() int {
	shapes := len(p.WaypointCounts)
	if p.IncludeOutAndBack {
		shapes++
	}
	return shapes * len(p.Scales) * len(p.Bearings)
}

// grid lists every stub in sweep order, without waypoints and without the
// MaxAttempts cap. Each run of len(Bearings) stubs shares shape and scale.
func (p SweepPolicy) grid() []Stub {
	stubs := make([]Stub, 0, p.gridSize())
	add := func(shape models.RouteShape, count int) {
		for _, scale := range p.Scales {
			for _, bearing := range p.Bearings {
				stubs = append(stubs, Stub{
					Index:   len(stubs),
					Shape:   shape,
					Bearing: bearing,
					Scale:   scale,
					count:   count,
				})
			}
		}
	}

	if p.IncludeOutAndBack {
		add(models.ShapeOutAndBack, 1)
	}
	for _, n := range p.WaypointCounts {
		add(models.ShapeLoop, n)
	}
	return stubs
}

// Place computes the stub's waypoints so that a routed path running detour
// times its straight-line plan covers TargetDistanceKm × Scale.
func Place(c models.SearchConstraints, s Stub, detour float64) Stub {
	if !finite(detour) || detour <= 0 {
		detour = 1
	}
	plannedKm := c.TargetDistanceKm() * s.Scale / detour

	if s.Shape == models.ShapeOutAndBack {
		s.Waypoints = []models.Location{geo.Project(c.StartLocation, s.Bearing, plannedKm/2)}
	} else {
		s.Waypoints = loopWaypoints(c.StartLocation, s.Bearing, plannedKm, s.count)
	}
	return s
}

// Generate produces the uncalibrated waypoint stubs for a search, in sweep
// order: shape (out-and-back first, then loops by waypoint count), scale,
// bearing. Truncated to MaxAttempts.
func Generate(c models.SearchConstraints, p SweepPolicy) []Stub {
	stubs := p.grid()
	if p.MaxAttempts > 0 && len(stubs) > p.MaxAttempts {
		stubs = stubs[:p.MaxAttempts]
	}
	for i := range stubs {
		stubs[i] = Place(c, stubs[i], 1)
	}
	return stubs
}

// loopWaypoints places n waypoints on a circle through start so that the
// polygon start → w1 … wn → start has the requested perimeter. The circle's
// centre lies along bearing from start.
func loopWaypoints(start models.Location, bearing, perimeterKm float64, n int) []models.Location {
	vertices := float64(n + 1)
	radius := perimeterKm / (2 * vertices * math.Sin(math.Pi/vertices))
	centre := geo.Project(start, bearing, radius)

	waypoints := make([]models.Location, n)
	for k := 1; k <= n; k++ {
		angle := bearing + 180 + float64(k)*360/vertices
		waypoints[k-1] = geo.Project(centre, angle, radius)
	}
	return waypoints
}
