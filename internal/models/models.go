package models

import (
	"math"
	"time"
)

// Location represents a geographic point (WGS84, decimal degrees)
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RouteShape describes how a candidate closes the loop
type RouteShape string

const (
	ShapeOutAndBack RouteShape = "out_and_back" // Start → turnaround → same path back
	ShapeLoop       RouteShape = "loop"         // Start → waypoints → start
)

// Segment is an oracle-resolved hop between two locations.
// DurationSecs is what the oracle reported (or the pace estimate on fallback)
// and is never used for scoring.
type Segment struct {
	From         Location   `json:"from"`
	To           Location   `json:"to"`
	DistanceKm   float64    `json:"distance_km"`
	DurationSecs float64    `json:"duration_secs"`
	Path         []Location `json:"path"`
	FallbackUsed bool       `json:"fallback_used"`
}

// SearchConstraints is computed once per optimization call and read-only afterwards
type SearchConstraints struct {
	StartLocation     Location `json:"start_location"`
	RequestedMinutes  float64  `json:"requested_minutes"`
	LowerBoundMinutes float64  `json:"lower_bound_minutes"`
	UpperBoundMinutes float64  `json:"upper_bound_minutes"`
	PaceMinutesPerKm  float64  `json:"pace_minutes_per_km"`
}

// NewSearchConstraints derives the duration window from the requested duration
func NewSearchConstraints(start Location, requestedMinutes, toleranceMinutes, pace float64) SearchConstraints {
	return SearchConstraints{
		StartLocation:     start,
		RequestedMinutes:  requestedMinutes,
		LowerBoundMinutes: math.Max(0, requestedMinutes-toleranceMinutes),
		UpperBoundMinutes: requestedMinutes,
		PaceMinutesPerKm:  pace,
	}
}

// TargetMinutes is the midpoint of the accepted window
func (c SearchConstraints) TargetMinutes() float64 {
	return (c.LowerBoundMinutes + c.UpperBoundMinutes) / 2
}

// TargetDistanceKm is the total distance that covers TargetMinutes at the configured pace
func (c SearchConstraints) TargetDistanceKm() float64 {
	return c.TargetMinutes() / c.PaceMinutesPerKm
}

// WithinWindow reports whether a duration falls inside [lower, upper]
func (c SearchConstraints) WithinWindow(minutes float64) bool {
	return minutes >= c.LowerBoundMinutes && minutes <= c.UpperBoundMinutes
}

// Candidate is one fully resolved trial route considered during the search
type Candidate struct {
	Index                    int        `json:"index"`
	Shape                    RouteShape `json:"shape"`
	Bearing                  float64    `json:"bearing"`
	Scale                    float64    `json:"scale"`
	Waypoints                []Location `json:"waypoints"`
	Segments                 []Segment  `json:"segments"`
	Path                     []Location `json:"path"`
	TotalDistanceKm          float64    `json:"total_distance_km"`
	EstimatedDurationMinutes float64    `json:"estimated_duration_minutes"`
	SelfOverlapRatio         float64    `json:"self_overlap_ratio"`
	SharpTurnCount           int        `json:"sharp_turn_count"`
	FallbackUsed             bool       `json:"fallback_used"`
	Score                    float64    `json:"score"`
}

// OptimizedRoute is the engine's output; the caller owns it once returned
type OptimizedRoute struct {
	StartLocation            Location   `json:"start_location"`
	Waypoints                []Location `json:"waypoints"`
	Path                     []Location `json:"path"`
	TotalDistanceKm          float64    `json:"total_distance_km"`
	EstimatedDurationMinutes float64    `json:"estimated_duration_minutes"`
	Shape                    RouteShape `json:"shape"`
	FallbackUsed             bool       `json:"fallback_used"`
	Score                    float64    `json:"score"`
}

// SavedRoute is an optimized route persisted by the service
type SavedRoute struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	RequestedMinutes float64        `json:"requested_minutes"`
	PaceMinutesPerKm float64        `json:"pace_minutes_per_km"`
	Route            OptimizedRoute `json:"route"`
	CreatedAt        time.Time      `json:"created_at"`
}
