package routing

import (
	"math"

	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/models"
)

// Request limits
const (
	MinRequestedMinutes = 1.0
	MaxRequestedMinutes = 300.0
	MaxPaceMinutesPerKm = 60.0
	MaxAcceptCap        = 50
	MaxFanOut           = 16
)

// Weights are the ranking coefficients; time closeness dominates by default
type Weights struct {
	Time    float64 `json:"time"`
	Overlap float64 `json:"overlap"`
	Turns   float64 `json:"turns"`
}

// Options configures one optimization call
type Options struct {
	PaceMinutesPerKm float64     `json:"pace_minutes_per_km"`
	ToleranceMinutes float64     `json:"tolerance_minutes"`
	AcceptCap        int         `json:"accept_cap"`
	FanOut           int         `json:"fan_out"`
	Sweep            SweepPolicy `json:"sweep"`
	Weights          Weights     `json:"weights"`
}

// DefaultOptions returns the documented defaults:
// 6 min/km, a 2 minute window, 10 accepted candidates, 4 evaluations in flight.
func DefaultOptions() Options {
	return Options{
		PaceMinutesPerKm: 6,
		ToleranceMinutes: 2,
		AcceptCap:        10,
		FanOut:           4,
		Sweep:            DefaultSweepPolicy(),
		Weights: Weights{
			Time:    10,
			Overlap: 1,
			Turns:   0.5,
		},
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks the options independently of any request
func (o Options) Validate() error {
	if !finite(o.PaceMinutesPerKm) || o.PaceMinutesPerKm <= 0 || o.PaceMinutesPerKm > MaxPaceMinutesPerKm {
		return &ErrInvalidInput{Field: "pace_minutes_per_km", Reason: "must be in (0, 60]"}
	}
	if !finite(o.ToleranceMinutes) || o.ToleranceMinutes <= 0 {
		return &ErrInvalidInput{Field: "tolerance_minutes", Reason: "must be positive"}
	}
	if o.AcceptCap < 1 || o.AcceptCap > MaxAcceptCap {
		return &ErrInvalidInput{Field: "accept_cap", Reason: "must be between 1 and 50"}
	}
	if o.FanOut < 1 || o.FanOut > MaxFanOut {
		return &ErrInvalidInput{Field: "fan_out", Reason: "must be between 1 and 16"}
	}
	if !finite(o.Weights.Time) || !finite(o.Weights.Overlap) || !finite(o.Weights.Turns) ||
		o.Weights.Time < 0 || o.Weights.Overlap < 0 || o.Weights.Turns < 0 {
		return &ErrInvalidInput{Field: "weights", Reason: "must be finite and non-negative"}
	}
	return o.Sweep.Validate()
}

func validateRequest(start models.Location, requestedMinutes float64, opts Options) error {
	if !geo.ValidLocation(start) {
		return &ErrInvalidInput{Field: "start_location", Reason: "coordinates must be finite with lat in [-90, 90] and lng in [-180, 180]"}
	}
	if !finite(requestedMinutes) || requestedMinutes < MinRequestedMinutes || requestedMinutes > MaxRequestedMinutes {
		return &ErrInvalidInput{Field: "requested_minutes", Reason: "must be between 1 and 300"}
	}
	return opts.Validate()
}
