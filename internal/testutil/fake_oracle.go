package testutil

import (
	"context"
	"sync"
	"time"

	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/models"
	"roundtrip-router/internal/oracle"
)

// OracleCall tracks a call to the fake oracle
type OracleCall struct {
	Op     string
	Points []models.Location
}

// FakeOracle is a deterministic oracle.Oracle for tests.
// Routed distance is the straight-line distance times DetourFactor, and the
// path is the straight polyline densified with IntermediatePoints per hop.
type FakeOracle struct {
	DetourFactor       float64
	IntermediatePoints int
	FallbackPace       float64

	// FixedDistanceKm, when set, overrides every routed distance
	FixedDistanceKm float64

	// AlwaysFail makes every call fail; with fallback enabled this behaves like
	// the HTTP client's straight-line fallback
	AlwaysFail      bool
	DisableFallback bool

	// Block makes every call wait for context cancellation
	Block bool

	// Delay is added to every call unless the context ends first
	Delay time.Duration

	mu    sync.Mutex
	calls []OracleCall
}

// NewFakeOracle returns a fake that routes along straight lines
func NewFakeOracle() *FakeOracle {
	return &FakeOracle{
		DetourFactor:       1.0,
		IntermediatePoints: 3,
		FallbackPace:       6,
	}
}

func (f *FakeOracle) record(op string, points []models.Location) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, OracleCall{Op: op, Points: append([]models.Location(nil), points...)})
}

// Calls returns a copy of the recorded calls
func (f *FakeOracle) Calls() []OracleCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]OracleCall(nil), f.calls...)
}

// CallCount returns the number of recorded calls
func (f *FakeOracle) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// ResetCalls clears the recorded calls
func (f *FakeOracle) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeOracle) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *FakeOracle) PointToPoint(ctx context.Context, from, to models.Location) (*models.Segment, error) {
	f.record("point_to_point", []models.Location{from, to})
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	if f.AlwaysFail {
		if f.DisableFallback {
			return nil, &oracle.ErrOracleUnavailable{Op: "point_to_point", Reason: "fake failure"}
		}
		d := geo.Distance(from, to)
		return &models.Segment{
			From: from, To: to,
			DistanceKm:   d,
			DurationSecs: d * f.FallbackPace * 60,
			Path:         []models.Location{from, to},
			FallbackUsed: true,
		}, nil
	}

	d := f.routedDistance([]models.Location{from, to})
	return &models.Segment{
		From:         from,
		To:           to,
		DistanceKm:   d,
		DurationSecs: d / 12 * 3600, // oracle assumes 12 km/h regardless of caller pace
		Path:         f.densify([]models.Location{from, to}),
	}, nil
}

func (f *FakeOracle) MultiPointPath(ctx context.Context, waypoints []models.Location) (*oracle.PathResult, error) {
	f.record("multi_point", waypoints)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	if f.AlwaysFail {
		if f.DisableFallback {
			return nil, &oracle.ErrOracleUnavailable{Op: "multi_point", Reason: "fake failure"}
		}
		d := geo.PathLength(waypoints)
		return &oracle.PathResult{
			DistanceKm:   d,
			DurationSecs: d * f.FallbackPace * 60,
			Path:         append([]models.Location(nil), waypoints...),
			FallbackUsed: true,
		}, nil
	}

	d := f.routedDistance(waypoints)
	return &oracle.PathResult{
		DistanceKm:   d,
		DurationSecs: d / 12 * 3600,
		Path:         f.densify(waypoints),
	}, nil
}

func (f *FakeOracle) routedDistance(points []models.Location) float64 {
	if f.FixedDistanceKm > 0 {
		return f.FixedDistanceKm
	}
	return geo.PathLength(points) * f.DetourFactor
}

// densify inserts evenly spaced points between consecutive locations
func (f *FakeOracle) densify(points []models.Location) []models.Location {
	if len(points) == 0 {
		return nil
	}
	path := []models.Location{points[0]}
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		n := f.IntermediatePoints + 1
		for k := 1; k <= n; k++ {
			frac := float64(k) / float64(n)
			path = append(path, models.Location{
				Lat: a.Lat + (b.Lat-a.Lat)*frac,
				Lng: a.Lng + (b.Lng-a.Lng)*frac,
			})
		}
	}
	return path
}

var _ oracle.Oracle = (*FakeOracle)(nil)
