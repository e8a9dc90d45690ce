package routing

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/samber/lo"

	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/models"
	"roundtrip-router/internal/oracle"
)

// ClosureToleranceMeters is how far a path end may sit from the start before
// the start is spliced in explicitly
const ClosureToleranceMeters = 1.0

// Evaluator turns stubs into fully measured candidates using the oracle
type Evaluator struct {
	oracle oracle.Oracle
}

// NewEvaluator creates an evaluator backed by the given oracle
func NewEvaluator(o oracle.Oracle) *Evaluator {
	return &Evaluator{oracle: o}
}

// Evaluate resolves a stub's legs, builds its closed path and measures it.
// The estimated duration always uses the caller's pace, never the oracle's
// own duration. A context error is returned unwrapped.
func (e *Evaluator) Evaluate(ctx context.Context, c models.SearchConstraints, stub Stub) (*models.Candidate, error) {
	var (
		cand *models.Candidate
		err  error
	)
	switch stub.Shape {
	case models.ShapeOutAndBack:
		cand, err = e.evaluateOutAndBack(ctx, c, stub)
	case models.ShapeLoop:
		cand, err = e.evaluateLoop(ctx, c, stub)
	default:
		return nil, fmt.Errorf("unknown route shape %q", stub.Shape)
	}
	if err != nil {
		return nil, err
	}

	cand.EstimatedDurationMinutes = cand.TotalDistanceKm * c.PaceMinutesPerKm
	cand.SharpTurnCount = SharpTurnCount(cand.Path, SharpTurnDegrees)
	if stub.Shape == models.ShapeOutAndBack {
		cand.SelfOverlapRatio = 1
	} else {
		cand.SelfOverlapRatio = SelfOverlapRatio(cand.Path)
	}
	return cand, nil
}

func (e *Evaluator) evaluateOutAndBack(ctx context.Context, c models.SearchConstraints, stub Stub) (*models.Candidate, error) {
	start := c.StartLocation
	turnaround := stub.Waypoints[0]

	seg, err := e.oracle.PointToPoint(ctx, start, turnaround)
	if err != nil {
		return nil, legError(ctx, stub, err)
	}
	if err := checkDistance(stub, seg.DistanceKm); err != nil {
		return nil, err
	}

	outbound := closePath(start, seg.Path, false)
	inbound := lo.Reverse(slices.Clone(outbound))
	path := append(slices.Clone(outbound), inbound[1:]...)

	back := *seg
	back.From, back.To = seg.To, seg.From
	back.Path = lo.Reverse(slices.Clone(seg.Path))

	return &models.Candidate{
		Index:           stub.Index,
		Shape:           stub.Shape,
		Bearing:         stub.Bearing,
		Scale:           stub.Scale,
		Waypoints:       slices.Clone(stub.Waypoints),
		Segments:        []models.Segment{*seg, back},
		Path:            path,
		TotalDistanceKm: 2 * seg.DistanceKm,
		FallbackUsed:    seg.FallbackUsed,
	}, nil
}

func (e *Evaluator) evaluateLoop(ctx context.Context, c models.SearchConstraints, stub Stub) (*models.Candidate, error) {
	start := c.StartLocation
	points := make([]models.Location, 0, len(stub.Waypoints)+2)
	points = append(points, start)
	points = append(points, stub.Waypoints...)
	points = append(points, start)

	res, err := e.oracle.MultiPointPath(ctx, points)
	if err != nil {
		return nil, legError(ctx, stub, err)
	}
	if err := checkDistance(stub, res.DistanceKm); err != nil {
		return nil, err
	}

	path := closePath(start, res.Path, true)
	return &models.Candidate{
		Index:     stub.Index,
		Shape:     stub.Shape,
		Bearing:   stub.Bearing,
		Scale:     stub.Scale,
		Waypoints: slices.Clone(stub.Waypoints),
		Segments: []models.Segment{{
			From:         start,
			To:           start,
			DistanceKm:   res.DistanceKm,
			DurationSecs: res.DurationSecs,
			Path:         path,
			FallbackUsed: res.FallbackUsed,
		}},
		Path:            path,
		TotalDistanceKm: res.DistanceKm,
		FallbackUsed:    res.FallbackUsed,
	}, nil
}

func legError(ctx context.Context, stub Stub, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &ErrLegUnresolvable{Index: stub.Index, Reason: err.Error(), Err: err}
}

func checkDistance(stub Stub, km float64) error {
	if math.IsNaN(km) || math.IsInf(km, 0) || km <= 0 {
		return &ErrLegUnresolvable{Index: stub.Index, Reason: fmt.Sprintf("routed distance %v is not positive", km)}
	}
	return nil
}

// closePath returns a copy of path that begins at start and, when closeEnd is
// set, also ends at start. Oracle geometry snaps to the road network, so the
// start is spliced in when the returned end point drifts from it.
func closePath(start models.Location, path []models.Location, closeEnd bool) []models.Location {
	out := make([]models.Location, 0, len(path)+2)
	if len(path) == 0 || geo.DistanceMeters(path[0], start) > ClosureToleranceMeters {
		out = append(out, start)
	}
	out = append(out, path...)
	if len(out) > 0 {
		out[0] = start
	}
	if closeEnd {
		if geo.DistanceMeters(out[len(out)-1], start) > ClosureToleranceMeters {
			out = append(out, start)
		} else {
			out[len(out)-1] = start
		}
	}
	return out
}
