package routing

import (
	"math"

	"github.com/samber/lo"

	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/models"
)

// Quality thresholds
const (
	OverlapRadiusMeters      = 20.0
	SharpTurnDegrees         = 60.0
	TurnSampleSpacingMeters  = 25.0
	minOverlapPathPoints     = 4
	minSharpTurnSamplePoints = 3
)

// SelfOverlapRatio returns the fraction of first-half path points that lie
// within OverlapRadiusMeters of some second-half point. The shared start/end
// point is excluded from both halves. Result is in [0, 1].
func SelfOverlapRatio(path []models.Location) float64 {
	if len(path) < minOverlapPathPoints {
		return 0
	}

	mid := len(path) / 2
	first := path[1:mid]
	second := path[mid : len(path)-1]
	if len(first) == 0 || len(second) == 0 {
		return 0
	}

	overlapping := lo.CountBy(first, func(p models.Location) bool {
		return lo.ContainsBy(second, func(q models.Location) bool {
			return geo.DistanceMeters(p, q) <= OverlapRadiusMeters
		})
	})
	return float64(overlapping) / float64(len(first))
}

// SharpTurnCount counts heading changes of at least thresholdDegrees along the
// path after resampling it to TurnSampleSpacingMeters, so that dense polylines
// and sparse straight-line fallbacks are judged on the same scale.
func SharpTurnCount(path []models.Location, thresholdDegrees float64) int {
	samples := resample(path, TurnSampleSpacingMeters)
	if len(samples) < minSharpTurnSamplePoints {
		return 0
	}

	count := 0
	for i := 2; i < len(samples); i++ {
		in := geo.Bearing(samples[i-2], samples[i-1])
		out := geo.Bearing(samples[i-1], samples[i])
		if geo.TurnAngle(in, out) >= thresholdDegrees {
			count++
		}
	}
	return count
}

func resample(path []models.Location, spacingMeters float64) []models.Location {
	if len(path) == 0 {
		return nil
	}
	samples := []models.Location{path[0]}
	for _, p := range path[1:] {
		if geo.DistanceMeters(samples[len(samples)-1], p) >= spacingMeters {
			samples = append(samples, p)
		}
	}
	return samples
}

// Score ranks an evaluated candidate against the request. Lower is better.
// Out-and-back routes fully overlap by construction, so overlap only
// penalizes loops.
func Score(c *models.Candidate, constraints models.SearchConstraints, w Weights) float64 {
	score := math.Abs(constraints.RequestedMinutes-c.EstimatedDurationMinutes)*w.Time +
		float64(c.SharpTurnCount)*w.Turns
	if c.Shape == models.ShapeLoop {
		score += c.SelfOverlapRatio * 100 * w.Overlap
	}
	return score
}
