package routing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/models"
)

var tokyo = models.Location{Lat: 35.6762, Lng: 139.7674}

func thirtyMinuteConstraints() models.SearchConstraints {
	return models.NewSearchConstraints(tokyo, 30, 2, 6)
}

func TestGenerate_DefaultPolicyOrderAndSize(t *testing.T) {
	policy := DefaultSweepPolicy()
	stubs := Generate(thirtyMinuteConstraints(), policy)

	require.Len(t, stubs, 288)
	assert.Equal(t, policy.Size(), len(stubs))

	for i, s := range stubs {
		assert.Equal(t, i, s.Index)
	}

	// Out-and-back first, scale-major, bearing-minor
	assert.Equal(t, models.ShapeOutAndBack, stubs[0].Shape)
	assert.Equal(t, 1.0, stubs[0].Scale)
	assert.Equal(t, 0.0, stubs[0].Bearing)
	assert.Equal(t, 45.0, stubs[1].Bearing)
	assert.Equal(t, 0.95, stubs[8].Scale)

	// Loops follow, ordered by waypoint count
	first := stubs[72]
	assert.Equal(t, models.ShapeLoop, first.Shape)
	assert.Len(t, first.Waypoints, 3)
	assert.Len(t, stubs[144].Waypoints, 4)
	assert.Len(t, stubs[216].Waypoints, 6)
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(thirtyMinuteConstraints(), DefaultSweepPolicy())
	b := Generate(thirtyMinuteConstraints(), DefaultSweepPolicy())
	assert.Equal(t, a, b)
}

func TestGenerate_OutAndBackTurnaroundDistance(t *testing.T) {
	c := thirtyMinuteConstraints()
	policy := SweepPolicy{Bearings: []float64{0, 120, 250}, Scales: []float64{1.0, 0.8}, IncludeOutAndBack: true}

	for _, s := range Generate(c, policy) {
		require.Len(t, s.Waypoints, 1)
		expected := c.TargetDistanceKm() / 2 * s.Scale
		assert.InDelta(t, expected, geo.Distance(c.StartLocation, s.Waypoints[0]), 1e-6)
		assert.InDelta(t, s.Bearing, geo.Bearing(c.StartLocation, s.Waypoints[0]), 1e-6)
	}
}

func TestGenerate_LoopPerimeterMatchesTarget(t *testing.T) {
	c := thirtyMinuteConstraints()

	for _, n := range []int{2, 3, 4, 6, 8} {
		policy := SweepPolicy{Bearings: []float64{0, 90, 200}, Scales: []float64{1.0, 1.1}, WaypointCounts: []int{n}}
		for _, s := range Generate(c, policy) {
			require.Len(t, s.Waypoints, n)

			polygon := append([]models.Location{c.StartLocation}, s.Waypoints...)
			polygon = append(polygon, c.StartLocation)
			perimeter := geo.PathLength(polygon)

			expected := c.TargetDistanceKm() * s.Scale
			assert.InDelta(t, expected, perimeter, expected*0.005, "n=%d bearing=%.0f", n, s.Bearing)
		}
	}
}

func TestGenerate_LoopWaypointsAreDistinctFromStart(t *testing.T) {
	c := thirtyMinuteConstraints()
	policy := SweepPolicy{Bearings: []float64{45}, Scales: []float64{1.0}, WaypointCounts: []int{4}}

	stubs := Generate(c, policy)
	require.Len(t, stubs, 1)
	for _, w := range stubs[0].Waypoints {
		assert.Greater(t, geo.Distance(c.StartLocation, w), 0.5)
	}
}

func TestPlace_ShrinksPlanByDetour(t *testing.T) {
	c := thirtyMinuteConstraints()
	grid := DefaultSweepPolicy().grid()

	outAndBack := Place(c, grid[3], 2)
	require.Len(t, outAndBack.Waypoints, 1)
	assert.InDelta(t, c.TargetDistanceKm()/4, geo.Distance(c.StartLocation, outAndBack.Waypoints[0]), 1e-6)

	loop := Place(c, grid[72], 1.25)
	require.Len(t, loop.Waypoints, 3)
	polygon := append([]models.Location{c.StartLocation}, loop.Waypoints...)
	polygon = append(polygon, c.StartLocation)
	expected := c.TargetDistanceKm() / 1.25
	assert.InDelta(t, expected, geo.PathLength(polygon), expected*0.005)
}

func TestPlace_InvalidDetourKeepsNominalPlan(t *testing.T) {
	c := thirtyMinuteConstraints()
	stub := DefaultSweepPolicy().grid()[0]

	nominal := Place(c, stub, 1)
	for _, d := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.Equal(t, nominal, Place(c, stub, d), "detour=%v", d)
	}
}

func TestGenerate_MaxAttemptsTruncates(t *testing.T) {
	policy := DefaultSweepPolicy()
	policy.MaxAttempts = 10

	stubs := Generate(thirtyMinuteConstraints(), policy)
	assert.Len(t, stubs, 10)
	assert.Equal(t, 10, policy.Size())
}

func TestEvenBearings(t *testing.T) {
	assert.Equal(t, []float64{0, 90, 180, 270}, EvenBearings(4))
	assert.Equal(t, []float64{0, 45, 90, 135, 180, 225, 270, 315}, EvenBearings(8))
}

func TestSweepPolicy_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(p *SweepPolicy)
		field  string
	}{
		{name: "no bearings", mutate: func(p *SweepPolicy) { p.Bearings = nil }, field: "sweep.bearings"},
		{name: "nan bearing", mutate: func(p *SweepPolicy) { p.Bearings = []float64{math.NaN()} }, field: "sweep.bearings"},
		{name: "no scales", mutate: func(p *SweepPolicy) { p.Scales = nil }, field: "sweep.scales"},
		{name: "zero scale", mutate: func(p *SweepPolicy) { p.Scales = []float64{1, 0} }, field: "sweep.scales"},
		{name: "too few loop waypoints", mutate: func(p *SweepPolicy) { p.WaypointCounts = []int{1} }, field: "sweep.waypoint_counts"},
		{name: "too many loop waypoints", mutate: func(p *SweepPolicy) { p.WaypointCounts = []int{9} }, field: "sweep.waypoint_counts"},
		{name: "no shapes", mutate: func(p *SweepPolicy) { p.WaypointCounts = nil; p.IncludeOutAndBack = false }, field: "sweep"},
		{name: "negative max attempts", mutate: func(p *SweepPolicy) { p.MaxAttempts = -1 }, field: "sweep.max_attempts"},
	}

	assert.NoError(t, DefaultSweepPolicy().Validate())

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultSweepPolicy()
			tc.mutate(&p)

			err := p.Validate()
			var inputErr *ErrInvalidInput
			require.True(t, errors.As(err, &inputErr))
			assert.Equal(t, tc.field, inputErr.Field)
		})
	}
}
