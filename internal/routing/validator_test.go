package routing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/models"
)

func validRoute() *models.OptimizedRoute {
	turn := geo.Project(tokyo, 0, 29.0/6/2)
	return &models.OptimizedRoute{
		StartLocation:            tokyo,
		Waypoints:                []models.Location{turn},
		Path:                     []models.Location{tokyo, turn, tokyo},
		TotalDistanceKm:          29.0 / 6,
		EstimatedDurationMinutes: 29,
		Shape:                    models.ShapeOutAndBack,
	}
}

func TestValidate_ValidRoute(t *testing.T) {
	result := Validate(validRoute(), thirtyMinuteConstraints())

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidate_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(r *models.OptimizedRoute)
		errMsg string
	}{
		{
			name:   "empty path",
			mutate: func(r *models.OptimizedRoute) { r.Path = nil },
			errMsg: "route path is empty",
		},
		{
			name:   "open at the end",
			mutate: func(r *models.OptimizedRoute) { r.Path[2] = geo.Project(tokyo, 90, 0.01) },
			errMsg: "route does not return to the start location (10.0m away)",
		},
		{
			name:   "starts elsewhere",
			mutate: func(r *models.OptimizedRoute) { r.Path[0] = geo.Project(tokyo, 90, 0.002) },
			errMsg: "route does not begin at the start location (2.0m away)",
		},
		{
			name: "too long",
			mutate: func(r *models.OptimizedRoute) {
				r.EstimatedDurationMinutes = 31
				r.TotalDistanceKm = 31.0 / 6
			},
			errMsg: "estimated duration 31.00 min is outside [28.00, 30.00]",
		},
		{
			name:   "non-positive distance",
			mutate: func(r *models.OptimizedRoute) { r.TotalDistanceKm = 0 },
			errMsg: "route distance must be positive",
		},
		{
			name:   "infinite distance",
			mutate: func(r *models.OptimizedRoute) { r.TotalDistanceKm = math.Inf(1) },
			errMsg: "route distance must be positive",
		},
		{
			name:   "nan distance",
			mutate: func(r *models.OptimizedRoute) { r.TotalDistanceKm = math.NaN() },
			errMsg: "route distance must be positive",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			route := validRoute()
			tc.mutate(route)

			result := Validate(route, thirtyMinuteConstraints())
			assert.False(t, result.IsValid)
			assert.Contains(t, result.Errors, tc.errMsg)
		})
	}
}

func TestValidate_NilRoute(t *testing.T) {
	result := Validate(nil, thirtyMinuteConstraints())
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{"route is missing"}, result.Errors)
}

func TestValidate_Warnings(t *testing.T) {
	route := validRoute()
	route.FallbackUsed = true
	route.TotalDistanceKm = 4.5 // 27 min at 6 min/km

	result := Validate(route, thirtyMinuteConstraints())

	assert.True(t, result.IsValid)
	assert.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings, "routing service was unavailable; distances are straight-line estimates")
}

func TestValidate_SinglePointPathWarns(t *testing.T) {
	route := validRoute()
	route.Path = []models.Location{tokyo}

	result := Validate(route, thirtyMinuteConstraints())
	assert.True(t, result.IsValid)
	assert.Contains(t, result.Warnings, "route path has fewer than two points")
}
