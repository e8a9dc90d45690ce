package geo

import (
	"github.com/paulmach/orb/geojson"

	"roundtrip-router/internal/models"
)

// RouteFeatureCollection renders a route as GeoJSON: the path as a
// LineString, the start as a Point and each waypoint as a Point.
func RouteFeatureCollection(route *models.OptimizedRoute) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if route == nil {
		return fc
	}

	path := geojson.NewFeature(ToLineString(route.Path))
	path.Properties["kind"] = "path"
	path.Properties["shape"] = string(route.Shape)
	path.Properties["total_distance_km"] = route.TotalDistanceKm
	path.Properties["estimated_duration_minutes"] = route.EstimatedDurationMinutes
	path.Properties["fallback_used"] = route.FallbackUsed
	fc.Append(path)

	start := geojson.NewFeature(ToPoint(route.StartLocation))
	start.Properties["kind"] = "start"
	fc.Append(start)

	for i, w := range route.Waypoints {
		f := geojson.NewFeature(ToPoint(w))
		f.Properties["kind"] = "waypoint"
		f.Properties["order"] = i + 1
		fc.Append(f)
	}
	return fc
}
