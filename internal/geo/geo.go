// Package geo provides the great-circle helpers used by candidate generation,
// evaluation and scoring. All math runs on orb's spherical model; Location
// values are converted to orb points ([lng, lat]) at this boundary.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"roundtrip-router/internal/models"
)

// MetersPerKilometer converts between the two distance units used by the engine
const MetersPerKilometer = 1000.0

// ToPoint converts a Location to an orb point
func ToPoint(loc models.Location) orb.Point {
	return orb.Point{loc.Lng, loc.Lat}
}

// FromPoint converts an orb point to a Location
func FromPoint(p orb.Point) models.Location {
	return models.Location{Lat: p.Lat(), Lng: p.Lon()}
}

// ToLineString converts a path to an orb line string
func ToLineString(path []models.Location) orb.LineString {
	ls := make(orb.LineString, len(path))
	for i, loc := range path {
		ls[i] = ToPoint(loc)
	}
	return ls
}

// DistanceMeters returns the haversine distance between two locations in meters
func DistanceMeters(a, b models.Location) float64 {
	if a == b {
		return 0
	}
	return orbgeo.DistanceHaversine(ToPoint(a), ToPoint(b))
}

// Distance returns the haversine distance between two locations in kilometers
func Distance(a, b models.Location) float64 {
	return DistanceMeters(a, b) / MetersPerKilometer
}

// Bearing returns the initial bearing from a to b in degrees, in [0, 360)
func Bearing(a, b models.Location) float64 {
	return NormalizeBearing(orbgeo.Bearing(ToPoint(a), ToPoint(b)))
}

// Project returns the point reached by travelling distanceKm from origin
// along the great circle with the given initial bearing.
func Project(origin models.Location, bearingDegrees, distanceKm float64) models.Location {
	if distanceKm == 0 {
		return origin
	}
	p := orbgeo.PointAtBearingAndDistance(ToPoint(origin), NormalizeBearing(bearingDegrees), distanceKm*MetersPerKilometer)
	return FromPoint(normalizeLon(p))
}

// NormalizeBearing maps any angle in degrees into [0, 360)
func NormalizeBearing(deg float64) float64 {
	b := math.Mod(deg, 360)
	if b < 0 {
		b += 360
	}
	if b >= 360 {
		b = 0
	}
	return b
}

// TurnAngle returns the absolute heading change between two bearings, in [0, 180]
func TurnAngle(from, to float64) float64 {
	d := math.Abs(NormalizeBearing(to) - NormalizeBearing(from))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// PathLength returns the summed haversine length of a polyline in kilometers
func PathLength(path []models.Location) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}

// ValidLocation reports whether a location has finite, in-range coordinates
func ValidLocation(loc models.Location) bool {
	if math.IsNaN(loc.Lat) || math.IsNaN(loc.Lng) || math.IsInf(loc.Lat, 0) || math.IsInf(loc.Lng, 0) {
		return false
	}
	return loc.Lat >= -90 && loc.Lat <= 90 && loc.Lng >= -180 && loc.Lng <= 180
}

func normalizeLon(p orb.Point) orb.Point {
	lon := p[0]
	if lon > 180 || lon < -180 {
		lon = math.Mod(lon+540, 360) - 180
	}
	return orb.Point{lon, p[1]}
}
