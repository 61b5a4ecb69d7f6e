// Package geo provides great-circle distance math for geofence evaluation.
package geo

import (
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for haversine distance.
const EarthRadiusMeters = 6371000.0

// Point represents a geographic point with latitude and longitude in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Distance returns the great-circle distance between two points in meters,
// computed with the haversine formula.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Within reports whether p lies within radiusMeters of center.
// A point exactly on the boundary (distance == radius) counts as within.
func Within(p, center Point, radiusMeters float64) bool {
	return Distance(p, center) <= radiusMeters
}

// DestinationPoint returns the point reached by traveling distanceMeters from
// start along the given bearing (degrees clockwise from north). Used by the
// location simulator and by tests to construct samples at known distances.
func DestinationPoint(start Point, bearingDegrees, distanceMeters float64) Point {
	delta := distanceMeters / EarthRadiusMeters
	theta := radians(bearingDegrees)
	lat1 := radians(start.Lat)
	lon1 := radians(start.Lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) +
		math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Point{Lat: degrees(lat2), Lon: normalizeLon(degrees(lon2))}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
