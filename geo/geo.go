// Package geo implements the Haversine distance/duration model and small
// bounding-box zone helpers the rest of the decision core treats as ground
// truth whenever the Router port is absent or failing. Zones are
// axis-aligned boxes; there is no general point-in-polygon test. There is no
// ecosystem geometry library in the retrieved example pack suited to a
// single Haversine + bounding-box helper, so this is plain stdlib math
// (see DESIGN.md).
package geo

import "math"

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points in
// kilometres.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := math.Pi / 180.0
	dLat := (lat2 - lat1) * toRad
	dLng := (lng2 - lng1) * toRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// DurationMinFromDistance is the fallback duration model used throughout
// C6 when no Router segment is available: 3 minutes per kilometre.
func DurationMinFromDistance(distanceKm float64) float64 {
	return distanceKm * 3
}

// Point is a plain lat/lng pair, decoupled from domain.LatLng so this
// package has no dependency on the domain model.
type Point struct {
	Lat, Lng float64
}

// Zone is an axis-aligned bounding box used for the 5 static zones the
// Fleet Status snapshot buckets drivers into (spec §4.2).
type Zone struct {
	Name string
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// InZone reports whether p falls inside z's bounding box.
func InZone(p Point, z Zone) bool {
	return p.Lat >= z.MinLat && p.Lat <= z.MaxLat && p.Lng >= z.MinLng && p.Lng <= z.MaxLng
}

// DefaultZones gives Riyadh-centered static zones (spec OQ3: peak-hour
// multipliers and zone coordinates are source-specific constants, kept as
// defaults here and overridable via configuration). "central" overlaps the
// outer zones and is listed first so ZoneFor picks it for those points.
func DefaultZones() []Zone {
	return []Zone{
		{Name: "central", MinLat: 24.60, MaxLat: 24.80, MinLng: 46.60, MaxLng: 46.80},
		{Name: "north", MinLat: 24.80, MaxLat: 25.20, MinLng: 46.50, MaxLng: 46.90},
		{Name: "south", MinLat: 24.30, MaxLat: 24.70, MinLng: 46.50, MaxLng: 46.90},
		{Name: "east", MinLat: 24.50, MaxLat: 24.90, MinLng: 46.90, MaxLng: 47.30},
		{Name: "west", MinLat: 24.50, MaxLat: 24.90, MinLng: 46.10, MaxLng: 46.50},
	}
}

// ZoneFor returns the first matching zone's name, or "unzoned" if p falls
// outside every configured zone.
func ZoneFor(p Point, zones []Zone) string {
	for _, z := range zones {
		if InZone(p, z) {
			return z.Name
		}
	}
	return "unzoned"
}

// Round4 rounds a coordinate to 4 decimal places, used by the route cache
// key (spec §4.4: "startLocation rounded to 4 decimals").
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
