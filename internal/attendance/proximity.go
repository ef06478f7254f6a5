package attendance

import (
	"math"

	"edutrack/internal/model"
)

const earthRadiusMeters = 6371000

// NearVenueMeters is the distance under which a student counts as in the room.
const NearVenueMeters = 30

// Point is a device position in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	φ1 := a.Latitude * math.Pi / 180
	φ2 := b.Latitude * math.Pi / 180
	Δφ := (b.Latitude - a.Latitude) * math.Pi / 180
	Δλ := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Proximity is the outcome of comparing a student position with the venue.
type Proximity struct {
	Checked   bool    `json:"checked"`
	Distance  float64 `json:"distanceMeters"`
	Within    bool    `json:"within"`
	NearVenue bool    `json:"nearVenue"`
}

// CheckProximity compares pos against the session venue. Sessions without a
// venue are never checked.
func CheckProximity(s model.AttendanceSession, pos Point, threshold float64) Proximity {
	if !s.HasLocation() {
		return Proximity{}
	}
	d := Distance(Point{Latitude: *s.Latitude, Longitude: *s.Longitude}, pos)
	return Proximity{
		Checked:   true,
		Distance:  d,
		Within:    d <= threshold,
		NearVenue: d <= NearVenueMeters,
	}
}
