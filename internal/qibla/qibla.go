// Package qibla computes the direction of the Kaaba from an observer and
// turns a device heading into a needle rotation.
package qibla

import (
	"errors"
	"fmt"
	"math"
)

const (
	earthRadiusKm = 6371.0
	epsilon       = 1e-9
)

var (
	// ErrInvalidCoordinates is returned for latitudes outside [-90,90] or
	// longitudes outside [-180,180].
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrUndefinedBearing is returned when no single direction exists, i.e.
	// the observer stands at the Kaaba or at its antipode.
	ErrUndefinedBearing = errors.New("qibla bearing undefined at this location")
)

// Coordinates is a point on the earth in decimal degrees.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Kaaba is the location every bearing points at.
var Kaaba = Coordinates{Latitude: 21.4225, Longitude: 39.8262}

// Validate checks the coordinate ranges.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinates, c.Latitude)
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinates, c.Longitude)
	}
	return nil
}

// Bearing is an angle in degrees in [0,360), clockwise from true north.
type Bearing float64

// String formats the bearing with one decimal and a compass point.
func (b Bearing) String() string {
	return fmt.Sprintf("%.1f° %s", float64(b), b.CompassPoint())
}

var compassPoints = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// CompassPoint returns the nearest of the eight principal winds.
func (b Bearing) CompassPoint() string {
	idx := int(math.Floor((float64(b)+22.5)/45)) % len(compassPoints)
	return compassPoints[idx]
}

// Compute returns the initial great-circle bearing from observer to the Kaaba.
func Compute(observer Coordinates) (Bearing, error) {
	if err := observer.Validate(); err != nil {
		return 0, err
	}
	if coincident(observer, Kaaba) || coincident(observer, antipode(Kaaba)) {
		return 0, ErrUndefinedBearing
	}

	phi1 := radians(observer.Latitude)
	phi2 := radians(Kaaba.Latitude)
	dLambda := radians(Kaaba.Longitude - observer.Longitude)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	return Bearing(normalize(degrees(math.Atan2(y, x)))), nil
}

// Distance returns the haversine distance from observer to the Kaaba in
// kilometres. Coordinates are not validated.
func Distance(observer Coordinates) float64 {
	phi1 := radians(observer.Latitude)
	phi2 := radians(Kaaba.Latitude)
	dPhi := phi2 - phi1
	dLambda := radians(Kaaba.Longitude - observer.Longitude)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

func coincident(a, b Coordinates) bool {
	if math.Abs(a.Latitude-b.Latitude) > epsilon {
		return false
	}
	// Longitude is meaningless at the poles.
	if math.Abs(math.Abs(a.Latitude)-90) <= epsilon {
		return true
	}
	d := math.Abs(normalize(a.Longitude - b.Longitude))
	return d <= epsilon || 360-d <= epsilon
}

func antipode(c Coordinates) Coordinates {
	lon := c.Longitude + 180
	if lon > 180 {
		lon -= 360
	}
	return Coordinates{Latitude: -c.Latitude, Longitude: lon}
}

// normalize maps any angle into [0,360).
func normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
