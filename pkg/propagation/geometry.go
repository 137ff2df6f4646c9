package propagation

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/exp/rand"
)

// Layout selects how measurement locations are drawn around the receiver
type Layout string

const (
	// LayoutDisc draws locations uniformly over the disc of the measurement radius
	LayoutDisc Layout = "disc"

	// LayoutCircle draws locations with uniform angle on the circle's perimeter
	LayoutCircle Layout = "circle"
)

// ParseLayout validates a layout name from configuration
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutDisc, LayoutCircle:
		return Layout(s), nil
	}
	return "", fmt.Errorf("unknown measurement layout %q (want %q or %q)", s, LayoutDisc, LayoutCircle)
}

// Locations draws n points around center with the given layout and radius
func Locations(rnd *rand.Rand, layout Layout, n int, center orb.Point, radius float64) ([]orb.Point, error) {
	switch layout {
	case LayoutDisc:
		return LocationsInDisc(rnd, n, center, radius), nil
	case LayoutCircle:
		return LocationsOnCircle(rnd, n, center, radius), nil
	}
	return nil, fmt.Errorf("unknown measurement layout %q", layout)
}

// LocationsInDisc draws n points uniformly over the disc of the given radius
func LocationsInDisc(rnd *rand.Rand, n int, center orb.Point, radius float64) []orb.Point {
	pts := make([]orb.Point, n)
	for i := range pts {
		// sqrt keeps the density uniform in area
		r := radius * math.Sqrt(rnd.Float64())
		theta := 2 * math.Pi * rnd.Float64()
		pts[i] = orb.Point{center[0] + r*math.Cos(theta), center[1] + r*math.Sin(theta)}
	}
	return pts
}

// LocationsOnCircle draws n points with uniformly random angle on the circle
func LocationsOnCircle(rnd *rand.Rand, n int, center orb.Point, radius float64) []orb.Point {
	pts := make([]orb.Point, n)
	for i := range pts {
		theta := 2 * math.Pi * rnd.Float64()
		pts[i] = orb.Point{center[0] + radius*math.Cos(theta), center[1] + radius*math.Sin(theta)}
	}
	return pts
}
