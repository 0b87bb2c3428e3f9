package geo

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6371000

// Point is a geographic coordinate (WGS 84).
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Distance returns the great-circle distance between two points in meters.
func Distance(a, b Point) float64 {
	if a.Lat == b.Lat && a.Lon == b.Lon {
		return 0
	}

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// Polygon is an immutable closed boundary ring (first vertex repeated last).
type Polygon struct {
	ring []Point
}

// NewPolygon validates and wraps a boundary ring. The ring must contain at
// least four vertices and be closed.
func NewPolygon(vertices []Point) (Polygon, error) {
	if len(vertices) < 4 {
		return Polygon{}, fmt.Errorf("polygon needs at least 4 vertices, got %d", len(vertices))
	}
	first, last := vertices[0], vertices[len(vertices)-1]
	if first.Lat != last.Lat || first.Lon != last.Lon {
		return Polygon{}, fmt.Errorf("polygon ring is not closed: first vertex %+v, last %+v", first, last)
	}

	ring := make([]Point, len(vertices))
	copy(ring, vertices)
	return Polygon{ring: ring}, nil
}

// Len returns the number of vertices including the closing one.
func (p Polygon) Len() int {
	return len(p.ring)
}

// Contains reports whether the point lies inside the boundary using a
// horizontal ray cast: each edge whose endpoints straddle the point's
// longitude toggles the inside flag when the crossing lies east of the
// point. Points exactly on a vertex or edge follow the usual ray-casting
// ambiguity.
func (p Polygon) Contains(pt Point) bool {
	inside := false
	for i := 1; i < len(p.ring); i++ {
		v1 := p.ring[i-1]
		v2 := p.ring[i]

		if (v1.Lon > pt.Lon) == (v2.Lon > pt.Lon) {
			continue
		}
		crossLat := (v2.Lat-v1.Lat)*(pt.Lon-v1.Lon)/(v2.Lon-v1.Lon) + v1.Lat
		if pt.Lat < crossLat {
			inside = !inside
		}
	}
	return inside
}
