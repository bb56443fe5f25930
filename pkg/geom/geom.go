// Package geom holds the planar geometry predicates the partition tree is built on.
// Regions are treated as planar polygons in (longitude, latitude) space.
package geom

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"
)

// World is the full valid (longitude, latitude) domain
var World = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// Predicates is the set of geometric tests the tree needs from a geometry backend
type Predicates interface {
	// Intersects is a conservative test: it may report true for a polygon that only
	// comes near b, but never false for one that overlaps it.
	Intersects(b orb.Bound, mp orb.MultiPolygon) bool
	// Covers reports whether b lies entirely inside mp.
	Covers(mp orb.MultiPolygon, b orb.Bound) bool
	// Clip returns the part of mp inside b, nil when nothing is left.
	Clip(b orb.Bound, mp orb.MultiPolygon) orb.MultiPolygon
	// Contains reports whether p is inside mp. Boundary points count as inside.
	Contains(mp orb.MultiPolygon, p orb.Point) bool
}

// Planar implements Predicates with paulmach/orb planar algorithms
type Planar struct{}

var _ Predicates = Planar{}

// Intersects checks every member polygon's bound against b
func (Planar) Intersects(b orb.Bound, mp orb.MultiPolygon) bool {
	for _, p := range mp {
		if len(p) == 0 {
			continue
		}
		if p.Bound().Intersects(b) {
			return true
		}
	}
	return false
}

// Covers reports whether a single member polygon contains the whole rectangle.
// A rectangle that is exactly one of the polygons is covered.
func (Planar) Covers(mp orb.MultiPolygon, b orb.Bound) bool {
	center := b.Center()
	for _, p := range mp {
		if len(p) == 0 || !boundContains(p.Bound(), b) {
			continue
		}
		if ringsCrossInterior(p, b) {
			continue
		}
		// no edge enters the open rectangle, so its centre decides for all of it
		if planar.PolygonContains(p, center) {
			return true
		}
	}
	return false
}

// Clip cuts mp to b and drops polygons that collapse to a line or a point
func (Planar) Clip(b orb.Bound, mp orb.MultiPolygon) orb.MultiPolygon {
	// clip.MultiPolygon rewrites the rings it is given
	clipped := clip.MultiPolygon(b, mp.Clone())
	if len(clipped) == 0 {
		return nil
	}
	out := clipped[:0]
	for _, p := range clipped {
		if len(p) == 0 || len(p[0]) < 4 {
			continue
		}
		if planar.Area(p[0]) == 0 {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Contains runs the even-odd point in polygon test
func (Planar) Contains(mp orb.MultiPolygon, p orb.Point) bool {
	return planar.MultiPolygonContains(mp, p)
}

// Quadrants bisects b once along x and once along y.
// Order is south-west, north-west, south-east, north-east. Siblings share the
// split lines exactly, so the four bounds tile b with no gaps.
func Quadrants(b orb.Bound) [4]orb.Bound {
	midX := (b.Min[0] + b.Max[0]) / 2
	midY := (b.Min[1] + b.Max[1]) / 2
	return [4]orb.Bound{
		{Min: orb.Point{b.Min[0], b.Min[1]}, Max: orb.Point{midX, midY}},
		{Min: orb.Point{b.Min[0], midY}, Max: orb.Point{midX, b.Max[1]}},
		{Min: orb.Point{midX, b.Min[1]}, Max: orb.Point{b.Max[0], midY}},
		{Min: orb.Point{midX, midY}, Max: orb.Point{b.Max[0], b.Max[1]}},
	}
}

// ValidBound reports whether b has positive width and height
func ValidBound(b orb.Bound) bool {
	return b.Max[0] > b.Min[0] && b.Max[1] > b.Min[1]
}

// Area returns the planar area of b in square degrees
func Area(b orb.Bound) float64 {
	if b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] {
		return 0
	}
	return (b.Max[0] - b.Min[0]) * (b.Max[1] - b.Min[1])
}

// Intersection returns the overlap of two bounds and whether it is non-empty
func Intersection(a, b orb.Bound) (orb.Bound, bool) {
	out := orb.Bound{
		Min: orb.Point{max(a.Min[0], b.Min[0]), max(a.Min[1], b.Min[1])},
		Max: orb.Point{min(a.Max[0], b.Max[0]), min(a.Max[1], b.Max[1])},
	}
	if out.Min[0] > out.Max[0] || out.Min[1] > out.Max[1] {
		return orb.Bound{}, false
	}
	return out, true
}

func boundContains(outer, inner orb.Bound) bool {
	return outer.Min[0] <= inner.Min[0] && outer.Min[1] <= inner.Min[1] &&
		outer.Max[0] >= inner.Max[0] && outer.Max[1] >= inner.Max[1]
}
