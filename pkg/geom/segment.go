package geom

import "github.com/paulmach/orb"

// ringsCrossInterior reports whether any edge of p, holes included, passes through
// the open interior of b. Edges lying on the rectangle's sides do not count.
func ringsCrossInterior(p orb.Polygon, b orb.Bound) bool {
	for _, r := range p {
		for i := 1; i < len(r); i++ {
			if segmentEntersInterior(r[i-1], r[i], b) {
				return true
			}
		}
	}
	return false
}

// segmentEntersInterior clips a-b to the closed rectangle (Liang-Barsky) and checks
// the midpoint of the clipped piece. For a convex region the midpoint of a chord is
// on the border only when the whole chord is.
func segmentEntersInterior(a, c orb.Point, b orb.Bound) bool {
	dx := c[0] - a[0]
	dy := c[1] - a[1]
	p := [4]float64{-dx, dx, -dy, dy}
	q := [4]float64{a[0] - b.Min[0], b.Max[0] - a[0], a[1] - b.Min[1], b.Max[1] - a[1]}

	t0, t1 := 0.0, 1.0
	for i := 0; i < 4; i++ {
		if p[i] == 0 {
			if q[i] < 0 {
				return false
			}
			continue
		}
		r := q[i] / p[i]
		if p[i] < 0 {
			if r > t1 {
				return false
			}
			if r > t0 {
				t0 = r
			}
		} else {
			if r < t0 {
				return false
			}
			if r < t1 {
				t1 = r
			}
		}
	}

	t := (t0 + t1) / 2
	x := a[0] + t*dx
	y := a[1] + t*dy
	return x > b.Min[0] && x < b.Max[0] && y > b.Min[1] && y < b.Max[1]
}
