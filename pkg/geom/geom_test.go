package geom

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(minX, minY, maxX, maxY float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}

func square(minX, minY, maxX, maxY float64) orb.MultiPolygon {
	return orb.MultiPolygon{box(minX, minY, maxX, maxY).ToPolygon()}
}

func TestQuadrantsTileParent(t *testing.T) {
	parents := []orb.Bound{
		World,
		box(-10, -10, 10, 10),
		box(0.1, 0.3, 0.7, 0.9),
	}

	for _, parent := range parents {
		qs := Quadrants(parent)

		total := 0.0
		for _, q := range qs {
			total += Area(q)
		}
		assert.InDelta(t, Area(parent), total, 1e-9)

		for i := 0; i < 4; i++ {
			for j := i + 1; j < 4; j++ {
				overlap, ok := Intersection(qs[i], qs[j])
				if ok {
					assert.Zero(t, Area(overlap), "quadrants %d and %d overlap", i, j)
				}
			}
		}

		// fixed order: SW, NW, SE, NE
		assert.Equal(t, parent.Min, qs[0].Min)
		assert.Equal(t, parent.Max, qs[3].Max)
		assert.Equal(t, qs[0].Max[0], qs[2].Min[0])
		assert.Equal(t, qs[0].Max[1], qs[1].Min[1])
	}
}

func TestIntersects(t *testing.T) {
	p := Planar{}
	mp := square(0, 0, 10, 10)

	testCases := []struct {
		name     string
		b        orb.Bound
		expected bool
	}{
		{"inside", box(2, 2, 3, 3), true},
		{"overlapping", box(5, 5, 15, 15), true},
		{"touching edge", box(10, 0, 20, 10), true},
		{"far away", box(50, 50, 60, 60), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, p.Intersects(tc.b, mp))
		})
	}

	assert.False(t, p.Intersects(box(0, 0, 1, 1), nil))
}

func TestCovers(t *testing.T) {
	p := Planar{}

	withHole := orb.MultiPolygon{orb.Polygon{
		box(0, 0, 10, 10).ToRing(),
		box(4, 4, 6, 6).ToRing(),
	}}
	lShape := orb.MultiPolygon{orb.Polygon{orb.Ring{
		{0, 0}, {10, 0}, {10, 5}, {5, 5}, {5, 10}, {0, 10}, {0, 0},
	}}}

	testCases := []struct {
		name     string
		mp       orb.MultiPolygon
		b        orb.Bound
		expected bool
	}{
		{"exact match", square(0, 0, 10, 10), box(0, 0, 10, 10), true},
		{"strictly inside", square(0, 0, 10, 10), box(1, 1, 2, 2), true},
		{"sharing one side", square(0, 0, 10, 10), box(0, 0, 5, 5), true},
		{"partly outside", square(0, 0, 10, 10), box(5, 5, 15, 15), false},
		{"hole inside rect", withHole, box(3, 3, 7, 7), false},
		{"rect beside hole", withHole, box(0, 0, 3, 3), true},
		{"rect inside hole", withHole, box(4.5, 4.5, 5.5, 5.5), false},
		{"notch of L shape", lShape, box(4, 4, 6, 6), false},
		{"arm of L shape", lShape, box(0, 0, 5, 5), true},
		{"second member", orb.MultiPolygon{square(20, 20, 30, 30)[0], square(0, 0, 10, 10)[0]}, box(1, 1, 9, 9), true},
		{"empty", nil, box(0, 0, 1, 1), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, p.Covers(tc.mp, tc.b))
		})
	}
}

func TestClip(t *testing.T) {
	p := Planar{}

	t.Run("half", func(t *testing.T) {
		clipped := p.Clip(box(0, 0, 5, 10), square(0, 0, 10, 10))
		require.NotNil(t, clipped)
		assert.InDelta(t, 50.0, math.Abs(planar.Area(clipped)), 1e-9)
	})

	t.Run("disjoint", func(t *testing.T) {
		assert.Nil(t, p.Clip(box(20, 20, 30, 30), square(0, 0, 10, 10)))
	})

	t.Run("rect inside polygon", func(t *testing.T) {
		clipped := p.Clip(box(2, 2, 4, 4), square(0, 0, 10, 10))
		require.NotNil(t, clipped)
		assert.InDelta(t, 4.0, math.Abs(planar.Area(clipped)), 1e-9)
		assert.True(t, p.Contains(clipped, orb.Point{3, 3}))
	})

	t.Run("input unchanged", func(t *testing.T) {
		mp := orb.MultiPolygon{
			{
				orb.Ring{{0, 0}, {10, 0}, {10, 10}, {5, 4}, {0, 10}, {0, 0}},
				box(2, 1, 4, 3).ToRing(),
			},
			square(20, 0, 30, 10)[0],
		}
		before := orb.Clone(mp)

		for _, b := range []orb.Bound{box(0, 0, 5, 5), box(3, 2, 8, 12), box(25, -5, 35, 5), box(-5, -5, 40, 20)} {
			p.Clip(b, mp)
		}
		assert.Equal(t, before, mp)
	})
}

func TestContains(t *testing.T) {
	p := Planar{}
	withHole := orb.MultiPolygon{orb.Polygon{
		box(0, 0, 10, 10).ToRing(),
		box(4, 4, 6, 6).ToRing(),
	}}

	assert.True(t, p.Contains(withHole, orb.Point{1, 1}))
	assert.True(t, p.Contains(withHole, orb.Point{0, 5}), "boundary counts as inside")
	assert.False(t, p.Contains(withHole, orb.Point{5, 5}), "hole")
	assert.False(t, p.Contains(withHole, orb.Point{11, 5}))
}

func TestSegmentEntersInterior(t *testing.T) {
	b := box(0, 0, 10, 10)

	testCases := []struct {
		name     string
		a, c     orb.Point
		expected bool
	}{
		{"crossing", orb.Point{-5, 5}, orb.Point{15, 5}, true},
		{"diagonal through corner region", orb.Point{-1, 1}, orb.Point{1, -1}, false},
		{"along bottom side", orb.Point{-5, 0}, orb.Point{15, 0}, false},
		{"along right side", orb.Point{10, 2}, orb.Point{10, 8}, false},
		{"outside", orb.Point{20, 20}, orb.Point{30, 30}, false},
		{"touching corner", orb.Point{10, 10}, orb.Point{20, 20}, false},
		{"ending inside", orb.Point{-5, 5}, orb.Point{5, 5}, true},
		{"fully inside", orb.Point{2, 2}, orb.Point{3, 3}, true},
		{"degenerate point inside", orb.Point{2, 2}, orb.Point{2, 2}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, segmentEntersInterior(tc.a, tc.c, b))
		})
	}
}

func TestValidBound(t *testing.T) {
	assert.True(t, ValidBound(World))
	assert.False(t, ValidBound(box(1, 1, 1, 2)))
	assert.False(t, ValidBound(box(2, 1, 1, 2)))
}

func TestClipDropsEdgeContact(t *testing.T) {
	p := Planar{}
	// neighbour sharing only the x = 0 side
	assert.Nil(t, p.Clip(box(0, 0, 5, 5), square(-10, 0, 0, 10)))
}
