package rtree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/kass/go-geo-label/pkg/region"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(minX, minY, maxX, maxY float64) orb.MultiPolygon {
	b := orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
	return orb.MultiPolygon{b.ToPolygon()}
}

func gridCollection() *region.Collection[string] {
	c := region.NewCollection[string]()
	c.Add("SW", square(-10, -10, 0, 0))
	c.Add("NW", square(-10, 0, 0, 10))
	c.Add("SE", square(0, -10, 10, 0))
	c.Add("NE", square(0, 0, 10, 10))
	return c
}

func TestNewIndex(t *testing.T) {
	c := gridCollection()
	c.Add("NE", square(20, 20, 30, 30))

	index := NewIndex(c)
	require.NotNil(t, index)
	assert.Equal(t, int64(5), index.Count())

	empty := NewIndex(region.NewCollection[string]())
	assert.Equal(t, int64(0), empty.Count())
	_, found := empty.Locate(orb.Point{0, 0})
	assert.False(t, found)
}

func TestSearch(t *testing.T) {
	index := NewIndex(gridCollection())

	testCases := []struct {
		name  string
		bound orb.Bound
		want  []string
	}{
		{"west half", orb.Bound{Min: orb.Point{-9, -9}, Max: orb.Point{-1, 9}}, []string{"SW", "NW"}},
		{"centre", orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{1, 1}}, []string{"SW", "NW", "SE", "NE"}},
		{"single", orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{6, 6}}, []string{"NE"}},
		{"outside", orb.Bound{Min: orb.Point{50, 50}, Max: orb.Point{60, 60}}, nil},
		{"point", orb.Bound{Min: orb.Point{5, -5}, Max: orb.Point{5, -5}}, []string{"SE"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, index.Search(tc.bound))
		})
	}
}

func TestSearchDeduplicatesLabels(t *testing.T) {
	c := region.NewCollection[string]()
	c.Add("A", square(0, 0, 1, 1))
	c.Add("A", square(2, 0, 3, 1))
	c.Add("B", square(4, 0, 5, 1))

	index := NewIndex(c)
	got := index.Search(orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{6, 2}})
	assert.Equal(t, []string{"A", "B"}, got)
}

func TestLocate(t *testing.T) {
	index := NewIndex(gridCollection())

	testCases := []struct {
		name      string
		point     orb.Point
		wantLabel string
		wantFound bool
	}{
		{"south west", orb.Point{-5, -5}, "SW", true},
		{"north west", orb.Point{-5, 5}, "NW", true},
		{"south east", orb.Point{5, -5}, "SE", true},
		{"north east", orb.Point{5, 5}, "NE", true},
		{"shared corner", orb.Point{0, 0}, "SW", true},
		{"ocean", orb.Point{100, 50}, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			label, found := index.Locate(tc.point)
			assert.Equal(t, tc.wantFound, found)
			assert.Equal(t, tc.wantLabel, label)
		})
	}
}

func TestLocateHole(t *testing.T) {
	outer := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}.ToRing()
	hole := orb.Bound{Min: orb.Point{4, 4}, Max: orb.Point{6, 6}}.ToRing()
	hole.Reverse()

	c := region.NewCollection[string]()
	c.Add("donut", orb.MultiPolygon{orb.Polygon{outer, hole}})
	c.Add("core", square(4, 4, 6, 6))

	index := NewIndex(c)

	label, found := index.Locate(orb.Point{1, 1})
	assert.True(t, found)
	assert.Equal(t, "donut", label)

	label, found = index.Locate(orb.Point{5, 5})
	assert.True(t, found)
	assert.Equal(t, "core", label)
}

func TestLocatePrefersCollectionOrder(t *testing.T) {
	c := region.NewCollection[int]()
	c.Add(1, square(0, 0, 10, 10))
	c.Add(2, square(0, 0, 10, 10))

	index := NewIndex(c)
	for i := 0; i < 10; i++ {
		label, found := index.Locate(orb.Point{5, 5})
		require.True(t, found)
		assert.Equal(t, 1, label)
	}
}

func randomGrid(n int) *region.Collection[string] {
	c := region.NewCollection[string]()
	step := 360.0 / float64(n)
	hstep := 180.0 / float64(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			minX := -180 + float64(i)*step
			minY := -90 + float64(j)*hstep
			c.Add(fmt.Sprintf("R%d_%d", i, j), square(minX, minY, minX+step, minY+hstep))
		}
	}
	return c
}

func BenchmarkNewIndex(b *testing.B) {
	c := randomGrid(30)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewIndex(c)
	}
}

func BenchmarkLocate(b *testing.B) {
	index := NewIndex(randomGrid(30))
	r := rand.New(rand.NewSource(42))
	points := make([]orb.Point, 1024)
	for i := range points {
		points[i] = orb.Point{r.Float64()*360 - 180, r.Float64()*180 - 90}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		index.Locate(points[i%len(points)])
	}
}
