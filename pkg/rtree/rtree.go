// Package rtree implements an R-Tree over region polygon bounds.
// It answers point lookups by bounding-box candidates followed by an exact
// point-in-polygon scan, and serves as the reference locator the partition tree
// is checked and benchmarked against.
package rtree

import (
	"runtime"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/kass/go-geo-label/pkg/geom"
	"github.com/kass/go-geo-label/pkg/region"
	"github.com/paulmach/orb"
)

const (
	tolerance   = 1e-9
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// spatialPolygon wraps one member polygon of a region to implement rtreego.Spatial
type spatialPolygon[L comparable] struct {
	label   L
	order   int
	polygon orb.Polygon
	rect    *rtreego.Rect
}

func (sp *spatialPolygon[L]) Bounds() *rtreego.Rect {
	return sp.rect
}

// Index is an immutable R-Tree over every polygon of a region collection
type Index[L comparable] struct {
	tree       *rtreego.Rtree
	predicates geom.Predicates
	count      int
}

// NewIndex indexes every polygon of c, computing polygon bounds in parallel
func NewIndex[L comparable](c *region.Collection[L]) *Index[L] {
	var items []*spatialPolygon[L]
	order := 0
	c.Each(func(label L, mp orb.MultiPolygon) bool {
		for _, p := range mp {
			items = append(items, &spatialPolygon[L]{label: label, order: order, polygon: p})
		}
		order++
		return true
	})

	numCPU := runtime.NumCPU()
	batchSize := (len(items) + numCPU - 1) / numCPU
	if batchSize < 1 {
		batchSize = 1
	}

	var wg sync.WaitGroup
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		wg.Add(1)
		go func(batch []*spatialPolygon[L]) {
			defer wg.Done()
			for _, item := range batch {
				item.rect = toRect(item.polygon.Bound())
			}
		}(items[start:end])
	}
	wg.Wait()

	spatials := make([]rtreego.Spatial, len(items))
	for i, item := range items {
		spatials[i] = item
	}

	return &Index[L]{
		tree:       rtreego.NewTree(dimensions, minChildren, maxChildren, spatials...),
		predicates: geom.Planar{},
		count:      len(items),
	}
}

// Search returns the labels whose polygon bounds intersect b, in collection order
func (idx *Index[L]) Search(b orb.Bound) []L {
	results := idx.tree.SearchIntersect(toRect(b))
	if len(results) == 0 {
		return nil
	}

	hits := make([]*spatialPolygon[L], 0, len(results))
	for _, result := range results {
		if item, ok := result.(*spatialPolygon[L]); ok {
			hits = append(hits, item)
		}
	}
	sortByOrder(hits)

	labels := make([]L, 0, len(hits))
	last := -1
	for _, item := range hits {
		if item.order == last {
			continue
		}
		labels = append(labels, item.label)
		last = item.order
	}
	return labels
}

// Locate returns the first region, in collection order, whose polygon contains p
func (idx *Index[L]) Locate(p orb.Point) (L, bool) {
	results := idx.tree.SearchIntersect(toRect(p.Bound()))

	var (
		best  L
		found bool
		order int
	)
	for _, result := range results {
		item, ok := result.(*spatialPolygon[L])
		if !ok {
			continue
		}
		if found && item.order >= order {
			continue
		}
		if idx.predicates.Contains(orb.MultiPolygon{item.polygon}, p) {
			best, found, order = item.label, true, item.order
		}
	}
	return best, found
}

// Count returns the number of indexed polygons
func (idx *Index[L]) Count() int64 {
	return int64(idx.count)
}

// toRect converts an orb bound to an rtreego rect, padding degenerate sides
func toRect(b orb.Bound) *rtreego.Rect {
	w := b.Max[0] - b.Min[0]
	h := b.Max[1] - b.Min[1]
	rect, err := rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{w, h})
	if err != nil {
		padded := b.Pad(tolerance)
		rect, err = rtreego.NewRect(
			rtreego.Point{padded.Min[0], padded.Min[1]},
			[]float64{padded.Max[0] - padded.Min[0], padded.Max[1] - padded.Min[1]},
		)
		if err != nil {
			return rtreego.Point{b.Min[0], b.Min[1]}.ToRect(tolerance)
		}
	}
	return rect
}

func sortByOrder[L comparable](items []*spatialPolygon[L]) {
	sort.Slice(items, func(i, j int) bool { return items[i].order < items[j].order })
}
