// Package region holds the label to multi-polygon mapping the partition tree indexes.
package region

import (
	"github.com/paulmach/orb"
)

// Collection maps labels to their multi-polygon outlines.
// Labels keep the order in which they were first added. A Collection is filled once
// by a loader and is read-only afterwards, so it is safe to share between the
// goroutines of a parallel build.
type Collection[L comparable] struct {
	labels []L
	shapes map[L]orb.MultiPolygon
	bound  orb.Bound
	empty  bool
}

// NewCollection creates an empty collection
func NewCollection[L comparable]() *Collection[L] {
	return &Collection[L]{
		shapes: make(map[L]orb.MultiPolygon),
		empty:  true,
	}
}

// FromMap builds a collection from a plain map. Label order follows the given keys
// when provided, otherwise map order.
func FromMap[L comparable](m map[L]orb.MultiPolygon, order ...L) *Collection[L] {
	c := NewCollection[L]()
	if len(order) > 0 {
		for _, label := range order {
			if mp, ok := m[label]; ok {
				c.Add(label, mp)
			}
		}
		return c
	}
	for label, mp := range m {
		c.Add(label, mp)
	}
	return c
}

// Add appends the polygons of mp to label, creating the label if needed.
// Empty polygons are ignored.
func (c *Collection[L]) Add(label L, mp orb.MultiPolygon) {
	var kept orb.MultiPolygon
	for _, p := range mp {
		if len(p) == 0 || len(p[0]) == 0 {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return
	}

	existing, found := c.shapes[label]
	if !found {
		c.labels = append(c.labels, label)
	}
	c.shapes[label] = append(existing, kept...)

	b := kept.Bound()
	if c.empty {
		c.bound = b
		c.empty = false
	} else {
		c.bound = c.bound.Union(b)
	}
}

// Labels returns a copy of the labels in insertion order
func (c *Collection[L]) Labels() []L {
	out := make([]L, len(c.labels))
	copy(out, c.labels)
	return out
}

// Polygon returns the outline stored for label
func (c *Collection[L]) Polygon(label L) (orb.MultiPolygon, bool) {
	mp, ok := c.shapes[label]
	return mp, ok
}

// Len returns the number of labels
func (c *Collection[L]) Len() int {
	return len(c.labels)
}

// Bound returns the bounding box of every polygon in the collection
func (c *Collection[L]) Bound() orb.Bound {
	return c.bound
}

// Each calls fn for every label in insertion order until fn returns false
func (c *Collection[L]) Each(fn func(label L, mp orb.MultiPolygon) bool) {
	for _, label := range c.labels {
		if !fn(label, c.shapes[label]) {
			return
		}
	}
}
