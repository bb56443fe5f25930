// Package partition implements the labeled quadrant partition tree.
//
// A tree is built once from a region collection. Every internal node splits its
// rectangle into four equal quadrants; every leaf keeps the labels whose outline
// reaches into its rectangle, together with the part of that outline inside it.
// Point lookups descend the quadrants and scan one small leaf.
package partition

import (
	"github.com/kass/go-geo-label/pkg/geom"
	"github.com/paulmach/orb"
)

// Entry is one label stored at a leaf, with its outline restricted to the leaf
type Entry[L comparable] struct {
	Label   L
	Polygon orb.MultiPolygon
}

// Node is either an internal node with four children or a leaf with entries.
// Children are ordered south-west, north-west, south-east, north-east.
type Node[L comparable] struct {
	Bound    orb.Bound
	Children *[4]Node[L]
	Entries  []Entry[L]
	// Covered marks a leaf whose single label covers the whole rectangle
	Covered bool
}

// IsLeaf reports whether n has no children
func (n *Node[L]) IsLeaf() bool {
	return n.Children == nil
}

// Tree is an immutable partition tree. It is safe for concurrent use.
type Tree[L comparable] struct {
	root       Node[L]
	maxDepth   int
	predicates geom.Predicates
}

// Label returns the label of a region containing p.
// When several stored regions contain p, any one of them is returned.
func (t *Tree[L]) Label(p orb.Point) (L, bool) {
	return t.label(&t.root, p)
}

func (t *Tree[L]) label(n *Node[L], p orb.Point) (L, bool) {
	if !n.Bound.Contains(p) {
		var zero L
		return zero, false
	}

	if n.Children == nil {
		for i := range n.Entries {
			e := &n.Entries[i]
			if n.Covered || t.predicates.Contains(e.Polygon, p) {
				return e.Label, true
			}
		}
		var zero L
		return zero, false
	}

	// a point on a split line is inside more than one child
	for i := range n.Children {
		if label, ok := t.label(&n.Children[i], p); ok {
			return label, true
		}
	}
	var zero L
	return zero, false
}

// Size returns the number of leaves
func (t *Tree[L]) Size() int {
	return t.root.size()
}

func (n *Node[L]) size() int {
	if n.Children == nil {
		return 1
	}
	total := 0
	for i := range n.Children {
		total += n.Children[i].size()
	}
	return total
}

// MaxDepth returns the depth budget the tree was built with
func (t *Tree[L]) MaxDepth() int {
	return t.maxDepth
}

// Bound returns the root rectangle
func (t *Tree[L]) Bound() orb.Bound {
	return t.root.Bound
}

// Root returns the root node. Callers must not modify it.
func (t *Tree[L]) Root() *Node[L] {
	return &t.root
}

// Walk visits nodes depth-first, parents before children.
// Returning false from fn skips the children of that node.
func (t *Tree[L]) Walk(fn func(n *Node[L], depth int) bool) {
	walk(&t.root, 0, fn)
}

func walk[L comparable](n *Node[L], depth int, fn func(n *Node[L], depth int) bool) {
	if !fn(n, depth) || n.Children == nil {
		return
	}
	for i := range n.Children {
		walk(&n.Children[i], depth+1, fn)
	}
}

// LeafBounds returns the rectangle of every leaf in walk order
func (t *Tree[L]) LeafBounds() []orb.Bound {
	bounds := make([]orb.Bound, 0, t.Size())
	t.Walk(func(n *Node[L], _ int) bool {
		if n.IsLeaf() {
			bounds = append(bounds, n.Bound)
		}
		return true
	})
	return bounds
}

// Stats summarises the shape of a tree
type Stats struct {
	Leaves         int `json:"leaves"`
	InternalNodes  int `json:"internal_nodes"`
	EmptyLeaves    int `json:"empty_leaves"`
	CoveredLeaves  int `json:"covered_leaves"`
	Entries        int `json:"entries"`
	Vertices       int `json:"vertices"`
	MaxLeafDepth   int `json:"max_leaf_depth"`
	MaxLeafEntries int `json:"max_leaf_entries"`
}

// Stats walks the whole tree and counts its nodes and stored geometry
func (t *Tree[L]) Stats() Stats {
	var s Stats
	t.Walk(func(n *Node[L], depth int) bool {
		if !n.IsLeaf() {
			s.InternalNodes++
			return true
		}

		s.Leaves++
		s.MaxLeafDepth = max(s.MaxLeafDepth, depth)
		s.MaxLeafEntries = max(s.MaxLeafEntries, len(n.Entries))
		if len(n.Entries) == 0 {
			s.EmptyLeaves++
		}
		if n.Covered {
			s.CoveredLeaves++
		}
		s.Entries += len(n.Entries)
		for _, e := range n.Entries {
			for _, p := range e.Polygon {
				for _, r := range p {
					s.Vertices += len(r)
				}
			}
		}
		return true
	})
	return s
}
