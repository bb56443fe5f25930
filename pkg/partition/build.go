package partition

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kass/go-geo-label/pkg/geom"
	"github.com/kass/go-geo-label/pkg/region"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "partition")

const (
	// DefaultMaxDepth is the depth budget used when none is given
	DefaultMaxDepth = 6
	// MaxDepthLimit bounds the depth budget; 4^24 leaves is far beyond any useful tree
	MaxDepthLimit = 24
	// DefaultParallelDepth is how many levels fork their quadrants into goroutines
	DefaultParallelDepth = 4
)

var (
	ErrInvalidDepth    = errors.New("invalid depth")
	ErrEmptyCollection = errors.New("empty region collection")
	ErrInvalidBound    = errors.New("invalid root bound")
)

type options struct {
	bound         orb.Bound
	maxDepth      int
	parallelDepth int
	predicates    geom.Predicates
}

// Option configures Build
type Option func(*options)

// WithBound sets the root rectangle, the whole world by default
func WithBound(b orb.Bound) Option {
	return func(o *options) {
		o.bound = b
	}
}

// WithMaxDepth sets the depth budget
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// WithParallelDepth sets how many levels build their quadrants concurrently.
// Zero builds on the calling goroutine only.
func WithParallelDepth(depth int) Option {
	return func(o *options) {
		o.parallelDepth = depth
	}
}

// WithPredicates replaces the planar geometry backend
func WithPredicates(p geom.Predicates) Option {
	return func(o *options) {
		o.predicates = p
	}
}

func (o *options) validate() error {
	if o.maxDepth < 0 || o.maxDepth > MaxDepthLimit {
		return fmt.Errorf("%w: max depth %d not in [0, %d]", ErrInvalidDepth, o.maxDepth, MaxDepthLimit)
	}
	if o.parallelDepth < 0 {
		return fmt.Errorf("%w: parallel depth %d is negative", ErrInvalidDepth, o.parallelDepth)
	}
	if !geom.ValidBound(o.bound) {
		return fmt.Errorf("%w: %v", ErrInvalidBound, o.bound)
	}
	if o.predicates == nil {
		o.predicates = geom.Planar{}
	}
	return nil
}

// Build indexes every region of c into a new tree
func Build[L comparable](c *region.Collection[L], opts ...Option) (*Tree[L], error) {
	o := options{
		bound:         geom.World,
		maxDepth:      DefaultMaxDepth,
		parallelDepth: DefaultParallelDepth,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if c == nil || c.Len() == 0 {
		return nil, ErrEmptyCollection
	}

	logger := log.WithFields(logrus.Fields{
		"regions":   c.Len(),
		"max_depth": o.maxDepth,
		"bound":     o.bound,
	})
	logger.Debug("Building partition tree")
	start := time.Now()

	b := &builder[L]{
		regions:       c,
		predicates:    o.predicates,
		maxDepth:      o.maxDepth,
		parallelDepth: o.parallelDepth,
	}

	// labels whose outline misses the root entirely never reach a leaf
	candidates := make([]L, 0, c.Len())
	c.Each(func(label L, mp orb.MultiPolygon) bool {
		if o.predicates.Intersects(o.bound, mp) {
			candidates = append(candidates, label)
		}
		return true
	})

	t := &Tree[L]{
		root:       b.build(candidates, o.bound, 0),
		maxDepth:   o.maxDepth,
		predicates: o.predicates,
	}

	logger.WithFields(logrus.Fields{
		"leaves":   t.Size(),
		"duration": time.Since(start),
	}).Info("Partition tree built")
	return t, nil
}

type builder[L comparable] struct {
	regions       *region.Collection[L]
	predicates    geom.Predicates
	maxDepth      int
	parallelDepth int
}

func (b *builder[L]) build(candidates []L, bound orb.Bound, depth int) Node[L] {
	if len(candidates) == 0 {
		return Node[L]{Bound: bound}
	}

	if len(candidates) == 1 {
		label := candidates[0]
		mp, _ := b.regions.Polygon(label)
		if b.predicates.Covers(mp, bound) {
			return Node[L]{
				Bound:   bound,
				Entries: []Entry[L]{{Label: label, Polygon: orb.MultiPolygon{bound.ToPolygon()}}},
				Covered: true,
			}
		}
	}

	if depth == b.maxDepth {
		return b.clipLeaf(candidates, bound)
	}

	quadrants := geom.Quadrants(bound)
	var subsets [4][]L
	for i, q := range quadrants {
		for _, label := range candidates {
			mp, _ := b.regions.Polygon(label)
			if b.predicates.Intersects(q, mp) {
				subsets[i] = append(subsets[i], label)
			}
		}
	}

	children := new([4]Node[L])
	if depth < b.parallelDepth {
		var wg sync.WaitGroup
		for i := range quadrants {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				children[i] = b.build(subsets[i], quadrants[i], depth+1)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range quadrants {
			children[i] = b.build(subsets[i], quadrants[i], depth+1)
		}
	}

	return Node[L]{Bound: bound, Children: children}
}

// clipLeaf stores each candidate's outline clipped to bound, dropping empty clips
func (b *builder[L]) clipLeaf(candidates []L, bound orb.Bound) Node[L] {
	n := Node[L]{Bound: bound}
	for _, label := range candidates {
		mp, _ := b.regions.Polygon(label)
		if clipped := b.predicates.Clip(bound, mp); len(clipped) > 0 {
			n.Entries = append(n.Entries, Entry[L]{Label: label, Polygon: clipped})
		}
	}
	return n
}
