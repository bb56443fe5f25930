package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kass/go-geo-label/pkg/partition"
	"github.com/kass/go-geo-label/pkg/region"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Source loads the regions a tree is built from. It is only called on a cache miss.
type Source[L comparable] func(ctx context.Context) (*region.Collection[L], error)

// Manager keeps built trees in memory, backed by a Store.
// Concurrent Get calls for the same key share one load or build.
type Manager[L comparable] struct {
	store Store
	group singleflight.Group

	mu    sync.RWMutex
	trees map[Key]*partition.Tree[L]
}

// NewManager uses store for persistence; a nil store disables it
func NewManager[L comparable](store Store) *Manager[L] {
	if store == nil {
		store = NopStore{}
	}
	return &Manager[L]{
		store: store,
		trees: make(map[Key]*partition.Tree[L]),
	}
}

// Get returns the tree for key from memory, then the store, and builds it from
// source when neither has a compatible copy. Store failures are logged and fall
// back to a rebuild. The shared load or build ignores cancellation of any single
// caller, so one abandoned request does not fail the others waiting on it.
func (m *Manager[L]) Get(ctx context.Context, key Key, source Source[L], opts ...partition.Option) (*partition.Tree[L], error) {
	if t, ok := m.cached(key); ok {
		return t, nil
	}

	v, err, _ := m.group.Do(key.String(), func() (interface{}, error) {
		if t, ok := m.cached(key); ok {
			return t, nil
		}
		ctx := context.WithoutCancel(ctx)

		t, err := m.load(ctx, key)
		if err != nil {
			t, err = m.build(ctx, key, source, opts)
			if err != nil {
				return nil, err
			}
		}

		m.mu.Lock()
		m.trees[key] = t
		m.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*partition.Tree[L]), nil
}

func (m *Manager[L]) cached(key Key) (*partition.Tree[L], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trees[key]
	return t, ok
}

func (m *Manager[L]) load(ctx context.Context, key Key) (*partition.Tree[L], error) {
	logger := log.WithField("key", key.Name())

	data, err := m.store.Load(ctx, key.Name())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.WithError(err).Warn("Failed to read cached tree, rebuilding")
		} else {
			logger.Info("Cache miss")
		}
		return nil, err
	}

	t, meta, err := partition.Unmarshal[L](data)
	if err != nil {
		logger.WithError(err).Warn("Failed to decode cached tree, rebuilding")
		return nil, err
	}
	if !meta.Compatible(key.Kind, key.MaxDepth) {
		logger.WithFields(logrus.Fields{
			"kind":      meta.Kind,
			"max_depth": meta.MaxDepth,
			"version":   meta.Version,
		}).Warn("Cached tree built with different parameters, rebuilding")
		return nil, partition.ErrIncompatibleSnapshot
	}

	logger.WithFields(logrus.Fields{"leaves": meta.Leaves, "built_at": meta.BuiltAt}).Info("Cache hit")
	return t, nil
}

func (m *Manager[L]) build(ctx context.Context, key Key, source Source[L], opts []partition.Option) (*partition.Tree[L], error) {
	if source == nil {
		return nil, fmt.Errorf("no source for %s", key)
	}
	c, err := source(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load regions: %w", err)
	}

	start := time.Now()
	opts = append([]partition.Option{partition.WithMaxDepth(key.MaxDepth)}, opts...)
	t, err := partition.Build(c, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build tree: %w", err)
	}
	buildTime := time.Since(start)

	logger := log.WithFields(logrus.Fields{"key": key.Name(), "build_time": buildTime})
	data, err := partition.Marshal(t, partition.NewMeta(key.Kind, t))
	if err != nil {
		logger.WithError(err).Warn("Failed to encode tree")
		return t, nil
	}
	if err := m.store.Save(ctx, key.Name(), data); err != nil {
		logger.WithError(err).Warn("Failed to save tree")
		return t, nil
	}
	logger.WithField("bytes", len(data)).Info("Tree saved")
	return t, nil
}

// Forget drops key from memory. The stored copy is kept.
func (m *Manager[L]) Forget(key Key) {
	m.mu.Lock()
	delete(m.trees, key)
	m.mu.Unlock()
}

// Keys lists the trees held in memory
func (m *Manager[L]) Keys() []Key {
	m.mu.RLock()
	keys := make([]Key, 0, len(m.trees))
	for k := range m.trees {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].MaxDepth < keys[j].MaxDepth
	})
	return keys
}
