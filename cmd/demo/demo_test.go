package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kass/go-geo-label/pkg/rtree"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoRegions(t *testing.T) {
	c := demoRegions(4)
	assert.Equal(t, 32, c.Len())
	assert.Equal(t, orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}, c.Bound())

	label, ok := rtree.NewIndex(c).Locate(orb.Point{-170, -88})
	require.True(t, ok)
	assert.Equal(t, "C0000L", label)
}

func TestBuildAndQuery(t *testing.T) {
	c := demoRegions(4)
	tree, bs, err := buildTree(c, 5)
	require.NoError(t, err)
	assert.Equal(t, 32, bs.regions)
	assert.Equal(t, tree.Size(), bs.tree.Leaves)

	qs := runQueries(tree, rtree.NewIndex(c), 2000, nil)
	assert.Equal(t, int64(2000), qs.queries)
	// the triangles tile the world, so every point gets a label
	assert.Equal(t, int64(2000), qs.hits)
	assert.GreaterOrEqual(t, qs.agreement, 99.0)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.Demo.Grid)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("demo:\n  grid: 8\npostgis:\n  host: db\n"), 0o644))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Demo.Grid)
	assert.Equal(t, 8, cfg.Demo.MaxDepth)
	assert.Equal(t, "db", cfg.PostGIS.Host)
	assert.Equal(t, 5432, cfg.PostGIS.Port)

	require.NoError(t, os.WriteFile(path, []byte("demo:\n  grid: 0\n"), 0o644))
	_, err = loadConfig(path)
	assert.Error(t, err)
}
