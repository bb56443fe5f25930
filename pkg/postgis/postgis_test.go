package postgis

import (
	"context"
	"os"
	"testing"

	"github.com/kass/go-geo-label/pkg/region"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"host=localhost port=5432 user=geo password=secret dbname=geodb sslmode=disable",
		DSN("localhost", "geo", "secret", "geodb", 5432))
}

func TestNewPostGISIndexBadDSN(t *testing.T) {
	_, err := NewPostGISIndex("host=127.0.0.1 port=1 user=x dbname=x sslmode=disable connect_timeout=1")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	dsn := os.Getenv("GEOLABEL_TEST_POSTGIS_DSN")
	if dsn == "" {
		t.Skip("GEOLABEL_TEST_POSTGIS_DSN not set")
	}

	index, err := NewPostGISIndex(dsn)
	require.NoError(t, err)
	defer index.Close()
	require.NoError(t, index.InitSchema())

	c := region.NewCollection[string]()
	c.Add("A", orb.MultiPolygon{orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}.ToPolygon()})
	c.Add("B", orb.MultiPolygon{orb.Bound{Min: orb.Point{10, 0}, Max: orb.Point{20, 10}}.ToPolygon()})

	ctx := context.Background()
	require.NoError(t, index.BulkInsertRegions(ctx, c))

	count, err := index.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	label, found, err := index.Label(ctx, orb.Point{15, 5})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "B", label)

	_, found, err = index.Label(ctx, orb.Point{50, 50})
	require.NoError(t, err)
	assert.False(t, found)

	loaded, err := index.LoadCollection(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, loaded.Labels())

	stats, err := index.GetDatabaseStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats["row_count"])
}
