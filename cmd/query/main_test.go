package main

import (
	"testing"

	"github.com/kass/go-geo-label/pkg/dataset"
	"github.com/kass/go-geo-label/pkg/models"
	"github.com/kass/go-geo-label/pkg/partition"
	"github.com/kass/go-geo-label/pkg/region"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	testCases := []struct {
		name    string
		line    string
		want    models.Location
		wantErr bool
	}{
		{"plain", "48.85,2.35", models.Location{Lat: 48.85, Lon: 2.35}, false},
		{"spaces", " -33.9 , 18.4 ", models.Location{Lat: -33.9, Lon: 18.4}, false},
		{"one field", "48.85", models.Location{}, true},
		{"three fields", "1,2,3", models.Location{}, true},
		{"not a number", "abc,2", models.Location{}, true},
		{"out of range", "91,0", models.Location{}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := parseLine(tc.line)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, loc)
		})
	}
}

func TestLabelLocation(t *testing.T) {
	c := region.NewCollection[string]()
	c.Add("FR", orb.MultiPolygon{orb.Bound{Min: orb.Point{0, 42}, Max: orb.Point{8, 51}}.ToPolygon()})
	tree, err := partition.Build(c, partition.WithMaxDepth(4))
	require.NoError(t, err)

	hit := labelLocation(tree, models.Location{Lat: 48.85, Lon: 2.35})
	assert.Equal(t, "FR", hit.Label)
	assert.True(t, hit.Found)

	miss := labelLocation(tree, models.Location{Lat: 0, Lon: -30})
	assert.Equal(t, dataset.UnknownLabel, miss.Label)
	assert.False(t, miss.Found)
}
