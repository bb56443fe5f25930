package partition

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// RenderGeoJSON returns one feature per leaf rectangle, for viewing the
// partition in any GeoJSON viewer
func RenderGeoJSON[L comparable](t *Tree[L]) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	t.Walk(func(n *Node[L], depth int) bool {
		if !n.IsLeaf() {
			return true
		}

		labels := make([]string, 0, len(n.Entries))
		for _, e := range n.Entries {
			labels = append(labels, fmt.Sprint(e.Label))
		}

		f := geojson.NewFeature(n.Bound.ToPolygon())
		f.Properties["depth"] = depth
		f.Properties["entries"] = len(n.Entries)
		f.Properties["labels"] = labels
		f.Properties["covered"] = n.Covered
		fc.Append(f)
		return true
	})
	return fc
}
