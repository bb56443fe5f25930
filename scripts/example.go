package main

import (
	"bytes"
	"fmt"
	"log"

	"github.com/kass/go-geo-label/pkg/models"
	"github.com/kass/go-geo-label/pkg/partition"
	"github.com/kass/go-geo-label/pkg/region"
	"github.com/paulmach/orb"
)

func main() {
	// Rough outlines of a few Western European countries
	regions := region.NewCollection[string]()
	regions.Add("FR", orb.MultiPolygon{{{
		{-4.8, 48.5}, {2.5, 51.1}, {8.2, 49.0}, {7.5, 43.8}, {3.1, 42.4}, {-1.8, 43.4}, {-4.8, 48.5},
	}}})
	regions.Add("ES", orb.MultiPolygon{{{
		{-9.3, 43.0}, {-1.8, 43.4}, {3.1, 42.4}, {0.2, 38.8}, {-2.0, 36.7}, {-7.4, 37.2}, {-9.3, 43.0},
	}}})
	regions.Add("DE", orb.MultiPolygon{{{
		{6.0, 51.0}, {8.2, 49.0}, {7.6, 47.6}, {13.0, 47.5}, {14.8, 51.0}, {14.2, 53.9}, {8.6, 54.9}, {6.0, 51.0},
	}}})

	tree, err := partition.Build(regions, partition.WithMaxDepth(10))
	if err != nil {
		log.Fatal(err)
	}
	stats := tree.Stats()
	fmt.Printf("Built tree with %d leaves (%d covered, %d empty)\n\n", stats.Leaves, stats.CoveredLeaves, stats.EmptyLeaves)

	cities := []struct {
		Name     string
		Location models.Location
	}{
		{"Paris", models.Location{Lat: 48.8566, Lon: 2.3522}},
		{"Lyon", models.Location{Lat: 45.7640, Lon: 4.8357}},
		{"Madrid", models.Location{Lat: 40.4168, Lon: -3.7038}},
		{"Berlin", models.Location{Lat: 52.5200, Lon: 13.4050}},
		{"Munich", models.Location{Lat: 48.1351, Lon: 11.5820}},
		{"London", models.Location{Lat: 51.5074, Lon: -0.1278}},
	}

	// Example 1: Label cities
	fmt.Println("City labels:")
	for _, city := range cities {
		label, found := tree.Label(city.Location.Point())
		if !found {
			label = "not in any region"
		}
		fmt.Printf("  %-8s %s\n", city.Name, label)
	}

	// Example 2: Save and restore the tree
	var buf bytes.Buffer
	if err := partition.Encode(&buf, tree, partition.NewMeta("example", tree)); err != nil {
		log.Fatal(err)
	}
	size := buf.Len()
	restored, meta, err := partition.Decode[string](&buf)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("\nRestored %q tree from %d bytes, %d leaves\n", meta.Kind, size, restored.Size())

	paris := cities[0].Location.Point()
	label, _ := restored.Label(paris)
	fmt.Printf("Paris after restore: %s\n", label)
}
