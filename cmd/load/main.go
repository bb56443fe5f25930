package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/kass/go-geo-label/pkg/cache"
	"github.com/kass/go-geo-label/pkg/dataset"
	"github.com/kass/go-geo-label/pkg/logging"
	"github.com/kass/go-geo-label/pkg/partition"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "load")

func main() {
	var (
		inputFile  = flag.String("g", "data/ne_10m_admin_0_countries_lakes.geojson", "GeoJSON boundary file")
		property   = flag.String("p", "ISO_A2", "Feature property holding the label")
		kind       = flag.String("k", "countries", "Label kind stored in the snapshot")
		outputFile = flag.String("o", "", "Output file path (default data/cache/<kind>_label_tree_<depth>.gob)")
		depth      = flag.Int("d", partition.DefaultMaxDepth, "Maximum tree depth")
		parallel   = flag.Int("parallel", partition.DefaultParallelDepth, "Depth up to which subtrees build concurrently")
	)
	flag.Parse()

	if err := logging.Setup("info", "text"); err != nil {
		log.Fatal(err)
	}
	if *outputFile == "" {
		*outputFile = filepath.Join("data", "cache", cache.Key{Kind: *kind, MaxDepth: *depth}.Name())
	}
	if err := os.MkdirAll(filepath.Dir(*outputFile), 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	log.Infof("Loading regions from %s...", *inputFile)
	start := time.Now()
	c, err := dataset.LoadCollection(*inputFile, *property)
	if err != nil {
		log.Fatalf("Failed to load regions: %v", err)
	}
	log.Infof("Loaded %d regions in %v", c.Len(), time.Since(start))

	log.Infof("Building partition tree to depth %d...", *depth)
	start = time.Now()
	tree, err := partition.Build(c, partition.WithMaxDepth(*depth), partition.WithParallelDepth(*parallel))
	if err != nil {
		log.Fatalf("Failed to build tree: %v", err)
	}
	buildTime := time.Since(start)
	log.Infof("Tree built in %v (%d leaves)", buildTime, tree.Size())

	log.Infof("Saving tree to %s...", *outputFile)
	start = time.Now()
	if err := partition.SaveToFile(*outputFile, tree, partition.NewMeta(*kind, tree)); err != nil {
		log.Fatalf("Failed to save tree: %v", err)
	}
	log.Infof("Tree saved in %v", time.Since(start))

	// Print statistics
	if fileInfo, err := os.Stat(*outputFile); err == nil {
		log.Infof("Tree file size: %.2f MB", float64(fileInfo.Size())/(1024*1024))
	}
	s := tree.Stats()
	log.WithFields(logrus.Fields{
		"leaves":   s.Leaves,
		"covered":  s.CoveredLeaves,
		"empty":    s.EmptyLeaves,
		"entries":  s.Entries,
		"vertices": s.Vertices,
	}).Info("Tree statistics")
}
