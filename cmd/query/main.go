package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kass/go-geo-label/pkg/dataset"
	"github.com/kass/go-geo-label/pkg/logging"
	"github.com/kass/go-geo-label/pkg/models"
	"github.com/kass/go-geo-label/pkg/partition"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "query")

func main() {
	var (
		treeFile  = flag.String("i", "data/cache/countries_label_tree_6.gob", "Partition tree file")
		queryType = flag.String("t", "point", "Query type: point, batch, leaves")
		// Point query parameters
		lat = flag.Float64("lat", 0, "Latitude (point query)")
		lon = flag.Float64("lon", 0, "Longitude (point query)")
		// Leaves query parameters
		minLat = flag.Float64("min-lat", -90, "Minimum latitude (leaves query)")
		maxLat = flag.Float64("max-lat", 90, "Maximum latitude (leaves query)")
		minLon = flag.Float64("min-lon", -180, "Minimum longitude (leaves query)")
		maxLon = flag.Float64("max-lon", 180, "Maximum longitude (leaves query)")
		// Output format
		outputJSON = flag.Bool("json", false, "Output results as JSON")
		limit      = flag.Int("limit", 100, "Maximum number of leaves to display")
	)
	flag.Parse()

	if err := logging.Setup("info", "text"); err != nil {
		log.Fatal(err)
	}

	log.Infof("Loading tree from %s...", *treeFile)
	tree, meta, err := partition.LoadFromFile[string](*treeFile)
	if err != nil {
		log.Fatalf("Failed to load tree: %v", err)
	}
	log.Infof("Tree loaded: %s, depth %d, %d leaves", meta.Kind, meta.MaxDepth, meta.Leaves)

	switch *queryType {
	case "point":
		loc := models.Location{Lat: *lat, Lon: *lon}
		if err := loc.Validate(); err != nil {
			log.Fatalf("Invalid point: %v", err)
		}
		printResult(labelLocation(tree, loc), *outputJSON)

	case "batch":
		// one "lat,lon" pair per line
		scanner := bufio.NewScanner(os.Stdin)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			loc, err := parseLine(text)
			if err != nil {
				log.WithField("line", line).Warnf("Skipping: %v", err)
				continue
			}
			printResult(labelLocation(tree, loc), *outputJSON)
		}
		if err := scanner.Err(); err != nil {
			log.Fatalf("Failed to read input: %v", err)
		}

	case "leaves":
		box := models.BoundingBox{
			BottomLeft: models.Location{Lat: *minLat, Lon: *minLon},
			TopRight:   models.Location{Lat: *maxLat, Lon: *maxLon},
		}
		if err := box.Validate(); err != nil {
			log.Fatalf("Invalid box: %v", err)
		}
		printLeaves(tree, box, *limit)

	default:
		log.Fatalf("Unknown query type: %s", *queryType)
	}
}

func labelLocation(tree *partition.Tree[string], loc models.Location) models.LabelResult {
	label, found := tree.Label(loc.Point())
	if !found {
		label = dataset.UnknownLabel
	}
	return models.LabelResult{Label: label, Found: found, Lat: loc.Lat, Lon: loc.Lon}
}

func parseLine(text string) (models.Location, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return models.Location{}, fmt.Errorf("expected lat,lon, got %q", text)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("invalid latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("invalid longitude: %w", err)
	}
	loc := models.Location{Lat: lat, Lon: lon}
	return loc, loc.Validate()
}

func printResult(r models.LabelResult, asJSON bool) {
	if asJSON {
		if err := json.NewEncoder(os.Stdout).Encode(r); err != nil {
			log.Fatalf("Failed to encode result: %v", err)
		}
		return
	}
	fmt.Printf("%.6f,%.6f\t%s\n", r.Lat, r.Lon, r.Label)
}

type leaf struct {
	Depth   int                `json:"depth"`
	Bound   models.BoundingBox `json:"bound"`
	Covered bool               `json:"covered"`
	Labels  []string           `json:"labels"`
}

func printLeaves(tree *partition.Tree[string], box models.BoundingBox, limit int) {
	area := box.Bound()
	var leaves []leaf
	total := 0

	tree.Walk(func(n *partition.Node[string], depth int) bool {
		if !n.Bound.Intersects(area) {
			return false
		}
		if !n.IsLeaf() || len(n.Entries) == 0 {
			return true
		}
		total++
		if len(leaves) >= limit {
			return true
		}

		l := leaf{
			Depth:   depth,
			Covered: n.Covered,
			Bound: models.BoundingBox{
				BottomLeft: models.Location{Lat: n.Bound.Min.Lat(), Lon: n.Bound.Min.Lon()},
				TopRight:   models.Location{Lat: n.Bound.Max.Lat(), Lon: n.Bound.Max.Lon()},
			},
		}
		for _, e := range n.Entries {
			l.Labels = append(l.Labels, e.Label)
		}
		leaves = append(leaves, l)
		return true
	})

	if total > len(leaves) {
		log.Infof("Showing first %d of %d leaves (use -limit to see more)", len(leaves), total)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(leaves); err != nil {
		log.Fatalf("Failed to encode leaves: %v", err)
	}
}
