package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kass/go-geo-label/pkg/dataset"
	"github.com/kass/go-geo-label/pkg/logging"
	"github.com/kass/go-geo-label/pkg/models"
	"github.com/kass/go-geo-label/pkg/partition"
	"github.com/kass/go-geo-label/pkg/postgis"
	"github.com/kass/go-geo-label/pkg/rtree"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "benchmark")

type BenchmarkResult struct {
	QueryType     string
	TotalQueries  int
	TotalDuration time.Duration
	AvgDuration   time.Duration
	QueriesPerSec float64
	MinDuration   time.Duration
	MaxDuration   time.Duration
	TotalResults  int64
	Errors        int64
}

// query runs one random lookup and returns how many results it produced
type query func(r *rand.Rand) (int, error)

func main() {
	var (
		treeFile   = flag.String("i", "data/cache/countries_label_tree_6.gob", "Partition tree file")
		dataFile   = flag.String("g", "data/ne_10m_admin_0_countries_lakes.geojson", "GeoJSON file for the R-Tree baseline")
		property   = flag.String("p", "ISO_A2", "Label property of the GeoJSON features")
		queryType  = flag.String("t", "mixed", "Query type: tree, rtree, box, postgis, mixed")
		numQueries = flag.Int("n", 100000, "Number of queries to run")
		workers    = flag.Int("w", runtime.NumCPU(), "Number of concurrent workers")
		dsn        = flag.String("dsn", "", "PostGIS DSN for postgis queries")
		// Geographic bounds for random queries (default: roughly Europe)
		minLat  = flag.Float64("min-lat", 35.0, "Minimum latitude for random queries")
		maxLat  = flag.Float64("max-lat", 70.0, "Maximum latitude for random queries")
		minLon  = flag.Float64("min-lon", -10.0, "Minimum longitude for random queries")
		maxLon  = flag.Float64("max-lon", 40.0, "Maximum longitude for random queries")
		boxSize = flag.Float64("box-size", 1.0, "Box size in degrees (for box queries)")
		level   = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	if err := logging.Setup(*level, "text"); err != nil {
		log.Fatal(err)
	}

	area := models.BoundingBox{
		BottomLeft: models.Location{Lat: *minLat, Lon: *minLon},
		TopRight:   models.Location{Lat: *maxLat, Lon: *maxLon},
	}
	if err := area.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid query area")
	}
	randomPoint := func(r *rand.Rand) orb.Point {
		return orb.Point{
			*minLon + r.Float64()*(*maxLon-*minLon),
			*minLat + r.Float64()*(*maxLat-*minLat),
		}
	}

	queries := map[string]query{}
	needs := func(t string) bool { return *queryType == t || *queryType == "mixed" }

	if needs("tree") {
		log.WithField("file", *treeFile).Info("Loading partition tree")
		tree, meta, err := partition.LoadFromFile[string](*treeFile)
		if err != nil {
			log.WithError(err).Fatal("Failed to load tree")
		}
		log.WithFields(logrus.Fields{"kind": meta.Kind, "leaves": meta.Leaves, "depth": meta.MaxDepth}).Info("Tree loaded")

		queries["tree"] = func(r *rand.Rand) (int, error) {
			if _, ok := tree.Label(randomPoint(r)); ok {
				return 1, nil
			}
			return 0, nil
		}
	}

	if needs("rtree") || needs("box") {
		log.WithField("file", *dataFile).Info("Loading regions")
		c, err := dataset.LoadCollection(*dataFile, *property)
		if err != nil {
			log.WithError(err).Fatal("Failed to load regions")
		}
		index := rtree.NewIndex(c)
		log.WithField("polygons", index.Count()).Info("R-Tree built")

		if needs("rtree") {
			queries["rtree"] = func(r *rand.Rand) (int, error) {
				if _, ok := index.Locate(randomPoint(r)); ok {
					return 1, nil
				}
				return 0, nil
			}
		}
		if needs("box") {
			queries["box"] = func(r *rand.Rand) (int, error) {
				p := randomPoint(r)
				b := orb.Bound{Min: p, Max: orb.Point{p[0] + *boxSize, p[1] + *boxSize}}
				return len(index.Search(b)), nil
			}
		}
	}

	if *dsn != "" && needs("postgis") {
		db, err := postgis.NewPostGISIndex(*dsn)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to PostGIS")
		}
		defer db.Close()

		queries["postgis"] = func(r *rand.Rand) (int, error) {
			_, ok, err := db.Label(context.Background(), randomPoint(r))
			if ok {
				return 1, err
			}
			return 0, err
		}
	}

	if len(queries) == 0 {
		log.Fatalf("Unknown or unavailable query type: %s", *queryType)
	}

	for _, name := range []string{"tree", "rtree", "box", "postgis"} {
		q, ok := queries[name]
		if !ok {
			continue
		}
		n := *numQueries
		// PostGIS round trips are orders of magnitude slower
		if name == "postgis" && *queryType == "mixed" {
			n = max(n/100, 1)
		}

		log.Infof("Running %d %s queries with %d workers...", n, name, *workers)
		printResult(runBenchmark(name, n, *workers, q), *workers)
	}
}

func runBenchmark(name string, numQueries, workers int, q query) BenchmarkResult {
	var (
		totalResults atomic.Int64
		errors       atomic.Int64
		minDuration  = time.Hour
		maxDuration  time.Duration
		totalDur     time.Duration
		mu           sync.Mutex
	)

	startTime := time.Now()

	// Worker pool
	queryCh := make(chan int, numQueries)
	var wg sync.WaitGroup

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			var localMin, localMax, localTotal time.Duration
			localMin = time.Hour

			for range queryCh {
				queryStart := time.Now()
				n, err := q(r)
				queryDuration := time.Since(queryStart)

				if err != nil {
					errors.Add(1)
					continue
				}
				totalResults.Add(int64(n))
				localTotal += queryDuration
				localMin = min(localMin, queryDuration)
				localMax = max(localMax, queryDuration)
			}

			mu.Lock()
			totalDur += localTotal
			minDuration = min(minDuration, localMin)
			maxDuration = max(maxDuration, localMax)
			mu.Unlock()
		}(time.Now().UnixNano() + int64(w))
	}

	// Send queries
	for i := 0; i < numQueries; i++ {
		queryCh <- i
	}
	close(queryCh)

	wg.Wait()
	totalDuration := time.Since(startTime)

	var avgDuration time.Duration
	if ok := int64(numQueries) - errors.Load(); ok > 0 {
		avgDuration = totalDur / time.Duration(ok)
	}

	return BenchmarkResult{
		QueryType:     name,
		TotalQueries:  numQueries,
		TotalDuration: totalDuration,
		AvgDuration:   avgDuration,
		QueriesPerSec: float64(numQueries) / totalDuration.Seconds(),
		MinDuration:   minDuration,
		MaxDuration:   maxDuration,
		TotalResults:  totalResults.Load(),
		Errors:        errors.Load(),
	}
}

func printResult(result BenchmarkResult, workers int) {
	fmt.Println("\n=== Benchmark Results ===")
	fmt.Printf("Query Type: %s\n", result.QueryType)
	fmt.Printf("Total Queries: %d\n", result.TotalQueries)
	fmt.Printf("Total Duration: %v\n", result.TotalDuration)
	fmt.Printf("Average Duration: %v\n", result.AvgDuration)
	fmt.Printf("Queries/Second: %.2f\n", result.QueriesPerSec)
	fmt.Printf("Min Duration: %v\n", result.MinDuration)
	fmt.Printf("Max Duration: %v\n", result.MaxDuration)
	fmt.Printf("Total Results: %d\n", result.TotalResults)
	fmt.Printf("Hit Rate: %.2f%%\n", float64(result.TotalResults)/float64(result.TotalQueries)*100)
	if result.Errors > 0 {
		fmt.Printf("Errors: %d\n", result.Errors)
	}
	fmt.Printf("Workers Used: %d\n", workers)
	fmt.Printf("CPU Cores: %d\n", runtime.NumCPU())
}
