package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kass/go-geo-label/pkg/partition"
	"github.com/kass/go-geo-label/pkg/postgis"
	"github.com/kass/go-geo-label/pkg/region"
	"github.com/kass/go-geo-label/pkg/rtree"
	"github.com/mattn/go-isatty"
	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// Config structure for YAML configuration
type Config struct {
	Demo struct {
		Grid     int `yaml:"grid"`
		Queries  int `yaml:"queries"`
		MaxDepth int `yaml:"max_depth"`
	} `yaml:"demo"`
	PostGIS struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		Queries  int    `yaml:"queries"`
	} `yaml:"postgis"`
}

var (
	// ANSI color codes
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func isTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func init() {
	// Disable colors if not in a terminal
	if !isTerminal() {
		colorReset = ""
		colorRed = ""
		colorGreen = ""
		colorYellow = ""
		colorPurple = ""
		colorCyan = ""
		colorBold = ""
	}
}

func printTitle(title string) {
	fmt.Printf("\n%s%s🌍 %s%s\n", colorBold, colorPurple, title, colorReset)
	fmt.Println(strings.Repeat("=", 60))
}

func printSubtitle(subtitle string) {
	fmt.Printf("\n%s%s%s%s\n", colorBold, colorCyan, subtitle, colorReset)
}

func printSuccess(message string) {
	fmt.Printf("%s✓ %s%s\n", colorGreen, message, colorReset)
}

func printError(message string) {
	fmt.Printf("%s✗ %s%s\n", colorRed, message, colorReset)
}

func printStat(label string, value interface{}) {
	fmt.Printf("  %s%s:%s %s%v%s\n", colorBold, label, colorReset, colorYellow, value, colorReset)
}

func printProgress(fraction float64, label string) {
	barLength := 40
	filled := int(fraction * float64(barLength))
	bar := "[" + strings.Repeat("█", filled) + strings.Repeat("░", barLength-filled) + "]"

	fmt.Printf("\r%s %s%.1f%%%s %s", label, colorCyan, fraction*100, colorReset, bar)
	if fraction >= 1 {
		fmt.Println()
	}
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	cfg.Demo.Grid = 24
	cfg.Demo.Queries = 200000
	cfg.Demo.MaxDepth = 8
	cfg.PostGIS.Port = 5432
	cfg.PostGIS.Queries = 1000

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Demo.Grid < 1 {
		return cfg, fmt.Errorf("demo.grid must be positive, got %d", cfg.Demo.Grid)
	}
	return cfg, nil
}

// demoRegions splits the world into grid x grid cells and each cell into two
// triangles, so that every leaf along a diagonal needs a clipped polygon
func demoRegions(grid int) *region.Collection[string] {
	c := region.NewCollection[string]()
	w := 360.0 / float64(grid)
	h := 180.0 / float64(grid)

	for i := 0; i < grid; i++ {
		for j := 0; j < grid; j++ {
			x0, y0 := -180+float64(i)*w, -90+float64(j)*h
			x1, y1 := x0+w, y0+h
			lower := orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y0}}}
			upper := orb.Polygon{{{x0, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
			c.Add(fmt.Sprintf("C%02d%02dL", i, j), orb.MultiPolygon{lower})
			c.Add(fmt.Sprintf("C%02d%02dU", i, j), orb.MultiPolygon{upper})
		}
	}
	return c
}

type buildStats struct {
	regions  int
	duration time.Duration
	tree     partition.Stats
}

func buildTree(c *region.Collection[string], depth int) (*partition.Tree[string], buildStats, error) {
	start := time.Now()
	tree, err := partition.Build(c, partition.WithMaxDepth(depth))
	if err != nil {
		return nil, buildStats{}, err
	}
	return tree, buildStats{regions: c.Len(), duration: time.Since(start), tree: tree.Stats()}, nil
}

type queryStats struct {
	queries   int64
	totalTime time.Duration
	hits      int64
	avgTime   time.Duration
	perSec    float64
	agreement float64
}

// runQueries labels n random points on all cores, reporting progress as a fraction,
// then checks a sample of points against the R-Tree baseline
func runQueries(tree *partition.Tree[string], baseline *rtree.Index[string], n int, progress func(float64)) queryStats {
	numWorkers := runtime.NumCPU()
	perWorker := n / numWorkers

	var done, hits atomic.Int64
	var wg sync.WaitGroup
	stop := make(chan struct{})

	if progress != nil {
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					progress(min(float64(done.Load())/float64(n), 1))
				case <-stop:
					return
				}
			}
		}()
	}

	start := time.Now()
	for w := 0; w < numWorkers; w++ {
		count := perWorker
		if w == numWorkers-1 {
			count = n - perWorker*(numWorkers-1)
		}

		wg.Add(1)
		go func(seed int64, count int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			var localHits int64
			for i := 0; i < count; i++ {
				p := orb.Point{r.Float64()*360 - 180, r.Float64()*180 - 90}
				if _, ok := tree.Label(p); ok {
					localHits++
				}
				if i%1024 == 0 {
					done.Add(1024)
				}
			}
			hits.Add(localHits)
		}(time.Now().UnixNano()+int64(w), count)
	}
	wg.Wait()
	elapsed := time.Since(start)
	close(stop)
	if progress != nil {
		progress(1)
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	sample := min(n, 5000)
	agree := 0
	for i := 0; i < sample; i++ {
		p := orb.Point{r.Float64()*360 - 180, r.Float64()*180 - 90}
		a, aok := tree.Label(p)
		b, bok := baseline.Locate(p)
		if aok == bok && a == b {
			agree++
		}
	}

	return queryStats{
		queries:   int64(n),
		totalTime: elapsed,
		hits:      hits.Load(),
		avgTime:   elapsed / time.Duration(max(n, 1)),
		perSec:    float64(n) / elapsed.Seconds(),
		agreement: float64(agree) / float64(max(sample, 1)) * 100,
	}
}

// runPostGIS loads the regions into PostGIS and times the same lookups there
func runPostGIS(ctx context.Context, cfg Config, c *region.Collection[string]) (queryStats, error) {
	dsn := postgis.DSN(cfg.PostGIS.Host, cfg.PostGIS.User, cfg.PostGIS.Password, cfg.PostGIS.Database, cfg.PostGIS.Port)
	db, err := postgis.NewPostGISIndex(dsn)
	if err != nil {
		return queryStats{}, err
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		return queryStats{}, err
	}
	if err := db.BulkInsertRegions(ctx, c); err != nil {
		return queryStats{}, err
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	n := cfg.PostGIS.Queries
	var hits int64
	start := time.Now()
	for i := 0; i < n; i++ {
		p := orb.Point{r.Float64()*360 - 180, r.Float64()*180 - 90}
		_, ok, err := db.Label(ctx, p)
		if err != nil {
			return queryStats{}, err
		}
		if ok {
			hits++
		}
	}
	elapsed := time.Since(start)

	return queryStats{
		queries:   int64(n),
		totalTime: elapsed,
		hits:      hits,
		avgTime:   elapsed / time.Duration(max(n, 1)),
		perSec:    float64(n) / elapsed.Seconds(),
	}, nil
}

// runPlain prints the demo as plain lines, for pipes and CI logs
func runPlain(cfg Config) error {
	printTitle("Go Geo-Label Demo")

	printSubtitle("Building partition tree")
	c := demoRegions(cfg.Demo.Grid)
	tree, bs, err := buildTree(c, cfg.Demo.MaxDepth)
	if err != nil {
		printError(err.Error())
		return err
	}
	printSuccess(fmt.Sprintf("Built tree over %d regions in %v", bs.regions, bs.duration))
	printStat("Leaves", bs.tree.Leaves)
	printStat("Covered leaves", bs.tree.CoveredLeaves)
	printStat("Empty leaves", bs.tree.EmptyLeaves)
	printStat("Stored vertices", bs.tree.Vertices)

	printSubtitle("Labelling random points")
	baseline := rtree.NewIndex(c)
	qs := runQueries(tree, baseline, cfg.Demo.Queries, func(f float64) { printProgress(f, "Labelling") })
	printStat("Total queries", qs.queries)
	printStat("Total time", qs.totalTime)
	printStat("Queries per second", fmt.Sprintf("%.0f", qs.perSec))
	printStat("Average query time", qs.avgTime)
	printStat("Agreement with R-Tree", fmt.Sprintf("%.2f%%", qs.agreement))

	if cfg.PostGIS.Host == "" {
		return nil
	}

	printSubtitle("PostGIS comparison")
	ps, err := runPostGIS(context.Background(), cfg, c)
	if err != nil {
		printError(fmt.Sprintf("PostGIS benchmark failed: %v", err))
		return nil
	}
	printStat("PostGIS queries per second", fmt.Sprintf("%.0f", ps.perSec))
	printStat("PostGIS average query time", ps.avgTime)
	printStat("Speedup", fmt.Sprintf("%.0fx", qs.perSec/ps.perSec))
	return nil
}
