package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/kass/go-geo-label/pkg/cache"
	"github.com/kass/go-geo-label/pkg/config"
	"github.com/kass/go-geo-label/pkg/dataset"
	"github.com/kass/go-geo-label/pkg/logging"
	"github.com/kass/go-geo-label/pkg/models"
	"github.com/kass/go-geo-label/pkg/partition"
	"github.com/kass/go-geo-label/pkg/postgis"
	"github.com/kass/go-geo-label/pkg/region"
	"github.com/kass/go-geo-label/pkg/rtree"
	"github.com/kass/go-geo-label/pkg/server"
	"github.com/oschwald/geoip2-golang"
	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.WithField("module", "cmd")

var (
	configFile   string
	verbose      bool
	logLevel     string
	kind         string
	maxDepth     int
	cacheBackend string
	fromPostGIS  bool
	cfg          *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "geolabel",
	Short: "Point to region labelling with a quadrant partition tree",
	Long: `Builds a labeled quadrant partition tree over country or province borders and
answers "which region contains this point" lookups from the command line or over HTTP.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the boundary dataset",
	RunE:  runDownload,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the partition tree and store it in the cache",
	RunE:  runBuild,
}

var queryCmd = &cobra.Command{
	Use:   "query <lat> <lon>",
	Short: "Label a single point",
	Args:  cobra.ExactArgs(2),
	RunE:  runQuery,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve label lookups over HTTP",
	RunE:  runServe,
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Write the leaf rectangles as GeoJSON",
	RunE:  runRender,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print tree statistics",
	RunE:  runStats,
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run random point lookups against the tree and the R-Tree baseline",
	RunE:  runBench,
}

var importCmd = &cobra.Command{
	Use:   "postgis-import",
	Short: "Copy the regions into PostGIS",
	RunE:  runImport,
}

var (
	forceBuild bool
	renderOut  string
	numQueries int
	numWorkers int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&kind, "kind", "k", "", "Dataset kind (countries, provinces)")
	rootCmd.PersistentFlags().IntVarP(&maxDepth, "depth", "d", 0, "Maximum tree depth")
	rootCmd.PersistentFlags().StringVar(&cacheBackend, "cache", "", "Cache backend (file, bolt, redis, none)")
	rootCmd.PersistentFlags().BoolVar(&fromPostGIS, "from-postgis", false, "Load regions from PostGIS instead of GeoJSON")

	buildCmd.Flags().BoolVar(&forceBuild, "force", false, "Rebuild even when a cached tree exists")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "leaves.geojson", "Output file")
	benchCmd.Flags().IntVarP(&numQueries, "queries", "q", 1000000, "Number of lookups to run")
	benchCmd.Flags().IntVarP(&numWorkers, "workers", "w", runtime.NumCPU(), "Number of worker goroutines")

	rootCmd.AddCommand(downloadCmd, buildCmd, queryCmd, serveCmd, renderCmd, statsCmd, benchCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	config.LoadEnvFiles(".env", "data/.env")

	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("kind") {
		cfg.Data.Kind = kind
	}
	if flags.Changed("depth") {
		cfg.Tree.MaxDepth = maxDepth
	}
	if flags.Changed("cache") {
		cfg.Cache.Backend = cacheBackend
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return logging.Setup(cfg.Log.Level, cfg.Log.Format)
}

func selectedDataset() (dataset.Dataset, error) {
	d, err := dataset.Lookup(cfg.Data.Kind)
	if err != nil && cfg.Data.File == "" {
		return d, err
	}
	if err != nil {
		d = dataset.Dataset{Kind: cfg.Data.Kind}
	}
	if cfg.Data.Property != "" {
		d.Property = cfg.Data.Property
	}
	return d, nil
}

// regionSource loads regions from PostGIS, a configured file, or the downloaded dataset
func regionSource() cache.Source[string] {
	return func(ctx context.Context) (*region.Collection[string], error) {
		if fromPostGIS {
			index, err := postgis.NewPostGISIndex(cfg.PostGIS.DSN)
			if err != nil {
				return nil, err
			}
			defer index.Close()
			return index.LoadCollection(ctx)
		}

		d, err := selectedDataset()
		if err != nil {
			return nil, err
		}
		path := cfg.Data.File
		if path == "" {
			if path, err = dataset.Download(ctx, nil, cfg.Data.Dir, d); err != nil {
				return nil, err
			}
		}
		return dataset.LoadCollection(path, d.Property)
	}
}

func openStore() (cache.Store, func(), error) {
	switch cfg.Cache.Backend {
	case "file":
		s, err := cache.NewFileStore(cfg.Cache.Dir)
		return s, func() {}, err
	case "bolt":
		s, err := cache.OpenBoltStore(cfg.Cache.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		return cache.NewRedisStore(client, cfg.Cache.RedisPrefix, cfg.Cache.RedisTTL), func() { client.Close() }, nil
	}
	return cache.NopStore{}, func() {}, nil
}

func treeKey() cache.Key {
	return cache.Key{Kind: cfg.Data.Kind, MaxDepth: cfg.Tree.MaxDepth}
}

func buildOptions() []partition.Option {
	return []partition.Option{
		partition.WithBound(cfg.Tree.Bound.Bound()),
		partition.WithParallelDepth(cfg.Tree.ParallelDepth),
	}
}

func loadTree(ctx context.Context) (*partition.Tree[string], error) {
	store, closeStore, err := openStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	defer closeStore()

	m := cache.NewManager[string](store)
	return m.Get(ctx, treeKey(), regionSource(), buildOptions()...)
}

func runDownload(cmd *cobra.Command, args []string) error {
	d, err := selectedDataset()
	if err != nil {
		return err
	}
	path, err := dataset.Download(cmd.Context(), nil, cfg.Data.Dir, d)
	if err != nil {
		return err
	}
	fmt.Printf("Dataset %s available at %s\n", d.Kind, path)
	return nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if !forceBuild {
		tree, err := loadTree(ctx)
		if err != nil {
			return err
		}
		printStats(tree)
		return nil
	}

	c, err := regionSource()(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Building %s tree over %d regions (max depth %d)...\n", cfg.Data.Kind, c.Len(), cfg.Tree.MaxDepth)

	start := time.Now()
	opts := append(buildOptions(), partition.WithMaxDepth(cfg.Tree.MaxDepth))
	tree, err := partition.Build(c, opts...)
	if err != nil {
		return err
	}
	fmt.Printf("Built %d leaves in %v\n", tree.Size(), time.Since(start))

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	data, err := partition.Marshal(tree, partition.NewMeta(cfg.Data.Kind, tree))
	if err != nil {
		return err
	}
	if err := store.Save(ctx, treeKey().Name(), data); err != nil {
		return fmt.Errorf("failed to save tree: %w", err)
	}
	fmt.Printf("Tree saved as %s (%d bytes)\n", treeKey().Name(), len(data))
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid latitude %q", args[0])
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid longitude %q", args[1])
	}
	loc := models.Location{Lat: lat, Lon: lon}
	if err := loc.Validate(); err != nil {
		return err
	}

	tree, err := loadTree(cmd.Context())
	if err != nil {
		return err
	}

	start := time.Now()
	label, found := tree.Label(loc.Point())
	elapsed := time.Since(start)
	if !found {
		label = dataset.UnknownLabel
	}
	fmt.Printf("%s\n", label)
	if verbose {
		fmt.Printf("found=%v lookup=%v\n", found, elapsed)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree, err := loadTree(ctx)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithKind(cfg.Data.Kind),
		server.WithUnknownLabel(dataset.UnknownLabel),
	}
	if cfg.Server.GeoIPPath != "" {
		db, err := geoip2.Open(cfg.Server.GeoIPPath)
		if err != nil {
			return fmt.Errorf("failed to open geoip database: %w", err)
		}
		defer db.Close()
		opts = append(opts, server.WithGeoIP(db))
	}

	srv := server.New(tree, opts...)
	return srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout)
}

func runRender(cmd *cobra.Command, args []string) error {
	tree, err := loadTree(cmd.Context())
	if err != nil {
		return err
	}

	data, err := partition.RenderGeoJSON(tree).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode geojson: %w", err)
	}
	if err := os.WriteFile(renderOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", renderOut, err)
	}
	fmt.Printf("Wrote %d leaf rectangles to %s\n", tree.Size(), renderOut)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	tree, err := loadTree(cmd.Context())
	if err != nil {
		return err
	}
	printStats(tree)
	return nil
}

func printStats(tree *partition.Tree[string]) {
	s := tree.Stats()
	fmt.Printf("Tree %s (max depth %d)\n", treeKey().Name(), tree.MaxDepth())
	fmt.Printf("Leaves: %d\n", s.Leaves)
	fmt.Printf("Internal nodes: %d\n", s.InternalNodes)
	fmt.Printf("Empty leaves: %d\n", s.EmptyLeaves)
	fmt.Printf("Covered leaves: %d\n", s.CoveredLeaves)
	fmt.Printf("Stored entries: %d (max %d per leaf)\n", s.Entries, s.MaxLeafEntries)
	fmt.Printf("Stored vertices: %d\n", s.Vertices)
	fmt.Printf("Deepest leaf: %d\n", s.MaxLeafDepth)
}

func runImport(cmd *cobra.Command, args []string) error {
	if cfg.PostGIS.DSN == "" {
		return fmt.Errorf("postgis.dsn is not configured")
	}
	fromPostGIS = false
	c, err := regionSource()(cmd.Context())
	if err != nil {
		return err
	}

	index, err := postgis.NewPostGISIndex(cfg.PostGIS.DSN)
	if err != nil {
		return err
	}
	defer index.Close()

	if err := index.InitSchema(); err != nil {
		return err
	}
	if err := index.BulkInsertRegions(cmd.Context(), c); err != nil {
		return err
	}

	stats, err := index.GetDatabaseStats()
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d regions into PostGIS\n", c.Len())
	for k, v := range stats {
		fmt.Printf("  %s: %v\n", k, v)
	}
	return nil
}

func runBench(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := regionSource()(ctx)
	if err != nil {
		return err
	}
	tree, err := loadTree(ctx)
	if err != nil {
		return err
	}
	baseline := rtree.NewIndex(c)

	if numWorkers < 1 {
		numWorkers = 1
	}
	fmt.Printf("Running %d lookups using %d workers...\n", numQueries, numWorkers)
	points := generateRandomPoints(numQueries)

	treeTime, treeHits := runLookups(points, func(p orb.Point) bool {
		_, found := tree.Label(p)
		return found
	})
	baseTime, baseHits := runLookups(points, func(p orb.Point) bool {
		_, found := baseline.Locate(p)
		return found
	})

	// agreement is checked on a sample, the baseline is slow
	sample := min(len(points), 10000)
	var agree int
	for _, p := range points[:sample] {
		a, aok := tree.Label(p)
		b, bok := baseline.Locate(p)
		if aok == bok && a == b {
			agree++
		}
	}

	fmt.Printf("\nPartition tree:\n")
	fmt.Printf("  Total time: %v\n", treeTime)
	fmt.Printf("  Lookups per second: %.0f\n", float64(len(points))/treeTime.Seconds())
	fmt.Printf("  Labelled: %d\n", treeHits)
	fmt.Printf("R-Tree baseline:\n")
	fmt.Printf("  Total time: %v\n", baseTime)
	fmt.Printf("  Lookups per second: %.0f\n", float64(len(points))/baseTime.Seconds())
	fmt.Printf("  Labelled: %d\n", baseHits)
	fmt.Printf("Agreement on %d sampled points: %.2f%%\n", sample, float64(agree)/float64(sample)*100)
	fmt.Printf("Speedup: %.1fx\n", baseTime.Seconds()/treeTime.Seconds())
	return nil
}

func runLookups(points []orb.Point, lookup func(orb.Point) bool) (time.Duration, int64) {
	var hits atomic.Int64
	start := time.Now()

	var wg sync.WaitGroup
	perWorker := len(points) / numWorkers
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		startIdx := w * perWorker
		endIdx := startIdx + perWorker
		if w == numWorkers-1 {
			endIdx = len(points)
		}

		go func(batch []orb.Point) {
			defer wg.Done()
			var local int64
			for _, p := range batch {
				if lookup(p) {
					local++
				}
			}
			hits.Add(local)
		}(points[startIdx:endIdx])
	}

	wg.Wait()
	return time.Since(start), hits.Load()
}

// generateRandomPoints concentrates points on land-heavy areas
func generateRandomPoints(n int) []orb.Point {
	points := make([]orb.Point, n)
	workers := runtime.NumCPU()
	batchSize := n / workers
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		startIdx := w * batchSize
		endIdx := startIdx + batchSize
		if w == workers-1 {
			endIdx = n
		}

		go func(start, end int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(start)))

			for i := start; i < end; i++ {
				var lat, lon float64
				switch r.Intn(5) {
				case 0: // North America
					lat = r.Float64()*30 + 30
					lon = r.Float64()*60 - 120
				case 1: // Europe
					lat = r.Float64()*20 + 40
					lon = r.Float64()*40 - 10
				case 2: // Asia
					lat = r.Float64()*40 + 20
					lon = r.Float64()*80 + 60
				case 3: // South America
					lat = r.Float64()*40 - 50
					lon = r.Float64()*30 - 80
				default:
					lat = r.Float64()*180 - 90
					lon = r.Float64()*360 - 180
				}
				points[i] = orb.Point{lon, lat}
			}
		}(startIdx, endIdx)
	}

	wg.Wait()
	log.WithField("points", n).Debug("Generated random points")
	return points
}
