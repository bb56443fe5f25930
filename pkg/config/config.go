// Package config loads geolabel settings from YAML, .env files and GEOLABEL_*
// environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kass/go-geo-label/pkg/models"
	"github.com/kass/go-geo-label/pkg/partition"
	"gopkg.in/yaml.v3"
)

const envPrefix = "GEOLABEL_"

type Config struct {
	Data    DataConfig    `yaml:"data"`
	Tree    TreeConfig    `yaml:"tree"`
	Cache   CacheConfig   `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	PostGIS PostGISConfig `yaml:"postgis"`
	Log     LogConfig     `yaml:"log"`
}

type DataConfig struct {
	Dir  string `yaml:"dir"`
	Kind string `yaml:"kind"`
	// Property overrides the label property of the dataset preset
	Property string `yaml:"property"`
	// File overrides the downloaded dataset with a local GeoJSON file
	File string `yaml:"file"`
}

type TreeConfig struct {
	MaxDepth      int                `yaml:"max_depth"`
	ParallelDepth int                `yaml:"parallel_depth"`
	Bound         models.BoundingBox `yaml:"bound"`
}

type CacheConfig struct {
	// Backend is one of file, bolt, redis or none
	Backend       string        `yaml:"backend"`
	Dir           string        `yaml:"dir"`
	BoltPath      string        `yaml:"bolt_path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	GeoIPPath       string        `yaml:"geoip_path"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type PostGISConfig struct {
	DSN string `yaml:"dsn"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var backends = map[string]bool{"file": true, "bolt": true, "redis": true, "none": true}

// Default returns the settings used when nothing else is configured
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Dir:  "data",
			Kind: "countries",
		},
		Tree: TreeConfig{
			MaxDepth:      partition.DefaultMaxDepth,
			ParallelDepth: partition.DefaultParallelDepth,
			Bound:         models.WorldBox(),
		},
		Cache: CacheConfig{
			Backend:     "file",
			Dir:         "data/cache",
			BoltPath:    "data/cache/trees.db",
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: "geolabel",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadEnvFiles loads .env style files into the environment, skipping missing ones.
// Variables already set are not overridden.
func LoadEnvFiles(files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads path over the defaults, when path is set, then applies the environment
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GEOLABEL_* variables
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"DATA_DIR":       &c.Data.Dir,
		"KIND":           &c.Data.Kind,
		"PROPERTY":       &c.Data.Property,
		"DATA_FILE":      &c.Data.File,
		"CACHE_BACKEND":  &c.Cache.Backend,
		"CACHE_DIR":      &c.Cache.Dir,
		"BOLT_PATH":      &c.Cache.BoltPath,
		"REDIS_ADDR":     &c.Cache.RedisAddr,
		"REDIS_PASSWORD": &c.Cache.RedisPassword,
		"REDIS_PREFIX":   &c.Cache.RedisPrefix,
		"SERVER_ADDR":    &c.Server.Addr,
		"GEOIP_DB":       &c.Server.GeoIPPath,
		"POSTGIS_DSN":    &c.PostGIS.DSN,
		"LOG_LEVEL":      &c.Log.Level,
		"LOG_FORMAT":     &c.Log.Format,
	}
	for name, field := range strs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*field = v
		}
	}

	ints := map[string]*int{
		"MAX_DEPTH":      &c.Tree.MaxDepth,
		"PARALLEL_DEPTH": &c.Tree.ParallelDepth,
		"REDIS_DB":       &c.Cache.RedisDB,
	}
	for name, field := range ints {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*field = n
	}

	if v, ok := os.LookupEnv(envPrefix + "REDIS_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sREDIS_TTL: %w", envPrefix, err)
		}
		c.Cache.RedisTTL = d
	}
	return nil
}

// Validate rejects settings the build or the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Tree.MaxDepth < 0 || c.Tree.MaxDepth > partition.MaxDepthLimit {
		errs = append(errs, fmt.Errorf("tree.max_depth %d not in [0, %d]", c.Tree.MaxDepth, partition.MaxDepthLimit))
	}
	if c.Tree.ParallelDepth < 0 {
		errs = append(errs, fmt.Errorf("tree.parallel_depth %d is negative", c.Tree.ParallelDepth))
	}
	if err := c.Tree.Bound.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tree.bound: %w", err))
	}
	if c.Data.Kind == "" {
		errs = append(errs, errors.New("data.kind is empty"))
	}
	if c.Data.File != "" && c.Data.Property == "" {
		errs = append(errs, errors.New("data.property is required with data.file"))
	}
	if !backends[c.Cache.Backend] {
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}
	if c.Cache.RedisTTL < 0 {
		errs = append(errs, errors.New("cache.redis_ttl is negative"))
	}
	return errors.Join(errs...)
}
