// Package dataset downloads Natural Earth boundary files and turns them into region
// collections keyed by an ISO code property.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kass/go-geo-label/pkg/region"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("module", "dataset")

// UnknownLabel is the code Natural Earth uses for features without an ISO code
const UnknownLabel = "-99"

// BaseURL is where the Natural Earth GeoJSON files are fetched from
const BaseURL = "https://raw.githubusercontent.com/nvkelso/natural-earth-vector/master/geojson"

var ErrNoRegions = errors.New("no usable regions")

// Dataset names one boundary file and the feature property holding its labels
type Dataset struct {
	Kind     string
	File     string
	Property string
}

var (
	Countries = Dataset{Kind: "countries", File: "ne_10m_admin_0_countries_lakes", Property: "ISO_A2"}
	Provinces = Dataset{Kind: "provinces", File: "ne_10m_admin_1_states_provinces", Property: "iso_3166_2"}
)

// Lookup returns the preset dataset for kind
func Lookup(kind string) (Dataset, error) {
	switch kind {
	case Countries.Kind:
		return Countries, nil
	case Provinces.Kind:
		return Provinces, nil
	}
	return Dataset{}, fmt.Errorf("unknown dataset %q", kind)
}

// URL returns the download address of the dataset
func (d Dataset) URL() string {
	return BaseURL + "/" + d.File + ".geojson"
}

// Path returns where the dataset is stored under dir
func (d Dataset) Path(dir string) string {
	return filepath.Join(dir, d.File+".geojson")
}

// Download fetches the dataset into dir unless it is already there, and returns its path
func Download(ctx context.Context, client *http.Client, dir string, d Dataset) (string, error) {
	return download(ctx, client, d.URL(), d.Path(dir))
}

func download(ctx context.Context, client *http.Client, url, path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := log.WithFields(logrus.Fields{"url": url, "path": path})
	logger.Info("Downloading dataset")
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download dataset: unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write dataset: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move dataset into place: %w", err)
	}

	logger.WithFields(logrus.Fields{"bytes": n, "duration": time.Since(start)}).Info("Dataset downloaded")
	return path, nil
}

// LoadCollection reads a GeoJSON file and groups its polygons by property
func LoadCollection(path, property string) (*region.Collection[string], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	c, err := Parse(data, property)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

type feature struct {
	label string
	mp    orb.MultiPolygon
}

// Parse builds a collection from GeoJSON feature collection bytes.
// Features without a label, labelled UnknownLabel, or without polygon geometry are
// skipped. Features sharing a label are merged.
func Parse(data []byte, property string) (*region.Collection[string], error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson: %w", err)
	}

	features := make([]feature, len(fc.Features))
	var g errgroup.Group
	for i, f := range fc.Features {
		i, f := i, f
		g.Go(func() error {
			label, _ := f.Properties[property].(string)
			if label == "" || label == UnknownLabel {
				return nil
			}
			features[i] = feature{label: label, mp: cleanGeometry(f.Geometry)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := region.NewCollection[string]()
	skipped := 0
	for _, f := range features {
		if f.label == "" || len(f.mp) == 0 {
			skipped++
			continue
		}
		c.Add(f.label, f.mp)
	}

	log.WithFields(logrus.Fields{
		"features": len(fc.Features),
		"regions":  c.Len(),
		"skipped":  skipped,
	}).Debug("Parsed dataset")

	if c.Len() == 0 {
		return nil, ErrNoRegions
	}
	return c, nil
}

// cleanGeometry keeps polygon geometry, dropping rings that cannot enclose an area
func cleanGeometry(g orb.Geometry) orb.MultiPolygon {
	var polygons []orb.Polygon
	switch v := g.(type) {
	case orb.Polygon:
		polygons = []orb.Polygon{v}
	case orb.MultiPolygon:
		polygons = v
	default:
		return nil
	}

	var out orb.MultiPolygon
	for _, p := range polygons {
		if len(p) == 0 || len(p[0]) < 4 {
			continue
		}
		cleaned := orb.Polygon{p[0]}
		for _, hole := range p[1:] {
			if len(hole) >= 4 {
				cleaned = append(cleaned, hole)
			}
		}
		out = append(out, cleaned)
	}
	return out
}
