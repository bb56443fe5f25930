package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kass/go-geo-label/pkg/models"
	"github.com/kass/go-geo-label/pkg/partition"
	"github.com/kass/go-geo-label/pkg/region"
	"github.com/oschwald/geoip2-golang"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gridTree(t *testing.T) *partition.Tree[string] {
	t.Helper()
	c := region.NewCollection[string]()
	c.Add("FR", orb.MultiPolygon{orb.Bound{Min: orb.Point{0, 42}, Max: orb.Point{8, 51}}.ToPolygon()})
	c.Add("ES", orb.MultiPolygon{orb.Bound{Min: orb.Point{-9, 36}, Max: orb.Point{0, 42}}.ToPolygon()})

	tree, err := partition.Build(c, partition.WithMaxDepth(6))
	require.NoError(t, err)
	return tree
}

type fakeLocator struct {
	cities map[string]*geoip2.City
}

func (f fakeLocator) City(ip net.IP) (*geoip2.City, error) {
	city, ok := f.cities[ip.String()]
	if !ok {
		return nil, errors.New("not found")
	}
	return city, nil
}

func cityAt(lat, lon float64) *geoip2.City {
	city := &geoip2.City{}
	city.Location.Latitude = lat
	city.Location.Longitude = lon
	return city
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleLabel(t *testing.T) {
	h := New(gridTree(t)).Handler()

	testCases := []struct {
		name       string
		query      string
		wantStatus int
		wantLabel  string
		wantFound  bool
	}{
		{"Paris", "lat=48.8566&lon=2.3522", http.StatusOK, "FR", true},
		{"Madrid", "lat=40.4168&lon=-3.7038", http.StatusOK, "ES", true},
		{"ocean", "lat=0&lon=-30", http.StatusOK, "-99", false},
		{"missing lon", "lat=10", http.StatusBadRequest, "", false},
		{"not a number", "lat=abc&lon=1", http.StatusBadRequest, "", false},
		{"out of range", "lat=95&lon=1", http.StatusBadRequest, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, h, "/v1/label?"+tc.query)
			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus != http.StatusOK {
				return
			}

			var result models.LabelResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.Equal(t, tc.wantLabel, result.Label)
			assert.Equal(t, tc.wantFound, result.Found)
		})
	}
}

func TestUnknownLabelOption(t *testing.T) {
	h := New(gridTree(t), WithUnknownLabel("unknown")).Handler()
	rec := get(t, h, "/v1/label?lat=0&lon=-30")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"label":"unknown"`)
}

func TestHandleIP(t *testing.T) {
	locator := fakeLocator{cities: map[string]*geoip2.City{
		"81.2.69.142": cityAt(48.85, 2.35),
	}}
	h := New(gridTree(t), WithGeoIP(locator)).Handler()

	rec := get(t, h, "/v1/ip/81.2.69.142")
	require.Equal(t, http.StatusOK, rec.Code)
	var result models.LabelResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "FR", result.Label)
	assert.Equal(t, "81.2.69.142", result.IP)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/ip/not-an-ip").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/v1/ip/10.0.0.1").Code)

	noGeoIP := New(gridTree(t)).Handler()
	assert.Equal(t, http.StatusNotImplemented, get(t, noGeoIP, "/v1/ip/81.2.69.142").Code)
}

func TestHandleStats(t *testing.T) {
	tree := gridTree(t)
	h := New(tree, WithKind("countries")).Handler()

	get(t, h, "/v1/label?lat=48.8&lon=2.3")
	get(t, h, "/v1/label?lat=0&lon=-30")
	get(t, h, "/v1/label?lat=0&lon=-30")

	rec := get(t, h, "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "countries", resp.Kind)
	assert.Equal(t, int64(1), resp.Lookups["hit"])
	assert.Equal(t, int64(2), resp.Lookups["miss"])
	require.NotNil(t, resp.Tree)
	assert.Equal(t, tree.Size(), resp.Tree.Leaves)
}

func TestMetricsAndHealth(t *testing.T) {
	h := New(gridTree(t)).Handler()
	get(t, h, "/v1/label?lat=48.8&lon=2.3")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `geolabel_lookups_total{result="hit"} 1`)
	assert.Contains(t, body, "geolabel_lookup_duration_seconds_count 1")

	rec = get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ok"))
}

func TestRequestID(t *testing.T) {
	h := New(gridTree(t)).Handler()

	rec := get(t, h, "/healthz")
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func BenchmarkHandleLabel(b *testing.B) {
	c := region.NewCollection[string]()
	c.Add("FR", orb.MultiPolygon{orb.Bound{Min: orb.Point{0, 42}, Max: orb.Point{8, 51}}.ToPolygon()})
	tree, err := partition.Build(c)
	if err != nil {
		b.Fatal(err)
	}
	h := New(tree).Handler()
	req := httptest.NewRequest(http.MethodGet, "/v1/label?lat=48.8&lon=2.3", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
