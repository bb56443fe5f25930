// Package server exposes a partition tree over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kass/go-geo-label/pkg/models"
	"github.com/kass/go-geo-label/pkg/partition"
	"github.com/oschwald/geoip2-golang"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "server")

// Labeler answers point lookups; *partition.Tree[string] is one
type Labeler interface {
	Label(p orb.Point) (string, bool)
}

// CityLocator resolves an IP address to a city; *geoip2.Reader is one
type CityLocator interface {
	City(ip net.IP) (*geoip2.City, error)
}

type statser interface {
	Stats() partition.Stats
}

// Server routes lookups to a Labeler and records metrics on its own registry
type Server struct {
	labeler Labeler
	geoip   CityLocator
	kind    string
	unknown string
	started time.Time

	registry *prometheus.Registry
	lookups  *prometheus.CounterVec
	duration prometheus.Histogram

	statsOnce sync.Once
	stats     *partition.Stats

	router chi.Router
}

// Option configures a Server
type Option func(*Server)

// WithGeoIP enables /v1/ip/{ip}
func WithGeoIP(locator CityLocator) Option {
	return func(s *Server) {
		s.geoip = locator
	}
}

// WithKind names the label kind reported by /v1/stats
func WithKind(kind string) Option {
	return func(s *Server) {
		s.kind = kind
	}
}

// WithUnknownLabel sets the label returned when no region matches
func WithUnknownLabel(label string) Option {
	return func(s *Server) {
		s.unknown = label
	}
}

// New creates a server answering from labeler
func New(labeler Labeler, opts ...Option) *Server {
	s := &Server{
		labeler:  labeler,
		unknown:  "-99",
		started:  time.Now(),
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geolabel_lookups_total",
			Help: "Point lookups by result",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geolabel_lookup_duration_seconds",
			Help:    "Time spent labelling one point",
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 12),
		}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry.MustRegister(s.lookups, s.duration)
	s.registry.MustRegister(collectors.NewGoCollector())

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/label", s.handleLabel)
	r.Get("/v1/ip/{ip}", s.handleIP)
	r.Get("/v1/stats", s.handleStats)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.router = r

	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) label(loc models.Location) models.LabelResult {
	start := time.Now()
	label, found := s.labeler.Label(loc.Point())
	s.duration.Observe(time.Since(start).Seconds())

	if found {
		s.lookups.WithLabelValues("hit").Inc()
	} else {
		s.lookups.WithLabelValues("miss").Inc()
		label = s.unknown
	}
	return models.LabelResult{Label: label, Found: found, Lat: loc.Lat, Lon: loc.Lon}
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	loc, err := parseLocation(r)
	if err != nil {
		s.lookups.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.label(loc))
}

func (s *Server) handleIP(w http.ResponseWriter, r *http.Request) {
	if s.geoip == nil {
		writeError(w, http.StatusNotImplemented, errors.New("geoip database not configured"))
		return
	}

	raw := chi.URLParam(r, "ip")
	ip := net.ParseIP(raw)
	if ip == nil {
		s.lookups.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid ip %q", raw))
		return
	}

	city, err := s.geoip.City(ip)
	if err != nil {
		s.lookups.WithLabelValues("error").Inc()
		log.WithError(err).WithField("ip", raw).Error("GeoIP lookup failed")
		writeError(w, http.StatusInternalServerError, errors.New("geoip lookup failed"))
		return
	}

	loc := models.Location{Lat: city.Location.Latitude, Lon: city.Location.Longitude}
	result := s.label(loc)
	result.IP = ip.String()
	writeJSON(w, http.StatusOK, result)
}

type statsResponse struct {
	Kind    string           `json:"kind,omitempty"`
	Uptime  string           `json:"uptime"`
	Lookups map[string]int64 `json:"lookups"`
	Tree    *partition.Stats `json:"tree,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.statsOnce.Do(func() {
		if st, ok := s.labeler.(statser); ok {
			stats := st.Stats()
			s.stats = &stats
		}
	})

	resp := statsResponse{
		Kind:    s.kind,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Lookups: make(map[string]int64),
		Tree:    s.stats,
	}

	families, err := s.registry.Gather()
	if err == nil {
		for _, mf := range families {
			if mf.GetName() != "geolabel_lookups_total" {
				continue
			}
			for _, m := range mf.GetMetric() {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "result" {
						resp.Lookups[lp.GetValue()] = int64(m.GetCounter().GetValue())
					}
				}
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseLocation(r *http.Request) (models.Location, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("invalid lat %q", q.Get("lat"))
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("invalid lon %q", q.Get("lon"))
	}

	loc := models.Location{Lat: lat, Lon: lon}
	if err := loc.Validate(); err != nil {
		return models.Location{}, err
	}
	return loc, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
