package metrics

import (
	"net/http"
	"strconv"
	"time"

	"segment-assist/internal/assist"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "segment_assist"

// Metrics коллекторы Prometheus сервиса сегментации.
// Реализует assist.Observer.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	backendLoads   *prometheus.CounterVec
	loadDuration   *prometheus.HistogramVec
	segmentations  *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
}

var _ assist.Observer = (*Metrics)(nil)

// New создает и регистрирует коллекторы в собственном реестре
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_cache_hits_total",
			Help:      "Backend cache lookups served from the cache.",
		}, []string{"kind"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_cache_misses_total",
			Help:      "Backend cache lookups that constructed a new backend.",
		}, []string{"kind"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_cache_evictions_total",
			Help:      "Backends evicted from the cache and released.",
		}, []string{"kind"}),
		backendLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_constructions_total",
			Help:      "Backend constructions by whether weights were loaded.",
		}, []string{"kind", "loaded"}),
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_load_duration_seconds",
			Help:      "Time spent constructing a backend and loading its weights.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		segmentations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segmentation_duration_seconds",
			Help:      "End-to-end segmentation latency by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cacheHits,
		m.cacheMisses,
		m.cacheEvictions,
		m.backendLoads,
		m.loadDuration,
		m.segmentations,
		m.httpRequests,
	)
	return m
}

func (m *Metrics) CacheHit(kind assist.Kind) {
	m.cacheHits.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) CacheMiss(kind assist.Kind) {
	m.cacheMisses.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) CacheEviction(kind assist.Kind) {
	m.cacheEvictions.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) BackendLoaded(kind assist.Kind, loaded bool, elapsed time.Duration) {
	m.backendLoads.WithLabelValues(string(kind), strconv.FormatBool(loaded)).Inc()
	m.loadDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) Segmentation(kind assist.Kind, outcome string, elapsed time.Duration) {
	m.segmentations.WithLabelValues(string(kind), outcome).Observe(elapsed.Seconds())
}

// Handler отдает метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware считает HTTP запросы по шаблону маршрута
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
