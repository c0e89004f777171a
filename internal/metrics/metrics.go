package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates Prometheus metrics for the request pipeline and
// the stream manager. All methods are safe on a nil receiver so callers
// can run without metrics wired.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec

	breakerState   prometheus.Gauge
	rateLimitWaits prometheus.Counter
	weightUsed     prometheus.Gauge

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheSize      prometheus.Gauge

	streamConnects   *prometheus.CounterVec
	streamReconnects *prometheus.CounterVec
	streamMessages   *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollector creates a Collector on its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := newCollector(registry)
	c.registry = registry
	return c
}

// NewCollectorWith creates a Collector on the supplied registerer.
func NewCollectorWith(reg prometheus.Registerer) *Collector {
	return newCollector(reg)
}

func newCollector(reg prometheus.Registerer) *Collector {
	return &Collector{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bxgate_requests_total",
				Help: "Total logical API calls by method, endpoint and status code.",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bxgate_request_duration_seconds",
				Help:    "Duration of logical API calls including retries.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bxgate_retries_total",
				Help: "Network attempts beyond the first, per endpoint.",
			},
			[]string{"method", "endpoint"},
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bxgate_errors_total",
				Help: "Surfaced errors by class.",
			},
			[]string{"class"},
		),
		breakerState: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "bxgate_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
		),
		rateLimitWaits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "bxgate_rate_limit_waits_total",
				Help: "Admissions that had to wait on the interval limiter.",
			},
		),
		weightUsed: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "bxgate_request_weight_used",
				Help: "Request weight consumed in the current minute window.",
			},
		),
		cacheHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{Name: "bxgate_cache_hits_total", Help: "Response cache hits."},
		),
		cacheMisses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{Name: "bxgate_cache_misses_total", Help: "Response cache misses."},
		),
		cacheEvictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{Name: "bxgate_cache_evictions_total", Help: "Response cache evictions."},
		),
		cacheSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{Name: "bxgate_cache_entries", Help: "Resident response cache entries."},
		),
		streamConnects: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{Name: "bxgate_stream_connects_total", Help: "Stream connections established."},
			[]string{"channel"},
		),
		streamReconnects: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{Name: "bxgate_stream_reconnects_total", Help: "Stream reconnect attempts."},
			[]string{"channel"},
		),
		streamMessages: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{Name: "bxgate_stream_messages_total", Help: "Decoded stream messages delivered."},
			[]string{"channel"},
		),
		decodeErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{Name: "bxgate_stream_decode_errors_total", Help: "Malformed stream messages skipped."},
			[]string{"channel"},
		),
	}
}

// Handler returns the exposition handler for the collector's registry,
// or the default handler when built on an external registerer.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed logical call.
func (c *Collector) RecordRequest(method, endpoint string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRetry records one retried network attempt.
func (c *Collector) RecordRetry(method, endpoint string) {
	if c == nil {
		return
	}
	c.retriesTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordError records a surfaced error by class.
func (c *Collector) RecordError(class string) {
	if c == nil {
		return
	}
	c.errorsTotal.WithLabelValues(class).Inc()
}

// SetBreakerState publishes the breaker state gauge.
func (c *Collector) SetBreakerState(state int) {
	if c == nil {
		return
	}
	c.breakerState.Set(float64(state))
}

// RecordRateLimitWait counts an admission that waited.
func (c *Collector) RecordRateLimitWait() {
	if c == nil {
		return
	}
	c.rateLimitWaits.Inc()
}

// SetWeightUsed publishes the current minute's consumed weight.
func (c *Collector) SetWeightUsed(used int) {
	if c == nil {
		return
	}
	c.weightUsed.Set(float64(used))
}

// RecordCacheHit counts a cache hit.
func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// RecordCacheMiss counts a cache miss.
func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// RecordCacheEviction counts evicted entries.
func (c *Collector) RecordCacheEviction(n int) {
	if c == nil {
		return
	}
	c.cacheEvictions.Add(float64(n))
}

// SetCacheSize publishes resident entry count.
func (c *Collector) SetCacheSize(size int) {
	if c == nil {
		return
	}
	c.cacheSize.Set(float64(size))
}

// RecordStreamConnect counts an established stream connection.
func (c *Collector) RecordStreamConnect(channel string) {
	if c == nil {
		return
	}
	c.streamConnects.WithLabelValues(channel).Inc()
}

// RecordStreamReconnect counts a reconnect attempt.
func (c *Collector) RecordStreamReconnect(channel string) {
	if c == nil {
		return
	}
	c.streamReconnects.WithLabelValues(channel).Inc()
}

// RecordStreamMessage counts a delivered message.
func (c *Collector) RecordStreamMessage(channel string) {
	if c == nil {
		return
	}
	c.streamMessages.WithLabelValues(channel).Inc()
}

// RecordDecodeError counts a skipped malformed message.
func (c *Collector) RecordDecodeError(channel string) {
	if c == nil {
		return
	}
	c.decodeErrors.WithLabelValues(channel).Inc()
}
