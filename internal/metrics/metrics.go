package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	FallbacksTotal          *prometheus.CounterVec
	PolicyRejectionsTotal   prometheus.Counter

	GateWaitDuration  prometheus.Histogram
	SkippedRowsTotal  prometheus.Counter
	LayoutDriftTotal  prometheus.Counter
	ProxyRequestTotal *prometheus.CounterVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	RateLimitHitsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all collectors in reg. Pass prometheus.NewRegistry() in tests;
// the default registry panics on duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boingsearch_requests_total",
				Help: "Total number of inbound requests processed",
			},
			[]string{"surface", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "boingsearch_request_duration_seconds",
				Help:    "Inbound request duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"surface"},
		),
		RequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "boingsearch_requests_in_flight",
				Help: "Number of inbound requests currently being processed",
			},
		),

		ProviderRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boingsearch_provider_requests_total",
				Help: "Total number of search provider calls",
			},
			[]string{"provider", "op", "status"},
		),
		ProviderRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "boingsearch_provider_request_duration_seconds",
				Help:    "Search provider call duration in seconds, including politeness waits",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		),
		FallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boingsearch_fallbacks_total",
				Help: "Total number of fallbacks to the alternate provider",
			},
			[]string{"from", "to"},
		),
		PolicyRejectionsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "boingsearch_policy_rejections_total",
				Help: "Total number of queries rejected by the denylist",
			},
		),

		GateWaitDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "boingsearch_scrape_gate_wait_seconds",
				Help:    "Time spent waiting for the scrape politeness gate",
				Buckets: []float64{0, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		SkippedRowsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "boingsearch_scrape_skipped_chunks_total",
				Help: "Total number of result chunks skipped by the HTML parser",
			},
		),
		LayoutDriftTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "boingsearch_scrape_layout_drift_total",
				Help: "Pages whose result table row count is not a multiple of the chunk size",
			},
		),
		ProxyRequestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boingsearch_scrape_proxy_requests_total",
				Help: "Scrape requests per egress proxy",
			},
			[]string{"proxy"},
		),

		CacheHitsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "boingsearch_account_cache_hits_total",
				Help: "Total number of premium account cache hits",
			},
		),
		CacheMissesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "boingsearch_account_cache_misses_total",
				Help: "Total number of premium account cache misses",
			},
		),

		RateLimitHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boingsearch_rate_limit_hits_total",
				Help: "Total number of inbound rate limit hits",
			},
			[]string{"surface"},
		),

		gatherer: reg,
	}

	return m
}

// Handler serves the registry the metrics were created with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(surface, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(surface, status).Inc()
	m.RequestDuration.WithLabelValues(surface).Observe(duration.Seconds())
}

func (m *Metrics) RecordProviderRequest(provider, op, status string, duration time.Duration) {
	m.ProviderRequestsTotal.WithLabelValues(provider, op, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordFallback(from, to string) {
	m.FallbacksTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordPolicyRejection() {
	m.PolicyRejectionsTotal.Inc()
}

func (m *Metrics) RecordGateWait(d time.Duration) {
	m.GateWaitDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordSkippedChunks(n int) {
	m.SkippedRowsTotal.Add(float64(n))
}

func (m *Metrics) RecordLayoutDrift() {
	m.LayoutDriftTotal.Inc()
}

func (m *Metrics) RecordProxyUse(proxy string) {
	m.ProxyRequestTotal.WithLabelValues(proxy).Inc()
}

func (m *Metrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) RecordRateLimitHit(surface string) {
	m.RateLimitHitsTotal.WithLabelValues(surface).Inc()
}

func (m *Metrics) IncRequestsInFlight() {
	m.RequestsInFlight.Inc()
}

func (m *Metrics) DecRequestsInFlight() {
	m.RequestsInFlight.Dec()
}
