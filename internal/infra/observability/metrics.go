package observability

import (
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	reportBuckets   *prometheus.HistogramVec
	orphaned        prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_requests_total",
				Help: "Total requests processed.",
			},
			[]string{"status"},
		),
		reportBuckets: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_report_buckets",
				Help:    "Number of buckets per built report.",
				Buckets: []float64{1, 7, 12, 31, 53, 100, 366, 1000},
			},
			[]string{"grain"},
		),
		orphaned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bfa_report_orphaned_transactions_total",
				Help: "Transactions that matched no report bucket.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// RecordReport observes the shape of a freshly built report.
func (m *Metrics) RecordReport(grain domain.TimeGrain, buckets, orphans int) {
	m.reportBuckets.WithLabelValues(string(grain)).Observe(float64(buckets))
	if orphans > 0 {
		m.orphaned.Add(float64(orphans))
	}
}

// GetReportSnapshot returns the counters behind GET /v1/metrics/reports.
func (m *Metrics) GetReportSnapshot() *domain.ReportMetrics {
	success := getCounterValue(m.requestsTotal.WithLabelValues("success"))
	errorCount := getCounterValue(m.requestsTotal.WithLabelValues("error"))
	totalRequests := success + errorCount
	cacheHits := getCounterValue(m.cacheHits.WithLabelValues("report"))
	cacheMisses := getCounterValue(m.cacheMisses.WithLabelValues("report"))

	errorRate := float64(0)
	cacheHitRate := float64(0)
	if totalRequests > 0 {
		errorRate = errorCount / totalRequests
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	var storeErrors float64
	if families, err := m.Registry.Gather(); err == nil {
		for _, f := range families {
			if f.GetName() != "bfa_external_errors_total" {
				continue
			}
			for _, metric := range f.GetMetric() {
				storeErrors += metric.GetCounter().GetValue()
			}
		}
	}

	var builds, bucketSum float64
	for _, grain := range []domain.TimeGrain{domain.GrainDay, domain.GrainWeek, domain.GrainMonth, domain.GrainYear} {
		count, sum := getHistogramValue(m.reportBuckets.WithLabelValues(string(grain)))
		builds += count
		bucketSum += sum
	}
	avgBuckets := float64(0)
	if builds > 0 {
		avgBuckets = bucketSum / builds
	}

	return &domain.ReportMetrics{
		TotalRequests:      int64(totalRequests),
		ErrorRate:          errorRate,
		CacheHitRate:       cacheHitRate,
		OrphanedTotal:      int64(getCounterValue(m.orphaned)),
		StoreErrors:        int64(storeErrors),
		AvgBucketsPerBuild: avgBuckets,
		Period:             "all_time",
	}
}

// getCounterValue extracts the current float64 value from a counter.
func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getHistogramValue(o prometheus.Observer) (count, sum float64) {
	metric, ok := o.(prometheus.Metric)
	if !ok {
		return 0, 0
	}
	m := &dto.Metric{}
	if err := metric.Write(m); err != nil {
		return 0, 0
	}
	h := m.GetHistogram()
	return float64(h.GetSampleCount()), h.GetSampleSum()
}
