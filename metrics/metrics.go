package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup results, used as the "result" label.
const (
	ResultHit         = "hit"
	ResultMiss        = "miss"
	ResultStale       = "stale"
	ResultRevalidated = "revalidated"
	ResultStaleError  = "stale_error"
	ResultError       = "error"
)

// Metrics holds the collectors of the cache and the cookie jar.
type Metrics struct {
	Lookups              *prometheus.CounterVec
	Stores               prometheus.Counter
	RevalidationDuration *prometheus.HistogramVec
	CookiesExtracted     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		Lookups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cachejar_cache_lookups_total",
			Help: "Cache lookups by result.",
		}, []string{"result"}),
		Stores: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cachejar_cache_stores_total",
			Help: "Responses written to the cache.",
		}),
		RevalidationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cachejar_revalidation_duration_seconds",
			Help:    "Duration of conditional requests to the origin.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}), // status: 'not_modified', 'modified', 'gone', 'failed'
		CookiesExtracted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cachejar_cookies_extracted_total",
			Help: "Cookies stored from Set-Cookie headers.",
		}),
	}

	for _, result := range []string{ResultHit, ResultMiss, ResultStale, ResultRevalidated, ResultStaleError, ResultError} {
		metrics.Lookups.WithLabelValues(result)
	}

	return metrics
}

// Lookup counts one cache lookup. It is safe to call on a nil *Metrics.
func (m *Metrics) Lookup(result string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(result).Inc()
}

// Stored counts one stored response.
func (m *Metrics) Stored() {
	if m == nil {
		return
	}
	m.Stores.Inc()
}

// Revalidated observes the duration of one conditional request.
func (m *Metrics) Revalidated(status string, seconds float64) {
	if m == nil {
		return
	}
	m.RevalidationDuration.WithLabelValues(status).Observe(seconds)
}

// Extracted counts stored cookies.
func (m *Metrics) Extracted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CookiesExtracted.Add(float64(n))
}
