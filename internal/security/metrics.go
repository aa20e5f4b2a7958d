package security

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	storeLatency *prometheus.HistogramVec

	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter

	promotionsTotal prometheus.Counter

	recordsCreatedTotal prometheus.Counter

	degradedRetrievalsTotal prometheus.Counter
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Safe to call multiple times; only the first call registers. Metric helpers
// are no-ops until it runs, so library embedders and tests need not call it.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_service_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_service_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	storeLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_service_store_latency_seconds",
			Help:    "Backing store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	cacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "recall_service_cache_hits_total",
		Help: "Total response cache hits",
	})

	cacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "recall_service_cache_misses_total",
		Help: "Total response cache misses",
	})

	promotionsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "recall_service_promotions_total",
		Help: "Total memory records promoted from the short-term to the long-term tier",
	})

	recordsCreatedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "recall_service_records_created_total",
		Help: "Total memory records created",
	})

	degradedRetrievalsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "recall_service_degraded_retrievals_total",
		Help: "Total retrievals that ran in degraded mode",
	})
}

// ObserveStoreLatency records one backing-store operation. No-op before
// InitMetrics.
func ObserveStoreLatency(operation string, start time.Time) {
	if storeLatency != nil {
		storeLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// IncCacheHit counts a response-cache hit.
func IncCacheHit() {
	if cacheHitsTotal != nil {
		cacheHitsTotal.Inc()
	}
}

// IncCacheMiss counts a response-cache miss.
func IncCacheMiss() {
	if cacheMissesTotal != nil {
		cacheMissesTotal.Inc()
	}
}

// IncPromotion counts a short-term to long-term promotion.
func IncPromotion() {
	if promotionsTotal != nil {
		promotionsTotal.Inc()
	}
}

// AddRecordsCreated counts newly created memory records.
func AddRecordsCreated(n int) {
	if recordsCreatedTotal != nil && n > 0 {
		recordsCreatedTotal.Add(float64(n))
	}
}

// IncDegradedRetrieval counts a retrieval that ran in degraded mode.
func IncDegradedRetrieval() {
	if degradedRetrievalsTotal != nil {
		degradedRetrievalsTotal.Inc()
	}
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
