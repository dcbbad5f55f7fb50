// Package observability owns the Prometheus collectors and tracing setup shared by the state agent.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "userstate"

var (
	readsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entity",
		Name:      "reads_total",
		Help:      "Entity reads by domain and the backend that answered.",
	}, []string{"domain", "source"})

	fallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entity",
		Name:      "remote_fallbacks_total",
		Help:      "Reads for durable identities that fell back to local storage after a remote failure.",
	}, []string{"domain"})

	writeFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entity",
		Name:      "write_failures_total",
		Help:      "Writes rejected by their backend, labeled by domain and backend.",
	}, []string{"domain", "backend"})

	decodeFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "codec",
		Name:      "decode_failures_total",
		Help:      "Stored values that could not be decoded and were treated as absent.",
	}, []string{"domain"})

	lastWriteGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "entity",
		Name:      "last_write_timestamp_seconds",
		Help:      "Unix timestamp of the most recent acknowledged entity write.",
	})

	detectorPushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "staleness",
		Name:      "pushes_total",
		Help:      "External changes detected and published on a foreground edge.",
	}, []string{"detector"})

	detectorSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "staleness",
		Name:      "skipped_in_flight_total",
		Help:      "Foreground edges ignored because a refresh was already in flight.",
	}, []string{"detector"})

	navigationExpiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "navigation",
		Name:      "markers_expired_total",
		Help:      "Navigation markers invalidated, labeled by whether a read or a resume expired them.",
	}, []string{"reason"})

	limiterRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "runs_total",
		Help:      "Wrapped function executions after debounce/throttle coalescing.",
	}, []string{"kind"})

	lifecycleEdgesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "edges_total",
		Help:      "Application lifecycle transitions dispatched to listeners.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(
		readsTotal,
		fallbacksTotal,
		writeFailuresTotal,
		decodeFailuresTotal,
		lastWriteGauge,
		detectorPushesTotal,
		detectorSkippedTotal,
		navigationExpiredTotal,
		limiterRunsTotal,
		lifecycleEdgesTotal,
	)
}

// RecordRead counts an entity read answered by source.
func RecordRead(domain, source string) {
	readsTotal.WithLabelValues(domain, source).Inc()
}

// RecordFallback counts a remote read that degraded to local storage.
func RecordFallback(domain string) {
	fallbacksTotal.WithLabelValues(domain).Inc()
}

// RecordWriteFailure counts a rejected write.
func RecordWriteFailure(domain, backend string) {
	writeFailuresTotal.WithLabelValues(domain, backend).Inc()
}

// RecordDecodeFailure counts a stored value that was treated as absent.
func RecordDecodeFailure(domain string) {
	decodeFailuresTotal.WithLabelValues(domain).Inc()
}

// RecordWrite updates the write watermark gauge.
func RecordWrite(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastWriteGauge.Set(float64(ts.Unix()))
}

// RecordDetectorPush counts a change published by a staleness detector.
func RecordDetectorPush(detector string) {
	detectorPushesTotal.WithLabelValues(detector).Inc()
}

// RecordDetectorSkipped counts an edge dropped by the in-flight guard.
func RecordDetectorSkipped(detector string) {
	detectorSkippedTotal.WithLabelValues(detector).Inc()
}

// RecordNavigationExpired counts an invalidated navigation marker.
func RecordNavigationExpired(reason string) {
	navigationExpiredTotal.WithLabelValues(reason).Inc()
}

// RecordLimiterRun counts an execution of a debounced or throttled function.
func RecordLimiterRun(kind string) {
	limiterRunsTotal.WithLabelValues(kind).Inc()
}

// RecordLifecycleEdge counts a dispatched lifecycle transition.
func RecordLifecycleEdge(state string) {
	lifecycleEdgesTotal.WithLabelValues(state).Inc()
}
