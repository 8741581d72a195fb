// Package metrics defines and registers the Prometheus metrics of the userdesk
// client. It is the single source of truth for metric names, labels, and help
// strings.
//
// All metrics are registered with the default registry on package load.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "userdesk"

// ── Cache metrics ─────────────────────────────────────────────────────────────

// CacheFetchesTotal counts completed fetches whose result was applied.
// Labels:
//   - resource: query key resource (e.g. "users")
//   - result: "success" or "error"
var CacheFetchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_fetches_total",
		Help:      "Total number of cache fetches applied to an entry, by result.",
	},
	[]string{"resource", "result"},
)

// CacheDedupTotal counts queries that joined a fetch already in flight
// instead of issuing a new request.
var CacheDedupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_dedup_total",
		Help:      "Total number of queries served by an in-flight fetch.",
	},
	[]string{"resource"},
)

// CacheDiscardedTotal counts fetch results dropped because a newer
// invalidation superseded them.
var CacheDiscardedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_discarded_total",
		Help:      "Total number of fetch results discarded as superseded.",
	},
	[]string{"resource"},
)

// CacheInvalidationsTotal counts invalidated entries.
var CacheInvalidationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_invalidations_total",
		Help:      "Total number of cache entries invalidated.",
	},
	[]string{"resource"},
)

// ── Mutation metrics ──────────────────────────────────────────────────────────

// MutationsTotal counts write operations.
// Labels:
//   - operation: "create", "update" or "delete"
//   - result: "success" or "error"
var MutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mutations_total",
		Help:      "Total number of user mutations, by operation and result.",
	},
	[]string{"operation", "result"},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotifyQueueDepth tracks listener callbacks waiting in each dispatcher worker.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var NotifyQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notify_queue_depth",
		Help:      "Current number of listener callbacks pending in each dispatcher worker.",
	},
	[]string{"worker_id"},
)

// NotifyPanicsTotal counts listener callbacks that panicked.
var NotifyPanicsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notify_panics_total",
		Help:      "Total number of listener callbacks that panicked.",
	},
)

// ── Transport metrics ─────────────────────────────────────────────────────────

// TransportRequestDuration measures round trips to the remote API.
// Labels:
//   - method: HTTP method
//   - status: response status code, or "network_error"
var TransportRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transport_request_duration_seconds",
		Help:      "Duration of requests to the users API.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "status"},
)

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
