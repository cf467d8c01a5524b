// Package graphmetrics instruments the container runtime with Prometheus
// metrics, adapted from the teacher service's internal/realtime/metrics.go
// (RealtimeMetrics): the same promauto-constructed gauge/counter/histogram
// shape, applied to the graph's build/rebuild/GC lifecycle instead of
// real-time event delivery.
package graphmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks container runtime metrics. A container may be given a
// nil *Metrics (every call site nil-checks before touching it), so
// instrumentation is entirely optional.
type Metrics struct {
	// Registry is the registry the metrics below were registered against.
	// Each New call creates its own (via prometheus.NewRegistry) rather than
	// sharing prometheus.DefaultRegisterer, since a process may run many
	// containers (e.g. one per test) and the default registerer panics on
	// a second registration of the same metric name.
	Registry *prometheus.Registry

	// NodesActive is the current number of live nodes in the graph.
	NodesActive prometheus.Gauge

	// BuildsTotal is the total number of capsule builds performed
	// (first builds and rebuilds alike).
	BuildsTotal prometheus.Counter

	// RebuildPassDuration is the duration of a rebuild pass, from
	// computing the rebuild set through the last build; the garbage
	// collection that follows the pass is not included.
	RebuildPassDuration prometheus.Histogram

	// RebuildPassNodesBuilt is how many nodes a rebuild pass actually
	// built (after equality pruning).
	RebuildPassNodesBuilt prometheus.Histogram

	// GCRemovedTotal is the total number of nodes removed by garbage
	// collection.
	GCRemovedTotal prometheus.Counter

	// ProtocolViolationsTotal is the total number of effect-protocol
	// violations detected.
	ProtocolViolationsTotal prometheus.Counter

	// ListenersActive is the current number of attached listeners.
	ListenersActive prometheus.Gauge
}

// New creates a Metrics instance registered under namespace, on its own
// private registry.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		NodesActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "nodes_active",
			Help:      "Current number of live nodes in the container graph.",
		}),
		BuildsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "builds_total",
			Help:      "Total number of capsule builds performed.",
		}),
		RebuildPassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "rebuild_pass_duration_seconds",
			Help:      "Duration of a rebuild pass through its last build, excluding garbage collection.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		RebuildPassNodesBuilt: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "rebuild_pass_nodes_built",
			Help:      "Number of nodes actually rebuilt in a pass, after equality pruning.",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}),
		GCRemovedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "gc_removed_total",
			Help:      "Total number of nodes removed by garbage collection.",
		}),
		ProtocolViolationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "effect_protocol_violations_total",
			Help:      "Total number of effect protocol violations detected.",
		}),
		ListenersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "listeners_active",
			Help:      "Current number of attached listeners.",
		}),
	}
}
