package bincodec

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "bincodec"

var (
	bufferPoolOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "buffer_pool",
		Name:      "operations_total",
		Help:      "Buffer pool operations by kind: acquire, allocate, release, drop.",
	}, []string{"op"})

	registrations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "registry",
		Name:      "registrations_total",
		Help:      "Registry mutations by kind and outcome.",
	}, []string{"kind", "outcome"})

	polymorphicMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "registry",
		Name:      "polymorphic_cache_misses_total",
		Help:      "Polymorphic encodes that fell through the inline cache to a subtype lookup.",
	})
)

var (
	poolAcquire  = bufferPoolOps.WithLabelValues("acquire")
	poolAllocate = bufferPoolOps.WithLabelValues("allocate")
	poolRelease  = bufferPoolOps.WithLabelValues("release")
	poolDrop     = bufferPoolOps.WithLabelValues("drop")
)

const (
	outcomeAdded     = "added"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
)

// RegisterMetrics registers the package collectors with reg.
// Registering twice with the same registerer is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{bufferPoolOps, registrations, polymorphicMisses} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return errors.Wrap(err, "bincodec: register metrics")
		}
	}
	return nil
}
