// Package metrics holds the Prometheus collectors of the updater and the
// HTTP endpoint that exposes them together with health probes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

const namespace = "namecom_ddns"

// Write operations and their outcomes.
const (
	OperationCreate = "create"
	OperationUpdate = "update"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	TicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_total",
		Help:      "Number of reconcile ticks run.",
	})

	ProbeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_failures_total",
		Help:      "Number of external IP probes that returned no address.",
	})

	RecordWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "record_writes_total",
		Help:      "Number of record create/update calls by operation and result.",
	}, []string{"operation", "result"})

	LastChangeTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_change_timestamp_seconds",
		Help:      "Unix time the published address was last changed.",
	})
)

func init() {
	ctrlmetrics.Registry.MustRegister(
		TicksTotal,
		ProbeFailuresTotal,
		RecordWritesTotal,
		LastChangeTimestamp,
	)
}

// ObserveWrite counts one create or update call.
func ObserveWrite(operation string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	RecordWritesTotal.WithLabelValues(operation, result).Inc()
}
