package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "library_sync"

// Metrics groups every collector of the service on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	storeWrites   *prometheus.CounterVec
	retries       prometheus.Counter
	pushed        *prometheus.CounterVec
	pulled        prometheus.Counter
	conflicts     prometheus.Counter
	pending       prometheus.Gauge
	syncState     *prometheus.GaugeVec
	batchItems    *prometheus.CounterVec
	syncDurations prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "writes_total",
			Help: "Record store writes by operation and outcome.",
		}, []string{"op", "result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "retries_total",
			Help: "Retried store write attempts.",
		}),
		pushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "pushed_total",
			Help: "Documents pushed to the remote backend by outcome.",
		}, []string{"result"}),
		pulled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "pulled_total",
			Help: "Remote changes applied locally.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "conflicts_total",
			Help: "Record pairs routed to conflict resolution.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sync", Name: "pending_operations",
			Help: "Local writes not yet acknowledged by the backend.",
		}),
		syncState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sync", Name: "state",
			Help: "1 for the current replication state, 0 otherwise.",
		}, []string{"state"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "batch", Name: "items_total",
			Help: "Batch operator items by operation and outcome.",
		}, []string{"op", "result"}),
		syncDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "sync", Name: "cycle_seconds",
			Help:    "Duration of reconciliation cycles.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.storeWrites, m.retries, m.pushed, m.pulled, m.conflicts,
		m.pending, m.syncState, m.batchItems, m.syncDurations,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// ObserveWrite counts a store write.
func (m *Metrics) ObserveWrite(op string, err error) {
	if m == nil {
		return
	}
	m.storeWrites.WithLabelValues(op, result(err)).Inc()
}

// ObserveRetry counts one retried attempt.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// ObservePush counts pushed documents.
func (m *Metrics) ObservePush(n int, err error) {
	if m == nil || n == 0 {
		return
	}
	m.pushed.WithLabelValues(result(err)).Add(float64(n))
}

// ObservePull counts applied remote changes.
func (m *Metrics) ObservePull(n int) {
	if m == nil {
		return
	}
	m.pulled.Add(float64(n))
}

// ObserveConflict counts one conflicting pair.
func (m *Metrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// ObserveCycle records the duration of one reconciliation cycle.
func (m *Metrics) ObserveCycle(seconds float64) {
	if m == nil {
		return
	}
	m.syncDurations.Observe(seconds)
}

// SetPending publishes the pending operation count.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// SetState flags state as current among all known states.
func (m *Metrics) SetState(state string, known []string) {
	if m == nil {
		return
	}
	for _, s := range known {
		v := 0.0
		if s == state {
			v = 1
		}
		m.syncState.WithLabelValues(s).Set(v)
	}
}

// ObserveBatch counts batch operator outcomes.
func (m *Metrics) ObserveBatch(op string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.batchItems.WithLabelValues(op, "ok").Add(float64(succeeded))
	m.batchItems.WithLabelValues(op, "error").Add(float64(failed))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
