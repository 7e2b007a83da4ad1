package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the engine.
	Registry = prometheus.NewRegistry()

	// PlanRequests counts single-route planning calls by outcome
	// (ok, fallback, infeasible, error).
	PlanRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_requests_total", Help: "Single-route planning calls by outcome."},
		[]string{"outcome"},
	)
	// PlanDuration records planning call durations in seconds.
	PlanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "plan_duration_seconds", Help: "Planning call duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"outcome"},
	)
	// SearchExpansions tracks nodes expanded per shortest-path search.
	SearchExpansions = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "search_expanded_nodes", Help: "Nodes expanded per shortest-path search.", Buckets: []float64{10, 50, 100, 500, 1000, 5000, 20000}},
	)
	// VRPIterations counts ALNS iterations across solves.
	VRPIterations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "vrp_iterations_total", Help: "Total ALNS iterations across solves."},
	)
	// VRPCoverage reports the coverage rate of the last multi-vehicle solve.
	VRPCoverage = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "vrp_last_coverage_rate", Help: "Coverage rate of the last multi-vehicle solve."},
	)
	// RepairBatches counts committed repair batches.
	RepairBatches = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "repair_batches_total", Help: "Committed topology repair batches."},
	)
	// RepairSplits counts edges split by topology repair.
	RepairSplits = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "repair_splits_total", Help: "Edges split by topology repair."},
	)
)

// RegisterDefault registers collectors on the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(PlanRequests)
		Registry.MustRegister(PlanDuration)
		Registry.MustRegister(SearchExpansions)
		Registry.MustRegister(VRPIterations)
		Registry.MustRegister(VRPCoverage)
		Registry.MustRegister(RepairBatches)
		Registry.MustRegister(RepairSplits)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
