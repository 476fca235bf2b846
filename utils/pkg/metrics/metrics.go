package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agents_workshop_build_info",
			Help: "Build information of the agents workshop binaries",
		},
		[]string{"binary", "version", "commit", "date"},
	)

	DatasetLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agents_workshop_dataset_loads_total",
			Help: "Total number of dataset loads",
		},
		[]string{"dataset", "status"},
	)

	DatasetRowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agents_workshop_dataset_rows_loaded_total",
			Help: "Total number of rows written to dataset tables",
		},
		[]string{"dataset"},
	)

	DatasetLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agents_workshop_dataset_load_duration_seconds",
			Help:    "Duration of dataset loads, download included",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 0.05s to ~100s
		},
		[]string{"dataset"},
	)

	FunctionRegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agents_workshop_function_registrations_total",
			Help: "Total number of function registrations",
		},
		[]string{"function", "status"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agents_workshop_tool_calls_total",
			Help: "Total number of tool calls served",
		},
		[]string{"tool", "status"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agents_workshop_tool_call_duration_seconds",
			Help:    "Duration of tool calls",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"tool"},
	)
)

// Status returns the status label for an operation result.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
