// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(pipelineStepDuration, processorCalls, filesCollected, storageOps)
}

var (
	pipelineStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_step_duration_seconds",
			Help:    "Duration of each job pipeline step.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"step", "success"},
	)

	processorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_calls_total",
			Help: "Calls to the external processing endpoint by result (ok/http_error/transport_error/skipped).",
		},
		[]string{"result"},
	)

	filesCollected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "files_collected_total",
			Help: "Output files recorded by the result collector.",
		},
	)

	storageOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_ops_total",
			Help: "Object storage operations by op and result.",
		},
		[]string{"op", "result"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func ObserveStep(step string, d time.Duration, success bool) {
	pipelineStepDuration.WithLabelValues(norm(step), strconv.FormatBool(success)).Observe(d.Seconds())
}

func IncProcessorCall(result string) {
	processorCalls.WithLabelValues(norm(result)).Inc()
}

func AddFilesCollected(n int) {
	if n > 0 {
		filesCollected.Add(float64(n))
	}
}

func IncStorageOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storageOps.WithLabelValues(norm(op), result).Inc()
}
