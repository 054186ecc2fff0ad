package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsProcessedTotal, jobsReapedTotal) }

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "Total number of jobs that reached a terminal status, labeled by status.",
	},
	[]string{"status"}, // 'successful', 'failed'
)

var jobsReapedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "jobs_reaped_total",
		Help: "Jobs failed by the stale job reaper.",
	},
)

func IncJob(status string) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func AddJobsReaped(n int) {
	if n > 0 {
		jobsReapedTotal.Add(float64(n))
	}
}
