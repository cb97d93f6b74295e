package runner

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "preflight",
			Subsystem: "runner",
			Name:      "runs_total",
			Help:      "total benchmark runs by verdict",
		},
		[]string{"verdict"},
	)

	runSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "preflight",
			Subsystem: "runner",
			Name:      "run_seconds",
			Help:      "benchmark run wall time in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runSeconds)
}

func observeRun(run *Run) {
	runsTotal.With(prometheus.Labels{"verdict": string(run.Verdict)}).Inc()
	runSeconds.Observe(run.Duration().Seconds())
}
