package health

import (
	"github.com/prometheus/client_golang/prometheus"
)

var nodeStates = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "preflight",
		Subsystem: "health",
		Name:      "node_states",
		Help:      "current node count per health state",
	},
	[]string{"state"},
)

func init() {
	prometheus.MustRegister(nodeStates)
}

func updateStateMetrics(c Counts) {
	nodeStates.With(prometheus.Labels{"state": string(StateUnknown)}).Set(float64(c.Unknown))
	nodeStates.With(prometheus.Labels{"state": string(StateHealthy)}).Set(float64(c.Healthy))
	nodeStates.With(prometheus.Labels{"state": string(StateUnhealthy)}).Set(float64(c.Unhealthy))
	nodeStates.With(prometheus.Labels{"state": string(StateQuarantined)}).Set(float64(c.Quarantined))
}
