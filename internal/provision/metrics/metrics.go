package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InstanceOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowops_instance_operations_total",
			Help: "Total provisioner operations by op and result",
		},
		[]string{"op", "result"},
	)

	ProvisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowops_provision_duration_seconds",
			Help:    "Wall time of provision operations including the remote create",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowops_active_instances",
			Help: "Instances currently in a non-terminal status",
		},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(InstanceOperations)
	prometheus.MustRegister(ProvisionDuration)
	prometheus.MustRegister(ActiveInstances)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
