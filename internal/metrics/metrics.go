package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	FulfillmentIntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_intents_total",
			Help: "Total number of fulfillment intents processed.",
		},
		[]string{"intent", "result"},
	)

	DeviceStateUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_state_upserts_total",
			Help: "Total number of device state writes by source.",
		},
		[]string{"source"},
	)

	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total number of rejected credentials by verification path.",
		},
		[]string{"path"},
	)
)

// MustRegister registers every collector on the default registry with a constant service label.
// Collectors can be used before registration; unregistered samples are simply not exported.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		FulfillmentIntentsTotal,
		DeviceStateUpsertsTotal,
		AuthFailuresTotal,
	)
}
