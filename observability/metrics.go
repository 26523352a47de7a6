package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// client metrics
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "faracore_client_requests_total",
		Help: "Total governor API requests",
	}, []string{"method", "path", "code"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faracore_client_request_duration_seconds",
		Help:    "Governor API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	RetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "faracore_client_retries_total",
		Help: "Request retry count",
	}, []string{"method", "path"})

	// live sync metrics
	StreamConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "faracore_stream_connected",
		Help: "1 while the push subscription is established",
	})

	StreamReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "faracore_stream_reconnects_total",
		Help: "Push subscription (re)connect count",
	})

	StreamEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "faracore_stream_events_total",
		Help: "Push events received",
	}, []string{"type"})

	StreamDecodeErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "faracore_stream_decode_errors_total",
		Help: "Malformed push frames dropped",
	})

	// store metrics
	StoreUpsertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "faracore_store_upserts_total",
		Help: "Accepted store upserts",
	})

	StoreStaleDropsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "faracore_store_stale_drops_total",
		Help: "Upserts dropped by the ordering guard",
	})

	StoreActions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "faracore_store_actions",
		Help: "Actions currently tracked by the store",
	})
)

func RegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestsTotal, RequestDuration, RetriesTotal,
		StreamConnected, StreamReconnectsTotal, StreamEventsTotal, StreamDecodeErrorsTotal,
		StoreUpsertsTotal, StoreStaleDropsTotal, StoreActions,
	)
}
