// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline and the realtime distributor.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReadingsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readings_ingested_total",
			Help: "Total number of readings durably stored",
		},
	)

	ReadingsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readings_rejected_total",
			Help: "Total number of rejected ingestion requests by reason",
		},
		[]string{"reason"},
	)

	AlertsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_generated_total",
			Help: "Total number of alerts generated by severity",
		},
		[]string{"severity"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published to the realtime hub by topic",
		},
		[]string{"topic"},
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Total number of events dropped for slow subscribers",
		},
	)

	WSClientsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_clients_connected",
			Help: "Number of currently connected websocket clients",
		},
	)
)

// Register registers all collectors on the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ReadingsIngestedTotal,
		ReadingsRejectedTotal,
		AlertsGeneratedTotal,
		EventsPublishedTotal,
		EventsDroppedTotal,
		WSClientsConnected,
	)
}

// Handler returns the /metrics endpoint handler.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
