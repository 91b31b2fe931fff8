package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus metrics.
type Metrics struct {
	graphqlRequestsTotal   *prometheus.CounterVec
	graphqlRequestDuration *prometheus.HistogramVec

	catalogRefreshesTotal *prometheus.CounterVec
	catalogTables         prometheus.Gauge

	cdcEventsTotal    *prometheus.CounterVec
	cdcReconnects     prometheus.Counter
	activeSubscribers prometheus.GaugeFunc

	dbConnections     prometheus.Gauge
	dbConnectionsIdle prometheus.Gauge
}

// NewMetrics registers the gateway metrics on the default registry.
// subscriberCount is sampled on scrape; pass nil when CDC is disabled.
func NewMetrics(subscriberCount func() int) *Metrics {
	m := &Metrics{
		graphqlRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphgate_graphql_requests_total",
				Help: "Total number of GraphQL requests",
			},
			[]string{"operation", "status"},
		),
		graphqlRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graphgate_graphql_request_duration_seconds",
				Help:    "GraphQL request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		catalogRefreshesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphgate_catalog_refreshes_total",
				Help: "Total number of catalog reflection runs",
			},
			[]string{"result"},
		),
		catalogTables: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "graphgate_catalog_tables",
				Help: "Number of tables in the current catalog snapshot",
			},
		),
		cdcEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphgate_cdc_events_total",
				Help: "Total number of decoded replication events",
			},
			[]string{"operation"},
		),
		cdcReconnects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "graphgate_cdc_reconnects_total",
				Help: "Total number of replication stream reconnects",
			},
		),
		dbConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "graphgate_db_connections",
				Help: "Current number of pooled database connections",
			},
		),
		dbConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "graphgate_db_connections_idle",
				Help: "Current number of idle pooled database connections",
			},
		),
	}

	if subscriberCount == nil {
		subscriberCount = func() int { return 0 }
	}
	m.activeSubscribers = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "graphgate_active_subscribers",
			Help: "Current number of active change subscribers",
		},
		func() float64 { return float64(subscriberCount()) },
	)

	return m
}

// RecordGraphQLRequest records one executed GraphQL operation.
func (m *Metrics) RecordGraphQLRequest(operation string, duration time.Duration, errored bool) {
	if operation == "" {
		operation = "anonymous"
	}
	status := "ok"
	if errored {
		status = "error"
	}
	m.graphqlRequestsTotal.WithLabelValues(operation, status).Inc()
	m.graphqlRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCatalogRefresh records a reflection run and the resulting table count.
func (m *Metrics) RecordCatalogRefresh(tables int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.catalogTables.Set(float64(tables))
	}
	m.catalogRefreshesTotal.WithLabelValues(result).Inc()
}

// RecordCDCEvent counts one decoded replication event by operation.
func (m *Metrics) RecordCDCEvent(operation string) {
	m.cdcEventsTotal.WithLabelValues(operation).Inc()
}

// RecordCDCReconnect counts a replication stream reconnect.
func (m *Metrics) RecordCDCReconnect() {
	m.cdcReconnects.Inc()
}

// UpdateDBStats updates the connection pool gauges.
func (m *Metrics) UpdateDBStats(total, idle int32) {
	m.dbConnections.Set(float64(total))
	m.dbConnectionsIdle.Set(float64(idle))
}

// Handler exposes the default registry as a Fiber handler.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
