package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecording(t *testing.T) {
	m := NewMetrics(func() int { return 3 })

	m.RecordGraphQLRequest("listCustomers", 10*time.Millisecond, false)
	m.RecordGraphQLRequest("", 5*time.Millisecond, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.graphqlRequestsTotal.WithLabelValues("listCustomers", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.graphqlRequestsTotal.WithLabelValues("anonymous", "error")))

	m.RecordCatalogRefresh(7, nil)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.catalogTables))
	m.RecordCatalogRefresh(0, errors.New("boom"))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.catalogTables), "failed refresh keeps the last table count")

	m.RecordCDCEvent("INSERT")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cdcEventsTotal.WithLabelValues("INSERT")))
	m.RecordCDCReconnect()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cdcReconnects))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeSubscribers))

	m.UpdateDBStats(10, 4)
	assert.Equal(t, 10.0, testutil.ToFloat64(m.dbConnections))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.dbConnectionsIdle))
}
