package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/repaart/support-desk/internal/domain"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/x", "GET", 200, time.Millisecond)
		m.RecordReply("public", "ok")
		m.SetSLA(nil)
		m.SetOpenDesks(1)
	})
	assert.NotNil(t, m.Handler())
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()
	m.RecordStatusChange(domain.TicketStatusResolved)
	m.RecordStatusChange(domain.TicketStatusResolved)
	m.RecordDeleted(1, 3, 2)
	m.SetSLA(map[domain.SLASeverity]int{domain.SLACritical: 4})
	m.SetOpenDesks(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.statusChanges.WithLabelValues("resolved")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.deletes.WithLabelValues("messages")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.sla.WithLabelValues("critical")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sla.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.desks))
}
