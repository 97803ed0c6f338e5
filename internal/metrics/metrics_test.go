package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"labtool-ledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("borrow", nil, time.Millisecond)
	m.ObserveOperation("borrow", domain.NewError(domain.ErrKindToolUnavailable, "taken"), time.Millisecond)
	m.ObserveOperation("borrow", errors.New("io"), time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `labtool_workflow_operations_total{operation="borrow",outcome="ok"} 1`)
	assert.Contains(t, body, `labtool_workflow_operations_total{operation="borrow",outcome="ToolUnavailable"} 1`)
	assert.Contains(t, body, `labtool_workflow_operations_total{operation="borrow",outcome="error"} 1`)
}

func TestObserveHTTP(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodPost, "/api/v1/tools/{id}/borrow", http.StatusConflict, time.Millisecond)

	assert.Contains(t, scrape(t, m),
		`labtool_http_requests_total{method="POST",route="/api/v1/tools/{id}/borrow",status="409"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("return", nil, time.Second)
		m.ObservePass("overdue", 1, 0)
		m.ObserveRun("all", "ok")
		m.ObserveHTTP("GET", "/healthz", 200, time.Millisecond)
	})
}

func TestObservePass(t *testing.T) {
	m := New()
	m.ObservePass("due_date", 3, 1)

	body := scrape(t, m)
	assert.Contains(t, body, `labtool_reconcile_notifications_total{pass="due_date"} 3`)
	assert.Contains(t, body, `labtool_reconcile_errors_total{pass="due_date"} 1`)
}
