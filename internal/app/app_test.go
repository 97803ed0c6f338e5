package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"labtool-ledger/internal/config"
	"labtool-ledger/internal/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) *config.Config {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "memory"},
		Metrics:  config.MetricsConfig{Enabled: true},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_MemoryStore(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Workflow)
	assert.NotNil(t, a.Reconciler)
	assert.NotNil(t, a.Scheduler)
	assert.False(t, a.Scheduler.Next().IsZero())

	stats, err := a.Scheduler.RunOnce(context.Background(), jobs.ActionAll)
	require.NoError(t, err)
	assert.Equal(t, jobs.Stats{}, stats)
}

func TestRouter_HealthAndAuth(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	defer a.Close()

	router := a.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// No JWT secret configured: protected routes refuse every caller.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer anything")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNew_BadSchedule(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Scheduler.Reconcile = "not a schedule"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
