package http

import (
	"context"
	"net/http"
	"time"

	"labtool-ledger/internal/metrics"
	"labtool-ledger/internal/security"
	"labtool-ledger/internal/service"

	"github.com/gorilla/mux"
)

// Pinger reports whether the ledger store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDeps struct {
	Workflow      service.WorkflowService
	Notifications service.NotificationService
	Cron          CronRunner
	CronKeys      *security.CronKeyChecker
	Tokens        security.TokenManager
	Metrics       *metrics.Metrics
	MetricsPath   string
	Store         Pinger
	Location      *time.Location
	Clock         func() time.Time
}

func NewRouter(d RouterDeps) *mux.Router {
	tools := NewToolHandler(d.Workflow, d.Location, d.Clock)
	notes := NewNotificationHandler(d.Notifications)
	cron := NewCronHandler(d.Cron, d.CronKeys)
	auth := NewAuthMiddleware(d.Tokens)

	r := mux.NewRouter()
	r.Use(RequestID, PanicRecovery, Metrics(d.Metrics), auth.Authenticate)

	r.HandleFunc("/healthz", health(d.Store)).Methods("GET").Name("health")
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, d.Metrics.Handler()).Methods("GET").Name("metrics")
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/cron", cron.Trigger).Methods("GET", "POST").Name("cron")

	api.HandleFunc("/tools", tools.List).Methods("GET").Name("tools.list")
	api.HandleFunc("/tools", tools.Create).Methods("POST").Name("tools.create")
	api.HandleFunc("/tools/{id:[0-9]+}", tools.Get).Methods("GET").Name("tools.get")
	api.HandleFunc("/tools/{id:[0-9]+}/history", tools.History).Methods("GET").Name("tools.history")
	api.HandleFunc("/tools/{id:[0-9]+}/borrow", tools.Borrow).Methods("POST").Name("tools.borrow")
	api.HandleFunc("/tools/{id:[0-9]+}/maintenance", tools.ScheduleMaintenance).Methods("POST").Name("tools.maintenance.schedule")
	api.HandleFunc("/tools/{id:[0-9]+}/maintenance/complete", tools.CompleteMaintenance).Methods("POST").Name("tools.maintenance.complete")
	api.HandleFunc("/tools/{id:[0-9]+}/status", tools.ChangeStatus).Methods("POST").Name("tools.status")

	api.HandleFunc("/transactions/{id:[0-9]+}/extend", tools.Extend).Methods("POST").Name("transactions.extend")
	api.HandleFunc("/transactions/{id:[0-9]+}/return", tools.Return).Methods("POST").Name("transactions.return")

	api.HandleFunc("/notifications", notes.List).Methods("GET").Name("notifications.list")
	api.HandleFunc("/notifications/{id:[0-9]+}/read", notes.MarkRead).Methods("POST").Name("notifications.read")

	return r
}

func health(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if store != nil {
			if err := store.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
