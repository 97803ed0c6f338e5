package http

import (
	"context"
	"errors"
	"net/http"

	"labtool-ledger/internal/jobs"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/runlock"
	"labtool-ledger/internal/security"
)

// CronRunner runs one reconciliation on demand.
type CronRunner interface {
	RunOnce(ctx context.Context, action jobs.Action) (jobs.Stats, error)
}

type cronResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Stats   *jobs.Stats `json:"stats,omitempty"`
}

// CronHandler lets an outside scheduler trigger reconciliation with a
// shared key.
type CronHandler struct {
	runner CronRunner
	keys   *security.CronKeyChecker
}

func NewCronHandler(runner CronRunner, keys *security.CronKeyChecker) *CronHandler {
	return &CronHandler{runner: runner, keys: keys}
}

func (h *CronHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !h.keys.Check(q.Get("key")) {
		logger.Warn("Rejected cron trigger", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusForbidden, cronResponse{Success: false, Message: "Access denied"})
		return
	}

	action, err := jobs.ParseAction(q.Get("action"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, cronResponse{Success: false, Message: err.Error()})
		return
	}

	// A dropped client must not cut the run short.
	stats, err := h.runner.RunOnce(context.WithoutCancel(r.Context()), action)
	if errors.Is(err, runlock.ErrHeld) {
		writeJSON(w, http.StatusConflict, cronResponse{Success: false, Message: "Cron job already running"})
		return
	}
	if err != nil {
		logger.Error("Cron trigger failed", "action", action, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, cronResponse{Success: false, Message: "Cron job could not start"})
		return
	}
	writeJSON(w, http.StatusOK, cronResponse{Success: true, Message: "Cron job completed", Stats: &stats})
}
