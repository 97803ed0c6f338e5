// Package jobs holds the reconciliation passes run on a schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/metrics"
	"labtool-ledger/internal/repository"
	"labtool-ledger/internal/service"

	"github.com/google/uuid"
)

type Action string

const (
	ActionAll         Action = "all"
	ActionDueDate     Action = "due_date"
	ActionOverdue     Action = "overdue"
	ActionMaintenance Action = "maintenance"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionAll, ActionDueDate, ActionOverdue, ActionMaintenance:
		return a, nil
	case "":
		return ActionAll, nil
	}
	return "", domain.NewError(domain.ErrKindInvalidInput, "unknown action %q", s)
}

func (a Action) includes(pass Action) bool {
	return a == ActionAll || a == pass
}

// Stats is the aggregate result of one run.
type Stats struct {
	DueDateNotifications     int `json:"due_date_notifications"`
	OverdueNotifications     int `json:"overdue_notifications"`
	MaintenanceNotifications int `json:"maintenance_notifications"`
	Errors                   int `json:"errors"`
}

// Reconciler scans the ledger and inserts reminder notifications. It never
// changes tool status or closes transactions.
type Reconciler struct {
	store       repository.LedgerStore
	policy      service.PolicySource
	relay       service.NotificationRelay
	metrics     *metrics.Metrics
	loc         *time.Location
	passTimeout time.Duration
}

type Option func(*Reconciler)

func WithRelay(relay service.NotificationRelay) Option {
	return func(r *Reconciler) { r.relay = relay }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithLocation sets the zone used to decide calendar days.
func WithLocation(loc *time.Location) Option {
	return func(r *Reconciler) { r.loc = loc }
}

func WithPassTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.passTimeout = d }
}

func NewReconciler(store repository.LedgerStore, policy service.PolicySource, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       store,
		policy:      policy,
		loc:         time.UTC,
		passTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the passes selected by action. Pass failures are counted in
// Stats.Errors; the returned error is reserved for an unusable request.
func (r *Reconciler) Run(ctx context.Context, action Action, now time.Time) (Stats, error) {
	var stats Stats
	action, err := ParseAction(string(action))
	if err != nil {
		return stats, err
	}
	runID := uuid.NewString()
	log := logger.WithRun(runID, string(action))
	log.Info("Reconciliation started", "now", now)

	policy, err := r.policy.Policy(ctx)
	if err != nil {
		log.Error("Failed to load settings, using defaults", "error", err)
		policy = domain.DefaultPolicy()
		stats.Errors++
	}
	now = now.In(r.loc)

	if action.includes(ActionDueDate) {
		n, errs := r.runWithRecovery(ctx, "due_date", func(ctx context.Context) (int, int, error) {
			return r.dueDatePass(ctx, policy, now)
		})
		stats.DueDateNotifications += n
		stats.Errors += errs
	}
	if action.includes(ActionOverdue) {
		n, errs := r.runWithRecovery(ctx, "overdue", func(ctx context.Context) (int, int, error) {
			return r.overduePass(ctx, policy, now)
		})
		stats.OverdueNotifications += n
		stats.Errors += errs
	}
	if action.includes(ActionMaintenance) {
		n, errs := r.runWithRecovery(ctx, "maintenance", func(ctx context.Context) (int, int, error) {
			return r.maintenancePass(ctx, policy, now)
		})
		stats.MaintenanceNotifications += n
		stats.Errors += errs
	}

	result := "completed"
	if stats.Errors > 0 {
		result = "partial"
	}
	r.metrics.ObserveRun(string(action), result)
	log.Info("Reconciliation completed",
		"due_date", stats.DueDateNotifications,
		"overdue", stats.OverdueNotifications,
		"maintenance", stats.MaintenanceNotifications,
		"errors", stats.Errors)
	return stats, nil
}

// runWithRecovery runs one pass under its own deadline. A panic or a failed
// selection counts as one error and never reaches the other passes.
func (r *Reconciler) runWithRecovery(ctx context.Context, pass string, fn func(ctx context.Context) (int, int, error)) (emitted, errs int) {
	ctx, cancel := context.WithTimeout(ctx, r.passTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Pass panicked", "pass", pass, "panic", rec)
			errs++
		}
		r.metrics.ObservePass(pass, emitted, errs)
	}()

	logger.Info("Starting pass", "pass", pass)
	emitted, errs, err := fn(ctx)
	if err != nil {
		logger.Error("Pass failed", "pass", pass, "error", err)
		errs++
	}
	logger.Info("Pass completed", "pass", pass, "notifications", emitted, "errors", errs)
	return emitted, errs
}

// candidate is one notification a pass would like to insert.
type candidate struct {
	dedup repository.NotificationMatch
	note  domain.Notification
	log   *domain.TransactionLog
}

// emit inserts c unless a matching notification already exists. The check
// and the inserts share one unit of work.
func (r *Reconciler) emit(ctx context.Context, c candidate) (bool, error) {
	var inserted bool
	err := r.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		inserted = false
		exists, err := repos.Notifications.ExistsMatching(ctx, c.dedup)
		if err != nil {
			return fmt.Errorf("dedup lookup: %w", err)
		}
		if exists {
			return nil
		}
		if err := repos.Notifications.Create(ctx, &c.note); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		if c.log != nil {
			if err := repos.Logs.Append(ctx, c.log); err != nil {
				return fmt.Errorf("append reminder log: %w", err)
			}
		}
		inserted = true
		return nil
	})
	if err != nil || !inserted {
		return false, err
	}
	if r.relay != nil {
		r.relay.Relay(context.WithoutCancel(ctx), []domain.Notification{c.note})
	}
	return true, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b in b's zone.
func daysBetween(a, b time.Time) int {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func relativeDay(days int) string {
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}
