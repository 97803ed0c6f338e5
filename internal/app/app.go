// Package app assembles the ledger store, services, reconciler and
// scheduler from configuration. Both binaries build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	httpapi "labtool-ledger/internal/api/http"
	"labtool-ledger/internal/config"
	"labtool-ledger/internal/jobs"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/metrics"
	"labtool-ledger/internal/repository"
	"labtool-ledger/internal/repository/memory"
	"labtool-ledger/internal/repository/postgres"
	"labtool-ledger/internal/runlock"
	"labtool-ledger/internal/scheduler"
	"labtool-ledger/internal/security"
	"labtool-ledger/internal/service"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
)

type App struct {
	Config        *config.Config
	Store         repository.LedgerStore
	Metrics       *metrics.Metrics
	Policy        service.PolicySource
	Relay         service.NotificationRelay
	Workflow      service.WorkflowService
	Notifications service.NotificationService
	Reconciler    *jobs.Reconciler
	Scheduler     *scheduler.Scheduler

	closers []func() error
}

// New connects to the configured backends. Redis is optional: when it is
// not configured or not reachable the run lock stays in-process.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	a.Policy = service.NewPolicySource(store.Settings())

	var email service.EmailService
	if cfg.Email.Provider == "sendgrid" {
		logger.Info("Using SendGrid email relay", "from", cfg.Email.FromEmail)
		email = service.NewSendGridEmailService(cfg.Email.APIKey, cfg.Email.FromEmail, cfg.Email.FromName)
	} else {
		logger.Info("Using log email relay")
		email = service.NewLogEmailService()
	}
	a.Relay = service.NewEmailRelay(email, store.Users(), a.Policy, cfg.Email.StaffAddress)

	a.Workflow = service.NewWorkflowService(store, a.Policy,
		service.WithOperationTimeout(cfg.OperationTimeout()),
		service.WithRetryBackoff(cfg.RetryBackoff()),
		service.WithMetrics(a.Metrics),
		service.WithRelay(a.Relay),
	)
	a.Notifications = service.NewNotificationService(store.Repos().Notifications)

	a.Reconciler = jobs.NewReconciler(store, a.Policy,
		jobs.WithRelay(a.Relay),
		jobs.WithMetrics(a.Metrics),
		jobs.WithLocation(cfg.SchedulerLocation()),
		jobs.WithPassTimeout(cfg.PassTimeout()),
	)

	sched, err := scheduler.NewScheduler(a.Reconciler, a.runLock(ctx), cfg.Scheduler.Reconcile, cfg.SchedulerLocation())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register reconcile schedule: %w", err)
	}
	a.Scheduler = sched

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.LedgerStore, error) {
	cfg := a.Config
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory ledger store; state is lost on exit")
		return memory.NewStore(), nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	a.closers = append(a.closers, db.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	return postgres.NewStore(db, postgres.WithLockTimeout(cfg.LockTimeout())), nil
}

func (a *App) runLock(ctx context.Context) runlock.Locker {
	cfg := a.Config
	if cfg.Redis.Addr == "" {
		return runlock.NewLocal()
	}
	client, err := runlock.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process run lock", "addr", cfg.Redis.Addr, "error", err)
		return runlock.NewLocal()
	}
	a.closers = append(a.closers, client.Close)
	logger.Info("Redis run lock enabled", "addr", cfg.Redis.Addr, "ttl", cfg.LockTTL())
	return runlock.NewRedis(client, cfg.LockTTL())
}

// Router builds the HTTP API. The scheduler serves the cron trigger so
// HTTP runs and scheduled runs share one lock.
func (a *App) Router() *mux.Router {
	cfg := a.Config
	var tokens security.TokenManager
	if cfg.JWT.Secret != "" {
		tokens = security.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute)
	} else {
		logger.Warn("JWT secret not set; tool and notification endpoints will reject all requests")
	}

	return httpapi.NewRouter(httpapi.RouterDeps{
		Workflow:      a.Workflow,
		Notifications: a.Notifications,
		Cron:          a.Scheduler,
		CronKeys:      security.NewCronKeyChecker(cfg.Cron.APIKeyHash),
		Tokens:        tokens,
		Metrics:       a.Metrics,
		MetricsPath:   cfg.Metrics.Path,
		Store:         a.Store,
		Location:      cfg.SchedulerLocation(),
		Clock:         time.Now,
	})
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Error closing resource", "error", err)
		}
	}
	a.closers = nil
}
