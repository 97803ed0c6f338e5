package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"labtool-ledger/internal/app"
	"labtool-ledger/internal/config"
	"labtool-ledger/internal/jobs"
	"labtool-ledger/internal/logger"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run one reconciliation and exit (all, due_date, overdue, maintenance)")
	output := flag.String("output", "text", "Result format for -run-once (text or json)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Lab Tool Reconciler...", "log_level", cfg.Log.Level)

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	// Check if running a single reconciliation
	if *runOnce != "" {
		action, err := jobs.ParseAction(*runOnce)
		if err != nil {
			logger.Error("Unknown action", "action", *runOnce)
			fmt.Fprintf(os.Stderr, "Available actions: all, due_date, overdue, maintenance\n")
			application.Close()
			os.Exit(1)
		}

		logger.Info("Running reconciliation once", "action", action)
		stats, err := application.Scheduler.RunOnce(ctx, action)
		if err != nil {
			logger.Error("Reconciliation failed", "action", action, "error", err)
			application.Close()
			os.Exit(1)
		}
		if err := printStats(os.Stdout, *output, stats); err != nil {
			log.Fatalf("Failed to write result: %v", err)
		}
		logger.Info("Reconciliation completed", "action", action)
		return
	}

	// Start scheduler
	application.Scheduler.Start()
	logger.Info("Reconcile scheduler is running. Press Ctrl+C to stop.", "next_run", application.Scheduler.Next())

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down reconcile scheduler...")
	application.Scheduler.Stop()
	logger.Info("Reconcile scheduler stopped. Goodbye!")
}

func printStats(w io.Writer, format string, stats jobs.Stats) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(stats)
	}
	_, err := fmt.Fprintf(w, "Cron job completed.\nDue date notifications: %d\nOverdue notifications: %d\nMaintenance notifications: %d\nErrors: %d\n",
		stats.DueDateNotifications, stats.OverdueNotifications, stats.MaintenanceNotifications, stats.Errors)
	return err
}
