package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/repository"
)

const (
	maintenanceDedupWindow = 7 * 24 * time.Hour
	neverMaintainedPhrase  = "never been maintained"
)

// maintenancePass tells staff about tools whose maintenance interval is
// about to run out, or that have never been maintained at all.
func (r *Reconciler) maintenancePass(ctx context.Context, policy domain.Policy, now time.Time) (int, int, error) {
	tools, err := r.store.Repos().Tools.ListMaintenanceTracked(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list maintenance tracked tools: %w", err)
	}

	emitted, errs := 0, 0
	for _, tool := range tools {
		c, err := r.maintenanceCandidate(ctx, policy, tool, now)
		if err == nil && c != nil {
			var ok bool
			ok, err = r.emit(ctx, *c)
			if ok {
				emitted++
				logger.Debug("Sent maintenance reminder", "toolID", tool.ID)
			}
		}
		if err != nil {
			logger.Error("Failed to check tool maintenance", "toolID", tool.ID, "error", err)
			errs++
		}
	}
	return emitted, errs, nil
}

func (r *Reconciler) maintenanceCandidate(ctx context.Context, policy domain.Policy, tool domain.Tool, now time.Time) (*candidate, error) {
	window := policy.MaintenanceReminderDays
	last, err := r.store.Repos().Maintenance.LastCompleted(ctx, tool.ID)

	switch {
	case errors.Is(err, repository.ErrNotFound):
		age := daysBetween(tool.CreatedAt, now)
		if age <= window {
			return nil, nil
		}
		return &candidate{
			dedup: repository.NotificationMatch{
				Type:      domain.NotificationTypeMaintenance,
				Since:     now.Add(-maintenanceDedupWindow),
				Fragments: []string{tool.Name, neverMaintainedPhrase},
			},
			note: domain.Notification{
				UserID: domain.BroadcastUserID,
				Type:   domain.NotificationTypeMaintenance,
				Title:  "Maintenance Needed: " + tool.Name,
				Message: fmt.Sprintf("The tool %s (%s) has %s and was added %d days ago. The recommended maintenance interval is %d days.",
					tool.Name, tool.Code, neverMaintainedPhrase, age, tool.MaintenanceIntervalDays),
				CreatedAt: now,
			},
		}, nil

	case err != nil:
		return nil, fmt.Errorf("last maintenance: %w", err)

	case last.MaintenanceDate == nil:
		return nil, nil
	}

	next := last.MaintenanceDate.In(now.Location()).AddDate(0, 0, int(tool.MaintenanceIntervalDays))
	until := daysBetween(now, next)
	if until < 0 || until > window {
		return nil, nil
	}
	date := next.Format(dateLayout)
	return &candidate{
		dedup: repository.NotificationMatch{
			Type:      domain.NotificationTypeMaintenance,
			Since:     now.Add(-maintenanceDedupWindow),
			Fragments: []string{tool.Name, date},
		},
		note: domain.Notification{
			UserID: domain.BroadcastUserID,
			Type:   domain.NotificationTypeMaintenance,
			Title:  "Maintenance Due: " + tool.Name,
			Message: fmt.Sprintf("The tool %s (%s) is due for maintenance %s. Next maintenance date: %s",
				tool.Name, tool.Code, relativeDay(until), date),
			CreatedAt: now,
		},
	}, nil
}
