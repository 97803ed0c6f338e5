package jobs

import (
	"context"
	"fmt"
	"time"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/repository"
)

const dateLayout = "2006-01-02"

// dueDatePass reminds borrowers whose return date is DueDateReminderDays
// calendar days away.
func (r *Reconciler) dueDatePass(ctx context.Context, policy domain.Policy, now time.Time) (int, int, error) {
	days := policy.DueDateReminderDays
	from := startOfDay(now).AddDate(0, 0, days)
	to := from.AddDate(0, 0, 1)

	due, err := r.store.Repos().Transactions.ListOpenDueBetween(ctx, from, to)
	if err != nil {
		return 0, 0, fmt.Errorf("list transactions due on %s: %w", from.Format(dateLayout), err)
	}

	emitted, errs := 0, 0
	for _, t := range due {
		date := t.ExpectedReturnDate.In(now.Location()).Format(dateLayout)
		ok, err := r.emit(ctx, candidate{
			dedup: repository.NotificationMatch{
				Type:      domain.NotificationTypeDueDate,
				Since:     now.Add(-24 * time.Hour),
				Fragments: []string{t.ToolName, date},
			},
			note: domain.Notification{
				UserID:    t.UserID,
				Type:      domain.NotificationTypeDueDate,
				Title:     "Tool Due Soon: " + t.ToolName,
				Message:   fmt.Sprintf("The tool %s (%s) is due for return %s (%s).", t.ToolName, t.ToolCode, relativeDay(days), date),
				CreatedAt: now,
			},
		})
		if err != nil {
			logger.Error("Failed to send due date reminder", "transactionID", t.ID, "error", err)
			errs++
			continue
		}
		if ok {
			emitted++
			logger.Debug("Sent due date reminder", "transactionID", t.ID, "userID", t.UserID)
		}
	}
	return emitted, errs, nil
}

// overduePass reminds borrowers past their return date, at most once per
// OverdueReminderInterval for each user and tool.
func (r *Reconciler) overduePass(ctx context.Context, policy domain.Policy, now time.Time) (int, int, error) {
	overdue, err := r.store.Repos().Transactions.ListOpenDueBefore(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("list overdue transactions: %w", err)
	}

	emitted, errs := 0, 0
	for _, t := range overdue {
		days := max(daysBetween(t.ExpectedReturnDate, now), 1)
		plural := ""
		if days > 1 {
			plural = "s"
		}
		userID := t.UserID
		ok, err := r.emit(ctx, candidate{
			dedup: repository.NotificationMatch{
				Type:      domain.NotificationTypeOverdue,
				UserID:    &userID,
				Since:     now.Add(-policy.OverdueReminderInterval()),
				Fragments: []string{t.ToolName},
			},
			note: domain.Notification{
				UserID:    t.UserID,
				Type:      domain.NotificationTypeOverdue,
				Title:     "Overdue Tool: " + t.ToolName,
				Message:   fmt.Sprintf("The tool %s (%s) is overdue by %d day%s. Please return it as soon as possible.", t.ToolName, t.ToolCode, days, plural),
				CreatedAt: now,
			},
			log: &domain.TransactionLog{
				TransactionID: t.ID,
				Action:        domain.LogActionReminder,
				Details:       fmt.Sprintf("Automated overdue reminder sent. Days overdue: %d", days),
				UserID:        domain.SystemUserID,
				CreatedAt:     now,
			},
		})
		if err != nil {
			logger.Error("Failed to send overdue reminder", "transactionID", t.ID, "error", err)
			errs++
			continue
		}
		if ok {
			emitted++
			logger.Debug("Sent overdue reminder", "transactionID", t.ID, "userID", t.UserID, "daysOverdue", days)
		}
	}
	return emitted, errs, nil
}
