package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/metrics"
	"labtool-ledger/internal/repository"
	"labtool-ledger/internal/toolstate"
)

const dateLayout = "2006-01-02"

type workflowService struct {
	store   repository.LedgerStore
	policy  PolicySource
	relay   NotificationRelay
	metrics *metrics.Metrics
	timeout time.Duration
	backoff time.Duration
}

type WorkflowOption func(*workflowService)

func WithOperationTimeout(d time.Duration) WorkflowOption {
	return func(s *workflowService) { s.timeout = d }
}

func WithRetryBackoff(d time.Duration) WorkflowOption {
	return func(s *workflowService) { s.backoff = d }
}

func WithMetrics(m *metrics.Metrics) WorkflowOption {
	return func(s *workflowService) { s.metrics = m }
}

// WithRelay sets where notifications go after their unit commits.
func WithRelay(r NotificationRelay) WorkflowOption {
	return func(s *workflowService) { s.relay = r }
}

func NewWorkflowService(store repository.LedgerStore, policy PolicySource, opts ...WorkflowOption) WorkflowService {
	s := &workflowService{
		store:   store,
		policy:  policy,
		timeout: 10 * time.Second,
		backoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run executes fn under the operation deadline. Infrastructure failures get
// one more attempt; business-rule failures and deadline expiry do not.
func (s *workflowService) run(ctx context.Context, op string, actor domain.Principal, fn func(ctx context.Context) error) error {
	log := logger.WithOperation(op, actor.UserID)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := classify(ctx, fn(ctx))
	if err != nil && domain.KindOf(err) == "" {
		log.Warn("Operation failed, retrying once", "error", err)
		select {
		case <-time.After(s.backoff):
			err = classify(ctx, fn(ctx))
		case <-ctx.Done():
			err = classify(ctx, ctx.Err())
		}
		if err != nil && domain.KindOf(err) == "" {
			err = domain.WrapError(domain.ErrKindUnavailable, err, "ledger store unavailable")
		}
	}

	s.metrics.ObserveOperation(op, err, time.Since(start))
	switch {
	case err == nil:
		log.Info("Operation succeeded", "duration", time.Since(start))
	case domain.IsDomainError(err):
		log.Info("Operation refused", "kind", domain.KindOf(err), "reason", err)
	default:
		log.Error("Operation failed", "kind", domain.KindOf(err), "error", err)
	}
	return err
}

// classify maps store and context failures onto error kinds.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return domain.WrapError(domain.ErrKindTimeout, err, "operation did not finish in time")
	}
	if errors.Is(err, repository.ErrConflict) {
		return domain.WrapError(domain.ErrKindToolUnavailable, err, "tool is already out on another transaction")
	}
	if errors.Is(err, repository.ErrNotFound) {
		return domain.WrapError(domain.ErrKindNotFound, err, "record not found")
	}
	return err
}

func (s *workflowService) deliver(ctx context.Context, notes []domain.Notification) {
	if s.relay == nil || len(notes) == 0 {
		return
	}
	s.relay.Relay(context.WithoutCancel(ctx), notes)
}

// emitter collects the notifications written in one attempt.
type emitter struct {
	repo  repository.NotificationRepository
	now   time.Time
	notes []domain.Notification
}

func (e *emitter) emit(ctx context.Context, userID int32, typ domain.NotificationType, title, message string) error {
	n := domain.Notification{UserID: userID, Type: typ, Title: title, Message: message, CreatedAt: e.now}
	if err := e.repo.Create(ctx, &n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	e.notes = append(e.notes, n)
	return nil
}

func lockTool(ctx context.Context, r repository.Repos, toolID int32) (*domain.Tool, error) {
	tool, err := r.Tools.GetByIDForUpdate(ctx, toolID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NewError(domain.ErrKindNotFound, "tool %d not found", toolID)
	}
	return tool, err
}

func hasOpenTransaction(ctx context.Context, r repository.Repos, toolID int32) (bool, error) {
	_, err := r.Transactions.GetOpenByTool(ctx, toolID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func requireStaff(actor domain.Principal) error {
	if !actor.IsStaff() {
		return domain.NewError(domain.ErrKindPermissionDenied, "staff role required")
	}
	return nil
}

func (s *workflowService) RegisterTool(ctx context.Context, actor domain.Principal, tool *domain.Tool, now time.Time) (*domain.Tool, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	tool.Name = strings.TrimSpace(tool.Name)
	tool.Code = strings.TrimSpace(tool.Code)
	if tool.Name == "" || tool.Code == "" {
		return nil, domain.NewError(domain.ErrKindInvalidInput, "tool name and code are required")
	}
	if tool.MaintenanceIntervalDays < 0 {
		return nil, domain.NewError(domain.ErrKindInvalidInput, "maintenance interval cannot be negative")
	}
	tool.Status = domain.ToolStatusAvailable
	tool.CreatedAt = now

	err := s.run(ctx, "register_tool", actor, func(ctx context.Context) error {
		err := s.store.Repos().Tools.Create(ctx, tool)
		if errors.Is(err, repository.ErrConflict) {
			return domain.NewError(domain.ErrKindInvalidInput, "tool code %q already exists", tool.Code)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return tool, nil
}

func (s *workflowService) GetTool(ctx context.Context, id int32) (*domain.Tool, error) {
	tool, err := s.store.Repos().Tools.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NewError(domain.ErrKindNotFound, "tool %d not found", id)
	}
	return tool, err
}

func (s *workflowService) ListTools(ctx context.Context, status domain.ToolStatus, page, pageSize int32) ([]domain.Tool, int32, error) {
	if status != "" && !status.Valid() {
		return nil, 0, domain.NewError(domain.ErrKindInvalidInput, "unknown tool status %q", status)
	}
	return s.store.Repos().Tools.List(ctx, status, page, pageSize)
}

func (s *workflowService) ToolHistory(ctx context.Context, toolID int32) (*ToolHistory, error) {
	tool, err := s.GetTool(ctx, toolID)
	if err != nil {
		return nil, err
	}
	r := s.store.Repos()
	txns, err := r.Transactions.ListByTool(ctx, toolID)
	if err != nil {
		return nil, err
	}
	logs := make(map[int32][]domain.TransactionLog, len(txns))
	for _, t := range txns {
		entries, err := r.Logs.ListByTransaction(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		logs[t.ID] = entries
	}
	maint, err := r.Maintenance.ListByTool(ctx, toolID)
	if err != nil {
		return nil, err
	}
	return &ToolHistory{Tool: *tool, Transactions: txns, Logs: logs, Maintenance: maint}, nil
}

func (s *workflowService) Borrow(ctx context.Context, actor domain.Principal, toolID int32, purpose string, expectedReturn, now time.Time) (*domain.Transaction, error) {
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, domain.NewError(domain.ErrKindInvalidInput, "purpose is required")
	}
	if !expectedReturn.After(now) {
		return nil, domain.NewError(domain.ErrKindInvalidDate, "expected return date must be in the future")
	}

	var txn *domain.Transaction
	var out *emitter
	err := s.run(ctx, "borrow", actor, func(ctx context.Context) error {
		policy, err := s.policy.Policy(ctx)
		if err != nil {
			return err
		}
		limit := now.AddDate(0, 0, policy.MaxBorrowDays)
		if expectedReturn.After(limit) {
			return domain.NewError(domain.ErrKindPolicyViolation,
				"maximum borrowing period is %d days", policy.MaxBorrowDays)
		}

		return s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			out = &emitter{repo: r.Notifications, now: now}

			tool, err := lockTool(ctx, r, toolID)
			if err != nil {
				return err
			}
			next, err := toolstate.Next(tool.Status, toolstate.EventBorrow)
			if err != nil {
				return domain.NewError(domain.ErrKindToolUnavailable, "tool %s is %s", tool.Code, tool.Status)
			}
			open, err := hasOpenTransaction(ctx, r, toolID)
			if err != nil {
				return err
			}
			if open {
				return domain.NewError(domain.ErrKindToolUnavailable, "tool %s is already out", tool.Code)
			}

			txn = &domain.Transaction{
				ToolID:             toolID,
				UserID:             actor.UserID,
				Purpose:            purpose,
				TransactionDate:    now,
				ExpectedReturnDate: expectedReturn,
			}
			if err := r.Transactions.Create(ctx, txn); err != nil {
				return err
			}
			if err := r.Tools.UpdateStatus(ctx, toolID, next, now); err != nil {
				return err
			}
			if err := r.Logs.Append(ctx, &domain.TransactionLog{
				TransactionID: txn.ID,
				Action:        domain.LogActionBorrow,
				Details:       fmt.Sprintf("Tool borrowed. Purpose: %s. Expected return: %s", purpose, expectedReturn.Format(dateLayout)),
				UserID:        actor.UserID,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
			return out.emit(ctx, actor.UserID, domain.NotificationTypeSystem,
				"Tool Borrowed: "+tool.Name,
				fmt.Sprintf("You have borrowed %s (%s). Expected return date: %s", tool.Name, tool.Code, expectedReturn.Format(dateLayout)))
		})
	})
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, out.notes)
	return txn, nil
}

// loadOwnedOpen reads a transaction under lock and checks it belongs to actor and is open.
func loadOwnedOpen(ctx context.Context, r repository.Repos, actor domain.Principal, transactionID int32) (*domain.Transaction, error) {
	txn, err := r.Transactions.GetByIDForUpdate(ctx, transactionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NewError(domain.ErrKindNotFound, "transaction %d not found", transactionID)
	}
	if err != nil {
		return nil, err
	}
	if txn.UserID != actor.UserID {
		return nil, domain.NewError(domain.ErrKindNotOwner, "transaction %d belongs to another user", transactionID)
	}
	if !txn.IsOpen() {
		return nil, domain.NewError(domain.ErrKindNotFound, "transaction %d is not active", transactionID)
	}
	return txn, nil
}

func (s *workflowService) Extend(ctx context.Context, actor domain.Principal, transactionID int32, newReturnDate time.Time, reason string, now time.Time) (*domain.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewError(domain.ErrKindInvalidInput, "extension reason is required")
	}
	if !newReturnDate.After(now) {
		return nil, domain.NewError(domain.ErrKindInvalidDate, "new return date must be in the future")
	}

	var txn *domain.Transaction
	var out *emitter
	err := s.run(ctx, "extend", actor, func(ctx context.Context) error {
		policy, err := s.policy.Policy(ctx)
		if err != nil {
			return err
		}
		return s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			out = &emitter{repo: r.Notifications, now: now}

			t, err := loadOwnedOpen(ctx, r, actor, transactionID)
			if err != nil {
				return err
			}
			if !newReturnDate.After(t.ExpectedReturnDate) {
				return domain.NewError(domain.ErrKindInvalidDate,
					"new return date must be later than the current return date %s", t.ExpectedReturnDate.Format(dateLayout))
			}
			if newReturnDate.After(t.ExpectedReturnDate.AddDate(0, 0, policy.MaxExtensionDays)) {
				return domain.NewError(domain.ErrKindPolicyViolation,
					"maximum extension period is %d days", policy.MaxExtensionDays)
			}
			tool, err := r.Tools.GetByID(ctx, t.ToolID)
			if err != nil {
				return err
			}

			previous := t.ExpectedReturnDate
			t.ExpectedReturnDate = newReturnDate
			t.ExtensionReason = &reason
			t.UpdatedAt = now
			if err := r.Transactions.Update(ctx, t); err != nil {
				return err
			}
			if err := r.Logs.Append(ctx, &domain.TransactionLog{
				TransactionID: t.ID,
				Action:        domain.LogActionExtension,
				Details:       fmt.Sprintf("Extended from %s to %s. Reason: %s", previous.Format(dateLayout), newReturnDate.Format(dateLayout), reason),
				UserID:        actor.UserID,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
			txn = t
			return out.emit(ctx, actor.UserID, domain.NotificationTypeSystem,
				"Borrowing Extended: "+tool.Name,
				fmt.Sprintf("Your borrowing of %s (%s) has been extended. New return date: %s", tool.Name, tool.Code, newReturnDate.Format(dateLayout)))
		})
	})
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, out.notes)
	return txn, nil
}

func (s *workflowService) Return(ctx context.Context, actor domain.Principal, transactionID int32, condition, notes string, now time.Time) (*ReturnResult, error) {
	cond, ok := domain.ParseReturnCondition(strings.ToLower(strings.TrimSpace(condition)))
	if !ok {
		return nil, domain.NewError(domain.ErrKindInvalidCondition, "condition must be one of good, fair, poor, damaged")
	}
	notes = strings.TrimSpace(notes)

	var result *ReturnResult
	var out *emitter
	err := s.run(ctx, "return", actor, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			out = &emitter{repo: r.Notifications, now: now}

			// The tool row is locked before the transaction row, the same
			// order Borrow uses.
			peek, err := r.Transactions.GetByID(ctx, transactionID)
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NewError(domain.ErrKindNotFound, "transaction %d not found", transactionID)
			}
			if err != nil {
				return err
			}
			tool, err := lockTool(ctx, r, peek.ToolID)
			if err != nil {
				return err
			}
			txn, err := loadOwnedOpen(ctx, r, actor, transactionID)
			if err != nil {
				return err
			}
			next, err := toolstate.Next(tool.Status, toolstate.ReturnEvent(cond))
			if err != nil {
				return err
			}

			txn.ReturnDate = &now
			txn.ReturnCondition = &cond
			txn.Notes = notes
			txn.UpdatedAt = now
			if err := r.Transactions.Update(ctx, txn); err != nil {
				return err
			}
			if err := r.Tools.UpdateStatus(ctx, tool.ID, next, now); err != nil {
				return err
			}
			result = &ReturnResult{Transaction: txn, ToolStatus: next}

			if next == domain.ToolStatusMaintenance {
				m := &domain.MaintenanceLog{
					ToolID:        tool.ID,
					ScheduledDate: now,
					Status:        domain.MaintenanceStatusScheduled,
					Notes:         fmt.Sprintf("Maintenance required after return. Return condition: %s. Notes: %s", cond, notes),
					CreatedBy:     actor.UserID,
				}
				if err := r.Maintenance.Create(ctx, m); err != nil {
					return err
				}
				result.Maintenance = m
			}

			details := fmt.Sprintf("Tool returned in %s condition.", cond)
			if notes != "" {
				details += " Notes: " + notes
			}
			if err := r.Logs.Append(ctx, &domain.TransactionLog{
				TransactionID: txn.ID,
				Action:        domain.LogActionReturn,
				Details:       details,
				UserID:        actor.UserID,
				CreatedAt:     now,
			}); err != nil {
				return err
			}

			if err := out.emit(ctx, actor.UserID, domain.NotificationTypeSystem,
				"Tool Returned: "+tool.Name,
				fmt.Sprintf("You have returned %s (%s) in %s condition.", tool.Name, tool.Code, cond)); err != nil {
				return err
			}
			if result.Maintenance != nil {
				return out.emit(ctx, domain.BroadcastUserID, domain.NotificationTypeMaintenance,
					"Tool Requires Maintenance: "+tool.Name,
					fmt.Sprintf("Tool %s (%s) has been returned in %s condition and requires maintenance.", tool.Name, tool.Code, cond))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, out.notes)
	return result, nil
}

func (s *workflowService) ScheduleMaintenance(ctx context.Context, actor domain.Principal, toolID int32, notes string, now time.Time) (*domain.MaintenanceLog, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)

	var entry *domain.MaintenanceLog
	var out *emitter
	err := s.run(ctx, "schedule_maintenance", actor, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			out = &emitter{repo: r.Notifications, now: now}

			tool, err := lockTool(ctx, r, toolID)
			if err != nil {
				return err
			}
			if tool.Status == domain.ToolStatusMaintenance {
				return domain.NewError(domain.ErrKindInvalidTransition, "tool %s is already in maintenance", tool.Code)
			}
			open, err := hasOpenTransaction(ctx, r, toolID)
			if err != nil {
				return err
			}
			if open {
				return domain.NewError(domain.ErrKindToolUnavailable, "tool %s must be returned before maintenance", tool.Code)
			}
			next, err := toolstate.Next(tool.Status, toolstate.EventScheduleMaintenance)
			if err != nil {
				return err
			}

			if err := r.Tools.UpdateStatus(ctx, toolID, next, now); err != nil {
				return err
			}
			entry = &domain.MaintenanceLog{
				ToolID:        toolID,
				ScheduledDate: now,
				Status:        domain.MaintenanceStatusScheduled,
				Notes:         notes,
				CreatedBy:     actor.UserID,
			}
			if err := r.Maintenance.Create(ctx, entry); err != nil {
				return err
			}
			return out.emit(ctx, domain.BroadcastUserID, domain.NotificationTypeMaintenance,
				"Maintenance Scheduled: "+tool.Name,
				fmt.Sprintf("Tool %s (%s) has been taken out of circulation for maintenance.", tool.Name, tool.Code))
		})
	})
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, out.notes)
	return entry, nil
}

func (s *workflowService) CompleteMaintenance(ctx context.Context, actor domain.Principal, toolID int32, notes string, now time.Time) (*domain.MaintenanceLog, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)

	var entry *domain.MaintenanceLog
	err := s.run(ctx, "complete_maintenance", actor, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			tool, err := lockTool(ctx, r, toolID)
			if err != nil {
				return err
			}
			next, err := toolstate.Next(tool.Status, toolstate.EventCompleteMaintenance)
			if err != nil {
				return err
			}
			m, err := r.Maintenance.GetOpenByTool(ctx, toolID)
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NewError(domain.ErrKindInvalidTransition, "tool %s has no scheduled maintenance", tool.Code)
			}
			if err != nil {
				return err
			}

			completedBy := actor.UserID
			m.Status = domain.MaintenanceStatusCompleted
			m.MaintenanceDate = &now
			m.CompletedBy = &completedBy
			if notes != "" {
				m.Notes = notes
			}
			if err := r.Maintenance.Complete(ctx, m); err != nil {
				return err
			}
			if err := r.Tools.UpdateStatus(ctx, toolID, next, now); err != nil {
				return err
			}
			entry = m
			return logRepairOnReturn(ctx, r, m, notes, actor, now)
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// logRepairOnReturn records the completed repair on the transaction whose
// return opened it, if that is how the maintenance began.
func logRepairOnReturn(ctx context.Context, r repository.Repos, m *domain.MaintenanceLog, notes string, actor domain.Principal, now time.Time) error {
	last, err := r.Transactions.GetLatestByTool(ctx, m.ToolID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if last.ReturnDate == nil || last.ReturnCondition == nil || !last.ReturnCondition.NeedsMaintenance() ||
		!last.ReturnDate.Equal(m.ScheduledDate) {
		return nil
	}
	details := "Maintenance completed."
	if notes != "" {
		details += " Notes: " + notes
	}
	return r.Logs.Append(ctx, &domain.TransactionLog{
		TransactionID: last.ID,
		Action:        domain.LogActionMaintenance,
		Details:       details,
		UserID:        actor.UserID,
		CreatedAt:     now,
	})
}

// Transition applies an administrative status change. Borrow, return and
// maintenance events go through their own operations.
func (s *workflowService) Transition(ctx context.Context, actor domain.Principal, toolID int32, event toolstate.Event, now time.Time) (domain.ToolStatus, error) {
	if !event.IsAdministrative() {
		return "", domain.NewError(domain.ErrKindInvalidTransition, "%s is not an administrative event", event)
	}
	if err := requireStaff(actor); err != nil {
		return "", err
	}

	var next domain.ToolStatus
	var out *emitter
	err := s.run(ctx, "transition", actor, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			out = &emitter{repo: r.Notifications, now: now}

			tool, err := lockTool(ctx, r, toolID)
			if err != nil {
				return err
			}
			open, err := hasOpenTransaction(ctx, r, toolID)
			if err != nil {
				return err
			}
			if open {
				return domain.NewError(domain.ErrKindInvalidTransition, "tool %s has an open transaction", tool.Code)
			}
			next, err = toolstate.Next(tool.Status, event)
			if err != nil {
				return err
			}
			if err := r.Tools.UpdateStatus(ctx, toolID, next, now); err != nil {
				return err
			}
			logger.Info("Tool status changed", "toolID", toolID, "event", event, "from", tool.Status, "to", next, "actor", actor.UserID)

			if event == toolstate.EventMarkMissing {
				return out.emit(ctx, domain.BroadcastUserID, domain.NotificationTypeAlert,
					"Tool Missing: "+tool.Name,
					fmt.Sprintf("Tool %s (%s) has been marked as missing.", tool.Name, tool.Code))
			}
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	s.deliver(ctx, out.notes)
	return next, nil
}
