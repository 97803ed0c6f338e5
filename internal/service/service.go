package service

import (
	"context"
	"time"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/toolstate"
)

// WorkflowService runs every tool and transaction mutation as one atomic unit.
type WorkflowService interface {
	RegisterTool(ctx context.Context, actor domain.Principal, tool *domain.Tool, now time.Time) (*domain.Tool, error)
	GetTool(ctx context.Context, id int32) (*domain.Tool, error)
	ListTools(ctx context.Context, status domain.ToolStatus, page, pageSize int32) ([]domain.Tool, int32, error)
	ToolHistory(ctx context.Context, toolID int32) (*ToolHistory, error)

	Borrow(ctx context.Context, actor domain.Principal, toolID int32, purpose string, expectedReturn, now time.Time) (*domain.Transaction, error)
	Extend(ctx context.Context, actor domain.Principal, transactionID int32, newReturnDate time.Time, reason string, now time.Time) (*domain.Transaction, error)
	Return(ctx context.Context, actor domain.Principal, transactionID int32, condition, notes string, now time.Time) (*ReturnResult, error)
	ScheduleMaintenance(ctx context.Context, actor domain.Principal, toolID int32, notes string, now time.Time) (*domain.MaintenanceLog, error)
	CompleteMaintenance(ctx context.Context, actor domain.Principal, toolID int32, notes string, now time.Time) (*domain.MaintenanceLog, error)
	Transition(ctx context.Context, actor domain.Principal, toolID int32, event toolstate.Event, now time.Time) (domain.ToolStatus, error)
}

type ReturnResult struct {
	Transaction *domain.Transaction    `json:"transaction"`
	ToolStatus  domain.ToolStatus      `json:"tool_status"`
	Maintenance *domain.MaintenanceLog `json:"maintenance,omitempty"`
}

type ToolHistory struct {
	Tool         domain.Tool                      `json:"tool"`
	Transactions []domain.Transaction             `json:"transactions"`
	Logs         map[int32][]domain.TransactionLog `json:"logs"`
	Maintenance  []domain.MaintenanceLog          `json:"maintenance"`
}

type NotificationService interface {
	GetNotifications(ctx context.Context, actor domain.Principal, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, actor domain.Principal, notificationID int32) error
}

// PolicySource supplies the current thresholds.
type PolicySource interface {
	Policy(ctx context.Context) (domain.Policy, error)
}

// EmailService delivers one notification to one mailbox.
type EmailService interface {
	SendNotification(ctx context.Context, toEmail, toName string, n *domain.Notification) error
}

// NotificationRelay forwards committed notifications to an outside channel.
type NotificationRelay interface {
	Relay(ctx context.Context, notes []domain.Notification)
}
