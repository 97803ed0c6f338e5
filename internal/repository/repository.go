package repository

import (
	"context"
	"errors"
	"time"

	"labtool-ledger/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness rule,
	// such as a second open transaction for the same tool.
	ErrConflict = errors.New("record conflicts with existing state")
)

type ToolRepository interface {
	Create(ctx context.Context, tool *domain.Tool) error
	GetByID(ctx context.Context, id int32) (*domain.Tool, error)
	// GetByIDForUpdate reads the tool and holds its row lock until the
	// surrounding unit of work ends.
	GetByIDForUpdate(ctx context.Context, id int32) (*domain.Tool, error)
	List(ctx context.Context, status domain.ToolStatus, page, pageSize int32) ([]domain.Tool, int32, error)
	UpdateStatus(ctx context.Context, id int32, status domain.ToolStatus, at time.Time) error
	ListMaintenanceTracked(ctx context.Context) ([]domain.Tool, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *domain.Transaction) error
	GetByID(ctx context.Context, id int32) (*domain.Transaction, error)
	GetByIDForUpdate(ctx context.Context, id int32) (*domain.Transaction, error)
	GetOpenByTool(ctx context.Context, toolID int32) (*domain.Transaction, error)
	GetLatestByTool(ctx context.Context, toolID int32) (*domain.Transaction, error)
	ListByTool(ctx context.Context, toolID int32) ([]domain.Transaction, error)
	Update(ctx context.Context, txn *domain.Transaction) error

	// ListOpenDueBetween returns open transactions with from <= expected_return_date < to.
	ListOpenDueBetween(ctx context.Context, from, to time.Time) ([]domain.OpenTransaction, error)
	// ListOpenDueBefore returns open transactions with expected_return_date < t.
	ListOpenDueBefore(ctx context.Context, t time.Time) ([]domain.OpenTransaction, error)
}

type TransactionLogRepository interface {
	Append(ctx context.Context, entry *domain.TransactionLog) error
	ListByTransaction(ctx context.Context, transactionID int32) ([]domain.TransactionLog, error)
}

type MaintenanceRepository interface {
	Create(ctx context.Context, entry *domain.MaintenanceLog) error
	// GetOpenByTool returns the most recent scheduled entry for the tool.
	GetOpenByTool(ctx context.Context, toolID int32) (*domain.MaintenanceLog, error)
	// LastCompleted returns the completed entry with the latest maintenance date.
	LastCompleted(ctx context.Context, toolID int32) (*domain.MaintenanceLog, error)
	ListByTool(ctx context.Context, toolID int32) ([]domain.MaintenanceLog, error)
	Complete(ctx context.Context, entry *domain.MaintenanceLog) error
}

// NotificationMatch selects notifications for duplicate suppression.
// Fragments must all occur in the message, in the given order.
type NotificationMatch struct {
	Type      domain.NotificationType
	UserID    *int32
	Since     time.Time
	Fragments []string
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	List(ctx context.Context, userID int32, includeBroadcast bool, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, userID int32, includeBroadcast bool) error
	ExistsMatching(ctx context.Context, match NotificationMatch) (bool, error)
}

type SettingsRepository interface {
	GetAll(ctx context.Context) (map[string]string, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.User, error)
	ListStaff(ctx context.Context) ([]domain.User, error)
}

// Repos is the set of repositories bound to one unit of work.
type Repos struct {
	Tools         ToolRepository
	Transactions  TransactionRepository
	Logs          TransactionLogRepository
	Maintenance   MaintenanceRepository
	Notifications NotificationRepository
}

// LedgerStore is the durable state shared by the workflow and the reconciler.
type LedgerStore interface {
	// Repos returns repositories where every call commits on its own.
	Repos() Repos
	// WithinTx runs fn in one atomic unit. Row locks taken through the
	// given Repos are held until fn returns. Any error from fn, or
	// cancellation of ctx, rolls the unit back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
	Settings() SettingsRepository
	Users() UserRepository
	Ping(ctx context.Context) error
}
