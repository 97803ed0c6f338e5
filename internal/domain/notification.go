package domain

import "time"

type NotificationType string

const (
	NotificationTypeDueDate     NotificationType = "due_date"
	NotificationTypeOverdue     NotificationType = "overdue"
	NotificationTypeMaintenance NotificationType = "maintenance"
	NotificationTypeSystem      NotificationType = "system"
	NotificationTypeAlert       NotificationType = "alert"
)

// BroadcastUserID addresses a notification to all staff.
const BroadcastUserID int32 = 0

type Notification struct {
	ID        int32            `json:"id"`
	UserID    int32            `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

// IsBroadcast reports whether the notification is addressed to staff rather than one user.
func (n *Notification) IsBroadcast() bool {
	return n.UserID == BroadcastUserID
}
