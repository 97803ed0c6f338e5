package domain

import "time"

type MaintenanceStatus string

const (
	MaintenanceStatusScheduled MaintenanceStatus = "scheduled"
	MaintenanceStatusCompleted MaintenanceStatus = "completed"
)

type MaintenanceLog struct {
	ID              int32             `json:"id"`
	ToolID          int32             `json:"tool_id"`
	ScheduledDate   time.Time         `json:"scheduled_date"`
	MaintenanceDate *time.Time        `json:"maintenance_date,omitempty"`
	Status          MaintenanceStatus `json:"status"`
	Notes           string            `json:"notes"`
	CreatedBy       int32             `json:"created_by"`
	CompletedBy     *int32            `json:"completed_by,omitempty"`
}
