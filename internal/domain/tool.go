package domain

import "time"

type ToolStatus string

const (
	ToolStatusAvailable   ToolStatus = "available"
	ToolStatusBorrowed    ToolStatus = "borrowed"
	ToolStatusMaintenance ToolStatus = "maintenance"
	ToolStatusMissing     ToolStatus = "missing"
	ToolStatusInactive    ToolStatus = "inactive"
)

// Valid reports whether s is one of the known tool statuses.
func (s ToolStatus) Valid() bool {
	switch s {
	case ToolStatusAvailable, ToolStatusBorrowed, ToolStatusMaintenance, ToolStatusMissing, ToolStatusInactive:
		return true
	}
	return false
}

type Tool struct {
	ID                      int32      `json:"id"`
	Code                    string     `json:"code"`
	Name                    string     `json:"name"`
	Category                string     `json:"category"`
	StorageLocation         string     `json:"storage_location"`
	Description             string     `json:"description"`
	Status                  ToolStatus `json:"status"`
	MaintenanceIntervalDays int32      `json:"maintenance_interval_days"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// MaintenanceTracked reports whether the tool takes part in interval maintenance reminders.
func (t *Tool) MaintenanceTracked() bool {
	return t.MaintenanceIntervalDays > 0 &&
		t.Status != ToolStatusMaintenance &&
		t.Status != ToolStatusInactive
}
