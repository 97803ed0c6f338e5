package domain

import (
	"strconv"
	"strings"
	"time"
)

const (
	SettingMaxBorrowDays            = "max_borrow_days"
	SettingMaxExtensionDays         = "max_extension_days"
	SettingDueDateReminderDays      = "due_date_reminder_days"
	SettingOverdueReminderInterval  = "overdue_reminder_interval"
	SettingMaintenanceReminderDays  = "maintenance_reminder_days"
	SettingEnableEmailNotifications = "enable_email_notifications"
)

// Policy holds the tunable thresholds the workflow and reconciler consult.
type Policy struct {
	MaxBorrowDays            int  `json:"max_borrow_days"`
	MaxExtensionDays         int  `json:"max_extension_days"`
	DueDateReminderDays      int  `json:"due_date_reminder_days"`
	OverdueReminderHours     int  `json:"overdue_reminder_interval"`
	MaintenanceReminderDays  int  `json:"maintenance_reminder_days"`
	EnableEmailNotifications bool `json:"enable_email_notifications"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxBorrowDays:            14,
		MaxExtensionDays:         7,
		DueDateReminderDays:      1,
		OverdueReminderHours:     24,
		MaintenanceReminderDays:  7,
		EnableEmailNotifications: true,
	}
}

// PolicyFromSettings overlays raw setting values onto the defaults.
// Unparseable or negative values keep the default.
func PolicyFromSettings(values map[string]string) Policy {
	p := DefaultPolicy()
	intSetting(values, SettingMaxBorrowDays, &p.MaxBorrowDays)
	intSetting(values, SettingMaxExtensionDays, &p.MaxExtensionDays)
	intSetting(values, SettingDueDateReminderDays, &p.DueDateReminderDays)
	intSetting(values, SettingOverdueReminderInterval, &p.OverdueReminderHours)
	intSetting(values, SettingMaintenanceReminderDays, &p.MaintenanceReminderDays)
	if v, ok := values[SettingEnableEmailNotifications]; ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			p.EnableEmailNotifications = true
		case "0", "false", "no", "off", "":
			p.EnableEmailNotifications = false
		}
	}
	return p
}

func intSetting(values map[string]string, key string, dst *int) {
	v, ok := values[key]
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return
	}
	*dst = n
}

func (p Policy) OverdueReminderInterval() time.Duration {
	return time.Duration(p.OverdueReminderHours) * time.Hour
}
