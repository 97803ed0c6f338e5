package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindMatching(t *testing.T) {
	err := NewError(ErrKindNotOwner, "transaction %d belongs to another user", 4)
	wrapped := fmt.Errorf("extend: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotOwner))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, ErrKindNotOwner, KindOf(wrapped))
	assert.Equal(t, "NotOwner: transaction 4 belongs to another user", err.Error())
}

func TestIsDomainError(t *testing.T) {
	assert.True(t, IsDomainError(NewError(ErrKindPolicyViolation, "too long")))
	assert.False(t, IsDomainError(NewError(ErrKindTimeout, "deadline")))
	assert.False(t, IsDomainError(errors.New("connection reset")))
	assert.False(t, IsDomainError(nil))
}

func TestPolicyFromSettings(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		p := PolicyFromSettings(nil)
		assert.Equal(t, DefaultPolicy(), p)
		assert.Equal(t, 14, p.MaxBorrowDays)
		assert.Equal(t, 7, p.MaxExtensionDays)
	})

	t.Run("Overrides", func(t *testing.T) {
		p := PolicyFromSettings(map[string]string{
			SettingMaxBorrowDays:            "21",
			SettingOverdueReminderInterval:  "12",
			SettingMaxExtensionDays:         "abc",
			SettingDueDateReminderDays:      "-2",
			SettingEnableEmailNotifications: "0",
		})
		assert.Equal(t, 21, p.MaxBorrowDays)
		assert.Equal(t, 12, p.OverdueReminderHours)
		assert.Equal(t, 7, p.MaxExtensionDays)
		assert.Equal(t, 1, p.DueDateReminderDays)
		assert.False(t, p.EnableEmailNotifications)
	})
}

func TestReturnCondition(t *testing.T) {
	c, ok := ParseReturnCondition("damaged")
	assert.True(t, ok)
	assert.True(t, c.NeedsMaintenance())

	c, ok = ParseReturnCondition("fair")
	assert.True(t, ok)
	assert.False(t, c.NeedsMaintenance())

	_, ok = ParseReturnCondition("broken")
	assert.False(t, ok)
}
