package toolstate

import (
	"errors"
	"testing"

	"labtool-ledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from  domain.ToolStatus
		event Event
		want  domain.ToolStatus
	}{
		{domain.ToolStatusAvailable, EventBorrow, domain.ToolStatusBorrowed},
		{domain.ToolStatusBorrowed, EventReturn, domain.ToolStatusAvailable},
		{domain.ToolStatusBorrowed, EventReturnForRepair, domain.ToolStatusMaintenance},
		{domain.ToolStatusAvailable, EventScheduleMaintenance, domain.ToolStatusMaintenance},
		{domain.ToolStatusMaintenance, EventCompleteMaintenance, domain.ToolStatusAvailable},
		{domain.ToolStatusAvailable, EventMarkMissing, domain.ToolStatusMissing},
		{domain.ToolStatusMissing, EventMarkFound, domain.ToolStatusAvailable},
		{domain.ToolStatusBorrowed, EventDeactivate, domain.ToolStatusInactive},
		{domain.ToolStatusMaintenance, EventDeactivate, domain.ToolStatusInactive},
		{domain.ToolStatusInactive, EventReactivate, domain.ToolStatusAvailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			got, err := Next(tt.from, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextRejected(t *testing.T) {
	tests := []struct {
		from  domain.ToolStatus
		event Event
	}{
		{domain.ToolStatusBorrowed, EventBorrow},
		{domain.ToolStatusMaintenance, EventBorrow},
		{domain.ToolStatusMissing, EventBorrow},
		{domain.ToolStatusInactive, EventBorrow},
		{domain.ToolStatusAvailable, EventReturn},
		{domain.ToolStatusMaintenance, EventScheduleMaintenance},
		{domain.ToolStatusBorrowed, EventScheduleMaintenance},
		{domain.ToolStatusAvailable, EventCompleteMaintenance},
		{domain.ToolStatusBorrowed, EventMarkMissing},
		{domain.ToolStatusInactive, EventDeactivate},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			_, err := Next(tt.from, tt.event)
			assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
		})
	}
}

func TestReturnEvent(t *testing.T) {
	assert.Equal(t, EventReturn, ReturnEvent(domain.ReturnConditionGood))
	assert.Equal(t, EventReturn, ReturnEvent(domain.ReturnConditionFair))
	assert.Equal(t, EventReturnForRepair, ReturnEvent(domain.ReturnConditionPoor))
	assert.Equal(t, EventReturnForRepair, ReturnEvent(domain.ReturnConditionDamaged))
}

func TestParseEvent(t *testing.T) {
	e, ok := ParseEvent("mark_missing")
	assert.True(t, ok)
	assert.True(t, e.IsAdministrative())

	e, ok = ParseEvent("borrow")
	assert.True(t, ok)
	assert.False(t, e.IsAdministrative())

	_, ok = ParseEvent("teleport")
	assert.False(t, ok)
}
