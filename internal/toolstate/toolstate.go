// Package toolstate holds the tool status transition table.
package toolstate

import (
	"labtool-ledger/internal/domain"
)

type Event string

const (
	EventBorrow              Event = "borrow"
	EventReturn              Event = "return"
	EventReturnForRepair     Event = "return_for_repair"
	EventScheduleMaintenance Event = "schedule_maintenance"
	EventCompleteMaintenance Event = "complete_maintenance"
	EventMarkMissing         Event = "mark_missing"
	EventMarkFound           Event = "mark_found"
	EventDeactivate          Event = "deactivate"
	EventReactivate          Event = "reactivate"
)

type edge struct {
	from  domain.ToolStatus
	event Event
}

var transitions = map[edge]domain.ToolStatus{
	{domain.ToolStatusAvailable, EventBorrow}:                domain.ToolStatusBorrowed,
	{domain.ToolStatusBorrowed, EventReturn}:                 domain.ToolStatusAvailable,
	{domain.ToolStatusBorrowed, EventReturnForRepair}:        domain.ToolStatusMaintenance,
	{domain.ToolStatusAvailable, EventScheduleMaintenance}:   domain.ToolStatusMaintenance,
	{domain.ToolStatusMaintenance, EventCompleteMaintenance}: domain.ToolStatusAvailable,
	{domain.ToolStatusAvailable, EventMarkMissing}:           domain.ToolStatusMissing,
	{domain.ToolStatusMissing, EventMarkFound}:               domain.ToolStatusAvailable,
	{domain.ToolStatusInactive, EventReactivate}:             domain.ToolStatusAvailable,
}

func init() {
	for _, s := range []domain.ToolStatus{
		domain.ToolStatusAvailable,
		domain.ToolStatusBorrowed,
		domain.ToolStatusMaintenance,
		domain.ToolStatusMissing,
	} {
		transitions[edge{s, EventDeactivate}] = domain.ToolStatusInactive
	}
}

var administrative = map[Event]bool{
	EventMarkMissing: true,
	EventMarkFound:   true,
	EventDeactivate:  true,
	EventReactivate:  true,
}

// ParseEvent accepts only events present in the transition table.
func ParseEvent(s string) (Event, bool) {
	e := Event(s)
	switch e {
	case EventBorrow, EventReturn, EventReturnForRepair, EventScheduleMaintenance,
		EventCompleteMaintenance, EventMarkMissing, EventMarkFound, EventDeactivate, EventReactivate:
		return e, true
	}
	return "", false
}

// IsAdministrative reports whether the event is a staff-only status change
// that is not part of a borrow or maintenance workflow.
func (e Event) IsAdministrative() bool {
	return administrative[e]
}

// Next returns the status reached by applying event to from.
func Next(from domain.ToolStatus, event Event) (domain.ToolStatus, error) {
	to, ok := transitions[edge{from, event}]
	if !ok {
		return "", domain.NewError(domain.ErrKindInvalidTransition,
			"cannot apply %s to a tool that is %s", event, from)
	}
	return to, nil
}

// ReturnEvent derives the return event from the reported condition.
func ReturnEvent(condition domain.ReturnCondition) Event {
	if condition.NeedsMaintenance() {
		return EventReturnForRepair
	}
	return EventReturn
}
