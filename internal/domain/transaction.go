package domain

import "time"

type ReturnCondition string

const (
	ReturnConditionGood    ReturnCondition = "good"
	ReturnConditionFair    ReturnCondition = "fair"
	ReturnConditionPoor    ReturnCondition = "poor"
	ReturnConditionDamaged ReturnCondition = "damaged"
)

// ParseReturnCondition accepts only the four known conditions.
func ParseReturnCondition(s string) (ReturnCondition, bool) {
	switch c := ReturnCondition(s); c {
	case ReturnConditionGood, ReturnConditionFair, ReturnConditionPoor, ReturnConditionDamaged:
		return c, true
	}
	return "", false
}

// NeedsMaintenance is true for conditions that send the tool to maintenance on return.
func (c ReturnCondition) NeedsMaintenance() bool {
	return c == ReturnConditionPoor || c == ReturnConditionDamaged
}

type Transaction struct {
	ID                 int32            `json:"id"`
	ToolID             int32            `json:"tool_id"`
	UserID             int32            `json:"user_id"`
	Purpose            string           `json:"purpose"`
	TransactionDate    time.Time        `json:"transaction_date"`
	ExpectedReturnDate time.Time        `json:"expected_return_date"`
	ReturnDate         *time.Time       `json:"return_date,omitempty"`
	ReturnCondition    *ReturnCondition `json:"return_condition,omitempty"`
	ExtensionReason    *string          `json:"extension_reason,omitempty"`
	Notes              string           `json:"notes"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// IsOpen reports whether the tool is still out on this transaction.
func (t *Transaction) IsOpen() bool {
	return t.ReturnDate == nil
}

// OpenTransaction is an open transaction joined with the tool it holds.
type OpenTransaction struct {
	Transaction
	ToolName string `json:"tool_name"`
	ToolCode string `json:"tool_code"`
}

type LogAction string

const (
	LogActionBorrow      LogAction = "borrow"
	LogActionExtension   LogAction = "extension"
	LogActionReturn      LogAction = "return"
	LogActionReminder    LogAction = "reminder"
	LogActionMaintenance LogAction = "maintenance"
)

// SystemUserID marks rows written by the system rather than a person.
const SystemUserID int32 = 0

type TransactionLog struct {
	ID            int32     `json:"id"`
	TransactionID int32     `json:"transaction_id"`
	Action        LogAction `json:"action"`
	Details       string    `json:"details"`
	UserID        int32     `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
}
