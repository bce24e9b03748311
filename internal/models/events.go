package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementRecordedEvent is published after every committed settlement.
type SettlementRecordedEvent struct {
	PaymentID       string          `json:"payment_id"`
	TransactionID   string          `json:"transaction_id"`
	EscrowAccountID string          `json:"escrow_account_id"`
	PaymentType     PaymentType     `json:"payment_type"`
	Status          PaymentStatus   `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Balance         decimal.Decimal `json:"balance"`
	Timestamp       time.Time       `json:"timestamp"`
}

// StateChangedEvent is published whenever a transaction or escrow account
// moves between lifecycle states.
type StateChangedEvent struct {
	EntityKind    string    `json:"entity_kind"` // transaction, escrow
	EntityID      string    `json:"entity_id"`
	TransactionID string    `json:"transaction_id"`
	State         string    `json:"state"`
	PreviousState string    `json:"previous_state"`
	Timestamp     time.Time `json:"timestamp"`
}
