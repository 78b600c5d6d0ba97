// Package payment defines the payout ledger entry and typed settlement failures.
package payment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the state of a settlement attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// FailureReason names the stage at which a settlement attempt failed, so
// downstream consumers can branch on cause instead of matching error text.
type FailureReason string

const (
	ReasonNoPayoutAddress     FailureReason = "no_payout_address"
	ReasonInsufficientFunds   FailureReason = "insufficient_funds"
	ReasonTransferFailed      FailureReason = "transfer_failed"
	ReasonConfirmationTimeout FailureReason = "confirmation_timeout"
)

// Error is a settlement failure carrying the reason and the underlying cause.
type Error struct {
	Reason FailureReason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Record is an append-only ledger entry for one settlement attempt.
// Exactly one record is written per payment phase, success or failure.
type Record struct {
	ID            string          `json:"id"`
	CompetitionID string          `json:"competition_id"`
	AgentID       string          `json:"agent_id"`
	PayoutAddress string          `json:"payout_address"`
	PayerAddress  string          `json:"payer_address,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	SettlementID  string          `json:"settlement_id,omitempty"`
	Status        Status          `json:"status"`
	Network       string          `json:"network"`
	Reason        FailureReason   `json:"reason,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
}
