package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arenaforge/arenaforge/internal/domain/payment"
	"github.com/arenaforge/arenaforge/internal/port/store"
	"github.com/arenaforge/arenaforge/internal/port/wallet"
)

// Settler transfers the payout to a competition winner and records exactly
// one ledger entry per attempt, success or failure.
type Settler struct {
	wallet         wallet.Wallet
	store          store.Store
	confirmTimeout time.Duration
}

// NewSettler creates a settler over the given wallet and ledger store.
func NewSettler(w wallet.Wallet, s store.Store, confirmTimeout time.Duration) *Settler {
	return &Settler{wallet: w, store: s, confirmTimeout: confirmTimeout}
}

// Settle runs the settlement sequence: best-effort balance pre-check,
// fail-fast on insufficient funds, transfer, bounded confirmation wait.
// It never returns an error; the outcome is encoded in the returned ledger
// record, which has already been persisted (best-effort).
func (s *Settler) Settle(ctx context.Context, competitionID, agentID, payoutAddress string, amount decimal.Decimal) *payment.Record {
	rec := &payment.Record{
		ID:            uuid.NewString(),
		CompetitionID: competitionID,
		AgentID:       agentID,
		PayoutAddress: payoutAddress,
		Amount:        amount,
		Status:        payment.StatusPending,
		Network:       s.wallet.Network(),
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.settle(ctx, rec); err != nil {
		rec.Status = payment.StatusFailed
		rec.Error = err.Error()
		var perr *payment.Error
		if errors.As(err, &perr) {
			rec.Reason = perr.Reason
		}
		slog.Warn("settlement failed",
			"competition_id", competitionID,
			"agent_id", agentID,
			"reason", rec.Reason,
			"error", err,
		)
	} else {
		now := time.Now().UTC()
		rec.Status = payment.StatusConfirmed
		rec.ConfirmedAt = &now
		slog.Info("settlement confirmed",
			"competition_id", competitionID,
			"agent_id", agentID,
			"settlement_id", rec.SettlementID,
			"amount", amount,
		)
	}

	// Ledger writes are best-effort; a store hiccup must not fail the
	// competition after funds moved.
	if err := s.store.SaveLedgerEntry(ctx, rec); err != nil {
		slog.Error("save ledger entry", "competition_id", competitionID, "error", err)
	}
	return rec
}

func (s *Settler) settle(ctx context.Context, rec *payment.Record) error {
	if rec.PayoutAddress == "" {
		return &payment.Error{Reason: payment.ReasonNoPayoutAddress}
	}

	// Record the paying side when the wallet can name it; the ledger then
	// identifies both ends of the transfer.
	if s.wallet.Capabilities().PayerAddress {
		addr, err := s.wallet.PayerAddress(ctx)
		if err != nil {
			slog.Warn("payer address unavailable", "error", err)
		} else {
			rec.PayerAddress = addr
		}
	}

	// Balance pre-check before touching the chain; skipped when the wallet
	// cannot report it.
	if s.wallet.Capabilities().Balance {
		balance, err := s.wallet.Balance(ctx)
		if err != nil {
			slog.Warn("balance check unavailable, proceeding", "error", err)
		} else if balance.LessThan(rec.Amount) {
			return &payment.Error{
				Reason: payment.ReasonInsufficientFunds,
				Err:    fmt.Errorf("balance %s below payout %s", balance, rec.Amount),
			}
		}
	}

	txID, err := s.wallet.Transfer(ctx, rec.PayoutAddress, rec.Amount)
	if err != nil {
		return &payment.Error{Reason: payment.ReasonTransferFailed, Err: err}
	}
	rec.SettlementID = txID

	confirmCtx := ctx
	if s.confirmTimeout > 0 {
		var cancel context.CancelFunc
		confirmCtx, cancel = context.WithTimeout(ctx, s.confirmTimeout)
		defer cancel()
	}
	if err := s.wallet.WaitConfirmed(confirmCtx, txID); err != nil {
		return &payment.Error{Reason: payment.ReasonConfirmationTimeout, Err: err}
	}
	return nil
}
