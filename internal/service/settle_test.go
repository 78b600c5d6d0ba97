package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arenaforge/arenaforge/internal/domain/payment"
	"github.com/arenaforge/arenaforge/internal/port/wallet"
)

func TestSettleConfirmed(t *testing.T) {
	st := newMockStore()
	w := &mockWallet{transferID: "tx-42"}
	s := NewSettler(w, st, time.Second)

	rec := s.Settle(context.Background(), "comp-1", "solver-a", "0xdead", decimal.NewFromInt(25))

	if rec.Status != payment.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", rec.Status)
	}
	if rec.SettlementID != "tx-42" {
		t.Errorf("settlement id = %q", rec.SettlementID)
	}
	if rec.ConfirmedAt == nil {
		t.Error("ConfirmedAt not set")
	}
	if rec.Network != "testnet" {
		t.Errorf("network = %q", rec.Network)
	}
	if len(st.ledger) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(st.ledger))
	}
}

func TestSettleNoPayoutAddress(t *testing.T) {
	st := newMockStore()
	w := &mockWallet{transferID: "tx-1"}
	s := NewSettler(w, st, time.Second)

	rec := s.Settle(context.Background(), "comp-1", "solver-a", "", decimal.NewFromInt(25))

	if rec.Status != payment.StatusFailed || rec.Reason != payment.ReasonNoPayoutAddress {
		t.Fatalf("record = %+v, want failed/no_payout_address", rec)
	}
	if w.transfers != 0 {
		t.Error("transfer attempted with no payout address")
	}
	if len(st.ledger) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(st.ledger))
	}
}

func TestSettleInsufficientFunds(t *testing.T) {
	st := newMockStore()
	w := &mockWallet{
		caps:    wallet.Capabilities{Balance: true},
		balance: decimal.NewFromInt(10),
	}
	s := NewSettler(w, st, time.Second)

	rec := s.Settle(context.Background(), "comp-1", "solver-a", "0xdead", decimal.NewFromInt(25))

	if rec.Reason != payment.ReasonInsufficientFunds {
		t.Fatalf("reason = %s, want insufficient_funds", rec.Reason)
	}
	if w.transfers != 0 {
		t.Error("transfer attempted despite short balance")
	}
}

func TestSettleBalanceCheckErrorProceeds(t *testing.T) {
	st := newMockStore()
	w := &mockWallet{
		caps:       wallet.Capabilities{Balance: true},
		balanceErr: errBoom,
		transferID: "tx-1",
	}
	s := NewSettler(w, st, time.Second)

	rec := s.Settle(context.Background(), "comp-1", "solver-a", "0xdead", decimal.NewFromInt(25))

	// An unavailable balance check must not block the payout.
	if rec.Status != payment.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", rec.Status)
	}
	if w.transfers != 1 {
		t.Errorf("transfers = %d, want 1", w.transfers)
	}
}

func TestSettleTransferFailed(t *testing.T) {
	st := newMockStore()
	w := &mockWallet{transferErr: errBoom}
	s := NewSettler(w, st, time.Second)

	rec := s.Settle(context.Background(), "comp-1", "solver-a", "0xdead", decimal.NewFromInt(25))

	if rec.Reason != payment.ReasonTransferFailed {
		t.Fatalf("reason = %s, want transfer_failed", rec.Reason)
	}
	if rec.Status != payment.StatusFailed {
		t.Errorf("status = %s, want failed", rec.Status)
	}
}

func TestSettleConfirmationTimeout(t *testing.T) {
	st := newMockStore()
	w := &mockWallet{transferID: "tx-1", confirmErr: context.DeadlineExceeded}
	s := NewSettler(w, st, time.Second)

	rec := s.Settle(context.Background(), "comp-1", "solver-a", "0xdead", decimal.NewFromInt(25))

	if rec.Reason != payment.ReasonConfirmationTimeout {
		t.Fatalf("reason = %s, want confirmation_timeout", rec.Reason)
	}
	// The transfer went out; the record must keep its id for reconciliation.
	if rec.SettlementID != "tx-1" {
		t.Errorf("settlement id = %q, want tx-1", rec.SettlementID)
	}
}

func TestSettleLedgerWriteFailureIsSwallowed(t *testing.T) {
	st := newMockStore()
	st.errLedger = errBoom
	w := &mockWallet{transferID: "tx-1"}
	s := NewSettler(w, st, time.Second)

	rec := s.Settle(context.Background(), "comp-1", "solver-a", "0xdead", decimal.NewFromInt(25))

	if rec.Status != payment.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed despite ledger failure", rec.Status)
	}
}

func TestSettleRecordsPayerAddress(t *testing.T) {
	st := newMockStore()
	w := &mockWallet{
		caps:       wallet.Capabilities{PayerAddress: true},
		transferID: "tx-7",
	}
	s := NewSettler(w, st, time.Second)

	rec := s.Settle(context.Background(), "comp-1", "solver-a", "0xdead", decimal.NewFromInt(25))

	if rec.Status != payment.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", rec.Status)
	}
	if rec.PayerAddress != "0xpayer" {
		t.Errorf("payer address = %q, want 0xpayer", rec.PayerAddress)
	}
	if len(st.ledger) != 1 || st.ledger[0].PayerAddress != "0xpayer" {
		t.Fatalf("ledger = %+v, want one entry carrying the payer address", st.ledger)
	}
}

func TestSettlePayerAddressLookupFailureIgnored(t *testing.T) {
	st := newMockStore()
	w := &mockWallet{
		caps:       wallet.Capabilities{PayerAddress: true},
		transferID: "tx-8",
		payerErr:   errBoom,
	}
	s := NewSettler(w, st, time.Second)

	rec := s.Settle(context.Background(), "comp-1", "solver-a", "0xdead", decimal.NewFromInt(25))

	if rec.Status != payment.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", rec.Status)
	}
	if rec.PayerAddress != "" {
		t.Errorf("payer address = %q, want empty", rec.PayerAddress)
	}
}
