// Package wallet defines the payment collaborator port.
package wallet

import (
	"context"

	"github.com/shopspring/decimal"
)

// Capabilities declares which optional operations a wallet supports.
type Capabilities struct {
	Balance      bool `json:"balance"`
	PayerAddress bool `json:"payer_address"`
}

// Wallet submits value transfers and reports their confirmation. The
// settlement sequence (balance pre-check, transfer, bounded confirmation
// wait) is owned by the settlement service, not the wallet.
type Wallet interface {
	Capabilities() Capabilities

	// Network returns the identifier of the settlement network.
	Network() string

	// Transfer submits a transfer and returns a provisional transaction id.
	Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error)

	// WaitConfirmed blocks until the transaction confirms, reverts, or ctx
	// expires. A nil return means confirmed.
	WaitConfirmed(ctx context.Context, txID string) error

	// Balance reports the payer's funding balance. Only valid when
	// Capabilities().Balance is true.
	Balance(ctx context.Context) (decimal.Decimal, error)

	// PayerAddress reports the funding address. Only valid when
	// Capabilities().PayerAddress is true.
	PayerAddress(ctx context.Context) (string, error)
}
