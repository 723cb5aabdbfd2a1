package backend

import (
	"context"

	"github.com/eigenswap/xmr-btc-swap/coins"
	"github.com/eigenswap/xmr-btc-swap/common/types"
	"github.com/eigenswap/xmr-btc-swap/crypto/monero"
)

// TransferResult is the outcome of a multi-destination Monero transfer.
type TransferResult struct {
	TxID     string
	TxKeyPer map[string]string // destination address -> per-address tx key
}

// Destination is one output of a multi-destination transfer.
type Destination struct {
	Address *monero.Address
	Amount  *coins.PiconeroAmount
}

// ViewSpendWallet is a wallet scoped to a single swap's joint address: it
// can see the swap's funds (via the view key) and, once the spend key is
// known (post refund/redeem), sweep them.
type ViewSpendWallet interface {
	Balance(ctx context.Context) (*coins.PiconeroAmount, error)
	Sweep(ctx context.Context, toAddress *monero.Address) (string, error)
}

// MoneroWallet is the capability the core needs from a monero-wallet-rpc
// instance (spec.md §6.1): the main wallet sends the initial lock
// transfer, and swap_wallet_spendable spins up a restricted wallet scoped
// to one swap's joint address once this party knows (or later learns) the
// matching spend key.
type MoneroWallet interface {
	MainAddress(ctx context.Context) (*monero.Address, error)
	TransferMultiDestination(ctx context.Context, dests []Destination) (*TransferResult, error)
	WaitUntilConfirmed(ctx context.Context, txID string, target uint64, onConfirmation func(confirmations uint64)) error
	DirectRPCBlockHeight(ctx context.Context) (uint64, error)
	SwapWalletSpendable(ctx context.Context, id types.SwapID, s *monero.PrivateSpendKey, v *monero.PrivateViewKey, lockTxID string) (ViewSpendWallet, error)
	Sweep(ctx context.Context, toAddress *monero.Address) error
	SetRestoreHeight(ctx context.Context, height uint64) error
}
