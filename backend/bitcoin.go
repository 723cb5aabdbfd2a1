// Package backend defines the collaborator contracts the core swap state
// machines (protocol/maker, protocol/taker) are built against, rather than
// against any concrete wallet (spec.md §6.1): a BitcoinWallet and a
// MoneroWallet. The persistence contract lives in package db and the peer
// stream in package net. Keeping these as interfaces lets the protocol
// packages be tested against package-local fakes without a live
// bitcoind/monero-wallet-rpc.
package backend

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ScriptStatusKind enumerates a watched script's confirmation state.
type ScriptStatusKind int

const (
	ScriptUnseen ScriptStatusKind = iota
	ScriptRetrying
	ScriptInMempool
	ScriptConfirmed
)

// ScriptStatus reports a script's on-chain status; Confirmations is only
// meaningful when Kind is ScriptConfirmed.
type ScriptStatus struct {
	Kind          ScriptStatusKind
	Confirmations uint32
}

// Subscription delivers ScriptStatus updates for one watched script until
// the caller cancels ctx or calls Close.
type Subscription interface {
	Updates() <-chan ScriptStatus
	Close()
}

// BitcoinWallet is the capability the core needs from a Bitcoin node/wallet
// (spec.md §6.1): building and broadcasting transactions, estimating fees,
// and tracking script confirmation status.
type BitcoinWallet interface {
	NewAddress(ctx context.Context) (btcutil.Address, error)
	SignAndFinalize(ctx context.Context, p *psbt.Packet) (*wire.MsgTx, error)

	// Broadcast submits tx labeled for logging/idempotency tracking and
	// returns its txid plus a subscription for its spending script.
	Broadcast(ctx context.Context, tx *wire.MsgTx, label string) (*chainhash.Hash, Subscription, error)
	// EnsureBroadcasted is Broadcast's idempotent form: safe to call again
	// after a crash without risking a double-spend attempt.
	EnsureBroadcasted(ctx context.Context, tx *wire.MsgTx, label string) (*chainhash.Hash, Subscription, error)

	SubscribeTo(ctx context.Context, script []byte) (Subscription, error)
	StatusOfScript(ctx context.Context, script []byte) (ScriptStatus, error)
	GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, bool, error)

	EstimateFee(ctx context.Context, weight int64, amount btcutil.Amount) (btcutil.Amount, error)
	Sync(ctx context.Context) error
	Balance(ctx context.Context) (btcutil.Amount, error)
	TransactionFee(ctx context.Context, txid chainhash.Hash) (btcutil.Amount, error)
	Network() *chaincfg.Params
}
