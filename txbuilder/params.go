// Package txbuilder constructs the Bitcoin transaction graph a swap's setup
// presigns: tx_lock and every transaction that can spend from it or from its
// descendants, built deterministically from negotiated parameters with no
// I/O (spec.md §4.2). Scripts use native segwit v0 P2WSH 2-of-2 multisig
// with CHECKSEQUENCEVERIFY timelock branches, not Taproot.
package txbuilder

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

// LockParams bundles everything needed to construct tx_lock's output and
// every transaction spending from it, directly or transitively.
type LockParams struct {
	Network *chaincfg.Params

	// A is Maker's Bitcoin public key, B is Taker's.
	A, B *secp256k1.PublicKey

	// MakerPunishKey receives tx_punish's output; MakerRedeemAddr and
	// TakerRefundAddr receive tx_redeem's and the refund branches' outputs
	// respectively.
	MakerPunishKey  *secp256k1.PublicKey
	MakerRedeemAddr btcutil.Address
	TakerRefundAddr btcutil.Address

	LockAmount    btcutil.Amount
	AmnestyAmount btcutil.Amount
	FeeRate       btcutil.Amount // satoshis per vbyte

	// CancelTimelock gates tx_lock -> tx_cancel (BIP68 relative blocks).
	CancelTimelock uint32
	// PunishTimelock gates tx_cancel's output -> tx_punish, additional to
	// CancelTimelock (spec.md §3.4 invariant 4).
	PunishTimelock uint32
	// RemainingRefundTimelock gates tx_partial_refund's amnesty output ->
	// tx_refund_amnesty (Taker alone), additional to CancelTimelock.
	RemainingRefundTimelock uint32

	LockTxID  [32]byte
	LockVout  uint32
	LockValue btcutil.Amount
}

// feeFor estimates a flat per-transaction fee from vsize and FeeRate. Each
// presigned transaction here has exactly one P2WSH input and one or two
// outputs, so a fixed per-shape vsize estimate is precise enough; the
// protocol negotiates FeeRate conservatively to absorb the estimate's error.
func (p *LockParams) feeFor(vsize int64) btcutil.Amount {
	return btcutil.Amount(vsize) * p.FeeRate
}

const (
	vsizeOneInOneOut = 140 // one P2WSH-2-of-2 input, one output
	vsizeOneInTwoOut = 175 // one P2WSH-2-of-2 input, two outputs
)
