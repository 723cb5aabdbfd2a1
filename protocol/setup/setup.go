// Package setup implements the five-message handshake that establishes a
// swap's keys and presigned Bitcoin transaction graph before either party
// commits funds (spec.md §4.3). RunMaker and RunTaker drive the two sides
// of the same exchange over a single net.Stream and return a Handshake
// bundling everything protocol/maker and protocol/taker need to run the
// swap proper.
package setup

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/eigenswap/xmr-btc-swap/common"
	"github.com/eigenswap/xmr-btc-swap/common/types"
	"github.com/eigenswap/xmr-btc-swap/crypto/adaptor"
	"github.com/eigenswap/xmr-btc-swap/crypto/dleq"
	mcrypto "github.com/eigenswap/xmr-btc-swap/crypto/monero"
	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
	"github.com/eigenswap/xmr-btc-swap/net"
	"github.com/eigenswap/xmr-btc-swap/net/message"
	protocolpkg "github.com/eigenswap/xmr-btc-swap/protocol"
	"github.com/eigenswap/xmr-btc-swap/txbuilder"
)

// ProtocolVersion is this build's setup-protocol version, negotiated via
// semver compatibility rather than exact match.
const ProtocolVersion = "1.0.0"

// ErrVersionMismatch is returned when the counterparty's protocol version
// is not compatible with ours.
var ErrVersionMismatch = errors.New("setup: incompatible protocol version")

// Offer bundles the out-of-band agreed terms a setup run starts from:
// amounts the quote/price-discovery layer (out of scope, spec.md §1) is
// assumed to have already matched between the two parties. The amnesty
// carve-out amount is not part of the offer: it is Maker's unilateral
// declaration in message 1 (spec.md §4.3 message 1).
type Offer struct {
	BtcAmount btcutil.Amount
	XmrAmount uint64 // piconero
}

// PresignedSignatures holds every signature/encrypted-signature exchanged
// during messages 3 and 4, keyed by which transaction it authorizes.
type PresignedSignatures struct {
	MakerCancelSig *adaptor.Signature
	TakerCancelSig *adaptor.Signature

	MakerFullRefundEncSig    *adaptor.EncryptedSignature
	MakerPartialRefundEncSig *adaptor.EncryptedSignature

	TakerPunishSig        *adaptor.Signature
	TakerEarlyRefundSig    *adaptor.Signature
	TakerRefundAmnestySig  *adaptor.Signature // nil when AmnestyAmount == 0
	TakerRefundBurnSig     *adaptor.Signature
	TakerFinalAmnestySig   *adaptor.Signature
}

// Handshake is everything a completed setup run hands off to the Maker or
// Taker swap driver (spec.md §4.3's "post-setup guarantees").
type Handshake struct {
	SwapID  types.SwapID
	Network types.Network
	Fees    message.FeeSchedule

	IdentityKey  *secp256k1.PrivateKey // own multisig identity key, a or b
	KeysAndProof *protocolpkg.KeysAndProof // own Monero secret share + DLEQ proof

	CounterpartyIdentityPub *secp256k1.PublicKey
	CounterpartyVerified    *protocolpkg.VerifiedKeys
	CounterpartyViewKey     *mcrypto.PrivateViewKey

	JointViewKey       *mcrypto.PrivateViewKey
	JointMoneroAddress *mcrypto.Address

	RedeemAddress      btcutil.Address
	PunishAddress      btcutil.Address
	TakerRefundAddress btcutil.Address

	LockParams *txbuilder.LockParams
	LockPSBT   []byte // only populated for the Taker; the raw funding PSBT

	Sigs PresignedSignatures
}

func networkToMoneroNetwork(n types.Network) mcrypto.Network {
	switch n {
	case types.NetworkStagenet:
		return mcrypto.NetworkStagenet
	case types.NetworkDevelopment:
		return mcrypto.NetworkDevelopment
	default:
		return mcrypto.NetworkMainnet
	}
}

func sendCtx(ctx context.Context, stream net.Stream, msg message.Message) error {
	done := make(chan error, 1)
	go func() { done <- stream.Send(msg) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func recvTyped[T message.Message](ctx context.Context, stream net.Stream) (T, error) {
	var zero T
	type result struct {
		msg message.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := stream.Receive()
		ch <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return zero, r.err
		}
		typed, ok := r.msg.(T)
		if !ok {
			return zero, fmt.Errorf("%w: unexpected message type %s", common.ErrProtocol, message.TypeToString(r.msg.Type()))
		}
		return typed, nil
	}
}

// checkVersion accepts any peer version compatible with ProtocolVersion
// under caret-range semantics (same major version, spec.md §4.3's "either
// party may abort on an incompatible version").
func checkVersion(v string) error {
	peer, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVersionMismatch, err)
	}
	constraint, err := semver.NewConstraint("^" + ProtocolVersion)
	if err != nil {
		return err
	}
	if !constraint.Check(peer) {
		return fmt.Errorf("%w: peer runs %s, we run %s", ErrVersionMismatch, v, ProtocolVersion)
	}
	return nil
}

// lockOutpoint locates tx_lock's output paying the 2-of-2 lock script for
// amount within the unsigned transaction carried by a PSBT, and returns its
// outpoint. Segwit v0 fixes a transaction's hash from its non-witness data
// alone, so this is stable even though tx_lock is not yet (fully) signed
// (spec.md §4.3's "neither can broadcast tx_lock unilaterally").
func lockOutpoint(psbtBytes []byte, lockWitnessScript []byte, amount btcutil.Amount) (chainhash.Hash, uint32, error) {
	pkt, err := psbt.NewFromRawBytes(bytes.NewReader(psbtBytes), false)
	if err != nil {
		return chainhash.Hash{}, 0, fmt.Errorf("parsing lock psbt: %w", err)
	}
	wantScript, err := txbuilder.P2WSHScript(lockWitnessScript)
	if err != nil {
		return chainhash.Hash{}, 0, err
	}

	for i, out := range pkt.UnsignedTx.TxOut {
		if out.Value == int64(amount) && bytes.Equal(out.PkScript, wantScript) {
			return pkt.UnsignedTx.TxHash(), uint32(i), nil
		}
	}
	return chainhash.Hash{}, 0, fmt.Errorf("%w: lock psbt does not pay the negotiated lock script/amount", common.ErrProtocol)
}

// buildLockParams assembles the LockParams shared by both parties once the
// lock outpoint is known, ready for BuildCancelTx and everything downstream.
func buildLockParams(
	cfg *common.Config,
	makerIdentityPub, takerIdentityPub *secp256k1.PublicKey,
	redeemAddr, takerRefundAddr btcutil.Address,
	lockAmount, amnestyAmount btcutil.Amount,
	fees message.FeeSchedule,
	lockTxID chainhash.Hash, lockVout uint32,
) *txbuilder.LockParams {
	return &txbuilder.LockParams{
		Network:                 cfg.BitcoinChainParams,
		A:                       makerIdentityPub,
		B:                       takerIdentityPub,
		MakerPunishKey:          makerIdentityPub,
		MakerRedeemAddr:         redeemAddr,
		TakerRefundAddr:         takerRefundAddr,
		LockAmount:              lockAmount,
		AmnestyAmount:           amnestyAmount,
		FeeRate:                 btcutil.Amount(fees.FeeRatePerVByte),
		CancelTimelock:          fees.CancelTimelock,
		PunishTimelock:          fees.PunishTimelock,
		RemainingRefundTimelock: fees.RemainingRefundTimelock,
		LockTxID:                lockTxID,
		LockVout:                lockVout,
		LockValue:               lockAmount,
	}
}

// checkPunishAddressMatchesKey verifies that addr is the p2wpkh address for
// pub, since tx_punish's output script is built directly from Maker's
// identity key (txbuilder.BuildPunishTx) rather than from the declared
// address — the address is carried on the wire for display only, but must
// still describe the same destination the script actually pays.
func checkPunishAddressMatchesKey(addr btcutil.Address, pub *secp256k1.PublicKey) error {
	wpkh, ok := addr.(*btcutil.AddressWitnessPubKeyHash)
	if !ok {
		return fmt.Errorf("%w: punish address is not a p2wpkh address", common.ErrProtocol)
	}
	want := btcutil.Hash160(pub.CompressedBytes())
	got := wpkh.WitnessProgram()
	if !bytes.Equal(want, got) {
		return fmt.Errorf("%w: punish address does not match maker's identity key", common.ErrProtocol)
	}
	return nil
}

func unmarshalDLEQProof(b []byte) (*dleq.Proof, error) {
	proof := new(dleq.Proof)
	if err := proof.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("parsing dleq proof: %w", err)
	}
	return proof, nil
}

// assembleSigs collects both sides' message-3/4 signatures into one
// PresignedSignatures bundle, parsing each wire field back into its typed
// form for the Handshake returned to the swap driver.
func assembleSigs(makerMsg *message.MakerPresigs, takerMsg *message.TakerPresigs) (*PresignedSignatures, error) {
	out := &PresignedSignatures{}
	var err error

	if out.MakerCancelSig, err = adaptor.UnmarshalSignature(makerMsg.CancelSignature); err != nil {
		return nil, err
	}
	if out.MakerFullRefundEncSig, err = adaptor.UnmarshalEncryptedSignature(makerMsg.FullRefundEncSig); err != nil {
		return nil, err
	}
	if out.MakerPartialRefundEncSig, err = adaptor.UnmarshalEncryptedSignature(makerMsg.PartialRefundEncSig); err != nil {
		return nil, err
	}

	if out.TakerCancelSig, err = adaptor.UnmarshalSignature(takerMsg.CancelSignature); err != nil {
		return nil, err
	}
	if out.TakerPunishSig, err = adaptor.UnmarshalSignature(takerMsg.PunishSignature); err != nil {
		return nil, err
	}
	if out.TakerEarlyRefundSig, err = adaptor.UnmarshalSignature(takerMsg.EarlyRefundSignature); err != nil {
		return nil, err
	}
	if len(takerMsg.RefundAmnestySignature) > 0 {
		if out.TakerRefundAmnestySig, err = adaptor.UnmarshalSignature(takerMsg.RefundAmnestySignature); err != nil {
			return nil, err
		}
	}
	if len(takerMsg.RefundBurnSignature) > 0 {
		if out.TakerRefundBurnSig, err = adaptor.UnmarshalSignature(takerMsg.RefundBurnSignature); err != nil {
			return nil, err
		}
	}
	if len(takerMsg.FinalAmnestySignature) > 0 {
		if out.TakerFinalAmnestySig, err = adaptor.UnmarshalSignature(takerMsg.FinalAmnestySignature); err != nil {
			return nil, err
		}
	}

	return out, nil
}
