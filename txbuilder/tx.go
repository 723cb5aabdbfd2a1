package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

// Outpoint identifies the UTXO a presigned transaction spends.
type Outpoint struct {
	Hash  chainhash.Hash
	Index uint32
	Value btcutil.Amount
}

func p2wpkhScript(pub *secp256k1.PublicKey) ([]byte, error) {
	hash := btcutil.Hash160(pub.CompressedBytes())
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(hash).
		Script()
}

func newSkeleton(in Outpoint, sequence uint32, outs []*wire.TxOut) *wire.MsgTx {
	// Version 2: BIP68 sequence locks and OP_CHECKSEQUENCEVERIFY only apply
	// to transactions of version 2 or higher.
	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(wire.NewOutPoint(&in.Hash, in.Index), nil, nil)
	txIn.Sequence = sequence
	tx.AddTxIn(txIn)
	for _, o := range outs {
		tx.AddTxOut(o)
	}
	return tx
}

// SigHash computes the BIP143 segwit v0 signature hash for spending input 0
// of tx, whose previous output carried witnessScript and amount.
func SigHash(tx *wire.MsgTx, witnessScript []byte, amount btcutil.Amount) ([32]byte, error) {
	prevOutScript, err := P2WSHScript(witnessScript)
	if err != nil {
		return [32]byte{}, err
	}
	prevOutFetcher := txscript.NewCannedPrevOutputFetcher(prevOutScript, int64(amount))
	sigHashes := txscript.NewTxSigHashes(tx, prevOutFetcher)
	h, err := txscript.CalcWitnessSigHash(witnessScript, sigHashes, txscript.SigHashAll, tx, 0, int64(amount))
	if err != nil {
		return [32]byte{}, fmt.Errorf("computing sighash: %w", err)
	}
	var out [32]byte
	copy(out[:], h)
	return out, nil
}

// finalMultisigWitness assembles a 2-of-2 CHECKMULTISIG witness stack,
// including the mandatory dummy element for CHECKMULTISIG's off-by-one
// stack-pop quirk. sigA and sigB must be in the same order the witness
// script lists A and B.
func finalMultisigWitness(sigA, sigB, witnessScript []byte) wire.TxWitness {
	return wire.TxWitness{nil, sigA, sigB, witnessScript}
}

// finalBranchWitness assembles the witness stack for a two-branch CSV
// script: a single signature plus the OP_IF/OP_ELSE selector.
func finalBranchWitness(sig, witnessScript []byte, takeIfBranch bool) wire.TxWitness {
	return wire.TxWitness{sig, ifBranchWitnessFlag(takeIfBranch), witnessScript}
}

func feeAdjusted(value btcutil.Amount, fee btcutil.Amount) (btcutil.Amount, error) {
	out := value - fee
	if out <= 0 {
		return 0, fmt.Errorf("txbuilder: output value %d does not cover fee %d", value, fee)
	}
	return out, nil
}

// BuildRedeemTx spends tx_lock's output directly to the Maker's redeem
// address, completed by Maker's ordinary signature and Taker's adaptor
// signature over B (see crypto/adaptor, protocol/maker).
func BuildRedeemTx(p *LockParams) (*wire.MsgTx, []byte, error) {
	value, err := feeAdjusted(p.LockValue, p.feeFor(vsizeOneInOneOut))
	if err != nil {
		return nil, nil, err
	}
	outScript, err := txscript.PayToAddrScript(p.MakerRedeemAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("maker redeem address: %w", err)
	}
	witnessScript, err := LockWitnessScript(p)
	if err != nil {
		return nil, nil, err
	}
	tx := newSkeleton(
		Outpoint{Hash: p.LockTxID, Index: p.LockVout, Value: p.LockValue},
		wire.MaxTxInSequenceNum-2,
		[]*wire.TxOut{wire.NewTxOut(int64(value), outScript)},
	)
	return tx, witnessScript, nil
}

// BuildEarlyRefundTx spends tx_lock's output directly to Taker's refund
// address via mutual consent, with no relative timelock.
func BuildEarlyRefundTx(p *LockParams) (*wire.MsgTx, []byte, error) {
	value, err := feeAdjusted(p.LockValue, p.feeFor(vsizeOneInOneOut))
	if err != nil {
		return nil, nil, err
	}
	outScript, err := txscript.PayToAddrScript(p.TakerRefundAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("taker refund address: %w", err)
	}
	witnessScript, err := LockWitnessScript(p)
	if err != nil {
		return nil, nil, err
	}
	tx := newSkeleton(
		Outpoint{Hash: p.LockTxID, Index: p.LockVout, Value: p.LockValue},
		wire.MaxTxInSequenceNum-2,
		[]*wire.TxOut{wire.NewTxOut(int64(value), outScript)},
	)
	return tx, witnessScript, nil
}

// BuildCancelTx spends tx_lock's output, after CancelTimelock confirmations,
// into the branching cancel output (refund-or-punish) script.
func BuildCancelTx(p *LockParams) (*wire.MsgTx, []byte, *wire.TxOut, error) {
	if p.CancelTimelock == 0 || p.CancelTimelock > maxCSVBlocks {
		return nil, nil, nil, fmt.Errorf("txbuilder: cancel timelock %d out of CSV range", p.CancelTimelock)
	}
	value, err := feeAdjusted(p.LockValue, p.feeFor(vsizeOneInOneOut))
	if err != nil {
		return nil, nil, nil, err
	}
	cancelWitnessScript, err := CancelOutputScript(p.A, p.B, p.MakerPunishKey, p.PunishTimelock)
	if err != nil {
		return nil, nil, nil, err
	}
	outScript, err := P2WSHScript(cancelWitnessScript)
	if err != nil {
		return nil, nil, nil, err
	}
	lockWitnessScript, err := LockWitnessScript(p)
	if err != nil {
		return nil, nil, nil, err
	}
	out := wire.NewTxOut(int64(value), outScript)
	tx := newSkeleton(
		Outpoint{Hash: p.LockTxID, Index: p.LockVout, Value: p.LockValue},
		p.CancelTimelock,
		[]*wire.TxOut{out},
	)
	return tx, lockWitnessScript, out, nil
}

// BuildFullRefundTx spends tx_cancel's output via the refund (OP_ELSE,
// immediate 2-of-2) branch to Taker's refund address.
func BuildFullRefundTx(p *LockParams, cancelOut Outpoint) (*wire.MsgTx, []byte, error) {
	value, err := feeAdjusted(cancelOut.Value, p.feeFor(vsizeOneInOneOut))
	if err != nil {
		return nil, nil, err
	}
	outScript, err := txscript.PayToAddrScript(p.TakerRefundAddr)
	if err != nil {
		return nil, nil, err
	}
	cancelWitnessScript, err := CancelOutputScript(p.A, p.B, p.MakerPunishKey, p.PunishTimelock)
	if err != nil {
		return nil, nil, err
	}
	tx := newSkeleton(cancelOut, wire.MaxTxInSequenceNum-2, []*wire.TxOut{wire.NewTxOut(int64(value), outScript)})
	return tx, cancelWitnessScript, nil
}

// BuildPartialRefundTx spends tx_cancel's output via the refund branch into
// two outputs: an immediate Taker refund and an amnesty-joint output that
// feeds tx_refund_amnesty/tx_refund_burn. Invariant: amnesty + refund + fee
// == cancelOut.Value (spec.md §3.4 invariant 5).
func BuildPartialRefundTx(p *LockParams, cancelOut Outpoint) (*wire.MsgTx, []byte, error) {
	fee := p.feeFor(vsizeOneInTwoOut)
	if p.AmnestyAmount <= 0 || p.AmnestyAmount >= cancelOut.Value {
		return nil, nil, fmt.Errorf("txbuilder: amnesty amount %d invalid for cancel output %d", p.AmnestyAmount, cancelOut.Value)
	}
	refundValue, err := feeAdjusted(cancelOut.Value-p.AmnestyAmount, fee)
	if err != nil {
		return nil, nil, err
	}

	refundScript, err := txscript.PayToAddrScript(p.TakerRefundAddr)
	if err != nil {
		return nil, nil, err
	}
	amnestyWitnessScript, err := AmnestyOutputScript(p.A, p.B, p.RemainingRefundTimelock)
	if err != nil {
		return nil, nil, err
	}
	amnestyScript, err := P2WSHScript(amnestyWitnessScript)
	if err != nil {
		return nil, nil, err
	}
	cancelWitnessScript, err := CancelOutputScript(p.A, p.B, p.MakerPunishKey, p.PunishTimelock)
	if err != nil {
		return nil, nil, err
	}

	tx := newSkeleton(cancelOut, wire.MaxTxInSequenceNum-2, []*wire.TxOut{
		wire.NewTxOut(int64(refundValue), refundScript),
		wire.NewTxOut(int64(p.AmnestyAmount), amnestyScript),
	})
	return tx, cancelWitnessScript, nil
}

// BuildRefundAmnestyTx spends the amnesty-joint output via the Taker-alone
// branch, once RemainingRefundTimelock has elapsed since tx_partial_refund.
func BuildRefundAmnestyTx(p *LockParams, amnestyOut Outpoint) (*wire.MsgTx, []byte, error) {
	value, err := feeAdjusted(amnestyOut.Value, p.feeFor(vsizeOneInOneOut))
	if err != nil {
		return nil, nil, err
	}
	outScript, err := txscript.PayToAddrScript(p.TakerRefundAddr)
	if err != nil {
		return nil, nil, err
	}
	amnestyWitnessScript, err := AmnestyOutputScript(p.A, p.B, p.RemainingRefundTimelock)
	if err != nil {
		return nil, nil, err
	}
	tx := newSkeleton(amnestyOut, p.RemainingRefundTimelock, []*wire.TxOut{wire.NewTxOut(int64(value), outScript)})
	return tx, amnestyWitnessScript, nil
}

// BuildRefundBurnTx spends the amnesty-joint output via the immediate
// 2-of-2 branch into a fresh plain-multisig output with no address,
// awaiting Maker's optional mercy signature on tx_final_amnesty.
func BuildRefundBurnTx(p *LockParams, amnestyOut Outpoint) (*wire.MsgTx, []byte, *wire.TxOut, error) {
	value, err := feeAdjusted(amnestyOut.Value, p.feeFor(vsizeOneInOneOut))
	if err != nil {
		return nil, nil, nil, err
	}
	burnWitnessScript, err := MultisigWitnessScript(p.A, p.B)
	if err != nil {
		return nil, nil, nil, err
	}
	outScript, err := P2WSHScript(burnWitnessScript)
	if err != nil {
		return nil, nil, nil, err
	}
	amnestyWitnessScript, err := AmnestyOutputScript(p.A, p.B, p.RemainingRefundTimelock)
	if err != nil {
		return nil, nil, nil, err
	}
	out := wire.NewTxOut(int64(value), outScript)
	tx := newSkeleton(amnestyOut, wire.MaxTxInSequenceNum-2, []*wire.TxOut{out})
	return tx, amnestyWitnessScript, out, nil
}

// BuildFinalAmnestyTx spends tx_refund_burn's output to Taker's refund
// address; Taker always signs it, Maker signs it only if granting mercy.
func BuildFinalAmnestyTx(p *LockParams, burnOut Outpoint) (*wire.MsgTx, []byte, error) {
	value, err := feeAdjusted(burnOut.Value, p.feeFor(vsizeOneInOneOut))
	if err != nil {
		return nil, nil, err
	}
	outScript, err := txscript.PayToAddrScript(p.TakerRefundAddr)
	if err != nil {
		return nil, nil, err
	}
	burnWitnessScript, err := MultisigWitnessScript(p.A, p.B)
	if err != nil {
		return nil, nil, err
	}
	tx := newSkeleton(burnOut, wire.MaxTxInSequenceNum-2, []*wire.TxOut{wire.NewTxOut(int64(value), outScript)})
	return tx, burnWitnessScript, nil
}

// BuildPunishTx spends tx_cancel's output via the punish branch, once
// PunishTimelock has elapsed since tx_cancel confirmed.
func BuildPunishTx(p *LockParams, cancelOut Outpoint) (*wire.MsgTx, []byte, error) {
	value, err := feeAdjusted(cancelOut.Value, p.feeFor(vsizeOneInOneOut))
	if err != nil {
		return nil, nil, err
	}
	outScript, err := p2wpkhScript(p.MakerPunishKey)
	if err != nil {
		return nil, nil, err
	}
	cancelWitnessScript, err := CancelOutputScript(p.A, p.B, p.MakerPunishKey, p.PunishTimelock)
	if err != nil {
		return nil, nil, err
	}
	tx := newSkeleton(cancelOut, p.PunishTimelock, []*wire.TxOut{wire.NewTxOut(int64(value), outScript)})
	return tx, cancelWitnessScript, nil
}
