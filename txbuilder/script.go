package txbuilder

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/txscript"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

// maxCSVBlocks is the largest relative-locktime block count CSV's 16-bit
// field can express (BIP68/112).
const maxCSVBlocks = 0xffff

// MultisigWitnessScript returns the bare 2-of-2 multisig witness script
// `OP_2 <a> <b> OP_2 OP_CHECKMULTISIG`, the redeem path tx_lock and every
// plain-multisig descendant output uses.
func MultisigWitnessScript(a, b *secp256k1.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_2)
	builder.AddData(a.CompressedBytes())
	builder.AddData(b.CompressedBytes())
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	return builder.Script()
}

// LockWitnessScript is tx_lock's output script: always spendable by a valid
// 2-of-2 signature set, regardless of which descendant (tx_redeem,
// tx_early_refund, or tx_cancel) is being built — the choice between them is
// enforced by which presigned transaction gets broadcast and by each
// transaction's own relative-locktime nSequence field, not by the script.
func LockWitnessScript(p *LockParams) ([]byte, error) {
	return MultisigWitnessScript(p.A, p.B)
}

// CancelOutputScript is tx_cancel's output script. It branches:
//
//	OP_IF
//	  <punishTimelock> OP_CHECKSEQUENCEVERIFY OP_DROP <makerPunish> OP_CHECKSIG
//	OP_ELSE
//	  OP_2 <a> <b> OP_2 OP_CHECKMULTISIG
//	OP_ENDIF
//
// composing with tx_cancel's own CancelTimelock-gated spend from tx_lock to
// give tx_punish a combined cancel_timelock+punish_timelock delay from
// tx_lock confirmation (spec.md §3.4 invariant 4), while leaving the refund
// branches spendable the moment tx_cancel confirms.
func CancelOutputScript(a, b, makerPunish *secp256k1.PublicKey, punishTimelock uint32) ([]byte, error) {
	if punishTimelock == 0 || punishTimelock > maxCSVBlocks {
		return nil, fmt.Errorf("txbuilder: punish timelock %d out of CSV range", punishTimelock)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_IF)
	builder.AddInt64(int64(punishTimelock))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(makerPunish.CompressedBytes())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddOp(txscript.OP_2)
	builder.AddData(a.CompressedBytes())
	builder.AddData(b.CompressedBytes())
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	builder.AddOp(txscript.OP_ENDIF)
	return builder.Script()
}

// AmnestyOutputScript is tx_partial_refund's amnesty-joint output script,
// spent either immediately by 2-of-2 (tx_refund_burn) or by Taker (b) alone
// once remainingRefundTimelock has elapsed (tx_refund_amnesty):
//
//	OP_IF
//	  <remainingRefundTimelock> OP_CHECKSEQUENCEVERIFY OP_DROP <b> OP_CHECKSIG
//	OP_ELSE
//	  OP_2 <a> <b> OP_2 OP_CHECKMULTISIG
//	OP_ENDIF
func AmnestyOutputScript(a, b *secp256k1.PublicKey, remainingRefundTimelock uint32) ([]byte, error) {
	if remainingRefundTimelock == 0 || remainingRefundTimelock > maxCSVBlocks {
		return nil, fmt.Errorf("txbuilder: remaining refund timelock %d out of CSV range", remainingRefundTimelock)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_IF)
	builder.AddInt64(int64(remainingRefundTimelock))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(b.CompressedBytes())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddOp(txscript.OP_2)
	builder.AddData(a.CompressedBytes())
	builder.AddData(b.CompressedBytes())
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	builder.AddOp(txscript.OP_ENDIF)
	return builder.Script()
}

// P2WSHScript wraps witnessScript as a native segwit v0 output script:
// OP_0 <sha256(witnessScript)>.
func P2WSHScript(witnessScript []byte) ([]byte, error) {
	h := sha256.Sum256(witnessScript)
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(h[:]).
		Script()
}

// ifBranchWitnessFlag selects the OP_IF (true) or OP_ELSE (false)
// branch of a two-branch CSV script by pushing the corresponding bool onto
// the witness stack ahead of the script's own data pushes.
func ifBranchWitnessFlag(takeIf bool) []byte {
	if takeIf {
		return []byte{1}
	}
	return nil // empty push = OP_FALSE on the stack, selects OP_ELSE
}
