package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/eigenswap/xmr-btc-swap/crypto/adaptor"
)

// EncodeSignature serializes an adaptor.Signature's raw (R,S) pair into the
// low-s DER-plus-sighash-type form a P2WSH witness stack expects. Every
// transaction this package builds uses SIGHASH_ALL and exactly this
// encoding for both witness positions, whether the signature came from
// adaptor.Sign directly or from adaptor.Decrypt/Recover's plain output.
func EncodeSignature(sig *adaptor.Signature) []byte {
	var rScalar, sScalar btcec.ModNScalar
	rBuf, sBuf := make([]byte, 32), make([]byte, 32)
	sig.R.FillBytes(rBuf)
	sig.S.FillBytes(sBuf)
	rScalar.SetByteSlice(rBuf)
	sScalar.SetByteSlice(sBuf)

	ecSig := btcecdsa.NewSignature(&rScalar, &sScalar)
	return append(ecSig.Serialize(), byte(txscript.SigHashAll))
}

// FinalizeMultisigWitness completes a tx_lock-style 2-of-2 CHECKMULTISIG
// spend (tx_redeem, tx_early_refund, tx_cancel's input, and tx_final_amnesty
// spending tx_refund_burn's multisig output) given both parties'
// encoded signatures, in the same A-then-B order witnessScript lists them.
func FinalizeMultisigWitness(sigA, sigB, witnessScript []byte) wire.TxWitness {
	return finalMultisigWitness(sigA, sigB, witnessScript)
}

// FinalizeBranchWitness completes a two-branch CSV script spend's
// single-signer OP_IF branch (tx_punish, tx_refund_amnesty's taker-alone
// branch), selecting the OP_IF branch when takeIfBranch is true.
func FinalizeBranchWitness(sig, witnessScript []byte, takeIfBranch bool) wire.TxWitness {
	return finalBranchWitness(sig, witnessScript, takeIfBranch)
}

// FinalizeRefundBranchWitness completes a two-branch CSV script's 2-of-2
// CHECKMULTISIG OP_ELSE branch: tx_cancel's refund branch (spent by
// tx_full_refund/tx_partial_refund) and the partial-refund amnesty
// output's multisig branch (spent by tx_refund_burn).
func FinalizeRefundBranchWitness(sigA, sigB, witnessScript []byte) wire.TxWitness {
	return wire.TxWitness{nil, sigA, sigB, ifBranchWitnessFlag(false), witnessScript}
}

// ParseSignature extracts an adaptor.Signature from a witness stack item
// in this package's DER-plus-sighash-type encoding (the inverse of
// EncodeSignature), for reading a counterparty's revealed signature back
// off a broadcast transaction.
func ParseSignature(witnessItem []byte) (*adaptor.Signature, error) {
	if len(witnessItem) < 9 {
		return nil, fmt.Errorf("txbuilder: signature witness item too short")
	}
	r, s, err := parseDERSignature(witnessItem[:len(witnessItem)-1])
	if err != nil {
		return nil, err
	}
	return &adaptor.Signature{R: r, S: s}, nil
}

// parseDERSignature decodes a minimal SEQUENCE{INTEGER r, INTEGER s} as
// produced by EncodeSignature. It does not accept the general DER grammar
// (long-form lengths, indefinite encodings) since nothing this package
// emits needs them.
func parseDERSignature(der []byte) (*big.Int, *big.Int, error) {
	if len(der) < 8 || der[0] != 0x30 || der[1]&0x80 != 0 {
		return nil, nil, fmt.Errorf("txbuilder: malformed DER signature")
	}
	idx := 2
	if idx >= len(der) || der[idx] != 0x02 {
		return nil, nil, fmt.Errorf("txbuilder: malformed DER signature: missing r marker")
	}
	idx++
	rLen := int(der[idx])
	idx++
	if idx+rLen > len(der) {
		return nil, nil, fmt.Errorf("txbuilder: malformed DER signature: r overruns buffer")
	}
	r := new(big.Int).SetBytes(der[idx : idx+rLen])
	idx += rLen
	if idx >= len(der) || der[idx] != 0x02 {
		return nil, nil, fmt.Errorf("txbuilder: malformed DER signature: missing s marker")
	}
	idx++
	sLen := int(der[idx])
	idx++
	if idx+sLen > len(der) {
		return nil, nil, fmt.Errorf("txbuilder: malformed DER signature: s overruns buffer")
	}
	s := new(big.Int).SetBytes(der[idx : idx+sLen])
	return r, s, nil
}
