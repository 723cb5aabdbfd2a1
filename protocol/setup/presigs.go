package setup

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/eigenswap/xmr-btc-swap/common"
	"github.com/eigenswap/xmr-btc-swap/crypto/adaptor"
	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
	"github.com/eigenswap/xmr-btc-swap/net/message"
	"github.com/eigenswap/xmr-btc-swap/txbuilder"
)

// presignedOutpoints are the deterministic outpoints every message-3/4
// presignature is computed against, derived once from LockParams. Native
// segwit v0 fixes a transaction's hash from its non-witness data, so these
// are stable before any signature exists (spec.md §4.2).
type presignedOutpoints struct {
	cancel  txbuilder.Outpoint
	amnesty txbuilder.Outpoint // zero value unless AmnestyAmount > 0
	burn    txbuilder.Outpoint
}

func derivePresignedOutpoints(p *txbuilder.LockParams) (*presignedOutpoints, error) {
	cancelTx, _, cancelTxOut, err := txbuilder.BuildCancelTx(p)
	if err != nil {
		return nil, fmt.Errorf("building cancel tx: %w", err)
	}
	out := &presignedOutpoints{
		cancel: txbuilder.Outpoint{Hash: cancelTx.TxHash(), Index: 0, Value: btcutil.Amount(cancelTxOut.Value)},
	}

	if p.AmnestyAmount <= 0 {
		return out, nil
	}

	partialRefundTx, _, err := txbuilder.BuildPartialRefundTx(p, out.cancel)
	if err != nil {
		return nil, fmt.Errorf("building partial refund tx: %w", err)
	}
	out.amnesty = txbuilder.Outpoint{Hash: partialRefundTx.TxHash(), Index: 1, Value: p.AmnestyAmount}

	refundBurnTx, _, burnTxOut, err := txbuilder.BuildRefundBurnTx(p, out.amnesty)
	if err != nil {
		return nil, fmt.Errorf("building refund burn tx: %w", err)
	}
	out.burn = txbuilder.Outpoint{Hash: refundBurnTx.TxHash(), Index: 0, Value: btcutil.Amount(burnTxOut.Value)}

	return out, nil
}

// Outpoints is the exported form of presignedOutpoints: the deterministic
// pre-lock outpoints for tx_cancel and, when an amnesty carve-out was
// negotiated, the partial-refund and refund-burn outputs. protocol/maker
// and protocol/taker call DeriveOutpoints to rebuild the same transactions
// at broadcast time that were presigned during setup.
type Outpoints struct {
	Cancel  txbuilder.Outpoint
	Amnesty txbuilder.Outpoint // zero value unless an amnesty was negotiated
	Burn    txbuilder.Outpoint
}

// DeriveOutpoints rebuilds the outpoints tx_cancel, tx_partial_refund, and
// tx_refund_burn will have once broadcast, purely from public parameters.
func DeriveOutpoints(p *txbuilder.LockParams) (*Outpoints, error) {
	outs, err := derivePresignedOutpoints(p)
	if err != nil {
		return nil, err
	}
	return &Outpoints{Cancel: outs.cancel, Amnesty: outs.amnesty, Burn: outs.burn}, nil
}

// signMakerPresigs produces message 3: Maker's direct signature on
// tx_cancel, plus Maker's refund-path signatures adaptor-encrypted under
// takerEncKey (Taker's S_b^btc), which leaks s_b to Maker once Taker
// publishes either refund transaction (spec.md §4.3 message 3, §4.4).
func signMakerPresigs(p *txbuilder.LockParams, makerIdentity *secp256k1.PrivateKey, takerEncKey *secp256k1.PublicKey) (*message.MakerPresigs, *presignedOutpoints, error) {
	outs, err := derivePresignedOutpoints(p)
	if err != nil {
		return nil, nil, err
	}

	cancelTx, lockWitnessScript, _, err := txbuilder.BuildCancelTx(p)
	if err != nil {
		return nil, nil, err
	}
	cancelSigHash, err := txbuilder.SigHash(cancelTx, lockWitnessScript, p.LockValue)
	if err != nil {
		return nil, nil, err
	}
	cancelSig, err := adaptor.Sign(makerIdentity, cancelSigHash)
	if err != nil {
		return nil, nil, err
	}
	cancelSigBytes, err := cancelSig.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}

	fullRefundTx, cancelWitnessScript, err := txbuilder.BuildFullRefundTx(p, outs.cancel)
	if err != nil {
		return nil, nil, err
	}
	fullRefundSigHash, err := txbuilder.SigHash(fullRefundTx, cancelWitnessScript, outs.cancel.Value)
	if err != nil {
		return nil, nil, err
	}
	fullRefundEncSig, err := adaptor.EncSign(makerIdentity, takerEncKey, fullRefundSigHash)
	if err != nil {
		return nil, nil, err
	}
	fullRefundEncSigBytes, err := fullRefundEncSig.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}

	partialRefundTx, cancelWitnessScript2, err := txbuilder.BuildPartialRefundTx(p, outs.cancel)
	if err != nil {
		return nil, nil, err
	}
	partialRefundSigHash, err := txbuilder.SigHash(partialRefundTx, cancelWitnessScript2, outs.cancel.Value)
	if err != nil {
		return nil, nil, err
	}
	partialRefundEncSig, err := adaptor.EncSign(makerIdentity, takerEncKey, partialRefundSigHash)
	if err != nil {
		return nil, nil, err
	}
	partialRefundEncSigBytes, err := partialRefundEncSig.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}

	return &message.MakerPresigs{
		CancelSignature:     cancelSigBytes,
		FullRefundEncSig:    fullRefundEncSigBytes,
		PartialRefundEncSig: partialRefundEncSigBytes,
	}, outs, nil
}

// verifyMakerPresigs checks every signature in msg against the transaction
// graph derived from p, returning the outpoints so the caller doesn't
// recompute them (spec.md §4.3 invariants: adaptor/direct signatures
// verify under the correct key and message).
func verifyMakerPresigs(p *txbuilder.LockParams, makerIdentityPub, ownEncKey *secp256k1.PublicKey, msg *message.MakerPresigs) (*presignedOutpoints, error) {
	outs, err := derivePresignedOutpoints(p)
	if err != nil {
		return nil, err
	}

	cancelTx, lockWitnessScript, _, err := txbuilder.BuildCancelTx(p)
	if err != nil {
		return nil, err
	}
	cancelSigHash, err := txbuilder.SigHash(cancelTx, lockWitnessScript, p.LockValue)
	if err != nil {
		return nil, err
	}
	cancelSig, err := adaptor.UnmarshalSignature(msg.CancelSignature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	if err := adaptor.Verify(makerIdentityPub, cancelSigHash, cancelSig); err != nil {
		return nil, fmt.Errorf("%w: maker cancel signature: %v", common.ErrProtocol, err)
	}

	fullRefundTx, cancelWitnessScript, err := txbuilder.BuildFullRefundTx(p, outs.cancel)
	if err != nil {
		return nil, err
	}
	fullRefundSigHash, err := txbuilder.SigHash(fullRefundTx, cancelWitnessScript, outs.cancel.Value)
	if err != nil {
		return nil, err
	}
	fullRefundEncSig, err := adaptor.UnmarshalEncryptedSignature(msg.FullRefundEncSig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	if err := adaptor.EncVerify(makerIdentityPub, ownEncKey, fullRefundSigHash, fullRefundEncSig); err != nil {
		return nil, fmt.Errorf("%w: maker full-refund encrypted signature: %v", common.ErrProtocol, err)
	}

	partialRefundTx, cancelWitnessScript2, err := txbuilder.BuildPartialRefundTx(p, outs.cancel)
	if err != nil {
		return nil, err
	}
	partialRefundSigHash, err := txbuilder.SigHash(partialRefundTx, cancelWitnessScript2, outs.cancel.Value)
	if err != nil {
		return nil, err
	}
	partialRefundEncSig, err := adaptor.UnmarshalEncryptedSignature(msg.PartialRefundEncSig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	if err := adaptor.EncVerify(makerIdentityPub, ownEncKey, partialRefundSigHash, partialRefundEncSig); err != nil {
		return nil, fmt.Errorf("%w: maker partial-refund encrypted signature: %v", common.ErrProtocol, err)
	}

	return outs, nil
}

// signTakerPresigs produces message 4: Taker's direct signature on
// tx_cancel, plus every transaction only Taker needs to pre-authorize
// (spec.md §4.3 message 4, §4.4/§4.5's punish, early-refund, and
// amnesty-path branches).
func signTakerPresigs(p *txbuilder.LockParams, takerIdentity *secp256k1.PrivateKey, outs *presignedOutpoints) (*message.TakerPresigs, error) {
	cancelTx, lockWitnessScript, _, err := txbuilder.BuildCancelTx(p)
	if err != nil {
		return nil, err
	}
	cancelSigHash, err := txbuilder.SigHash(cancelTx, lockWitnessScript, p.LockValue)
	if err != nil {
		return nil, err
	}
	cancelSig, err := adaptor.Sign(takerIdentity, cancelSigHash)
	if err != nil {
		return nil, err
	}
	cancelSigBytes, err := cancelSig.MarshalBinary()
	if err != nil {
		return nil, err
	}

	punishTx, cancelWitnessScript, err := txbuilder.BuildPunishTx(p, outs.cancel)
	if err != nil {
		return nil, err
	}
	punishSigHash, err := txbuilder.SigHash(punishTx, cancelWitnessScript, outs.cancel.Value)
	if err != nil {
		return nil, err
	}
	punishSig, err := adaptor.Sign(takerIdentity, punishSigHash)
	if err != nil {
		return nil, err
	}
	punishSigBytes, err := punishSig.MarshalBinary()
	if err != nil {
		return nil, err
	}

	earlyRefundTx, lockWitnessScript2, err := txbuilder.BuildEarlyRefundTx(p)
	if err != nil {
		return nil, err
	}
	earlyRefundSigHash, err := txbuilder.SigHash(earlyRefundTx, lockWitnessScript2, p.LockValue)
	if err != nil {
		return nil, err
	}
	earlyRefundSig, err := adaptor.Sign(takerIdentity, earlyRefundSigHash)
	if err != nil {
		return nil, err
	}
	earlyRefundSigBytes, err := earlyRefundSig.MarshalBinary()
	if err != nil {
		return nil, err
	}

	msg := &message.TakerPresigs{
		CancelSignature:      cancelSigBytes,
		PunishSignature:      punishSigBytes,
		EarlyRefundSignature: earlyRefundSigBytes,
	}

	if p.AmnestyAmount <= 0 {
		// No amnesty carve-out negotiated: tx_refund_amnesty/tx_refund_burn/
		// tx_final_amnesty never apply to this swap.
		return msg, nil
	}

	refundAmnestyTx, amnestyWitnessScript, err := txbuilder.BuildRefundAmnestyTx(p, outs.amnesty)
	if err != nil {
		return nil, err
	}
	refundAmnestySigHash, err := txbuilder.SigHash(refundAmnestyTx, amnestyWitnessScript, outs.amnesty.Value)
	if err != nil {
		return nil, err
	}
	refundAmnestySig, err := adaptor.Sign(takerIdentity, refundAmnestySigHash)
	if err != nil {
		return nil, err
	}
	refundAmnestySigBytes, err := refundAmnestySig.MarshalBinary()
	if err != nil {
		return nil, err
	}
	msg.RefundAmnestySignature = refundAmnestySigBytes

	refundBurnTx, amnestyWitnessScript2, err := txbuilder.BuildRefundBurnTx(p, outs.amnesty)
	if err != nil {
		return nil, err
	}
	refundBurnSigHash, err := txbuilder.SigHash(refundBurnTx, amnestyWitnessScript2, outs.amnesty.Value)
	if err != nil {
		return nil, err
	}
	refundBurnSig, err := adaptor.Sign(takerIdentity, refundBurnSigHash)
	if err != nil {
		return nil, err
	}
	refundBurnSigBytes, err := refundBurnSig.MarshalBinary()
	if err != nil {
		return nil, err
	}
	msg.RefundBurnSignature = refundBurnSigBytes

	finalAmnestyTx, burnWitnessScript, err := txbuilder.BuildFinalAmnestyTx(p, outs.burn)
	if err != nil {
		return nil, err
	}
	finalAmnestySigHash, err := txbuilder.SigHash(finalAmnestyTx, burnWitnessScript, outs.burn.Value)
	if err != nil {
		return nil, err
	}
	finalAmnestySig, err := adaptor.Sign(takerIdentity, finalAmnestySigHash)
	if err != nil {
		return nil, err
	}
	finalAmnestySigBytes, err := finalAmnestySig.MarshalBinary()
	if err != nil {
		return nil, err
	}
	msg.FinalAmnestySignature = finalAmnestySigBytes

	return msg, nil
}

// verifyTakerPresigs checks every signature Taker sent in message 4 against
// the transaction graph derived from p.
func verifyTakerPresigs(p *txbuilder.LockParams, takerIdentityPub *secp256k1.PublicKey, msg *message.TakerPresigs, outs *presignedOutpoints) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}

	cancelTx, lockWitnessScript, _, err := txbuilder.BuildCancelTx(p)
	if err != nil {
		return err
	}
	cancelSigHash, err := txbuilder.SigHash(cancelTx, lockWitnessScript, p.LockValue)
	if err != nil {
		return err
	}
	cancelSig, err := adaptor.UnmarshalSignature(msg.CancelSignature)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	if err := adaptor.Verify(takerIdentityPub, cancelSigHash, cancelSig); err != nil {
		return fmt.Errorf("%w: taker cancel signature: %v", common.ErrProtocol, err)
	}

	punishTx, cancelWitnessScript, err := txbuilder.BuildPunishTx(p, outs.cancel)
	if err != nil {
		return err
	}
	punishSigHash, err := txbuilder.SigHash(punishTx, cancelWitnessScript, outs.cancel.Value)
	if err != nil {
		return err
	}
	punishSig, err := adaptor.UnmarshalSignature(msg.PunishSignature)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	if err := adaptor.Verify(takerIdentityPub, punishSigHash, punishSig); err != nil {
		return fmt.Errorf("%w: taker punish signature: %v", common.ErrProtocol, err)
	}

	earlyRefundTx, lockWitnessScript2, err := txbuilder.BuildEarlyRefundTx(p)
	if err != nil {
		return err
	}
	earlyRefundSigHash, err := txbuilder.SigHash(earlyRefundTx, lockWitnessScript2, p.LockValue)
	if err != nil {
		return err
	}
	earlyRefundSig, err := adaptor.UnmarshalSignature(msg.EarlyRefundSignature)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	if err := adaptor.Verify(takerIdentityPub, earlyRefundSigHash, earlyRefundSig); err != nil {
		return fmt.Errorf("%w: taker early-refund signature: %v", common.ErrProtocol, err)
	}

	if p.AmnestyAmount <= 0 {
		return nil
	}

	refundAmnestyTx, amnestyWitnessScript, err := txbuilder.BuildRefundAmnestyTx(p, outs.amnesty)
	if err != nil {
		return err
	}
	refundAmnestySigHash, err := txbuilder.SigHash(refundAmnestyTx, amnestyWitnessScript, outs.amnesty.Value)
	if err != nil {
		return err
	}
	if len(msg.RefundAmnestySignature) == 0 {
		return fmt.Errorf("%w: missing taker refund-amnesty signature", common.ErrProtocol)
	}
	refundAmnestySig, err := adaptor.UnmarshalSignature(msg.RefundAmnestySignature)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	if err := adaptor.Verify(takerIdentityPub, refundAmnestySigHash, refundAmnestySig); err != nil {
		return fmt.Errorf("%w: taker refund-amnesty signature: %v", common.ErrProtocol, err)
	}

	refundBurnTx, amnestyWitnessScript2, err := txbuilder.BuildRefundBurnTx(p, outs.amnesty)
	if err != nil {
		return err
	}
	refundBurnSigHash, err := txbuilder.SigHash(refundBurnTx, amnestyWitnessScript2, outs.amnesty.Value)
	if err != nil {
		return err
	}
	refundBurnSig, err := adaptor.UnmarshalSignature(msg.RefundBurnSignature)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	if err := adaptor.Verify(takerIdentityPub, refundBurnSigHash, refundBurnSig); err != nil {
		return fmt.Errorf("%w: taker refund-burn signature: %v", common.ErrProtocol, err)
	}

	finalAmnestyTx, burnWitnessScript, err := txbuilder.BuildFinalAmnestyTx(p, outs.burn)
	if err != nil {
		return err
	}
	finalAmnestySigHash, err := txbuilder.SigHash(finalAmnestyTx, burnWitnessScript, outs.burn.Value)
	if err != nil {
		return err
	}
	finalAmnestySig, err := adaptor.UnmarshalSignature(msg.FinalAmnestySignature)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	if err := adaptor.Verify(takerIdentityPub, finalAmnestySigHash, finalAmnestySig); err != nil {
		return fmt.Errorf("%w: taker final-amnesty signature: %v", common.ErrProtocol, err)
	}

	return nil
}
