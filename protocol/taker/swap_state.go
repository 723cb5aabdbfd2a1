// Package taker drives the Taker side of a swap once the setup handshake
// has produced a Handshake (spec.md §4.5): publishing tx_lock, watching for
// Maker's XMR lock transfer, handing Maker an encrypted redeem signature,
// and reacting to whichever branch of the presigned transaction graph
// actually plays out.
package taker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	logging "github.com/ipfs/go-log"

	"github.com/eigenswap/xmr-btc-swap/backend"
	"github.com/eigenswap/xmr-btc-swap/common"
	"github.com/eigenswap/xmr-btc-swap/common/types"
	"github.com/eigenswap/xmr-btc-swap/crypto/adaptor"
	"github.com/eigenswap/xmr-btc-swap/crypto/edscalar"
	mcrypto "github.com/eigenswap/xmr-btc-swap/crypto/monero"
	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
	"github.com/eigenswap/xmr-btc-swap/db"
	"github.com/eigenswap/xmr-btc-swap/net"
	"github.com/eigenswap/xmr-btc-swap/net/message"
	"github.com/eigenswap/xmr-btc-swap/protocol/channels"
	"github.com/eigenswap/xmr-btc-swap/protocol/setup"
	"github.com/eigenswap/xmr-btc-swap/protocol/swap"
	"github.com/eigenswap/xmr-btc-swap/txbuilder"
)

var log = logging.Logger("taker")

// Deps bundles the collaborators a Taker driver needs beyond the Handshake
// itself.
type Deps struct {
	Cfg     *common.Config
	Bitcoin backend.BitcoinWallet
	Monero  backend.MoneroWallet
	DB      db.Database
	Manager swap.Manager

	EncSig            *channels.EncryptedSignatureChannel
	CooperativeRedeem *channels.CooperativeRedeemChannel

	// Dial opens a fresh outbound stream to the counterparty; used for
	// encrypted-signature delivery and cooperative-redeem requests.
	Dial func(ctx context.Context) (net.Stream, error)

	// IncomingTransferProof delivers this swap's transfer-proof message
	// once the host layer receives it on any inbound stream from Maker.
	IncomingTransferProof <-chan *message.TransferProofMsg

	// PreferPartialRefund, when an amnesty output exists, makes Taker
	// concede the amnesty carve-out on cancel instead of claiming the full
	// refund outright.
	PreferPartialRefund bool
	// ClaimAmnesty, after a partial refund confirms, makes Taker publish
	// tx_refund_amnesty to race Maker's possible tx_refund_burn for the
	// carve-out instead of settling for the partial refund alone.
	ClaimAmnesty bool
}

// persistedState is the JSON form of a Taker swap's resumable fields,
// written to the database after every status transition.
type persistedState struct {
	Status   types.TakerStatus `json:"status"`
	LockTxID string            `json:"lockTxId,omitempty"`
	XMRTxID  string            `json:"xmrTxId,omitempty"`

	// RedeemEncSig is the exact encrypted signature sendEncSig computed
	// and handed to Maker. recoverMakerSpendShareFromRedeem must recover
	// against this same value (adaptor.EncSign is randomized per call, so
	// a freshly recomputed encSig would have unrelated R/R'/S' values and
	// recovery would yield garbage).
	RedeemEncSig []byte `json:"redeemEncSig,omitempty"`
}

// SwapState drives a single Taker-side swap from Started to a terminal
// TakerStatus.
type SwapState struct {
	deps      Deps
	hs        *setup.Handshake
	xmrAmount uint64 // piconero, the amount Offer promised for this swap

	status   types.TakerStatus
	lockTxID string
	xmrTxID  string

	// redeemEncSig is the encrypted signature sendEncSig produced and
	// sent to Maker; recoverMakerSpendShareFromRedeem must reuse this
	// exact value rather than recomputing it.
	redeemEncSig *adaptor.EncryptedSignature

	makerSpendShare *mcrypto.PrivateSpendKey
}

// New constructs a fresh Taker driver for a just-completed handshake.
func New(deps Deps, hs *setup.Handshake, xmrAmount uint64) *SwapState {
	return &SwapState{deps: deps, hs: hs, xmrAmount: xmrAmount, status: types.TakerStarted}
}

// Resume reconstructs a driver for a swap that was interrupted mid-flight,
// picking back up at the last persisted status.
func Resume(deps Deps, hs *setup.Handshake, xmrAmount uint64, saved persistedState) *SwapState {
	s := New(deps, hs, xmrAmount)
	s.status = saved.Status
	s.lockTxID = saved.LockTxID
	s.xmrTxID = saved.XMRTxID
	if len(saved.RedeemEncSig) > 0 {
		if encSig, err := adaptor.UnmarshalEncryptedSignature(saved.RedeemEncSig); err == nil {
			s.redeemEncSig = encSig
		} else {
			log.Warnf("swap %s: discarding unparseable persisted redeem enc-sig: %v", hs.SwapID, err)
		}
	}
	return s
}

// Status reports the driver's current TakerStatus.
func (s *SwapState) Status() types.TakerStatus { return s.status }

func (s *SwapState) persist() error {
	saved := persistedState{
		Status:   s.status,
		LockTxID: s.lockTxID,
		XMRTxID:  s.xmrTxID,
	}
	if s.redeemEncSig != nil {
		encoded, err := s.redeemEncSig.MarshalBinary()
		if err != nil {
			return err
		}
		saved.RedeemEncSig = encoded
	}
	return s.deps.DB.InsertLatestState(s.hs.SwapID, saved)
}

func (s *SwapState) setStatus(status types.TakerStatus) error {
	s.status = status
	log.Infof("swap %s: taker -> %s", s.hs.SwapID, status)
	return s.persist()
}

// Run drives the swap from its current status to a terminal TakerStatus. It
// holds the swap-manager lock for its entire lifetime.
func (s *SwapState) Run(ctx context.Context) (types.TakerStatus, error) {
	if err := s.deps.Manager.TryAcquireLock(s.hs.SwapID); err != nil {
		return s.status, fmt.Errorf("acquiring swap lock: %w", err)
	}
	defer s.deps.Manager.ReleaseLock(s.hs.SwapID)

	for !s.status.IsTerminal() {
		next, err := s.step(ctx)
		if err != nil {
			return s.status, fmt.Errorf("taker swap %s at %s: %w", s.hs.SwapID, s.status, err)
		}
		if err := s.setStatus(next); err != nil {
			return s.status, fmt.Errorf("persisting status %s: %w", next, err)
		}
	}
	return s.status, nil
}

func (s *SwapState) step(ctx context.Context) (types.TakerStatus, error) {
	switch s.status {
	case types.TakerStarted:
		return types.TakerSetupCompleted, nil
	case types.TakerSetupCompleted:
		return s.publishLock(ctx)
	case types.TakerBtcLockReadyToPublish:
		return s.waitBtcLocked(ctx)
	case types.TakerBtcLocked:
		return s.waitTransferProof(ctx)
	case types.TakerXmrLockTransactionCandidate:
		return s.waitXMRLockSeen(ctx)
	case types.TakerXmrLockSeen:
		return s.waitXMRLockConfirmed(ctx)
	case types.TakerXmrLocked:
		return s.sendEncSig(ctx)
	case types.TakerEncSigSent:
		return s.waitRedeemOrCancelExpiry(ctx)
	case types.TakerBtcRedeemed:
		return s.recoverMakerSpendShareFromRedeem(ctx)
	case types.TakerBtcEarlyRefundPublished:
		return s.waitEarlyRefundConfirmed(ctx)
	case types.TakerCancelTimelockExpired:
		return s.publishCancel(ctx)
	case types.TakerBtcCancelled:
		return s.chooseRefundBranch(ctx)
	case types.TakerBtcRefundPublished:
		return s.waitFullRefundConfirmed(ctx)
	case types.TakerBtcPartialRefundPublished:
		return s.waitPartialRefundConfirmed(ctx)
	case types.TakerBtcAmnestyPublished:
		return s.waitAmnestyOutcome(ctx)
	case types.TakerBtcPunished:
		return s.requestCooperativeRedeem(ctx)
	default:
		return 0, fmt.Errorf("taker: no handler for status %s", s.status)
	}
}

// --- lock publishing -----------------------------------------------------

func (s *SwapState) publishLock(ctx context.Context) (types.TakerStatus, error) {
	pkt, err := psbt.NewFromRawBytes(bytes.NewReader(s.hs.LockPSBT), false)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing lock psbt: %v", common.ErrProtocol, err)
	}
	lockTx, err := s.deps.Bitcoin.SignAndFinalize(ctx, pkt)
	if err != nil {
		return 0, common.Transient(err)
	}
	s.lockTxID = lockTx.TxHash().String()
	if err := s.persist(); err != nil {
		return 0, err
	}
	if _, _, err := s.deps.Bitcoin.EnsureBroadcasted(ctx, lockTx, "tx_lock"); err != nil {
		return 0, common.Transient(err)
	}
	return types.TakerBtcLockReadyToPublish, nil
}

func (s *SwapState) lockPkScript() ([]byte, error) {
	lockScript, err := txbuilder.LockWitnessScript(s.hs.LockParams)
	if err != nil {
		return nil, err
	}
	return txbuilder.P2WSHScript(lockScript)
}

// waitBtcLocked waits for tx_lock to reach finality. Taker has no way to
// construct tx_early_refund unilaterally (it needs Maker's live
// signature), so on a confirmation timeout it simply keeps watching the
// lock script for the early-refund spend Maker may eventually publish.
func (s *SwapState) waitBtcLocked(ctx context.Context) (types.TakerStatus, error) {
	pkScript, err := s.lockPkScript()
	if err != nil {
		return 0, err
	}
	sub, err := s.deps.Bitcoin.SubscribeTo(ctx, pkScript)
	if err != nil {
		return 0, common.Transient(err)
	}
	defer sub.Close()

	timeoutCtx, cancel := context.WithTimeout(ctx, s.deps.Cfg.BitcoinLockConfirmedTimeout)
	defer cancel()

	earlyRefundTx, _, err := txbuilder.BuildEarlyRefundTx(s.hs.LockParams)
	if err != nil {
		return 0, err
	}
	earlyRefundTxID := earlyRefundTx.TxHash()

	lockTimedOut := false
	poll := time.NewTicker(10 * time.Second)
	defer poll.Stop()
	for {
		select {
		case <-timeoutCtx.Done():
			lockTimedOut = true
		case <-poll.C:
			if !lockTimedOut {
				continue
			}
			if _, found, err := s.deps.Bitcoin.GetRawTransaction(ctx, earlyRefundTxID); err == nil && found {
				log.Warnf("swap %s: tx_lock did not confirm in time, tx_early_refund has appeared", s.hs.SwapID)
				return types.TakerBtcEarlyRefundPublished, nil
			}
		case update, ok := <-sub.Updates():
			if !ok {
				return 0, common.Transient(errors.New("taker: lock subscription closed"))
			}
			if update.Kind == backend.ScriptConfirmed && update.Confirmations >= s.deps.Cfg.BitcoinFinalityConfirmations {
				return types.TakerBtcLocked, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// --- cancel timelock bookkeeping -----------------------------------------

func (s *SwapState) remainingCancelBlocks(ctx context.Context) (int64, error) {
	pkScript, err := s.lockPkScript()
	if err != nil {
		return 0, err
	}
	status, err := s.deps.Bitcoin.StatusOfScript(ctx, pkScript)
	if err != nil {
		return 0, common.Transient(err)
	}
	if status.Kind != backend.ScriptConfirmed {
		return int64(s.hs.LockParams.CancelTimelock), nil
	}
	return int64(s.hs.LockParams.CancelTimelock) - int64(status.Confirmations), nil
}

func (s *SwapState) cancelTimelockExpired(ctx context.Context) (bool, error) {
	remaining, err := s.remainingCancelBlocks(ctx)
	if err != nil {
		return false, err
	}
	return remaining <= 0, nil
}

// --- xmr lock observation --------------------------------------------------

func (s *SwapState) waitTransferProof(ctx context.Context) (types.TakerStatus, error) {
	if buffered, err := s.deps.DB.GetBufferedTransferProof(s.hs.SwapID); err == nil {
		s.xmrTxID = buffered.TxID
		return types.TakerXmrLockTransactionCandidate, nil
	}

	for {
		select {
		case proof, ok := <-s.deps.IncomingTransferProof:
			if !ok {
				return 0, common.Transient(errors.New("taker: transfer proof channel closed"))
			}
			if proof.SwapID != s.hs.SwapID {
				continue
			}
			s.xmrTxID = proof.TxID
			if err := s.deps.DB.InsertBufferedTransferProof(s.hs.SwapID, &db.TransferProof{TxID: proof.TxID, TxKey: proof.TxKey, Height: proof.Height}); err != nil {
				return 0, err
			}
			return types.TakerXmrLockTransactionCandidate, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// waitXMRLockSeen opens a view-only wallet scoped to the joint address and
// lock transaction, and waits until it reports a balance at least as large
// as the amount Maker promised, without yet requiring any confirmations.
func (s *SwapState) waitXMRLockSeen(ctx context.Context) (types.TakerStatus, error) {
	wallet, err := s.deps.Monero.SwapWalletSpendable(ctx, s.hs.SwapID, nil, s.hs.JointViewKey, s.xmrTxID)
	if err != nil {
		return 0, common.Transient(err)
	}

	poll := time.NewTicker(10 * time.Second)
	defer poll.Stop()
	for {
		select {
		case <-poll.C:
			balance, err := wallet.Balance(ctx)
			if err != nil {
				log.Warnf("swap %s: checking xmr lock candidate balance: %v", s.hs.SwapID, err)
				continue
			}
			if balance.Uint64() >= s.xmrAmount {
				return types.TakerXmrLockSeen, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (s *SwapState) waitXMRLockConfirmed(ctx context.Context) (types.TakerStatus, error) {
	err := s.deps.Monero.WaitUntilConfirmed(ctx, s.xmrTxID, uint64(s.deps.Cfg.MoneroDoubleSpendSafeConfirmations), func(confirmations uint64) {
		log.Infof("swap %s: xmr lock transaction has %d confirmation(s)", s.hs.SwapID, confirmations)
	})
	if err != nil {
		return 0, common.Transient(err)
	}
	return types.TakerXmrLocked, nil
}

// --- redeem ----------------------------------------------------------------

func (s *SwapState) sendEncSig(ctx context.Context) (types.TakerStatus, error) {
	redeemTx, lockWitnessScript, err := txbuilder.BuildRedeemTx(s.hs.LockParams)
	if err != nil {
		return 0, err
	}
	sigHash, err := txbuilder.SigHash(redeemTx, lockWitnessScript, s.hs.LockParams.LockValue)
	if err != nil {
		return 0, err
	}
	encSig, err := adaptor.EncSign(s.hs.IdentityKey, s.hs.CounterpartyVerified.Secp256k1PublicKey, sigHash)
	if err != nil {
		return 0, err
	}
	encoded, err := encSig.MarshalBinary()
	if err != nil {
		return 0, err
	}

	// Persist the exact encSig before sending it: recovery later must
	// recover against this same object, not a freshly recomputed one.
	s.redeemEncSig = encSig
	if err := s.persist(); err != nil {
		return 0, err
	}

	msg := &message.EncryptedSignatureMsg{SwapID: s.hs.SwapID, EncSig: encoded}
	if err := s.deps.EncSig.Send(ctx, msg, s.deps.Dial); err != nil {
		return 0, err
	}
	return types.TakerEncSigSent, nil
}

// waitRedeemOrCancelExpiry waits for either Maker's tx_redeem to confirm
// (the happy path) or the cancel timelock to expire (Maker never redeemed
// in time, so Taker moves to reclaim its BTC).
func (s *SwapState) waitRedeemOrCancelExpiry(ctx context.Context) (types.TakerStatus, error) {
	outScript, err := txscript.PayToAddrScript(s.hs.RedeemAddress)
	if err != nil {
		return 0, err
	}
	sub, err := s.deps.Bitcoin.SubscribeTo(ctx, outScript)
	if err != nil {
		return 0, common.Transient(err)
	}
	defer sub.Close()

	poll := time.NewTicker(5 * time.Second)
	defer poll.Stop()
	for {
		select {
		case update, ok := <-sub.Updates():
			if !ok {
				return 0, common.Transient(errors.New("taker: redeem subscription closed"))
			}
			if update.Kind == backend.ScriptConfirmed && update.Confirmations >= s.deps.Cfg.BitcoinFinalityConfirmations {
				return types.TakerBtcRedeemed, nil
			}
		case <-poll.C:
			expired, err := s.cancelTimelockExpired(ctx)
			if err != nil {
				log.Warnf("swap %s: checking cancel timelock: %v", s.hs.SwapID, err)
				continue
			}
			if expired {
				return types.TakerCancelTimelockExpired, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// takerHalfOfWitness reads back Taker's own revealed signature from
// tx_redeem's multisig witness (stack position 2, per the (makerSig,
// takerSig) order Maker finalizes it with) so the recovery below sees
// exactly what Maker decrypted and broadcast.
func takerHalfOfWitness(witness [][]byte) (*adaptor.Signature, error) {
	if len(witness) < 3 {
		return nil, fmt.Errorf("taker: redeem witness has too few items")
	}
	return txbuilder.ParseSignature(witness[2])
}

// recoverMakerSpendShareFromRedeem extracts Maker's Monero spend-key share
// from tx_redeem: the signature Maker decrypted from Taker's encrypted
// signature and broadcast is, together with the original encrypted
// signature Taker holds, enough to recover the secret Maker used to
// decrypt it (spec.md §4.5's redeem-path leak — Maker's reward for
// completing the swap is mirrored by this leak letting Taker claim the
// Monero too).
func (s *SwapState) recoverMakerSpendShareFromRedeem(ctx context.Context) (types.TakerStatus, error) {
	redeemTx, _, err := txbuilder.BuildRedeemTx(s.hs.LockParams)
	if err != nil {
		return 0, err
	}
	tx, found, err := s.deps.Bitcoin.GetRawTransaction(ctx, redeemTx.TxHash())
	if err != nil {
		return 0, common.Transient(err)
	}
	if !found {
		return 0, common.Transient(errors.New("taker: tx_redeem not found yet"))
	}

	revealed, err := takerHalfOfWitness(tx.TxIn[0].Witness)
	if err != nil {
		return 0, err
	}

	if s.redeemEncSig == nil {
		return 0, fmt.Errorf("taker: no persisted redeem encrypted signature to recover against")
	}

	share, err := s.recoverSpendShare(revealed, s.redeemEncSig)
	if err != nil {
		return 0, err
	}
	s.makerSpendShare = share

	if err := s.sweepJointMonero(ctx); err != nil {
		return 0, err
	}
	return types.TakerXmrRedeemed, nil
}

// recoverSpendShare extracts the other party's Monero spend-key share from
// a revealed plain signature against the original encrypted signature.
func (s *SwapState) recoverSpendShare(revealed *adaptor.Signature, encSig *adaptor.EncryptedSignature) (*mcrypto.PrivateSpendKey, error) {
	y, err := adaptor.Recover(s.hs.CounterpartyVerified.Secp256k1PublicKey, revealed, encSig)
	if err != nil {
		return nil, fmt.Errorf("%w: recovering counterparty's spend key share: %v", common.ErrProtocol, err)
	}
	scalar, err := edscalar.FromSecp256k1(y)
	if err != nil {
		return nil, err
	}
	return mcrypto.NewPrivateSpendKeyFromScalar(scalar), nil
}

func (s *SwapState) sweepJointMonero(ctx context.Context) error {
	if s.makerSpendShare == nil {
		return fmt.Errorf("taker: no recovered maker spend share to sweep with")
	}
	jointSpendKey := mcrypto.SumPrivateSpendKeys(s.hs.KeysAndProof.MoneroKeyPair.SpendKey, s.makerSpendShare)

	wallet, err := s.deps.Monero.SwapWalletSpendable(ctx, s.hs.SwapID, jointSpendKey, s.hs.JointViewKey, s.xmrTxID)
	if err != nil {
		return common.Transient(err)
	}
	mainAddr, err := s.deps.Monero.MainAddress(ctx)
	if err != nil {
		return common.Transient(err)
	}
	if _, err := wallet.Sweep(ctx, mainAddr); err != nil {
		return common.Transient(err)
	}
	return nil
}

// --- early refund (tx_lock never confirmed) -------------------------------

func (s *SwapState) waitEarlyRefundConfirmed(ctx context.Context) (types.TakerStatus, error) {
	outScript, err := txscript.PayToAddrScript(s.hs.TakerRefundAddress)
	if err != nil {
		return 0, err
	}
	if err := s.waitScriptConfirmed(ctx, outScript); err != nil {
		return 0, err
	}
	return types.TakerBtcEarlyRefunded, nil
}

// --- cancel / refund / punish ----------------------------------------------

func (s *SwapState) publishCancel(ctx context.Context) (types.TakerStatus, error) {
	cancelTx, lockWitnessScript, _, err := txbuilder.BuildCancelTx(s.hs.LockParams)
	if err != nil {
		return 0, err
	}
	cancelTx.TxIn[0].Witness = txbuilder.FinalizeMultisigWitness(
		txbuilder.EncodeSignature(s.hs.Sigs.MakerCancelSig),
		txbuilder.EncodeSignature(s.hs.Sigs.TakerCancelSig),
		lockWitnessScript)

	if _, _, err := s.deps.Bitcoin.EnsureBroadcasted(ctx, cancelTx, "tx_cancel"); err != nil {
		return 0, common.Transient(err)
	}
	return types.TakerBtcCancelled, nil
}

// chooseRefundBranch decides whether to claim the full refund or concede
// the amnesty carve-out as a partial refund. Partial refund only makes
// sense when an amnesty output actually exists and Deps.PreferPartialRefund
// opts into leaving it contestable; otherwise full refund is strictly
// better for Taker and is always chosen.
func (s *SwapState) chooseRefundBranch(ctx context.Context) (types.TakerStatus, error) {
	if s.hs.LockParams.AmnestyAmount == 0 || !s.deps.PreferPartialRefund {
		return s.publishFullRefund(ctx)
	}
	return s.publishPartialRefund(ctx)
}

func (s *SwapState) publishFullRefund(ctx context.Context) (types.TakerStatus, error) {
	outs, err := setup.DeriveOutpoints(s.hs.LockParams)
	if err != nil {
		return 0, err
	}
	refundTx, cancelWitnessScript, err := txbuilder.BuildFullRefundTx(s.hs.LockParams, outs.Cancel)
	if err != nil {
		return 0, err
	}
	sigHash, err := txbuilder.SigHash(refundTx, cancelWitnessScript, outs.Cancel.Value)
	if err != nil {
		return 0, err
	}
	makerSig := adaptor.Decrypt(s.hs.Sigs.MakerFullRefundEncSig, s.hs.KeysAndProof.BtcSecp256k1KeyPair)
	if err := adaptor.Verify(s.hs.CounterpartyIdentityPub, sigHash, makerSig); err != nil {
		return 0, fmt.Errorf("%w: maker's decrypted full-refund signature does not verify: %v", common.ErrProtocol, err)
	}
	takerSig, err := adaptor.Sign(s.hs.IdentityKey, sigHash)
	if err != nil {
		return 0, err
	}
	refundTx.TxIn[0].Witness = txbuilder.FinalizeRefundBranchWitness(
		txbuilder.EncodeSignature(makerSig), txbuilder.EncodeSignature(takerSig), cancelWitnessScript)

	if _, _, err := s.deps.Bitcoin.EnsureBroadcasted(ctx, refundTx, "tx_full_refund"); err != nil {
		return 0, common.Transient(err)
	}
	return types.TakerBtcRefundPublished, nil
}

func (s *SwapState) publishPartialRefund(ctx context.Context) (types.TakerStatus, error) {
	outs, err := setup.DeriveOutpoints(s.hs.LockParams)
	if err != nil {
		return 0, err
	}
	refundTx, cancelWitnessScript, err := txbuilder.BuildPartialRefundTx(s.hs.LockParams, outs.Cancel)
	if err != nil {
		return 0, err
	}
	sigHash, err := txbuilder.SigHash(refundTx, cancelWitnessScript, outs.Cancel.Value)
	if err != nil {
		return 0, err
	}
	makerSig := adaptor.Decrypt(s.hs.Sigs.MakerPartialRefundEncSig, s.hs.KeysAndProof.BtcSecp256k1KeyPair)
	if err := adaptor.Verify(s.hs.CounterpartyIdentityPub, sigHash, makerSig); err != nil {
		return 0, fmt.Errorf("%w: maker's decrypted partial-refund signature does not verify: %v", common.ErrProtocol, err)
	}
	takerSig, err := adaptor.Sign(s.hs.IdentityKey, sigHash)
	if err != nil {
		return 0, err
	}
	refundTx.TxIn[0].Witness = txbuilder.FinalizeRefundBranchWitness(
		txbuilder.EncodeSignature(makerSig), txbuilder.EncodeSignature(takerSig), cancelWitnessScript)

	if _, _, err := s.deps.Bitcoin.EnsureBroadcasted(ctx, refundTx, "tx_partial_refund"); err != nil {
		return 0, common.Transient(err)
	}
	return types.TakerBtcPartialRefundPublished, nil
}

func (s *SwapState) waitFullRefundConfirmed(ctx context.Context) (types.TakerStatus, error) {
	outScript, err := txscript.PayToAddrScript(s.hs.TakerRefundAddress)
	if err != nil {
		return 0, err
	}
	if err := s.waitScriptConfirmed(ctx, outScript); err != nil {
		return 0, err
	}
	return types.TakerBtcRefunded, nil
}

// waitPartialRefundConfirmed waits for tx_partial_refund to confirm, then
// decides whether to contest the amnesty carve-out: if Deps.ClaimAmnesty is
// set, Taker races Maker for the amnesty output next; otherwise Taker
// settles for the partial refund alone.
func (s *SwapState) waitPartialRefundConfirmed(ctx context.Context) (types.TakerStatus, error) {
	outScript, err := txscript.PayToAddrScript(s.hs.TakerRefundAddress)
	if err != nil {
		return 0, err
	}
	if err := s.waitScriptConfirmed(ctx, outScript); err != nil {
		return 0, err
	}
	if !s.deps.ClaimAmnesty {
		return types.TakerBtcPartiallyRefunded, nil
	}
	return types.TakerBtcAmnestyPublished, nil
}

// waitAmnestyOutcome publishes tx_refund_amnesty (Taker's single-signer
// claim on the amnesty output) and races Maker's possible tx_refund_burn:
// whichever confirms first decides the outcome (spec.md §3.4/§4.4).
func (s *SwapState) waitAmnestyOutcome(ctx context.Context) (types.TakerStatus, error) {
	outs, err := setup.DeriveOutpoints(s.hs.LockParams)
	if err != nil {
		return 0, err
	}
	amnestyTx, amnestyWitnessScript, err := txbuilder.BuildRefundAmnestyTx(s.hs.LockParams, outs.Amnesty)
	if err != nil {
		return 0, err
	}
	sigHash, err := txbuilder.SigHash(amnestyTx, amnestyWitnessScript, outs.Amnesty.Value)
	if err != nil {
		return 0, err
	}
	takerSig, err := adaptor.Sign(s.hs.IdentityKey, sigHash)
	if err != nil {
		return 0, err
	}
	amnestyTx.TxIn[0].Witness = txbuilder.FinalizeBranchWitness(txbuilder.EncodeSignature(takerSig), amnestyWitnessScript, true)

	if _, _, err := s.deps.Bitcoin.EnsureBroadcasted(ctx, amnestyTx, "tx_refund_amnesty"); err != nil {
		return 0, common.Transient(err)
	}

	burnTx, _, _, err := txbuilder.BuildRefundBurnTx(s.hs.LockParams, outs.Amnesty)
	if err != nil {
		return 0, err
	}
	burnTxID := burnTx.TxHash()

	poll := time.NewTicker(10 * time.Second)
	defer poll.Stop()
	outScript, err := txscript.PayToAddrScript(s.hs.TakerRefundAddress)
	if err != nil {
		return 0, err
	}
	sub, err := s.deps.Bitcoin.SubscribeTo(ctx, outScript)
	if err != nil {
		return 0, common.Transient(err)
	}
	defer sub.Close()

	for {
		select {
		case update, ok := <-sub.Updates():
			if !ok {
				return 0, common.Transient(errors.New("taker: amnesty subscription closed"))
			}
			if update.Kind == backend.ScriptConfirmed && update.Confirmations >= s.deps.Cfg.BitcoinFinalityConfirmations {
				return types.TakerBtcAmnestyConfirmed, nil
			}
		case <-poll.C:
			if _, found, err := s.deps.Bitcoin.GetRawTransaction(ctx, burnTxID); err == nil && found {
				return types.TakerBtcRefundBurnt, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (s *SwapState) waitScriptConfirmed(ctx context.Context, pkScript []byte) error {
	sub, err := s.deps.Bitcoin.SubscribeTo(ctx, pkScript)
	if err != nil {
		return common.Transient(err)
	}
	defer sub.Close()
	for {
		select {
		case update, ok := <-sub.Updates():
			if !ok {
				return common.Transient(errors.New("taker: subscription closed"))
			}
			if update.Kind == backend.ScriptConfirmed && update.Confirmations >= s.deps.Cfg.BitcoinFinalityConfirmations {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// --- cooperative redeem (Taker side) ---------------------------------------

// requestCooperativeRedeem asks Maker — who has already taken the BTC via
// tx_punish and so has nothing left to protect — to voluntarily reveal its
// Monero spend-key secret (spec.md §4.6). This is a goodwill path only:
// tx_punish's witness carries no adaptor-encrypted material for Taker to
// recover cryptographically, unlike the redeem and refund branches.
func (s *SwapState) requestCooperativeRedeem(ctx context.Context) (types.TakerStatus, error) {
	resp, err := s.deps.CooperativeRedeem.Request(ctx, s.hs.SwapID, s.deps.Dial)
	if err != nil {
		return 0, common.Transient(err)
	}
	if !resp.Fulfilled {
		return 0, fmt.Errorf("%w: maker declined cooperative redeem: %s", common.ErrProtocol, resp.RejectReason)
	}

	makerKey, err := secp256k1.NewPrivateKeyFromScalar(resp.SA)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid cooperative redeem secret: %v", common.ErrProtocol, err)
	}
	scalar, err := edscalar.FromSecp256k1(makerKey)
	if err != nil {
		return 0, err
	}
	s.makerSpendShare = mcrypto.NewPrivateSpendKeyFromScalar(scalar)

	if resp.TransferProof != nil {
		s.xmrTxID = resp.TransferProof.TxID
	}
	if err := s.sweepJointMonero(ctx); err != nil {
		return 0, err
	}
	return types.TakerXmrRedeemed, nil
}
