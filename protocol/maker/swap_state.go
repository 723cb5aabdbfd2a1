// Package maker drives the Maker side of a swap once the setup handshake
// has produced a Handshake (spec.md §4.4): locking XMR, learning Taker's
// redeem signature, and reacting to whichever branch of the presigned
// transaction graph Taker ends up using.
package maker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/txscript"
	logging "github.com/ipfs/go-log"

	"github.com/eigenswap/xmr-btc-swap/backend"
	"github.com/eigenswap/xmr-btc-swap/coins"
	"github.com/eigenswap/xmr-btc-swap/common"
	"github.com/eigenswap/xmr-btc-swap/common/types"
	"github.com/eigenswap/xmr-btc-swap/crypto/adaptor"
	"github.com/eigenswap/xmr-btc-swap/crypto/edscalar"
	mcrypto "github.com/eigenswap/xmr-btc-swap/crypto/monero"
	"github.com/eigenswap/xmr-btc-swap/db"
	"github.com/eigenswap/xmr-btc-swap/net"
	"github.com/eigenswap/xmr-btc-swap/net/message"
	"github.com/eigenswap/xmr-btc-swap/protocol/channels"
	"github.com/eigenswap/xmr-btc-swap/protocol/setup"
	"github.com/eigenswap/xmr-btc-swap/protocol/swap"
	"github.com/eigenswap/xmr-btc-swap/txbuilder"
)

var log = logging.Logger("maker")

// DeveloperTipMinimum is the piconero floor below which the optional
// developer tip is skipped rather than sent as an uneconomical dust output.
const DeveloperTipMinimum = 30_000_000

// IncomingCooperativeRedeemRequest pairs an inbound request with the stream
// it arrived on, so HandleCooperativeRedeemRequest can answer it directly.
type IncomingCooperativeRedeemRequest struct {
	Req    *message.CooperativeRedeemRequest
	Stream net.Stream
}

// Deps bundles the collaborators a Maker driver needs beyond the Handshake
// itself.
type Deps struct {
	Cfg     *common.Config
	Bitcoin backend.BitcoinWallet
	Monero  backend.MoneroWallet
	DB      db.Database
	Manager swap.Manager

	Transfer *channels.TransferProofChannel

	// Dial opens a fresh outbound stream to the counterparty; used to
	// (re)send the transfer proof, since TransferProofChannel.Send takes
	// an already-connected stream per attempt.
	Dial func(ctx context.Context) (net.Stream, error)

	// IncomingEncSig delivers this swap's encrypted-signature message once
	// the host layer receives it on any inbound stream from Taker
	// (spec.md §4.6: delivery is decoupled from whichever stream carries
	// it).
	IncomingEncSig <-chan *message.EncryptedSignatureMsg

	// IncomingCooperativeRedeemRequests delivers cooperative-redeem
	// requests addressed to this swap.
	IncomingCooperativeRedeemRequests <-chan IncomingCooperativeRedeemRequest

	// TipAddress/TipRatio implement the optional developer-tip policy: when
	// TipAddress is non-nil and the computed tip clears DeveloperTipMinimum,
	// the XMR lock transfer gets a second destination.
	TipAddress *mcrypto.Address
	TipRatio   float64

	// ShouldPublishRefundBurn enables Maker's amnesty-burn lever after a
	// partial refund is observed: when false, Maker leaves the amnesty
	// output alone and simply recovers its Monero share.
	ShouldPublishRefundBurn bool
	// GrantMercy, when ShouldPublishRefundBurn is also true, makes Maker
	// cosign tx_final_amnesty right after burning, returning the amnesty
	// funds to Taker anyway; when false Maker withholds them permanently.
	GrantMercy bool
}

// persistedState is the JSON form of a Maker swap's resumable fields,
// written to the database after every status transition.
type persistedState struct {
	Status        types.MakerStatus `json:"status"`
	RestoreHeight uint64            `json:"restoreHeight,omitempty"`
	XMRLockTxID   string            `json:"xmrLockTxId,omitempty"`

	// TakerRedeemEncSig is the encrypted signature learned from Taker,
	// needed by publishRedeem; TakerSpendShare is the secret recovered
	// from a refund transaction's witness, needed by sweepRecoveredMonero.
	// Both are runtime-learned (not handshake-time presigned) fields, so
	// without persisting them a crash-resume at MakerEncSigLearned,
	// MakerBtcRedeemTxPublished, MakerBtcPartiallyRefunded, or
	// MakerXmrRefundable would resume with them nil.
	TakerRedeemEncSig []byte `json:"takerRedeemEncSig,omitempty"`
	TakerSpendShare   []byte `json:"takerSpendShare,omitempty"`
}

// SwapState drives a single Maker-side swap from Started to a terminal
// MakerStatus.
type SwapState struct {
	deps      Deps
	hs        *setup.Handshake
	xmrAmount uint64 // piconero, the full swap amount before any tip split

	status        types.MakerStatus
	restoreHeight uint64
	xmrLockTxID   string
	lockTxKey     string

	takerRedeemEncSig *adaptor.EncryptedSignature
	takerSpendShare   *mcrypto.PrivateSpendKey
}

// New constructs a fresh Maker driver for a just-completed handshake.
func New(deps Deps, hs *setup.Handshake, xmrAmount uint64) *SwapState {
	return &SwapState{deps: deps, hs: hs, xmrAmount: xmrAmount, status: types.MakerStarted}
}

// Resume reconstructs a driver for a swap that was interrupted mid-flight,
// picking back up at the last persisted status.
func Resume(deps Deps, hs *setup.Handshake, xmrAmount uint64, saved persistedState) *SwapState {
	s := New(deps, hs, xmrAmount)
	s.status = saved.Status
	s.restoreHeight = saved.RestoreHeight
	s.xmrLockTxID = saved.XMRLockTxID
	if len(saved.TakerRedeemEncSig) > 0 {
		if encSig, err := adaptor.UnmarshalEncryptedSignature(saved.TakerRedeemEncSig); err == nil {
			s.takerRedeemEncSig = encSig
		} else {
			log.Warnf("swap %s: discarding unparseable persisted taker enc-sig: %v", hs.SwapID, err)
		}
	}
	if len(saved.TakerSpendShare) == 32 {
		scalar, err := new(edwards25519.Scalar).SetCanonicalBytes(saved.TakerSpendShare)
		if err != nil {
			log.Warnf("swap %s: discarding unparseable persisted taker spend share: %v", hs.SwapID, err)
		} else {
			s.takerSpendShare = mcrypto.NewPrivateSpendKeyFromScalar(scalar)
		}
	}
	return s
}

// Status reports the driver's current MakerStatus.
func (s *SwapState) Status() types.MakerStatus { return s.status }

func (s *SwapState) persist() error {
	saved := persistedState{
		Status:        s.status,
		RestoreHeight: s.restoreHeight,
		XMRLockTxID:   s.xmrLockTxID,
	}
	if s.takerRedeemEncSig != nil {
		encoded, err := s.takerRedeemEncSig.MarshalBinary()
		if err != nil {
			return err
		}
		saved.TakerRedeemEncSig = encoded
	}
	if s.takerSpendShare != nil {
		b := s.takerSpendShare.Bytes()
		saved.TakerSpendShare = b[:]
	}
	return s.deps.DB.InsertLatestState(s.hs.SwapID, saved)
}

func (s *SwapState) setStatus(status types.MakerStatus) error {
	s.status = status
	log.Infof("swap %s: maker -> %s", s.hs.SwapID, status)
	return s.persist()
}

// Run drives the swap from its current status to a terminal MakerStatus. It
// holds the swap-manager lock for its entire lifetime.
func (s *SwapState) Run(ctx context.Context) (types.MakerStatus, error) {
	if err := s.deps.Manager.TryAcquireLock(s.hs.SwapID); err != nil {
		return s.status, fmt.Errorf("acquiring swap lock: %w", err)
	}
	defer s.deps.Manager.ReleaseLock(s.hs.SwapID)

	for !s.status.IsTerminal() {
		next, err := s.step(ctx)
		if err != nil {
			return s.status, fmt.Errorf("maker swap %s at %s: %w", s.hs.SwapID, s.status, err)
		}
		if err := s.setStatus(next); err != nil {
			return s.status, fmt.Errorf("persisting status %s: %w", next, err)
		}
	}
	return s.status, nil
}

func (s *SwapState) step(ctx context.Context) (types.MakerStatus, error) {
	switch s.status {
	case types.MakerStarted:
		return s.waitBtcLockSeen(ctx)
	case types.MakerBtcLockSeen:
		return s.waitBtcLocked(ctx)
	case types.MakerBtcLocked:
		return s.sendXMRLock(ctx)
	case types.MakerXmrLockSent:
		return s.waitXMRLocked(ctx)
	case types.MakerXmrLocked:
		return s.sendTransferProof(ctx)
	case types.MakerXmrLockProofSent:
		return s.waitEncSigOrCancelExpiry(ctx)
	case types.MakerEncSigLearned:
		return s.publishRedeem(ctx)
	case types.MakerBtcRedeemTxPublished:
		return s.waitRedeemConfirmed(ctx)
	case types.MakerWaitingForCancelTimelock:
		return s.waitCancelTimelockExpired(ctx)
	case types.MakerCancelTimelockExpired:
		return s.publishCancel(ctx)
	case types.MakerBtcCancelled:
		return s.watchCancelOutput(ctx)
	case types.MakerBtcPartiallyRefunded:
		return s.handlePartialRefund(ctx)
	case types.MakerXmrRefundable:
		return s.sweepRefundedMonero(ctx)
	case types.MakerBtcPunishable:
		return s.publishPunish(ctx)
	case types.MakerBtcMercyGranted:
		return s.publishMercy(ctx)
	case types.MakerBtcMercyPublished:
		return s.waitMercyConfirmed(ctx)
	case types.MakerBtcWithholdPublished:
		return s.waitWithholdConfirmed(ctx)
	case types.MakerBtcEarlyRefundable:
		return s.publishEarlyRefund(ctx)
	default:
		return 0, fmt.Errorf("maker: no handler for status %s", s.status)
	}
}

// --- lock watching ---------------------------------------------------

func (s *SwapState) lockPkScript() ([]byte, error) {
	lockScript, err := txbuilder.LockWitnessScript(s.hs.LockParams)
	if err != nil {
		return nil, err
	}
	return txbuilder.P2WSHScript(lockScript)
}

func (s *SwapState) waitBtcLockSeen(ctx context.Context) (types.MakerStatus, error) {
	pkScript, err := s.lockPkScript()
	if err != nil {
		return 0, err
	}
	sub, err := s.deps.Bitcoin.SubscribeTo(ctx, pkScript)
	if err != nil {
		return 0, common.Transient(err)
	}
	defer sub.Close()

	timeoutCtx, cancel := context.WithTimeout(ctx, s.deps.Cfg.BitcoinLockMempoolTimeout)
	defer cancel()

	for {
		select {
		case <-timeoutCtx.Done():
			log.Warnf("swap %s: tx_lock never appeared within the mempool timeout, aborting safely", s.hs.SwapID)
			return types.MakerSafelyAborted, nil
		case update, ok := <-sub.Updates():
			if !ok {
				return 0, common.Transient(errors.New("maker: lock subscription closed"))
			}
			if update.Kind != backend.ScriptUnseen {
				return types.MakerBtcLockSeen, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (s *SwapState) waitBtcLocked(ctx context.Context) (types.MakerStatus, error) {
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

	for {
		select {
		case <-timeoutCtx.Done():
			log.Warnf("swap %s: tx_lock did not confirm in time, falling back to the early-refund branch", s.hs.SwapID)
			return types.MakerBtcEarlyRefundable, nil
		case update, ok := <-sub.Updates():
			if !ok {
				return 0, common.Transient(errors.New("maker: lock subscription closed"))
			}
			if update.Kind == backend.ScriptConfirmed && update.Confirmations >= s.deps.Cfg.BitcoinFinalityConfirmations {
				return types.MakerBtcLocked, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// --- cancel timelock bookkeeping --------------------------------------

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

// --- XMR lock ----------------------------------------------------------

var errCancelTimelockExpired = errors.New("maker: cancel timelock expired before the xmr lock transfer went through")

func (s *SwapState) sendXMRLock(ctx context.Context) (types.MakerStatus, error) {
	height, err := s.deps.Monero.DirectRPCBlockHeight(ctx)
	if err != nil {
		return 0, common.Transient(err)
	}
	s.restoreHeight = height
	if err := s.deps.Monero.SetRestoreHeight(ctx, height); err != nil {
		return 0, common.Transient(err)
	}
	if err := s.persist(); err != nil {
		return 0, err
	}

	result, err := retryXMRLock(ctx, s, s.deps.Cfg.MoneroLockRetryTimeout, func(ctx context.Context) (*backend.TransferResult, error) {
		return s.deps.Monero.TransferMultiDestination(ctx, s.lockDestinations())
	})
	if err != nil {
		if errors.Is(err, errCancelTimelockExpired) {
			log.Warnf("swap %s: %v, nothing was committed, aborting safely", s.hs.SwapID, err)
			return types.MakerSafelyAborted, nil
		}
		return 0, err
	}

	s.xmrLockTxID = result.TxID
	if s.hs.JointMoneroAddress.Standard != "" {
		s.lockTxKey = result.TxKeyPer[s.hs.JointMoneroAddress.Standard]
	}
	return types.MakerXmrLockSent, nil
}

func (s *SwapState) lockDestinations() []backend.Destination {
	amount := s.xmrAmount
	var dests []backend.Destination
	if s.deps.TipAddress != nil && s.deps.TipRatio > 0 {
		tip := uint64(float64(amount) * s.deps.TipRatio)
		if tip >= DeveloperTipMinimum && tip < amount {
			dests = append(dests, backend.Destination{Address: s.deps.TipAddress, Amount: coins.NewPiconeroAmount(tip)})
			amount -= tip
		}
	}
	dests = append(dests, backend.Destination{Address: s.hs.JointMoneroAddress, Amount: coins.NewPiconeroAmount(amount)})
	return dests
}

// retryXMRLock retries fn forever with exponential backoff capped at
// maxBackoff, until it succeeds, ctx is cancelled, or the cancel timelock
// expires — safe to abandon then, since no Monero has moved yet.
func retryXMRLock[T any](ctx context.Context, s *SwapState, maxBackoff time.Duration, fn func(context.Context) (T, error)) (T, error) {
	backoff := s.deps.Cfg.RetryInitialBackoff
	for {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		log.Warnf("swap %s: xmr lock transfer attempt failed, retrying: %v", s.hs.SwapID, err)

		if expired, checkErr := s.cancelTimelockExpired(ctx); checkErr == nil && expired {
			var zero T
			return zero, errCancelTimelockExpired
		}

		if sleepErr := common.SleepWithContext(ctx, backoff); sleepErr != nil {
			var zero T
			return zero, sleepErr
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *SwapState) waitXMRLocked(ctx context.Context) (types.MakerStatus, error) {
	err := s.deps.Monero.WaitUntilConfirmed(ctx, s.xmrLockTxID, 1, func(confirmations uint64) {
		log.Infof("swap %s: xmr lock transaction has %d confirmation(s)", s.hs.SwapID, confirmations)
	})
	if err != nil {
		return 0, common.Transient(err)
	}
	return types.MakerXmrLocked, nil
}

func (s *SwapState) sendTransferProof(ctx context.Context) (types.MakerStatus, error) {
	proof := &db.TransferProof{TxID: s.xmrLockTxID, TxKey: s.lockTxKey, Height: s.restoreHeight}

	backoff := s.deps.Cfg.RetryInitialBackoff
	for {
		stream, err := s.deps.Dial(ctx)
		if err == nil {
			sendErr := s.deps.Transfer.Send(s.hs.SwapID, proof, stream)
			_ = stream.Close()
			if sendErr == nil {
				return types.MakerXmrLockProofSent, nil
			}
			err = sendErr
		}
		log.Warnf("swap %s: failed to deliver xmr lock transfer proof, retrying: %v", s.hs.SwapID, err)
		if sleepErr := common.SleepWithContext(ctx, backoff); sleepErr != nil {
			return 0, sleepErr
		}
		backoff *= 2
		if backoff > s.deps.Cfg.RetryMaxBackoff {
			backoff = s.deps.Cfg.RetryMaxBackoff
		}
	}
}

// --- redeem --------------------------------------------------------------

func (s *SwapState) waitEncSigOrCancelExpiry(ctx context.Context) (types.MakerStatus, error) {
	poll := time.NewTicker(5 * time.Second)
	defer poll.Stop()
	for {
		select {
		case msg, ok := <-s.deps.IncomingEncSig:
			if !ok {
				return 0, common.Transient(errors.New("maker: encrypted-signature channel closed"))
			}
			if msg.SwapID != s.hs.SwapID {
				continue
			}
			encSig, err := adaptor.UnmarshalEncryptedSignature(msg.EncSig)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", common.ErrProtocol, err)
			}
			s.takerRedeemEncSig = encSig
			return types.MakerEncSigLearned, nil
		case <-poll.C:
			remaining, err := s.remainingCancelBlocks(ctx)
			if err != nil {
				log.Warnf("swap %s: checking cancel timelock margin: %v", s.hs.SwapID, err)
				continue
			}
			if remaining <= int64(s.deps.Cfg.BitcoinBlocksTillConfirmedUpperBound) {
				log.Warnf("swap %s: cancel timelock too close to expiry to keep waiting for an encrypted signature", s.hs.SwapID)
				return types.MakerWaitingForCancelTimelock, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (s *SwapState) waitCancelTimelockExpired(ctx context.Context) (types.MakerStatus, error) {
	poll := time.NewTicker(5 * time.Second)
	defer poll.Stop()
	for {
		select {
		case msg, ok := <-s.deps.IncomingEncSig:
			if ok && msg.SwapID == s.hs.SwapID {
				if encSig, err := adaptor.UnmarshalEncryptedSignature(msg.EncSig); err == nil {
					s.takerRedeemEncSig = encSig
					return types.MakerEncSigLearned, nil
				}
			}
		case <-poll.C:
			expired, err := s.cancelTimelockExpired(ctx)
			if err != nil {
				log.Warnf("swap %s: checking cancel timelock: %v", s.hs.SwapID, err)
				continue
			}
			if expired {
				return types.MakerCancelTimelockExpired, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (s *SwapState) publishRedeem(ctx context.Context) (types.MakerStatus, error) {
	remaining, err := s.remainingCancelBlocks(ctx)
	if err != nil {
		return 0, err
	}
	if remaining <= int64(s.deps.Cfg.BitcoinBlocksTillConfirmedUpperBound) {
		log.Warnf("swap %s: cancel timelock too close to expiry to safely publish tx_redeem", s.hs.SwapID)
		return types.MakerWaitingForCancelTimelock, nil
	}

	takerSig := adaptor.Decrypt(s.takerRedeemEncSig, s.hs.KeysAndProof.BtcSecp256k1KeyPair)

	redeemTx, lockWitnessScript, err := txbuilder.BuildRedeemTx(s.hs.LockParams)
	if err != nil {
		return 0, err
	}
	sigHash, err := txbuilder.SigHash(redeemTx, lockWitnessScript, s.hs.LockParams.LockValue)
	if err != nil {
		return 0, err
	}
	if err := adaptor.Verify(s.hs.CounterpartyIdentityPub, sigHash, takerSig); err != nil {
		return 0, fmt.Errorf("%w: taker's decrypted redeem signature does not verify: %v", common.ErrProtocol, err)
	}
	makerSig, err := adaptor.Sign(s.hs.IdentityKey, sigHash)
	if err != nil {
		return 0, err
	}

	redeemTx.TxIn[0].Witness = txbuilder.FinalizeMultisigWitness(
		txbuilder.EncodeSignature(makerSig), txbuilder.EncodeSignature(takerSig), lockWitnessScript)

	if _, _, err := s.deps.Bitcoin.EnsureBroadcasted(ctx, redeemTx, "tx_redeem"); err != nil {
		return 0, common.Transient(err)
	}
	return types.MakerBtcRedeemTxPublished, nil
}

func (s *SwapState) waitRedeemConfirmed(ctx context.Context) (types.MakerStatus, error) {
	outScript, err := txscript.PayToAddrScript(s.hs.RedeemAddress)
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
				return 0, common.Transient(errors.New("maker: redeem subscription closed"))
			}
			if update.Kind == backend.ScriptConfirmed && update.Confirmations >= s.deps.Cfg.BitcoinFinalityConfirmations {
				return types.MakerBtcRedeemed, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// --- cancel / refund / punish -------------------------------------------

func (s *SwapState) publishCancel(ctx context.Context) (types.MakerStatus, error) {
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
	return types.MakerBtcCancelled, nil
}

// makerHalfOfWitness reads back the counterparty's revealed plain
// signature from a 2-of-2 CHECKMULTISIG witness (stack position 1, per
// FinalizeRefundBranchWitness's layout).
func makerHalfOfWitness(witness [][]byte) (*adaptor.Signature, error) {
	if len(witness) < 2 {
		return nil, fmt.Errorf("maker: refund witness has too few items")
	}
	return txbuilder.ParseSignature(witness[1])
}

func (s *SwapState) watchCancelOutput(ctx context.Context) (types.MakerStatus, error) {
	poll := time.NewTicker(10 * time.Second)
	defer poll.Stop()
	for {
		select {
		case <-poll.C:
			status, found, err := s.checkRefundAppeared(ctx)
			if err != nil {
				return 0, err
			}
			if found {
				return status, nil
			}
			remaining, err := s.remainingPunishBlocks(ctx)
			if err == nil && remaining <= 0 {
				return types.MakerBtcPunishable, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// checkRefundAppeared looks for tx_full_refund or tx_partial_refund on
// chain and, if either is found, recovers Taker's spend-key share from its
// witness (sweeping it immediately for the full-refund case, which has no
// dedicated recovery phase). Both publishPunish and watchCancelOutput call
// this so that a refund Taker published is never missed regardless of
// which path reaches MakerBtcPunishable (spec.md §4.4: Maker must prefer
// refund over punish whenever a refund transaction exists on chain).
func (s *SwapState) checkRefundAppeared(ctx context.Context) (types.MakerStatus, bool, error) {
	outs, err := setup.DeriveOutpoints(s.hs.LockParams)
	if err != nil {
		return 0, false, err
	}

	fullRefundTx, _, err := txbuilder.BuildFullRefundTx(s.hs.LockParams, outs.Cancel)
	if err != nil {
		return 0, false, err
	}
	if tx, found, err := s.deps.Bitcoin.GetRawTransaction(ctx, fullRefundTx.TxHash()); err == nil && found {
		revealed, err := makerHalfOfWitness(tx.TxIn[0].Witness)
		if err != nil {
			return 0, false, err
		}
		share, err := s.recoverTakerSpendShare(revealed, s.hs.Sigs.MakerFullRefundEncSig)
		if err != nil {
			return 0, false, err
		}
		s.takerSpendShare = share
		if err := s.persist(); err != nil {
			return 0, false, err
		}
		if err := s.sweepRecoveredMonero(ctx); err != nil {
			return 0, false, err
		}
		return types.MakerBtcRefunded, true, nil
	}

	if s.hs.LockParams.AmnestyAmount > 0 {
		partialRefundTx, _, err := txbuilder.BuildPartialRefundTx(s.hs.LockParams, outs.Cancel)
		if err != nil {
			return 0, false, err
		}
		if tx, found, err := s.deps.Bitcoin.GetRawTransaction(ctx, partialRefundTx.TxHash()); err == nil && found {
			revealed, err := makerHalfOfWitness(tx.TxIn[0].Witness)
			if err != nil {
				return 0, false, err
			}
			share, err := s.recoverTakerSpendShare(revealed, s.hs.Sigs.MakerPartialRefundEncSig)
			if err != nil {
				return 0, false, err
			}
			s.takerSpendShare = share
			if err := s.persist(); err != nil {
				return 0, false, err
			}
			return types.MakerBtcPartiallyRefunded, true, nil
		}
	}

	return 0, false, nil
}

// recoverTakerSpendShare extracts Taker's Monero spend-key share from a
// revealed plain signature that only Taker's adaptor secret could have
// produced from encSig (spec.md §4.4's refund-path leak).
func (s *SwapState) recoverTakerSpendShare(revealed *adaptor.Signature, encSig *adaptor.EncryptedSignature) (*mcrypto.PrivateSpendKey, error) {
	y, err := adaptor.Recover(s.hs.CounterpartyVerified.Secp256k1PublicKey, revealed, encSig)
	if err != nil {
		return nil, fmt.Errorf("%w: recovering taker's spend key share: %v", common.ErrProtocol, err)
	}
	scalar, err := edscalar.FromSecp256k1(y)
	if err != nil {
		return nil, err
	}
	return mcrypto.NewPrivateSpendKeyFromScalar(scalar), nil
}

func (s *SwapState) remainingPunishBlocks(ctx context.Context) (int64, error) {
	_, cancelWitnessScript, _, err := txbuilder.BuildCancelTx(s.hs.LockParams)
	if err != nil {
		return 0, err
	}
	cancelPkScript, err := txbuilder.P2WSHScript(cancelWitnessScript)
	if err != nil {
		return 0, err
	}
	status, err := s.deps.Bitcoin.StatusOfScript(ctx, cancelPkScript)
	if err != nil {
		return 0, common.Transient(err)
	}
	if status.Kind != backend.ScriptConfirmed {
		return int64(s.hs.LockParams.PunishTimelock), nil
	}
	return int64(s.hs.LockParams.PunishTimelock) - int64(status.Confirmations), nil
}

// publishPunish broadcasts tx_punish. Because step() can reach this
// directly from a resumed MakerBtcPunishable status (bypassing
// watchCancelOutput's one-shot checks entirely), it re-runs both checks
// itself before broadcasting: whether Taker has since published a refund
// transaction (preferring refund over punish, spec.md §4.4), and whether
// tx_cancel is still actually at punish-timelock depth (guarding against a
// reorg unwinding its confirmations since the status was persisted).
func (s *SwapState) publishPunish(ctx context.Context) (types.MakerStatus, error) {
	status, found, err := s.checkRefundAppeared(ctx)
	if err != nil {
		return 0, err
	}
	if found {
		return status, nil
	}

	remaining, err := s.remainingPunishBlocks(ctx)
	if err != nil {
		return 0, common.Transient(err)
	}
	if remaining > 0 {
		log.Warnf("swap %s: tx_cancel no longer at punish-timelock depth (reorg?), resuming the watch instead of punishing", s.hs.SwapID)
		return types.MakerBtcCancelled, nil
	}

	outs, err := setup.DeriveOutpoints(s.hs.LockParams)
	if err != nil {
		return 0, err
	}
	punishTx, cancelWitnessScript, err := txbuilder.BuildPunishTx(s.hs.LockParams, outs.Cancel)
	if err != nil {
		return 0, err
	}
	sigHash, err := txbuilder.SigHash(punishTx, cancelWitnessScript, outs.Cancel.Value)
	if err != nil {
		return 0, err
	}
	sig, err := adaptor.Sign(s.hs.IdentityKey, sigHash)
	if err != nil {
		return 0, err
	}
	punishTx.TxIn[0].Witness = txbuilder.FinalizeBranchWitness(txbuilder.EncodeSignature(sig), cancelWitnessScript, true)

	if _, _, err := s.deps.Bitcoin.EnsureBroadcasted(ctx, punishTx, "tx_punish"); err != nil {
		return 0, common.Transient(err)
	}
	return types.MakerBtcPunished, nil
}

// --- early refund (tx_lock never confirmed) -----------------------------

func (s *SwapState) publishEarlyRefund(ctx context.Context) (types.MakerStatus, error) {
	earlyRefundTx, lockWitnessScript, err := txbuilder.BuildEarlyRefundTx(s.hs.LockParams)
	if err != nil {
		return 0, err
	}
	sigHash, err := txbuilder.SigHash(earlyRefundTx, lockWitnessScript, s.hs.LockParams.LockValue)
	if err != nil {
		return 0, err
	}
	makerSig, err := adaptor.Sign(s.hs.IdentityKey, sigHash)
	if err != nil {
		return 0, err
	}
	earlyRefundTx.TxIn[0].Witness = txbuilder.FinalizeMultisigWitness(
		txbuilder.EncodeSignature(makerSig), txbuilder.EncodeSignature(s.hs.Sigs.TakerEarlyRefundSig), lockWitnessScript)

	if _, _, err := s.deps.Bitcoin.EnsureBroadcasted(ctx, earlyRefundTx, "tx_early_refund"); err != nil {
		return 0, common.Transient(err)
	}
	return types.MakerBtcEarlyRefunded, nil
}

// --- partial refund: monero recovery and the amnesty lever --------------

func (s *SwapState) handlePartialRefund(ctx context.Context) (types.MakerStatus, error) {
	if !s.deps.ShouldPublishRefundBurn {
		return types.MakerXmrRefundable, nil
	}
	if s.deps.GrantMercy {
		return types.MakerBtcMercyGranted, nil
	}
	if err := s.publishRefundBurn(ctx); err != nil {
		return 0, err
	}
	return types.MakerBtcWithholdPublished, nil
}

func (s *SwapState) publishRefundBurn(ctx context.Context) error {
	outs, err := setup.DeriveOutpoints(s.hs.LockParams)
	if err != nil {
		return err
	}
	burnTx, amnestyWitnessScript, _, err := txbuilder.BuildRefundBurnTx(s.hs.LockParams, outs.Amnesty)
	if err != nil {
		return err
	}
	sigHash, err := txbuilder.SigHash(burnTx, amnestyWitnessScript, outs.Amnesty.Value)
	if err != nil {
		return err
	}
	makerSig, err := adaptor.Sign(s.hs.IdentityKey, sigHash)
	if err != nil {
		return err
	}
	burnTx.TxIn[0].Witness = txbuilder.FinalizeRefundBranchWitness(
		txbuilder.EncodeSignature(makerSig), txbuilder.EncodeSignature(s.hs.Sigs.TakerRefundBurnSig), amnestyWitnessScript)

	if _, _, err := s.deps.Bitcoin.EnsureBroadcasted(ctx, burnTx, "tx_refund_burn"); err != nil {
		return common.Transient(err)
	}
	return nil
}

func (s *SwapState) publishMercy(ctx context.Context) (types.MakerStatus, error) {
	if err := s.publishRefundBurn(ctx); err != nil {
		return 0, err
	}

	outs, err := setup.DeriveOutpoints(s.hs.LockParams)
	if err != nil {
		return 0, err
	}
	finalAmnestyTx, burnWitnessScript, err := txbuilder.BuildFinalAmnestyTx(s.hs.LockParams, outs.Burn)
	if err != nil {
		return 0, err
	}
	sigHash, err := txbuilder.SigHash(finalAmnestyTx, burnWitnessScript, outs.Burn.Value)
	if err != nil {
		return 0, err
	}
	makerSig, err := adaptor.Sign(s.hs.IdentityKey, sigHash)
	if err != nil {
		return 0, err
	}
	finalAmnestyTx.TxIn[0].Witness = txbuilder.FinalizeMultisigWitness(
		txbuilder.EncodeSignature(makerSig), txbuilder.EncodeSignature(s.hs.Sigs.TakerFinalAmnestySig), burnWitnessScript)

	if _, _, err := s.deps.Bitcoin.EnsureBroadcasted(ctx, finalAmnestyTx, "tx_final_amnesty"); err != nil {
		return 0, common.Transient(err)
	}
	return types.MakerBtcMercyPublished, nil
}

func (s *SwapState) waitMercyConfirmed(ctx context.Context) (types.MakerStatus, error) {
	outScript, err := txscript.PayToAddrScript(s.hs.TakerRefundAddress)
	if err != nil {
		return 0, err
	}
	if err := s.waitScriptConfirmed(ctx, outScript); err != nil {
		return 0, err
	}
	return types.MakerBtcMercyConfirmed, nil
}

func (s *SwapState) waitWithholdConfirmed(ctx context.Context) (types.MakerStatus, error) {
	burnWitnessScript, err := txbuilder.MultisigWitnessScript(s.hs.LockParams.A, s.hs.LockParams.B)
	if err != nil {
		return 0, err
	}
	burnPkScript, err := txbuilder.P2WSHScript(burnWitnessScript)
	if err != nil {
		return 0, err
	}
	if err := s.waitScriptConfirmed(ctx, burnPkScript); err != nil {
		return 0, err
	}
	return types.MakerBtcWithholdConfirmed, nil
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
				return common.Transient(errors.New("maker: subscription closed"))
			}
			if update.Kind == backend.ScriptConfirmed && update.Confirmations >= s.deps.Cfg.BitcoinFinalityConfirmations {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// --- monero recovery -----------------------------------------------------

func (s *SwapState) sweepRecoveredMonero(ctx context.Context) error {
	if s.takerSpendShare == nil {
		return fmt.Errorf("maker: no recovered taker spend share to sweep with")
	}
	jointSpendKey := mcrypto.SumPrivateSpendKeys(s.hs.KeysAndProof.MoneroKeyPair.SpendKey, s.takerSpendShare)

	wallet, err := s.deps.Monero.SwapWalletSpendable(ctx, s.hs.SwapID, jointSpendKey, s.hs.JointViewKey, s.xmrLockTxID)
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

func (s *SwapState) sweepRefundedMonero(ctx context.Context) (types.MakerStatus, error) {
	if err := s.sweepRecoveredMonero(ctx); err != nil {
		return 0, err
	}
	return types.MakerXmrRefunded, nil
}

// --- cooperative redeem handling (Maker side) ---------------------------

// HandleCooperativeRedeemRequest answers a Taker request for Maker's
// adaptor secret s_a after Maker has already punished Taker with
// tx_punish. Maker has nothing left to protect at that point, so honoring
// the request is a pure goodwill gesture (spec.md §4.6).
func (s *SwapState) HandleCooperativeRedeemRequest(req IncomingCooperativeRedeemRequest) error {
	return channels.HandleRequest(req.Stream, req.Req, func(id types.SwapID) *message.CooperativeRedeemResponse {
		if id != s.hs.SwapID {
			return &message.CooperativeRedeemResponse{SwapID: id, Fulfilled: false, RejectReason: message.RejectedNoSwapFound}
		}
		if s.status != types.MakerBtcPunished {
			return &message.CooperativeRedeemResponse{SwapID: id, Fulfilled: false, RejectReason: message.RejectedSwapNotPunished}
		}
		sa := s.hs.KeysAndProof.BtcSecp256k1KeyPair.Bytes()
		return &message.CooperativeRedeemResponse{
			SwapID:    id,
			Fulfilled: true,
			SA:        sa[:],
			TransferProof: &message.TransferProofMsg{
				SwapID: id,
				TxID:   s.xmrLockTxID,
				TxKey:  s.lockTxKey,
				Height: s.restoreHeight,
			},
		}
	})
}
