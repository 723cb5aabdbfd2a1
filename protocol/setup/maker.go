package setup

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/eigenswap/xmr-btc-swap/common"
	"github.com/eigenswap/xmr-btc-swap/common/types"
	mcrypto "github.com/eigenswap/xmr-btc-swap/crypto/monero"
	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
	"github.com/eigenswap/xmr-btc-swap/net"
	"github.com/eigenswap/xmr-btc-swap/net/message"
	protocolpkg "github.com/eigenswap/xmr-btc-swap/protocol"
	"github.com/eigenswap/xmr-btc-swap/txbuilder"
)

// MakerParams is what the Maker's driver supplies to RunMaker before
// accepting an inbound setup stream. Offer carries the amounts already
// agreed out-of-band (spec.md §1's price-discovery layer is out of scope);
// RunMaker checks the inbound SwapInitiate's protocol version, network and
// fee schedule against these params, runs AcceptOffer on Offer's amounts,
// and drives the handshake. SwapInitiate carries no amounts, so Offer is
// not compared against anything the Taker sends.
type MakerParams struct {
	Cfg     *common.Config
	Network types.Network
	Offer   Offer
	Fees    message.FeeSchedule

	RedeemAddress btcutil.Address

	// AcceptOffer validates a proposed swap's amount against this Maker's
	// policy (minimum/maximum/balance/accepting-new-swaps), returning one
	// of common's ErrNoSwapsAccepted/ErrAmountBelowMinimum/
	// ErrAmountAboveMaximum/ErrBalanceTooLow on rejection.
	AcceptOffer func(btcAmount btcutil.Amount, xmrAmount uint64) error

	// AmnestyAmount computes this Maker's declared amnesty carve-out for a
	// given lock amount (spec.md §3.2's btc_amnesty_amount); returning 0
	// disables the partial-refund branch for this swap (spec.md §3.4's
	// zero-amnesty edge case).
	AmnestyAmount func(btcAmount btcutil.Amount) btcutil.Amount
}

// RunMaker drives setup messages 0-4 from the Maker's side of stream, the
// mirror image of RunTaker: SwapInitiate (received), SetupResponse (sent),
// LockPSBT (received), MakerPresigs (sent), TakerPresigs (received).
func RunMaker(ctx context.Context, stream net.Stream, p *MakerParams) (*Handshake, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Cfg.SetupNegotiationTimeout)
	defer cancel()

	initiate, err := recvTyped[*message.SwapInitiate](ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("receiving swap initiate: %w", err)
	}
	if err := checkVersion(initiate.ProtocolVersion); err != nil {
		return nil, err
	}
	if err := initiate.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	if initiate.Network != p.Network {
		return nil, common.ErrBlockchainNetworkMismatch
	}
	if initiate.Fees != p.Fees {
		return nil, fmt.Errorf("%w: fee schedule disagreement", common.ErrBlockchainNetworkMismatch)
	}
	if p.AcceptOffer != nil {
		if err := p.AcceptOffer(p.Offer.BtcAmount, p.Offer.XmrAmount); err != nil {
			return nil, err
		}
	}

	takerProof, err := unmarshalDLEQProof(initiate.DLEQProofB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	verified, err := protocolpkg.VerifyKeysAndProof(takerProof, initiate.SBtcB, initiate.SXmrB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	takerIdentityPub, err := secp256k1.NewPublicKeyFromBytes(initiate.B)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing taker identity key: %v", common.ErrProtocol, err)
	}
	takerViewKey, err := mcrypto.NewPrivateViewKeyFromBytes(initiate.ViewKeyB)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing taker view key: %v", common.ErrProtocol, err)
	}
	takerRefundAddr, err := btcutil.DecodeAddress(initiate.RefundAddress, p.Cfg.BitcoinChainParams)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding taker refund address: %v", common.ErrProtocol, err)
	}

	amnestyAmount := btcutil.Amount(0)
	if p.AmnestyAmount != nil {
		amnestyAmount = p.AmnestyAmount(p.Offer.BtcAmount)
	}

	identityKey, err := secp256k1.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating maker identity key: %w", err)
	}
	keys, err := protocolpkg.GenerateKeysAndProof()
	if err != nil {
		return nil, fmt.Errorf("generating maker swap keys: %w", err)
	}
	proofBytes, err := keys.DLEqProof.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling dleq proof: %w", err)
	}
	ownKeyPair := keys.MoneroKeyPair.Public()

	punishAddr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(identityKey.Public().CompressedBytes()), p.Cfg.BitcoinChainParams)
	if err != nil {
		return nil, fmt.Errorf("deriving punish address: %w", err)
	}

	resp := &message.SetupResponse{
		SwapID:          initiate.SwapID,
		ProtocolVersion: ProtocolVersion,
		A:               identityKey.Public().CompressedBytes(),
		SBtcA:           keys.BtcSecp256k1KeyPair.Public().CompressedBytes(),
		SXmrA:           sliceFrom32(ownKeyPair.SpendKey.Bytes()),
		DLEQProofA:      proofBytes,
		ViewKeyA:        sliceFrom32(keys.MoneroKeyPair.ViewKey.Bytes()),
		RedeemAddress:   p.RedeemAddress.EncodeAddress(),
		PunishAddress:   punishAddr.EncodeAddress(),
		AmnestyAmount:   uint64(amnestyAmount),
		Fees:            p.Fees,
	}
	if err := sendCtx(ctx, stream, resp); err != nil {
		return nil, fmt.Errorf("sending setup response: %w", err)
	}

	lockPSBTMsg, err := recvTyped[*message.LockPSBT](ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("receiving lock psbt: %w", err)
	}
	if lockPSBTMsg.SwapID != initiate.SwapID {
		return nil, fmt.Errorf("%w: lock psbt carries the wrong swap id", common.ErrProtocol)
	}
	if err := lockPSBTMsg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}

	lockScript, err := txbuilder.LockWitnessScript(&txbuilder.LockParams{
		Network: p.Cfg.BitcoinChainParams, A: identityKey.Public(), B: takerIdentityPub,
	})
	if err != nil {
		return nil, err
	}
	lockTxID, lockVout, err := lockOutpoint(lockPSBTMsg.PSBT, lockScript, p.Offer.BtcAmount)
	if err != nil {
		return nil, err
	}

	lockParams := buildLockParams(
		p.Cfg, identityKey.Public(), takerIdentityPub,
		p.RedeemAddress, takerRefundAddr,
		p.Offer.BtcAmount, amnestyAmount,
		p.Fees, lockTxID, lockVout,
	)

	makerPresigsMsg, outs, err := signMakerPresigs(lockParams, identityKey, verified.Secp256k1PublicKey)
	if err != nil {
		return nil, err
	}
	makerPresigsMsg.SwapID = initiate.SwapID
	if err := sendCtx(ctx, stream, makerPresigsMsg); err != nil {
		return nil, fmt.Errorf("sending maker presigs: %w", err)
	}

	takerPresigsMsg, err := recvTyped[*message.TakerPresigs](ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("receiving taker presigs: %w", err)
	}
	if takerPresigsMsg.SwapID != initiate.SwapID {
		return nil, fmt.Errorf("%w: taker presigs carry the wrong swap id", common.ErrProtocol)
	}
	if err := takerPresigsMsg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	if err := verifyTakerPresigs(lockParams, takerIdentityPub, takerPresigsMsg, outs); err != nil {
		return nil, err
	}

	sigs, err := assembleSigs(makerPresigsMsg, takerPresigsMsg)
	if err != nil {
		return nil, err
	}

	jointViewKey := mcrypto.SumPrivateViewKeys(keys.MoneroKeyPair.ViewKey, takerViewKey)
	jointAddress := mcrypto.NewJointAddress(
		networkToMoneroNetwork(p.Network),
		ownKeyPair,
		&mcrypto.PublicKeyPair{SpendKey: verified.MoneroPublicKey, ViewKey: takerViewKey.Public()},
	)

	return &Handshake{
		SwapID:                  initiate.SwapID,
		Network:                 p.Network,
		Fees:                    p.Fees,
		IdentityKey:             identityKey,
		KeysAndProof:            keys,
		CounterpartyIdentityPub: takerIdentityPub,
		CounterpartyVerified:    verified,
		CounterpartyViewKey:     takerViewKey,
		JointViewKey:            jointViewKey,
		JointMoneroAddress:      jointAddress,
		RedeemAddress:           p.RedeemAddress,
		PunishAddress:           punishAddr,
		TakerRefundAddress:      takerRefundAddr,
		LockParams:              lockParams,
		Sigs:                    *sigs,
	}, nil
}
