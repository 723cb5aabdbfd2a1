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

// TakerParams is what the Taker's driver supplies to RunTaker before
// opening a setup stream. Constructing LockPSBT, including UTXO selection,
// is the caller's responsibility: coin selection is out of scope here.
type TakerParams struct {
	Cfg     *common.Config
	SwapID  types.SwapID
	Offer   Offer
	Fees    message.FeeSchedule
	Network types.Network

	RefundAddress btcutil.Address

	// BuildLockPSBT constructs and funds (but does not fully sign) the PSBT
	// paying lockScript with amount. It is called only once Maker's identity
	// key is known (after message 1), since that is what determines the
	// actual 2-of-2 lock script this PSBT must pay; coin selection itself is
	// the caller's responsibility.
	BuildLockPSBT func(lockScript []byte, amount btcutil.Amount) ([]byte, error)
}

// RunTaker drives setup messages 0-4 from the Taker's side of stream:
// SwapInitiate (sent), SetupResponse (received), LockPSBT (sent),
// MakerPresigs (received), TakerPresigs (sent). It returns once every
// invariant in spec.md §4.3 has been checked and the full presigned
// transaction graph is ready, or the negotiation budget elapses.
func RunTaker(ctx context.Context, stream net.Stream, p *TakerParams) (*Handshake, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Cfg.SetupNegotiationTimeout)
	defer cancel()

	identityKey, err := secp256k1.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating taker identity key: %w", err)
	}
	keys, err := protocolpkg.GenerateKeysAndProof()
	if err != nil {
		return nil, fmt.Errorf("generating taker swap keys: %w", err)
	}
	proofBytes, err := keys.DLEqProof.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling dleq proof: %w", err)
	}
	ownKeyPair := keys.MoneroKeyPair.Public()

	initiate := &message.SwapInitiate{
		SwapID:          p.SwapID,
		ProtocolVersion: ProtocolVersion,
		Network:         p.Network,
		B:               identityKey.Public().CompressedBytes(),
		SBtcB:           keys.BtcSecp256k1KeyPair.Public().CompressedBytes(),
		SXmrB:           sliceFrom32(ownKeyPair.SpendKey.Bytes()),
		DLEQProofB:      proofBytes,
		ViewKeyB:        sliceFrom32(keys.MoneroKeyPair.ViewKey.Bytes()),
		RefundAddress:   p.RefundAddress.EncodeAddress(),
		Fees:            p.Fees,
	}
	if err := sendCtx(ctx, stream, initiate); err != nil {
		return nil, fmt.Errorf("sending swap initiate: %w", err)
	}

	resp, err := recvTyped[*message.SetupResponse](ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("receiving setup response: %w", err)
	}
	if resp.SwapID != p.SwapID {
		return nil, fmt.Errorf("%w: setup response carries the wrong swap id", common.ErrProtocol)
	}
	if err := checkVersion(resp.ProtocolVersion); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	if resp.Fees != p.Fees {
		return nil, fmt.Errorf("%w: fee schedule disagreement", common.ErrBlockchainNetworkMismatch)
	}

	makerProof, err := unmarshalDLEQProof(resp.DLEQProofA)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	verified, err := protocolpkg.VerifyKeysAndProof(makerProof, resp.SBtcA, resp.SXmrA)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	makerIdentityPub, err := secp256k1.NewPublicKeyFromBytes(resp.A)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing maker identity key: %v", common.ErrProtocol, err)
	}
	makerViewKey, err := mcrypto.NewPrivateViewKeyFromBytes(resp.ViewKeyA)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing maker view key: %v", common.ErrProtocol, err)
	}
	redeemAddr, err := btcutil.DecodeAddress(resp.RedeemAddress, p.Cfg.BitcoinChainParams)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding maker redeem address: %v", common.ErrProtocol, err)
	}
	punishAddr, err := btcutil.DecodeAddress(resp.PunishAddress, p.Cfg.BitcoinChainParams)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding maker punish address: %v", common.ErrProtocol, err)
	}
	if err := checkPunishAddressMatchesKey(punishAddr, makerIdentityPub); err != nil {
		return nil, err
	}
	amnestyAmount := btcutil.Amount(resp.AmnestyAmount)
	if amnestyAmount < 0 || amnestyAmount >= p.Offer.BtcAmount {
		return nil, fmt.Errorf("%w: maker declared an invalid amnesty amount", common.ErrProtocol)
	}

	jointViewKey := mcrypto.SumPrivateViewKeys(keys.MoneroKeyPair.ViewKey, makerViewKey)
	jointAddress := mcrypto.NewJointAddress(
		networkToMoneroNetwork(p.Network),
		&mcrypto.PublicKeyPair{SpendKey: verified.MoneroPublicKey, ViewKey: makerViewKey.Public()},
		ownKeyPair,
	)

	lockScript, err := txbuilder.LockWitnessScript(&txbuilder.LockParams{
		Network: p.Cfg.BitcoinChainParams, A: makerIdentityPub, B: identityKey.Public(),
	})
	if err != nil {
		return nil, err
	}
	lockPSBT, err := p.BuildLockPSBT(lockScript, p.Offer.BtcAmount)
	if err != nil {
		return nil, fmt.Errorf("building lock psbt: %w", err)
	}
	lockTxID, lockVout, err := lockOutpoint(lockPSBT, lockScript, p.Offer.BtcAmount)
	if err != nil {
		return nil, err
	}

	lockParams := buildLockParams(
		p.Cfg, makerIdentityPub, identityKey.Public(),
		redeemAddr, p.RefundAddress,
		p.Offer.BtcAmount, amnestyAmount,
		resp.Fees, lockTxID, lockVout,
	)

	lockPSBTMsg := &message.LockPSBT{SwapID: p.SwapID, PSBT: lockPSBT}
	if err := sendCtx(ctx, stream, lockPSBTMsg); err != nil {
		return nil, fmt.Errorf("sending lock psbt: %w", err)
	}

	makerPresigs, err := recvTyped[*message.MakerPresigs](ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("receiving maker presigs: %w", err)
	}
	if makerPresigs.SwapID != p.SwapID {
		return nil, fmt.Errorf("%w: maker presigs carry the wrong swap id", common.ErrProtocol)
	}
	if err := makerPresigs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}

	outs, err := verifyMakerPresigs(lockParams, makerIdentityPub, keys.BtcSecp256k1KeyPair.Public(), makerPresigs)
	if err != nil {
		return nil, err
	}

	takerPresigsMsg, err := signTakerPresigs(lockParams, identityKey, outs)
	if err != nil {
		return nil, err
	}
	takerPresigsMsg.SwapID = p.SwapID
	if err := sendCtx(ctx, stream, takerPresigsMsg); err != nil {
		return nil, fmt.Errorf("sending taker presigs: %w", err)
	}

	sigs, err := assembleSigs(makerPresigs, takerPresigsMsg)
	if err != nil {
		return nil, err
	}

	return &Handshake{
		SwapID:                  p.SwapID,
		Network:                 p.Network,
		Fees:                    resp.Fees,
		IdentityKey:             identityKey,
		KeysAndProof:            keys,
		CounterpartyIdentityPub: makerIdentityPub,
		CounterpartyVerified:    verified,
		CounterpartyViewKey:     makerViewKey,
		JointViewKey:            jointViewKey,
		JointMoneroAddress:      jointAddress,
		RedeemAddress:           redeemAddr,
		PunishAddress:           punishAddr,
		TakerRefundAddress:      p.RefundAddress,
		LockParams:              lockParams,
		LockPSBT:                lockPSBT,
		Sigs:                    *sigs,
	}, nil
}

func sliceFrom32(b [32]byte) []byte {
	out := make([]byte, 32)
	copy(out, b[:])
	return out
}
