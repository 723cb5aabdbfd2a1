package setup

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/common"
	"github.com/eigenswap/xmr-btc-swap/common/types"
	"github.com/eigenswap/xmr-btc-swap/net/message"
	"github.com/eigenswap/xmr-btc-swap/txbuilder"
)

// pairedStream is an in-process net.Stream, two of which share a pair of
// channels so messages sent on one arrive on the other's Receive.
type pairedStream struct {
	out chan message.Message
	in  chan message.Message
}

func (s *pairedStream) Send(msg message.Message) error {
	s.out <- msg
	return nil
}

func (s *pairedStream) Receive() (message.Message, error) {
	return <-s.in, nil
}

func (s *pairedStream) Close() error { return nil }

func newPairedStreams() (*pairedStream, *pairedStream) {
	ab := make(chan message.Message, 16)
	ba := make(chan message.Message, 16)
	return &pairedStream{out: ab, in: ba}, &pairedStream{out: ba, in: ab}
}

// buildTestLockPSBT fakes coin selection: it funds a one-input-one-output
// PSBT paying exactly lockScript/amount, which is all lockOutpoint needs.
func buildTestLockPSBT(lockScript []byte, amount btcutil.Amount) ([]byte, error) {
	pkScript, err := txbuilder.P2WSHScript(lockScript)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0xaa}, Index: 0}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(int64(amount), pkScript))

	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pkt.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func testSetupConfig() *common.Config {
	cfg := common.ConfigDefaultsForEnv(common.Development)
	cfg.BitcoinChainParams = &chaincfg.RegressionNetParams
	return cfg
}

// TestRunMakerRunTakerHandshake drives both sides of the five-message setup
// over a pair of in-process streams and checks the handshakes agree on
// everything that must match (spec.md §4.3's post-setup guarantees).
func TestRunMakerRunTakerHandshake(t *testing.T) {
	cfg := testSetupConfig()
	swapID := types.NewSwapID()
	fees := message.FeeSchedule{
		FeeRatePerVByte:         10,
		CancelTimelock:          144,
		PunishTimelock:          72,
		RemainingRefundTimelock: 288,
	}
	offer := Offer{BtcAmount: 1_000_000, XmrAmount: 2_000_000_000_000}

	makerStream, takerStream := newPairedStreams()
	makerRedeem := testSetupAddr(t, cfg.BitcoinChainParams)
	takerRefund := testSetupAddr(t, cfg.BitcoinChainParams)

	makerParams := &MakerParams{
		Cfg:           cfg,
		Network:       types.NetworkDevelopment,
		Offer:         offer,
		Fees:          fees,
		RedeemAddress: makerRedeem,
		AcceptOffer: func(btcAmount btcutil.Amount, xmrAmount uint64) error {
			return nil
		},
		AmnestyAmount: func(btcAmount btcutil.Amount) btcutil.Amount {
			return btcAmount / 20
		},
	}
	takerParams := &TakerParams{
		Cfg:           cfg,
		SwapID:        swapID,
		Offer:         offer,
		Fees:          fees,
		Network:       types.NetworkDevelopment,
		RefundAddress: takerRefund,
		BuildLockPSBT: buildTestLockPSBT,
	}

	var makerHS, takerHS *Handshake
	var makerErr, takerErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		makerHS, makerErr = RunMaker(context.Background(), makerStream, makerParams)
	}()
	go func() {
		defer wg.Done()
		takerHS, takerErr = RunTaker(context.Background(), takerStream, takerParams)
	}()
	wg.Wait()

	require.NoError(t, makerErr)
	require.NoError(t, takerErr)

	require.Equal(t, swapID, makerHS.SwapID)
	require.Equal(t, swapID, takerHS.SwapID)

	require.Equal(t, makerHS.IdentityKey.Public().CompressedBytes(), takerHS.CounterpartyIdentityPub.CompressedBytes())
	require.Equal(t, takerHS.IdentityKey.Public().CompressedBytes(), makerHS.CounterpartyIdentityPub.CompressedBytes())

	require.Equal(t, makerHS.KeysAndProof.MoneroKeyPair.SpendKey.Public().Bytes(), takerHS.CounterpartyVerified.MoneroPublicKey.Bytes())
	require.Equal(t, takerHS.KeysAndProof.MoneroKeyPair.SpendKey.Public().Bytes(), makerHS.CounterpartyVerified.MoneroPublicKey.Bytes())

	require.Equal(t, makerHS.JointMoneroAddress.Keys.SpendKey.Bytes(), takerHS.JointMoneroAddress.Keys.SpendKey.Bytes())
	require.Equal(t, makerHS.JointMoneroAddress.Keys.ViewKey.Bytes(), takerHS.JointMoneroAddress.Keys.ViewKey.Bytes())
	require.Equal(t, makerHS.JointViewKey.Bytes(), takerHS.JointViewKey.Bytes())

	require.Equal(t, makerHS.LockParams.AmnestyAmount, takerHS.LockParams.AmnestyAmount)
	require.Equal(t, offer.BtcAmount/20, makerHS.LockParams.AmnestyAmount)

	require.NotNil(t, makerHS.Sigs.TakerRefundAmnestySig)
	require.NotNil(t, takerHS.Sigs.TakerRefundAmnestySig)
	require.NotNil(t, makerHS.Sigs.MakerFullRefundEncSig)
	require.NotNil(t, takerHS.Sigs.MakerFullRefundEncSig)
}

// TestRunMakerRunTakerZeroAmnesty exercises the zero-amnesty edge case
// end-to-end: neither side exchanges the three amnesty-path signatures.
func TestRunMakerRunTakerZeroAmnesty(t *testing.T) {
	cfg := testSetupConfig()
	swapID := types.NewSwapID()
	fees := message.FeeSchedule{
		FeeRatePerVByte:         10,
		CancelTimelock:          144,
		PunishTimelock:          72,
		RemainingRefundTimelock: 288,
	}
	offer := Offer{BtcAmount: 1_000_000, XmrAmount: 2_000_000_000_000}

	makerStream, takerStream := newPairedStreams()
	makerRedeem := testSetupAddr(t, cfg.BitcoinChainParams)
	takerRefund := testSetupAddr(t, cfg.BitcoinChainParams)

	makerParams := &MakerParams{
		Cfg:           cfg,
		Network:       types.NetworkDevelopment,
		Offer:         offer,
		Fees:          fees,
		RedeemAddress: makerRedeem,
	}
	takerParams := &TakerParams{
		Cfg:           cfg,
		SwapID:        swapID,
		Offer:         offer,
		Fees:          fees,
		Network:       types.NetworkDevelopment,
		RefundAddress: takerRefund,
		BuildLockPSBT: buildTestLockPSBT,
	}

	var makerHS, takerHS *Handshake
	var makerErr, takerErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		makerHS, makerErr = RunMaker(context.Background(), makerStream, makerParams)
	}()
	go func() {
		defer wg.Done()
		takerHS, takerErr = RunTaker(context.Background(), takerStream, takerParams)
	}()
	wg.Wait()

	require.NoError(t, makerErr)
	require.NoError(t, takerErr)
	require.Equal(t, btcutil.Amount(0), makerHS.LockParams.AmnestyAmount)
	require.Nil(t, makerHS.Sigs.TakerRefundAmnestySig)
	require.Nil(t, takerHS.Sigs.TakerRefundAmnestySig)
	require.Nil(t, makerHS.Sigs.TakerRefundBurnSig)
	require.Nil(t, makerHS.Sigs.TakerFinalAmnestySig)
}

func TestRunMakerRejectsWrongFeeSchedule(t *testing.T) {
	cfg := testSetupConfig()
	swapID := types.NewSwapID()
	offer := Offer{BtcAmount: 1_000_000, XmrAmount: 2_000_000_000_000}

	makerStream, takerStream := newPairedStreams()
	makerRedeem := testSetupAddr(t, cfg.BitcoinChainParams)
	takerRefund := testSetupAddr(t, cfg.BitcoinChainParams)

	makerParams := &MakerParams{
		Cfg:     cfg,
		Network: types.NetworkDevelopment,
		Offer:   offer,
		Fees: message.FeeSchedule{
			FeeRatePerVByte: 20, CancelTimelock: 144, PunishTimelock: 72, RemainingRefundTimelock: 288,
		},
		RedeemAddress: makerRedeem,
	}
	takerParams := &TakerParams{
		Cfg:    cfg,
		SwapID: swapID,
		Offer:  offer,
		Fees: message.FeeSchedule{
			FeeRatePerVByte: 10, CancelTimelock: 144, PunishTimelock: 72, RemainingRefundTimelock: 288,
		},
		Network:       types.NetworkDevelopment,
		RefundAddress: takerRefund,
		BuildLockPSBT: buildTestLockPSBT,
	}

	var makerErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, makerErr = RunMaker(context.Background(), makerStream, makerParams)
	}()
	go func() {
		defer wg.Done()
		_, _ = RunTaker(context.Background(), takerStream, takerParams)
	}()
	wg.Wait()

	require.ErrorIs(t, makerErr, common.ErrBlockchainNetworkMismatch)
}
