package txbuilder

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

func testAddr(t *testing.T, net *chaincfg.Params) btcutil.Address {
	t.Helper()
	k, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	hash := btcutil.Hash160(k.Public().CompressedBytes())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, net)
	require.NoError(t, err)
	return addr
}

func testParams(t *testing.T) *LockParams {
	t.Helper()
	a, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	b, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	punish, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	net := &chaincfg.RegressionNetParams
	return &LockParams{
		Network:                 net,
		A:                       a.Public(),
		B:                       b.Public(),
		MakerPunishKey:          punish.Public(),
		MakerRedeemAddr:         testAddr(t, net),
		TakerRefundAddr:         testAddr(t, net),
		LockAmount:              1_000_000,
		LockValue:               1_000_000,
		AmnestyAmount:           50_000,
		FeeRate:                10,
		CancelTimelock:          144,
		PunishTimelock:          72,
		RemainingRefundTimelock: 288,
	}
}

func TestBuildCancelTxTimelockComposition(t *testing.T) {
	p := testParams(t)
	tx, _, _, err := BuildCancelTx(p)
	require.NoError(t, err)
	// Invariant 4: tx_cancel itself encodes cancel_timelock via BIP68
	// nSequence; tx_punish layers punish_timelock on top via its output
	// script's CSV branch, composing to cancel_timelock+punish_timelock.
	require.Equal(t, p.CancelTimelock, tx.TxIn[0].Sequence)
}

func TestBuildPunishTxRequiresPunishTimelockSequence(t *testing.T) {
	p := testParams(t)
	_, _, cancelOut, err := BuildCancelTx(p)
	require.NoError(t, err)

	punishTx, _, err := BuildPunishTx(p, Outpoint{Value: btcutil.Amount(cancelOut.Value)})
	require.NoError(t, err)
	require.Equal(t, p.PunishTimelock, punishTx.TxIn[0].Sequence)
}

func TestBuildPartialRefundTxConservesValue(t *testing.T) {
	p := testParams(t)
	cancelOut := Outpoint{Value: 900_000}

	tx, _, err := BuildPartialRefundTx(p, cancelOut)
	require.NoError(t, err)
	require.Len(t, tx.TxOut, 2)

	fee := p.feeFor(vsizeOneInTwoOut)
	total := btcutil.Amount(tx.TxOut[0].Value) + btcutil.Amount(tx.TxOut[1].Value) + fee
	require.Equal(t, cancelOut.Value, total)
}

func TestBuildPartialRefundTxRejectsAmnestyExceedingCancelValue(t *testing.T) {
	p := testParams(t)
	p.AmnestyAmount = 2_000_000
	_, _, err := BuildPartialRefundTx(p, Outpoint{Value: 900_000})
	require.Error(t, err)
}

func TestBuildRedeemTxSubtractsFee(t *testing.T) {
	p := testParams(t)
	p.LockTxID = [32]byte{1, 2, 3}
	tx, witnessScript, err := BuildRedeemTx(p)
	require.NoError(t, err)
	require.NotEmpty(t, witnessScript)
	require.Less(t, tx.TxOut[0].Value, int64(p.LockValue))
}
