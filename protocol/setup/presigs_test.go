package setup

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
	"github.com/eigenswap/xmr-btc-swap/txbuilder"
)

func testSetupAddr(t *testing.T, net *chaincfg.Params) btcutil.Address {
	t.Helper()
	k, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(k.Public().CompressedBytes()), net)
	require.NoError(t, err)
	return addr
}

func testSetupLockParams(t *testing.T, maker, taker *secp256k1.PrivateKey, amnesty btcutil.Amount) *txbuilder.LockParams {
	t.Helper()
	net := &chaincfg.RegressionNetParams
	return &txbuilder.LockParams{
		Network:                 net,
		A:                       maker.Public(),
		B:                       taker.Public(),
		MakerPunishKey:          maker.Public(),
		MakerRedeemAddr:         testSetupAddr(t, net),
		TakerRefundAddr:         testSetupAddr(t, net),
		LockAmount:              1_000_000,
		LockValue:               1_000_000,
		AmnestyAmount:           amnesty,
		FeeRate:                 10,
		CancelTimelock:          144,
		PunishTimelock:          72,
		RemainingRefundTimelock: 288,
	}
}

func TestSignVerifyMakerPresigsRoundTrip(t *testing.T) {
	maker, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	taker, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	takerEncKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	p := testSetupLockParams(t, maker, taker, 50_000)

	msg, outs, err := signMakerPresigs(p, maker, takerEncKey.Public())
	require.NoError(t, err)
	require.NoError(t, msg.Validate())

	verifiedOuts, err := verifyMakerPresigs(p, maker.Public(), takerEncKey.Public(), msg)
	require.NoError(t, err)
	require.Equal(t, outs.cancel, verifiedOuts.cancel)
	require.Equal(t, outs.amnesty, verifiedOuts.amnesty)
}

func TestVerifyMakerPresigsRejectsWrongEncryptionKey(t *testing.T) {
	maker, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	taker, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	takerEncKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	wrongEncKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	p := testSetupLockParams(t, maker, taker, 50_000)
	msg, _, err := signMakerPresigs(p, maker, takerEncKey.Public())
	require.NoError(t, err)

	_, err = verifyMakerPresigs(p, maker.Public(), wrongEncKey.Public(), msg)
	require.Error(t, err)
}

func TestSignVerifyTakerPresigsWithAmnesty(t *testing.T) {
	maker, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	taker, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	p := testSetupLockParams(t, maker, taker, 50_000)
	outs, err := derivePresignedOutpoints(p)
	require.NoError(t, err)

	msg, err := signTakerPresigs(p, taker, outs)
	require.NoError(t, err)
	require.NoError(t, msg.Validate())
	require.NotEmpty(t, msg.RefundAmnestySignature)
	require.NotEmpty(t, msg.RefundBurnSignature)
	require.NotEmpty(t, msg.FinalAmnestySignature)

	require.NoError(t, verifyTakerPresigs(p, taker.Public(), msg, outs))
}

// TestTakerPresigsZeroAmnesty exercises spec.md §3.4's zero-amnesty edge
// case: the partial-refund branch and everything downstream of it never
// gets built or signed.
func TestTakerPresigsZeroAmnesty(t *testing.T) {
	maker, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	taker, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	p := testSetupLockParams(t, maker, taker, 0)
	outs, err := derivePresignedOutpoints(p)
	require.NoError(t, err)
	require.Equal(t, txbuilder.Outpoint{}, outs.amnesty)
	require.Equal(t, txbuilder.Outpoint{}, outs.burn)

	msg, err := signTakerPresigs(p, taker, outs)
	require.NoError(t, err)
	require.NoError(t, msg.Validate())
	require.Empty(t, msg.RefundAmnestySignature)
	require.Empty(t, msg.RefundBurnSignature)
	require.Empty(t, msg.FinalAmnestySignature)

	require.NoError(t, verifyTakerPresigs(p, taker.Public(), msg, outs))
}

func TestVerifyTakerPresigsRejectsTamperedSignature(t *testing.T) {
	maker, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	taker, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	p := testSetupLockParams(t, maker, taker, 0)
	outs, err := derivePresignedOutpoints(p)
	require.NoError(t, err)

	msg, err := signTakerPresigs(p, taker, outs)
	require.NoError(t, err)

	other, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	tampered, err := signTakerPresigs(p, other, outs)
	require.NoError(t, err)
	msg.PunishSignature = tampered.PunishSignature

	require.Error(t, verifyTakerPresigs(p, taker.Public(), msg, outs))
}
