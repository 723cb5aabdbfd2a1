package monero

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/crypto/edscalar"
	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

func TestPrivateSpendKeyFromSecp256k1(t *testing.T) {
	k, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	s, err := edscalar.FromSecp256k1(k)
	require.NoError(t, err)

	spend := NewPrivateSpendKeyFromScalar(s)
	require.NotNil(t, spend.Public())
}

func TestSumSpendAndViewKeys(t *testing.T) {
	aK, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	bK, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	sa, err := edscalar.FromSecp256k1(aK)
	require.NoError(t, err)
	sb, err := edscalar.FromSecp256k1(bK)
	require.NoError(t, err)

	view, err := NewPrivateViewKey()
	require.NoError(t, err)

	makerPair := &PrivateKeyPair{SpendKey: NewPrivateSpendKeyFromScalar(sa), ViewKey: view}
	takerPair := &PrivateKeyPair{SpendKey: NewPrivateSpendKeyFromScalar(sb), ViewKey: view}

	joint := SumSpendAndViewKeys(makerPair.Public(), takerPair.Public())

	combinedSpend := SumPrivateSpendKeys(makerPair.SpendKey, takerPair.SpendKey)
	require.Equal(t, joint.SpendKey.Bytes(), combinedSpend.Public().Bytes())
}

func TestNewJointAddress(t *testing.T) {
	aK, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	bK, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	sa, err := edscalar.FromSecp256k1(aK)
	require.NoError(t, err)
	sb, err := edscalar.FromSecp256k1(bK)
	require.NoError(t, err)

	view, err := NewPrivateViewKey()
	require.NoError(t, err)

	makerPair := (&PrivateKeyPair{SpendKey: NewPrivateSpendKeyFromScalar(sa), ViewKey: view}).Public()
	takerPair := (&PrivateKeyPair{SpendKey: NewPrivateSpendKeyFromScalar(sb), ViewKey: view}).Public()

	addr := NewJointAddress(NetworkMainnet, makerPair, takerPair)
	require.NotNil(t, addr.Keys)
}
