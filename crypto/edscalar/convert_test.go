package edscalar

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

func TestFromSecp256k1Deterministic(t *testing.T) {
	k, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	s1, err := FromSecp256k1(k)
	require.NoError(t, err)
	s2, err := FromSecp256k1(k)
	require.NoError(t, err)

	require.Equal(t, Bytes32(s1), Bytes32(s2))
}

func TestAddCommutative(t *testing.T) {
	a, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	b, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	sa, err := FromSecp256k1(a)
	require.NoError(t, err)
	sb, err := FromSecp256k1(b)
	require.NoError(t, err)

	require.Equal(t, Bytes32(Add(sa, sb)), Bytes32(Add(sb, sa)))
}
