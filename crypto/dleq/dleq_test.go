package dleq

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/crypto/edscalar"
	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

func TestProveVerifyRoundTrip(t *testing.T) {
	k, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	s, err := edscalar.FromSecp256k1(k)
	require.NoError(t, err)

	proof, secpPub, edPub, err := Prove(s)
	require.NoError(t, err)
	require.NoError(t, Verify(proof, secpPub, edPub))
}

func TestVerifyRejectsWrongPublicKey(t *testing.T) {
	k, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	s, err := edscalar.FromSecp256k1(k)
	require.NoError(t, err)

	proof, secpPub, _, err := Prove(s)
	require.NoError(t, err)

	other, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	otherS, err := edscalar.FromSecp256k1(other)
	require.NoError(t, err)
	_, _, wrongEdPub, err := Prove(otherS)
	require.NoError(t, err)

	require.Error(t, Verify(proof, secpPub, wrongEdPub))
}

func TestVerifyRejectsTamperedBit(t *testing.T) {
	k, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	s, err := edscalar.FromSecp256k1(k)
	require.NoError(t, err)

	proof, secpPub, edPub, err := Prove(s)
	require.NoError(t, err)

	proof.Bits[0].Branch0.Z.Add(proof.Bits[0].Branch0.Z, pow2(1))
	require.Error(t, Verify(proof, secpPub, edPub))
}
