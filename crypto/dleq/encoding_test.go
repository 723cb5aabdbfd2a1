package dleq

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/crypto/edscalar"
	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

func TestProofMarshalUnmarshalRoundTrip(t *testing.T) {
	k, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	s, err := edscalar.FromSecp256k1(k)
	require.NoError(t, err)

	proof, secpPub, edPub, err := Prove(s)
	require.NoError(t, err)

	raw, err := proof.MarshalBinary()
	require.NoError(t, err)

	var got Proof
	require.NoError(t, got.UnmarshalBinary(raw))
	require.NoError(t, Verify(&got, secpPub, edPub))
}
