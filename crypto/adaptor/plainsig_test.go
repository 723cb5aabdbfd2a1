package adaptor

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	x, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	m := sha256.Sum256([]byte("tx_cancel digest"))
	sig, err := Sign(x, m)
	require.NoError(t, err)

	require.NoError(t, Verify(x.Public(), m, sig))
}

func TestSignRejectsUnderWrongKey(t *testing.T) {
	x, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	other, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	m := sha256.Sum256([]byte("tx_cancel digest"))
	sig, err := Sign(x, m)
	require.NoError(t, err)

	require.Error(t, Verify(other.Public(), m, sig))
}
