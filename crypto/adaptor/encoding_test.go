package adaptor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

func TestEncryptedSignatureMarshalUnmarshalRoundTrip(t *testing.T) {
	x, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	y, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	var m [32]byte
	copy(m[:], []byte("adaptor signature wire round trip"))

	encSig, err := EncSign(x, y.Public(), m)
	require.NoError(t, err)

	raw, err := encSig.MarshalBinary()
	require.NoError(t, err)

	got, err := UnmarshalEncryptedSignature(raw)
	require.NoError(t, err)
	require.NoError(t, EncVerify(x.Public(), y.Public(), m, got))
}

func TestSignatureMarshalUnmarshalRoundTrip(t *testing.T) {
	x, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	y, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	var m [32]byte
	copy(m[:], []byte("signature wire round trip"))

	encSig, err := EncSign(x, y.Public(), m)
	require.NoError(t, err)
	sig := Decrypt(encSig, y)

	raw, err := sig.MarshalBinary()
	require.NoError(t, err)

	got, err := UnmarshalSignature(raw)
	require.NoError(t, err)
	require.NoError(t, Verify(x.Public(), m, got))
}
