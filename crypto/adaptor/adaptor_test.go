package adaptor

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

func digest(msg string) [32]byte {
	return sha256.Sum256([]byte(msg))
}

func TestEncSignDecryptRecoverRoundTrip(t *testing.T) {
	signer, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	y, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	m := digest("tx_redeem sighash")

	encSig, err := EncSign(signer, y.Public(), m)
	require.NoError(t, err)
	require.NoError(t, EncVerify(signer.Public(), y.Public(), m, encSig))

	sig := Decrypt(encSig, y)
	require.NoError(t, Verify(signer.Public(), m, sig))

	recovered, err := Recover(y.Public(), sig, encSig)
	require.NoError(t, err)
	require.Equal(t, y.Public().CompressedBytes(), recovered.Public().CompressedBytes())
}

func TestEncVerifyRejectsWrongSigner(t *testing.T) {
	signer, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	other, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	y, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	m := digest("tx_full_refund sighash")
	encSig, err := EncSign(signer, y.Public(), m)
	require.NoError(t, err)

	require.Error(t, EncVerify(other.Public(), y.Public(), m, encSig))
}

func TestEncVerifyRejectsWrongEncryptionKey(t *testing.T) {
	signer, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	y, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	otherY, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	m := digest("tx_punish sighash")
	encSig, err := EncSign(signer, y.Public(), m)
	require.NoError(t, err)

	require.Error(t, EncVerify(signer.Public(), otherY.Public(), m, encSig))
}

func TestRecoverFailsWithoutRealSignature(t *testing.T) {
	signer, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	y, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	m := digest("tx_early_refund sighash")
	encSig, err := EncSign(signer, y.Public(), m)
	require.NoError(t, err)

	otherY, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	otherSig := Decrypt(encSig, otherY)

	_, err = Recover(y.Public(), otherSig, encSig)
	require.Error(t, err)
}
