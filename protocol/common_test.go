package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeysAndProof(t *testing.T) {
	kp, err := GenerateKeysAndProof()
	require.NoError(t, err)

	secpPubBytes := kp.BtcSecp256k1KeyPair.Public().CompressedBytes()
	moneroPubBytes := kp.MoneroKeyPair.SpendKey.Public().Bytes()

	res, err := VerifyKeysAndProof(kp.DLEqProof, secpPubBytes, moneroPubBytes[:])
	require.NoError(t, err)
	require.Equal(t, secpPubBytes, res.Secp256k1PublicKey.CompressedBytes())
}

func TestVerifyKeysAndProofRejectsMismatchedKeys(t *testing.T) {
	kp1, err := GenerateKeysAndProof()
	require.NoError(t, err)
	kp2, err := GenerateKeysAndProof()
	require.NoError(t, err)

	secpPubBytes := kp1.BtcSecp256k1KeyPair.Public().CompressedBytes()
	moneroPubBytes := kp2.MoneroKeyPair.SpendKey.Public().Bytes()

	_, err = VerifyKeysAndProof(kp1.DLEqProof, secpPubBytes, moneroPubBytes[:])
	require.Error(t, err)
}
