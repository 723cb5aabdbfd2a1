package txbuilder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

func genKey(t *testing.T) *secp256k1.PublicKey {
	t.Helper()
	k, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	return k.Public()
}

func TestLockWitnessScriptIsP2WSHable(t *testing.T) {
	a, b := genKey(t), genKey(t)
	script, err := MultisigWitnessScript(a, b)
	require.NoError(t, err)
	require.NotEmpty(t, script)

	out, err := P2WSHScript(script)
	require.NoError(t, err)
	require.Len(t, out, 34) // OP_0 + OP_DATA_32 + 32-byte hash
}

func TestCancelOutputScriptRejectsZeroTimelock(t *testing.T) {
	a, b, punish := genKey(t), genKey(t), genKey(t)
	_, err := CancelOutputScript(a, b, punish, 0)
	require.Error(t, err)
}

func TestCancelOutputScriptRejectsOversizedTimelock(t *testing.T) {
	a, b, punish := genKey(t), genKey(t), genKey(t)
	_, err := CancelOutputScript(a, b, punish, maxCSVBlocks+1)
	require.Error(t, err)
}

func TestAmnestyOutputScriptBuilds(t *testing.T) {
	a, b := genKey(t), genKey(t)
	script, err := AmnestyOutputScript(a, b, 144)
	require.NoError(t, err)
	require.NotEmpty(t, script)
}
