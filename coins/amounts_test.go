package coins

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"
)

func TestMoneroToPiconero(t *testing.T) {
	xmr, _, err := apd.NewFromString("0.1")
	require.NoError(t, err)

	pic, err := MoneroToPiconero(xmr)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000_000_000), pic.Uint64())
	require.Equal(t, "0.1", pic.AsMoneroString())
}

func TestPiconeroAddSub(t *testing.T) {
	a := NewPiconeroAmount(100)
	b := NewPiconeroAmount(40)

	require.Equal(t, uint64(140), a.Add(b).Uint64())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	require.Equal(t, uint64(60), diff.Uint64())

	_, err = b.Sub(a)
	require.Error(t, err)
}

func TestValidatePositive(t *testing.T) {
	amt := apd.New(1, -1) // 0.1
	require.NoError(t, ValidatePositive("minAmount", NumMoneroDecimals, amt))

	zero := apd.New(0, 0)
	require.Error(t, ValidatePositive("minAmount", NumMoneroDecimals, zero))

	tooPrecise := apd.New(1, -13)
	require.Error(t, ValidatePositive("minAmount", NumMoneroDecimals, tooPrecise))
}
