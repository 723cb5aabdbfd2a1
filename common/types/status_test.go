package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakerStatusTerminal(t *testing.T) {
	require.True(t, MakerBtcRedeemed.IsTerminal())
	require.True(t, MakerSafelyAborted.IsTerminal())
	require.False(t, MakerStarted.IsTerminal())
	require.False(t, MakerBtcCancelled.IsTerminal())
}

func TestTakerStatusTerminal(t *testing.T) {
	require.True(t, TakerXmrRedeemed.IsTerminal())
	require.True(t, TakerBtcRefundBurnt.IsTerminal())
	require.False(t, TakerStarted.IsTerminal())
	require.False(t, TakerBtcPunished.IsTerminal())
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "BtcRedeemed", MakerBtcRedeemed.String())
	require.Equal(t, "Unknown", MakerStatus(255).String())
	require.Equal(t, "XmrRedeemed", TakerXmrRedeemed.String())
	require.Equal(t, "Unknown", TakerStatus(255).String())
}
