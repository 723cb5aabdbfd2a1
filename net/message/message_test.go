package message

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/common/types"
)

func TestDecodeMessageRoundTrip(t *testing.T) {
	want := &SwapInitiate{
		SwapID:          types.NewSwapID(),
		ProtocolVersion: "1.0.0",
		Network:         types.NetworkMainnet,
		B:               []byte{1, 2, 3},
		RefundAddress:   "bc1qexample",
		DLEQProofB:      []byte{9, 9},
		Fees:            FeeSchedule{FeeRatePerVByte: 5, CancelTimelock: 144, PunishTimelock: 144},
	}

	raw, err := want.Encode()
	require.NoError(t, err)

	got, err := DecodeMessage(raw)
	require.NoError(t, err)

	si, ok := got.(*SwapInitiate)
	require.True(t, ok)
	require.Equal(t, want.SwapID, si.SwapID)
	require.Equal(t, want.RefundAddress, si.RefundAddress)
	require.NoError(t, si.Validate())
}

func TestDecodeMessageUnknownType(t *testing.T) {
	_, err := DecodeMessage([]byte{0xff, '{', '}'})
	require.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestSwapInitiateValidateRejectsMissingRefundAddress(t *testing.T) {
	m := &SwapInitiate{ProtocolVersion: "1.0.0", DLEQProofB: []byte{1}}
	require.Error(t, m.Validate())
}

func TestCooperativeRedeemResponseRoundTrip(t *testing.T) {
	id := types.NewSwapID()
	want := &CooperativeRedeemResponse{
		SwapID:       id,
		Fulfilled:    false,
		RejectReason: RejectedSwapNotPunished,
	}
	raw, err := want.Encode()
	require.NoError(t, err)

	got, err := DecodeMessage(raw)
	require.NoError(t, err)
	resp, ok := got.(*CooperativeRedeemResponse)
	require.True(t, ok)
	require.Equal(t, id, resp.SwapID)
	require.False(t, resp.Fulfilled)
	require.Equal(t, RejectedSwapNotPunished, resp.RejectReason)
}
