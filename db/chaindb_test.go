package db

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/common/types"
)

type testState struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func openTestDB(t *testing.T) *ChainDB {
	t.Helper()
	d, err := NewChainDB("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestInsertAndGetState(t *testing.T) {
	d := openTestDB(t)
	id := types.NewSwapID()

	want := testState{Status: "MakerStarted", Note: "first"}
	require.NoError(t, d.InsertLatestState(id, want))

	var got testState
	require.NoError(t, d.GetState(id, &got))
	require.Equal(t, want, got)
}

func TestGetStateMissingReturnsNotFound(t *testing.T) {
	d := openTestDB(t)
	var got testState
	err := d.GetState(types.NewSwapID(), &got)
	require.ErrorIs(t, err, ErrSwapNotFound)
}

func TestBufferedTransferProofRoundTrip(t *testing.T) {
	d := openTestDB(t)
	id := types.NewSwapID()

	proof := &TransferProof{TxID: "abc123", TxKey: "deadbeef", Height: 42}
	require.NoError(t, d.InsertBufferedTransferProof(id, proof))

	got, err := d.GetBufferedTransferProof(id)
	require.NoError(t, err)
	require.Equal(t, proof, got)
}

func TestMoneroAddressPoolAppend(t *testing.T) {
	d := openTestDB(t)
	id := types.NewSwapID()

	require.NoError(t, d.AppendMoneroAddress(id, "addr1"))
	require.NoError(t, d.AppendMoneroAddress(id, "addr2"))

	pool, err := d.GetMoneroAddressPool(id)
	require.NoError(t, err)
	require.Equal(t, MoneroAddressPool{"addr1", "addr2"}, pool)
}
