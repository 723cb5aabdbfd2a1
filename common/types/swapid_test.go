package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSwapIDRoundTrip(t *testing.T) {
	id := NewSwapID()
	require.False(t, id.IsZero())

	b, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded SwapID
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, id, decoded)
}

func TestSwapIDZero(t *testing.T) {
	var id SwapID
	require.True(t, id.IsZero())
}
