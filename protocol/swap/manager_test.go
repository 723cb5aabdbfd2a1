package swap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/common/types"
)

func TestManagerAddAndCompleteSwap(t *testing.T) {
	m := NewManager(nil)
	id := types.NewSwapID()

	require.False(t, m.HasOngoingSwap(id))
	require.NoError(t, m.AddSwap(&Info{ID: id, Role: RoleMaker, IsOngoing: true}))
	require.True(t, m.HasOngoingSwap(id))

	got, err := m.GetOngoingSwap(id)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)

	require.NoError(t, m.CompleteOngoingSwap(id))
	require.False(t, m.HasOngoingSwap(id))

	past, err := m.GetPastSwap(id)
	require.NoError(t, err)
	require.False(t, past.IsOngoing)
	require.NotNil(t, past.EndTime)

	_, err = m.GetOngoingSwap(id)
	require.Error(t, err)
}

func TestManagerSeedFromPersistedRecords(t *testing.T) {
	ongoingID := types.NewSwapID()
	pastID := types.NewSwapID()

	m := NewManager([]*Info{
		{ID: ongoingID, IsOngoing: true},
		{ID: pastID, IsOngoing: false},
	})

	require.True(t, m.HasOngoingSwap(ongoingID))
	require.Contains(t, m.GetPastIDs(), pastID)
}

func TestManagerSwapLockExclusivity(t *testing.T) {
	m := NewManager(nil)
	first := types.NewSwapID()
	second := types.NewSwapID()

	require.NoError(t, m.TryAcquireLock(first))
	// Re-acquiring the lock already held by the same swap is a no-op.
	require.NoError(t, m.TryAcquireLock(first))

	require.Error(t, m.TryAcquireLock(second))

	m.ReleaseLock(first)
	require.NoError(t, m.TryAcquireLock(second))
}

func TestManagerCompleteOngoingSwapUnknownID(t *testing.T) {
	m := NewManager(nil)
	require.Error(t, m.CompleteOngoingSwap(types.NewSwapID()))
}
