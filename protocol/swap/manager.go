// Package swap tracks which swaps are ongoing or past, and enforces the
// swap-lock exclusivity rule (spec.md §5: at most one active swap per local
// wallet at a time).
package swap

import (
	"errors"
	"sync"
	"time"

	"github.com/eigenswap/xmr-btc-swap/common/types"
)

var (
	errNoSwapWithID = errors.New("swap: no swap with given id")
	errSwapLockBusy = errors.New("swap: another swap is already active on this wallet")
)

// Role identifies which side of the swap this daemon played.
type Role byte

const (
	RoleMaker Role = iota
	RoleTaker
)

// Info is the lightweight, manager-level record of one swap: enough to
// list, resume, and enforce exclusivity, without duplicating the full
// per-swap state a protocol/maker or protocol/taker driver persists via
// db.Database.
type Info struct {
	ID          types.SwapID
	Role        Role
	PeerID      string
	StatusLabel string
	IsOngoing   bool
	StartTime   time.Time
	EndTime     *time.Time
}

// Manager tracks current and past swaps and enforces swap-lock exclusivity.
type Manager interface {
	AddSwap(info *Info) error
	GetOngoingSwap(id types.SwapID) (Info, error)
	GetOngoingSwaps() []*Info
	GetPastSwap(id types.SwapID) (Info, error)
	GetPastIDs() []types.SwapID
	CompleteOngoingSwap(id types.SwapID) error
	HasOngoingSwap(id types.SwapID) bool
	// TryAcquireLock reserves the single swap-lock slot for id, failing with
	// errSwapLockBusy if another swap already holds it.
	TryAcquireLock(id types.SwapID) error
	ReleaseLock(id types.SwapID)
}

type manager struct {
	sync.RWMutex
	ongoing map[types.SwapID]*Info
	past    map[types.SwapID]*Info
	locked  types.SwapID
	hasLock bool
}

var _ Manager = (*manager)(nil)

// NewManager returns a new Manager seeded with already-persisted records,
// used on startup to resume any swap that was ongoing when swapd last
// exited (spec.md §3.6).
func NewManager(seed []*Info) Manager {
	m := &manager{
		ongoing: make(map[types.SwapID]*Info),
		past:    make(map[types.SwapID]*Info),
	}
	for _, info := range seed {
		if info.IsOngoing {
			m.ongoing[info.ID] = info
		} else {
			m.past[info.ID] = info
		}
	}
	return m
}

func (m *manager) AddSwap(info *Info) error {
	m.Lock()
	defer m.Unlock()
	if info.IsOngoing {
		m.ongoing[info.ID] = info
	} else {
		m.past[info.ID] = info
	}
	return nil
}

func (m *manager) GetOngoingSwap(id types.SwapID) (Info, error) {
	m.RLock()
	defer m.RUnlock()
	s, ok := m.ongoing[id]
	if !ok {
		return Info{}, errNoSwapWithID
	}
	return *s, nil
}

func (m *manager) GetOngoingSwaps() []*Info {
	m.RLock()
	defer m.RUnlock()
	out := make([]*Info, 0, len(m.ongoing))
	for _, s := range m.ongoing {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

func (m *manager) GetPastSwap(id types.SwapID) (Info, error) {
	m.RLock()
	defer m.RUnlock()
	s, ok := m.past[id]
	if !ok {
		return Info{}, errNoSwapWithID
	}
	return *s, nil
}

func (m *manager) GetPastIDs() []types.SwapID {
	m.RLock()
	defer m.RUnlock()
	ids := make([]types.SwapID, 0, len(m.past))
	for id := range m.past {
		ids = append(ids, id)
	}
	return ids
}

func (m *manager) CompleteOngoingSwap(id types.SwapID) error {
	m.Lock()
	defer m.Unlock()
	s, ok := m.ongoing[id]
	if !ok {
		return errNoSwapWithID
	}
	now := time.Now()
	s.EndTime = &now
	s.IsOngoing = false
	m.past[id] = s
	delete(m.ongoing, id)
	return nil
}

func (m *manager) HasOngoingSwap(id types.SwapID) bool {
	m.RLock()
	defer m.RUnlock()
	_, ok := m.ongoing[id]
	return ok
}

// TryAcquireLock reserves the single swap-lock slot. Only one swap may be
// actively driven against the local Bitcoin/Monero wallets at a time
// (spec.md §5); every other ongoing swap (if any, from a resumed crash)
// must wait for the lock to free before taking its next wallet-touching
// step.
func (m *manager) TryAcquireLock(id types.SwapID) error {
	m.Lock()
	defer m.Unlock()
	if m.hasLock && m.locked != id {
		return errSwapLockBusy
	}
	m.hasLock = true
	m.locked = id
	return nil
}

// ReleaseLock frees the swap-lock slot if currently held by id.
func (m *manager) ReleaseLock(id types.SwapID) {
	m.Lock()
	defer m.Unlock()
	if m.hasLock && m.locked == id {
		m.hasLock = false
	}
}
