// Package db persists per-swap protocol state so a crashed swapd can resume
// exactly where it left off (spec.md §3.5, §6.1, §6.3). The database itself
// stores opaque, protocol-owned state blobs keyed by swap id — it has no
// notion of MakerStatus/TakerStatus internals, which keeps db from needing
// to import protocol/maker or protocol/taker.
package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/eigenswap/xmr-btc-swap/common/types"
)

// ErrSwapNotFound is returned by GetState/GetBufferedTransferProof when no
// record exists for a given swap id.
var ErrSwapNotFound = errors.New("db: no record for swap id")

// TransferProof is the XMR lock transaction's key material Maker sends
// Taker so Taker can independently verify the transfer (spec.md §4.6); it
// is buffered in the database because it may arrive before the state
// machine is ready to consume it.
type TransferProof struct {
	TxID   string `json:"txId"`
	TxKey  string `json:"txKey"`
	Height uint64 `json:"height"`
}

// MoneroAddressPool is the set of subaddresses this party has already
// handed out for prior swaps' joint wallets, kept so a restart doesn't
// reuse or lose track of one mid-swap.
type MoneroAddressPool []string

// Record is one swap's persisted entry: an opaque State blob (owned and
// interpreted by protocol/maker or protocol/taker) plus the side-channel
// data the Database contract tracks per id.
type Record struct {
	ID            types.SwapID    `json:"id"`
	State         json.RawMessage `json:"state"`
	PeerID        string          `json:"peerId,omitempty"`
	TransferProof *TransferProof  `json:"transferProof,omitempty"`
	AddressPool   MoneroAddressPool `json:"addressPool,omitempty"`
}

// Database is the persistence collaborator contract (spec.md §6.1).
type Database interface {
	InsertLatestState(id types.SwapID, state interface{}) error
	GetState(id types.SwapID, out interface{}) error

	InsertPeerID(id types.SwapID, p peer.ID) error
	GetPeerID(id types.SwapID) (peer.ID, error)

	InsertBufferedTransferProof(id types.SwapID, proof *TransferProof) error
	GetBufferedTransferProof(id types.SwapID) (*TransferProof, error)

	GetMoneroAddressPool(id types.SwapID) (MoneroAddressPool, error)
	AppendMoneroAddress(id types.SwapID, address string) error

	All() ([]Record, error)
	Close() error
}

func marshalState(state interface{}) (json.RawMessage, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshaling swap state: %w", err)
	}
	return b, nil
}
