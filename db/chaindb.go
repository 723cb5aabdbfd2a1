package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ChainSafe/chaindb"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/eigenswap/xmr-btc-swap/common/types"
)

const (
	prefixState         = "state/"
	prefixPeerID        = "peer/"
	prefixTransferProof = "transferproof/"
	prefixAddressPool   = "addrpool/"
)

// ChainDB is the chaindb-backed Database implementation swapd runs against.
type ChainDB struct {
	db chaindb.Database
}

var _ Database = (*ChainDB)(nil)

// NewChainDB opens (or creates) a chaindb-backed database rooted at dataDir.
// dataDir empty selects an in-memory database, used by tests.
func NewChainDB(dataDir string) (*ChainDB, error) {
	cfg := &chaindb.Config{
		DataDir:  dataDir,
		InMemory: dataDir == "",
	}
	backing, err := chaindb.NewBadgerDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &ChainDB{db: backing}, nil
}

func stateKey(id types.SwapID) []byte   { return append([]byte(prefixState), []byte(id.String())...) }
func peerKey(id types.SwapID) []byte    { return append([]byte(prefixPeerID), []byte(id.String())...) }
func proofKey(id types.SwapID) []byte   { return append([]byte(prefixTransferProof), []byte(id.String())...) }
func poolKey(id types.SwapID) []byte    { return append([]byte(prefixAddressPool), []byte(id.String())...) }

func (c *ChainDB) InsertLatestState(id types.SwapID, state interface{}) error {
	raw, err := marshalState(state)
	if err != nil {
		return err
	}
	return c.db.Put(stateKey(id), raw)
}

func (c *ChainDB) GetState(id types.SwapID, out interface{}) error {
	raw, err := c.db.Get(stateKey(id))
	if errors.Is(err, chaindb.ErrKeyNotFound) {
		return ErrSwapNotFound
	}
	if err != nil {
		return fmt.Errorf("reading swap state: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (c *ChainDB) InsertPeerID(id types.SwapID, p peer.ID) error {
	return c.db.Put(peerKey(id), []byte(p.String()))
}

func (c *ChainDB) GetPeerID(id types.SwapID) (peer.ID, error) {
	raw, err := c.db.Get(peerKey(id))
	if errors.Is(err, chaindb.ErrKeyNotFound) {
		return "", ErrSwapNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading peer id: %w", err)
	}
	return peer.Decode(string(raw))
}

func (c *ChainDB) InsertBufferedTransferProof(id types.SwapID, proof *TransferProof) error {
	raw, err := json.Marshal(proof)
	if err != nil {
		return fmt.Errorf("marshaling transfer proof: %w", err)
	}
	return c.db.Put(proofKey(id), raw)
}

func (c *ChainDB) GetBufferedTransferProof(id types.SwapID) (*TransferProof, error) {
	raw, err := c.db.Get(proofKey(id))
	if errors.Is(err, chaindb.ErrKeyNotFound) {
		return nil, ErrSwapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading transfer proof: %w", err)
	}
	proof := new(TransferProof)
	if err := json.Unmarshal(raw, proof); err != nil {
		return nil, fmt.Errorf("unmarshaling transfer proof: %w", err)
	}
	return proof, nil
}

func (c *ChainDB) GetMoneroAddressPool(id types.SwapID) (MoneroAddressPool, error) {
	raw, err := c.db.Get(poolKey(id))
	if errors.Is(err, chaindb.ErrKeyNotFound) {
		return MoneroAddressPool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading address pool: %w", err)
	}
	pool := MoneroAddressPool{}
	if err := json.Unmarshal(raw, &pool); err != nil {
		return nil, fmt.Errorf("unmarshaling address pool: %w", err)
	}
	return pool, nil
}

func (c *ChainDB) AppendMoneroAddress(id types.SwapID, address string) error {
	pool, err := c.GetMoneroAddressPool(id)
	if err != nil {
		return err
	}
	pool = append(pool, address)
	raw, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("marshaling address pool: %w", err)
	}
	return c.db.Put(poolKey(id), raw)
}

// All returns every persisted swap record, used on startup to find and
// resume ongoing swaps (spec.md §3.6).
func (c *ChainDB) All() ([]Record, error) {
	iter, err := c.db.NewIterator()
	if err != nil {
		return nil, fmt.Errorf("opening iterator: %w", err)
	}
	defer iter.Release()

	records := make(map[string]*Record)
	prefix := []byte(prefixState)
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) <= len(prefix) || string(key[:len(prefix)]) != prefixState {
			continue
		}
		idStr := string(key[len(prefix):])
		id, err := types.ParseSwapID(idStr)
		if err != nil {
			continue
		}
		records[idStr] = &Record{ID: id, State: append([]byte(nil), iter.Value()...)}
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, *r)
	}
	return out, nil
}

func (c *ChainDB) Close() error {
	return c.db.Close()
}
