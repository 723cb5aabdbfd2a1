package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/common"
	"github.com/eigenswap/xmr-btc-swap/common/types"
	"github.com/eigenswap/xmr-btc-swap/db"
	"github.com/eigenswap/xmr-btc-swap/net"
	"github.com/eigenswap/xmr-btc-swap/net/message"
)

// fakeStream is an in-process net.Stream for testing channel logic without
// a real libp2p connection.
type fakeStream struct {
	sent     chan message.Message
	toRecv   chan message.Message
	sendErrs []error
}

var _ net.Stream = (*fakeStream)(nil)

func newFakeStream() *fakeStream {
	return &fakeStream{
		sent:   make(chan message.Message, 8),
		toRecv: make(chan message.Message, 8),
	}
}

func (f *fakeStream) Send(msg message.Message) error {
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	f.sent <- msg
	return nil
}

func (f *fakeStream) Receive() (message.Message, error) {
	return <-f.toRecv, nil
}

func (f *fakeStream) Close() error { return nil }

// memDB is a minimal in-memory db.Database for channel tests.
type memDB struct {
	mu       sync.Mutex
	proofs   map[types.SwapID]*db.TransferProof
	peerIDs  map[types.SwapID]peer.ID
}

var _ db.Database = (*memDB)(nil)

func newMemDB() *memDB {
	return &memDB{
		proofs:  make(map[types.SwapID]*db.TransferProof),
		peerIDs: make(map[types.SwapID]peer.ID),
	}
}

func (m *memDB) InsertLatestState(id types.SwapID, state interface{}) error { return nil }
func (m *memDB) GetState(id types.SwapID, out interface{}) error           { return db.ErrSwapNotFound }

func (m *memDB) InsertPeerID(id types.SwapID, p peer.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerIDs[id] = p
	return nil
}

func (m *memDB) GetPeerID(id types.SwapID) (peer.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peerIDs[id]
	if !ok {
		return "", db.ErrSwapNotFound
	}
	return p, nil
}

func (m *memDB) InsertBufferedTransferProof(id types.SwapID, proof *db.TransferProof) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proofs[id] = proof
	return nil
}

func (m *memDB) GetBufferedTransferProof(id types.SwapID) (*db.TransferProof, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proofs[id]
	if !ok {
		return nil, db.ErrSwapNotFound
	}
	return p, nil
}

func (m *memDB) GetMoneroAddressPool(id types.SwapID) (db.MoneroAddressPool, error) {
	return nil, nil
}
func (m *memDB) AppendMoneroAddress(id types.SwapID, address string) error { return nil }
func (m *memDB) All() ([]db.Record, error)                                { return nil, nil }
func (m *memDB) Close() error                                             { return nil }

func newTestConfig() *common.Config {
	return &common.Config{
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     4 * time.Millisecond,
	}
}

func TestTransferProofChannelSendBuffersAndSends(t *testing.T) {
	ch := &TransferProofChannel{DB: newMemDB()}
	id := types.NewSwapID()
	stream := newFakeStream()

	proof := &db.TransferProof{TxID: "abc", TxKey: "def", Height: 42}
	require.NoError(t, ch.Send(id, proof, stream))

	buffered, err := ch.Buffered(id)
	require.NoError(t, err)
	require.Equal(t, proof, buffered)

	sent := <-stream.sent
	tp, ok := sent.(*message.TransferProofMsg)
	require.True(t, ok)
	require.Equal(t, "abc", tp.TxID)
}

func TestTransferProofChannelReceive(t *testing.T) {
	ch := &TransferProofChannel{DB: newMemDB()}
	id := types.NewSwapID()
	stream := newFakeStream()
	stream.toRecv <- &message.TransferProofMsg{SwapID: id, TxID: "x", TxKey: "y", Height: 1}

	proof, err := ch.Receive(context.Background(), id, stream)
	require.NoError(t, err)
	require.Equal(t, "x", proof.TxID)
}

func TestEncryptedSignatureChannelRetriesThenSucceeds(t *testing.T) {
	ch := &EncryptedSignatureChannel{Cfg: newTestConfig()}
	stream := newFakeStream()
	stream.sendErrs = []error{errors.New("dial failed"), errors.New("dial failed")}

	msg := &message.EncryptedSignatureMsg{SwapID: types.NewSwapID(), EncSig: []byte{1, 2, 3}}
	err := ch.Send(context.Background(), msg, func(ctx context.Context) (net.Stream, error) {
		return stream, nil
	})
	require.NoError(t, err)
	require.Len(t, stream.sendErrs, 0)

	sent := <-stream.sent
	_, ok := sent.(*message.EncryptedSignatureMsg)
	require.True(t, ok)
}

func TestCooperativeRedeemChannelRequestResponse(t *testing.T) {
	ch := &CooperativeRedeemChannel{Cfg: newTestConfig()}
	id := types.NewSwapID()
	stream := newFakeStream()
	stream.toRecv <- &message.CooperativeRedeemResponse{SwapID: id, Fulfilled: true, SA: []byte{9}}

	resp, err := ch.Request(context.Background(), id, func(ctx context.Context) (net.Stream, error) {
		return stream, nil
	})
	require.NoError(t, err)
	require.True(t, resp.Fulfilled)

	sentReq := <-stream.sent
	req, ok := sentReq.(*message.CooperativeRedeemRequest)
	require.True(t, ok)
	require.Equal(t, id, req.SwapID)
}

func TestCooperativeRedeemChannelExhaustsAttempts(t *testing.T) {
	ch := &CooperativeRedeemChannel{Cfg: newTestConfig()}
	id := types.NewSwapID()

	_, err := ch.Request(context.Background(), id, func(ctx context.Context) (net.Stream, error) {
		return nil, errors.New("connection refused")
	})
	require.Error(t, err)
}
