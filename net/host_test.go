package net

import (
	"context"
	"path"
	"testing"
	"time"

	logging "github.com/ipfs/go-log"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/common/types"
	"github.com/eigenswap/xmr-btc-swap/net/message"
)

func init() {
	_ = logging.SetLogLevel("net", "debug")
}

type recordingHandler struct {
	received chan message.Message
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{received: make(chan message.Message, 1)}
}

func (h *recordingHandler) HandleInbound(_ peer.ID, first message.Message, stream Stream) error {
	h.received <- first
	return stream.Close()
}

func basicTestConfig(t *testing.T) *Config {
	tmpDir := t.TempDir()
	return &Config{
		Ctx:        context.Background(),
		DataDir:    tmpDir,
		Port:       0,
		KeyFile:    path.Join(tmpDir, "node.key"),
		Bootnodes:  nil,
		ProtocolID: "/xmr-btc-swap/test/1",
		ListenIP:   "127.0.0.1",
	}
}

func newHost(t *testing.T, cfg *Config) *Host {
	h, err := NewHost(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, h.Stop())
	})
	return h
}

func TestHostSendReceive(t *testing.T) {
	aCfg := basicTestConfig(t)
	bCfg := basicTestConfig(t)

	a := newHost(t, aCfg)
	b := newHost(t, bCfg)

	handler := newRecordingHandler()
	b.SetHandlers(handler)

	b.h.Peerstore().AddAddrs(a.ID(), a.Addrs(), 10*time.Minute)
	a.h.Peerstore().AddAddrs(b.ID(), b.Addrs(), 10*time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := a.OpenStream(ctx, b.ID())
	require.NoError(t, err)

	want := &message.SwapInitiate{
		SwapID:          types.NewSwapID(),
		ProtocolVersion: "1.0.0",
		RefundAddress:   "bc1qexample",
		DLEQProofB:      []byte{1, 2, 3},
	}
	require.NoError(t, stream.Send(want))

	select {
	case got := <-handler.received:
		si, ok := got.(*message.SwapInitiate)
		require.True(t, ok)
		require.Equal(t, want.SwapID, si.SwapID)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}
