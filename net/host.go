// Package net hosts the libp2p duplex stream each swap's setup protocol and
// post-setup channels run over (spec.md §4.3, §4.6, §6.2). A single protocol
// ID (Config.ProtocolID) is registered for every stream; a Handler decides
// what to do with an inbound stream once its first message is decoded.
package net

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	logging "github.com/ipfs/go-log"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/eigenswap/xmr-btc-swap/net/message"
)

var log = logging.Logger("net")

// maxMessageSize bounds a single length-prefixed message, generous enough
// for the largest setup message (the DLEQ proof-bearing SwapInitiate/
// SetupResponse messages, each well under a megabyte).
const maxMessageSize = 4 << 20

// Config configures a Host.
type Config struct {
	Ctx        context.Context
	DataDir    string
	Port       uint16
	KeyFile    string
	Bootnodes  []string
	ProtocolID string
	ListenIP   string
	IsRelayer  bool
}

// Handler reacts to an inbound stream opened by a remote peer for a given
// swap. One Handler is installed per Host via SetHandlers; it receives every
// inbound stream and routes it to the owning swap driver itself.
type Handler interface {
	// HandleInbound is invoked once per inbound stream, after the first
	// message has been decoded, to hand that stream off to whichever swap
	// driver should own it from this point on.
	HandleInbound(from peer.ID, first message.Message, stream Stream) error
}

// Stream is the duplex byte-oriented channel a setup protocol or a
// post-setup channel sends/receives length-prefixed Messages over.
type Stream interface {
	Send(msg message.Message) error
	Receive() (message.Message, error)
	Close() error
}

// streamWrapper adapts a raw libp2p network.Stream to Stream.
type streamWrapper struct {
	s  network.Stream
	r  *bufio.Reader
	mu sync.Mutex
}

func newStreamWrapper(s network.Stream) *streamWrapper {
	return &streamWrapper{s: s, r: bufio.NewReader(s)}
}

func (w *streamWrapper) Send(msg message.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if len(body) > maxMessageSize {
		return fmt.Errorf("message too large: %d bytes", len(body))
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.s.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("writing length prefix: %w", err)
	}
	if _, err := w.s.Write(body); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}
	return nil
}

func (w *streamWrapper) Receive() (message.Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(w.r, lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("reading length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxMessageSize {
		return nil, fmt.Errorf("remote declared oversized message: %d bytes", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(w.r, body); err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}
	return message.DecodeMessage(body)
}

func (w *streamWrapper) Close() error {
	return w.s.Close()
}

// Host wraps a libp2p host configured for the swap wire protocol.
type Host struct {
	h          host.Host
	protocolID protocol.ID
	handler    Handler

	mu       sync.Mutex
	cancelFn context.CancelFunc
}

// NewHost constructs and starts listening on a libp2p host per cfg. The key
// at cfg.KeyFile is generated on first use and reused on subsequent starts
// so the node's peer id is stable across restarts.
func NewHost(cfg *Config) (*Host, error) {
	priv, err := loadOrCreateKey(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading node key: %w", err)
	}

	listenAddr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", cfg.ListenIP, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("building listen address: %w", err)
	}

	p2pHost, err := libp2p.New(
		libp2p.ListenAddrs(listenAddr),
		libp2p.Identity(priv),
	)
	if err != nil {
		return nil, fmt.Errorf("starting libp2p host: %w", err)
	}

	pid := protocol.ID(cfg.ProtocolID)
	h := &Host{h: p2pHost, protocolID: pid}
	p2pHost.SetStreamHandler(pid, h.handleStream)

	for _, bn := range cfg.Bootnodes {
		if err := h.connectBootnode(cfg.Ctx, bn); err != nil {
			log.Warnf("failed to connect to bootnode %s: %s", bn, err)
		}
	}

	log.Infof("started host with peer id %s, listening on %s", p2pHost.ID(), listenAddr)
	return h, nil
}

// SetHandlers installs the handler invoked for every inbound stream. Called
// once during daemon startup, before the host can receive swaps.
func (h *Host) SetHandlers(handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

func (h *Host) handleStream(s network.Stream) {
	stream := newStreamWrapper(s)
	first, err := stream.Receive()
	if err != nil {
		log.Warnf("failed to read first message from %s: %s", s.Conn().RemotePeer(), err)
		_ = stream.Close()
		return
	}

	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()

	if handler == nil {
		log.Warnf("no handler installed, dropping stream from %s", s.Conn().RemotePeer())
		_ = stream.Close()
		return
	}

	if err := handler.HandleInbound(s.Conn().RemotePeer(), first, stream); err != nil {
		log.Warnf("handler rejected stream from %s: %s", s.Conn().RemotePeer(), err)
		_ = stream.Close()
	}
}

// OpenStream dials peerID and opens a new stream on the swap protocol.
func (h *Host) OpenStream(ctx context.Context, peerID peer.ID) (Stream, error) {
	s, err := h.h.NewStream(ctx, peerID, h.protocolID)
	if err != nil {
		return nil, fmt.Errorf("opening stream to %s: %w", peerID, err)
	}
	return newStreamWrapper(s), nil
}

// ID returns this host's peer id.
func (h *Host) ID() peer.ID {
	return h.h.ID()
}

// Addrs returns this host's listen multiaddrs.
func (h *Host) Addrs() []multiaddr.Multiaddr {
	return h.h.Addrs()
}

func (h *Host) connectBootnode(ctx context.Context, addrStr string) error {
	maddr, err := multiaddr.NewMultiaddr(addrStr)
	if err != nil {
		return fmt.Errorf("parsing bootnode address: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("parsing bootnode peer info: %w", err)
	}
	h.h.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
	return h.h.Connect(ctx, *info)
}

// Stop shuts the host down, closing all open streams and connections.
func (h *Host) Stop() error {
	return h.h.Close()
}

func loadOrCreateKey(path string) (crypto.PrivKey, error) {
	if path == "" {
		priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
		return priv, err
	}
	return loadOrCreateKeyFile(path)
}
