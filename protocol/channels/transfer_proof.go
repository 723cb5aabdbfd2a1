// Package channels implements the three post-setup message channels named
// in spec.md §4.6: transfer-proof (Maker -> Taker, one-shot, persistently
// buffered), encrypted-signature (Taker -> Maker, one-shot, indefinite
// retry), and cooperative-redeem (Taker -> Maker, request-response, bounded
// retry). Each channel is deliberately ignorant of the state machine that
// drives it: it only knows how to send, retry, and persist its own message
// kind.
package channels

import (
	"context"
	"fmt"

	"github.com/eigenswap/xmr-btc-swap/db"
	"github.com/eigenswap/xmr-btc-swap/net"
	"github.com/eigenswap/xmr-btc-swap/net/message"
	"github.com/eigenswap/xmr-btc-swap/common/types"
)

// TransferProofChannel delivers the XMR lock transaction's transfer proof
// from Maker to Taker exactly once per swap. Taker may not yet be listening
// (it could still be confirming the Bitcoin lock), so the proof is buffered
// in the database first and only then sent; if the stream send fails, the
// buffered copy lets a later resumed run re-send it without asking Maker's
// wallet to re-derive anything.
type TransferProofChannel struct {
	DB db.Database
}

// Send buffers proof for id and delivers it over stream. Buffering happens
// before the send attempt so a crash between buffering and delivery still
// leaves the proof recoverable on restart.
func (c *TransferProofChannel) Send(id types.SwapID, proof *db.TransferProof, stream net.Stream) error {
	if err := c.DB.InsertBufferedTransferProof(id, proof); err != nil {
		return fmt.Errorf("buffering transfer proof: %w", err)
	}

	msg := &message.TransferProofMsg{
		SwapID: id,
		TxID:   proof.TxID,
		TxKey:  proof.TxKey,
		Height: proof.Height,
	}
	if err := stream.Send(msg); err != nil {
		return fmt.Errorf("sending transfer proof: %w", err)
	}
	return nil
}

// Buffered returns the previously buffered transfer proof for id, if
// Maker already attempted delivery in an earlier run, or db.ErrSwapNotFound
// if none was ever buffered.
func (c *TransferProofChannel) Buffered(id types.SwapID) (*db.TransferProof, error) {
	return c.DB.GetBufferedTransferProof(id)
}

// Receive blocks on stream for a single TransferProofMsg addressed to id.
// Taker's driver calls this after confirming its own Bitcoin lock, so it is
// ready to wait indefinitely (bounded only by the surrounding context) for
// Maker's XMR lock proof to arrive.
func (c *TransferProofChannel) Receive(ctx context.Context, id types.SwapID, stream net.Stream) (*db.TransferProof, error) {
	msg, err := receiveTyped[*message.TransferProofMsg](ctx, stream)
	if err != nil {
		return nil, err
	}
	if msg.SwapID != id {
		return nil, fmt.Errorf("transfer proof for wrong swap: got %s want %s", msg.SwapID, id)
	}
	return &db.TransferProof{TxID: msg.TxID, TxKey: msg.TxKey, Height: msg.Height}, nil
}
