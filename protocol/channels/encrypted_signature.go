package channels

import (
	"context"
	"fmt"

	"github.com/eigenswap/xmr-btc-swap/common"
	"github.com/eigenswap/xmr-btc-swap/common/types"
	"github.com/eigenswap/xmr-btc-swap/net"
	"github.com/eigenswap/xmr-btc-swap/net/message"
)

// EncryptedSignatureChannel carries Taker's adaptor-encrypted signature for
// tx_redeem's Taker-half to Maker, exactly once per swap but retried
// indefinitely: per spec.md §4.6 this delivery has no deadline, since
// Taker's Bitcoin is already safe behind the refund timelock regardless of
// how long Maker takes to come back online and decrypt it.
type EncryptedSignatureChannel struct {
	Cfg *common.Config
}

// Send delivers msg over stream, retrying with exponential backoff bounded
// by Cfg.RetryInitialBackoff/RetryMaxBackoff until ctx is cancelled. Callers
// should derive ctx from the swap's own lifetime, not a short deadline.
func (c *EncryptedSignatureChannel) Send(ctx context.Context, msg *message.EncryptedSignatureMsg, dial func(context.Context) (net.Stream, error)) error {
	backoff := c.Cfg.RetryInitialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stream, err := dial(ctx)
		if err == nil {
			sendErr := stream.Send(msg)
			_ = stream.Close()
			if sendErr == nil {
				return nil
			}
			err = sendErr
		}

		if sleepErr := common.SleepWithContext(ctx, backoff); sleepErr != nil {
			return sleepErr
		}
		backoff *= 2
		if backoff > c.Cfg.RetryMaxBackoff {
			backoff = c.Cfg.RetryMaxBackoff
		}
	}
}

// Receive blocks on stream for a single EncryptedSignatureMsg addressed to
// id.
func (c *EncryptedSignatureChannel) Receive(ctx context.Context, id types.SwapID, stream net.Stream) (*message.EncryptedSignatureMsg, error) {
	msg, err := receiveTyped[*message.EncryptedSignatureMsg](ctx, stream)
	if err != nil {
		return nil, err
	}
	if msg.SwapID != id {
		return nil, fmt.Errorf("encrypted signature for wrong swap: got %s want %s", msg.SwapID, id)
	}
	return msg, nil
}
