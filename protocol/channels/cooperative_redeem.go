package channels

import (
	"context"
	"fmt"

	"github.com/eigenswap/xmr-btc-swap/common"
	"github.com/eigenswap/xmr-btc-swap/common/types"
	"github.com/eigenswap/xmr-btc-swap/net"
	"github.com/eigenswap/xmr-btc-swap/net/message"
)

// MaxCooperativeRedeemAttempts bounds how many times Taker re-asks Maker
// for a cooperative redeem before giving up and returning the last error
// (spec.md §4.6): unlike the encrypted-signature channel, retry here is
// bounded rather than indefinite.
const MaxCooperativeRedeemAttempts = 5

// CooperativeRedeemChannel implements the request-response exchange Taker
// uses to ask Maker, after Maker has punished Taker with tx_punish, to
// reveal s_a so Taker can still redeem the XMR (spec.md §4.6); tx_punish
// itself reveals nothing Taker could derive s_a from.
type CooperativeRedeemChannel struct {
	Cfg *common.Config
}

// Request sends a CooperativeRedeemRequest for id over a freshly dialed
// stream per attempt, retrying up to MaxCooperativeRedeemAttempts times
// with exponential backoff before returning the last error encountered.
func (c *CooperativeRedeemChannel) Request(ctx context.Context, id types.SwapID, dial func(context.Context) (net.Stream, error)) (*message.CooperativeRedeemResponse, error) {
	backoff := c.Cfg.RetryInitialBackoff
	var lastErr error

	for attempt := 0; attempt < MaxCooperativeRedeemAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.requestOnce(ctx, id, dial)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if sleepErr := common.SleepWithContext(ctx, backoff); sleepErr != nil {
			return nil, sleepErr
		}
		backoff *= 2
		if backoff > c.Cfg.RetryMaxBackoff {
			backoff = c.Cfg.RetryMaxBackoff
		}
	}

	return nil, fmt.Errorf("cooperative redeem request exhausted %d attempts: %w", MaxCooperativeRedeemAttempts, lastErr)
}

func (c *CooperativeRedeemChannel) requestOnce(ctx context.Context, id types.SwapID, dial func(context.Context) (net.Stream, error)) (*message.CooperativeRedeemResponse, error) {
	stream, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Send(&message.CooperativeRedeemRequest{SwapID: id}); err != nil {
		return nil, err
	}

	resp, err := receiveTyped[*message.CooperativeRedeemResponse](ctx, stream)
	if err != nil {
		return nil, err
	}
	if resp.SwapID != id {
		return nil, fmt.Errorf("cooperative redeem response for wrong swap: got %s want %s", resp.SwapID, id)
	}
	return resp, nil
}

// HandleRequest is the Maker-side counterpart: it is handed the inbound
// request and a respond function that produces either a Fulfilled or
// Rejected response, and takes care of sending it over stream.
func HandleRequest(stream net.Stream, req *message.CooperativeRedeemRequest, respond func(types.SwapID) *message.CooperativeRedeemResponse) error {
	resp := respond(req.SwapID)
	return stream.Send(resp)
}
