package channels

import (
	"context"
	"fmt"

	"github.com/eigenswap/xmr-btc-swap/net"
	"github.com/eigenswap/xmr-btc-swap/net/message"
)

// receiveTyped reads one message off stream and asserts it is of type T,
// respecting ctx cancellation while the blocking Receive call is in
// flight.
func receiveTyped[T message.Message](ctx context.Context, stream net.Stream) (T, error) {
	var zero T

	type result struct {
		msg message.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := stream.Receive()
		ch <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return zero, r.err
		}
		typed, ok := r.msg.(T)
		if !ok {
			return zero, fmt.Errorf("unexpected message type %s", message.TypeToString(r.msg.Type()))
		}
		return typed, nil
	}
}
