// Package monero holds small helpers layered on top of the backend.MoneroWallet
// contract that don't belong to any single swap state machine (spec.md §5's
// on-chain-subscription suspension points).
package monero

import (
	"context"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log"

	"github.com/eigenswap/xmr-btc-swap/backend"
	"github.com/eigenswap/xmr-btc-swap/common"
)

// blockSleepDuration is the duration we sleep between checks for new blocks.
var blockSleepDuration = time.Second * 10

var log = logging.Logger("monero")

// WaitForBlocks waits for count new blocks to arrive on wallet's chain,
// returning the resulting height. It is a helper for waits expressed in
// blocks rather than confirmations of a specific transaction (spec.md §5's
// MoneroDoubleSpendSafeConfirmations/MoneroOutputMaturityConfirmations);
// neither state machine in this repository calls it.
func WaitForBlocks(ctx context.Context, wallet backend.MoneroWallet, count int) (uint64, error) {
	startHeight, err := wallet.DirectRPCBlockHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get height: %w", err)
	}
	prevHeight := startHeight
	targetHeight := startHeight + uint64(count)

	for {
		height, err := wallet.DirectRPCBlockHeight(ctx)
		if err != nil {
			return 0, err
		}

		if height >= targetHeight {
			return height, nil
		}

		if height > prevHeight {
			log.Debugf("waiting for next block, current height %d (target height %d)", height, targetHeight)
			prevHeight = height
		}

		if err := common.SleepWithContext(ctx, blockSleepDuration); err != nil {
			return 0, err
		}
	}
}
