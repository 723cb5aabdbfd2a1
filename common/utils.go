package common

import (
	"context"
	"os"
	"time"
)

// Reverse returns a new slice containing the bytes of in, in reverse
// order. The input slice is never modified. This is used to convert
// between the big-endian byte order secp256k1 scalars are normally
// serialized in, and the little-endian order ed25519 expects (spec.md
// §4.1).
func Reverse(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[len(in)-1-i] = b
	}
	return out
}

// SleepWithContext sleeps for the given duration, or returns ctx.Err()
// early if ctx is cancelled first. Every retry loop in the swap drivers
// uses this instead of time.Sleep so that a per-swap suspend signal
// (spec.md §5) can abort the driver at its next suspension point.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MakeDir creates dir (and any missing parents) with user-only
// permissions, if it does not already exist. It is not an error if dir
// already exists.
func MakeDir(dir string) error {
	return os.MkdirAll(dir, 0o700)
}
