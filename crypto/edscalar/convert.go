// Package edscalar converts a secp256k1 scalar into the ed25519 scalar field,
// the operation that lets a single value `s` serve as both a Bitcoin secret
// share and a Monero private key component (spec.md §3.1, §4.1).
package edscalar

import (
	"fmt"

	"filippo.io/edwards25519"

	"github.com/eigenswap/xmr-btc-swap/common"
	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

// FromSecp256k1 reduces a secp256k1 private key's scalar value modulo the
// ed25519 group order, after reversing its byte order from big-endian to
// little-endian. This is the reverse-and-reduce step both Maker and Taker
// run whenever a secp256k1-side secret leaks on-chain and must be combined
// with the counterparty's ed25519-side share to recover the Monero spend key.
func FromSecp256k1(k *secp256k1.PrivateKey) (*edwards25519.Scalar, error) {
	be := k.Bytes()
	le := common.Reverse(be[:])

	// edwards25519.Scalar.SetBytesWithClamping expects exactly 32 bytes, and
	// SetCanonicalBytes requires the value already be reduced; neither
	// matches "reduce an arbitrary 32-byte value mod L" so we widen to the
	// 64-byte wide-reduction input SetUniformBytes expects.
	wide := make([]byte, 64)
	copy(wide, le)

	s, err := new(edwards25519.Scalar).SetUniformBytes(wide)
	if err != nil {
		return nil, fmt.Errorf("reducing scalar mod ed25519 order: %w", err)
	}
	return s, nil
}

// Add returns a+b reduced mod the ed25519 group order, used when the Maker
// combines s_a with a recovered s_b (or vice versa) to form the joint
// Monero spend scalar.
func Add(a, b *edwards25519.Scalar) *edwards25519.Scalar {
	return new(edwards25519.Scalar).Add(a, b)
}

// Bytes32 returns the canonical little-endian encoding of s.
func Bytes32(s *edwards25519.Scalar) [32]byte {
	var out [32]byte
	copy(out[:], s.Bytes())
	return out
}
