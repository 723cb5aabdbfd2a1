// Package secp256k1 wraps btcec/v2 key types in the Scalar/Point vocabulary
// the cross-curve cryptography (crypto/dleq, crypto/adaptor, crypto/edscalar)
// shares with its ed25519 counterpart (crypto/monero).
package secp256k1

import (
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PrivateKey is a secp256k1 scalar: the Bitcoin secret `a`/`b` or the
// secp256k1 half of a Monero secret share `s_a`/`s_b` (spec.md §3.1).
type PrivateKey struct {
	key *btcec.PrivateKey
}

// PublicKey is a secp256k1 curve point.
type PublicKey struct {
	key *btcec.PublicKey
}

// GenerateKey returns a random PrivateKey.
func GenerateKey() (*PrivateKey, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating secp256k1 key: %w", err)
	}
	return &PrivateKey{key: k}, nil
}

// NewPrivateKeyFromScalar builds a PrivateKey from a 32-byte big-endian
// scalar. Returns an error if b does not represent a valid non-zero scalar
// reduced mod the curve order.
func NewPrivateKeyFromScalar(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("scalar must be 32 bytes, got %d", len(b))
	}
	var scalar btcec.ModNScalar
	overflow := scalar.SetByteSlice(b)
	if overflow {
		return nil, fmt.Errorf("scalar overflows secp256k1 curve order")
	}
	if scalar.IsZero() {
		return nil, fmt.Errorf("scalar must be non-zero")
	}
	return &PrivateKey{key: btcec.PrivKeyFromScalar(&scalar)}, nil
}

// Bytes returns the 32-byte big-endian encoding of the scalar.
func (k *PrivateKey) Bytes() [32]byte {
	return k.key.Key.Bytes()
}

// Public returns the associated public key k*G.
func (k *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: k.key.PubKey()}
}

// AsBtcec exposes the underlying btcec key for callers that need to drive
// txscript/ecdsa signing directly.
func (k *PrivateKey) AsBtcec() *btcec.PrivateKey {
	return k.key
}

// Scalar returns the key's value as a ModNScalar for arithmetic.
func (k *PrivateKey) Scalar() *btcec.ModNScalar {
	return &k.key.Key
}

// Add returns a new PrivateKey whose scalar is k+other mod the curve order.
func (k *PrivateKey) Add(other *PrivateKey) *PrivateKey {
	var sum btcec.ModNScalar
	sum.Add2(&k.key.Key, &other.key.Key)
	return &PrivateKey{key: btcec.PrivKeyFromScalar(&sum)}
}

// NewPublicKeyFromBytes parses a compressed or uncompressed SEC1 public key.
func NewPublicKeyFromBytes(b []byte) (*PublicKey, error) {
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("parsing secp256k1 public key: %w", err)
	}
	return &PublicKey{key: pub}, nil
}

// FromJacobian builds a PublicKey from an affine-reduced Jacobian point, for
// callers (crypto/dleq, crypto/adaptor) that compute curve points directly
// via btcec's low-level scalar-multiplication primitives rather than
// through a PrivateKey. jp must not be the point at infinity.
func FromJacobian(jp *btcec.JacobianPoint) *PublicKey {
	jp.ToAffine()
	return &PublicKey{key: btcec.NewPublicKey(&jp.X, &jp.Y)}
}

// CompressedBytes returns the 33-byte compressed SEC1 encoding.
func (p *PublicKey) CompressedBytes() []byte {
	return p.key.SerializeCompressed()
}

// AsBtcec exposes the underlying btcec public key.
func (p *PublicKey) AsBtcec() *btcec.PublicKey {
	return p.key
}

// Add returns p+other, the curve-point analogue of PrivateKey.Add.
func (p *PublicKey) Add(other *PublicKey) *PublicKey {
	var p1, p2, sum btcec.JacobianPoint
	p.key.AsJacobian(&p1)
	other.key.AsJacobian(&p2)
	btcec.AddNonConst(&p1, &p2, &sum)
	sum.ToAffine()
	return &PublicKey{key: btcec.NewPublicKey(&sum.X, &sum.Y)}
}

// RandomNonce returns a cryptographically random, non-zero secp256k1
// scalar. crypto/adaptor and crypto/dleq sample their nonces with their own
// helpers, not with this function.
func RandomNonce() (*PrivateKey, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	for {
		k, err := NewPrivateKeyFromScalar(buf)
		if err == nil {
			return k, nil
		}
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
	}
}
