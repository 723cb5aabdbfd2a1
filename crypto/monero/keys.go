// Package monero holds the Monero-side key types (spend/view scalars on
// ed25519) and the joint-address construction the swap's view-only scanning
// and final sweep depend on (spec.md §3.1, §4.1).
package monero

import (
	"crypto/rand"
	"fmt"

	"filippo.io/edwards25519"
)

// PrivateSpendKey is an ed25519 scalar used as a Monero spend secret: either
// a party's half-share s_a/s_b, or the final combined spend scalar s_a+s_b.
type PrivateSpendKey struct {
	scalar *edwards25519.Scalar
}

// NewPrivateSpendKeyFromScalar wraps an already-reduced ed25519 scalar.
func NewPrivateSpendKeyFromScalar(s *edwards25519.Scalar) *PrivateSpendKey {
	return &PrivateSpendKey{scalar: s}
}

// Bytes returns the canonical 32-byte little-endian encoding.
func (k *PrivateSpendKey) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], k.scalar.Bytes())
	return out
}

// Public returns the associated public spend key k*B (B the ed25519 base point).
func (k *PrivateSpendKey) Public() *PublicSpendKey {
	return &PublicSpendKey{point: new(edwards25519.Point).ScalarBaseMult(k.scalar)}
}

// Add returns the combined spend key k+other, used when a Maker or Taker
// learns the counterparty's share and must reconstruct the joint wallet's
// spend secret s = s_a + s_b.
func (k *PrivateSpendKey) Add(other *PrivateSpendKey) *PrivateSpendKey {
	return &PrivateSpendKey{scalar: new(edwards25519.Scalar).Add(k.scalar, other.scalar)}
}

// PublicSpendKey is an ed25519 curve point: S_a^xmr or S_b^xmr, or their sum S.
type PublicSpendKey struct {
	point *edwards25519.Point
}

// NewPublicSpendKeyFromBytes parses a canonically-encoded ed25519 point.
func NewPublicSpendKeyFromBytes(b []byte) (*PublicSpendKey, error) {
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return nil, fmt.Errorf("parsing monero public spend key: %w", err)
	}
	return &PublicSpendKey{point: p}, nil
}

// Bytes returns the canonical 32-byte encoding.
func (k *PublicSpendKey) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], k.point.Bytes())
	return out
}

// Add returns k+other.
func (k *PublicSpendKey) Add(other *PublicSpendKey) *PublicSpendKey {
	return &PublicSpendKey{point: new(edwards25519.Point).Add(k.point, other.point)}
}

// PrivateViewKey is the shared view key `v` that lets either party's wallet
// software scan for the joint lock output (spec.md §3.1). Unlike the spend
// key, it is generated by one party and disclosed to the other in the clear
// during setup — view keys carry no spending power on their own.
type PrivateViewKey struct {
	scalar *edwards25519.Scalar
}

// NewPrivateViewKey generates a random view key.
func NewPrivateViewKey() (*PrivateViewKey, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating view key: %w", err)
	}
	s, err := new(edwards25519.Scalar).SetUniformBytes(buf)
	if err != nil {
		return nil, err
	}
	return &PrivateViewKey{scalar: s}, nil
}

// NewPrivateViewKeyFromBytes parses a canonically-encoded, already-reduced
// ed25519 scalar as received from the counterparty's view-key share during
// setup (spec.md §4.3 message 0/1's v_a/v_b field).
func NewPrivateViewKeyFromBytes(b []byte) (*PrivateViewKey, error) {
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(b)
	if err != nil {
		return nil, fmt.Errorf("parsing view key share: %w", err)
	}
	return &PrivateViewKey{scalar: s}, nil
}

// Bytes returns the canonical 32-byte little-endian encoding.
func (k *PrivateViewKey) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], k.scalar.Bytes())
	return out
}

// Public returns the associated public view key.
func (k *PrivateViewKey) Public() *PublicViewKey {
	return &PublicViewKey{point: new(edwards25519.Point).ScalarBaseMult(k.scalar)}
}

// Add returns the joint view key v_a+v_b, once each party has disclosed its
// half in the clear during setup (spec.md §3.1: v = v_a + v_b).
func (k *PrivateViewKey) Add(other *PrivateViewKey) *PrivateViewKey {
	return &PrivateViewKey{scalar: new(edwards25519.Scalar).Add(k.scalar, other.scalar)}
}

// PublicViewKey is the public half of a PrivateViewKey.
type PublicViewKey struct {
	point *edwards25519.Point
}

// Bytes returns the canonical 32-byte encoding.
func (k *PublicViewKey) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], k.point.Bytes())
	return out
}

// Add returns V_a+V_b, the public half of the joint view key.
func (k *PublicViewKey) Add(other *PublicViewKey) *PublicViewKey {
	return &PublicViewKey{point: new(edwards25519.Point).Add(k.point, other.point)}
}

// KeyPair bundles a spend and view key, public or private, as used to
// describe the joint lock wallet or one party's own wallet.
type PrivateKeyPair struct {
	SpendKey *PrivateSpendKey
	ViewKey  *PrivateViewKey
}

// PublicKeyPair is the public half of a PrivateKeyPair: (S, V).
type PublicKeyPair struct {
	SpendKey *PublicSpendKey
	ViewKey  *PublicViewKey
}

// Public returns the public key pair (S, V) for kp.
func (kp *PrivateKeyPair) Public() *PublicKeyPair {
	return &PublicKeyPair{
		SpendKey: kp.SpendKey.Public(),
		ViewKey:  kp.ViewKey.Public(),
	}
}

// SumSpendAndViewKeys combines two parties' key pairs into the joint
// wallet's key pair: both spend keys and both view keys add directly
// (S = S_a + S_b, V = V_a + V_b, spec.md §3.1).
func SumSpendAndViewKeys(a, b *PublicKeyPair) *PublicKeyPair {
	return &PublicKeyPair{
		SpendKey: a.SpendKey.Add(b.SpendKey),
		ViewKey:  a.ViewKey.Add(b.ViewKey),
	}
}

// SumPrivateSpendKeys combines two parties' private spend shares into the
// joint wallet's spend secret, used once a refund or redeem leaks the
// counterparty's share on-chain.
func SumPrivateSpendKeys(a, b *PrivateSpendKey) *PrivateSpendKey {
	return a.Add(b)
}

// SumPrivateViewKeys combines two parties' view-key halves into the joint
// wallet's full private view key, used immediately at setup time since
// both halves are disclosed in the clear (spec.md §3.1).
func SumPrivateViewKeys(a, b *PrivateViewKey) *PrivateViewKey {
	return a.Add(b)
}
