package dleq

import (
	"bytes"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"filippo.io/edwards25519"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

func pow2(i int) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(i))
}

func bytesEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// scalarToBigInt converts an ed25519 scalar's canonical little-endian
// encoding into a big-endian big.Int.
func scalarToBigInt(s *edwards25519.Scalar) *big.Int {
	b := s.Bytes()
	return new(big.Int).SetBytes(reverseBytes(b))
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

// bigIntToFixedBytes renders v as a big-endian byte slice of exactly n
// bytes, left-padded with zeros. v must fit within n bytes.
func bigIntToFixedBytes(v *big.Int, n int) []byte {
	out := make([]byte, n)
	v.FillBytes(out)
	return out
}

// secpScalarMult returns scalar*point on secp256k1, reducing scalar mod the
// curve order first (scalar may be negative or wider than 32 bytes, as
// happens with OR-proof responses z = k + e*r).
func secpScalarMult(point *secp256k1.PublicKey, scalar *big.Int) *secp256k1.PublicKey {
	red := new(big.Int).Mod(scalar, secpOrder)

	var k btcec.ModNScalar
	k.SetByteSlice(bigIntToFixedBytes(red, 32))

	var jp, result btcec.JacobianPoint
	point.AsBtcec().AsJacobian(&jp)
	btcec.ScalarMultNonConst(&k, &jp, &result)
	return secp256k1.FromJacobian(&result)
}

// secpAdd returns a+b, treating a nil operand as the group identity.
func secpAdd(a, b *secp256k1.PublicKey) *secp256k1.PublicKey {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return a.Add(b)
}

// secpNegate returns -p.
func secpNegate(p *secp256k1.PublicKey) *secp256k1.PublicKey {
	var jp btcec.JacobianPoint
	p.AsBtcec().AsJacobian(&jp)
	jp.Y.Negate(1).Normalize()
	return secp256k1.FromJacobian(&jp)
}

// edScalarMult returns scalar*point on ed25519, reducing scalar mod the
// curve order first via the same wide-reduction approach crypto/edscalar uses.
func edScalarMult(point *edwards25519.Point, scalar *big.Int) *edwards25519.Point {
	wide := make([]byte, 64)
	abs := new(big.Int).Abs(scalar)
	copy(wide, reverseBytes(bigIntToFixedBytesVar(abs)))

	s, err := new(edwards25519.Scalar).SetUniformBytes(wide)
	if err != nil {
		panic("dleq: scalar reduction failed: " + err.Error())
	}
	if scalar.Sign() < 0 {
		s = s.Negate(s)
	}
	return new(edwards25519.Point).ScalarMult(s, point)
}

// bigIntToFixedBytesVar renders v as its minimal big-endian byte slice
// (unlike bigIntToFixedBytes, length is not fixed — used only as an
// intermediate before byte-reversal into a wide little-endian buffer).
func bigIntToFixedBytesVar(v *big.Int) []byte {
	return v.Bytes()
}

// edAdd returns a+b, treating a nil operand as the group identity.
func edAdd(a, b *edwards25519.Point) *edwards25519.Point {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return new(edwards25519.Point).Add(a, b)
}

// edNegate returns -p.
func edNegate(p *edwards25519.Point) *edwards25519.Point {
	return new(edwards25519.Point).Negate(p)
}
