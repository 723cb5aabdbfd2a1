// Package dleq proves and verifies that a secp256k1 public key and an
// ed25519 public key share the same underlying scalar, without revealing
// the scalar. This is the cross-curve binding spec.md §3.1/§4.1 relies on:
// Maker and Taker each publish (S^btc, S^xmr) for their Monero secret share
// and must convince the other that both points were derived from the same
// `s`, since Monero's curve cannot itself express a script-level check.
//
// The proof decomposes the shared scalar into bits. For each bit it forms a
// Pedersen commitment on both curves under one shared blinding factor, and
// a Chaum-Pedersen OR proof that the pair of commitments opens consistently
// to 0 or to 1 on both curves, without revealing which. Summing the
// per-bit commitments (weighted by place value) and subtracting the
// revealed total blinding factor recovers the claimed public keys, while
// the per-bit OR proofs enforce that every "bit" genuinely is 0 or 1 — the
// soundness property a naive sum-of-commitments check alone would not give.
package dleq

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/sha3"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

// bitLength is the number of bits proven. The shared scalar is always first
// reduced mod the ed25519 group order (crypto/edscalar), so it fits in the
// ed25519 scalar's ~253-bit range; proving that many bits is always enough.
const bitLength = 253

// blindBits bounds the size of each bit's blinding factor, chosen well
// below both curves' group orders so the same literal integer blind grounds
// both curves' commitments unambiguously.
const blindBits = 240

// challengeBits bounds the size of a simulated branch's challenge in the
// per-bit OR proof.
const challengeBits = 128

// ErrInvalidProof is returned by Verify when a bit's OR proof, or the
// aggregate public-key reconstruction, fails to check out.
var ErrInvalidProof = errors.New("dleq: invalid proof")

var secpOrder = mustBigIntHex("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141")

func mustBigIntHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("dleq: bad hex constant " + s)
	}
	return n
}

// auxGenSecp and auxGenEd are fixed auxiliary generators, independent of the
// curves' standard base points, that the Pedersen commitments blind
// against. Both are derived by hashing a domain string to a scalar and
// multiplying by the base point — the usual nothing-up-my-sleeve
// construction — so nobody (including the implementer) knows their
// discrete log relative to the base point.
var (
	baseGenEd  = edwards25519.NewGeneratorPoint()
	auxGenEd   = deriveAuxGenEd()
	auxGenSecp = deriveAuxGenSecp()
)

func deriveAuxGenSecp() *secp256k1.PublicKey {
	h := sha3.Sum256([]byte("xmr-btc-swap/dleq/secp256k1-aux-generator"))
	k, err := secp256k1.NewPrivateKeyFromScalar(h[:])
	if err != nil {
		panic("dleq: fixed aux generator seed is invalid: " + err.Error())
	}
	return k.Public()
}

func deriveAuxGenEd() *edwards25519.Point {
	wide := make([]byte, 64)
	h := sha3.Sum256([]byte("xmr-btc-swap/dleq/ed25519-aux-generator"))
	copy(wide, h[:])
	s, err := new(edwards25519.Scalar).SetUniformBytes(wide)
	if err != nil {
		panic("dleq: fixed aux generator seed is invalid: " + err.Error())
	}
	return new(edwards25519.Point).ScalarBaseMult(s)
}

var baseGenSecpCached = func() *secp256k1.PublicKey {
	one, err := secp256k1.NewPrivateKeyFromScalar(bigIntToFixedBytes(big.NewInt(1), 32))
	if err != nil {
		panic(err)
	}
	return one.Public()
}()

// baseGenSecpPoint returns the secp256k1 base point G.
func baseGenSecpPoint() *secp256k1.PublicKey {
	return baseGenSecpCached
}

// auxGenSecpPoint returns the secp256k1 auxiliary (blinding) generator H.
func auxGenSecpPoint() *secp256k1.PublicKey {
	return auxGenSecp
}

// branchProof is one side of a bit's OR proof: a Schnorr-style commitment
// and response proving knowledge of a scalar r such that target = r*H on
// both curves simultaneously (same r), against that branch's target.
type branchProof struct {
	ASecp *secp256k1.PublicKey
	AEd   *edwards25519.Point
	E     *big.Int
	Z     *big.Int
}

// bitProof is the non-interactive OR proof for a single bit position.
type bitProof struct {
	CommitSecp *secp256k1.PublicKey
	CommitEd   *edwards25519.Point
	Branch0    branchProof // claims CommitSecp/CommitEd open to bit=0
	Branch1    branchProof // claims CommitSecp/CommitEd open to bit=1
}

// Proof is a complete cross-curve DLEQ proof for a bitLength-bit scalar.
type Proof struct {
	Bits []bitProof
	// RTotal is sum(2^i * r_i) over all bit blinds, revealed so the
	// verifier can cancel the aggregate Pedersen blinding when
	// reconstructing the claimed public keys from the bit commitments.
	RTotal *big.Int
}

// Prove generates a non-interactive cross-curve DLEQ proof that the
// secp256k1 public key secret*G1 and the ed25519 public key secret*G2 share
// the same discrete log, returning the proof together with those two
// public keys.
func Prove(secret *edwards25519.Scalar) (*Proof, *secp256k1.PublicKey, *edwards25519.Point, error) {
	s := scalarToBigInt(secret)

	bits := make([]bitProof, bitLength)
	rTotal := new(big.Int)

	for i := 0; i < bitLength; i++ {
		bit := s.Bit(i)

		r, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), blindBits))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sampling bit blind: %w", err)
		}

		commitSecp := pedersenCommit(secpScalarMult, baseGenSecpPoint(), auxGenSecpPoint(), bit, r)
		commitEd := pedersenCommitEd(bit, r)

		bp, err := proveBit(i, bit, r, commitSecp, commitEd)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("proving bit %d: %w", i, err)
		}
		bits[i] = *bp

		weight := pow2(i)
		rTotal.Add(rTotal, new(big.Int).Mul(r, weight))
	}

	proof := &Proof{Bits: bits, RTotal: rTotal}

	secpPub, edPub, err := proof.reconstructPublicKeys()
	if err != nil {
		return nil, nil, nil, err
	}
	return proof, secpPub, edPub, nil
}

// Verify checks proof against the claimed public keys.
func Verify(proof *Proof, secpPub *secp256k1.PublicKey, edPub *edwards25519.Point) error {
	if len(proof.Bits) != bitLength {
		return fmt.Errorf("%w: expected %d bit proofs, got %d", ErrInvalidProof, bitLength, len(proof.Bits))
	}

	for i := range proof.Bits {
		if err := verifyBit(i, &proof.Bits[i]); err != nil {
			return fmt.Errorf("%w: bit %d: %w", ErrInvalidProof, i, err)
		}
	}

	gotSecp, gotEd, err := proof.reconstructPublicKeys()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}
	if !bytesEqual(gotSecp.CompressedBytes(), secpPub.CompressedBytes()) {
		return fmt.Errorf("%w: secp256k1 public key mismatch", ErrInvalidProof)
	}
	if gotEd.Equal(edPub) != 1 {
		return fmt.Errorf("%w: ed25519 public key mismatch", ErrInvalidProof)
	}
	return nil
}

// reconstructPublicKeys computes sum(2^i * Commit_i) - RTotal*H on each
// curve, which equals s*G exactly when every commitment truthfully opens to
// its claimed bit (the property the per-bit OR proofs enforce).
func (p *Proof) reconstructPublicKeys() (*secp256k1.PublicKey, *edwards25519.Point, error) {
	var sumSecp *secp256k1.PublicKey
	var sumEd *edwards25519.Point

	for i, bp := range p.Bits {
		weight := pow2(i)
		termSecp := secpScalarMult(bp.CommitSecp, weight)
		termEd := edScalarMult(bp.CommitEd, weight)
		sumSecp = secpAdd(sumSecp, termSecp)
		sumEd = edAdd(sumEd, termEd)
	}

	blindSecp := secpScalarMult(auxGenSecpPoint(), p.RTotal)
	blindEd := edScalarMult(auxGenEd, p.RTotal)

	resultSecp := secpAdd(sumSecp, secpNegate(blindSecp))
	resultEd := edAdd(sumEd, edNegate(blindEd))

	return resultSecp, resultEd, nil
}
