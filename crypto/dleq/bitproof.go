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

func pedersenCommit(
	mult func(*secp256k1.PublicKey, *big.Int) *secp256k1.PublicKey,
	g, h *secp256k1.PublicKey,
	bit uint,
	r *big.Int,
) *secp256k1.PublicKey {
	blindTerm := mult(h, r)
	if bit == 0 {
		return blindTerm
	}
	return secpAdd(g, blindTerm)
}

func pedersenCommitEd(bit uint, r *big.Int) *edwards25519.Point {
	blindTerm := edScalarMult(auxGenEd, r)
	if bit == 0 {
		return blindTerm
	}
	return edAdd(baseGenEd, blindTerm)
}

// proveBit builds the non-interactive OR proof that (commitSecp, commitEd)
// opens to bit on both curves under blind r, without revealing bit.
func proveBit(index int, bit uint, r *big.Int, commitSecp *secp256k1.PublicKey, commitEd *edwards25519.Point) (*bitProof, error) {
	// Targets: branch b's statement is "commit - b*G = r*H" (on both curves).
	target0Secp, target0Ed := commitSecp, commitEd
	target1Secp := secpAdd(commitSecp, secpNegate(baseGenSecpPoint()))
	target1Ed := edAdd(commitEd, edNegate(baseGenEd))

	// Simulate the branch that is NOT the real bit value.
	simE, err := randBig(challengeBits)
	if err != nil {
		return nil, err
	}
	simZ, err := randBig(blindBits + challengeBits + 8)
	if err != nil {
		return nil, err
	}

	var simTargetSecp *secp256k1.PublicKey
	var simTargetEd *edwards25519.Point
	if bit == 0 {
		simTargetSecp, simTargetEd = target1Secp, target1Ed
	} else {
		simTargetSecp, simTargetEd = target0Secp, target0Ed
	}

	simASecp := secpAdd(secpScalarMult(auxGenSecpPoint(), simZ), secpNegate(secpScalarMult(simTargetSecp, simE)))
	simAEd := edAdd(edScalarMult(auxGenEd, simZ), edNegate(edScalarMult(simTargetEd, simE)))

	// Real branch: k*H commitments.
	k, err := randBig(blindBits + challengeBits + 8)
	if err != nil {
		return nil, err
	}
	realASecp := secpScalarMult(auxGenSecpPoint(), k)
	realAEd := edScalarMult(auxGenEd, k)

	var a0Secp, a1Secp *secp256k1.PublicKey
	var a0Ed, a1Ed *edwards25519.Point
	if bit == 0 {
		a0Secp, a0Ed = realASecp, realAEd
		a1Secp, a1Ed = simASecp, simAEd
	} else {
		a0Secp, a0Ed = simASecp, simAEd
		a1Secp, a1Ed = realASecp, realAEd
	}

	eTotal := fiatShamirChallenge(index, commitSecp, commitEd, a0Secp, a0Ed, a1Secp, a1Ed)

	var e0, e1, z0, z1 *big.Int
	if bit == 0 {
		e1 = simE
		e0 = new(big.Int).Sub(eTotal, e1)
		z1 = simZ
		z0 = new(big.Int).Add(k, new(big.Int).Mul(e0, r))
	} else {
		e0 = simE
		e1 = new(big.Int).Sub(eTotal, e0)
		z0 = simZ
		z1 = new(big.Int).Add(k, new(big.Int).Mul(e1, r))
	}

	return &bitProof{
		CommitSecp: commitSecp,
		CommitEd:   commitEd,
		Branch0:    branchProof{ASecp: a0Secp, AEd: a0Ed, E: e0, Z: z0},
		Branch1:    branchProof{ASecp: a1Secp, AEd: a1Ed, E: e1, Z: z1},
	}, nil
}

var errBitProofMismatch = errors.New("challenge split does not match transcript")

// verifyBit checks a single bit's OR proof: both branches' Schnorr
// equations hold against their respective targets, and the branch
// challenges sum to the Fiat-Shamir hash of the public commitments.
func verifyBit(index int, bp *bitProof) error {
	target0Secp, target0Ed := bp.CommitSecp, bp.CommitEd
	target1Secp := secpAdd(bp.CommitSecp, secpNegate(baseGenSecpPoint()))
	target1Ed := edAdd(bp.CommitEd, edNegate(baseGenEd))

	if err := checkBranch(&bp.Branch0, target0Secp, target0Ed); err != nil {
		return fmt.Errorf("branch 0: %w", err)
	}
	if err := checkBranch(&bp.Branch1, target1Secp, target1Ed); err != nil {
		return fmt.Errorf("branch 1: %w", err)
	}

	eTotal := fiatShamirChallenge(index, bp.CommitSecp, bp.CommitEd, bp.Branch0.ASecp, bp.Branch0.AEd, bp.Branch1.ASecp, bp.Branch1.AEd)
	gotSum := new(big.Int).Add(bp.Branch0.E, bp.Branch1.E)
	if gotSum.Cmp(eTotal) != 0 {
		return errBitProofMismatch
	}
	return nil
}

// checkBranch verifies z*H =? A + e*target on both curves.
func checkBranch(bp *branchProof, targetSecp *secp256k1.PublicKey, targetEd *edwards25519.Point) error {
	lhsSecp := secpScalarMult(auxGenSecpPoint(), bp.Z)
	rhsSecp := secpAdd(bp.ASecp, secpScalarMult(targetSecp, bp.E))
	if !bytesEqual(lhsSecp.CompressedBytes(), rhsSecp.CompressedBytes()) {
		return errors.New("secp256k1 schnorr equation failed")
	}

	lhsEd := edScalarMult(auxGenEd, bp.Z)
	rhsEd := edAdd(bp.AEd, edScalarMult(targetEd, bp.E))
	if lhsEd.Equal(rhsEd) != 1 {
		return errors.New("ed25519 schnorr equation failed")
	}
	return nil
}

func fiatShamirChallenge(
	index int,
	commitSecp *secp256k1.PublicKey, commitEd *edwards25519.Point,
	a0Secp *secp256k1.PublicKey, a0Ed *edwards25519.Point,
	a1Secp *secp256k1.PublicKey, a1Ed *edwards25519.Point,
) *big.Int {
	h := sha3.New256()
	h.Write([]byte("xmr-btc-swap/dleq/bit-challenge"))
	var idxBuf [4]byte
	idxBuf[0] = byte(index >> 24)
	idxBuf[1] = byte(index >> 16)
	idxBuf[2] = byte(index >> 8)
	idxBuf[3] = byte(index)
	h.Write(idxBuf[:])
	h.Write(commitSecp.CompressedBytes())
	h.Write(commitEd.Bytes())
	h.Write(a0Secp.CompressedBytes())
	h.Write(a0Ed.Bytes())
	h.Write(a1Secp.CompressedBytes())
	h.Write(a1Ed.Bytes())
	sum := h.Sum(nil)
	return new(big.Int).Mod(new(big.Int).SetBytes(sum[:16]), new(big.Int).Lsh(big.NewInt(1), challengeBits))
}

func randBig(bits uint) (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), bits))
}
