package adaptor

import (
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

// proveDLEQ proves knowledge of k such that rPrime = k*G and r = k*encKey,
// without revealing k. Same-curve Chaum-Pedersen construction: a single
// Schnorr-style commitment/response pair, checked against both statements
// under one Fiat-Shamir challenge.
func proveDLEQ(k *big.Int, rPrime, r, encKey *secp256k1.PublicKey) (*DLEQProof, error) {
	t, err := randScalar()
	if err != nil {
		return nil, err
	}

	t1 := baseMult(t)
	t2 := scalarMult(encKey, t)

	c := dleqChallenge(encKey, rPrime, r, t1, t2)

	z := new(big.Int).Mul(c, k)
	z.Add(z, t)
	z.Mod(z, curveOrder)

	return &DLEQProof{C: c, Z: z}, nil
}

var errDLEQMismatch = errors.New("dleq proof challenge mismatch")

// verifyDLEQ checks proof against the claim that rPrime = k*G and r = k*encKey
// share the same k, for some k the prover knows.
func verifyDLEQ(proof *DLEQProof, rPrime, r, encKey *secp256k1.PublicKey) error {
	// T1 = z*G - c*R', T2 = z*Y - c*R
	t1 := addPoints(baseMult(proof.Z), negatePoint(scalarMult(rPrime, proof.C)))
	t2 := addPoints(scalarMult(encKey, proof.Z), negatePoint(scalarMult(r, proof.C)))

	c := dleqChallenge(encKey, rPrime, r, t1, t2)
	if c.Cmp(proof.C) != 0 {
		return errDLEQMismatch
	}
	return nil
}

func dleqChallenge(encKey, rPrime, r, t1, t2 *secp256k1.PublicKey) *big.Int {
	h := sha256.New()
	h.Write([]byte("xmr-btc-swap/adaptor/dleq"))
	h.Write(encKey.CompressedBytes())
	h.Write(rPrime.CompressedBytes())
	h.Write(r.CompressedBytes())
	h.Write(t1.CompressedBytes())
	h.Write(t2.CompressedBytes())
	return new(big.Int).Mod(new(big.Int).SetBytes(h.Sum(nil)), curveOrder)
}
