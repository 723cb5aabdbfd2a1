// Package adaptor implements ECDSA adaptor signatures on secp256k1
// (spec.md §4.1). An encrypted signature lets a signer X commit to a
// message m without producing anything spendable: only a party holding the
// discrete log y of the encryption key Y=y*G can decrypt it into a real
// ECDSA signature, and once that real signature surfaces anywhere (mined
// on-chain, most commonly) anyone still holding the encrypted signature can
// recover y from it.
//
// The protocol wires this twice over, in opposite directions, to leak each
// party's half of the shared Monero spend key through the Bitcoin side of
// the swap: see protocol/maker and protocol/taker for which concrete keys
// play signer and encryption-key roles on each transaction.
package adaptor

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

var curveOrder = mustHex("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141")

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("adaptor: bad hex constant " + s)
	}
	return n
}

// ErrInvalidEncSig is returned by EncVerify when an encrypted signature's
// proof or pre-signature equation fails to check out, and by
// UnmarshalEncryptedSignature for an encoding of the wrong length.
var ErrInvalidEncSig = errors.New("adaptor: invalid encrypted signature")

// ErrInvalidSignature is returned by Verify when a signature does not verify
// under the signer's key (for a decrypted signature, this signals a malformed
// encrypted signature), and by UnmarshalSignature for an encoding of the
// wrong length. Decrypt itself returns no error.
var ErrInvalidSignature = errors.New("adaptor: decrypted signature does not verify under signer's key")

// DLEQProof is a Chaum-Pedersen proof that R' = k*G and R = k*Y share the
// same discrete log k, binding the adaptor point to the presignature nonce
// without revealing k.
type DLEQProof struct {
	C *big.Int
	Z *big.Int
}

// EncryptedSignature is a presignature for message m under signer key X: it
// does not verify as an ordinary ECDSA signature, but Decrypt turns it into
// one given y with Y=y*G, and Recover turns a later-observed decryption back
// into y.
type EncryptedSignature struct {
	RPrime *secp256k1.PublicKey // k*G, the nonce commitment
	R      *secp256k1.PublicKey // k*Y, whose x-coordinate mod n becomes the signature's r
	SPrime *big.Int
	Proof  *DLEQProof
}

// Signature is a standard low-s normalized ECDSA signature.
type Signature struct {
	R *big.Int
	S *big.Int
}

func hashToScalar(m [32]byte) *big.Int {
	return new(big.Int).Mod(new(big.Int).SetBytes(m[:]), curveOrder)
}

func xCoordScalar(p *secp256k1.PublicKey) *big.Int {
	return new(big.Int).Mod(p.AsBtcec().X(), curveOrder)
}

func modInverse(x *big.Int) *big.Int {
	return new(big.Int).ModInverse(x, curveOrder)
}

func scalarMult(point *secp256k1.PublicKey, scalar *big.Int) *secp256k1.PublicKey {
	red := new(big.Int).Mod(scalar, curveOrder)
	var k btcec.ModNScalar
	buf := make([]byte, 32)
	red.FillBytes(buf)
	k.SetByteSlice(buf)

	var jp, result btcec.JacobianPoint
	point.AsBtcec().AsJacobian(&jp)
	btcec.ScalarMultNonConst(&k, &jp, &result)
	return secp256k1.FromJacobian(&result)
}

func addPoints(a, b *secp256k1.PublicKey) *secp256k1.PublicKey {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return a.Add(b)
}

func negatePoint(p *secp256k1.PublicKey) *secp256k1.PublicKey {
	var jp btcec.JacobianPoint
	p.AsBtcec().AsJacobian(&jp)
	jp.Y.Negate(1).Normalize()
	return secp256k1.FromJacobian(&jp)
}

func baseMult(scalar *big.Int) *secp256k1.PublicKey {
	red := new(big.Int).Mod(scalar, curveOrder)
	buf := make([]byte, 32)
	red.FillBytes(buf)
	k, err := secp256k1.NewPrivateKeyFromScalar(buf)
	if err != nil {
		// scalar is 0 mod n; this only happens with negligible probability
		// for honestly-sampled nonces, so treat it as a hard failure.
		panic("adaptor: base-point scalar reduced to zero: " + err.Error())
	}
	return k.Public()
}

func randScalar() (*big.Int, error) {
	for {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		k := new(big.Int).SetBytes(buf)
		if k.Sign() != 0 && k.Cmp(curveOrder) < 0 {
			return k, nil
		}
	}
}

// EncSign produces an encrypted signature on message digest m, signed under
// signing key x (with public key X = x*G), encrypted under encryption key
// Y = y*G for unknown y.
func EncSign(x *secp256k1.PrivateKey, encKey *secp256k1.PublicKey, m [32]byte) (*EncryptedSignature, error) {
	k, err := randScalar()
	if err != nil {
		return nil, fmt.Errorf("sampling nonce: %w", err)
	}

	rPrime := baseMult(k)
	r := scalarMult(encKey, k)

	proof, err := proveDLEQ(k, rPrime, r, encKey)
	if err != nil {
		return nil, fmt.Errorf("proving nonce consistency: %w", err)
	}

	rScalar := xCoordScalar(r)
	xScalar := scalarFromPrivateKey(x)
	e := hashToScalar(m)

	// s' = k^-1 * (e + r*x) mod n
	num := new(big.Int).Add(e, new(big.Int).Mul(rScalar, xScalar))
	num.Mod(num, curveOrder)
	sPrime := new(big.Int).Mul(modInverse(k), num)
	sPrime.Mod(sPrime, curveOrder)

	return &EncryptedSignature{
		RPrime: rPrime,
		R:      r,
		SPrime: sPrime,
		Proof:  proof,
	}, nil
}

func scalarFromPrivateKey(x *secp256k1.PrivateKey) *big.Int {
	b := x.Bytes()
	return new(big.Int).SetBytes(b[:])
}

// EncVerify checks that encSig is a well-formed encrypted signature on
// digest m, under signer X and encryption key Y.
func EncVerify(signer, encKey *secp256k1.PublicKey, m [32]byte, encSig *EncryptedSignature) error {
	if err := verifyDLEQ(encSig.Proof, encSig.RPrime, encSig.R, encKey); err != nil {
		return fmt.Errorf("%w: nonce consistency proof: %w", ErrInvalidEncSig, err)
	}

	rScalar := xCoordScalar(encSig.R)
	e := hashToScalar(m)
	sInv := modInverse(encSig.SPrime)

	// Pre-signature equation: R' =? (e*s'^-1)*G + (r*s'^-1)*X
	u1 := new(big.Int).Mul(e, sInv)
	u1.Mod(u1, curveOrder)
	u2 := new(big.Int).Mul(rScalar, sInv)
	u2.Mod(u2, curveOrder)

	lhs := addPoints(baseMult(u1), scalarMult(signer, u2))
	if !bytesEqual(lhs.CompressedBytes(), encSig.RPrime.CompressedBytes()) {
		return fmt.Errorf("%w: pre-signature equation failed", ErrInvalidEncSig)
	}
	return nil
}

// Decrypt turns encSig into a real, verifiable ECDSA signature under
// decryption secret y (with Y = y*G the encryption key encSig was created
// against). The caller must independently know encSig verified under the
// correct signer and Y before trusting the result.
func Decrypt(encSig *EncryptedSignature, y *secp256k1.PrivateKey) *Signature {
	yScalar := scalarFromPrivateKey(y)
	yInv := modInverse(yScalar)

	r := xCoordScalar(encSig.R)
	s := new(big.Int).Mul(encSig.SPrime, yInv)
	s.Mod(s, curveOrder)

	// Normalize to low-s, matching Bitcoin's canonical signature form.
	half := new(big.Int).Rsh(curveOrder, 1)
	if s.Cmp(half) > 0 {
		s = new(big.Int).Sub(curveOrder, s)
	}
	return &Signature{R: r, S: s}
}

// Recover extracts the encryption secret y from an encrypted signature and
// its decrypted counterpart once the latter has appeared on-chain.
func Recover(encKey *secp256k1.PublicKey, sig *Signature, encSig *EncryptedSignature) (*secp256k1.PrivateKey, error) {
	sInv := modInverse(sig.S)
	y := new(big.Int).Mul(encSig.SPrime, sInv)
	y.Mod(y, curveOrder)

	buf := make([]byte, 32)
	y.FillBytes(buf)
	candidate, err := secp256k1.NewPrivateKeyFromScalar(buf)
	if err != nil {
		return nil, fmt.Errorf("recovered scalar invalid: %w", err)
	}
	if bytesEqual(candidate.Public().CompressedBytes(), encKey.CompressedBytes()) {
		return candidate, nil
	}

	// Decrypt's low-s normalization may have flipped s's sign relative to
	// the value s' was actually encrypted against; try the negated scalar.
	negY := new(big.Int).Sub(curveOrder, y)
	negY.Mod(negY, curveOrder)
	negBuf := make([]byte, 32)
	negY.FillBytes(negBuf)
	negCandidate, err := secp256k1.NewPrivateKeyFromScalar(negBuf)
	if err != nil {
		return nil, fmt.Errorf("recovered scalar invalid: %w", err)
	}
	if bytesEqual(negCandidate.Public().CompressedBytes(), encKey.CompressedBytes()) {
		return negCandidate, nil
	}
	return nil, fmt.Errorf("adaptor: recovered secret does not match encryption key")
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
