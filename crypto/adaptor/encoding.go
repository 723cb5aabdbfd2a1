package adaptor

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

// MarshalBinary serializes an EncryptedSignature for the setup protocol's
// and the encrypted-signature channel's wire messages (spec.md §4.3
// message 3, §4.6).
func (e *EncryptedSignature) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(e.RPrime.CompressedBytes())
	buf.Write(e.R.CompressedBytes())
	writeScalar32(&buf, e.SPrime)
	writeScalar32(&buf, e.Proof.C)
	writeScalar32(&buf, e.Proof.Z)
	return buf.Bytes(), nil
}

// UnmarshalEncryptedSignature parses an EncryptedSignature encoded by
// MarshalBinary.
func UnmarshalEncryptedSignature(data []byte) (*EncryptedSignature, error) {
	if len(data) != 33+33+32+32+32 {
		return nil, fmt.Errorf("%w: encrypted signature has %d bytes, want %d", ErrInvalidEncSig, len(data), 33+33+32+32+32)
	}
	rPrime, err := secp256k1.NewPublicKeyFromBytes(data[0:33])
	if err != nil {
		return nil, fmt.Errorf("decoding R': %w", err)
	}
	r, err := secp256k1.NewPublicKeyFromBytes(data[33:66])
	if err != nil {
		return nil, fmt.Errorf("decoding R: %w", err)
	}
	sPrime := new(big.Int).SetBytes(data[66:98])
	c := new(big.Int).SetBytes(data[98:130])
	z := new(big.Int).SetBytes(data[130:162])
	return &EncryptedSignature{
		RPrime: rPrime,
		R:      r,
		SPrime: sPrime,
		Proof:  &DLEQProof{C: c, Z: z},
	}, nil
}

// MarshalBinary serializes a Signature to its 64-byte fixed-width r||s form.
func (s *Signature) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	writeScalar32(&buf, s.R)
	writeScalar32(&buf, s.S)
	return buf.Bytes(), nil
}

// UnmarshalSignature parses a Signature encoded by MarshalBinary.
func UnmarshalSignature(data []byte) (*Signature, error) {
	if len(data) != 64 {
		return nil, fmt.Errorf("%w: signature has %d bytes, want 64", ErrInvalidSignature, len(data))
	}
	return &Signature{
		R: new(big.Int).SetBytes(data[0:32]),
		S: new(big.Int).SetBytes(data[32:64]),
	}, nil
}

func writeScalar32(buf *bytes.Buffer, n *big.Int) {
	var b [32]byte
	n.FillBytes(b[:])
	buf.Write(b[:])
}
