package dleq

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"filippo.io/edwards25519"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

// MarshalBinary serializes a Proof for the setup protocol's wire messages
// (spec.md §4.3, message 0/1). Every big.Int field is length-prefixed since
// the per-bit OR proof's challenge/response values and the revealed
// aggregate blind do not have a fixed byte width.
func (p *Proof) MarshalBinary() ([]byte, error) {
	if len(p.Bits) != bitLength {
		return nil, fmt.Errorf("%w: proof has %d bit proofs, want %d", ErrInvalidProof, len(p.Bits), bitLength)
	}

	var buf bytes.Buffer
	for i := range p.Bits {
		bp := &p.Bits[i]
		writePoint(&buf, bp.CommitSecp)
		writeEdPoint(&buf, bp.CommitEd)
		writeBranch(&buf, &bp.Branch0)
		writeBranch(&buf, &bp.Branch1)
	}
	writeBigInt(&buf, p.RTotal)
	return buf.Bytes(), nil
}

// UnmarshalBinary parses a Proof encoded by MarshalBinary.
func (p *Proof) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	bits := make([]bitProof, bitLength)
	for i := range bits {
		commitSecp, err := readPoint(r)
		if err != nil {
			return fmt.Errorf("reading bit %d commitment: %w", i, err)
		}
		commitEd, err := readEdPoint(r)
		if err != nil {
			return fmt.Errorf("reading bit %d ed commitment: %w", i, err)
		}
		b0, err := readBranch(r)
		if err != nil {
			return fmt.Errorf("reading bit %d branch0: %w", i, err)
		}
		b1, err := readBranch(r)
		if err != nil {
			return fmt.Errorf("reading bit %d branch1: %w", i, err)
		}
		bits[i] = bitProof{CommitSecp: commitSecp, CommitEd: commitEd, Branch0: *b0, Branch1: *b1}
	}
	rTotal, err := readBigInt(r)
	if err != nil {
		return fmt.Errorf("reading aggregate blind: %w", err)
	}
	p.Bits = bits
	p.RTotal = rTotal
	return nil
}

func writeBranch(buf *bytes.Buffer, b *branchProof) {
	writePoint(buf, b.ASecp)
	writeEdPoint(buf, b.AEd)
	writeBigInt(buf, b.E)
	writeBigInt(buf, b.Z)
}

func readBranch(r *bytes.Reader) (*branchProof, error) {
	aSecp, err := readPoint(r)
	if err != nil {
		return nil, err
	}
	aEd, err := readEdPoint(r)
	if err != nil {
		return nil, err
	}
	e, err := readBigInt(r)
	if err != nil {
		return nil, err
	}
	z, err := readBigInt(r)
	if err != nil {
		return nil, err
	}
	return &branchProof{ASecp: aSecp, AEd: aEd, E: e, Z: z}, nil
}

func writePoint(buf *bytes.Buffer, p *secp256k1.PublicKey) {
	writeLenPrefixed(buf, p.CompressedBytes())
}

func readPoint(r *bytes.Reader) (*secp256k1.PublicKey, error) {
	b, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	return secp256k1.NewPublicKeyFromBytes(b)
}

func writeEdPoint(buf *bytes.Buffer, p *edwards25519.Point) {
	writeLenPrefixed(buf, p.Bytes())
}

func readEdPoint(r *bytes.Reader) (*edwards25519.Point, error) {
	b, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	p, err := edwards25519.NewIdentityPoint().SetBytes(b)
	if err != nil {
		return nil, fmt.Errorf("decoding ed25519 point: %w", err)
	}
	return p, nil
}

func writeBigInt(buf *bytes.Buffer, n *big.Int) {
	writeLenPrefixed(buf, n.Bytes())
}

func readBigInt(r *bytes.Reader) (*big.Int, error) {
	b, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	if _, err := readFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func readFull(r *bytes.Reader, out []byte) (int, error) {
	n, err := r.Read(out)
	if err != nil {
		return n, err
	}
	if n != len(out) {
		return n, fmt.Errorf("short read: got %d bytes, want %d", n, len(out))
	}
	return n, nil
}
