package adaptor

import (
	"math/big"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

// Sign produces an ordinary low-s normalized ECDSA signature on digest m
// under x, using the same manual scalar arithmetic as the rest of this
// package (Decrypt, Recover) rather than a separate ECDSA implementation.
// Every transaction in the presigned graph that is not carried over the
// adaptor channel (tx_cancel, tx_punish, tx_early_refund, and the
// amnesty-path transactions) is authorized with this instead of EncSign
// (spec.md §4.3 messages 3-4).
func Sign(x *secp256k1.PrivateKey, m [32]byte) (*Signature, error) {
	xScalar := scalarFromPrivateKey(x)
	e := hashToScalar(m)

	for {
		k, err := randScalar()
		if err != nil {
			return nil, err
		}
		R := baseMult(k)
		r := xCoordScalar(R)
		if r.Sign() == 0 {
			continue
		}

		s := new(big.Int).Mul(r, xScalar)
		s.Add(s, e)
		s.Mul(s, modInverse(k))
		s.Mod(s, curveOrder)
		if s.Sign() == 0 {
			continue
		}

		half := new(big.Int).Rsh(curveOrder, 1)
		if s.Cmp(half) > 0 {
			s = new(big.Int).Sub(curveOrder, s)
		}
		return &Signature{R: r, S: s}, nil
	}
}
