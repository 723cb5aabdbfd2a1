package adaptor

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

// Verify checks that sig is a valid, canonical ECDSA signature on digest m
// under signer. Callers combining a decrypted adaptor signature into a
// transaction should call this first: Decrypt cannot itself detect a
// tampered or mismatched encrypted signature, only its caller's subsequent
// verification can.
func Verify(signer *secp256k1.PublicKey, m [32]byte, sig *Signature) error {
	var rScalar, sScalar btcec.ModNScalar
	rBuf := make([]byte, 32)
	sig.R.FillBytes(rBuf)
	if overflow := rScalar.SetByteSlice(rBuf); overflow {
		return fmt.Errorf("%w: r overflows curve order", ErrInvalidSignature)
	}
	sBuf := make([]byte, 32)
	sig.S.FillBytes(sBuf)
	if overflow := sScalar.SetByteSlice(sBuf); overflow {
		return fmt.Errorf("%w: s overflows curve order", ErrInvalidSignature)
	}

	ecSig := btcecdsa.NewSignature(&rScalar, &sScalar)
	if !ecSig.Verify(m[:], signer.AsBtcec()) {
		return ErrInvalidSignature
	}
	return nil
}
