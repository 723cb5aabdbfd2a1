// Package protocol holds the key-generation and proof helpers shared by
// protocol/maker and protocol/taker, and the error sentinels the setup
// handshake reports to callers (spec.md §4.1, §4.3).
package protocol

import (
	"fmt"

	"filippo.io/edwards25519"

	"github.com/eigenswap/xmr-btc-swap/crypto/dleq"
	"github.com/eigenswap/xmr-btc-swap/crypto/edscalar"
	mcrypto "github.com/eigenswap/xmr-btc-swap/crypto/monero"
	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
)

// KeysAndProof bundles one party's per-swap secret material: the Bitcoin
// keypair, the Monero keypair whose spend secret is the same scalar
// (reduced mod the ed25519 group order) as the Bitcoin private key, and the
// cross-curve DLEQ proof binding the two (spec.md §3.1).
type KeysAndProof struct {
	BtcSecp256k1KeyPair *secp256k1.PrivateKey
	MoneroKeyPair       *mcrypto.PrivateKeyPair
	DLEqProof           *dleq.Proof
}

// GenerateKeysAndProof samples a fresh Bitcoin key `a`/`b`, derives the
// Monero spend secret from the same scalar, generates an independent view
// key, and produces the DLEQ proof binding S^btc and S^xmr.
func GenerateKeysAndProof() (*KeysAndProof, error) {
	btcKey, err := secp256k1.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating bitcoin key: %w", err)
	}

	edScalar, err := edscalar.FromSecp256k1(btcKey)
	if err != nil {
		return nil, fmt.Errorf("deriving monero spend scalar: %w", err)
	}

	proof, _, _, err := dleq.Prove(edScalar)
	if err != nil {
		return nil, fmt.Errorf("proving dleq: %w", err)
	}

	viewKey, err := mcrypto.NewPrivateViewKey()
	if err != nil {
		return nil, fmt.Errorf("generating monero view key: %w", err)
	}

	return &KeysAndProof{
		BtcSecp256k1KeyPair: btcKey,
		MoneroKeyPair: &mcrypto.PrivateKeyPair{
			SpendKey: mcrypto.NewPrivateSpendKeyFromScalar(edScalar),
			ViewKey:  viewKey,
		},
		DLEqProof: proof,
	}, nil
}

// VerifiedKeys is the counterparty public material recovered from a DLEQ
// proof once it has been checked.
type VerifiedKeys struct {
	Secp256k1PublicKey *secp256k1.PublicKey
	MoneroPublicKey    *mcrypto.PublicSpendKey
}

// VerifyKeysAndProof checks that secpPub and the Monero public spend key
// recovered from moneroPubBytes share a discrete log under proof, returning
// both parsed public keys on success (spec.md §4.3 invariant: "DLEQ proofs
// verify").
func VerifyKeysAndProof(
	proof *dleq.Proof,
	secpPubBytes []byte,
	moneroPubBytes []byte,
) (*VerifiedKeys, error) {
	secpPub, err := secp256k1.NewPublicKeyFromBytes(secpPubBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing counterparty bitcoin key: %w", err)
	}

	moneroPub, err := mcrypto.NewPublicSpendKeyFromBytes(moneroPubBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing counterparty monero spend key: %w", err)
	}

	edPub, err := new(edwards25519.Point).SetBytes(moneroPubBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing counterparty monero point: %w", err)
	}

	if err := dleq.Verify(proof, secpPub, edPub); err != nil {
		return nil, fmt.Errorf("verifying dleq proof: %w", err)
	}

	return &VerifiedKeys{Secp256k1PublicKey: secpPub, MoneroPublicKey: moneroPub}, nil
}
