package net

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"
)

const keyFilePerm = 0o600

// loadOrCreateKeyFile reads an Ed25519 private key from path, generating and
// persisting a new one if the file doesn't exist yet. This is what gives a
// swapd instance a peer id that survives restarts.
func loadOrCreateKeyFile(path string) (crypto.PrivKey, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		priv, err := crypto.UnmarshalPrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing key file %s: %w", path, err)
		}
		return priv, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading key file %s: %w", path, err)
	}

	priv, _, genErr := crypto.GenerateEd25519Key(rand.Reader)
	if genErr != nil {
		return nil, fmt.Errorf("generating node key: %w", genErr)
	}
	raw, err = crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshaling node key: %w", err)
	}
	if err := os.WriteFile(path, raw, keyFilePerm); err != nil {
		return nil, fmt.Errorf("writing key file %s: %w", path, err)
	}
	return priv, nil
}
