package monero

// Network distinguishes which Monero network a key pair or address belongs
// to; mirrors the Bitcoin chain pairing a swap's Network declares (spec.md
// §3.2, §4.3).
type Network byte

const (
	NetworkMainnet Network = iota
	NetworkStagenet
	NetworkDevelopment
)

// Address is the joint swap wallet's standard address, derived from a
// PublicKeyPair. Base58/Keccak address encoding is the responsibility of
// the external MoneroWallet collaborator (spec.md §6.1's `new_address`);
// this type only carries the key material callers hand to that boundary,
// plus the opaque string form once the collaborator has encoded it.
type Address struct {
	Network Network
	Keys    *PublicKeyPair
	// Standard is the base58check-encoded address string, populated once
	// the MoneroWallet collaborator resolves Keys to a concrete address.
	Standard string
}

// NewJointAddress builds the Address description for a swap's joint lock
// wallet from the two parties' public key pairs (spec.md §3.1: S = S_a+S_b,
// V = the agreed view key).
func NewJointAddress(net Network, makerKeys, takerKeys *PublicKeyPair) *Address {
	return &Address{
		Network: net,
		Keys:    SumSpendAndViewKeys(makerKeys, takerKeys),
	}
}
