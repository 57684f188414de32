package revshare

import (
	"bytes"
	"encoding/hex"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"
	"github.com/bsv-blockchain/go-sdk/script"
)

// IdentitySize is the length of a recipient identity (a P2PKH public key hash).
const IdentitySize = 20

// Identity identifies a share recipient or a caller.
// The zero value is the null identity.
type Identity [IdentitySize]byte

// ZeroIdentity is the null identity. Approving it for withdrawal lets anyone
// trigger a payout to the approving account.
var ZeroIdentity Identity

// IsZero reports whether id is the null identity.
func (id Identity) IsZero() bool {
	return id == ZeroIdentity
}

// String returns the hex encoding of the identity.
func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// Address renders the identity as a base58 P2PKH address.
func (id Identity) Address(mainnet bool) (string, error) {
	addr, err := script.NewAddressFromPublicKeyHash(id[:], mainnet)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}
	return addr.AddressString, nil
}

// Compare orders identities bytewise.
func (id Identity) Compare(other Identity) int {
	return bytes.Compare(id[:], other[:])
}

// IdentityFromPubKey computes HASH160(compressed pubkey).
func IdentityFromPubKey(pub *ec.PublicKey) (Identity, error) {
	var id Identity
	if pub == nil {
		return id, fmt.Errorf("%w: public key", ErrNilParam)
	}
	copy(id[:], bsvhash.Hash160(pub.Compressed()))
	return id, nil
}

// ParseIdentity accepts either a 40-character hex public key hash or a
// base58 P2PKH address.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if len(s) == IdentitySize*2 {
		if b, err := hex.DecodeString(s); err == nil {
			copy(id[:], b)
			return id, nil
		}
	}
	addr, err := script.NewAddressFromString(s)
	if err != nil {
		return id, fmt.Errorf("%w: %q: %w", ErrInvalidIdentity, s, err)
	}
	pkh := []byte(addr.PublicKeyHash)
	if len(pkh) != IdentitySize {
		return id, fmt.Errorf("%w: %q: public key hash is %d bytes", ErrInvalidIdentity, s, len(pkh))
	}
	copy(id[:], pkh)
	return id, nil
}
