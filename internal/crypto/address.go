// Package crypto provides the address-derivation seam the core depends on
// without implementing it (spec.md §1 lists "cryptographic key derivation"
// as out of scope). Deriver is intentionally the simplest thing that
// satisfies session.AddressDeriver and wsapi.AddressDeriver: a stable,
// deterministic hash of the private key, in the legacy Krist style of a
// "k"-prefixed address computed from repeated hashing.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	addressPrefix = "k"
	addressLen    = 10
	hashRounds    = 2
)

// Deriver is the default AddressDeriver implementation.
type Deriver struct{}

func NewDeriver() *Deriver { return &Deriver{} }

// DeriveAddress hashes key repeatedly and renders the address alphabet
// from the digest. This is not the legacy protocol's exact algorithm
// (deliberately out of scope) but is stable and collision-resistant enough
// to stand in for it.
func (Deriver) DeriveAddress(privateKey string) (string, error) {
	sum := sha256.Sum256([]byte(privateKey))
	for i := 1; i < hashRounds; i++ {
		sum = sha256.Sum256(sum[:])
	}
	encoded := hex.EncodeToString(sum[:])
	return addressPrefix + encoded[:addressLen], nil
}
