// Package primitives implements the narrow slice of Bitcoin consensus wire
// types the storage engine needs to drive itself: block headers and raw
// transactions, little-endian consensus encoding, and double-SHA-256.
//
// spec.md treats header/transaction serialization as an external
// collaborator interface (§6); this package is the minimal, self-contained
// stand-in for that collaborator so the rest of the module has something
// concrete to serialize, hash, and store.
package primitives

import (
	"crypto/sha256"

	"github.com/libsv/go-bt/v2/chainhash"
)

// DoubleSHA256 computes SHA-256(SHA-256(b)), the hash used for block and
// transaction identifiers throughout the store.
func DoubleSHA256(b []byte) chainhash.Hash {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return chainhash.Hash(second)
}
