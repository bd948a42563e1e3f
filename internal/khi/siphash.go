// Package khi implements the keyed hash index: a linear-hashing table
// mapping arbitrary byte keys to PRefs, grounded on hammersbald's
// mem_table.rs/table_file.rs/bucket.rs.
package khi

import "github.com/dchest/siphash"

// keyHasher computes SipHash-2-4 over arbitrary keys using two 64-bit keys
// persisted at page 0 of the table file.
type keyHasher struct {
	k0, k1 uint64
}

// hash returns the low 32 bits of SipHash-2-4(key), the width stored in
// each bucket slot.
func (h keyHasher) hash(key []byte) uint32 {
	return uint32(siphash.Hash(h.k0, h.k1, key))
}
