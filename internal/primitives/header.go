package primitives

import (
	"encoding/binary"
	"fmt"

	"github.com/libsv/go-bt/v2/chainhash"
)

// HeaderSize is the fixed wire size of a block header: version(4) +
// prevHash(32) + merkleRoot(32) + time(4) + bits(4) + nonce(4).
const HeaderSize = 4 + 32 + 32 + 4 + 4 + 4

// BlockHeader is the raw, consensus little-endian encoded block header
// record of spec.md §3.
type BlockHeader struct {
	Version    int32
	PrevHash   chainhash.Hash
	MerkleRoot chainhash.Hash
	Time       uint32
	Bits       uint32
	Nonce      uint32
}

// Hash returns the double-SHA-256 of the serialized header — the key a
// block record is stored under.
func (h *BlockHeader) Hash() chainhash.Hash {
	return DoubleSHA256(h.Serialize())
}

// Serialize encodes the header in consensus wire order.
func (h *BlockHeader) Serialize() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevHash[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Time)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	return buf
}

// DeserializeHeader decodes a raw header previously produced by Serialize.
func DeserializeHeader(buf []byte) (*BlockHeader, error) {
	if len(buf) != HeaderSize {
		return nil, fmt.Errorf("primitives: header must be %d bytes, got %d", HeaderSize, len(buf))
	}
	h := &BlockHeader{
		Version: int32(binary.LittleEndian.Uint32(buf[0:4])),
		Time:    binary.LittleEndian.Uint32(buf[68:72]),
		Bits:    binary.LittleEndian.Uint32(buf[72:76]),
		Nonce:   binary.LittleEndian.Uint32(buf[76:80]),
	}
	copy(h.PrevHash[:], buf[4:36])
	copy(h.MerkleRoot[:], buf[36:68])
	return h, nil
}

// IsGenesisParent reports whether prevHash is the all-zero sentinel Bitcoin
// uses as "no parent" for a chain's genesis header.
func IsGenesisParent(prevHash chainhash.Hash) bool {
	return prevHash == chainhash.Hash{}
}
