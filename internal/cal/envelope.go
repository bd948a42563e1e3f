// Package cal implements the content-addressed log: an append-only log of
// variable-length envelopes layered over the paged file layer, grounded on
// hammersbald's format.rs/data_file.rs/log_file.rs.
package cal

import (
	"encoding/binary"

	"github.com/bsv-chain/coreledger/internal/pageio"
	"github.com/bsv-chain/coreledger/pkg/errors"
)

// Tag identifies the shape of an envelope's body.
type Tag byte

const (
	TagIndexed Tag = 0
	TagReferred Tag = 1
	TagLink     Tag = 2
)

// MaxDataLen is the largest Data payload this log accepts: the envelope
// length field is 24 bits wide, but the top bit is reserved so envelope
// framing itself never overflows a signed 24-bit length.
const MaxDataLen = 1<<23 - 1

// MaxKeyLen is the largest key an Indexed payload can carry.
const MaxKeyLen = 255

// BucketSlots is the fixed slot capacity of a Link envelope (10 * 64).
const BucketSlots = 640 / 10

// LinkBytes is the fixed, preallocated byte width of a Link payload's slot
// array: BucketSlots slots of (4-byte hash, 6-byte PRef).
const LinkBytes = BucketSlots * 10

// Data is a length-prefixed byte payload, readable only by position.
type Data struct {
	Bytes []byte
}

func (d Data) serialize() []byte {
	out := make([]byte, 3+len(d.Bytes))
	putUint24(out, uint32(len(d.Bytes)))
	copy(out[3:], d.Bytes)
	return out
}

func deserializeData(b []byte) (Data, []byte, error) {
	if len(b) < 3 {
		return Data{}, nil, errors.New(errors.ERR_CORRUPTED, "data envelope truncated")
	}
	n := getUint24(b)
	if len(b) < 3+int(n) {
		return Data{}, nil, errors.New(errors.ERR_CORRUPTED, "data envelope shorter than declared length")
	}
	return Data{Bytes: b[3 : 3+n]}, b[3+n:], nil
}

// IndexedData is Data accessible by a key, stored alongside it.
type IndexedData struct {
	Key  []byte
	Data Data
}

func (d IndexedData) serialize() []byte {
	body := d.Data.serialize()
	out := make([]byte, 1+len(d.Key)+len(body))
	out[0] = byte(len(d.Key))
	copy(out[1:], d.Key)
	copy(out[1+len(d.Key):], body)
	return out
}

func deserializeIndexedData(b []byte) (IndexedData, error) {
	if len(b) < 1 {
		return IndexedData{}, errors.New(errors.ERR_CORRUPTED, "indexed envelope truncated")
	}
	keyLen := int(b[0])
	if len(b) < 1+keyLen {
		return IndexedData{}, errors.New(errors.ERR_CORRUPTED, "indexed envelope key truncated")
	}
	key := b[1 : 1+keyLen]
	data, _, err := deserializeData(b[1+keyLen:])
	if err != nil {
		return IndexedData{}, err
	}
	return IndexedData{Key: key, Data: data}, nil
}

// Slot is one (hash32, PRef48) pair inside a hash bucket's Link envelope.
type Slot struct {
	Hash uint32
	Ref  pageio.PRef
}

// Link is the fixed-width envelope holding one hash bucket's slot array.
type Link struct {
	Slots []Slot
}

func (l Link) serialize() []byte {
	out := make([]byte, LinkBytes)
	for i, slot := range l.Slots {
		if i >= BucketSlots {
			break
		}
		off := i * 10
		binary.BigEndian.PutUint32(out[off:off+4], slot.Hash)
		putPRef48(out[off+4:off+10], slot.Ref)
	}
	return out
}

func deserializeLink(b []byte) Link {
	var slots []Slot
	for i := 0; i+10 <= len(b); i += 10 {
		hash := binary.BigEndian.Uint32(b[i : i+4])
		ref := getPRef48(b[i+4 : i+10])
		if hash == 0 && ref == pageio.Invalid() {
			continue
		}
		slots = append(slots, Slot{Hash: hash, Ref: ref})
	}
	return Link{Slots: slots}
}

// Payload is the tagged union an envelope carries: Indexed, Referred, or
// Link.
type Payload struct {
	Tag      Tag
	Indexed  IndexedData
	Referred Data
	Link     Link
}

func NewIndexed(key []byte, data []byte) Payload {
	return Payload{Tag: TagIndexed, Indexed: IndexedData{Key: key, Data: Data{Bytes: data}}}
}

func NewReferred(data []byte) Payload {
	return Payload{Tag: TagReferred, Referred: Data{Bytes: data}}
}

func NewLink(slots []Slot) Payload {
	return Payload{Tag: TagLink, Link: Link{Slots: slots}}
}

// Data returns the raw data bytes carried by an Indexed or Referred
// payload.
func (p Payload) DataBytes() []byte {
	switch p.Tag {
	case TagIndexed:
		return p.Indexed.Data.Bytes
	case TagReferred:
		return p.Referred.Bytes
	default:
		return nil
	}
}

func (p Payload) serializeBody() []byte {
	switch p.Tag {
	case TagIndexed:
		return p.Indexed.serialize()
	case TagReferred:
		return p.Referred.serialize()
	case TagLink:
		return p.Link.serialize()
	default:
		return nil
	}
}

// Serialize encodes payload into a complete envelope: 3-byte BE length, tag
// byte, tag body.
func (p Payload) Serialize() []byte {
	body := p.serializeBody()
	out := make([]byte, 3+1+len(body))
	putUint24(out, uint32(1+len(body)))
	out[3] = byte(p.Tag)
	copy(out[4:], body)
	return out
}

// DeserializePayload decodes a payload from its tag+body bytes (i.e. the
// envelope with its length prefix already stripped).
func DeserializePayload(b []byte) (Payload, error) {
	if len(b) < 1 {
		return Payload{}, errors.New(errors.ERR_CORRUPTED, "empty envelope body")
	}
	tag := Tag(b[0])
	rest := b[1:]
	switch tag {
	case TagIndexed:
		indexed, err := deserializeIndexedData(rest)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Tag: tag, Indexed: indexed}, nil
	case TagReferred:
		data, _, err := deserializeData(rest)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Tag: tag, Referred: data}, nil
	case TagLink:
		return Payload{Tag: tag, Link: deserializeLink(rest)}, nil
	default:
		return Payload{}, errors.New(errors.ERR_CORRUPTED, "unknown payload tag %d", int(tag))
	}
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func getUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func putPRef48(b []byte, p pageio.PRef) {
	v := uint64(p)
	b[0] = byte(v >> 40)
	b[1] = byte(v >> 32)
	b[2] = byte(v >> 24)
	b[3] = byte(v >> 16)
	b[4] = byte(v >> 8)
	b[5] = byte(v)
}

func getPRef48(b []byte) pageio.PRef {
	v := uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 | uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
	return pageio.PRef(v)
}
