// Package ledgerstore implements the Blockchain Store: a typed domain layer
// above khi/cal translating blocks and transactions into the record kinds
// grounded on hammersbald-bitcoin's db_block.rs/db_tx.rs (DbBlock,
// BlockMeta, DbTransaction, TransactionMeta) while storing them through the
// same content-addressed log and keyed hash index used by every other
// record in the database.
package ledgerstore

import (
	"encoding/binary"
	"fmt"

	"github.com/bsv-chain/coreledger/internal/pageio"
	"github.com/bsv-chain/coreledger/internal/primitives"
)

// prefWidth is the encoded width of one pageio.PRef in these record
// layouts — the same 48-bit big-endian width used throughout the store.
const prefWidth = 6

func putPRef(buf []byte, pref pageio.PRef) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(pref))
	copy(buf, tmp[2:8])
}

func getPRef(buf []byte) pageio.PRef {
	var tmp [8]byte
	copy(tmp[2:8], buf)
	return pageio.PRef(binary.BigEndian.Uint64(tmp[:]))
}

// DbBlock is the record keyed by block hash: pointers at the raw header,
// the block's meta, and each of its transactions' DbTransaction records.
type DbBlock struct {
	HeaderPref pageio.PRef
	MetaPref   pageio.PRef
	TxPrefs    []pageio.PRef
}

// Serialize encodes a DbBlock as headerPref(6) + metaPref(6) + count(4) +
// count * pref(6).
func (b DbBlock) Serialize() []byte {
	buf := make([]byte, prefWidth*2+4+prefWidth*len(b.TxPrefs))
	putPRef(buf[0:6], b.HeaderPref)
	putPRef(buf[6:12], b.MetaPref)
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(b.TxPrefs)))
	for i, pref := range b.TxPrefs {
		putPRef(buf[16+i*prefWidth:16+(i+1)*prefWidth], pref)
	}
	return buf
}

// DeserializeDbBlock decodes a DbBlock previously produced by Serialize.
func DeserializeDbBlock(buf []byte) (DbBlock, error) {
	if len(buf) < 16 {
		return DbBlock{}, fmt.Errorf("ledgerstore: db block record too short: %d bytes", len(buf))
	}
	n := binary.BigEndian.Uint32(buf[12:16])
	want := 16 + int(n)*prefWidth
	if len(buf) != want {
		return DbBlock{}, fmt.Errorf("ledgerstore: db block record length mismatch: have %d, want %d", len(buf), want)
	}
	b := DbBlock{
		HeaderPref: getPRef(buf[0:6]),
		MetaPref:   getPRef(buf[6:12]),
		TxPrefs:    make([]pageio.PRef, n),
	}
	for i := range b.TxPrefs {
		b.TxPrefs[i] = getPRef(buf[16+i*prefWidth : 16+(i+1)*prefWidth])
	}
	return b, nil
}

// BlockMeta tracks a block's position in the canonical chain. Invariant
// (while canonical): number[b] == number[parent(b)] + 1 and
// n_chain_tx[b] == n_chain_tx[parent(b)] + n_tx[b].
type BlockMeta struct {
	Number   uint32
	NTx      uint32
	NChainTx uint32
}

// blockMetaSize is the fixed, never-changing width of a serialized
// BlockMeta — update_block_meta always replaces it with another record of
// this exact length.
const blockMetaSize = 12

func (m BlockMeta) Serialize() []byte {
	buf := make([]byte, blockMetaSize)
	binary.BigEndian.PutUint32(buf[0:4], m.Number)
	binary.BigEndian.PutUint32(buf[4:8], m.NTx)
	binary.BigEndian.PutUint32(buf[8:12], m.NChainTx)
	return buf
}

func DeserializeBlockMeta(buf []byte) (BlockMeta, error) {
	if len(buf) != blockMetaSize {
		return BlockMeta{}, fmt.Errorf("ledgerstore: block meta must be %d bytes, got %d", blockMetaSize, len(buf))
	}
	return BlockMeta{
		Number:   binary.BigEndian.Uint32(buf[0:4]),
		NTx:      binary.BigEndian.Uint32(buf[4:8]),
		NChainTx: binary.BigEndian.Uint32(buf[8:12]),
	}, nil
}

// DbTransaction is the record keyed by transaction hash: pointers at the
// raw transaction bytes and its TransactionMeta.
type DbTransaction struct {
	TxPref   pageio.PRef
	MetaPref pageio.PRef
}

const dbTransactionSize = prefWidth * 2

func (d DbTransaction) Serialize() []byte {
	buf := make([]byte, dbTransactionSize)
	putPRef(buf[0:6], d.TxPref)
	putPRef(buf[6:12], d.MetaPref)
	return buf
}

func DeserializeDbTransaction(buf []byte) (DbTransaction, error) {
	if len(buf) != dbTransactionSize {
		return DbTransaction{}, fmt.Errorf("ledgerstore: db transaction record must be %d bytes, got %d", dbTransactionSize, len(buf))
	}
	return DbTransaction{TxPref: getPRef(buf[0:6]), MetaPref: getPRef(buf[6:12])}, nil
}

// TransactionMeta is a per-transaction bit vector: bit 0 is the coinbase
// flag, bit i+1 is "output i is spent". NumBits is fixed at creation time
// (one more than the transaction's output count) so later spent-bit flips
// via CAL SetData never change the record's serialized length.
type TransactionMeta struct {
	Height  uint32
	NumBits int
	Bits    []byte
}

// NewTransactionMeta allocates a fresh, all-clear meta sized for a
// transaction with nOutputs outputs.
func NewTransactionMeta(height uint32, nOutputs int) TransactionMeta {
	numBits := nOutputs + 1
	return TransactionMeta{
		Height:  height,
		NumBits: numBits,
		Bits:    make([]byte, (numBits+7)/8),
	}
}

func (m TransactionMeta) bitSet(i int) bool {
	return m.Bits[i/8]&(1<<uint(i%8)) != 0
}

func (m TransactionMeta) setBit(i int, v bool) {
	if v {
		m.Bits[i/8] |= 1 << uint(i%8)
	} else {
		m.Bits[i/8] &^= 1 << uint(i%8)
	}
}

// IsCoinbase reports whether bit 0 (the coinbase flag) is set.
func (m TransactionMeta) IsCoinbase() bool { return m.bitSet(0) }

// SetCoinbase sets or clears the coinbase flag.
func (m TransactionMeta) SetCoinbase(v bool) { m.setBit(0, v) }

// IsSpent reports whether output index's spent bit is set.
func (m TransactionMeta) IsSpent(index int) bool { return m.bitSet(index + 1) }

// DenoteUsed marks output index as spent.
func (m TransactionMeta) DenoteUsed(index int) { m.setBit(index+1, true) }

// DenoteUnused marks output index as unspent — the inverse applied on
// decanonize.
func (m TransactionMeta) DenoteUnused(index int) { m.setBit(index+1, false) }

func (m TransactionMeta) Serialize() []byte {
	buf := make([]byte, 8+len(m.Bits))
	binary.BigEndian.PutUint32(buf[0:4], m.Height)
	binary.BigEndian.PutUint32(buf[4:8], uint32(m.NumBits))
	copy(buf[8:], m.Bits)
	return buf
}

func DeserializeTransactionMeta(buf []byte) (TransactionMeta, error) {
	if len(buf) < 8 {
		return TransactionMeta{}, fmt.Errorf("ledgerstore: transaction meta record too short: %d bytes", len(buf))
	}
	numBits := binary.BigEndian.Uint32(buf[4:8])
	want := 8 + int((numBits+7)/8)
	if len(buf) != want {
		return TransactionMeta{}, fmt.Errorf("ledgerstore: transaction meta record length mismatch: have %d, want %d", len(buf), want)
	}
	bits := make([]byte, len(buf)-8)
	copy(bits, buf[8:])
	return TransactionMeta{
		Height:  binary.BigEndian.Uint32(buf[0:4]),
		NumBits: int(numBits),
		Bits:    bits,
	}, nil
}

// Clone returns a deep copy so staged canonize/decanonize mutations never
// alias a cached or in-flight record.
func (m TransactionMeta) Clone() TransactionMeta {
	bits := make([]byte, len(m.Bits))
	copy(bits, m.Bits)
	return TransactionMeta{Height: m.Height, NumBits: m.NumBits, Bits: bits}
}

// Block is the fully resolved, in-memory form fetch_block returns: the raw
// header plus its transactions in block order.
type Block struct {
	Header *primitives.BlockHeader
	Txs    []*primitives.Transaction
}
