package primitives

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/libsv/go-bt/v2/chainhash"
)

// OutPoint identifies a previous transaction output being spent.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// TxIn is a transaction input: the outpoint it spends, its unlock script,
// and sequence number.
type TxIn struct {
	PreviousOutput OutPoint
	UnlockScript   []byte
	Sequence       uint32
}

// TxOut is a transaction output: a value in satoshis and a lock script.
type TxOut struct {
	Value      int64
	LockScript []byte
}

// Transaction is the raw, consensus little-endian encoded transaction record
// of spec.md §3.
type Transaction struct {
	Version  int32
	Inputs   []TxIn
	Outputs  []TxOut
	LockTime uint32
}

// IsCoinbase reports whether tx is a coinbase transaction: exactly one
// input, spending the all-zero hash at index 0xffffffff.
func (tx *Transaction) IsCoinbase() bool {
	if len(tx.Inputs) != 1 {
		return false
	}
	in := tx.Inputs[0]
	return in.PreviousOutput.Hash == chainhash.Hash{} && in.PreviousOutput.Index == 0xffffffff
}

// Hash returns the double-SHA-256 of the serialized transaction.
func (tx *Transaction) Hash() chainhash.Hash {
	return DoubleSHA256(tx.Serialize())
}

func putVarInt(buf *bytes.Buffer, n uint64) {
	switch {
	case n < 0xfd:
		buf.WriteByte(byte(n))
	case n <= 0xffff:
		buf.WriteByte(0xfd)
		_ = binary.Write(buf, binary.LittleEndian, uint16(n))
	case n <= 0xffffffff:
		buf.WriteByte(0xfe)
		_ = binary.Write(buf, binary.LittleEndian, uint32(n))
	default:
		buf.WriteByte(0xff)
		_ = binary.Write(buf, binary.LittleEndian, n)
	}
}

func readVarInt(r *bytes.Reader) (uint64, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch prefix {
	case 0xfd:
		var v uint16
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		return uint64(v), nil
	case 0xfe:
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		return uint64(v), nil
	case 0xff:
		var v uint64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		return v, nil
	default:
		return uint64(prefix), nil
	}
}

// Serialize encodes the transaction in consensus wire order.
func (tx *Transaction) Serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, tx.Version)

	putVarInt(buf, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf.Write(in.PreviousOutput.Hash[:])
		_ = binary.Write(buf, binary.LittleEndian, in.PreviousOutput.Index)
		putVarInt(buf, uint64(len(in.UnlockScript)))
		buf.Write(in.UnlockScript)
		_ = binary.Write(buf, binary.LittleEndian, in.Sequence)
	}

	putVarInt(buf, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		_ = binary.Write(buf, binary.LittleEndian, out.Value)
		putVarInt(buf, uint64(len(out.LockScript)))
		buf.Write(out.LockScript)
	}

	_ = binary.Write(buf, binary.LittleEndian, tx.LockTime)
	return buf.Bytes()
}

// DeserializeTransaction decodes a raw transaction previously produced by
// Serialize.
func DeserializeTransaction(raw []byte) (*Transaction, error) {
	r := bytes.NewReader(raw)
	tx := &Transaction{}

	if err := binary.Read(r, binary.LittleEndian, &tx.Version); err != nil {
		return nil, fmt.Errorf("primitives: reading version: %w", err)
	}

	nIn, err := readVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("primitives: reading input count: %w", err)
	}
	tx.Inputs = make([]TxIn, nIn)
	for i := range tx.Inputs {
		if _, err := io.ReadFull(r, tx.Inputs[i].PreviousOutput.Hash[:]); err != nil {
			return nil, fmt.Errorf("primitives: reading outpoint hash: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &tx.Inputs[i].PreviousOutput.Index); err != nil {
			return nil, fmt.Errorf("primitives: reading outpoint index: %w", err)
		}
		scriptLen, err := readVarInt(r)
		if err != nil {
			return nil, fmt.Errorf("primitives: reading unlock script length: %w", err)
		}
		tx.Inputs[i].UnlockScript = make([]byte, scriptLen)
		if _, err := io.ReadFull(r, tx.Inputs[i].UnlockScript); err != nil {
			return nil, fmt.Errorf("primitives: reading unlock script: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &tx.Inputs[i].Sequence); err != nil {
			return nil, fmt.Errorf("primitives: reading sequence: %w", err)
		}
	}

	nOut, err := readVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("primitives: reading output count: %w", err)
	}
	tx.Outputs = make([]TxOut, nOut)
	for i := range tx.Outputs {
		if err := binary.Read(r, binary.LittleEndian, &tx.Outputs[i].Value); err != nil {
			return nil, fmt.Errorf("primitives: reading value: %w", err)
		}
		scriptLen, err := readVarInt(r)
		if err != nil {
			return nil, fmt.Errorf("primitives: reading lock script length: %w", err)
		}
		tx.Outputs[i].LockScript = make([]byte, scriptLen)
		if _, err := io.ReadFull(r, tx.Outputs[i].LockScript); err != nil {
			return nil, fmt.Errorf("primitives: reading lock script: %w", err)
		}
	}

	if err := binary.Read(r, binary.LittleEndian, &tx.LockTime); err != nil {
		return nil, fmt.Errorf("primitives: reading locktime: %w", err)
	}

	return tx, nil
}
