package ledgerstore

import (
	"github.com/bsv-chain/coreledger/internal/primitives"
	"github.com/bsv-chain/coreledger/pkg/errors"
	"github.com/libsv/go-bt/v2/chainhash"
)

// BlockProvider is the read surface collaborators (verifier, RPC, P2P
// server) use to resolve blocks and their position in the canonical chain.
type BlockProvider interface {
	FetchBlock(hash chainhash.Hash) (*Block, error)
	FetchBlockMeta(hash chainhash.Hash) (BlockMeta, error)
	BlockHash(height uint32) (chainhash.Hash, error)
	BlockNumber(hash chainhash.Hash) (uint32, error)
	BlockTransactionHashes(hash chainhash.Hash) ([]chainhash.Hash, error)
	BlockTransactions(hash chainhash.Hash) ([]*primitives.Transaction, error)
}

// TransactionProvider resolves a raw transaction by its hash.
type TransactionProvider interface {
	FetchTransaction(hash chainhash.Hash) (*primitives.Transaction, error)
}

// TransactionMetaProvider resolves a transaction's spentness bookkeeping.
type TransactionMetaProvider interface {
	FetchTransactionMeta(hash chainhash.Hash) (TransactionMeta, error)
}

// TransactionOutputProvider answers whether a specific output has been
// spent by the canonical chain.
type TransactionOutputProvider interface {
	IsSpent(hash chainhash.Hash, index int) (bool, error)
}

// ReadStore is the full read surface the core exposes to collaborators —
// re-exported as Store from the top-level coreledger package, the way
// stores/blockchain/Interface.go exposes its Store interface.
type ReadStore interface {
	BlockProvider
	TransactionProvider
	TransactionMetaProvider
	TransactionOutputProvider

	BestBlock() (chainhash.Hash, uint32, error)
	BestHeader() (*primitives.BlockHeader, error)
	Difficulty() (uint32, error)
}

var _ ReadStore = (*Store)(nil)

// BlockNumber resolves hash's height via its BlockMeta.
func (s *Store) BlockNumber(hash chainhash.Hash) (uint32, error) {
	meta, err := s.FetchBlockMeta(hash)
	if err != nil {
		return 0, err
	}
	return meta.Number, nil
}

// BlockTransactionHashes resolves the hash of every transaction in hash's
// block, in block order.
func (s *Store) BlockTransactionHashes(hash chainhash.Hash) ([]chainhash.Hash, error) {
	block, err := s.FetchBlock(hash)
	if err != nil {
		return nil, err
	}
	hashes := make([]chainhash.Hash, len(block.Txs))
	for i, tx := range block.Txs {
		hashes[i] = tx.Hash()
	}
	return hashes, nil
}

// BlockTransactions resolves every transaction in hash's block, in block
// order.
func (s *Store) BlockTransactions(hash chainhash.Hash) ([]*primitives.Transaction, error) {
	block, err := s.FetchBlock(hash)
	if err != nil {
		return nil, err
	}
	return block.Txs, nil
}

// IsSpent reports whether output index of the transaction producing hash
// has been marked spent by the canonical chain.
func (s *Store) IsSpent(hash chainhash.Hash, index int) (bool, error) {
	meta, err := s.FetchTransactionMeta(hash)
	if err != nil {
		return false, err
	}
	if index < 0 || index+1 >= meta.NumBits {
		return false, errors.New(errors.ERR_INVALID_ARGUMENT, "output index %d out of range for transaction with %d outputs", index, meta.NumBits-1)
	}
	return meta.IsSpent(index), nil
}

// BestHeader resolves the raw header of the current best tip.
func (s *Store) BestHeader() (*primitives.BlockHeader, error) {
	hash, _, err := s.BestBlock()
	if err != nil {
		return nil, err
	}
	block, err := s.FetchBlock(hash)
	if err != nil {
		return nil, err
	}
	return block.Header, nil
}

// Difficulty returns the target-bits field of the current best tip's
// header — a direct readback, not the cumulative-work figure spec.md's
// Open Questions section leaves out of BlockMeta.
func (s *Store) Difficulty() (uint32, error) {
	header, err := s.BestHeader()
	if err != nil {
		return 0, err
	}
	return header.Bits, nil
}
