// Package chainmgr implements the Chain Manager: given a newly inserted
// block it decides the block's origin relative to the current tip and,
// when appropriate, moves the canonical chain — canonizing, decanonizing,
// and driving fork switches through an in-memory overlay above
// ledgerstore.Store, grounded on hammersbald-bitcoin's chain.rs.
package chainmgr

import (
	"github.com/bsv-chain/coreledger/internal/primitives"
	"github.com/libsv/go-bt/v2/chainhash"
)

// OriginKind tags the variant held by a BlockOrigin — the Go rendering of
// the source's BlockOrigin enum (KnownBlock | CanonChain | SideChain |
// SideChainBecomesCanon).
type OriginKind int

const (
	// KnownBlock means the block's hash is already stored.
	KnownBlock OriginKind = iota
	// CanonChain means the block directly extends the current best tip.
	CanonChain
	// SideChain means the block extends a fork that remains shorter than
	// (or equal to) the current best chain.
	SideChain
	// SideChainBecomesCanon means the block extends a fork that is now
	// longer than the current best chain and should become canonical.
	SideChainBecomesCanon
)

func (k OriginKind) String() string {
	switch k {
	case KnownBlock:
		return "KnownBlock"
	case CanonChain:
		return "CanonChain"
	case SideChain:
		return "SideChain"
	case SideChainBecomesCanon:
		return "SideChainBecomesCanon"
	default:
		return "Unknown"
	}
}

// SideChainOrigin describes a fork point discovered by walking parent
// pointers back from a candidate block: the height of the common ancestor,
// the side-chain hashes that would need canonizing (oldest to newest,
// ending at the candidate block), and the canonical hashes that would need
// decanonizing first (oldest to newest).
type SideChainOrigin struct {
	Ancestor         uint32
	CanonizedRoute   []chainhash.Hash
	DecanonizedRoute []chainhash.Hash
	BlockNumber      uint32
}

// BlockOrigin is the classification block_origin returns. Only the field(s)
// relevant to Kind are populated; BlockNumber is set for CanonChain,
// SideChain holds the walked fork for SideChain/SideChainBecomesCanon.
type BlockOrigin struct {
	Kind        OriginKind
	BlockNumber uint32
	SideChain   SideChainOrigin
}

// BlockRef identifies a block by hash, optionally annotated with its
// height — the target of RollbackBest.
type BlockRef struct {
	Hash   chainhash.Hash
	Height uint32
}

// BlockChain is the Chain Manager's external surface — re-exported as
// BlockChain from the top-level coreledger package, the way
// stores/blockchain/Interface.go exposes its Store interface.
type BlockChain interface {
	Insert(header *primitives.BlockHeader, txs []*primitives.Transaction) error
	Canonize(hash chainhash.Hash) error
	Decanonize() error
	RollbackBest(target BlockRef) error
	BlockOrigin(header *primitives.BlockHeader) (BlockOrigin, error)
}

// Forkable is the fork-switching half of the Chain Manager's surface,
// kept separate from BlockChain since most callers only ever canonize
// straight extensions of the tip and never need to drive a fork.
type Forkable interface {
	Fork(origin SideChainOrigin) (*ForkChain, error)
	SwitchToFork(fc *ForkChain) error
}
