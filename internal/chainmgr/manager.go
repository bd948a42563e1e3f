package chainmgr

import (
	"sync"

	"github.com/bsv-chain/coreledger/internal/ledgerstore"
	"github.com/bsv-chain/coreledger/internal/primitives"
	"github.com/bsv-chain/coreledger/pkg/errors"
	"github.com/bsv-chain/coreledger/pkg/settings"
	"github.com/bsv-chain/coreledger/pkg/ulogger"
	"github.com/libsv/go-bt/v2/chainhash"
)

// backend is the storage surface canonize/decanonize operate against. Both
// the persistent ledgerstore.Store and the in-memory fork overlay satisfy
// it, so the algorithm is written once and reused by Manager.Canonize and
// ForkChain.Canonize.
type backend interface {
	FetchBlock(hash chainhash.Hash) (*ledgerstore.Block, error)
	FetchBlockMeta(hash chainhash.Hash) (ledgerstore.BlockMeta, error)
	UpdateBlockMeta(hash chainhash.Hash, meta ledgerstore.BlockMeta) error
	FetchTransactionMeta(hash chainhash.Hash) (ledgerstore.TransactionMeta, error)
	UpdateTransactionMeta(hash chainhash.Hash, meta ledgerstore.TransactionMeta) error
	BlockHash(height uint32) (chainhash.Hash, error)
	SetBlockByNumber(hash chainhash.Hash, height uint32) error
	BestBlock() (chainhash.Hash, uint32, error)
	SetBest(height uint32) error
}

var _ backend = (*ledgerstore.Store)(nil)
var _ BlockChain = (*Manager)(nil)
var _ Forkable = (*Manager)(nil)

// Manager is the Chain Manager: best-tip classification plus canonize,
// decanonize, and fork-switch orchestration above a Blockchain Store.
type Manager struct {
	mu sync.RWMutex

	store      *ledgerstore.Store
	maxForkLen int
	log        *ulogger.Wrapper
}

// New wraps store with chain-management logic, using cfg.MaxForkLen as the
// block_origin walk-back bound.
func New(store *ledgerstore.Store, cfg *settings.Settings, log *ulogger.Wrapper) *Manager {
	return &Manager{
		store:      store,
		maxForkLen: cfg.MaxForkLen,
		log:        log.With("chainmgr"),
	}
}

// parentKnownLocked reports whether header's declared parent is resolvable:
// either the all-zero genesis sentinel on a store with no best tip yet, or
// a hash with a stored BlockMeta.
func (m *Manager) parentKnownLocked(header *primitives.BlockHeader) (bool, error) {
	if primitives.IsGenesisParent(header.PrevHash) {
		if _, _, err := m.store.BestBlock(); errors.Is(err, errors.ErrNotFound) {
			return true, nil
		} else if err != nil {
			return false, err
		}
		// A best tip already exists: fall through to the generic check,
		// which will correctly reject a second zero-parent block.
	}
	if _, err := m.store.FetchBlockMeta(header.PrevHash); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Insert stores header and txs, rejecting a block whose parent is not
// known with UnknownParent. Idempotent for an already-stored hash.
func (m *Manager) Insert(header *primitives.BlockHeader, txs []*primitives.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := header.Hash()
	if _, err := m.store.FetchBlockMeta(hash); err == nil {
		return nil
	} else if !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	known, err := m.parentKnownLocked(header)
	if err != nil {
		return err
	}
	if !known {
		return errors.ErrUnknownParent
	}
	return errors.DatabaseError(m.store.InsertBlock(header, txs))
}

// BlockOrigin classifies header relative to the current best tip, per
// spec.md §4.5: KnownBlock, CanonChain, SideChain/SideChainBecomesCanon (by
// walking parent pointers up to MaxForkLen steps looking for a canonical
// ancestor), or the UnknownParent/AncientFork errors.
func (m *Manager) BlockOrigin(header *primitives.BlockHeader) (BlockOrigin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blockOriginLocked(header)
}

func (m *Manager) blockOriginLocked(header *primitives.BlockHeader) (BlockOrigin, error) {
	hash := header.Hash()
	if _, err := m.store.FetchBlockMeta(hash); err == nil {
		return BlockOrigin{Kind: KnownBlock}, nil
	} else if !errors.Is(err, errors.ErrNotFound) {
		return BlockOrigin{}, err
	}

	bestHash, bestHeight, err := m.store.BestBlock()
	haveBest := true
	if errors.Is(err, errors.ErrNotFound) {
		haveBest = false
	} else if err != nil {
		return BlockOrigin{}, err
	}

	if haveBest && header.PrevHash == bestHash {
		return BlockOrigin{Kind: CanonChain, BlockNumber: bestHeight + 1}, nil
	}
	if !haveBest && primitives.IsGenesisParent(header.PrevHash) {
		return BlockOrigin{Kind: CanonChain, BlockNumber: 0}, nil
	}

	if _, err := m.store.FetchBlockMeta(header.PrevHash); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return BlockOrigin{}, errors.ErrUnknownParent
		}
		return BlockOrigin{}, err
	}

	var walked []chainhash.Hash
	cur := header.PrevHash
	for steps := 0; steps < m.maxForkLen; steps++ {
		meta, err := m.store.FetchBlockMeta(cur)
		if err != nil {
			return BlockOrigin{}, err
		}
		if canonHash, cerr := m.store.BlockHash(meta.Number); cerr == nil && canonHash == cur {
			prometheusChainmgrForkDepth.Observe(float64(len(walked) + 1))
			return m.buildSideChainOrigin(hash, meta.Number, walked, bestHeight)
		}

		block, err := m.store.FetchBlock(cur)
		if err != nil {
			return BlockOrigin{}, err
		}
		walked = append(walked, cur)
		if primitives.IsGenesisParent(block.Header.PrevHash) {
			// cur is itself a stored genesis-parented block that never
			// became canonical; nothing further to walk toward.
			break
		}
		cur = block.Header.PrevHash
	}
	return BlockOrigin{}, errors.ErrAncientFork
}

func (m *Manager) buildSideChainOrigin(newHash chainhash.Hash, ancestorHeight uint32, walked []chainhash.Hash, bestHeight uint32) (BlockOrigin, error) {
	canonizedRoute := make([]chainhash.Hash, 0, len(walked)+1)
	for i := len(walked) - 1; i >= 0; i-- {
		canonizedRoute = append(canonizedRoute, walked[i])
	}
	canonizedRoute = append(canonizedRoute, newHash)

	var decanonizedRoute []chainhash.Hash
	for h := ancestorHeight + 1; h <= bestHeight; h++ {
		dh, err := m.store.BlockHash(h)
		if err != nil {
			return BlockOrigin{}, err
		}
		decanonizedRoute = append(decanonizedRoute, dh)
	}

	blockNumber := ancestorHeight + uint32(len(canonizedRoute))
	origin := SideChainOrigin{
		Ancestor:         ancestorHeight,
		CanonizedRoute:   canonizedRoute,
		DecanonizedRoute: decanonizedRoute,
		BlockNumber:      blockNumber,
	}
	kind := SideChain
	if blockNumber > bestHeight {
		kind = SideChainBecomesCanon
	}
	return BlockOrigin{Kind: kind, SideChain: origin}, nil
}

// canonizeOn implements spec.md §4.5's canonize against backend b: it loads
// the block's BlockMeta, derives number/n_chain_tx from the parent (or 0/
// n_tx at genesis), stages TransactionMeta updates for the coinbase's own
// flag and every spent producer output, then persists height→hash, the
// best pointer, the block's BlockMeta, and every staged TransactionMeta.
func canonizeOn(b backend, hash chainhash.Hash) error {
	block, err := b.FetchBlock(hash)
	if err != nil {
		return classifyCanonize(err)
	}
	meta, err := b.FetchBlockMeta(hash)
	if err != nil {
		return classifyCanonize(err)
	}

	var number, nChainTx uint32
	if primitives.IsGenesisParent(block.Header.PrevHash) {
		number = 0
		nChainTx = meta.NTx
	} else {
		parentMeta, err := b.FetchBlockMeta(block.Header.PrevHash)
		if err != nil {
			return classifyCanonize(err)
		}
		number = parentMeta.Number + 1
		nChainTx = parentMeta.NChainTx + meta.NTx
	}

	staged := make(map[chainhash.Hash]ledgerstore.TransactionMeta)
	fetchStaged := func(txHash chainhash.Hash) (ledgerstore.TransactionMeta, error) {
		if m, ok := staged[txHash]; ok {
			return m, nil
		}
		m, err := b.FetchTransactionMeta(txHash)
		if err != nil {
			return ledgerstore.TransactionMeta{}, classifyCanonize(err)
		}
		return m.Clone(), nil
	}

	for i, tx := range block.Txs {
		txHash := tx.Hash()
		if i == 0 {
			coinbaseMeta, err := fetchStaged(txHash)
			if err != nil {
				return err
			}
			coinbaseMeta.SetCoinbase(true)
			coinbaseMeta.Height = number
			staged[txHash] = coinbaseMeta
			continue
		}

		// The transaction's own meta is entering the chain at this block's
		// height, independent of its inputs' producers' heights.
		txMeta, err := fetchStaged(txHash)
		if err != nil {
			return err
		}
		txMeta.Height = number
		staged[txHash] = txMeta

		for _, in := range tx.Inputs {
			producerMeta, err := fetchStaged(in.PreviousOutput.Hash)
			if err != nil {
				return err
			}
			producerMeta.DenoteUsed(int(in.PreviousOutput.Index))
			staged[in.PreviousOutput.Hash] = producerMeta
		}
	}

	if err := b.SetBlockByNumber(hash, number); err != nil {
		return err
	}
	if err := b.SetBest(number); err != nil {
		return err
	}
	newMeta := ledgerstore.BlockMeta{Number: number, NTx: meta.NTx, NChainTx: nChainTx}
	if err := b.UpdateBlockMeta(hash, newMeta); err != nil {
		return err
	}
	for txHash, txMeta := range staged {
		if err := b.UpdateTransactionMeta(txHash, txMeta); err != nil {
			return err
		}
	}
	return nil
}

// decanonizeOn implements spec.md §4.5's decanonize against backend b: for
// the current best block, it clears the coinbase flag it set at canonize
// time and flips every non-coinbase input's producer output back to
// unused, then moves the best pointer back one height (staying at 0 for
// genesis). Block records are left untouched — the block remains
// retrievable by hash.
func decanonizeOn(b backend) error {
	hash, height, err := b.BestBlock()
	if err != nil {
		return classifyDecanonize(err)
	}
	block, err := b.FetchBlock(hash)
	if err != nil {
		return classifyDecanonize(err)
	}

	for i, tx := range block.Txs {
		txHash := tx.Hash()
		if i == 0 {
			meta, err := b.FetchTransactionMeta(txHash)
			if err != nil {
				return classifyDecanonize(err)
			}
			meta.SetCoinbase(false)
			if err := b.UpdateTransactionMeta(txHash, meta); err != nil {
				return err
			}
			continue
		}
		for _, in := range tx.Inputs {
			producerMeta, err := b.FetchTransactionMeta(in.PreviousOutput.Hash)
			if err != nil {
				return classifyDecanonize(err)
			}
			producerMeta.DenoteUnused(int(in.PreviousOutput.Index))
			if err := b.UpdateTransactionMeta(in.PreviousOutput.Hash, producerMeta); err != nil {
				return err
			}
		}
	}

	newHeight := height
	if height > 0 {
		newHeight = height - 1
	}
	return b.SetBest(newHeight)
}

func classifyCanonize(err error) error {
	if errors.Is(err, errors.ErrNotFound) {
		return errors.New(errors.ERR_CANNOT_CANONIZE, "referenced block or transaction not found", err)
	}
	return err
}

func classifyDecanonize(err error) error {
	if errors.Is(err, errors.ErrNotFound) {
		return errors.New(errors.ERR_CANNOT_DECANONIZE, "referenced block or transaction not found", err)
	}
	return err
}

// Canonize marks hash as part of the main chain and flushes.
func (m *Manager) Canonize(hash chainhash.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := canonizeOn(m.store, hash); err != nil {
		return err
	}
	return errors.DatabaseError(m.store.Flush())
}

// Decanonize unwinds the current best block by one and flushes.
func (m *Manager) Decanonize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := decanonizeOn(m.store); err != nil {
		return err
	}
	return errors.DatabaseError(m.store.Flush())
}

// RollbackBest repeatedly decanonizes until the best block is target.Hash,
// returning CannotDecanonize if genesis is reached first — target is not
// an ancestor of the current best tip.
func (m *Manager) RollbackBest(target BlockRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		hash, height, err := m.store.BestBlock()
		if err != nil {
			return err
		}
		if hash == target.Hash {
			return nil
		}
		if height == 0 {
			return errors.ErrCannotDecanonize
		}
		if err := decanonizeOn(m.store); err != nil {
			return err
		}
		if err := errors.DatabaseError(m.store.Flush()); err != nil {
			return err
		}
	}
}
