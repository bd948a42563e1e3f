package chainmgr

import (
	"github.com/bsv-chain/coreledger/internal/ledgerstore"
	"github.com/bsv-chain/coreledger/pkg/errors"
	"github.com/libsv/go-bt/v2/chainhash"
)

// overlay is the in-memory fork layer: writes land in maps, reads check
// the maps first and fall through to the persistent store on miss. Block
// records themselves are never touched here — insert_block always writes
// them directly to the persistent store, so only BlockMeta,
// TransactionMeta, height→hash pointers, and the best pointer need a
// staged, materializable form.
type overlay struct {
	store *ledgerstore.Store

	blockMetas   map[chainhash.Hash]ledgerstore.BlockMeta
	txMetas      map[chainhash.Hash]ledgerstore.TransactionMeta
	heightToHash map[uint32]chainhash.Hash

	bestHeight uint32
	bestSet    bool
}

func newOverlay(store *ledgerstore.Store) *overlay {
	return &overlay{
		store:        store,
		blockMetas:   make(map[chainhash.Hash]ledgerstore.BlockMeta),
		txMetas:      make(map[chainhash.Hash]ledgerstore.TransactionMeta),
		heightToHash: make(map[uint32]chainhash.Hash),
	}
}

func (o *overlay) FetchBlock(hash chainhash.Hash) (*ledgerstore.Block, error) {
	return o.store.FetchBlock(hash)
}

func (o *overlay) FetchBlockMeta(hash chainhash.Hash) (ledgerstore.BlockMeta, error) {
	if meta, ok := o.blockMetas[hash]; ok {
		return meta, nil
	}
	return o.store.FetchBlockMeta(hash)
}

func (o *overlay) UpdateBlockMeta(hash chainhash.Hash, meta ledgerstore.BlockMeta) error {
	o.blockMetas[hash] = meta
	return nil
}

func (o *overlay) FetchTransactionMeta(hash chainhash.Hash) (ledgerstore.TransactionMeta, error) {
	if meta, ok := o.txMetas[hash]; ok {
		return meta.Clone(), nil
	}
	return o.store.FetchTransactionMeta(hash)
}

func (o *overlay) UpdateTransactionMeta(hash chainhash.Hash, meta ledgerstore.TransactionMeta) error {
	o.txMetas[hash] = meta.Clone()
	return nil
}

func (o *overlay) BlockHash(height uint32) (chainhash.Hash, error) {
	if hash, ok := o.heightToHash[height]; ok {
		return hash, nil
	}
	return o.store.BlockHash(height)
}

func (o *overlay) SetBlockByNumber(hash chainhash.Hash, height uint32) error {
	o.heightToHash[height] = hash
	return nil
}

func (o *overlay) BestBlock() (chainhash.Hash, uint32, error) {
	if o.bestSet {
		hash, err := o.BlockHash(o.bestHeight)
		if err != nil {
			return chainhash.Hash{}, 0, err
		}
		return hash, o.bestHeight, nil
	}
	return o.store.BestBlock()
}

func (o *overlay) SetBest(height uint32) error {
	o.bestHeight = height
	o.bestSet = true
	return nil
}

// materialize writes every staged mutation into the persistent store. It
// does not flush the persistent store itself — the caller (switch_to_fork)
// does that once every write has landed.
func (o *overlay) materialize() error {
	for hash, meta := range o.blockMetas {
		if err := o.store.UpdateBlockMeta(hash, meta); err != nil {
			return err
		}
	}
	for hash, meta := range o.txMetas {
		if err := o.store.UpdateTransactionMeta(hash, meta); err != nil {
			return err
		}
	}
	for height, hash := range o.heightToHash {
		if err := o.store.SetBlockByNumber(hash, height); err != nil {
			return err
		}
	}
	if o.bestSet {
		if err := o.store.SetBest(o.bestHeight); err != nil {
			return err
		}
	}
	return nil
}

var _ backend = (*overlay)(nil)

// ForkChain is the handle Fork returns: an overlay mid-build, holding the
// Manager's best-tip write lock until SwitchToFork commits it or Discard
// abandons it.
type ForkChain struct {
	mgr     *Manager
	overlay *overlay
	origin  SideChainOrigin
	done    bool
}

// Fork constructs an overlay for origin, pre-walked back through
// origin.DecanonizedRoute (oldest first) via decanonizeOn so the overlay's
// view sits at the common ancestor, ready for the caller to Canonize each
// hash in origin.CanonizedRoute. Acquires the Manager's best-tip write lock
// for the fork's entire lifetime; the caller must eventually call
// SwitchToFork or Discard to release it.
func (m *Manager) Fork(origin SideChainOrigin) (*ForkChain, error) {
	m.mu.Lock()

	ov := newOverlay(m.store)
	fc := &ForkChain{mgr: m, overlay: ov, origin: origin}

	// Each decanonize depends on the overlay state left by the previous one,
	// so steps run strictly in sequence.
	for range origin.DecanonizedRoute {
		if err := decanonizeOn(ov); err != nil {
			fc.Discard()
			return nil, err
		}
	}
	return fc, nil
}

// Canonize stages hash's canonization into the fork's overlay.
func (fc *ForkChain) Canonize(hash chainhash.Hash) error {
	if fc.done {
		return errors.New(errors.ERR_INVALID_ARGUMENT, "fork already resolved")
	}
	return canonizeOn(fc.overlay, hash)
}

// Discard releases the fork's held write lock without touching persistent
// state — the in-memory overlay simply goes out of scope.
func (fc *ForkChain) Discard() {
	if fc.done {
		return
	}
	fc.done = true
	fc.mgr.mu.Unlock()
}

// SwitchToFork atomically commits fc: materializes every staged mutation
// into the persistent store and flushes it. The Manager's best-tip write
// lock, held since Fork, is released on return whether this succeeds or
// fails.
func (m *Manager) SwitchToFork(fc *ForkChain) error {
	if fc.mgr != m {
		return errors.New(errors.ERR_INVALID_ARGUMENT, "fork belongs to a different manager")
	}
	defer fc.Discard()

	if err := fc.overlay.materialize(); err != nil {
		return err
	}
	return errors.DatabaseError(m.store.Flush())
}
