// Package coreledger is the storage engine's public API surface: Store
// (and its narrower read interfaces) plus BlockChain/Forkable, the way
// stores/blockchain/Interface.go exposes a single Store interface as the
// thing collaborators import rather than reaching into the store's
// internal package directly.
package coreledger

import (
	"github.com/bsv-chain/coreledger/internal/chainmgr"
	"github.com/bsv-chain/coreledger/internal/ledgerstore"
	"github.com/bsv-chain/coreledger/pkg/settings"
	"github.com/bsv-chain/coreledger/pkg/ulogger"
)

// Store is the full read surface of the Blockchain Store.
type Store = ledgerstore.ReadStore

// BlockProvider, TransactionProvider, TransactionMetaProvider, and
// TransactionOutputProvider are the narrower read interfaces Store
// composes, re-exported individually for collaborators that only need
// one slice of it.
type (
	BlockProvider             = ledgerstore.BlockProvider
	TransactionProvider       = ledgerstore.TransactionProvider
	TransactionMetaProvider   = ledgerstore.TransactionMetaProvider
	TransactionOutputProvider = ledgerstore.TransactionOutputProvider
)

// BlockChain and Forkable are the Chain Manager's write surface: insert,
// classify, canonize/decanonize/rollback, and fork-switch.
type (
	BlockChain = chainmgr.BlockChain
	Forkable   = chainmgr.Forkable
)

// Ledger bundles an opened Blockchain Store with its Chain Manager — the
// handle a caller opens once and holds for the process lifetime.
type Ledger struct {
	Store *ledgerstore.Store
	Chain *chainmgr.Manager
}

// Open opens (or creates) the on-disk database at cfg.DataDir and wraps
// it with a Chain Manager bounded by cfg.MaxForkLen.
func Open(cfg *settings.Settings, log *ulogger.Wrapper) (*Ledger, error) {
	store, err := ledgerstore.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		Store: store,
		Chain: chainmgr.New(store, cfg, log),
	}, nil
}

// Shutdown flushes and closes the underlying store.
func (l *Ledger) Shutdown() error {
	return l.Store.Shutdown()
}
