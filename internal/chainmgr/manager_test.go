package chainmgr

import (
	"testing"

	"github.com/bsv-chain/coreledger/internal/ledgerstore"
	"github.com/bsv-chain/coreledger/internal/primitives"
	"github.com/bsv-chain/coreledger/pkg/errors"
	"github.com/bsv-chain/coreledger/pkg/settings"
	"github.com/bsv-chain/coreledger/pkg/ulogger"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

func testSettings(t *testing.T) *settings.Settings {
	t.Helper()
	cfg := settings.Default()
	cfg.DataDir = t.TempDir()
	cfg.BucketCacheSize = 64
	cfg.SegmentPages = 1024
	cfg.MaxForkLen = 2048
	return cfg
}

func testLog(t *testing.T) *ulogger.Wrapper {
	t.Helper()
	return ulogger.New("chainmgr_test", "error")
}

func coinbaseTx(seed byte) *primitives.Transaction {
	return &primitives.Transaction{
		Version: 1,
		Inputs: []primitives.TxIn{{
			PreviousOutput: primitives.OutPoint{Index: 0xffffffff},
			UnlockScript:   []byte{seed},
			Sequence:       0xffffffff,
		}},
		Outputs: []primitives.TxOut{{Value: 5000000000, LockScript: []byte{seed}}},
	}
}

func spendingTx(producer chainhash.Hash, index uint32, seed byte) *primitives.Transaction {
	return &primitives.Transaction{
		Version: 1,
		Inputs: []primitives.TxIn{{
			PreviousOutput: primitives.OutPoint{Hash: producer, Index: index},
			UnlockScript:   []byte{seed},
			Sequence:       0xffffffff,
		}},
		Outputs: []primitives.TxOut{{Value: int64(seed) * 100, LockScript: []byte{seed}}},
	}
}

func sampleHeader(prev chainhash.Hash, nonce uint32) *primitives.BlockHeader {
	return &primitives.BlockHeader{
		Version:    1,
		PrevHash:   prev,
		MerkleRoot: chainhash.Hash{},
		Time:       1600000000,
		Bits:       0x1d00ffff,
		Nonce:      nonce,
	}
}

func openTestManager(t *testing.T) (*Manager, *ledgerstore.Store, *settings.Settings) {
	t.Helper()
	cfg := testSettings(t)
	store, err := ledgerstore.Open(cfg, testLog(t))
	require.NoError(t, err)
	return New(store, cfg, testLog(t)), store, cfg
}

// TestGenesisAndTwoCanonicalBlocks covers scenario 1: genesis + two
// canonical blocks.
func TestGenesisAndTwoCanonicalBlocks(t *testing.T) {
	mgr, store, _ := openTestManager(t)

	genesis := sampleHeader(chainhash.Hash{}, 0)
	require.NoError(t, mgr.Insert(genesis, []*primitives.Transaction{coinbaseTx(1)}))
	require.NoError(t, mgr.Canonize(genesis.Hash()))

	b1 := sampleHeader(genesis.Hash(), 1)
	require.NoError(t, mgr.Insert(b1, []*primitives.Transaction{coinbaseTx(2)}))
	require.NoError(t, mgr.Canonize(b1.Hash()))

	b2 := sampleHeader(b1.Hash(), 2)
	require.NoError(t, mgr.Insert(b2, []*primitives.Transaction{coinbaseTx(3)}))
	require.NoError(t, mgr.Canonize(b2.Hash()))

	hash, height, err := store.BestBlock()
	require.NoError(t, err)
	require.Equal(t, b2.Hash(), hash)
	require.Equal(t, uint32(2), height)

	wantHashes := []chainhash.Hash{genesis.Hash(), b1.Hash(), b2.Hash()}
	for h, want := range wantHashes {
		got, err := store.BlockHash(uint32(h))
		require.NoError(t, err)
		require.Equal(t, want, got)

		meta, err := store.FetchBlockMeta(want)
		require.NoError(t, err)
		require.Equal(t, uint32(h), meta.Number)
	}
}

// TestReopenPreservesBestTip covers scenario 2: flush, shutdown, reopen.
func TestReopenPreservesBestTip(t *testing.T) {
	cfg := testSettings(t)
	store, err := ledgerstore.Open(cfg, testLog(t))
	require.NoError(t, err)
	mgr := New(store, cfg, testLog(t))

	genesis := sampleHeader(chainhash.Hash{}, 0)
	require.NoError(t, mgr.Insert(genesis, []*primitives.Transaction{coinbaseTx(1)}))
	require.NoError(t, mgr.Canonize(genesis.Hash()))

	b1 := sampleHeader(genesis.Hash(), 1)
	require.NoError(t, mgr.Insert(b1, []*primitives.Transaction{coinbaseTx(2)}))
	require.NoError(t, mgr.Canonize(b1.Hash()))

	b2 := sampleHeader(b1.Hash(), 2)
	require.NoError(t, mgr.Insert(b2, []*primitives.Transaction{coinbaseTx(3)}))
	require.NoError(t, mgr.Canonize(b2.Hash()))

	require.NoError(t, store.Shutdown())

	reopened, err := ledgerstore.Open(cfg, testLog(t))
	require.NoError(t, err)

	hash, height, err := reopened.BestBlock()
	require.NoError(t, err)
	require.Equal(t, b2.Hash(), hash)
	require.Equal(t, uint32(2), height)

	for _, h := range []*primitives.BlockHeader{genesis, b1, b2} {
		got, err := reopened.FetchBlock(h.Hash())
		require.NoError(t, err)
		require.Equal(t, h.Serialize(), got.Header.Serialize())
	}
}

// TestSimpleForkSwitch covers scenario 3: a one-block fork replacing the
// current tip.
func TestSimpleForkSwitch(t *testing.T) {
	mgr, store, _ := openTestManager(t)

	genesis := sampleHeader(chainhash.Hash{}, 0)
	require.NoError(t, mgr.Insert(genesis, []*primitives.Transaction{coinbaseTx(1)}))
	require.NoError(t, mgr.Canonize(genesis.Hash()))

	b1 := sampleHeader(genesis.Hash(), 1)
	require.NoError(t, mgr.Insert(b1, []*primitives.Transaction{coinbaseTx(2)}))
	require.NoError(t, mgr.Canonize(b1.Hash()))

	b2Prime := sampleHeader(b1.Hash(), 99)
	require.NoError(t, mgr.Insert(b2Prime, []*primitives.Transaction{coinbaseTx(5)}))

	origin, err := mgr.BlockOrigin(b2Prime)
	require.NoError(t, err)
	require.Equal(t, SideChainBecomesCanon, origin.Kind)
	require.Equal(t, uint32(1), origin.SideChain.Ancestor)
	require.Equal(t, []chainhash.Hash{b2Prime.Hash()}, origin.SideChain.CanonizedRoute)
	require.Empty(t, origin.SideChain.DecanonizedRoute)
	require.Equal(t, uint32(2), origin.SideChain.BlockNumber)

	fork, err := mgr.Fork(origin.SideChain)
	require.NoError(t, err)
	require.NoError(t, fork.Canonize(b2Prime.Hash()))
	require.NoError(t, mgr.SwitchToFork(fork))

	hash, height, err := store.BestBlock()
	require.NoError(t, err)
	require.Equal(t, b2Prime.Hash(), hash)
	require.Equal(t, uint32(2), height)

	got, err := store.BlockHash(2)
	require.NoError(t, err)
	require.Equal(t, b2Prime.Hash(), got)
}

// TestLongerForkReorg covers scenario 4: a two-block fork that overtakes a
// two-block canonical chain, with spentness bits flipping correctly on
// both sides of the reorg.
func TestLongerForkReorg(t *testing.T) {
	mgr, store, _ := openTestManager(t)

	genesis := sampleHeader(chainhash.Hash{}, 0)
	genesisCoinbase := coinbaseTx(1)
	require.NoError(t, mgr.Insert(genesis, []*primitives.Transaction{genesisCoinbase}))
	require.NoError(t, mgr.Canonize(genesis.Hash()))

	b1 := sampleHeader(genesis.Hash(), 1)
	b1Coinbase := coinbaseTx(2)
	require.NoError(t, mgr.Insert(b1, []*primitives.Transaction{b1Coinbase}))
	require.NoError(t, mgr.Canonize(b1.Hash()))

	b2Coinbase := coinbaseTx(3)
	b2Spend := spendingTx(b1Coinbase.Hash(), 0, 10)
	b2 := sampleHeader(b1.Hash(), 2)
	require.NoError(t, mgr.Insert(b2, []*primitives.Transaction{b2Coinbase, b2Spend}))
	require.NoError(t, mgr.Canonize(b2.Hash()))

	spentAfterB2, err := store.FetchTransactionMeta(b1Coinbase.Hash())
	require.NoError(t, err)
	require.True(t, spentAfterB2.IsSpent(0))

	b2Prime := sampleHeader(b1.Hash(), 77)
	b2PrimeCoinbase := coinbaseTx(6)
	require.NoError(t, mgr.Insert(b2Prime, []*primitives.Transaction{b2PrimeCoinbase}))

	b3PrimeCoinbase := coinbaseTx(7)
	b3PrimeSpend := spendingTx(b2PrimeCoinbase.Hash(), 0, 11)
	b3Prime := sampleHeader(b2Prime.Hash(), 78)
	require.NoError(t, mgr.Insert(b3Prime, []*primitives.Transaction{b3PrimeCoinbase, b3PrimeSpend}))

	origin, err := mgr.BlockOrigin(b3Prime)
	require.NoError(t, err)
	require.Equal(t, SideChainBecomesCanon, origin.Kind)
	require.Equal(t, uint32(1), origin.SideChain.Ancestor)
	require.Equal(t, []chainhash.Hash{b2Prime.Hash(), b3Prime.Hash()}, origin.SideChain.CanonizedRoute)
	require.Equal(t, []chainhash.Hash{b2.Hash()}, origin.SideChain.DecanonizedRoute)
	require.Equal(t, uint32(3), origin.SideChain.BlockNumber)

	fork, err := mgr.Fork(origin.SideChain)
	require.NoError(t, err)
	require.NoError(t, fork.Canonize(b2Prime.Hash()))
	require.NoError(t, fork.Canonize(b3Prime.Hash()))
	require.NoError(t, mgr.SwitchToFork(fork))

	hash, height, err := store.BestBlock()
	require.NoError(t, err)
	require.Equal(t, b3Prime.Hash(), hash)
	require.Equal(t, uint32(3), height)

	restoredB1Meta, err := store.FetchTransactionMeta(b1Coinbase.Hash())
	require.NoError(t, err)
	require.False(t, restoredB1Meta.IsSpent(0))

	spentB2Prime, err := store.FetchTransactionMeta(b2PrimeCoinbase.Hash())
	require.NoError(t, err)
	require.True(t, spentB2Prime.IsSpent(0))
}

// TestUnknownParentRejected covers scenario 5.
func TestUnknownParentRejected(t *testing.T) {
	mgr, _, _ := openTestManager(t)

	bogusParent := chainhash.Hash{0xde, 0xad, 0xbe, 0xef}
	orphan := sampleHeader(bogusParent, 1)

	err := mgr.Insert(orphan, []*primitives.Transaction{coinbaseTx(1)})
	require.ErrorIs(t, err, errors.ErrUnknownParent)

	_, err = mgr.BlockOrigin(orphan)
	require.ErrorIs(t, err, errors.ErrUnknownParent)
}

// TestCanonizeDecanonizeInverse checks that decanonize restores every
// TransactionMeta bit canonize touched, plus the best pointer.
func TestCanonizeDecanonizeInverse(t *testing.T) {
	mgr, store, _ := openTestManager(t)

	genesis := sampleHeader(chainhash.Hash{}, 0)
	genesisCoinbase := coinbaseTx(1)
	require.NoError(t, mgr.Insert(genesis, []*primitives.Transaction{genesisCoinbase}))
	require.NoError(t, mgr.Canonize(genesis.Hash()))

	b1 := sampleHeader(genesis.Hash(), 1)
	b1Coinbase := coinbaseTx(2)
	b1Spend := spendingTx(genesisCoinbase.Hash(), 0, 9)
	require.NoError(t, mgr.Insert(b1, []*primitives.Transaction{b1Coinbase, b1Spend}))
	require.NoError(t, mgr.Canonize(b1.Hash()))

	require.NoError(t, mgr.Decanonize())

	hash, height, err := store.BestBlock()
	require.NoError(t, err)
	require.Equal(t, genesis.Hash(), hash)
	require.Equal(t, uint32(0), height)

	producerMeta, err := store.FetchTransactionMeta(genesisCoinbase.Hash())
	require.NoError(t, err)
	require.False(t, producerMeta.IsSpent(0))

	b1CoinbaseMeta, err := store.FetchTransactionMeta(b1Coinbase.Hash())
	require.NoError(t, err)
	require.False(t, b1CoinbaseMeta.IsCoinbase())
}
