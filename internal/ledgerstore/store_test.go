package ledgerstore

import (
	"testing"

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
	return cfg
}

func testLog(t *testing.T) *ulogger.Wrapper {
	t.Helper()
	return ulogger.New("ledgerstore_test", "error")
}

func sampleTx(t *testing.T, seed byte) *primitives.Transaction {
	t.Helper()
	return &primitives.Transaction{
		Version: 1,
		Inputs: []primitives.TxIn{{
			PreviousOutput: primitives.OutPoint{Index: uint32(seed)},
			UnlockScript:   []byte{seed},
			Sequence:       0xffffffff,
		}},
		Outputs: []primitives.TxOut{
			{Value: int64(seed) * 1000, LockScript: []byte{seed, seed}},
		},
		LockTime: 0,
	}
}

func coinbaseTx(t *testing.T, seed byte) *primitives.Transaction {
	t.Helper()
	return &primitives.Transaction{
		Version: 1,
		Inputs: []primitives.TxIn{{
			PreviousOutput: primitives.OutPoint{Index: 0xffffffff},
			UnlockScript:   []byte{seed},
			Sequence:       0xffffffff,
		}},
		Outputs: []primitives.TxOut{
			{Value: 5000000000, LockScript: []byte{seed}},
		},
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

func TestInsertAndFetchBlockRoundTrip(t *testing.T) {
	store, err := Open(testSettings(t), testLog(t))
	require.NoError(t, err)

	header := sampleHeader(chainhash.Hash{}, 1)
	txs := []*primitives.Transaction{coinbaseTx(t, 1), sampleTx(t, 2)}

	require.NoError(t, store.InsertBlock(header, txs))

	got, err := store.FetchBlock(header.Hash())
	require.NoError(t, err)
	require.Equal(t, header.Serialize(), got.Header.Serialize())
	require.Len(t, got.Txs, 2)
	require.Equal(t, txs[0].Serialize(), got.Txs[0].Serialize())
	require.Equal(t, txs[1].Serialize(), got.Txs[1].Serialize())
}

func TestInsertBlockIsIdempotent(t *testing.T) {
	store, err := Open(testSettings(t), testLog(t))
	require.NoError(t, err)

	header := sampleHeader(chainhash.Hash{}, 7)
	txs := []*primitives.Transaction{coinbaseTx(t, 1)}

	require.NoError(t, store.InsertBlock(header, txs))
	require.NoError(t, store.InsertBlock(header, txs))

	got, err := store.FetchBlock(header.Hash())
	require.NoError(t, err)
	require.Len(t, got.Txs, 1)
}

func TestBlockMetaAndTransactionMetaUpdateRoundTrip(t *testing.T) {
	store, err := Open(testSettings(t), testLog(t))
	require.NoError(t, err)

	header := sampleHeader(chainhash.Hash{}, 2)
	tx := coinbaseTx(t, 3)
	require.NoError(t, store.InsertBlock(header, []*primitives.Transaction{tx}))

	meta, err := store.FetchBlockMeta(header.Hash())
	require.NoError(t, err)
	require.Equal(t, uint32(0), meta.Number)
	require.Equal(t, uint32(1), meta.NTx)

	meta.Number = 5
	meta.NChainTx = 5
	require.NoError(t, store.UpdateBlockMeta(header.Hash(), meta))

	got, err := store.FetchBlockMeta(header.Hash())
	require.NoError(t, err)
	require.Equal(t, uint32(5), got.Number)
	require.Equal(t, uint32(5), got.NChainTx)

	txMeta, err := store.FetchTransactionMeta(tx.Hash())
	require.NoError(t, err)
	require.False(t, txMeta.IsCoinbase())

	txMeta.SetCoinbase(true)
	txMeta.DenoteUsed(0)
	require.NoError(t, store.UpdateTransactionMeta(tx.Hash(), txMeta))

	gotTxMeta, err := store.FetchTransactionMeta(tx.Hash())
	require.NoError(t, err)
	require.True(t, gotTxMeta.IsCoinbase())
	require.True(t, gotTxMeta.IsSpent(0))

	spent, err := store.IsSpent(tx.Hash(), 0)
	require.NoError(t, err)
	require.True(t, spent)
}

func TestBlockHashAndSetBlockByNumber(t *testing.T) {
	store, err := Open(testSettings(t), testLog(t))
	require.NoError(t, err)

	header := sampleHeader(chainhash.Hash{}, 9)
	require.NoError(t, store.InsertBlock(header, []*primitives.Transaction{coinbaseTx(t, 1)}))
	require.NoError(t, store.SetBlockByNumber(header.Hash(), 0))

	got, err := store.BlockHash(0)
	require.NoError(t, err)
	require.Equal(t, header.Hash(), got)

	other := sampleHeader(header.Hash(), 10)
	require.NoError(t, store.InsertBlock(other, []*primitives.Transaction{coinbaseTx(t, 2)}))
	require.NoError(t, store.SetBlockByNumber(other.Hash(), 0))

	got2, err := store.BlockHash(0)
	require.NoError(t, err)
	require.Equal(t, other.Hash(), got2)
}

func TestBestBlockRoundTrip(t *testing.T) {
	store, err := Open(testSettings(t), testLog(t))
	require.NoError(t, err)

	_, _, err = store.BestBlock()
	require.ErrorIs(t, err, errors.ErrNotFound)

	header := sampleHeader(chainhash.Hash{}, 11)
	require.NoError(t, store.InsertBlock(header, []*primitives.Transaction{coinbaseTx(t, 1)}))
	require.NoError(t, store.SetBlockByNumber(header.Hash(), 0))
	require.NoError(t, store.SetBest(0))

	hash, height, err := store.BestBlock()
	require.NoError(t, err)
	require.Equal(t, header.Hash(), hash)
	require.Equal(t, uint32(0), height)
}

func TestFlushAndReopen(t *testing.T) {
	cfg := testSettings(t)
	store, err := Open(cfg, testLog(t))
	require.NoError(t, err)

	header := sampleHeader(chainhash.Hash{}, 12)
	require.NoError(t, store.InsertBlock(header, []*primitives.Transaction{coinbaseTx(t, 1)}))
	require.NoError(t, store.SetBlockByNumber(header.Hash(), 0))
	require.NoError(t, store.SetBest(0))
	require.NoError(t, store.Shutdown())

	reopened, err := Open(cfg, testLog(t))
	require.NoError(t, err)

	hash, height, err := reopened.BestBlock()
	require.NoError(t, err)
	require.Equal(t, header.Hash(), hash)
	require.Equal(t, uint32(0), height)

	got, err := reopened.FetchBlock(header.Hash())
	require.NoError(t, err)
	require.Equal(t, header.Serialize(), got.Header.Serialize())
}

func TestFetchBlockUnknownHashNotFound(t *testing.T) {
	store, err := Open(testSettings(t), testLog(t))
	require.NoError(t, err)

	_, err = store.FetchBlock(chainhash.Hash{0xde, 0xad})
	require.ErrorIs(t, err, errors.ErrNotFound)
}
