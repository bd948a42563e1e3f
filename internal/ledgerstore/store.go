package ledgerstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/bsv-chain/coreledger/internal/cal"
	"github.com/bsv-chain/coreledger/internal/khi"
	"github.com/bsv-chain/coreledger/internal/pageio"
	"github.com/bsv-chain/coreledger/internal/primitives"
	"github.com/bsv-chain/coreledger/pkg/errors"
	"github.com/bsv-chain/coreledger/pkg/settings"
	"github.com/bsv-chain/coreledger/pkg/ulogger"
	"github.com/google/uuid"
	"github.com/libsv/go-bt/v2/chainhash"
	"golang.org/x/sync/singleflight"
)

// bestPointerPRef is the fixed, reserved PRef of the best-tip record: the
// first record ever appended to a fresh data log always lands at offset 0.
const bestPointerPRef = pageio.PRef(0)

// noBestHeight is the sentinel best-height payload a fresh store writes
// before any block has been canonized.
const noBestHeight = ^uint32(0)

func keyBlock(hash chainhash.Hash) []byte {
	key := make([]byte, 1+chainhash.HashSize)
	key[0] = 'B'
	copy(key[1:], hash[:])
	return key
}

func keyTx(hash chainhash.Hash) []byte {
	key := make([]byte, 1+chainhash.HashSize)
	key[0] = 'T'
	copy(key[1:], hash[:])
	return key
}

func keyHeight(height uint32) []byte {
	key := make([]byte, 5)
	key[0] = 'H'
	key[1] = byte(height >> 24)
	key[2] = byte(height >> 16)
	key[3] = byte(height >> 8)
	key[4] = byte(height)
	return key
}

// Store is the Blockchain Store: the typed domain layer above the keyed
// hash index and content-addressed log, grounded on hammersbald-bitcoin's
// BlockchainDb.
type Store struct {
	mu sync.RWMutex

	dataFile  pageio.PagedFile
	tableFile pageio.PagedFile
	linkFile  pageio.PagedFile

	data   *cal.Log
	table  *khi.Table
	commit *cal.CommitLog

	log       *ulogger.Wrapper
	sessionID string

	fetchBlockGroup singleflight.Group
}

// Open composes the three logical files (data/table/link) plus the commit
// log, recovers any aborted tail per the commit log's recorded lengths, and
// reloads (or, for a fresh store, seeds) the keyed index and best pointer.
func Open(cfg *settings.Settings, log *ulogger.Wrapper) (*Store, error) {
	sessionID := uuid.NewString()
	slog := log.With("ledgerstore")

	dataFile, err := pageio.Open(cfg.DataDir, "data", "bc", cfg, log)
	if err != nil {
		return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
	}
	tableFile, err := pageio.Open(cfg.DataDir, "table", "tb", cfg, log)
	if err != nil {
		return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
	}
	linkFile, err := pageio.Open(cfg.DataDir, "link", "bl", cfg, log)
	if err != nil {
		return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
	}
	commitFile, err := pageio.Open(cfg.DataDir, "commit", "lg", cfg, log)
	if err != nil {
		return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
	}

	commit := cal.OpenCommitLog(commitFile)
	lengths, err := commit.Read()
	if err != nil {
		return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
	}
	if err := dataFile.Truncate(lengths.DataLen); err != nil {
		return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
	}
	if err := tableFile.Truncate(lengths.TableLen); err != nil {
		return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
	}
	if err := linkFile.Truncate(lengths.LinkLen); err != nil {
		return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
	}

	dataLog, err := cal.Open(dataFile)
	if err != nil {
		return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
	}
	linkLog, err := cal.Open(linkFile)
	if err != nil {
		return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
	}

	table, err := khi.NewTable(tableFile, dataLog, linkLog, cfg.BucketCacheSize)
	if err != nil {
		return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
	}
	if err := table.Load(); err != nil {
		return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
	}

	s := &Store{
		dataFile:  dataFile,
		tableFile: tableFile,
		linkFile:  linkFile,
		data:      dataLog,
		table:     table,
		commit:    commit,
		log:       slog,
		sessionID: sessionID,
	}

	if lengths.DataLen == 0 {
		if _, err := s.data.Append(cal.NewReferred(encodeHeight(noBestHeight))); err != nil {
			return nil, errors.DatabaseError(fmtSessionErr(sessionID, err))
		}
	}
	slog.Infof("opened %s session=%s", cfg.DataDir, sessionID)
	return s, nil
}

// fmtSessionErr tags err with the store's per-open session id, so a
// corruption report can be correlated back to the process run that produced
// it without needing to cross-reference log timestamps.
func fmtSessionErr(sessionID string, err error) error {
	return fmt.Errorf("session=%s: %w", sessionID, err)
}

func encodeHeight(h uint32) []byte {
	return []byte{byte(h >> 24), byte(h >> 16), byte(h >> 8), byte(h)}
}

func decodeHeight(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// InsertBlock stores header and txs under header.Hash(), idempotently: a
// block already on record returns nil without touching storage.
func (s *Store) InsertBlock(header *primitives.BlockHeader, txs []*primitives.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := header.Hash()
	if _, _, ok, err := s.table.GetKeyed(keyBlock(hash)); err != nil {
		return errors.DatabaseError(err)
	} else if ok {
		return nil
	}

	txPrefs := make([]pageio.PRef, len(txs))
	for i, tx := range txs {
		meta := NewTransactionMeta(0, len(tx.Outputs))
		metaPref, err := s.data.Append(cal.NewReferred(meta.Serialize()))
		if err != nil {
			return errors.DatabaseError(err)
		}
		txPref, err := s.data.Append(cal.NewReferred(tx.Serialize()))
		if err != nil {
			return errors.DatabaseError(err)
		}
		dbTx := DbTransaction{TxPref: txPref, MetaPref: metaPref}
		dbTxPref, err := s.data.Append(cal.NewIndexed(keyTx(tx.Hash()), dbTx.Serialize()))
		if err != nil {
			return errors.DatabaseError(err)
		}
		if err := s.table.PutKeyed(keyTx(tx.Hash()), dbTxPref); err != nil {
			return errors.DatabaseError(err)
		}
		txPrefs[i] = dbTxPref
	}

	headerPref, err := s.data.Append(cal.NewReferred(header.Serialize()))
	if err != nil {
		return errors.DatabaseError(err)
	}
	blockMeta := BlockMeta{Number: 0, NTx: uint32(len(txs)), NChainTx: 0}
	blockMetaPref, err := s.data.Append(cal.NewReferred(blockMeta.Serialize()))
	if err != nil {
		return errors.DatabaseError(err)
	}
	dbBlock := DbBlock{HeaderPref: headerPref, MetaPref: blockMetaPref, TxPrefs: txPrefs}
	dbBlockPref, err := s.data.Append(cal.NewIndexed(keyBlock(hash), dbBlock.Serialize()))
	if err != nil {
		return errors.DatabaseError(err)
	}
	if err := s.table.PutKeyed(keyBlock(hash), dbBlockPref); err != nil {
		return errors.DatabaseError(err)
	}
	return nil
}

func (s *Store) fetchDbBlock(hash chainhash.Hash) (DbBlock, error) {
	_, raw, ok, err := s.table.GetKeyed(keyBlock(hash))
	if err != nil {
		return DbBlock{}, errors.DatabaseError(err)
	}
	if !ok {
		return DbBlock{}, errors.ErrNotFound
	}
	block, err := DeserializeDbBlock(raw)
	if err != nil {
		return DbBlock{}, errors.New(errors.ERR_INCONSISTENT_DATA, "db block", err)
	}
	return block, nil
}

func (s *Store) fetchDbTransaction(hash chainhash.Hash) (DbTransaction, error) {
	_, raw, ok, err := s.table.GetKeyed(keyTx(hash))
	if err != nil {
		return DbTransaction{}, errors.DatabaseError(err)
	}
	if !ok {
		return DbTransaction{}, errors.ErrNotFound
	}
	dbTx, err := DeserializeDbTransaction(raw)
	if err != nil {
		return DbTransaction{}, errors.New(errors.ERR_INCONSISTENT_DATA, "db transaction", err)
	}
	return dbTx, nil
}

// FetchBlock resolves hash's DbBlock, header, and every transaction.
// Concurrent callers asking for the same hash share a single lookup via
// fetchBlockGroup rather than each re-walking CAL/KHI independently.
func (s *Store) FetchBlock(hash chainhash.Hash) (*Block, error) {
	v, err, _ := s.fetchBlockGroup.Do(string(hash[:]), func() (interface{}, error) {
		return s.fetchBlockLocked(hash)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Block), nil
}

func (s *Store) fetchBlockLocked(hash chainhash.Hash) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dbBlock, err := s.fetchDbBlock(hash)
	if err != nil {
		return nil, err
	}

	headerEnv, err := s.data.GetEnvelope(dbBlock.HeaderPref)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	if headerEnv.Tag != cal.TagReferred {
		return nil, errors.New(errors.ERR_INCONSISTENT_DATA, "header pref does not point at a referred record")
	}
	header, err := primitives.DeserializeHeader(headerEnv.Referred.Bytes)
	if err != nil {
		return nil, errors.New(errors.ERR_INCONSISTENT_DATA, "header", err)
	}

	txs := make([]*primitives.Transaction, len(dbBlock.TxPrefs))
	for i, dbTxPref := range dbBlock.TxPrefs {
		dbTxEnv, err := s.data.GetEnvelope(dbTxPref)
		if err != nil {
			return nil, errors.DatabaseError(err)
		}
		if dbTxEnv.Tag != cal.TagIndexed {
			return nil, errors.New(errors.ERR_INCONSISTENT_DATA, "block transaction pref does not point at an indexed record")
		}
		dbTx, err := DeserializeDbTransaction(dbTxEnv.Indexed.Data.Bytes)
		if err != nil {
			return nil, errors.New(errors.ERR_INCONSISTENT_DATA, "db transaction", err)
		}
		txEnv, err := s.data.GetEnvelope(dbTx.TxPref)
		if err != nil {
			return nil, errors.DatabaseError(err)
		}
		if txEnv.Tag != cal.TagReferred {
			return nil, errors.New(errors.ERR_INCONSISTENT_DATA, "transaction pref does not point at a referred record")
		}
		tx, err := primitives.DeserializeTransaction(txEnv.Referred.Bytes)
		if err != nil {
			return nil, errors.New(errors.ERR_INCONSISTENT_DATA, "transaction", err)
		}
		txs[i] = tx
	}

	return &Block{Header: header, Txs: txs}, nil
}

// FetchTransaction resolves hash's raw transaction.
func (s *Store) FetchTransaction(hash chainhash.Hash) (*primitives.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dbTx, err := s.fetchDbTransaction(hash)
	if err != nil {
		return nil, err
	}
	env, err := s.data.GetEnvelope(dbTx.TxPref)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	if env.Tag != cal.TagReferred {
		return nil, errors.New(errors.ERR_INCONSISTENT_DATA, "transaction pref does not point at a referred record")
	}
	return primitives.DeserializeTransaction(env.Referred.Bytes)
}

// FetchBlockMeta resolves hash's BlockMeta.
func (s *Store) FetchBlockMeta(hash chainhash.Hash) (BlockMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dbBlock, err := s.fetchDbBlock(hash)
	if err != nil {
		return BlockMeta{}, err
	}
	env, err := s.data.GetEnvelope(dbBlock.MetaPref)
	if err != nil {
		return BlockMeta{}, errors.DatabaseError(err)
	}
	if env.Tag != cal.TagReferred {
		return BlockMeta{}, errors.New(errors.ERR_INCONSISTENT_DATA, "block meta pref does not point at a referred record")
	}
	meta, err := DeserializeBlockMeta(env.Referred.Bytes)
	if err != nil {
		return BlockMeta{}, errors.New(errors.ERR_INCONSISTENT_DATA, "block meta", err)
	}
	return meta, nil
}

// FetchTransactionMeta resolves hash's TransactionMeta.
func (s *Store) FetchTransactionMeta(hash chainhash.Hash) (TransactionMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchTransactionMetaLocked(hash)
}

func (s *Store) fetchTransactionMetaLocked(hash chainhash.Hash) (TransactionMeta, error) {
	dbTx, err := s.fetchDbTransaction(hash)
	if err != nil {
		return TransactionMeta{}, err
	}
	env, err := s.data.GetEnvelope(dbTx.MetaPref)
	if err != nil {
		return TransactionMeta{}, errors.DatabaseError(err)
	}
	if env.Tag != cal.TagReferred {
		return TransactionMeta{}, errors.New(errors.ERR_INCONSISTENT_DATA, "transaction meta pref does not point at a referred record")
	}
	meta, err := DeserializeTransactionMeta(env.Referred.Bytes)
	if err != nil {
		return TransactionMeta{}, errors.New(errors.ERR_INCONSISTENT_DATA, "transaction meta", err)
	}
	return meta, nil
}

// UpdateBlockMeta replaces hash's BlockMeta via CAL set_data.
func (s *Store) UpdateBlockMeta(hash chainhash.Hash, meta BlockMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbBlock, err := s.fetchDbBlock(hash)
	if err != nil {
		return err
	}
	if err := s.data.SetData(dbBlock.MetaPref, meta.Serialize()); err != nil {
		return errors.DatabaseError(err)
	}
	return nil
}

// UpdateTransactionMeta replaces hash's TransactionMeta via CAL set_data.
func (s *Store) UpdateTransactionMeta(hash chainhash.Hash, meta TransactionMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateTransactionMetaLocked(hash, meta)
}

func (s *Store) updateTransactionMetaLocked(hash chainhash.Hash, meta TransactionMeta) error {
	dbTx, err := s.fetchDbTransaction(hash)
	if err != nil {
		return err
	}
	if err := s.data.SetData(dbTx.MetaPref, meta.Serialize()); err != nil {
		return errors.DatabaseError(err)
	}
	return nil
}

// BlockHash resolves the canonical block hash at height, as recorded by the
// most recent SetBlockByNumber(hash, height).
func (s *Store) BlockHash(height uint32) (chainhash.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blockHashLocked(height)
}

func (s *Store) blockHashLocked(height uint32) (chainhash.Hash, error) {
	_, raw, ok, err := s.table.GetKeyed(keyHeight(height))
	if err != nil {
		return chainhash.Hash{}, errors.DatabaseError(err)
	}
	if !ok {
		return chainhash.Hash{}, errors.ErrNotFound
	}
	var hash chainhash.Hash
	copy(hash[:], raw)
	return hash, nil
}

// SetBlockByNumber records hash as the canonical block at height,
// overwriting any previous mapping for that height.
func (s *Store) SetBlockByNumber(hash chainhash.Hash, height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setBlockByNumberLocked(hash, height)
}

func (s *Store) setBlockByNumberLocked(hash chainhash.Hash, height uint32) error {
	_, _, existed, err := s.table.GetKeyed(keyHeight(height))
	if err != nil {
		return errors.DatabaseError(err)
	}

	pref, err := s.data.Append(cal.NewIndexed(keyHeight(height), hash[:]))
	if err != nil {
		return errors.DatabaseError(err)
	}
	if existed {
		return errors.DatabaseError(s.table.UpdateKeyed(keyHeight(height), pref))
	}
	return errors.DatabaseError(s.table.PutKeyed(keyHeight(height), pref))
}

// BestBlock returns the current best tip's hash and height.
func (s *Store) BestBlock() (chainhash.Hash, uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestBlockLocked()
}

func (s *Store) bestBlockLocked() (chainhash.Hash, uint32, error) {
	env, err := s.data.GetEnvelope(bestPointerPRef)
	if err != nil {
		return chainhash.Hash{}, 0, errors.DatabaseError(err)
	}
	height := decodeHeight(env.Referred.Bytes)
	if height == noBestHeight {
		return chainhash.Hash{}, 0, errors.ErrNotFound
	}
	hash, err := s.blockHashLocked(height)
	if err != nil {
		return chainhash.Hash{}, 0, err
	}
	return hash, height, nil
}

// SetBest writes height at the reserved best-pointer record.
func (s *Store) SetBest(height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setBestLocked(height)
}

func (s *Store) setBestLocked(height uint32) error {
	return errors.DatabaseError(s.data.SetData(bestPointerPRef, encodeHeight(height)))
}

// Flush durably commits every pending CAL/KHI mutation and records the new
// commit-log lengths — the only point at which durability is guaranteed.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	start := time.Now()
	defer func() { prometheusLedgerstoreFlushDuration.Observe(time.Since(start).Seconds()) }()

	if err := s.data.Flush(); err != nil {
		return errors.DatabaseError(fmtSessionErr(s.sessionID, err))
	}
	if err := s.table.Flush(); err != nil {
		return errors.DatabaseError(fmtSessionErr(s.sessionID, err))
	}
	// Record the logs' logical end-of-log cursors, not the underlying
	// files' raw byte lengths: flushing a partial trailing page writes that
	// whole page to disk, which would otherwise make the file length
	// overshoot the true, reopenable cursor.
	tableLen, err := s.tableFile.Len()
	if err != nil {
		return errors.DatabaseError(fmtSessionErr(s.sessionID, err))
	}
	lengths := cal.Lengths{
		DataLen:  uint64(s.data.Position()),
		TableLen: tableLen,
		LinkLen:  uint64(s.table.LinkPosition()),
	}
	if err := s.commit.Write(lengths); err != nil {
		return errors.DatabaseError(fmtSessionErr(s.sessionID, err))
	}
	return nil
}

// Shutdown flushes and releases every underlying file handle.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(); err != nil {
		return err
	}
	if err := s.table.Shutdown(); err != nil {
		return errors.DatabaseError(err)
	}
	if err := s.data.Shutdown(); err != nil {
		return errors.DatabaseError(err)
	}
	return errors.DatabaseError(s.commit.Shutdown())
}
