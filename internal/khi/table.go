package khi

import (
	"math/rand"
	"sync"

	"github.com/bsv-chain/coreledger/internal/cal"
	"github.com/bsv-chain/coreledger/internal/pageio"
	"github.com/bsv-chain/coreledger/pkg/errors"
	lru "github.com/hashicorp/golang-lru/v2"
)

// bucketFillTarget is the load factor trigger: one split step runs every
// time a hash's low bits land on this modulus.
const bucketFillTarget = 64

const (
	initBuckets = 512
	initLogMod  = 8
)

// Table is the keyed hash index: a linear-hashing table over a data log
// (key -> PRef payload) and a link log (bucket slot arrays), with their
// bucket pointers persisted in a table file.
type Table struct {
	mu sync.Mutex

	step   int
	logMod uint
	hasher keyHasher

	linkPrefs []pageio.PRef
	buckets   *lru.Cache[int, Bucket]
	dirty     *dirtySet
	evicted   []evictedBucket

	table *tableFile
	data  *cal.Log
	link  *cal.Log
}

type evictedBucket struct {
	num    int
	bucket Bucket
}

// NewTable creates a fresh table over the three already-open logs/files,
// seeding new random SipHash keys, or Load should be called instead to
// recover an existing one.
func NewTable(table pageio.PagedFile, data, link *cal.Log, bucketCacheSize int) (*Table, error) {
	tf, err := newTableFile(table)
	if err != nil {
		return nil, err
	}
	linkPrefs := make([]pageio.PRef, initBuckets)
	for i := range linkPrefs {
		linkPrefs[i] = pageio.Invalid()
	}
	t := &Table{
		step:      0,
		logMod:    initLogMod,
		hasher:    keyHasher{k0: rand.Uint64(), k1: rand.Uint64()},
		linkPrefs: linkPrefs,
		dirty:     newDirtySet(),
		table:     tf,
		data:      data,
		link:      link,
	}
	cache, err := lru.NewWithEvict[int, Bucket](bucketCacheSize, t.onEvict)
	if err != nil {
		return nil, err
	}
	t.buckets = cache
	return t, nil
}

// onEvict is the bucket-cache eviction callback: a bucket with unflushed
// mutations must not simply vanish, so it is queued for resolveBucket to
// flush once the triggering cache operation returns.
func (t *Table) onEvict(num int, bucket Bucket) {
	if t.dirty.get(num) {
		t.evicted = append(t.evicted, evictedBucket{num: num, bucket: bucket})
	}
}

// addBucket replaces bucket n's cached content and drains any resulting
// eviction, flushing it first if it carried unflushed mutations.
func (t *Table) addBucket(n int, b Bucket) error {
	t.buckets.Add(n, b)
	return t.drainEvictions()
}

func (t *Table) drainEvictions() error {
	pending := t.evicted
	t.evicted = nil
	for _, e := range pending {
		if err := t.flushBucket(e.num, &e.bucket); err != nil {
			return err
		}
	}
	return nil
}

// Load reads page 0 of the table file (bucket count, step, sip-hash keys)
// and the bucket-pointer pages that follow, reconstructing in-memory
// state. A fresh table file (no page 0 yet) leaves NewTable's defaults in
// place.
func (t *Table) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	first, ok, err := t.table.ReadPage(pageio.PRef(0))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	nBuckets := uint32(first.ReadPRef(0))
	t.linkPrefs = make([]pageio.PRef, nBuckets)
	cache, err := lru.NewWithEvict[int, Bucket](t.buckets.Len(), t.onEvict)
	if err != nil {
		return err
	}
	t.buckets = cache
	t.dirty = newDirtySet()
	t.step = int(first.ReadPRef(6))
	t.logMod = uint(bitLen(nBuckets)) - 2
	t.hasher.k0 = first.ReadUint64(12)
	t.hasher.k1 = first.ReadUint64(20)

	for i := range t.linkPrefs {
		page, ok, err := t.table.ReadPage(tableOffset(i).ThisPage())
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		t.linkPrefs[i] = page.ReadPRef(tableOffset(i).InPagePos())
	}
	return nil
}

func bitLen(n uint32) int {
	bits := 0
	for n > 0 {
		bits++
		n >>= 1
	}
	return bits
}

func (t *Table) bucketForHash(hash uint32) int {
	bucket := int(hash & (^uint32(0) >> (32 - t.logMod)))
	if bucket < t.step {
		bucket = int(hash & (^uint32(0) >> (32 - (t.logMod + 1))))
	}
	return bucket
}

// resolveBucket ensures bucket n is present in the cache, loading it from
// the link log on a cold miss, evicting the least-recently-used bucket
// (flushing it first if dirty) when the cache is over capacity.
func (t *Table) resolveBucket(n int) error {
	if _, ok := t.buckets.Peek(n); ok {
		return nil
	}
	bucket := Bucket{}
	if n < len(t.linkPrefs) && t.linkPrefs[n].IsValid() {
		payload, err := t.link.GetEnvelope(t.linkPrefs[n])
		if err == nil && payload.Tag == cal.TagLink {
			bucket = Bucket{Slots: payload.Link.Slots}
		}
	}
	t.buckets.Add(n, bucket)
	return t.drainEvictions()
}

func (t *Table) getBucket(n int) (Bucket, error) {
	if err := t.resolveBucket(n); err != nil {
		return Bucket{}, err
	}
	b, ok := t.buckets.Get(n)
	if !ok {
		return Bucket{}, errors.New(errors.ERR_CORRUPTED, "bucket %d should exist", n)
	}
	return b, nil
}

// PutKeyed appends a fresh mapping from key to pref into its bucket.
func (t *Table) PutKeyed(key []byte, pref pageio.PRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	hash := t.hasher.hash(key)
	bucket := t.bucketForHash(hash)
	if err := t.storeToBucket(bucket, hash, pref); err != nil {
		return err
	}

	if hash%bucketFillTarget == 0 && t.step < (1<<31) {
		if t.step < (1 << t.logMod) {
			if err := t.rehashBucket(t.step); err != nil {
				return err
			}
		}
		t.step++
		if t.step > (1 << (t.logMod + 1)) {
			t.logMod++
			t.step = 0
		}
		t.linkPrefs = append(t.linkPrefs, pageio.Invalid())
		t.dirty.set(len(t.linkPrefs) - 1)
	}
	return nil
}

func (t *Table) storeToBucket(bucketNum int, hash uint32, pref pageio.PRef) error {
	b, err := t.getBucket(bucketNum)
	if err != nil {
		return err
	}
	b.Slots = append(b.Slots, cal.Slot{Hash: hash, Ref: pref})
	t.dirty.set(bucketNum)
	return t.addBucket(bucketNum, b)
}

func (t *Table) rehashBucket(bucketNum int) error {
	prometheusKhiBucketSplits.Inc()

	b, err := t.getBucket(bucketNum)
	if err != nil {
		return err
	}
	moves := make(map[int][]cal.Slot)
	stayed := Bucket{}
	rewrite := false
	for _, slot := range b.Slots {
		newBucket := int(slot.Hash & (^uint32(0) >> (32 - (t.logMod + 1))))
		if newBucket != bucketNum {
			moves[newBucket] = append(moves[newBucket], slot)
			rewrite = true
		} else {
			stayed.Slots = append(stayed.Slots, slot)
		}
	}
	if !rewrite {
		return nil
	}
	for bucketNum2, slots := range moves {
		for _, slot := range slots {
			if err := t.storeToBucket(bucketNum2, slot.Hash, slot.Ref); err != nil {
				return err
			}
		}
	}
	t.linkPrefs[bucketNum] = pageio.Invalid()
	t.dirty.set(bucketNum)
	return t.addBucket(bucketNum, stayed)
}

// UpdateKeyed rebinds key's slot to point at a new PRef — used when the
// caller already appended a new-length value via CAL and must repoint the
// index rather than append a duplicate slot.
func (t *Table) UpdateKeyed(key []byte, pref pageio.PRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	hash := t.hasher.hash(key)
	bucketNum := t.bucketForHash(hash)
	b, err := t.getBucket(bucketNum)
	if err != nil {
		return err
	}
	for i := range b.Slots {
		if b.Slots[i].Hash == hash {
			b.Slots[i].Ref = pref
		}
	}
	t.dirty.set(bucketNum)
	return t.addBucket(bucketNum, b)
}

// GetKeyed returns the PRef and stored value last associated with key, or
// ok=false if absent.
func (t *Table) GetKeyed(key []byte) (pref pageio.PRef, value []byte, ok bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hash := t.hasher.hash(key)
	bucketNum := t.bucketForHash(hash)
	b, err := t.getBucket(bucketNum)
	if err != nil {
		return 0, nil, false, err
	}

	dataPos := t.data.Position()

	for _, slot := range b.Slots {
		if slot.Hash != hash {
			continue
		}
		if slot.Ref > dataPos {
			continue
		}
		payload, err := t.data.GetEnvelope(slot.Ref)
		if err != nil {
			return 0, nil, false, err
		}
		if payload.Tag != cal.TagIndexed {
			return 0, nil, false, errors.New(errors.ERR_INCONSISTENT_DATA, "keyed slot does not point at indexed data")
		}
		if string(payload.Indexed.Key) == string(key) {
			return slot.Ref, payload.Indexed.Data.Bytes, true, nil
		}
	}
	return 0, nil, false, nil
}

// Forget removes key's slot from its bucket, handling hash collisions by
// comparing the actual stored key.
func (t *Table) Forget(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	hash := t.hasher.hash(key)
	bucketNum := t.bucketForHash(hash)
	b, err := t.getBucket(bucketNum)
	if err != nil {
		return err
	}

	remove := -1
	for i, slot := range b.Slots {
		if slot.Hash != hash {
			continue
		}
		payload, err := t.data.GetEnvelope(slot.Ref)
		if err != nil {
			return err
		}
		if payload.Tag == cal.TagIndexed && string(payload.Indexed.Key) == string(key) {
			remove = i
			break
		}
	}
	if remove < 0 {
		return nil
	}
	b.Slots = append(b.Slots[:remove], b.Slots[remove+1:]...)
	t.dirty.set(bucketNum)
	return t.addBucket(bucketNum, b)
}

func (t *Table) flushBucket(bucketNum int, override *Bucket) error {
	var bucket Bucket
	if override != nil {
		bucket = *override
	} else {
		b, ok := t.buckets.Peek(bucketNum)
		if !ok {
			t.dirty.unset(bucketNum)
			return nil
		}
		bucket = b
	}

	if bucketNum >= len(t.linkPrefs) {
		return errors.New(errors.ERR_CORRUPTED, "bucket link %d not found", bucketNum)
	}
	linkPref := t.linkPrefs[bucketNum]
	bucketPref := tableOffset(bucketNum)

	page, ok, err := t.table.ReadPage(bucketPref.ThisPage())
	if err != nil {
		return err
	}
	if !ok {
		page = newOffsetsPage(bucketPref.ThisPage())
	}

	var newLinkPref pageio.PRef
	if len(bucket.Slots) > 0 {
		payload := cal.NewLink(bucket.Slots)
		if !linkPref.IsValid() {
			newLinkPref, err = t.link.Append(payload)
		} else {
			err = t.link.Update(linkPref, payload)
			newLinkPref = linkPref
		}
		if err != nil {
			return err
		}
	} else {
		newLinkPref = pageio.Invalid()
	}

	t.linkPrefs[bucketNum] = newLinkPref
	page.WritePRef(bucketPref.InPagePos(), newLinkPref)
	if _, err := t.table.UpdatePage(page); err != nil {
		return err
	}
	t.dirty.unset(bucketNum)
	return nil
}

// Flush writes page 0's header and every dirty bucket's link-log form and
// table-file pointer.
func (t *Table) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked()
}

func (t *Table) flushLocked() error {
	page, ok, err := t.table.ReadPage(pageio.PRef(0))
	if err != nil {
		return err
	}
	if !ok {
		page = newOffsetsPage(pageio.PRef(0))
	}
	page.WritePRef(0, pageio.PRef(len(t.linkPrefs)))
	page.WritePRef(6, pageio.PRef(t.step))
	page.WriteUint64(12, t.hasher.k0)
	page.WriteUint64(20, t.hasher.k1)
	if _, err := t.table.UpdatePage(page); err != nil {
		return err
	}

	if t.dirty.isDirty() {
		var toFlush []int
		t.dirty.each(func(n int) { toFlush = append(toFlush, n) })
		for _, n := range toFlush {
			if err := t.flushBucket(n, nil); err != nil {
				return err
			}
		}
	}
	return t.table.Flush()
}

// Truncate cuts the data log back to pref and drops every slot pointing
// past it from every resolved bucket (administrative rollback only).
func (t *Table) Truncate(pref pageio.PRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.data.Truncate(uint64(pref)); err != nil {
		return err
	}

	for n := 0; n < len(t.linkPrefs); n++ {
		if err := t.resolveBucket(n); err != nil {
			return err
		}
		b, ok := t.buckets.Peek(n)
		if !ok || len(b.Slots) == 0 {
			continue
		}
		kept := b.Slots[:0:0]
		for _, slot := range b.Slots {
			if slot.Ref < pref {
				kept = append(kept, slot)
			}
		}
		if len(kept) != len(b.Slots) {
			b.Slots = kept
			t.dirty.set(n)
			if err := t.addBucket(n, b); err != nil {
				return err
			}
		}
	}
	return t.flushLocked()
}

// LinkPosition returns the link log's logical end-of-log cursor — the exact
// length a caller must commit and truncate to, as opposed to the link
// file's raw (page-rounded) byte length.
func (t *Table) LinkPosition() pageio.PRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link.Position()
}

func (t *Table) Shutdown() error {
	if err := t.data.Shutdown(); err != nil {
		return err
	}
	if err := t.link.Shutdown(); err != nil {
		return err
	}
	return t.table.Shutdown()
}
