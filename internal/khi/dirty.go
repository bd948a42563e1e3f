package khi

import "github.com/dolthub/swiss"

// dirtySet tracks which bucket numbers have unflushed in-memory mutations.
// Backed by dolthub/swiss rather than a growable bitset: bucket numbers are
// sparse once the table has split many times and a hash set scales better
// than a vector of u64 words for that access pattern.
type dirtySet struct {
	m *swiss.Map[int, struct{}]
}

func newDirtySet() *dirtySet {
	return &dirtySet{m: swiss.NewMap[int, struct{}](64)}
}

func (d *dirtySet) set(n int)   { d.m.Put(n, struct{}{}) }
func (d *dirtySet) unset(n int) { d.m.Delete(n) }
func (d *dirtySet) get(n int) bool {
	_, ok := d.m.Get(n)
	return ok
}
func (d *dirtySet) isDirty() bool { return d.m.Count() > 0 }

// each calls fn for every currently-dirty bucket number.
func (d *dirtySet) each(fn func(n int)) {
	d.m.Iter(func(n int, _ struct{}) bool {
		fn(n)
		return false
	})
}
