package pageio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bsv-chain/coreledger/pkg/errors"
)

// RolledFile is a PagedFile backed by a directory of numbered segments
// named "basename.N.extension", each capped at segmentSize bytes, so no
// single OS file grows unbounded.
type RolledFile struct {
	mu          sync.Mutex
	dir         string
	basename    string
	extension   string
	segmentSize uint64
	files       map[uint16]*singleFile
	len         uint64
}

// NewRolledFile opens (creating if absent) the segment directory dir for
// basename.extension, scanning existing segments to recover the current
// length.
func NewRolledFile(dir, basename, extension string, segmentPages int) (*RolledFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.DatabaseError(err)
	}

	rf := &RolledFile{
		dir:         dir,
		basename:    basename,
		extension:   extension,
		segmentSize: uint64(segmentPages) * Size,
		files:       make(map[uint16]*singleFile),
	}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (r *RolledFile) open() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return errors.DatabaseError(err)
	}

	prefix := r.basename + "."
	suffix := "." + r.extension
	var highest uint16
	var haveAny bool

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		mid := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		idx, err := strconv.ParseUint(mid, 10, 16)
		if err != nil {
			continue
		}
		index := uint16(idx)
		sf, err := newSingleFile(filepath.Join(r.dir, name), uint64(index)*r.segmentSize, r.segmentSize)
		if err != nil {
			return err
		}
		r.files[index] = sf
		if l, _ := sf.Len(); l > 0 && (!haveAny || index > highest) {
			highest = index
			haveAny = true
		}
	}

	if sf, ok := r.files[highest]; ok && haveAny {
		l, _ := sf.Len()
		r.len = uint64(highest)*r.segmentSize + l
	}
	return nil
}

func (r *RolledFile) segmentPath(index uint16) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s.%d.%s", r.basename, index, r.extension))
}

func (r *RolledFile) segmentFor(index uint16) (*singleFile, error) {
	if sf, ok := r.files[index]; ok {
		return sf, nil
	}
	sf, err := newSingleFile(r.segmentPath(index), uint64(index)*r.segmentSize, r.segmentSize)
	if err != nil {
		return nil, err
	}
	r.files[index] = sf
	return sf, nil
}

func (r *RolledFile) ReadPage(pref PRef) (Page, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if uint64(pref) > r.len {
		return Page{}, false, nil
	}
	index := uint16(uint64(pref) / r.segmentSize)
	sf, ok := r.files[index]
	if !ok {
		return Page{}, false, nil
	}
	return sf.ReadPage(pref)
}

func (r *RolledFile) Len() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.len, nil
}

func (r *RolledFile) Truncate(newLen uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := uint16(newLen / r.segmentSize)
	for i, sf := range r.files {
		if i > index {
			if err := sf.Delete(); err != nil {
				return errors.DatabaseError(err)
			}
			delete(r.files, i)
		}
	}
	if sf, ok := r.files[index]; ok {
		if err := sf.Truncate(newLen % r.segmentSize); err != nil {
			return err
		}
	}
	r.len = newLen
	return nil
}

func (r *RolledFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sf := range r.files {
		if err := sf.Sync(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RolledFile) Shutdown() error {
	return nil
}

func (r *RolledFile) UpdatePage(page Page) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	offset := uint64(page.Pref())
	index := uint16(offset / r.segmentSize)
	sf, err := r.segmentFor(index)
	if err != nil {
		return 0, err
	}
	segLen, err := sf.UpdatePage(page)
	if err != nil {
		return 0, err
	}
	if total := uint64(index)*r.segmentSize + segLen; total > r.len {
		r.len = total
	}
	return r.len, nil
}

func (r *RolledFile) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sf := range r.files {
		if err := sf.Flush(); err != nil {
			return err
		}
	}
	return nil
}
