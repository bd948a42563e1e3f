package pageio

import (
	"io"
	"os"
	"sync"

	"github.com/bsv-chain/coreledger/pkg/errors"
)

// singleFile is one OS file holding a contiguous range of pages for a
// rolled segment: [base, base+segmentSize) bytes.
type singleFile struct {
	mu          sync.Mutex
	path        string
	file        *os.File
	base        uint64
	len         uint64
	segmentSize uint64
}

func newSingleFile(path string, base, segmentSize uint64) (*singleFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.DatabaseError(err)
	}
	return &singleFile{
		path:        path,
		file:        f,
		base:        base,
		len:         uint64(info.Size()),
		segmentSize: segmentSize,
	}, nil
}

func (s *singleFile) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.file.Close()
	return os.Remove(s.path)
}

func (s *singleFile) ReadPage(pref PRef) (Page, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := uint64(pref)
	if pos < s.base || pos >= s.base+s.segmentSize {
		return Page{}, false, errors.New(errors.ERR_CORRUPTED, "read from wrong segment file %s", s.path)
	}
	off := pos - s.base
	if off >= s.len {
		return Page{}, false, nil
	}

	var buf [Size]byte
	if _, err := s.file.ReadAt(buf[:], int64(off)); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Page{}, false, nil
		}
		return Page{}, false, errors.DatabaseError(err)
	}
	return FromBuf(buf), true, nil
}

func (s *singleFile) Len() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.len, nil
}

func (s *singleFile) Truncate(newLen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newLen >= s.len {
		return nil
	}
	if err := s.file.Truncate(int64(newLen)); err != nil {
		return errors.DatabaseError(err)
	}
	s.len = newLen
	return nil
}

func (s *singleFile) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Sync(); err != nil {
		return errors.DatabaseError(err)
	}
	return nil
}

func (s *singleFile) UpdatePage(page Page) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := uint64(page.Pref())
	if pos < s.base || pos >= s.base+s.segmentSize {
		return 0, errors.New(errors.ERR_CORRUPTED, "write to wrong segment file %s", s.path)
	}
	off := pos - s.base
	buf := page.Bytes()
	if _, err := s.file.WriteAt(buf[:], int64(off)); err != nil {
		return 0, errors.DatabaseError(err)
	}
	if end := off + Size; end > s.len {
		s.len = end
	}
	return s.len, nil
}

func (s *singleFile) Flush() error {
	return nil
}
