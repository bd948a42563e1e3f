package khi

import (
	"github.com/bsv-chain/coreledger/internal/pageio"
	"github.com/bsv-chain/coreledger/pkg/errors"
)

// tableFile wraps the raw table PagedFile so that writing a page past the
// current end always back-fills every intervening page with an
// invalid-bucket-pointer page first — a table-file page is never read back
// half-initialized. Grounded on hammersbald's table_file.rs.
type tableFile struct {
	file             pageio.PagedFile
	initializedUntil pageio.PRef
}

func newTableFile(file pageio.PagedFile) (*tableFile, error) {
	length, err := file.Len()
	if err != nil {
		return nil, err
	}
	return &tableFile{file: file, initializedUntil: pageio.PRef(length)}, nil
}

func (t *tableFile) ReadPage(pref pageio.PRef) (pageio.Page, bool, error) {
	page, ok, err := t.file.ReadPage(pref)
	if err != nil || !ok {
		return page, ok, err
	}
	if page.Pref() != pref {
		return pageio.Page{}, false, errors.New(errors.ERR_CORRUPTED, "table page %d does not carry its own pref", int(pref))
	}
	return page, true, nil
}

func (t *tableFile) Len() (uint64, error) { return t.file.Len() }

func (t *tableFile) Truncate(newLen uint64) error {
	t.initializedUntil = pageio.PRef(newLen)
	return t.file.Truncate(newLen)
}

func (t *tableFile) Sync() error     { return t.file.Sync() }
func (t *tableFile) Shutdown() error { return t.file.Shutdown() }

func (t *tableFile) UpdatePage(page pageio.Page) (uint64, error) {
	length, err := t.file.Len()
	if err != nil {
		return 0, err
	}
	if uint64(page.Pref()) >= length {
		for page.Pref() > t.initializedUntil {
			if _, err := t.file.UpdatePage(newOffsetsPage(t.initializedUntil)); err != nil {
				return 0, err
			}
			t.initializedUntil = t.initializedUntil.NextPage()
		}
	}
	if next := page.Pref().NextPage(); next > t.initializedUntil {
		t.initializedUntil = next
	}
	return t.file.UpdatePage(page)
}

func (t *tableFile) Flush() error { return t.file.Flush() }
