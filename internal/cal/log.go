package cal

import (
	"github.com/bsv-chain/coreledger/internal/pageio"
	"github.com/bsv-chain/coreledger/pkg/errors"
)

// Log is the content-addressed log: an append-only byte stream of envelopes
// over a pageio.PagedFile, grounded on hammersbald's
// PagedFileAppender/DataFile pair. It tracks a single position cursor equal
// to the logical end of the log.
type Log struct {
	file    pageio.PagedFile
	pos     pageio.PRef
	curPage *pageio.Page
}

// Open wraps file as a Log, positioning the append cursor at its current
// logical end (0 for a fresh file).
func Open(file pageio.PagedFile) (*Log, error) {
	length, err := file.Len()
	if err != nil {
		return nil, err
	}
	// length is expected to be the exact logical end of the log, not merely
	// rounded up to the page it falls within — callers that recover from a
	// commit log must Truncate(file) to the committed length first, since a
	// Flush of a partial trailing page writes that whole page to disk and
	// would otherwise make file.Len() overshoot the true cursor.
	return &Log{file: file, pos: pageio.PRef(length)}, nil
}

// Position returns the current end-of-log cursor.
func (l *Log) Position() pageio.PRef { return l.pos }

// Seek repositions the append cursor to pos without touching the
// underlying file — used during recovery once the commit log has
// established the exact durable prefix.
func (l *Log) Seek(pos pageio.PRef) {
	l.pos = pos
	l.curPage = nil
}

func (l *Log) readPage(pref pageio.PRef) (pageio.Page, bool, error) {
	if l.curPage != nil && pref.ThisPage() == l.pos.ThisPage() {
		return *l.curPage, true, nil
	}
	return l.file.ReadPage(pref)
}

// rawAppend writes buf starting at the current cursor, handling page-tail
// skips, and advances the cursor past it.
func (l *Log) rawAppend(buf []byte) error {
	wrote := 0
	for wrote < len(buf) {
		if l.curPage == nil {
			existing, ok, err := l.file.ReadPage(l.pos.ThisPage())
			if err != nil {
				return err
			}
			if ok {
				l.curPage = &existing
			} else {
				fresh := pageio.NewPageAt(l.pos.ThisPage())
				l.curPage = &fresh
			}
		}

		space := pageio.PayloadSize - l.pos.InPagePos()
		if remaining := len(buf) - wrote; remaining < space {
			space = remaining
		}
		l.curPage.Write(l.pos.InPagePos(), buf[wrote:wrote+space])
		wrote += space

		if l.pos.InPagePos()+space == pageio.PayloadSize {
			if _, err := l.file.UpdatePage(*l.curPage); err != nil {
				return err
			}
		}
		l.pos += pageio.PRef(space)

		if l.pos.InPagePos() == pageio.PayloadSize {
			l.curPage = nil
			l.pos += 6
		}
	}
	return nil
}

// rawUpdate overwrites buf at pos, which must be the position of a
// previously-written record of identical byte length.
func (l *Log) rawUpdate(pos pageio.PRef, buf []byte) error {
	wrote := 0
	for wrote < len(buf) {
		page, ok, err := l.readPage(pos.ThisPage())
		if err != nil {
			return err
		}
		if !ok {
			return errors.New(errors.ERR_CORRUPTED, "update past end of log")
		}

		space := pageio.PayloadSize - pos.InPagePos()
		if remaining := len(buf) - wrote; remaining < space {
			space = remaining
		}
		page.Write(pos.InPagePos(), buf[wrote:wrote+space])
		wrote += space
		pos += pageio.PRef(space)

		if _, err := l.file.UpdatePage(page); err != nil {
			return err
		}
		if l.curPage != nil && page.Pref() == l.curPage.Pref() {
			l.curPage = &page
		}

		if pos.InPagePos() == pageio.PayloadSize {
			pos += 6
		}
	}
	return nil
}

// rawRead reads len(buf) bytes starting at pos, returning the position
// immediately following them.
func (l *Log) rawRead(pos pageio.PRef, buf []byte) (pageio.PRef, error) {
	read := 0
	for read < len(buf) {
		page, ok, err := l.readPage(pos.ThisPage())
		if err != nil {
			return pos, err
		}
		if !ok {
			return pos, errors.New(errors.ERR_CORRUPTED, "read past end of log")
		}

		have := pageio.PayloadSize - pos.InPagePos()
		if remaining := len(buf) - read; remaining < have {
			have = remaining
		}
		page.Read(pos.InPagePos(), buf[read:read+have])
		read += have
		pos += pageio.PRef(have)

		if pos.InPagePos() == pageio.PayloadSize {
			pos += 6
		}
	}
	return pos, nil
}

// Append serializes payload to envelope bytes, writes it at the current
// cursor, and returns the PRef it was written at.
func (l *Log) Append(payload Payload) (pageio.PRef, error) {
	if len(payload.Indexed.Key) > MaxKeyLen {
		return 0, errors.ErrKeyTooLong
	}
	if len(payload.DataBytes()) > MaxDataLen {
		return 0, errors.ErrValueTooLong
	}
	data := payload.Serialize()
	me := l.pos
	if err := l.rawAppend(data); err != nil {
		return 0, err
	}
	return me, nil
}

// Update overwrites the envelope at pref with payload's serialization,
// which must be exactly as long as the original.
func (l *Log) Update(pref pageio.PRef, payload Payload) error {
	data := payload.Serialize()
	return l.rawUpdate(pref, data)
}

// SetData reads the envelope at pref, replaces its data bytes with
// newData, and rejects the write with ErrValueTooLong if the resulting
// envelope is not byte-identical in length to the original.
func (l *Log) SetData(pref pageio.PRef, newData []byte) error {
	envelope, err := l.GetEnvelope(pref)
	if err != nil {
		return err
	}
	original := envelope.Serialize()

	updated := envelope
	switch updated.Tag {
	case TagIndexed:
		updated.Indexed.Data.Bytes = newData
	case TagReferred:
		updated.Referred.Bytes = newData
	default:
		return errors.New(errors.ERR_INVALID_ARGUMENT, "link envelopes cannot be set_data'd")
	}
	replacement := updated.Serialize()

	if len(replacement) != len(original) {
		return errors.ErrValueTooLong
	}
	return l.rawUpdate(pref, replacement)
}

// GetEnvelope reads the 3-byte length then the body at pref and decodes
// the payload.
func (l *Log) GetEnvelope(pref pageio.PRef) (Payload, error) {
	var lenBuf [3]byte
	bodyPos, err := l.rawRead(pref, lenBuf[:])
	if err != nil {
		return Payload{}, err
	}
	length := getUint24(lenBuf[:])
	if length == 0 {
		return Payload{}, errors.New(errors.ERR_CORRUPTED, "zero-length envelope at %d", int(pref))
	}
	body := make([]byte, length)
	if _, err := l.rawRead(bodyPos, body); err != nil {
		return Payload{}, err
	}
	return DeserializePayload(body)
}

// Envelopes iterates every (PRef, Payload) pair from offset 0 to the
// current end of log.
func (l *Log) Envelopes(yield func(pageio.PRef, Payload) bool) error {
	pos := pageio.PRef(0)
	for pos.IsValid() && pos < l.pos {
		start := pos
		var lenBuf [3]byte
		bodyPos, err := l.rawRead(pos, lenBuf[:])
		if err != nil {
			return err
		}
		length := getUint24(lenBuf[:])
		if length == 0 {
			break
		}
		body := make([]byte, length)
		next, err := l.rawRead(bodyPos, body)
		if err != nil {
			return err
		}
		payload, err := DeserializePayload(body)
		if err != nil {
			return err
		}
		pos = next
		if !yield(start, payload) {
			return nil
		}
	}
	return nil
}

func (l *Log) Len() (uint64, error) { return l.file.Len() }

func (l *Log) Truncate(newLen uint64) error {
	l.pos = pageio.PRef(newLen)
	l.curPage = nil
	return l.file.Truncate(newLen)
}

func (l *Log) Flush() error {
	if l.curPage != nil && l.pos.InPagePos() > 0 {
		if _, err := l.file.UpdatePage(*l.curPage); err != nil {
			return err
		}
	}
	l.curPage = nil
	return l.file.Flush()
}

func (l *Log) Sync() error { return l.file.Sync() }

func (l *Log) Shutdown() error { return l.file.Shutdown() }
