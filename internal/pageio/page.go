package pageio

import "encoding/binary"

// Page is a fixed 4096-byte unit of the persistent files. Bytes
// [0, PayloadSize) are payload; the trailing prefSize bytes encode the
// page's own PRef, big-endian.
type Page struct {
	content [Size]byte
}

// NewPage returns a zeroed page not yet associated with a position.
func NewPage() Page {
	return Page{}
}

// NewPageAt returns a zeroed page whose trailing bytes encode pref — the
// form used for data/table pages, which are addressable by position.
func NewPageAt(pref PRef) Page {
	p := Page{}
	p.WritePRef(PayloadSize, pref)
	return p
}

// FromBuf wraps a raw 4096-byte buffer read from disk as a Page.
func FromBuf(buf [Size]byte) Page {
	return Page{content: buf}
}

// Pref returns the PRef encoded in this page's trailing bytes.
func (p *Page) Pref() PRef {
	return p.ReadPRef(PayloadSize)
}

// Write copies slice into the page starting at pos.
func (p *Page) Write(pos int, slice []byte) {
	copy(p.content[pos:pos+len(slice)], slice)
}

// Read copies len(buf) bytes from the page starting at pos into buf.
func (p *Page) Read(pos int, buf []byte) {
	copy(buf, p.content[pos:pos+len(buf)])
}

// WritePRef encodes pref as 6 big-endian bytes at pos.
func (p *Page) WritePRef(pos int, pref PRef) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(pref))
	copy(p.content[pos:pos+prefSize], buf[2:8])
}

// ReadPRef decodes a 6-byte big-endian PRef at pos.
func (p *Page) ReadPRef(pos int) PRef {
	var buf [8]byte
	copy(buf[2:8], p.content[pos:pos+prefSize])
	return PRef(binary.BigEndian.Uint64(buf[:]))
}

// WriteUint64 encodes a big-endian u64 at pos.
func (p *Page) WriteUint64(pos int, n uint64) {
	binary.BigEndian.PutUint64(p.content[pos:pos+8], n)
}

// ReadUint64 decodes a big-endian u64 at pos.
func (p *Page) ReadUint64(pos int) uint64 {
	return binary.BigEndian.Uint64(p.content[pos : pos+8])
}

// Bytes returns the raw backing buffer.
func (p *Page) Bytes() [Size]byte {
	return p.content
}

// Clone returns a deep copy of the page.
func (p Page) Clone() Page {
	return Page{content: p.content}
}
