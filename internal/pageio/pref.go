// Package pageio implements the paged file layer: a fixed-page,
// random-access byte store composed from a rolled (segmented) file, an LRU
// page cache, and an asynchronous durable writer, grounded on
// hammersbald's pagedfile/page/pref modules.
package pageio

import "fmt"

// Size is the fixed page size in bytes.
const Size = 4096

// prefSize is the width, in bytes, of a PRef encoded at a page's tail.
const prefSize = 6

// PayloadSize is the usable bytes per page; the trailing prefSize bytes
// hold the page's own PRef.
const PayloadSize = Size - prefSize

// invalid is the sentinel PRef value, 2^48-1, meaning "absent".
const invalid = 0xffffffffffff

// PRef is a 48-bit persistent reference: a byte offset into a content-
// addressed log. It is stable for the lifetime of the database.
type PRef uint64

// Invalid returns the sentinel PRef denoting "absent".
func Invalid() PRef { return PRef(invalid) }

// IsValid reports whether p is not the sentinel.
func (p PRef) IsValid() bool { return p < invalid }

// ThisPage returns the PRef of the page containing p.
func (p PRef) ThisPage() PRef { return PRef((uint64(p) / Size) * Size) }

// PageNumber returns the zero-based page index containing p.
func (p PRef) PageNumber() uint64 { return uint64(p) / Size }

// InPagePos returns p's byte offset within its page.
func (p PRef) InPagePos() int { return int(uint64(p) % Size) }

// NextPage returns the PRef of the page immediately following p's page.
func (p PRef) NextPage() PRef { return p + Size }

// PrevPage returns the PRef of the page immediately preceding p's page.
func (p PRef) PrevPage() PRef { return p - Size }

// AddPages returns p advanced by n whole pages.
func (p PRef) AddPages(n int) PRef { return p + PRef(n*Size) }

// PagesUntil returns the number of whole pages between p and other.
func (p PRef) PagesUntil(other PRef) uint64 {
	return (uint64(other) - uint64(p)) / Size
}

func (p PRef) String() string { return fmt.Sprintf("%d", uint64(p)) }
