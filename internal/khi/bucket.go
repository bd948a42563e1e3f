package khi

import (
	"github.com/bsv-chain/coreledger/internal/cal"
	"github.com/bsv-chain/coreledger/internal/pageio"
)

// FirstPageHead is the width, in bytes, of page 0's header: bucket count
// (6), step (6), sip-hash key 0 (8), sip-hash key 1 (8).
const FirstPageHead = 28

// bucketPointerSize is the width of one bucket's PRef pointer in the table
// file.
const bucketPointerSize = 6

// bucketsPerPage is how many bucket pointers pack into a non-first page.
const bucketsPerPage = pageio.PayloadSize / bucketPointerSize

// bucketsFirstPage is how many bucket pointers fit on page 0 after its
// header.
const bucketsFirstPage = (pageio.PayloadSize - FirstPageHead) / bucketPointerSize

// tableOffset returns the PRef within the table file at which bucket
// number's pointer is stored.
func tableOffset(bucket int) pageio.PRef {
	if bucket < bucketsFirstPage {
		return pageio.PRef(bucket*bucketPointerSize + FirstPageHead)
	}
	page := (bucket-bucketsFirstPage)/bucketsPerPage + 1
	offsetInPage := (bucket % bucketsPerPage) * bucketPointerSize
	return pageio.PRef(page*pageio.Size + offsetInPage)
}

// Bucket is the in-memory form of one hash-table slot group: up to 64
// (hash32, PRef48) pairs.
type Bucket struct {
	Slots []cal.Slot
}

// newOffsetsPage returns a fresh table-file page with every bucket pointer
// it holds initialized to the invalid sentinel.
func newOffsetsPage(pos pageio.PRef) pageio.Page {
	page := pageio.NewPageAt(pos)
	if pos == 0 {
		for i := 0; i < bucketsFirstPage; i++ {
			page.WritePRef(FirstPageHead+i*bucketPointerSize, pageio.Invalid())
		}
	} else {
		for i := 0; i < bucketsPerPage; i++ {
			page.WritePRef(i*bucketPointerSize, pageio.Invalid())
		}
	}
	return page
}
