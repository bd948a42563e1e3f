package pageio

// PagedFile is the abstract capability any concrete backend exposes: a
// fixed-page, random-access byte store. Cached and async wrappers compose
// over any implementation.
type PagedFile interface {
	// ReadPage returns the page containing pref, or ok=false past the end.
	ReadPage(pref PRef) (page Page, ok bool, err error)
	// Len returns the current length of the storage, in bytes.
	Len() (uint64, error)
	// Truncate cuts the storage down to newLen bytes.
	Truncate(newLen uint64) error
	// Sync tells the OS to flush buffers to stable storage.
	Sync() error
	// Shutdown stops any background writer and releases file handles.
	Shutdown() error
	// UpdatePage writes page at its encoded position, extending the file
	// if necessary, and returns the new length.
	UpdatePage(page Page) (uint64, error)
	// Flush drains any buffered writes to the lower layer.
	Flush() error
}
