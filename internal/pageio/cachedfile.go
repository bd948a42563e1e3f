package pageio

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedFile wraps a PagedFile with an LRU of decoded pages keyed by PRef,
// grounded on hammersbald's CachedFile/Cache pair.
type CachedFile struct {
	mu    sync.Mutex
	file  PagedFile
	cache *lru.Cache[PRef, Page]
}

// NewCachedFile wraps file with an LRU sized for cacheSizeMB megabytes of
// pages.
func NewCachedFile(file PagedFile, cacheSizeMB int) (*CachedFile, error) {
	pages := cacheSizeMB * 1_000_000 / Size
	if pages < 1 {
		pages = 1
	}
	cache, err := lru.New[PRef, Page](pages)
	if err != nil {
		return nil, err
	}
	return &CachedFile{file: file, cache: cache}, nil
}

func (c *CachedFile) ReadPage(pref PRef) (Page, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if page, ok := c.cache.Get(pref); ok {
		return page, true, nil
	}
	page, ok, err := c.file.ReadPage(pref)
	if err != nil || !ok {
		return Page{}, ok, err
	}
	c.cache.Add(pref, page)
	return page, true, nil
}

func (c *CachedFile) Len() (uint64, error) {
	return c.file.Len()
}

func (c *CachedFile) Truncate(newLen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pref := range c.cache.Keys() {
		if uint64(pref) >= newLen {
			c.cache.Remove(pref)
		}
	}
	return c.file.Truncate(newLen)
}

func (c *CachedFile) Sync() error {
	return c.file.Sync()
}

func (c *CachedFile) Shutdown() error {
	return c.file.Shutdown()
}

func (c *CachedFile) UpdatePage(page Page) (uint64, error) {
	c.mu.Lock()
	c.cache.Add(page.Pref(), page)
	c.mu.Unlock()
	return c.file.UpdatePage(page)
}

func (c *CachedFile) Flush() error {
	c.mu.Lock()
	c.cache.Purge()
	c.mu.Unlock()
	return c.file.Flush()
}
