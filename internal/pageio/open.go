package pageio

import (
	"github.com/bsv-chain/coreledger/pkg/settings"
	"github.com/bsv-chain/coreledger/pkg/ulogger"
)

// Open composes the standard PFL wrapper stack — rolled file, LRU page
// cache, asynchronous writer — over the directory dir for the logical file
// basename.extension.
func Open(dir, basename, extension string, cfg *settings.Settings, log *ulogger.Wrapper) (PagedFile, error) {
	rolled, err := NewRolledFile(dir, basename, extension, cfg.SegmentPages)
	if err != nil {
		return nil, err
	}
	cached, err := NewCachedFile(rolled, cfg.PageCacheMB)
	if err != nil {
		return nil, err
	}
	return NewAsyncFile(cached, log.With(basename+"."+extension)), nil
}
