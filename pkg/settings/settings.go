// Package settings wraps gocore's global Config() lookups into a typed,
// constructible struct, the way the teacher's settings.Settings does for its
// services, so tests can build a literal instead of touching global state.
package settings

import (
	"github.com/ordishs/gocore"
)

// Settings holds every tunable the storage engine reads at open time.
type Settings struct {
	// DataDir is the directory holding the .bc/.tb/.bl/.lg files.
	DataDir string

	// PageCacheMB sizes the cached-file LRU wrapping the rolled file.
	PageCacheMB int

	// SegmentPages bounds how many 4 KiB pages live in one rolled-file
	// segment before a new numbered segment is started.
	SegmentPages int

	// BucketCacheSize bounds the KHI in-memory bucket LRU.
	BucketCacheSize int

	// MaxForkLen bounds how far block_origin walks back looking for a
	// common ancestor before giving up with AncientFork.
	MaxForkLen int

	// InitialBuckets and InitialLogMod seed a fresh hash table.
	InitialBuckets int
	InitialLogMod  int
}

const (
	defaultPageCacheMB     = 64
	defaultSegmentPages    = 256 * 1024 // 1 GiB of 4 KiB pages
	defaultBucketCacheSize = 100_000
	defaultMaxForkLen      = 2048
	defaultInitialBuckets  = 512
	defaultInitialLogMod   = 8
)

// New builds Settings from gocore.Config(), falling back to the defaults
// above exactly as util/sql.go reads "utxo_postgresMaxIdleConns" etc.
func New() *Settings {
	dataDir, _ := gocore.Config().Get("dataFolder", "data")
	pageCacheMB, _ := gocore.Config().GetInt("ledger_pageCacheMB", defaultPageCacheMB)
	segmentPages, _ := gocore.Config().GetInt("ledger_segmentPages", defaultSegmentPages)
	bucketCacheSize, _ := gocore.Config().GetInt("ledger_bucketCacheSize", defaultBucketCacheSize)
	maxForkLen, _ := gocore.Config().GetInt("ledger_maxForkLen", defaultMaxForkLen)

	return &Settings{
		DataDir:         dataDir,
		PageCacheMB:     pageCacheMB,
		SegmentPages:    segmentPages,
		BucketCacheSize: bucketCacheSize,
		MaxForkLen:      maxForkLen,
		InitialBuckets:  defaultInitialBuckets,
		InitialLogMod:   defaultInitialLogMod,
	}
}

// Default returns Settings populated purely with defaults, bypassing
// gocore.Config() global state — the constructor tests and transient
// databases use.
func Default() *Settings {
	return &Settings{
		DataDir:         "data",
		PageCacheMB:      defaultPageCacheMB,
		SegmentPages:    defaultSegmentPages,
		BucketCacheSize: defaultBucketCacheSize,
		MaxForkLen:      defaultMaxForkLen,
		InitialBuckets:  defaultInitialBuckets,
		InitialLogMod:   defaultInitialLogMod,
	}
}
