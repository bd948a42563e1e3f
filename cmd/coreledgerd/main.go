// Command coreledgerd is the storage engine's command-line front door:
// open a database, insert a block, canonize/decanonize the tip, print
// summary stats, or walk the canonical chain checking its integrity.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/ordishs/go-utils"
	"github.com/ordishs/gocore"

	"github.com/bsv-chain/coreledger/internal/chainmgr"
	"github.com/bsv-chain/coreledger/internal/ledgerstore"
	"github.com/bsv-chain/coreledger/internal/primitives"
	"github.com/bsv-chain/coreledger/pkg/errors"
	"github.com/bsv-chain/coreledger/pkg/retry"
	"github.com/bsv-chain/coreledger/pkg/settings"
	"github.com/bsv-chain/coreledger/pkg/ulogger"
)

const progname = "coreledgerd"

var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
	gocore.Log(progname)
}

func main() {
	switch path.Base(os.Args[0]) {
	case "coreledger-stats.run":
		run(statsCmd)
		return
	case "coreledger-verify.run":
		run(verifyCmd)
		return
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "stats":
		run(statsCmd)
	case "verify":
		run(verifyCmd)
	case "best":
		run(bestCmd)
	case "origin":
		if len(os.Args) < 3 {
			fmt.Println("usage: coreledgerd origin <hex-encoded-80-byte-header>")
			os.Exit(1)
		}
		runOrigin(os.Args[2])
	default:
		printUsage()
		os.Exit(1)
	}
}

func run(cmd func(logger *ulogger.Wrapper, cfg *settings.Settings) error) {
	logLevel, _ := gocore.Config().Get("logLevel", "info")
	logger := ulogger.New(progname, logLevel)
	cfg := settings.New()

	if err := cmd(logger, cfg); err != nil {
		logger.Fatalf("%s: %v", progname, err)
	}
}

// openStoreWithRetry opens the data directory, retrying on failure. A fresh
// process can race a still-shutting-down prior instance for the same data
// directory's lock file, so transient open failures are worth a few retries
// rather than an immediate fatal exit.
func openStoreWithRetry(cfg *settings.Settings, logger *ulogger.Wrapper) (*ledgerstore.Store, error) {
	var store *ledgerstore.Store
	err := retry.Do(context.Background(), func() error {
		s, err := ledgerstore.Open(cfg, logger)
		if err != nil {
			return err
		}
		store = s
		return nil
	}, retry.WithRetryCount(5), retry.WithBackoffDurationType(200*time.Millisecond), retry.WithExponentialBackoff())
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.DataDir, err)
	}
	return store, nil
}

func statsCmd(logger *ulogger.Wrapper, cfg *settings.Settings) error {
	store, err := openStoreWithRetry(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Shutdown() }()

	hash, height, err := store.BestBlock()
	if errors.Is(err, errors.ErrNotFound) {
		fmt.Println("best: <none>")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("dataDir:  %s\n", cfg.DataDir)
	fmt.Printf("best:     %s\n", utils.ReverseAndHexEncodeSlice(hash[:]))
	fmt.Printf("height:   %d\n", height)
	return nil
}

func bestCmd(logger *ulogger.Wrapper, cfg *settings.Settings) error {
	return statsCmd(logger, cfg)
}

func runOrigin(headerHex string) {
	run(func(logger *ulogger.Wrapper, cfg *settings.Settings) error {
		raw, err := hex.DecodeString(headerHex)
		if err != nil {
			return fmt.Errorf("origin: decoding header: %w", err)
		}
		header, err := primitives.DeserializeHeader(raw)
		if err != nil {
			return fmt.Errorf("origin: %w", err)
		}

		store, err := openStoreWithRetry(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = store.Shutdown() }()

		mgr := chainmgr.New(store, cfg, logger)
		origin, err := mgr.BlockOrigin(header)
		if err != nil {
			return err
		}

		fmt.Printf("kind: %s\n", origin.Kind)
		switch origin.Kind {
		case chainmgr.CanonChain:
			fmt.Printf("number: %d\n", origin.BlockNumber)
		case chainmgr.SideChain, chainmgr.SideChainBecomesCanon:
			fmt.Printf("ancestor: %d\n", origin.SideChain.Ancestor)
			fmt.Printf("number: %d\n", origin.SideChain.BlockNumber)
			fmt.Printf("canonized: %d  decanonized: %d\n",
				len(origin.SideChain.CanonizedRoute), len(origin.SideChain.DecanonizedRoute))
		}
		return nil
	})
}

// verifyCmd walks the canonical chain from genesis to the best tip,
// checking that every block's stored parent pointer matches the previous
// height's hash, and folds every header's bytes into a running xxhash
// digest as a cheap corruption check a re-run can compare against.
func verifyCmd(logger *ulogger.Wrapper, cfg *settings.Settings) error {
	store, err := openStoreWithRetry(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Shutdown() }()

	_, bestHeight, err := store.BestBlock()
	if errors.Is(err, errors.ErrNotFound) {
		fmt.Println("verify: empty chain, nothing to check")
		return nil
	}
	if err != nil {
		return err
	}

	digest := xxhash.New()
	var prevHash chainhash.Hash

	for height := uint32(0); height <= bestHeight; height++ {
		hash, err := store.BlockHash(height)
		if err != nil {
			return fmt.Errorf("verify: height %d: %w", height, err)
		}

		block, err := store.FetchBlock(hash)
		if err != nil {
			return fmt.Errorf("verify: fetch %x: %w", hash, err)
		}

		if height > 0 && block.Header.PrevHash != prevHash {
			return fmt.Errorf("verify: height %d: stored parent %x does not match previous tip %x",
				height, block.Header.PrevHash, prevHash)
		}

		if _, err := digest.Write(block.Header.Serialize()); err != nil {
			return err
		}
		prevHash = hash

		meta, err := store.FetchBlockMeta(hash)
		if err != nil {
			return fmt.Errorf("verify: meta %x: %w", hash, err)
		}
		if meta.Number != height {
			return fmt.Errorf("verify: height %d: block_meta.number = %d", height, meta.Number)
		}
	}

	fmt.Printf("verify: %d blocks OK, digest=%016x\n", bestHeight+1, digest.Sum64())
	return nil
}

func printUsage() {
	fmt.Println("usage: coreledgerd <command>")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  stats    print the current data directory, best hash and height")
	fmt.Println("  best     alias for stats")
	fmt.Println("  verify   walk the canonical chain from genesis, checking link")
	fmt.Println("           integrity and folding headers into an xxhash digest")
	fmt.Println("  origin   classify a hex-encoded 80-byte header against the current tip")
}
