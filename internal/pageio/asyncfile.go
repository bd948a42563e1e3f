package pageio

import (
	"context"
	"sync"
	"time"

	"github.com/bsv-chain/coreledger/pkg/retry"
	"github.com/bsv-chain/coreledger/pkg/ulogger"
)

// AsyncFile runs the write side of a PagedFile on a dedicated background
// goroutine: UpdatePage enqueues a clone of the page and returns
// immediately; Flush is a synchronization point that blocks until the
// queue has drained to the wrapped file. Grounded on hammersbald's
// asyncfile.rs background-thread-plus-condvar design.
type AsyncFile struct {
	log *ulogger.Wrapper

	mu      sync.Mutex
	work    *sync.Cond
	flushed *sync.Cond
	queue   []Page
	running bool
	file    PagedFile
}

// NewAsyncFile wraps file and starts its background writer goroutine.
func NewAsyncFile(file PagedFile, log *ulogger.Wrapper) *AsyncFile {
	a := &AsyncFile{
		log:     log,
		running: true,
		file:    file,
	}
	a.work = sync.NewCond(&a.mu)
	a.flushed = sync.NewCond(&a.mu)
	go a.background()
	return a
}

func (a *AsyncFile) background() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.running {
		for len(a.queue) == 0 && a.running {
			a.work.Wait()
		}
		pending := a.queue
		a.queue = nil

		a.mu.Unlock()
		for _, page := range pending {
			page := page
			err := retry.Do(context.Background(), func() error {
				_, err := a.file.UpdatePage(page)
				return err
			}, retry.WithRetryCount(3), retry.WithBackoffDurationType(10*time.Millisecond))
			if err != nil {
				a.log.Errorf("async page writer: giving up after retries: %v", err)
			}
		}
		a.mu.Lock()

		a.flushed.Broadcast()
	}
}

// readInQueue returns the most recent queued write for pref's page, if any.
func (a *AsyncFile) readInQueue(pref PRef) (Page, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.queue) - 1; i >= 0; i-- {
		if a.queue[i].Pref() == pref.ThisPage() {
			return a.queue[i], true
		}
	}
	return Page{}, false
}

func (a *AsyncFile) ReadPage(pref PRef) (Page, bool, error) {
	if page, ok := a.readInQueue(pref); ok {
		return page, true, nil
	}
	return a.file.ReadPage(pref)
}

func (a *AsyncFile) Len() (uint64, error) {
	return a.file.Len()
}

func (a *AsyncFile) Truncate(newLen uint64) error {
	if err := a.Flush(); err != nil {
		return err
	}
	return a.file.Truncate(newLen)
}

func (a *AsyncFile) Sync() error {
	return a.file.Sync()
}

func (a *AsyncFile) Shutdown() error {
	if err := a.Flush(); err != nil {
		return err
	}
	a.mu.Lock()
	a.running = false
	a.work.Broadcast()
	a.mu.Unlock()
	return nil
}

func (a *AsyncFile) UpdatePage(page Page) (uint64, error) {
	a.mu.Lock()
	a.queue = append(a.queue, page)
	a.work.Signal()
	a.mu.Unlock()
	return 0, nil
}

func (a *AsyncFile) Flush() error {
	a.mu.Lock()
	a.work.Signal()
	for len(a.queue) > 0 {
		a.flushed.Wait()
	}
	a.mu.Unlock()
	return a.file.Flush()
}
