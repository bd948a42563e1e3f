package cal

import (
	"github.com/bsv-chain/coreledger/internal/pageio"
)

// CommitLog is the single-page record of the three file lengths (data,
// table, link) at the last successful batch. On open, those lengths define
// the durable prefix; anything beyond them is the aborted tail of an
// interrupted batch and must be truncated.
type CommitLog struct {
	file pageio.PagedFile
}

// Lengths is the (data, table, link) triple a CommitLog page records.
type Lengths struct {
	DataLen  uint64
	TableLen uint64
	LinkLen  uint64
}

// OpenCommitLog wraps the single-page commit-log file.
func OpenCommitLog(file pageio.PagedFile) *CommitLog {
	return &CommitLog{file: file}
}

// Read returns the last-committed lengths, or the zero value if the commit
// log has never been written (a fresh database).
func (c *CommitLog) Read() (Lengths, error) {
	page, ok, err := c.file.ReadPage(pageio.PRef(0))
	if err != nil {
		return Lengths{}, err
	}
	if !ok {
		return Lengths{}, nil
	}
	return Lengths{
		DataLen:  page.ReadUint64(0),
		TableLen: page.ReadUint64(8),
		LinkLen:  page.ReadUint64(16),
	}, nil
}

// Write durably records lengths as the new last-successful-batch marker.
func (c *CommitLog) Write(lengths Lengths) error {
	page := pageio.NewPageAt(pageio.PRef(0))
	page.WriteUint64(0, lengths.DataLen)
	page.WriteUint64(8, lengths.TableLen)
	page.WriteUint64(16, lengths.LinkLen)
	if _, err := c.file.UpdatePage(page); err != nil {
		return err
	}
	return c.file.Flush()
}

func (c *CommitLog) Sync() error     { return c.file.Sync() }
func (c *CommitLog) Shutdown() error { return c.file.Shutdown() }
