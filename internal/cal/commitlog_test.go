package cal

import (
	"testing"

	"github.com/bsv-chain/coreledger/internal/pageio"
	"github.com/stretchr/testify/require"
)

func TestCommitLogFreshReadsZero(t *testing.T) {
	dir := t.TempDir()
	rf, err := pageio.NewRolledFile(dir, "commit", "lg", 1024)
	require.NoError(t, err)
	cl := OpenCommitLog(rf)

	lengths, err := cl.Read()
	require.NoError(t, err)
	require.Equal(t, Lengths{}, lengths)
}

func TestCommitLogWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rf, err := pageio.NewRolledFile(dir, "commit", "lg", 1024)
	require.NoError(t, err)
	cl := OpenCommitLog(rf)

	want := Lengths{DataLen: 4096 * 3, TableLen: 4096 * 2, LinkLen: 4096}
	require.NoError(t, cl.Write(want))

	got, err := cl.Read()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestCommitLogRecoveryTruncatesAbortedTail(t *testing.T) {
	dir := t.TempDir()
	dataFile, err := pageio.NewRolledFile(dir, "test", "bc", 1024)
	require.NoError(t, err)

	log, err := Open(dataFile)
	require.NoError(t, err)
	_, err = log.Append(NewReferred([]byte{1, 2, 3}))
	require.NoError(t, err)
	require.NoError(t, log.Flush())
	committedLen, err := log.Len()
	require.NoError(t, err)

	// A second, never-committed append simulates a crash mid-batch.
	_, err = log.Append(NewReferred([]byte{4, 5, 6}))
	require.NoError(t, err)
	require.NoError(t, log.Flush())

	// Recovery: truncate back to the last committed length.
	require.NoError(t, dataFile.Truncate(committedLen))

	reopened, err := pageio.NewRolledFile(dir, "test", "bc", 1024)
	require.NoError(t, err)
	recoveredLen, err := reopened.Len()
	require.NoError(t, err)
	require.Equal(t, committedLen, recoveredLen)
}
