package pageio

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPRefPageMath(t *testing.T) {
	require.Equal(t, PRef(0), PRef(0).ThisPage())
	require.Equal(t, uint64(0), PRef(10).PageNumber())
	require.Equal(t, uint64(1), PRef(Size).PageNumber())
	require.Equal(t, PRef(Size), PRef(0).NextPage())
	require.Equal(t, 10, PRef(Size+10).InPagePos())
	require.True(t, PRef(5).IsValid())
	require.False(t, Invalid().IsValid())
}

func TestPageTrailerRoundTrip(t *testing.T) {
	pref := PRef(5)
	page := NewPageAt(pref)
	require.Equal(t, pref, page.Pref())

	var tail [6]byte
	page.Read(PayloadSize, tail[:])
	require.Equal(t, [6]byte{0, 0, 0, 0, 0, 5}, tail)
}

func TestPageReadWrite(t *testing.T) {
	page := NewPage()
	data := []byte{1, 2, 3}
	page.Write(10, data)

	result := make([]byte, 3)
	page.Read(10, result)
	require.Equal(t, data, result)
}

func TestRolledFileRoundTripAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	rf, err := NewRolledFile(dir, "test", "bc", 1) // 1 page per segment
	require.NoError(t, err)

	p0 := NewPageAt(PRef(0))
	p0.WriteUint64(0, 1)
	_, err = rf.UpdatePage(p0)
	require.NoError(t, err)

	p1 := NewPageAt(PRef(0).NextPage())
	p1.WriteUint64(0, 2)
	_, err = rf.UpdatePage(p1)
	require.NoError(t, err)

	require.NoError(t, rf.Sync())
	require.NoError(t, rf.Flush())

	_, err = os.Stat(rf.segmentPath(0))
	require.NoError(t, err)
	_, err = os.Stat(rf.segmentPath(1))
	require.NoError(t, err)
	_, err = os.Stat(rf.segmentPath(2))
	require.True(t, os.IsNotExist(err))

	reopened, err := NewRolledFile(dir, "test", "bc", 1)
	require.NoError(t, err)

	got0, ok, err := reopened.ReadPage(PRef(0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), got0.ReadUint64(0))

	got1, ok, err := reopened.ReadPage(PRef(0).NextPage())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), got1.ReadUint64(0))
}

func TestRolledFileTruncate(t *testing.T) {
	dir := t.TempDir()
	rf, err := NewRolledFile(dir, "test", "bc", 1)
	require.NoError(t, err)

	_, err = rf.UpdatePage(NewPageAt(PRef(0)))
	require.NoError(t, err)
	_, err = rf.UpdatePage(NewPageAt(PRef(0).NextPage()))
	require.NoError(t, err)

	require.NoError(t, rf.Truncate(1000))

	_, err = os.Stat(rf.segmentPath(1))
	require.True(t, os.IsNotExist(err))
}

func TestCachedFileServesFromCacheAndEvictsOnTruncate(t *testing.T) {
	dir := t.TempDir()
	rf, err := NewRolledFile(dir, "test", "bc", 1024)
	require.NoError(t, err)
	cf, err := NewCachedFile(rf, 1)
	require.NoError(t, err)

	page := NewPageAt(PRef(0))
	page.WriteUint64(0, 42)
	_, err = cf.UpdatePage(page)
	require.NoError(t, err)

	got, ok, err := cf.ReadPage(PRef(0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), got.ReadUint64(0))

	require.NoError(t, cf.Truncate(0))
	_, ok, err = rf.ReadPage(PRef(0))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAsyncFileFlushIsSynchronizationPoint(t *testing.T) {
	dir := t.TempDir()
	rf, err := NewRolledFile(dir, "test", "bc", 1024)
	require.NoError(t, err)
	af := NewAsyncFile(rf, testLogger(t))

	page := NewPageAt(PRef(0))
	page.WriteUint64(0, 7)
	_, err = af.UpdatePage(page)
	require.NoError(t, err)

	// Visible on the same object immediately, even before flush drains it.
	got, ok, err := af.ReadPage(PRef(0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), got.ReadUint64(0))

	require.NoError(t, af.Flush())

	fromDisk, ok, err := rf.ReadPage(PRef(0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), fromDisk.ReadUint64(0))

	require.NoError(t, af.Shutdown())
}
