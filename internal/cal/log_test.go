package cal

import (
	"testing"

	"github.com/bsv-chain/coreledger/internal/pageio"
	"github.com/bsv-chain/coreledger/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	dir := t.TempDir()
	rf, err := pageio.NewRolledFile(dir, "test", "bc", 1024)
	require.NoError(t, err)
	log, err := Open(rf)
	require.NoError(t, err)
	return log
}

func TestLogAppendAndGetEnvelope(t *testing.T) {
	log := newTestLog(t)

	pref, err := log.Append(NewReferred([]byte{1, 2, 3}))
	require.NoError(t, err)

	envelope, err := log.GetEnvelope(pref)
	require.NoError(t, err)
	require.Equal(t, TagReferred, envelope.Tag)
	require.Equal(t, []byte{1, 2, 3}, envelope.Referred.Bytes)
}

func TestLogIndexedRoundTrip(t *testing.T) {
	log := newTestLog(t)

	pref, err := log.Append(NewIndexed([]byte("tx-hash"), []byte{9, 9, 9}))
	require.NoError(t, err)

	envelope, err := log.GetEnvelope(pref)
	require.NoError(t, err)
	require.Equal(t, TagIndexed, envelope.Tag)
	require.Equal(t, []byte("tx-hash"), envelope.Indexed.Key)
	require.Equal(t, []byte{9, 9, 9}, envelope.Indexed.Data.Bytes)
}

func TestLogSetDataSameLengthSucceeds(t *testing.T) {
	log := newTestLog(t)

	pref, err := log.Append(NewReferred([]byte{1, 2, 3}))
	require.NoError(t, err)

	require.NoError(t, log.SetData(pref, []byte{4, 5, 6}))

	envelope, err := log.GetEnvelope(pref)
	require.NoError(t, err)
	require.Equal(t, []byte{4, 5, 6}, envelope.Referred.Bytes)
}

func TestLogSetDataLongerLengthFails(t *testing.T) {
	log := newTestLog(t)

	pref, err := log.Append(NewReferred([]byte{1, 2, 3}))
	require.NoError(t, err)

	err = log.SetData(pref, []byte{4, 5, 6, 7})
	require.ErrorIs(t, err, errors.ErrValueTooLong)
}

func TestLogCrossesPageBoundary(t *testing.T) {
	log := newTestLog(t)

	big := make([]byte, pageio.PayloadSize*2+123)
	for i := range big {
		big[i] = byte(i)
	}

	pref, err := log.Append(NewReferred(big))
	require.NoError(t, err)
	require.NoError(t, log.Flush())

	envelope, err := log.GetEnvelope(pref)
	require.NoError(t, err)
	require.Equal(t, big, envelope.Referred.Bytes)
}

func TestLogLinkEnvelopeFixedWidth(t *testing.T) {
	log := newTestLog(t)

	slots := []Slot{{Hash: 42, Ref: pageio.PRef(7)}}
	pref, err := log.Append(NewLink(slots))
	require.NoError(t, err)

	envelope, err := log.GetEnvelope(pref)
	require.NoError(t, err)
	require.Equal(t, slots, envelope.Link.Slots)

	// Replacing the slot array in place must never fail with ValueTooLong:
	// Link payloads always serialize to the same fixed width.
	newSlots := []Slot{{Hash: 42, Ref: pageio.PRef(7)}, {Hash: 99, Ref: pageio.PRef(123)}}
	require.NoError(t, log.Update(pref, NewLink(newSlots)))
}

func TestEnvelopesIteratesInOrder(t *testing.T) {
	log := newTestLog(t)

	p1, err := log.Append(NewReferred([]byte{1}))
	require.NoError(t, err)
	p2, err := log.Append(NewReferred([]byte{2}))
	require.NoError(t, err)

	var seen []pageio.PRef
	err = log.Envelopes(func(pref pageio.PRef, payload Payload) bool {
		seen = append(seen, pref)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []pageio.PRef{p1, p2}, seen)
}
