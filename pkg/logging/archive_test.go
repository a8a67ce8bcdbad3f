package logging

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T, maxRows int) *Archive {
	t.Helper()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "archive.db"), maxRows, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestArchiveAppendAndTail(t *testing.T) {
	a := newTestArchive(t, 0)

	base := time.Now().Truncate(time.Millisecond)
	a.Append(Record{Time: base, Level: LevelInfo, Message: "one", Tag: "API"})
	a.Append(Record{Time: base.Add(time.Second), Level: LevelError, Message: "two", Err: errors.New("boom"), Stack: "trace", Location: "main.go:7"})

	n, err := a.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recs, err := a.Tail(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, "two", recs[0].Message)
	assert.Equal(t, LevelError, recs[0].Level)
	assert.EqualError(t, recs[0].Err, "boom")
	assert.Equal(t, "trace", recs[0].Stack)
	assert.Equal(t, "main.go:7", recs[0].Location)

	assert.Equal(t, "one", recs[1].Message)
	assert.Equal(t, "API", recs[1].Tag)
	assert.Nil(t, recs[1].Err)
	assert.True(t, recs[1].Time.Equal(base))
}

func TestArchivePrune(t *testing.T) {
	const maxRows = 5
	a := newTestArchive(t, maxRows)

	for i := 0; i < maxRows+3; i++ {
		a.Append(Record{Time: time.Now(), Level: LevelInfo, Message: fmt.Sprintf("msg-%d", i)})
	}

	n, err := a.Len()
	require.NoError(t, err)
	assert.Equal(t, maxRows, n)

	recs, err := a.Tail(maxRows)
	require.NoError(t, err)
	require.Len(t, recs, maxRows)
	// The oldest rows were pruned, so the tail starts at the newest.
	assert.Equal(t, "msg-7", recs[0].Message)
	assert.Equal(t, "msg-3", recs[maxRows-1].Message)
}

func TestArchiveTailLimit(t *testing.T) {
	a := newTestArchive(t, 0)
	for i := 0; i < 4; i++ {
		a.Append(Record{Time: time.Now(), Level: LevelDebug, Message: fmt.Sprintf("msg-%d", i)})
	}

	recs, err := a.Tail(2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "msg-3", recs[0].Message)
	assert.Equal(t, "msg-2", recs[1].Message)
}

func TestArchiveClosed(t *testing.T) {
	a := newTestArchive(t, 0)
	require.NoError(t, a.Close())

	// Append after close is a silent no-op; queries report the closed state.
	a.Append(Record{Time: time.Now(), Level: LevelInfo, Message: "late"})

	_, err := a.Tail(1)
	assert.Error(t, err)
	_, err = a.Len()
	assert.Error(t, err)
	assert.NoError(t, a.Close())
}
