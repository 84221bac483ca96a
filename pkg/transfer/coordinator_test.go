package transfer

import (
	"context"
	"net/url"
	"syscall"
	"testing"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	tracker "github.com/mutablelogic/go-upload/pkg/tracker"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

////////////////////////////////////////////////////////////////////////////////
// HELPERS

func newTestCoordinator(t *testing.T, transport *fakeTransport, opt ...Opt) (*Coordinator, *tracker.Tracker) {
	t.Helper()
	tracker, err := tracker.New(tracker.WithIdle(0))
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })
	coordinator, err := NewCoordinator(transport, tracker, testOpts(append([]Opt{WithThreshold(100), WithChunkSize(40)}, opt...)...)...)
	require.NoError(t, err)
	return coordinator, tracker
}

func entryByName(tracker *tracker.Tracker, name string) schema.Entry {
	for _, entry := range tracker.Entries() {
		if entry.Name == name {
			return entry
		}
	}
	return schema.Entry{}
}

////////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_Coordinator_New(t *testing.T) {
	assert := assert.New(t)

	_, err := NewCoordinator(nil, nil)
	assert.Error(err)

	_, err = NewCoordinator(newFakeTransport(), nil)
	assert.Error(err)

	_, err = NewCoordinator(newFakeTransport(), nil, WithConcurrency(0))
	assert.Error(err)
}

func Test_Coordinator_Empty(t *testing.T) {
	assert := assert.New(t)
	coordinator, tracker := newTestCoordinator(t, newFakeTransport())

	result, err := coordinator.Upload(context.Background(), "/", schema.ConflictNone, nil)
	assert.NoError(err)
	assert.Empty(result.Outcomes)
	assert.Empty(tracker.Entries())
}

func Test_Coordinator_Partition(t *testing.T) {
	assert := assert.New(t)
	transport := newFakeTransport()
	coordinator, tracker := newTestCoordinator(t, transport)

	files := []upload.File{
		testFile("a.txt", 10),
		testFile("large.bin", 150),
		testFile("b.txt", 99),
		testFile("edge.bin", 100),
	}
	result, err := coordinator.Upload(context.Background(), "/docs", schema.ConflictNone, files)
	require.NoError(t, err)
	assert.NoError(result.Err())
	assert.Empty(result.Failed())

	// Small files go in one request, the rest in sessions
	if assert.Len(transport.batches, 1) {
		assert.Equal([]string{"a.txt", "b.txt"}, transport.batches[0])
	}
	assert.Len(transport.sessions, 2)
	assert.Equal(2, transport.completes)

	// Outcomes are in input order
	if assert.Len(result.Outcomes, 4) {
		assert.Equal("a.txt", result.Outcomes[0].Name)
		assert.False(result.Outcomes[0].Chunked)
		assert.True(result.Outcomes[1].Chunked)
		assert.True(result.Outcomes[3].Chunked)
		assert.Equal("/docs/large.bin", result.Outcomes[1].File.Path)
	}

	// Every entry is done
	for _, entry := range tracker.Entries() {
		assert.Equal(schema.StatusDone, entry.Status, entry.Name)
		assert.Equal(100, entry.Progress)
	}
	assert.Equal(100, tracker.OverallProgress())
	assert.False(tracker.IsUploading())
}

func Test_Coordinator_BatchFailure(t *testing.T) {
	assert := assert.New(t)
	transport := newFakeTransport()
	transport.batchErr = httpresponse.ErrInternalError.With("disk full")
	coordinator, tracker := newTestCoordinator(t, transport)

	files := []upload.File{testFile("a.txt", 10), testFile("b.txt", 20), testFile("large.bin", 150)}
	result, err := coordinator.Upload(context.Background(), "/", schema.ConflictNone, files)
	require.NoError(t, err)
	assert.Len(result.Failed(), 2)
	assert.Error(result.Err())

	// The batch failed, keeping the bytes it had sent, while the chunked file succeeded
	a := entryByName(tracker, "a.txt")
	assert.Equal(schema.StatusError, a.Status)
	assert.Contains(a.Reason, "server error")
	assert.Equal(int64(5), a.Transferred)
	assert.Equal(schema.StatusError, entryByName(tracker, "b.txt").Status)
	assert.Equal(schema.StatusDone, entryByName(tracker, "large.bin").Status)
}

func Test_Coordinator_ChunkedFailure(t *testing.T) {
	assert := assert.New(t)
	transport := newFakeTransport()
	transport.chunkErr = func(index, _ int) error {
		return &url.Error{Op: "Put", URL: "http://localhost/", Err: syscall.ECONNREFUSED}
	}
	coordinator, tracker := newTestCoordinator(t, transport)

	files := []upload.File{testFile("a.txt", 10), testFile("large.bin", 150), testFile("huge.bin", 200)}
	result, err := coordinator.Upload(context.Background(), "/", schema.ConflictNone, files)
	require.NoError(t, err)
	assert.Len(result.Failed(), 2)

	assert.Equal(schema.StatusDone, entryByName(tracker, "a.txt").Status)
	large := entryByName(tracker, "large.bin")
	assert.Equal(schema.StatusError, large.Status)
	assert.Contains(large.Reason, "network error")
	assert.Equal(schema.StatusError, entryByName(tracker, "huge.bin").Status)
	assert.Len(transport.aborts, 2)
}

func Test_Coordinator_FirstChunkExhausted(t *testing.T) {
	assert := assert.New(t)
	transport := newFakeTransport()
	transport.chunkErr = func(index, _ int) error {
		if index == 0 {
			return &url.Error{Op: "Put", URL: "http://localhost/", Err: syscall.ECONNRESET}
		}
		return nil
	}
	coordinator, tracker := newTestCoordinator(t, transport)

	result, err := coordinator.Upload(context.Background(), "/", schema.ConflictNone, []upload.File{testFile("large.bin", 150)})
	require.NoError(t, err)
	assert.Len(result.Failed(), 1)

	assert.Equal(3, transport.attempts[0])
	assert.Equal(0, transport.attempts[1])
	assert.Len(transport.aborts, 1)
	assert.Equal(0, transport.completes)

	large := entryByName(tracker, "large.bin")
	assert.Equal(schema.StatusError, large.Status)
	assert.Contains(large.Reason, "network error")
	assert.Equal(int64(0), large.Transferred)
}

func Test_Coordinator_PartialBatch(t *testing.T) {
	assert := assert.New(t)
	transport := newFakeTransport()
	transport.batchFailed = map[string]string{"b.txt": "file already exists"}
	coordinator, tracker := newTestCoordinator(t, transport)

	files := []upload.File{testFile("a.txt", 10), testFile("b.txt", 20)}
	result, err := coordinator.Upload(context.Background(), "/", schema.ConflictNone, files)
	require.NoError(t, err)

	assert.Equal(schema.StatusDone, entryByName(tracker, "a.txt").Status)
	b := entryByName(tracker, "b.txt")
	assert.Equal(schema.StatusError, b.Status)
	assert.Equal("a file with this name already exists", b.Reason)
	if failed := result.Failed(); assert.Len(failed, 1) {
		assert.ErrorIs(failed[0].Err, ErrRejected)
		assert.Equal(KindConflict, Classify(failed[0].Err))
	}
}

func Test_Coordinator_SkipPolicy(t *testing.T) {
	assert := assert.New(t)
	transport := newFakeTransport()
	transport.batchFailed = map[string]string{"a.txt": "already exists"}
	transport.initErr = httpresponse.ErrConflict.With("large.bin")
	coordinator, tracker := newTestCoordinator(t, transport)

	files := []upload.File{testFile("a.txt", 10), testFile("large.bin", 150)}
	_, err := coordinator.Upload(context.Background(), "/", schema.ConflictSkip, files)
	require.NoError(t, err)

	assert.Equal("skipped: a file with this name already exists", entryByName(tracker, "a.txt").Reason)
	assert.Equal("skipped: a file with this name already exists", entryByName(tracker, "large.bin").Reason)
}

func Test_Coordinator_DuplicateNames(t *testing.T) {
	assert := assert.New(t)
	transport := newFakeTransport()
	coordinator, tracker := newTestCoordinator(t, transport)

	files := []upload.File{testFile("same.txt", 10), testFile("same.txt", 20)}
	result, err := coordinator.Upload(context.Background(), "/", schema.ConflictRename, files)
	require.NoError(t, err)
	assert.NoError(result.Err())
	for _, entry := range tracker.Entries() {
		assert.Equal(schema.StatusDone, entry.Status)
	}
}
