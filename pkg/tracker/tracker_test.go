package tracker

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	// Packages
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

////////////////////////////////////////////////////////////////////////////////
// HELPERS

func newTestTracker(t *testing.T, opt ...Opt) *Tracker {
	t.Helper()
	tracker, err := New(opt...)
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })
	return tracker
}

func files(sizes ...int64) []upload.File {
	result := make([]upload.File, 0, len(sizes))
	for i, size := range sizes {
		result = append(result, upload.File{Name: string(rune('a'+i)) + ".bin", Size: size})
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// REGISTER TESTS

func Test_Tracker_RegisterBatch(t *testing.T) {
	assert := assert.New(t)
	tracker := newTestTracker(t)

	ids := tracker.RegisterBatch(files(100, 300))
	assert.Len(ids, 2)
	assert.NotEqual(ids[0], ids[1])

	entries := tracker.Entries()
	if assert.Len(entries, 2) {
		assert.Equal(ids[0], entries[0].ID)
		assert.Equal("a.bin", entries[0].Name)
		assert.Equal(schema.StatusPending, entries[0].Status)
		assert.Equal(int64(300), entries[1].Total)
		assert.Equal(entries[0].Batch, entries[1].Batch)
	}

	// Identifiers are unique across batches
	more := tracker.RegisterBatch(files(1))
	assert.NotContains(ids, more[0])
	assert.True(tracker.IsUploading())
	assert.Equal(3, tracker.Summary().Total)
}

func Test_Tracker_RegisterEmpty(t *testing.T) {
	assert := assert.New(t)
	tracker := newTestTracker(t)

	assert.Empty(tracker.RegisterBatch(nil))
	assert.Empty(tracker.Entries())
	assert.Equal(0, tracker.OverallProgress())
	assert.False(tracker.IsUploading())
}

////////////////////////////////////////////////////////////////////////////////
// PROGRESS TESTS

func Test_Tracker_OverallProgress(t *testing.T) {
	assert := assert.New(t)
	tracker := newTestTracker(t)

	ids := tracker.RegisterBatch(files(100, 300))
	tracker.ReportEntryProgress(ids[0], 50, 100)
	tracker.ReportEntryProgress(ids[1], 150, 300)
	assert.Equal(50, tracker.OverallProgress())

	entry, ok := tracker.Entry(ids[0])
	assert.True(ok)
	assert.Equal(schema.StatusUploading, entry.Status)
	assert.Equal(50, entry.Progress)
}

func Test_Tracker_ProgressClamped(t *testing.T) {
	assert := assert.New(t)
	tracker := newTestTracker(t)

	ids := tracker.RegisterBatch(files(100))
	tracker.ReportEntryProgress(ids[0], 150, 100)
	entry, _ := tracker.Entry(ids[0])
	assert.Equal(int64(100), entry.Transferred)
	assert.Equal(100, entry.Progress)
}

func Test_Tracker_BatchProgress(t *testing.T) {
	assert := assert.New(t)
	tracker := newTestTracker(t)

	ids := tracker.RegisterBatch(files(100, 300, 600))

	// Only the first two are in the transfer
	tracker.ReportBatchProgress(ids[:2], 200, 400)
	a, _ := tracker.Entry(ids[0])
	b, _ := tracker.Entry(ids[1])
	c, _ := tracker.Entry(ids[2])
	assert.Equal(int64(50), a.Transferred)
	assert.Equal(int64(150), b.Transferred)
	assert.Equal(50, b.Progress)
	assert.Equal(schema.StatusUploading, a.Status)
	assert.Equal(schema.StatusPending, c.Status)
	assert.Equal(int64(0), c.Transferred)

	// Zero total leaves progress at zero
	tracker.ReportBatchProgress(ids[2:], 10, 0)
	c, _ = tracker.Entry(ids[2])
	assert.Equal(int64(0), c.Transferred)
	assert.Equal(schema.StatusUploading, c.Status)
}

////////////////////////////////////////////////////////////////////////////////
// TERMINAL TESTS

func Test_Tracker_MarkDone(t *testing.T) {
	assert := assert.New(t)
	tracker := newTestTracker(t, WithIdle(0))

	ids := tracker.RegisterBatch(files(100, 300))
	tracker.ReportEntryProgress(ids[0], 10, 100)
	tracker.MarkBatchDone(ids)

	for _, entry := range tracker.Entries() {
		assert.Equal(schema.StatusDone, entry.Status)
		assert.Equal(entry.Total, entry.Transferred)
		assert.Equal(100, entry.Progress)
	}
	summary := tracker.Summary()
	assert.Equal(100, summary.Progress)
	assert.Equal(2, summary.Completed)
	assert.False(summary.Uploading)
}

func Test_Tracker_MarkError(t *testing.T) {
	assert := assert.New(t)
	tracker := newTestTracker(t, WithIdle(0))

	ids := tracker.RegisterBatch(files(100))
	tracker.ReportEntryProgress(ids[0], 40, 100)
	tracker.MarkError(ids[0], "network error")

	entry, _ := tracker.Entry(ids[0])
	assert.Equal(schema.StatusError, entry.Status)
	assert.Equal("network error", entry.Reason)
	assert.Equal(int64(40), entry.Transferred)
	assert.Equal(0, tracker.Summary().Completed)
}

func Test_Tracker_ForwardOnly(t *testing.T) {
	assert := assert.New(t)
	tracker := newTestTracker(t, WithIdle(0))

	ids := tracker.RegisterBatch(files(100, 100))
	tracker.MarkDone(ids[0])
	tracker.MarkError(ids[1], "rejected")

	// No transition out of a terminal state
	tracker.ReportEntryProgress(ids[0], 10, 100)
	tracker.MarkError(ids[0], "late failure")
	tracker.MarkDone(ids[1])
	tracker.ReportBatchProgress(ids, 0, 100)

	a, _ := tracker.Entry(ids[0])
	assert.Equal(schema.StatusDone, a.Status)
	assert.Equal(100, a.Progress)
	assert.Empty(a.Reason)

	b, _ := tracker.Entry(ids[1])
	assert.Equal(schema.StatusError, b.Status)
	assert.Equal("rejected", b.Reason)
}

////////////////////////////////////////////////////////////////////////////////
// CLEAR TESTS

func Test_Tracker_Clear(t *testing.T) {
	assert := assert.New(t)
	tracker := newTestTracker(t, WithIdle(0))

	ids := tracker.RegisterBatch(files(1, 2, 3))
	tracker.MarkDone(ids[0])
	tracker.MarkError(ids[1], "failed")

	tracker.ClearCompleted()
	entries := tracker.Entries()
	if assert.Len(entries, 1) {
		assert.Equal(ids[2], entries[0].ID)
	}

	tracker.ClearAll()
	assert.Empty(tracker.Entries())
}

func Test_Tracker_AutoClear(t *testing.T) {
	const idle = 200 * time.Millisecond
	tracker := newTestTracker(t, WithIdle(idle))

	ids := tracker.RegisterBatch(files(100, 300))
	tracker.MarkBatchDone(ids)

	// Not before the idle window
	assert.Never(t, func() bool {
		return len(tracker.Entries()) == 0
	}, idle/2, 10*time.Millisecond)

	// And after it
	assert.Eventually(t, func() bool {
		return len(tracker.Entries()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func Test_Tracker_AutoClearWaitsForActive(t *testing.T) {
	const idle = 50 * time.Millisecond
	tracker := newTestTracker(t, WithIdle(idle))

	first := tracker.RegisterBatch(files(100))
	second := tracker.RegisterBatch(files(100))
	tracker.MarkDone(first[0])

	// The second batch is still active when the timer fires
	assert.Never(t, func() bool {
		return len(tracker.Entries()) == 0
	}, 4*idle, 10*time.Millisecond)

	tracker.MarkDone(second[0])
	assert.Eventually(t, func() bool {
		return len(tracker.Entries()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func Test_Tracker_AutoClearRearm(t *testing.T) {
	const idle = 200 * time.Millisecond
	tracker := newTestTracker(t, WithIdle(idle))

	first := tracker.RegisterBatch(files(100))
	tracker.MarkDone(first[0])
	time.Sleep(idle / 2)

	// Settling a second batch restarts the window
	second := tracker.RegisterBatch(files(100))
	tracker.MarkDone(second[0])
	assert.Never(t, func() bool {
		return len(tracker.Entries()) == 0
	}, idle*3/4, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(tracker.Entries()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

////////////////////////////////////////////////////////////////////////////////
// CONCURRENCY TESTS

func Test_Tracker_Concurrent(t *testing.T) {
	assert := assert.New(t)
	tracker := newTestTracker(t, WithIdle(0))

	ids := tracker.RegisterBatch(files(1000, 1000, 1000, 1000))
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := int64(0); n <= 1000; n += 100 {
				tracker.ReportEntryProgress(id, n, 1000)
				_ = tracker.Summary()
			}
			tracker.MarkDone(id)
		}()
	}
	wg.Wait()

	assert.Equal(100, tracker.OverallProgress())
	assert.Equal(4, tracker.Summary().Completed)
}

func Test_Tracker_SubscribeClose(t *testing.T) {
	assert := assert.New(t)
	tracker, err := New(WithIdle(0))
	require.NoError(t, err)

	baseline := runtime.NumGoroutine()
	subs := make([]<-chan []schema.Entry, 0, 10)
	for range 10 {
		subs = append(subs, tracker.Subscribe(context.Background()))
	}
	assert.GreaterOrEqual(runtime.NumGoroutine(), baseline+10)

	// Closing the tracker closes every channel and ends every watcher
	assert.NoError(tracker.Close())
	for _, ch := range subs {
		_, open := <-ch
		assert.False(open)
	}
	assert.Eventually(func() bool {
		return runtime.NumGoroutine() <= baseline
	}, time.Second, 10*time.Millisecond)
}

func Test_Tracker_Subscribe(t *testing.T) {
	assert := assert.New(t)
	tracker := newTestTracker(t, WithIdle(0))

	ctx, cancel := context.WithCancel(context.Background())
	ch := tracker.Subscribe(ctx)

	ids := tracker.RegisterBatch(files(100))
	tracker.ReportEntryProgress(ids[0], 100, 100)

	// Only the latest collection is buffered
	select {
	case entries := <-ch:
		if assert.Len(entries, 1) {
			assert.Equal(100, entries[0].Progress)
		}
	case <-time.After(time.Second):
		assert.Fail("no update")
	}

	cancel()
	assert.Eventually(func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
