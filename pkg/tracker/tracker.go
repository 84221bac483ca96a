package tracker

import (
	"context"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	// Packages
	uuid "github.com/google/uuid"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	logrus "github.com/sirupsen/logrus"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Tracker is the registry of upload entries. Every mutation builds a new
// collection from the current one and publishes it whole, so readers never
// observe a partial update.
type Tracker struct {
	opts

	// mu serializes writers; readers load entries without locking
	mu      sync.Mutex
	entries atomic.Pointer[[]schema.Entry]
	timer   *time.Timer
	armed   uint64
	subs    map[uint64]chan []schema.Entry
	nextSub uint64
	closed  bool
	done    chan struct{}
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New returns an empty tracker
func New(opt ...Opt) (*Tracker, error) {
	o, err := applyOpts(opt)
	if err != nil {
		return nil, err
	}
	self := &Tracker{
		opts: o,
		subs: make(map[uint64]chan []schema.Entry),
		done: make(chan struct{}),
	}
	self.entries.Store(&[]schema.Entry{})
	return self, nil
}

// Close stops the idle timer and closes all subscriptions
func (tracker *Tracker) Close() error {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	if tracker.closed {
		return nil
	}
	tracker.closed = true
	close(tracker.done)
	if tracker.timer != nil {
		tracker.timer.Stop()
		tracker.timer = nil
	}
	for id, ch := range tracker.subs {
		close(ch)
		delete(tracker.subs, id)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - READ

// Entries returns the current entries in registration order
func (tracker *Tracker) Entries() []schema.Entry {
	return slices.Clone(*tracker.entries.Load())
}

// Entry returns a single entry
func (tracker *Tracker) Entry(id string) (schema.Entry, bool) {
	for _, entry := range *tracker.entries.Load() {
		if entry.ID == id {
			return entry, true
		}
	}
	return schema.Entry{}, false
}

// Summary returns the aggregates over the current entries
func (tracker *Tracker) Summary() schema.Summary {
	return summarize(*tracker.entries.Load())
}

// OverallProgress returns round(100 * transferred / total) across all
// entries, or zero when there is nothing to transfer
func (tracker *Tracker) OverallProgress() int {
	return tracker.Summary().Progress
}

// IsUploading returns true while any entry is pending or uploading
func (tracker *Tracker) IsUploading() bool {
	return tracker.Summary().Uploading
}

// Subscribe returns a channel which receives the collection after each
// change. Only the latest collection is buffered. The channel is closed
// when ctx is done or the tracker is closed.
func (tracker *Tracker) Subscribe(ctx context.Context) <-chan []schema.Entry {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	ch := make(chan []schema.Entry, 1)
	if tracker.closed {
		close(ch)
		return ch
	}
	id := tracker.nextSub
	tracker.nextSub++
	tracker.subs[id] = ch

	go func() {
		select {
		case <-ctx.Done():
		case <-tracker.done:
		}
		tracker.mu.Lock()
		defer tracker.mu.Unlock()
		if ch, exists := tracker.subs[id]; exists {
			close(ch)
			delete(tracker.subs, id)
		}
	}()

	return ch
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - WRITE

// RegisterBatch adds one pending entry per file, in order, and returns the
// entry identifiers
func (tracker *Tracker) RegisterBatch(files []upload.File) []string {
	if len(files) == 0 {
		return nil
	}
	batch := uuid.NewString()
	ids := make([]string, 0, len(files))
	tracker.update(func(entries []schema.Entry) []schema.Entry {
		for _, file := range files {
			id := uuid.NewString()
			ids = append(ids, id)
			entries = append(entries, schema.Entry{
				ID:     id,
				Batch:  batch,
				Name:   file.Name,
				Size:   file.Size,
				Total:  max(file.Size, 0),
				Status: schema.StatusPending,
			})
		}
		return entries
	})
	tracker.logger.WithFields(logrus.Fields{
		"batch": batch,
		"files": len(files),
	}).Debug("batch registered")
	return ids
}

// ReportEntryProgress sets the bytes transferred for a single entry
func (tracker *Tracker) ReportEntryProgress(id string, transferred, total int64) {
	tracker.update(func(entries []schema.Entry) []schema.Entry {
		for i := range entries {
			if entries[i].ID == id {
				progress(&entries[i], transferred, total)
			}
		}
		return entries
	})
}

// ReportBatchProgress distributes the progress of a single transfer across
// the named entries by each entry's share of the declared size
func (tracker *Tracker) ReportBatchProgress(ids []string, transferred, total int64) {
	var ratio float64
	if total > 0 {
		ratio = math.Min(math.Max(float64(transferred)/float64(total), 0), 1)
	}
	tracker.update(func(entries []schema.Entry) []schema.Entry {
		for i := range entries {
			if slices.Contains(ids, entries[i].ID) {
				size := max(entries[i].Size, 0)
				progress(&entries[i], int64(math.Round(ratio*float64(size))), size)
			}
		}
		return entries
	})
}

// MarkDone sets an entry to done with all bytes transferred
func (tracker *Tracker) MarkDone(id string) {
	tracker.MarkBatchDone([]string{id})
}

// MarkBatchDone sets the named entries to done with all bytes transferred
func (tracker *Tracker) MarkBatchDone(ids []string) {
	if len(ids) == 0 {
		return
	}
	tracker.update(func(entries []schema.Entry) []schema.Entry {
		for i := range entries {
			if slices.Contains(ids, entries[i].ID) && entries[i].Status.CanTransition(schema.StatusDone) {
				entries[i].Status = schema.StatusDone
				entries[i].Transferred = entries[i].Total
				entries[i].Progress = 100
			}
		}
		return entries
	})
	tracker.settle(ids)
}

// MarkError sets an entry to error, keeping the bytes already transferred
func (tracker *Tracker) MarkError(id, reason string) {
	tracker.MarkBatchError([]string{id}, reason)
}

// MarkBatchError sets the named entries to error with a reason
func (tracker *Tracker) MarkBatchError(ids []string, reason string) {
	if len(ids) == 0 {
		return
	}
	tracker.update(func(entries []schema.Entry) []schema.Entry {
		for i := range entries {
			if slices.Contains(ids, entries[i].ID) && entries[i].Status.CanTransition(schema.StatusError) {
				entries[i].Status = schema.StatusError
				entries[i].Reason = reason
			}
		}
		return entries
	})
	tracker.settle(ids)
}

// ClearCompleted removes entries which are done or failed
func (tracker *Tracker) ClearCompleted() {
	tracker.update(func(entries []schema.Entry) []schema.Entry {
		return slices.DeleteFunc(entries, func(entry schema.Entry) bool {
			return entry.Status.Terminal()
		})
	})
}

// ClearAll removes every entry
func (tracker *Tracker) ClearAll() {
	tracker.update(func([]schema.Entry) []schema.Entry {
		return []schema.Entry{}
	})
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// update applies fn to a copy of the collection and publishes the result
func (tracker *Tracker) update(fn func([]schema.Entry) []schema.Entry) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	next := fn(slices.Clone(*tracker.entries.Load()))
	tracker.entries.Store(&next)
	tracker.publish(next)
}

// publish replaces any undelivered collection with the latest. Must be
// called with the lock held.
func (tracker *Tracker) publish(entries []schema.Entry) {
	for _, ch := range tracker.subs {
		select {
		case <-ch:
		default:
		}
		ch <- slices.Clone(entries)
	}
}

// settle re-arms the idle timer once every batch touched by ids has no
// active entries
func (tracker *Tracker) settle(ids []string) {
	if tracker.idle == 0 {
		return
	}

	entries := *tracker.entries.Load()
	batches := make(map[string]bool)
	for _, entry := range entries {
		if slices.Contains(ids, entry.ID) {
			batches[entry.Batch] = true
		}
	}
	for _, entry := range entries {
		if batches[entry.Batch] && entry.Status.Active() {
			return
		}
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	if tracker.closed {
		return
	}
	if tracker.timer != nil {
		tracker.timer.Stop()
	}
	tracker.armed++
	armed := tracker.armed
	tracker.timer = time.AfterFunc(tracker.idle, func() {
		tracker.expire(armed)
	})
}

// expire clears all entries if nothing is active and the timer which fired
// is still the armed one
func (tracker *Tracker) expire(armed uint64) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	if tracker.closed || tracker.armed != armed {
		return
	}
	tracker.timer = nil

	entries := *tracker.entries.Load()
	if summarize(entries).Uploading {
		return
	}
	next := []schema.Entry{}
	tracker.entries.Store(&next)
	tracker.publish(next)
	tracker.logger.WithField("entries", len(entries)).Debug("idle entries cleared")
}

// progress updates an active entry and moves it to uploading
func progress(entry *schema.Entry, transferred, total int64) {
	if entry.Status.Terminal() {
		return
	}
	total = max(total, 0)
	entry.Total = total
	entry.Transferred = min(max(transferred, 0), total)
	entry.Progress = percent(entry.Transferred, entry.Total)
	entry.Status = schema.StatusUploading
}

func summarize(entries []schema.Entry) schema.Summary {
	var summary schema.Summary
	var transferred, total int64
	for _, entry := range entries {
		transferred += entry.Transferred
		total += entry.Total
		if entry.Status.Active() {
			summary.Uploading = true
		}
		if entry.Status == schema.StatusDone {
			summary.Completed++
		}
	}
	summary.Total = len(entries)
	summary.Progress = percent(transferred, total)
	return summary
}

func percent(transferred, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(transferred) / float64(total)))
}
