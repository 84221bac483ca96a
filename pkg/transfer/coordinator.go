package transfer

import (
	"context"
	"errors"
	"fmt"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	logrus "github.com/sirupsen/logrus"
	errgroup "golang.org/x/sync/errgroup"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Tracker records the progress and outcome of every file in an upload
type Tracker interface {
	Reporter

	// RegisterBatch adds one pending entry per file and returns their ids in
	// the same order
	RegisterBatch(files []upload.File) []string

	// ReportBatchProgress distributes a single transfer's progress across
	// entries in proportion to their sizes
	ReportBatchProgress(ids []string, transferred, total int64)

	MarkDone(id string)
	MarkBatchDone(ids []string)
	MarkError(id, reason string)
	MarkBatchError(ids []string, reason string)
}

// Coordinator partitions files by size, sends the small ones in a single
// request and the large ones through chunked sessions, and records every
// outcome in the tracker
type Coordinator struct {
	opts
	transport upload.Transport
	tracker   Tracker
	engine    *Engine
}

// Outcome is the result for a single file
type Outcome struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Chunked bool         `json:"chunked,omitempty"`
	File    *schema.File `json:"file,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	Err     error        `json:"-"`
}

// Result holds one outcome per file, in the order the files were given
type Result struct {
	Outcomes []Outcome `json:"outcomes"`
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewCoordinator returns a coordinator which uploads through transport and
// records progress in tracker
func NewCoordinator(transport upload.Transport, tracker Tracker, opt ...Opt) (*Coordinator, error) {
	if transport == nil {
		return nil, errors.New("missing transport")
	} else if tracker == nil {
		return nil, errors.New("missing tracker")
	}
	o, err := applyOpts(opt)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(transport, tracker, opt...)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		opts:      o,
		transport: transport,
		tracker:   tracker,
		engine:    engine,
	}, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Upload sends files to destination. A failure of one file, or of the
// single-shot batch, never prevents the others from completing. The error
// returned is only for a failure to start; per-file failures are in the
// result and the tracker.
func (coordinator *Coordinator) Upload(ctx context.Context, destination string, policy schema.ConflictPolicy, files []upload.File) (_ *Result, result error) {
	child, endFunc := otel.StartSpan(coordinator.tracer, ctx, spanName("Upload"))
	defer func() { endFunc(result) }()

	// Nothing to do
	if len(files) == 0 {
		return &Result{}, nil
	}

	// Register every file before any transfer starts
	ids := coordinator.tracker.RegisterBatch(files)
	if len(ids) != len(files) {
		return nil, fmt.Errorf("tracker registered %d entries for %d files", len(ids), len(files))
	}
	outcomes := make([]Outcome, len(files))
	for i, file := range files {
		outcomes[i] = Outcome{ID: ids[i], Name: file.Name}
	}

	// Partition by size
	var small, large []int
	for i, file := range files {
		if file.Size >= coordinator.threshold {
			large = append(large, i)
		} else {
			small = append(small, i)
		}
	}
	coordinator.logger.WithFields(logrus.Fields{
		"destination": destination,
		"policy":      policy.String(),
		"single_shot": len(small),
		"chunked":     len(large),
	}).Debug("upload started")

	// Each goroutine writes only to its own outcomes
	var g errgroup.Group
	g.SetLimit(coordinator.concurrency)
	if len(small) > 0 {
		g.Go(func() error {
			coordinator.uploadBatch(child, destination, policy, files, small, outcomes)
			return nil
		})
	}
	for _, i := range large {
		g.Go(func() error {
			coordinator.uploadChunked(child, destination, policy, files[i], &outcomes[i])
			return nil
		})
	}
	_ = g.Wait()

	// Return the outcomes
	return &Result{Outcomes: outcomes}, nil
}

////////////////////////////////////////////////////////////////////////////////
// RESULT

// Failed returns the outcomes which did not succeed
func (r *Result) Failed() []Outcome {
	var failed []Outcome
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// Err returns the per-file failures joined, or nil
func (r *Result) Err() error {
	var result error
	for _, outcome := range r.Failed() {
		result = errors.Join(result, fmt.Errorf("%s: %w", outcome.Name, outcome.Err))
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (coordinator *Coordinator) uploadChunked(ctx context.Context, destination string, policy schema.ConflictPolicy, file upload.File, outcome *Outcome) {
	outcome.Chunked = true
	stored, err := coordinator.engine.Transfer(ctx, file, destination, outcome.ID, policy)
	if err != nil {
		outcome.Err = err
		outcome.Reason = reasonForPolicy(policy, Reason(err))
		coordinator.tracker.MarkError(outcome.ID, outcome.Reason)
		coordinator.logger.WithError(err).WithField("file", file.Name).Warn("chunked upload failed")
		return
	}
	outcome.File = stored
	coordinator.tracker.MarkDone(outcome.ID)
}

func (coordinator *Coordinator) uploadBatch(ctx context.Context, destination string, policy schema.ConflictPolicy, files []upload.File, indexes []int, outcomes []Outcome) {
	ids := make([]string, 0, len(indexes))
	batch := make([]upload.File, 0, len(indexes))
	for _, i := range indexes {
		ids = append(ids, outcomes[i].ID)
		batch = append(batch, files[i])
	}

	response, err := coordinator.transport.UploadFiles(ctx, destination, policy, batch, func(transferred, total int64) {
		coordinator.tracker.ReportBatchProgress(ids, transferred, total)
	})
	if err != nil {
		reason := reasonForPolicy(policy, Reason(err))
		for _, i := range indexes {
			outcomes[i].Err = err
			outcomes[i].Reason = reason
		}
		coordinator.tracker.MarkBatchError(ids, reason)
		coordinator.logger.WithError(err).WithField("files", len(batch)).Warn("single-shot upload failed")
		return
	} else if response == nil {
		response = new(schema.UploadFilesResponse)
	}

	// Match the server's per-file results to entries by name, in order, so
	// that repeated names resolve to successive entries
	pending := make(map[string][]int, len(indexes))
	for _, i := range indexes {
		pending[files[i].Name] = append(pending[files[i].Name], i)
	}
	take := func(name string) (int, bool) {
		queue := pending[name]
		if len(queue) == 0 {
			return 0, false
		}
		pending[name] = queue[1:]
		return queue[0], true
	}

	var done []string
	for _, stored := range response.Uploaded {
		if i, ok := take(stored.Name); ok {
			outcomes[i].File = &stored
			done = append(done, outcomes[i].ID)
		}
	}
	for _, failed := range response.Failed {
		if i, ok := take(failed.Name); ok {
			outcomes[i].Err = fmt.Errorf("%w: %s", ErrRejected, failed.Reason)
			outcomes[i].Reason = reasonForPolicy(policy, ReasonText(failed.Reason))
			coordinator.tracker.MarkError(outcomes[i].ID, outcomes[i].Reason)
		}
	}
	coordinator.tracker.MarkBatchDone(done)

	// Anything the server did not mention has failed
	for _, i := range indexes {
		if queue := pending[files[i].Name]; len(queue) > 0 && queue[0] == i {
			pending[files[i].Name] = queue[1:]
			outcomes[i].Err = fmt.Errorf("%w: %q missing from response", ErrProtocol, files[i].Name)
			outcomes[i].Reason = "server error: no result for file"
			coordinator.tracker.MarkError(outcomes[i].ID, outcomes[i].Reason)
		}
	}
}

// reasonForPolicy marks conflicts under the skip policy as skipped
func reasonForPolicy(policy schema.ConflictPolicy, reason string) string {
	if policy == schema.ConflictSkip && IsConflictText(reason) {
		return "skipped: " + reason
	}
	return reason
}
