package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	logrus "github.com/sirupsen/logrus"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Reporter receives cumulative byte progress for a single tracked entry
type Reporter interface {
	ReportEntryProgress(id string, transferred, total int64)
}

// Engine sends one file through a chunked upload session: initiate, send
// each chunk in order with retries, then complete. Any failure after the
// session exists aborts it.
type Engine struct {
	opts
	transport upload.ChunkTransport
	reporter  Reporter
}

type sessionState int

// session is the client-side view of one chunked upload
type session struct {
	id        string
	chunkSize int64
	total     int
	acked     int
	state     sessionState
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	stateOpen sessionState = iota
	stateCompleted
	stateAborted
)

// abortTimeout bounds the best-effort abort request
const abortTimeout = 30 * time.Second

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewEngine returns an engine which sends chunks through transport and
// reports progress to reporter, which may be nil
func NewEngine(transport upload.ChunkTransport, reporter Reporter, opt ...Opt) (*Engine, error) {
	if transport == nil {
		return nil, errors.New("missing transport")
	}
	o, err := applyOpts(opt)
	if err != nil {
		return nil, err
	}
	return &Engine{
		opts:      o,
		transport: transport,
		reporter:  reporter,
	}, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Transfer uploads file to destination and returns the stored file record.
// Progress is reported against entry after every acknowledged chunk.
// Errors wrap ErrInitiate, ErrChunk or ErrComplete according to the phase
// which failed.
func (engine *Engine) Transfer(ctx context.Context, file upload.File, destination, entry string, policy schema.ConflictPolicy) (_ *schema.File, result error) {
	child, endFunc := otel.StartSpan(engine.tracer, ctx, spanName("Transfer"))
	defer func() { endFunc(result) }()

	log := engine.logger.WithFields(logrus.Fields{
		"file":        file.Name,
		"size":        file.Size,
		"destination": destination,
	})

	// Initiate the session
	s, err := engine.initiate(child, file, destination, policy)
	if err != nil {
		log.WithError(err).Debug("initiate failed")
		return nil, err
	}
	log = log.WithField("upload_id", s.id)
	log.WithFields(logrus.Fields{
		"chunk_size":   s.chunkSize,
		"total_chunks": s.total,
	}).Debug("session started")

	// Send chunks in order
	for index := 0; index < s.total; index++ {
		offset, length := schema.ChunkRange(file.Size, s.chunkSize, index)
		if err := engine.sendChunk(child, log, s, file, index, offset, length); err != nil {
			return nil, engine.abort(ctx, log, s, err)
		}
		if engine.reporter != nil {
			engine.reporter.ReportEntryProgress(entry, offset+length, file.Size)
		}
	}

	// Complete the session, which is never retried
	response, err := engine.transport.CompleteUpload(child, s.id)
	if err != nil {
		return nil, engine.abort(ctx, log, s, fmt.Errorf("%w: %w", ErrComplete, err))
	} else if response == nil {
		return nil, engine.abort(ctx, log, s, fmt.Errorf("%w: %w: empty response", ErrComplete, ErrProtocol))
	}
	s.state = stateCompleted
	log.WithField("path", response.File.Path).Debug("session completed")

	// Return success
	return &response.File, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (engine *Engine) initiate(ctx context.Context, file upload.File, destination string, policy schema.ConflictPolicy) (*session, error) {
	response, err := engine.transport.InitUpload(ctx, schema.InitUploadRequest{
		FileName:       file.Name,
		FileSize:       file.Size,
		ChunkSize:      engine.chunkSize,
		Destination:    destination,
		ConflictPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitiate, err)
	} else if response == nil || response.UploadID == "" {
		return nil, fmt.Errorf("%w: %w: missing upload id", ErrInitiate, ErrProtocol)
	}

	s := &session{
		id:        response.UploadID,
		chunkSize: response.ChunkSize,
		total:     response.TotalChunks,
	}

	// The server may choose the chunk size, but the layout must cover the file
	if expected := schema.TotalChunks(file.Size, s.chunkSize); file.Size > 0 && (s.chunkSize <= 0 || s.total != expected) {
		err := fmt.Errorf("%w: %w: %d chunks of %d bytes for %d bytes", ErrInitiate, ErrProtocol, s.total, s.chunkSize, file.Size)
		return nil, engine.abort(ctx, engine.logger.WithField("upload_id", s.id), s, err)
	} else if file.Size == 0 && s.total != 0 {
		err := fmt.Errorf("%w: %w: %d chunks for an empty file", ErrInitiate, ErrProtocol, s.total)
		return nil, engine.abort(ctx, engine.logger.WithField("upload_id", s.id), s, err)
	}

	// Return success
	return s, nil
}

func (engine *Engine) sendChunk(ctx context.Context, log logrus.FieldLogger, s *session, file upload.File, index int, offset, length int64) error {
	if s.state != stateOpen {
		return fmt.Errorf("%w: session %q is closed", ErrChunk, s.id)
	}

	var attempts int
	err := engine.retry.Do(ctx, func(attempt int) error {
		attempts = attempt
		response, err := engine.transport.PutChunk(ctx, s.id, index, file.Section(offset, length), length)
		if err != nil {
			return err
		} else if response == nil {
			return fmt.Errorf("%w: empty acknowledgement", ErrProtocol)
		} else if response.ChunkIndex != index {
			return fmt.Errorf("%w: acknowledged chunk %d, expected %d", ErrProtocol, response.ChunkIndex, index)
		}
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"chunk":   index,
			"attempt": attempt,
			"delay":   delay,
		}).Warn("chunk failed, retrying")
	})
	if err != nil {
		return &ChunkError{UploadID: s.id, Index: index, Attempts: attempts, Err: err}
	}

	// Acknowledged
	s.acked++
	return nil
}

// abort asks the server to discard the session and returns cause. Abort
// runs even when ctx is cancelled and its own failure is only logged.
func (engine *Engine) abort(ctx context.Context, log logrus.FieldLogger, s *session, cause error) error {
	if s.state != stateOpen {
		return cause
	}
	s.state = stateAborted

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := engine.transport.AbortUpload(ctx, s.id); err != nil {
		log.WithError(err).Warn("abort failed")
	} else {
		log.WithField("chunks_acknowledged", s.acked).Debug("session aborted")
	}
	return cause
}
