package manager

import (
	"context"
	"errors"
	"io"
	"path"
	"slices"
	"time"

	// Packages
	uuid "github.com/google/uuid"
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	types "github.com/mutablelogic/go-server/pkg/types"
	upload "github.com/mutablelogic/go-upload"
	backend "github.com/mutablelogic/go-upload/pkg/backend"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	logrus "github.com/sirupsen/logrus"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type session struct {
	schema.UploadStatus
	policy     schema.ConflictPolicy
	target     string
	received   map[int]bool
	modified   time.Time
	completing bool
	writing    int
}

// chunkReader counts the bytes read through it, and fails the read when
// the count is not size
type chunkReader struct {
	r    io.Reader
	size int64
	n    int64
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var errChunkLength = errors.New("chunk length mismatch")

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// InitUpload starts a chunked upload session. The chunk size requested is
// used when it is within range, otherwise the default applies.
func (manager *Manager) InitUpload(ctx context.Context, req schema.InitUploadRequest) (_ *schema.InitUploadResponse, result error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("InitUpload"))
	defer func() { endFunc(result) }()

	// Validate the request
	if req.FileSize < 0 {
		return nil, httpresponse.ErrBadRequest.Withf("invalid file size %d", req.FileSize)
	}
	policy, err := schema.ParseConflictPolicy(string(req.ConflictPolicy))
	if err != nil {
		return nil, httpresponse.ErrBadRequest.With(err.Error())
	}
	target, err := targetPath(req.Destination, req.FileName)
	if err != nil {
		return nil, err
	}
	chunkSize := req.ChunkSize
	if chunkSize <= 0 || chunkSize > manager.maxChunkSize {
		chunkSize = min(schema.DefaultChunkSize, manager.maxChunkSize)
	}

	// Reject an existing file unless the policy resolves it at completion
	if err := manager.checkConflict(child, target, policy); err != nil {
		return nil, err
	}

	// Create the session
	s := &session{
		UploadStatus: schema.UploadStatus{
			UploadID:    uuid.NewString(),
			FileName:    req.FileName,
			FileSize:    req.FileSize,
			Destination: types.NormalisePath(req.Destination),
			ChunkSize:   chunkSize,
			TotalChunks: schema.TotalChunks(req.FileSize, chunkSize),
		},
		policy:   policy,
		target:   target,
		received: make(map[int]bool),
		modified: time.Now(),
	}
	manager.mu.Lock()
	manager.sessions[s.UploadID] = s
	manager.mu.Unlock()

	manager.logger.WithFields(logrus.Fields{
		"upload_id":    s.UploadID,
		"path":         target,
		"size":         s.FileSize,
		"total_chunks": s.TotalChunks,
	}).Debug("upload initiated")

	// Return success
	return &schema.InitUploadResponse{
		UploadID:    s.UploadID,
		ChunkSize:   s.ChunkSize,
		TotalChunks: s.TotalChunks,
	}, nil
}

// PutChunk stages one chunk. The body must be exactly the length of the
// chunk at index. size is the declared length, or -1 if unknown. Sending an
// index again replaces the staged chunk.
func (manager *Manager) PutChunk(ctx context.Context, uploadID string, index int, body io.Reader, size int64) (_ *schema.ChunkResponse, result error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("PutChunk"))
	defer func() { endFunc(result) }()

	// Get the session, and hold it open while the chunk is written
	status, err := manager.beginWrite(uploadID)
	if err != nil {
		return nil, err
	}
	defer manager.endWrite(uploadID)
	if index < 0 || index >= status.TotalChunks {
		return nil, httpresponse.ErrBadRequest.Withf("chunk index %d out of range [0, %d)", index, status.TotalChunks)
	}
	_, expected := schema.ChunkRange(status.FileSize, status.ChunkSize, index)
	if size >= 0 && size != expected {
		return nil, httpresponse.ErrBadRequest.Withf("chunk %d is %d bytes, expected %d", index, size, expected)
	}

	// Stage the chunk, reading at most one byte more than expected. A chunk
	// of the wrong length aborts the write and leaves any staged copy intact.
	counter := &chunkReader{r: io.LimitReader(body, expected+1), size: expected}
	if _, err := manager.backend.Write(child, chunkPath(uploadID, index), counter, backend.WriteOptions{
		ContentType: types.ContentTypeBinary,
	}); counter.n != expected {
		return nil, httpresponse.ErrBadRequest.Withf("chunk %d is %d bytes, expected %d", index, counter.n, expected)
	} else if err != nil {
		return nil, err
	}

	// Record the chunk; the session may have been aborted while it was written
	manager.mu.Lock()
	s, exists := manager.sessions[uploadID]
	if !exists {
		manager.mu.Unlock()
		manager.deleteChunk(child, uploadID, index)
		return nil, httpresponse.ErrNotFound.Withf("upload %q not found", uploadID)
	}
	s.received[index] = true
	s.ChunksReceived = len(s.received)
	s.modified = time.Now()
	received := s.ChunksReceived
	manager.mu.Unlock()

	// Return success
	return &schema.ChunkResponse{
		UploadID:       uploadID,
		ChunkIndex:     index,
		ChunksReceived: received,
	}, nil
}

// CompleteUpload assembles the staged chunks in order into the destination
// and ends the session
func (manager *Manager) CompleteUpload(ctx context.Context, uploadID string) (_ *schema.CompleteUploadResponse, result error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("CompleteUpload"))
	defer func() { endFunc(result) }()

	// Claim the session
	s, err := manager.claim(uploadID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if result != nil {
			manager.unclaim(uploadID)
		}
	}()

	// Resolve the final path
	target, err := manager.reserve(child, s.target, s.policy, uploadID)
	if err != nil {
		return nil, err
	}
	defer manager.release(target)

	// Concatenate chunks
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(manager.concat(child, pw, uploadID, s.TotalChunks, s.ChunkSize, s.FileSize))
	}()
	contentType := upload.MIMEByExt(path.Ext(target))
	file, err := manager.backend.Write(child, target, pr, backend.WriteOptions{
		ContentType: contentType,
		Meta:        map[string]string{schema.AttrUploadID: uploadID},
	})
	pr.CloseWithError(err)
	if err != nil {
		return nil, err
	}
	file.Name = s.FileName

	// End the session
	manager.mu.Lock()
	delete(manager.sessions, uploadID)
	manager.mu.Unlock()
	manager.deleteStaging(child, uploadID)

	manager.logger.WithFields(logrus.Fields{
		"upload_id": uploadID,
		"path":      file.Path,
		"size":      file.Size,
	}).Debug("upload completed")
	manager.notify(child, uploadID, *file)

	// Return success
	return &schema.CompleteUploadResponse{File: *file}, nil
}

// AbortUpload discards a session and its staged chunks
func (manager *Manager) AbortUpload(ctx context.Context, uploadID string) (result error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("AbortUpload"))
	defer func() { endFunc(result) }()

	manager.mu.Lock()
	s, exists := manager.sessions[uploadID]
	if exists && s.completing {
		manager.mu.Unlock()
		return httpresponse.ErrConflict.Withf("upload %q is being completed", uploadID)
	}
	delete(manager.sessions, uploadID)
	manager.mu.Unlock()
	if !exists {
		return httpresponse.ErrNotFound.Withf("upload %q not found", uploadID)
	}

	manager.deleteStaging(child, uploadID)
	manager.logger.WithField("upload_id", uploadID).Debug("upload aborted")
	return nil
}

// UploadStatus returns the state of a session
func (manager *Manager) UploadStatus(ctx context.Context, uploadID string) (*schema.UploadStatus, error) {
	status, err := manager.status(uploadID)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// Sessions returns the identifiers of all live sessions
func (manager *Manager) Sessions() []string {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	result := make([]string, 0, len(manager.sessions))
	for id := range manager.sessions {
		result = append(result, id)
	}
	slices.Sort(result)
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (manager *Manager) status(uploadID string) (schema.UploadStatus, error) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if s, exists := manager.sessions[uploadID]; !exists {
		return schema.UploadStatus{}, httpresponse.ErrNotFound.Withf("upload %q not found", uploadID)
	} else {
		return s.UploadStatus, nil
	}
}

// beginWrite returns the state of a session which accepts chunks, and
// prevents it from being completed until endWrite is called
func (manager *Manager) beginWrite(uploadID string) (schema.UploadStatus, error) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	s, exists := manager.sessions[uploadID]
	switch {
	case !exists:
		return schema.UploadStatus{}, httpresponse.ErrNotFound.Withf("upload %q not found", uploadID)
	case s.completing:
		return schema.UploadStatus{}, httpresponse.ErrConflict.Withf("upload %q is being completed", uploadID)
	}
	s.writing++
	return s.UploadStatus, nil
}

func (manager *Manager) endWrite(uploadID string) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if s, exists := manager.sessions[uploadID]; exists {
		s.writing--
		s.modified = time.Now()
	}
}

// claim marks a session as completing once every chunk is staged
func (manager *Manager) claim(uploadID string) (session, error) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	s, exists := manager.sessions[uploadID]
	switch {
	case !exists:
		return session{}, httpresponse.ErrNotFound.Withf("upload %q not found", uploadID)
	case s.completing:
		return session{}, httpresponse.ErrConflict.Withf("upload %q is already being completed", uploadID)
	case s.writing > 0:
		return session{}, httpresponse.ErrConflict.Withf("upload %q has chunks in flight", uploadID)
	case len(s.received) != s.TotalChunks:
		return session{}, httpresponse.ErrBadRequest.Withf("upload %q has %d of %d chunks", uploadID, len(s.received), s.TotalChunks)
	}
	s.completing = true
	return *s, nil
}

func (manager *Manager) unclaim(uploadID string) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if s, exists := manager.sessions[uploadID]; exists {
		s.completing = false
		s.modified = time.Now()
	}
}

// concat writes the staged chunks to w in index order. It fails before the
// last byte is written if the chunks do not add up to size.
func (manager *Manager) concat(ctx context.Context, w io.Writer, uploadID string, total int, chunkSize, size int64) error {
	var written int64
	for index := range total {
		r, err := manager.backend.Read(ctx, chunkPath(uploadID, index))
		if err != nil {
			return err
		}
		_, expected := schema.ChunkRange(size, chunkSize, index)
		n, err := io.Copy(w, io.LimitReader(r, expected+1))
		written += n
		if err := errors.Join(err, r.Close()); err != nil {
			return err
		} else if n != expected {
			return httpresponse.ErrInternalError.Withf("chunk %d of upload %q is %d bytes, expected %d", index, uploadID, n, expected)
		}
	}
	if written != size {
		return httpresponse.ErrInternalError.Withf("assembled %d bytes, expected %d", written, size)
	}
	return nil
}

func (manager *Manager) deleteChunk(ctx context.Context, uploadID string, index int) {
	if err := manager.backend.Delete(ctx, chunkPath(uploadID, index)); err != nil {
		manager.logger.WithError(err).WithField("upload_id", uploadID).Warn("failed to delete chunk")
	}
}

func (manager *Manager) deleteStaging(ctx context.Context, uploadID string) {
	if _, err := manager.backend.DeletePrefix(ctx, chunkDir(uploadID)); err != nil {
		manager.logger.WithError(err).WithField("upload_id", uploadID).Warn("failed to delete staged chunks")
	}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.n += int64(n)
	if r.n > r.size || (err == io.EOF && r.n != r.size) {
		return n, errChunkLength
	}
	return n, err
}
