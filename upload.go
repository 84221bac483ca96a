package upload

import (
	"context"
	"io"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// ProgressFunc receives cumulative bytes transferred and the total bytes
// expected for the operation it is attached to.
type ProgressFunc func(transferred, total int64)

////////////////////////////////////////////////////////////////////////////////
// INTERFACES

// ChunkTransport is the wire contract for the chunked upload protocol
type ChunkTransport interface {
	// Start a session for one file
	InitUpload(context.Context, schema.InitUploadRequest) (*schema.InitUploadResponse, error)

	// Send one chunk of size bytes. The body must be re-readable by the caller
	// if the send is to be retried.
	PutChunk(ctx context.Context, uploadID string, index int, body io.Reader, size int64) (*schema.ChunkResponse, error)

	// Finalize the session once all chunks have been acknowledged
	CompleteUpload(ctx context.Context, uploadID string) (*schema.CompleteUploadResponse, error)

	// Release the server-side session
	AbortUpload(ctx context.Context, uploadID string) error
}

// BatchTransport is the single-shot path, which sends a set of small files
// in one multipart request and reports progress for the whole request.
type BatchTransport interface {
	UploadFiles(ctx context.Context, destination string, policy schema.ConflictPolicy, files []File, fn ProgressFunc) (*schema.UploadFilesResponse, error)
}

// Transport implements both paths
type Transport interface {
	ChunkTransport
	BatchTransport
}
