package schema

import (
	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// InitUploadRequest starts a chunked upload session.
type InitUploadRequest struct {
	FileName       string         `json:"file_name"`
	FileSize       int64          `json:"file_size"`
	ChunkSize      int64          `json:"chunk_size"`
	Destination    string         `json:"destination"`
	ConflictPolicy ConflictPolicy `json:"conflict_policy,omitempty"`
}

// InitUploadResponse carries the session identifier and the chunk layout the
// server accepted, which may differ from the requested chunk size.
type InitUploadResponse struct {
	UploadID    string `json:"upload_id"`
	ChunkSize   int64  `json:"chunk_size"`
	TotalChunks int    `json:"total_chunks"`
}

// ChunkResponse acknowledges a single chunk.
type ChunkResponse struct {
	UploadID       string `json:"upload_id"`
	ChunkIndex     int    `json:"chunk_index"`
	ChunksReceived int    `json:"chunks_received"`
}

// CompleteUploadResponse returns the finalized file record.
type CompleteUploadResponse struct {
	File File `json:"file"`
}

// UploadStatus is the server-side state of an upload session.
type UploadStatus struct {
	UploadID       string `json:"upload_id"`
	FileName       string `json:"file_name"`
	FileSize       int64  `json:"file_size"`
	Destination    string `json:"destination"`
	ChunkSize      int64  `json:"chunk_size"`
	TotalChunks    int    `json:"total_chunks"`
	ChunksReceived int    `json:"chunks_received"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ChunkRange returns the byte offset and length of chunk index for a file of
// size bytes split into chunks of chunkSize bytes. The last chunk may be
// shorter than chunkSize.
func ChunkRange(size, chunkSize int64, index int) (offset, length int64) {
	offset = int64(index) * chunkSize
	length = min(chunkSize, size-offset)
	return offset, max(length, 0)
}

// TotalChunks returns the number of chunks required for size bytes.
func TotalChunks(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (r InitUploadRequest) String() string {
	return types.Stringify(r)
}

func (r InitUploadResponse) String() string {
	return types.Stringify(r)
}

func (r ChunkResponse) String() string {
	return types.Stringify(r)
}

func (r CompleteUploadResponse) String() string {
	return types.Stringify(r)
}

func (r UploadStatus) String() string {
	return types.Stringify(r)
}
