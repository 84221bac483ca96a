package schema

////////////////////////////////////////////////////////////////////////////////
// TYPES

const (
	SchemaName = "upload"

	// ChunkPrefix is the storage prefix under which chunks are staged until
	// the upload is completed or aborted.
	ChunkPrefix = ".uploads"

	// AttrUploadID is the metadata key recording which upload session
	// produced an object.
	AttrUploadID = "upload-id"

	// DefaultChunkSize is the chunk size used when a client requests none.
	DefaultChunkSize = 40_000_000

	// MaxChunkSize is the largest chunk the server accepts.
	MaxChunkSize = 64 << 20
)
