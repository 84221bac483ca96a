package schema

import (
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// File is the metadata of an uploaded file, as returned by the server once
// the file has been committed to storage.
type File struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"modtime,omitzero"`
	ContentType string    `json:"type,omitempty"`
	ETag        string    `json:"etag,omitempty"`
}

// FailedFile is a file which the single-shot path could not store. A
// conflicting name is reported with a reason containing "already exists".
type FailedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// UploadFilesResponse is the response to a single-shot multipart upload.
type UploadFilesResponse struct {
	Uploaded []File       `json:"uploaded"`
	Failed   []FailedFile `json:"failed"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (f File) String() string {
	return types.Stringify(f)
}

func (f FailedFile) String() string {
	return types.Stringify(f)
}

func (r UploadFilesResponse) String() string {
	return types.Stringify(r)
}
