package backend

import (
	"context"
	"io"
	"net/url"
	"time"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Backend stores committed files and staged chunks. Paths are slash-separated
// and absolute within the backend, for example "/docs/report.pdf".
type Backend interface {
	io.Closer

	// Name returns the name of the backend
	Name() string

	// URL returns the backend destination URL. The scheme, host (bucket/name),
	// and path (prefix/directory) identify the storage location.
	URL() *url.URL

	// Exists returns true if an object exists at the path
	Exists(ctx context.Context, path string) (bool, error)

	// Attributes returns the metadata for an object
	Attributes(ctx context.Context, path string) (*schema.File, error)

	// Write stores the content of r at the path, replacing any existing object
	Write(ctx context.Context, path string, r io.Reader, opts WriteOptions) (*schema.File, error)

	// Read returns the content at the path. Caller must close the reader.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes a single object. It is not an error if it does not exist.
	Delete(ctx context.Context, path string) error

	// DeletePrefix removes every object under a directory and returns the
	// number removed
	DeletePrefix(ctx context.Context, dir string) (int, error)

	// List returns every object under a directory, recursively
	List(ctx context.Context, dir string) ([]schema.File, error)
}

// WriteOptions are stored alongside an object
type WriteOptions struct {
	ContentType string
	ModTime     time.Time
	Meta        map[string]string
}
