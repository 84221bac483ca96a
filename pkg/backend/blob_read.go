package backend

import (
	"context"
	"io"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	gcerrors "gocloud.dev/gcerrors"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Exists returns true if an object exists at the path
func (b *blobbackend) Exists(ctx context.Context, p string) (bool, error) {
	if _, err := b.bucket.Attributes(ctx, b.storageKey(p)); err == nil {
		return true, nil
	} else if gcerrors.Code(err) == gcerrors.NotFound {
		return false, nil
	} else {
		return false, blobErr(err, cleanPath(p))
	}
}

// Attributes returns the metadata for an object
func (b *blobbackend) Attributes(ctx context.Context, p string) (*schema.File, error) {
	attrs, err := b.bucket.Attributes(ctx, b.storageKey(p))
	if err != nil {
		return nil, blobErr(err, cleanPath(p))
	}
	return b.attrsToFile(cleanPath(p), attrs), nil
}

// Read returns the content of an object
func (b *blobbackend) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	r, err := b.bucket.NewReader(ctx, b.storageKey(p), nil)
	if err != nil {
		return nil, blobErr(err, cleanPath(p))
	}
	return r, nil
}
