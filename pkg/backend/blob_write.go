package backend

import (
	"context"
	"io"
	"maps"
	"time"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	blob "gocloud.dev/blob"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Write stores the content of r at the path. If reading r fails, the write
// is aborted and any existing object at the path is unchanged.
func (b *blobbackend) Write(ctx context.Context, p string, r io.Reader, opts WriteOptions) (*schema.File, error) {
	sk := b.storageKey(p)
	p = cleanPath(p)

	// Clone metadata to avoid mutating the caller's map
	var meta map[string]string
	if opts.Meta != nil || !opts.ModTime.IsZero() {
		meta = make(map[string]string, len(opts.Meta)+1)
		maps.Copy(meta, opts.Meta)
	}
	if !opts.ModTime.IsZero() {
		meta[attrModTime] = opts.ModTime.UTC().Format(time.RFC3339)
	}

	// Write the object. Cancelling the writer's context before Close aborts
	// the write, so an existing object at the path is left untouched.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if w, err := b.bucket.NewWriter(wctx, sk, &blob.WriterOptions{
		ContentType: opts.ContentType,
		Metadata:    meta,
	}); err != nil {
		return nil, blobErr(err, p)
	} else if _, err := io.Copy(w, r); err != nil {
		cancel()
		w.Close()
		return nil, blobErr(err, p)
	} else if err := w.Close(); err != nil {
		return nil, blobErr(err, p)
	}

	// Get attributes to return
	attrs, err := b.bucket.Attributes(ctx, sk)
	if err != nil {
		// The write succeeded, so return what is known rather than an error
		return &schema.File{
			Path:        p,
			ContentType: opts.ContentType,
			ModTime:     opts.ModTime,
		}, nil
	}

	// Return success
	return b.attrsToFile(p, attrs), nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func parseModTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339, v)
}
