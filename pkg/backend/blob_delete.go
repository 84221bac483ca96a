package backend

import (
	"context"
	"io"
	"strings"

	// Packages
	blob "gocloud.dev/blob"
	gcerrors "gocloud.dev/gcerrors"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Delete removes a single object
func (b *blobbackend) Delete(ctx context.Context, p string) error {
	if err := b.bucket.Delete(ctx, b.storageKey(p)); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return blobErr(err, cleanPath(p))
	}
	return nil
}

// DeletePrefix removes every object under a directory
func (b *blobbackend) DeletePrefix(ctx context.Context, dir string) (int, error) {
	prefix := strings.TrimSuffix(b.storageKey(dir), "/")
	if prefix != "" {
		prefix = prefix + "/"
	}

	// Keep listing and deleting until no more objects match
	var deleted int
	for {
		iter := b.bucket.List(&blob.ListOptions{
			Prefix: prefix,
		})

		deletedInPass := 0
		for {
			obj, err := iter.Next(ctx)
			if err == io.EOF {
				break
			} else if err != nil {
				return deleted, blobErr(err, cleanPath(dir))
			}

			// Skip the prefix itself and directories
			if obj.Key == prefix || obj.IsDir {
				continue
			}
			if err := b.bucket.Delete(ctx, obj.Key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
				return deleted, blobErr(err, b.pathFromStorageKey(obj.Key))
			}
			deletedInPass++
		}

		// If no objects were deleted in this pass, we're done
		if deletedInPass == 0 {
			break
		}
		deleted += deletedInPass
	}

	// Return the number of objects deleted
	return deleted, nil
}
