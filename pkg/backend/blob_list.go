package backend

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	blob "gocloud.dev/blob"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// List returns every object under a directory, recursively
func (b *blobbackend) List(ctx context.Context, dir string) ([]schema.File, error) {
	prefix := strings.TrimSuffix(b.storageKey(dir), "/")
	if prefix != "" {
		prefix = prefix + "/"
	}

	var result []schema.File
	iter := b.bucket.List(&blob.ListOptions{
		Prefix: prefix,
	})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, blobErr(err, cleanPath(dir))
		}

		// Skip the prefix itself and directories
		if obj.Key == prefix || obj.IsDir {
			continue
		}

		p := b.pathFromStorageKey(obj.Key)
		file := schema.File{
			Name:    path.Base(p),
			Path:    p,
			Size:    obj.Size,
			ModTime: obj.ModTime,
		}
		if len(obj.MD5) > 0 {
			file.ETag = fmt.Sprintf("%x", obj.MD5)
		}
		result = append(result, file)
	}

	// Return success
	return result, nil
}
