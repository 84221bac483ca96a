package manager

import (
	"context"
	"errors"
	"io"
	"path"
	"time"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	upload "github.com/mutablelogic/go-upload"
	backend "github.com/mutablelogic/go-upload/pkg/backend"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	logrus "github.com/sirupsen/logrus"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// File is one part of a single-shot upload
type File struct {
	Name        string // relative to the destination
	Body        io.Reader
	ContentType string
	ModTime     time.Time
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// CreateFiles stores files under destination in a single operation. A file
// which cannot be stored is reported in the failed list and does not prevent
// the others from being stored. An error is returned only when the request
// as a whole is invalid.
func (manager *Manager) CreateFiles(ctx context.Context, destination string, policy schema.ConflictPolicy, files []File) (_ *schema.UploadFilesResponse, result error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("CreateFiles"))
	defer func() { endFunc(result) }()

	// Validate the request
	if isStaging(destination) {
		return nil, httpresponse.ErrBadRequest.Withf("%q is reserved", schema.ChunkPrefix)
	} else if len(files) == 0 {
		return nil, httpresponse.ErrBadRequest.With("no files")
	}

	response := &schema.UploadFilesResponse{
		Uploaded: []schema.File{},
		Failed:   []schema.FailedFile{},
	}
	for _, f := range files {
		if file, err := manager.createFile(child, destination, policy, f); err != nil {
			// A cancelled request fails as a whole
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			response.Failed = append(response.Failed, schema.FailedFile{
				Name:   f.Name,
				Reason: err.Error(),
			})
			manager.logger.WithError(err).WithField("file", f.Name).Debug("file rejected")
		} else {
			response.Uploaded = append(response.Uploaded, *file)
		}
	}

	// Return success
	return response, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (manager *Manager) createFile(ctx context.Context, destination string, policy schema.ConflictPolicy, f File) (*schema.File, error) {
	target, err := targetPath(destination, f.Name)
	if err != nil {
		return nil, err
	}

	// Resolve and hold the final path
	target, err = manager.reserve(ctx, target, policy, target)
	if err != nil {
		return nil, err
	}
	defer manager.release(target)

	// Write the file
	contentType := f.ContentType
	if contentType == "" {
		contentType = upload.MIMEByExt(path.Ext(target))
	}
	file, err := manager.backend.Write(ctx, target, f.Body, backend.WriteOptions{
		ContentType: contentType,
		ModTime:     f.ModTime,
	})
	if err != nil {
		return nil, err
	}
	file.Name = f.Name

	manager.logger.WithFields(logrus.Fields{
		"path": file.Path,
		"size": file.Size,
	}).Debug("file stored")
	manager.notify(ctx, "", *file)

	// Return success
	return file, nil
}
