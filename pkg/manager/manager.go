package manager

import (
	"context"
	"errors"
	"sync"

	// Packages
	backend "github.com/mutablelogic/go-upload/pkg/backend"
	notify "github.com/mutablelogic/go-upload/pkg/notify"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Manager is the server side of the upload protocol. It holds chunked upload
// sessions in memory and stages their chunks in the backend until they are
// completed or aborted.
type Manager struct {
	opts
	mu       sync.Mutex
	sessions map[string]*session

	// paths reserved by sessions which are being completed
	committing map[string]string
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a new upload manager. A backend is required.
func New(ctx context.Context, opts ...Opt) (*Manager, error) {
	self := new(Manager)

	// Apply options
	if opt, err := applyOpts(opts); err != nil {
		return nil, err
	} else {
		self.opts = opt
	}
	self.sessions = make(map[string]*session)
	self.committing = make(map[string]string)

	// Return success
	return self, nil
}

// Close the backend
func (manager *Manager) Close() error {
	var result error
	if manager.backend != nil {
		result = errors.Join(result, manager.backend.Close())
	}

	// Return any errors
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Backend returns the storage backend
func (manager *Manager) Backend() backend.Backend {
	return manager.backend
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func spanManagerName(op string) string {
	return schema.SchemaName + ".manager." + op
}

// notify publishes a completion event; failures are logged
func (manager *Manager) notify(ctx context.Context, uploadID string, file schema.File) {
	if manager.notifier == nil {
		return
	}
	if err := manager.notifier.Notify(ctx, notify.Completed(uploadID, file)); err != nil {
		manager.logger.WithError(err).WithField("path", file.Path).Warn("notification failed")
	}
}
