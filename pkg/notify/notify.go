// Package notify publishes upload lifecycle events to external consumers.
package notify

import (
	"context"
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Event is published when an upload completes
type Event struct {
	Event    string      `json:"event"`
	UploadID string      `json:"upload_id,omitempty"`
	File     schema.File `json:"file"`
	Time     time.Time   `json:"time"`
}

// Notifier publishes events. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to a Notifier
type NotifierFunc func(ctx context.Context, event Event) error

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	EventUploadCompleted = "upload.completed"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Completed returns the event for a committed file. uploadID is empty for
// files stored by the single-shot path.
func Completed(uploadID string, file schema.File) Event {
	return Event{
		Event:    EventUploadCompleted,
		UploadID: uploadID,
		File:     file,
		Time:     time.Now().UTC(),
	}
}

func (fn NotifierFunc) Notify(ctx context.Context, event Event) error {
	return fn(ctx, event)
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (e Event) String() string {
	return types.Stringify(e)
}
