package schema

import (
	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Status is the lifecycle state of a tracked upload entry.
type Status string

// Entry is the client-side bookkeeping record for one file in a batch.
type Entry struct {
	ID          string `json:"id"`
	Batch       string `json:"batch"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	Transferred int64  `json:"transferred"`
	Total       int64  `json:"total"`
	Progress    int    `json:"progress"` // 0-100
	Status      Status `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// Summary holds the aggregates derived from the current set of entries.
type Summary struct {
	Progress  int  `json:"progress"` // 0-100 across all entries
	Uploading bool `json:"uploading"`
	Completed int  `json:"completed"`
	Total     int  `json:"total"`
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Terminal returns true for done and error.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Active returns true for pending and uploading.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusUploading
}

// CanTransition reports whether a move from s to next is forward.
func (s Status) CanTransition(next Status) bool {
	return s.rank() < next.rank()
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (e Entry) String() string {
	return types.Stringify(e)
}

func (s Summary) String() string {
	return types.Stringify(s)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusUploading:
		return 1
	case StatusDone, StatusError:
		return 2
	default:
		return -1
	}
}
