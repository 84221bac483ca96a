package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Kind classifies a terminal failure for presentation to the user
type Kind int

// ChunkError is returned when a chunk could not be sent within the retry
// policy. It unwraps to both ErrChunk and the last transport error.
type ChunkError struct {
	UploadID string
	Index    int
	Attempts int
	Err      error
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	KindUnknown Kind = iota
	KindCancelled
	KindConnectivity
	KindValidation
	KindConflict
	KindServer
)

var (
	ErrInitiate = errors.New("upload initiation failed")
	ErrChunk    = errors.New("chunk transfer failed")
	ErrComplete = errors.New("upload completion failed")
	ErrProtocol = errors.New("unexpected server response")
	ErrRejected = errors.New("rejected by server")
)

// conflictText are the fragments which identify a name collision when the
// server reports it only as text
var conflictText = []string{
	"already exists",
	"conflict",
	"name collision",
}

///////////////////////////////////////////////////////////////////////////////
// ERROR

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d of upload %q failed after %d attempt(s): %v", e.Index, e.UploadID, e.Attempts, e.Err)
}

func (e *ChunkError) Unwrap() []error {
	return []error{ErrChunk, e.Err}
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Classify returns the kind of a failure
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	// HTTP status codes returned by the server
	if status, reason, ok := statusOf(err); ok {
		switch {
		case status == http.StatusConflict:
			return KindConflict
		case status == http.StatusRequestTimeout, status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
			return KindConnectivity
		case status >= 400 && status < 500:
			if IsConflictText(reason) {
				return KindConflict
			}
			return KindValidation
		case status >= 500:
			return KindServer
		}
	}

	switch {
	case errors.Is(err, httpresponse.ErrConflict):
		return KindConflict
	case errors.Is(err, httpresponse.ErrBadRequest),
		errors.Is(err, httpresponse.ErrNotFound),
		errors.Is(err, httpresponse.ErrForbidden):
		if IsConflictText(err.Error()) {
			return KindConflict
		}
		return KindValidation
	case errors.Is(err, httpresponse.ErrInternalError), errors.Is(err, httpresponse.ErrNotImplemented):
		return KindServer
	}

	// Transport failures
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.As(err, &netErr),
		errors.As(err, &urlErr):
		return KindConnectivity
	}

	// Fall back to the text of the error
	if IsConflictText(err.Error()) {
		return KindConflict
	}
	return KindServer
}

// IsConflictText reports whether a server-provided reason describes a name
// collision
func IsConflictText(reason string) bool {
	reason = strings.ToLower(reason)
	for _, text := range conflictText {
		if strings.Contains(reason, text) {
			return true
		}
	}
	return false
}

// Reason returns a human-readable reason for a failure
func Reason(err error) string {
	if err == nil {
		return ""
	}
	switch Classify(err) {
	case KindCancelled:
		return "upload cancelled"
	case KindConflict:
		return "a file with this name already exists"
	case KindConnectivity:
		return "network error: " + reasonOf(err)
	case KindValidation:
		return "rejected by server: " + reasonOf(err)
	default:
		return "server error: " + reasonOf(err)
	}
}

// ReasonText returns a human-readable reason for a failure which the server
// reported only as text
func ReasonText(text string) string {
	if IsConflictText(text) {
		return "a file with this name already exists"
	}
	return "rejected by server: " + text
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// statusOf returns the HTTP status and the server's reason for an error
// which carries one. The client returns an ErrResponse when the server sent
// a JSON error body, and an Err otherwise.
func statusOf(err error) (int, string, bool) {
	var resp httpresponse.ErrResponse
	if errors.As(err, &resp) && resp.Code != 0 {
		reason := resp.Reason
		if reason == "" {
			reason = http.StatusText(resp.Code)
		}
		return resp.Code, reason, true
	}
	var code httpresponse.Err
	if errors.As(err, &code) {
		return int(code), err.Error(), true
	}
	return 0, "", false
}

// reasonOf returns the server's reason for an error, or the error text
func reasonOf(err error) string {
	if _, reason, ok := statusOf(err); ok {
		return reason
	}
	return err.Error()
}

func (k Kind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled"
	case KindConnectivity:
		return "connectivity"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}
