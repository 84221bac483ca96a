package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"syscall"
	"testing"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	assert "github.com/stretchr/testify/assert"
)

func Test_Error_Classify(t *testing.T) {
	assert := assert.New(t)

	tests := []struct {
		err  error
		kind Kind
	}{
		{nil, KindUnknown},
		{context.Canceled, KindCancelled},
		{fmt.Errorf("%w: %w", ErrInitiate, context.DeadlineExceeded), KindConnectivity},
		{&url.Error{Op: "Put", URL: "http://localhost/", Err: syscall.ECONNREFUSED}, KindConnectivity},
		{httpresponse.ErrConflict.With("upload.txt"), KindConflict},
		{httpresponse.ErrBadRequest.With("chunk too large"), KindValidation},
		{httpresponse.ErrNotFound.With("upload-1"), KindValidation},
		{httpresponse.ErrInternalError.With("disk full"), KindServer},
		{errors.New("file already exists"), KindConflict},
		{errors.New("something odd"), KindServer},
		{&ChunkError{UploadID: "x", Index: 1, Attempts: 3, Err: syscall.ECONNRESET}, KindConnectivity},
		{httpresponse.ErrResponse{Type: "error", Code: 400, Reason: "invalid file name"}, KindValidation},
		{httpresponse.ErrResponse{Type: "error", Code: 404, Reason: "upload not found"}, KindValidation},
		{httpresponse.ErrResponse{Type: "error", Code: 409, Reason: "a.txt exists"}, KindConflict},
		{httpresponse.ErrResponse{Type: "error", Code: 503, Reason: "unavailable"}, KindConnectivity},
		{httpresponse.ErrResponse{Type: "error", Code: 500, Reason: "disk full"}, KindServer},
		{fmt.Errorf("%w: %w", ErrComplete, httpresponse.ErrResponse{Type: "error", Code: 400}), KindValidation},
	}
	for _, test := range tests {
		assert.Equal(test.kind, Classify(test.err), "%v", test.err)
	}
}

func Test_Error_Reason(t *testing.T) {
	assert := assert.New(t)

	assert.Empty(Reason(nil))
	assert.Equal("upload cancelled", Reason(context.Canceled))
	assert.Equal("a file with this name already exists", Reason(httpresponse.ErrConflict.With("a.txt")))
	assert.Contains(Reason(syscall.ECONNREFUSED), "network error")
	assert.Contains(Reason(httpresponse.ErrBadRequest.With("bad size")), "rejected by server")
	assert.Contains(Reason(httpresponse.ErrInternalError.With("boom")), "server error")

	assert.Equal("rejected by server: invalid file name", Reason(httpresponse.ErrResponse{Type: "error", Code: 400, Reason: "invalid file name"}))
	assert.Equal("server error: disk full", Reason(fmt.Errorf("%w: %w", ErrComplete, httpresponse.ErrResponse{Type: "error", Code: 500, Reason: "disk full"})))
	assert.Equal("network error: Bad Gateway", Reason(httpresponse.ErrResponse{Type: "error", Code: 502}))

	assert.Equal("a file with this name already exists", ReasonText("Conflict: exists"))
	assert.Equal("rejected by server: too big", ReasonText("too big"))
}

func Test_Error_ChunkError(t *testing.T) {
	assert := assert.New(t)
	cause := errors.New("reset")
	err := error(&ChunkError{UploadID: "u", Index: 2, Attempts: 3, Err: cause})

	assert.ErrorIs(err, ErrChunk)
	assert.ErrorIs(err, cause)
	assert.Contains(err.Error(), "chunk 2")
	assert.Contains(err.Error(), "3 attempt")

	var chunkErr *ChunkError
	if assert.ErrorAs(err, &chunkErr) {
		assert.Equal(3, chunkErr.Attempts)
	}
}
