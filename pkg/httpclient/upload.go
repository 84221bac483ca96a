package httpclient

import (
	"context"
	"io"
	"net/http"
	"strconv"

	// Packages
	client "github.com/mutablelogic/go-client"
	types "github.com/mutablelogic/go-server/pkg/types"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// InitUpload starts a chunked upload session and returns the chunk layout
// accepted by the server.
func (c *Client) InitUpload(ctx context.Context, req schema.InitUploadRequest) (*schema.InitUploadResponse, error) {
	payload, err := client.NewJSONRequest(req)
	if err != nil {
		return nil, err
	}
	var response schema.InitUploadResponse
	if err := c.DoWithContext(ctx, payload, &response, client.OptPath("uploads", "init")); err != nil {
		return nil, err
	}
	return &response, nil
}

// PutChunk sends one chunk of an upload. size is not sent; the server
// checks the length of the body it receives.
func (c *Client) PutChunk(ctx context.Context, uploadID string, index int, body io.Reader, size int64) (*schema.ChunkResponse, error) {
	var response schema.ChunkResponse
	if err := c.DoWithContext(ctx, &chunkPayload{body: body}, &response,
		client.OptPath("uploads", uploadID, "chunks", strconv.Itoa(index)),
		client.OptNoTimeout(),
	); err != nil {
		return nil, err
	}
	return &response, nil
}

// CompleteUpload finalizes a session once every chunk has been sent and
// returns the stored file.
func (c *Client) CompleteUpload(ctx context.Context, uploadID string) (*schema.CompleteUploadResponse, error) {
	var response schema.CompleteUploadResponse
	if err := c.DoWithContext(ctx,
		client.NewRequestEx(http.MethodPost, types.ContentTypeJSON),
		&response,
		client.OptPath("uploads", uploadID, "complete"),
		client.OptNoTimeout(),
	); err != nil {
		return nil, err
	}
	return &response, nil
}

// AbortUpload discards a session and its staged chunks.
func (c *Client) AbortUpload(ctx context.Context, uploadID string) error {
	return c.DoWithContext(ctx,
		client.NewRequestEx(http.MethodDelete, ""),
		nil,
		client.OptPath("uploads", uploadID),
	)
}

// UploadStatus returns the server-side state of a session.
func (c *Client) UploadStatus(ctx context.Context, uploadID string) (*schema.UploadStatus, error) {
	var response schema.UploadStatus
	if err := c.DoWithContext(ctx, client.NewRequest(), &response, client.OptPath("uploads", uploadID)); err != nil {
		return nil, err
	}
	return &response, nil
}
