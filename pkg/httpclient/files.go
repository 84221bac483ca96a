package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"sync"

	// Packages
	client "github.com/mutablelogic/go-client"
	types "github.com/mutablelogic/go-server/pkg/types"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// filesUpload is encoded as a streaming multipart payload. Each types.File
// is written as a separate "files" part.
type filesUpload struct {
	Path           string       `json:"path"`
	ConflictPolicy string       `json:"conflict_policy,omitempty"`
	Files          []types.File `json:"files"`
}

// requestProgress counts the bytes read across every part of a request
type requestProgress struct {
	sync.Mutex
	written  int64
	lastEmit int64
	total    int64
	fn       upload.ProgressFunc
}

// progressReadCloser reports bytes read from one part to the request counter
type progressReadCloser struct {
	r io.Reader
	p *requestProgress
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

// progressInterval is the number of bytes between progress callbacks
const progressInterval int64 = 64 * 1024

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// UploadFiles sends small files to a destination directory in a single
// multipart request. File names are relative to the destination. fn, which
// may be nil, receives the bytes sent across the whole request. Files the
// server could not store are listed in the failed part of the response.
func (c *Client) UploadFiles(ctx context.Context, destination string, policy schema.ConflictPolicy, files []upload.File, fn upload.ProgressFunc) (*schema.UploadFilesResponse, error) {
	progress := &requestProgress{fn: fn}
	for _, f := range files {
		progress.total += f.Size
	}

	// Build the parts. Bodies are read lazily as the request is sent.
	parts := make([]types.File, 0, len(files))
	for _, f := range files {
		h := textproto.MIMEHeader{}
		if mt := f.ModTime; !mt.IsZero() {
			h.Set(types.ContentModifiedHeader, mt.UTC().Format(http.TimeFormat))
		}
		h.Set(types.ContentLengthHeader, strconv.FormatInt(f.Size, 10))
		contentType := f.ContentType
		if contentType == "" {
			contentType = types.ContentTypeBinary
		}
		parts = append(parts, types.File{
			Path:        f.Name,
			Body:        &progressReadCloser{r: f.Reader(), p: progress},
			ContentType: contentType,
			Header:      h,
		})
	}

	payload, err := client.NewStreamingMultipartRequest(&filesUpload{
		Path:           types.NormalisePath(destination),
		ConflictPolicy: string(policy),
		Files:          parts,
	}, types.ContentTypeJSON)
	if err != nil {
		return nil, err
	}

	var response schema.UploadFilesResponse
	if err := c.DoWithContext(ctx, payload, &response,
		client.OptPath("files", "upload"),
		client.OptNoTimeout(),
	); err != nil {
		return nil, err
	}

	// Report the whole request as sent
	progress.done()

	// Return success
	return &response, nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (p *requestProgress) add(n int64) {
	if p.fn == nil {
		return
	}
	p.Lock()
	p.written += n
	emit := p.written-p.lastEmit >= progressInterval || p.written >= p.total
	if emit {
		p.lastEmit = p.written
	}
	written, total := min(p.written, p.total), p.total
	p.Unlock()
	if emit {
		p.fn(written, total)
	}
}

func (p *requestProgress) done() {
	if p.fn == nil {
		return
	}
	p.Lock()
	emit := p.lastEmit < p.total
	p.written, p.lastEmit = p.total, p.total
	p.Unlock()
	if emit {
		p.fn(p.total, p.total)
	}
}

func (r *progressReadCloser) Read(b []byte) (int, error) {
	n, err := r.r.Read(b)
	if n > 0 {
		r.p.add(int64(n))
	}
	return n, err
}

// Close does not close the file; the caller owns it
func (r *progressReadCloser) Close() error {
	return nil
}
