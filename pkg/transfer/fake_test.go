package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	// Packages
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	logrus "github.com/sirupsen/logrus"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type putCall struct {
	index int
	data  []byte
}

// fakeTransport stores uploads in memory and fails on demand
type fakeTransport struct {
	sync.Mutex

	initErr     error
	chunkErr    func(index, attempt int) error
	completeErr error
	abortErr    error
	batchErr    error
	batchFailed map[string]string // name -> reason
	totalChunks func(total int) int

	sessions  map[string]schema.InitUploadRequest
	puts      []putCall
	attempts  map[int]int
	completes int
	aborts    []string
	abortCtx  error
	batches   [][]string
	inflight  int
	maxFlight int
	stored    map[string][]byte
}

////////////////////////////////////////////////////////////////////////////////
// HELPERS

var _ upload.Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sessions: make(map[string]schema.InitUploadRequest),
		attempts: make(map[int]int),
		stored:   make(map[string][]byte),
	}
}

func testOpts(opt ...Opt) []Opt {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return append([]Opt{
		WithLogger(logger),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, Unit: time.Millisecond}),
	}, opt...)
}

func testFile(name string, size int) upload.File {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	return upload.File{Name: name, Size: int64(size), Body: bytesReaderAt(data)}
}

type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

////////////////////////////////////////////////////////////////////////////////
// CHUNK TRANSPORT

func (f *fakeTransport) InitUpload(_ context.Context, req schema.InitUploadRequest) (*schema.InitUploadResponse, error) {
	f.Lock()
	defer f.Unlock()
	if f.initErr != nil {
		return nil, f.initErr
	}
	id := fmt.Sprintf("upload-%d", len(f.sessions)+1)
	f.sessions[id] = req
	total := schema.TotalChunks(req.FileSize, req.ChunkSize)
	if f.totalChunks != nil {
		total = f.totalChunks(total)
	}
	return &schema.InitUploadResponse{
		UploadID:    id,
		ChunkSize:   req.ChunkSize,
		TotalChunks: total,
	}, nil
}

func (f *fakeTransport) PutChunk(_ context.Context, uploadID string, index int, body io.Reader, size int64) (*schema.ChunkResponse, error) {
	f.Lock()
	f.inflight++
	f.maxFlight = max(f.maxFlight, f.inflight)
	f.attempts[index]++
	attempt := f.attempts[index]
	f.Unlock()

	// Hold the chunk in flight briefly
	time.Sleep(time.Millisecond)
	data, err := io.ReadAll(body)

	f.Lock()
	defer f.Unlock()
	f.inflight--
	if err != nil {
		return nil, err
	} else if int64(len(data)) != size {
		return nil, fmt.Errorf("chunk %d: read %d bytes, expected %d", index, len(data), size)
	}
	if f.chunkErr != nil {
		if err := f.chunkErr(index, attempt); err != nil {
			return nil, err
		}
	}
	f.puts = append(f.puts, putCall{index: index, data: data})
	f.stored[uploadID] = append(f.stored[uploadID], data...)
	return &schema.ChunkResponse{UploadID: uploadID, ChunkIndex: index, ChunksReceived: index + 1}, nil
}

func (f *fakeTransport) CompleteUpload(_ context.Context, uploadID string) (*schema.CompleteUploadResponse, error) {
	f.Lock()
	defer f.Unlock()
	f.completes++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	req := f.sessions[uploadID]
	return &schema.CompleteUploadResponse{
		File: schema.File{
			Name: req.FileName,
			Path: req.Destination + "/" + req.FileName,
			Size: int64(len(f.stored[uploadID])),
		},
	}, nil
}

func (f *fakeTransport) AbortUpload(ctx context.Context, uploadID string) error {
	f.Lock()
	defer f.Unlock()
	f.aborts = append(f.aborts, uploadID)
	f.abortCtx = ctx.Err()
	return f.abortErr
}

////////////////////////////////////////////////////////////////////////////////
// BATCH TRANSPORT

func (f *fakeTransport) UploadFiles(_ context.Context, destination string, _ schema.ConflictPolicy, files []upload.File, fn upload.ProgressFunc) (*schema.UploadFilesResponse, error) {
	var total int64
	names := make([]string, 0, len(files))
	for _, file := range files {
		total += file.Size
		names = append(names, file.Name)
	}

	f.Lock()
	f.batches = append(f.batches, names)
	batchErr, failed := f.batchErr, f.batchFailed
	f.Unlock()

	if fn != nil {
		fn(total/2, total)
	}
	if batchErr != nil {
		return nil, batchErr
	}
	if fn != nil {
		fn(total, total)
	}

	response := new(schema.UploadFilesResponse)
	for _, file := range files {
		if reason, exists := failed[file.Name]; exists {
			response.Failed = append(response.Failed, schema.FailedFile{Name: file.Name, Reason: reason})
		} else {
			response.Uploaded = append(response.Uploaded, schema.File{Name: file.Name, Path: destination + "/" + file.Name, Size: file.Size})
		}
	}
	return response, nil
}
