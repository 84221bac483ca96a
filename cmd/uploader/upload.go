package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	// Packages
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	tracker "github.com/mutablelogic/go-upload/pkg/tracker"
	transfer "github.com/mutablelogic/go-upload/pkg/transfer"
	otel "go.opentelemetry.io/otel"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type UploadCommands struct {
	Upload UploadCommand `cmd:"" name:"upload" help:"Upload files and directories." group:"UPLOAD"`
	Status StatusCommand `cmd:"" name:"status" help:"Show the state of an upload session." group:"UPLOAD"`
	Abort  AbortCommand  `cmd:"" name:"abort" help:"Abort an upload session." group:"UPLOAD"`
}

type UploadCommand struct {
	Destination string   `arg:"" help:"Destination directory on the server (e.g. /media)"`
	Paths       []string `arg:"" type:"path" help:"Files or directories to upload"`
	Policy      string   `name:"policy" enum:"none,rename,overwrite,skip" default:"none" help:"What to do when a file already exists (none, rename, overwrite, skip)"`
	ChunkSize   int64    `name:"chunk-size" default:"40000000" help:"Chunk size requested from the server, in bytes"`
	Threshold   int64    `name:"threshold" default:"80000000" help:"Files at or above this size are sent in chunks, in bytes"`
	Concurrency int      `name:"concurrency" default:"2" help:"Number of transfers in flight at once"`
	Retries     int      `name:"retries" default:"3" help:"Attempts per chunk"`
	Hidden      bool     `name:"hidden" help:"Include hidden files and directories"`
}

type StatusCommand struct {
	UploadID string `arg:"" name:"upload-id" help:"Upload session identifier"`
}

type AbortCommand struct {
	UploadID string `arg:"" name:"upload-id" help:"Upload session identifier"`
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *UploadCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	policy, err := schema.ParseConflictPolicy(cmd.Policy)
	if err != nil {
		return err
	}

	// Open the local files
	files, err := cmd.open()
	if err != nil {
		return err
	}
	defer upload.CloseAll(files)
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to upload")
		return nil
	}

	// Create the tracker and coordinator
	entries, err := tracker.New(tracker.WithIdle(0), tracker.WithLogger(app.Logger()))
	if err != nil {
		return err
	}
	defer entries.Close()
	opts := []transfer.Opt{
		transfer.WithChunkSize(cmd.ChunkSize),
		transfer.WithThreshold(cmd.Threshold),
		transfer.WithConcurrency(cmd.Concurrency),
		transfer.WithRetryPolicy(transfer.RetryPolicy{MaxAttempts: cmd.Retries, Unit: transfer.DefaultRetryPolicy().Unit}),
		transfer.WithLogger(app.Logger()),
	}
	if app.Trace {
		opts = append(opts, transfer.WithTracer(otel.Tracer(schema.SchemaName)))
	}
	coordinator, err := transfer.NewCoordinator(c, entries, opts...)
	if err != nil {
		return err
	}

	// Render progress while the upload runs
	tty := isTerminal(os.Stderr)
	ctx, cancel := context.WithCancel(app.ctx)
	var wg sync.WaitGroup
	if tty {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snapshot := range entries.Subscribe(ctx) {
				renderProgress(snapshot)
			}
		}()
	}
	result, err := coordinator.Upload(app.ctx, cmd.Destination, policy, files)
	cancel()
	wg.Wait()
	if err != nil {
		return err
	}

	// Print one line per file
	count := len(result.Outcomes)
	w := len(fmt.Sprint(count))
	for i, outcome := range result.Outcomes {
		fileTag := fmt.Sprintf("[%*d/%d]", w, i+1, count)
		switch {
		case outcome.Err != nil && tty:
			fmt.Fprintf(os.Stderr, "\r\x1b[K  %s  %6s  \x1b[1m%s\x1b[0m: %s\n", fileTag, "failed", outcome.Name, outcome.Reason)
		case outcome.Err != nil:
			fmt.Fprintf(os.Stderr, "  %s  %6s  %s: %s\n", fileTag, "failed", outcome.Name, outcome.Reason)
		case tty:
			fmt.Fprintf(os.Stderr, "\r\x1b[K  %s  %6s  \x1b[1m%s\x1b[0m\n", fileTag, humanSize(outcome.File.Size), outcome.File.Path)
		default:
			fmt.Fprintf(os.Stderr, "  %s  %6s  %s\n", fileTag, humanSize(outcome.File.Size), outcome.File.Path)
		}
	}

	failed := len(result.Failed())
	fmt.Fprintf(os.Stderr, "%d file(s) uploaded", count-failed)
	if failed > 0 {
		fmt.Fprintf(os.Stderr, ", %d failed\n", failed)
		return fmt.Errorf("%d of %d file(s) failed", failed, count)
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

func (cmd *StatusCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	status, err := c.UploadStatus(app.ctx, cmd.UploadID)
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}

func (cmd *AbortCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	return c.AbortUpload(app.ctx, cmd.UploadID)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// open returns every file to upload. A directory contributes its files with
// names relative to the directory itself.
func (cmd *UploadCommand) open() ([]upload.File, error) {
	var result []upload.File
	for _, p := range cmd.Paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.Join(err, upload.CloseAll(result))
		}
		if !info.IsDir() {
			file, err := upload.Open(p)
			if err != nil {
				return nil, errors.Join(err, upload.CloseAll(result))
			}
			result = append(result, file)
			continue
		}
		files, err := upload.Walk(os.DirFS(p), cmd.filter)
		if err != nil {
			return nil, errors.Join(err, upload.CloseAll(result))
		}
		prefix := filepath.Base(filepath.Clean(p))
		for i := range files {
			files[i].Name = path.Join(prefix, files[i].Name)
		}
		result = append(result, files...)
	}
	return result, nil
}

func (cmd *UploadCommand) filter(d fs.DirEntry) bool {
	if !cmd.Hidden && strings.HasPrefix(d.Name(), ".") && d.Name() != "." {
		return false
	}
	return true
}

// renderProgress writes a single status line for a snapshot of entries
func renderProgress(snapshot []schema.Entry) {
	var current *schema.Entry
	var done int
	var transferred, total int64
	for i := range snapshot {
		entry := &snapshot[i]
		transferred += entry.Transferred
		total += entry.Total
		if entry.Status.Terminal() {
			done++
		} else if current == nil && entry.Status == schema.StatusUploading {
			current = entry
		}
	}
	if current == nil {
		return
	}
	count := len(snapshot)
	w := len(fmt.Sprint(count))
	fileTag := fmt.Sprintf("[%*d/%d]", w, done+1, count)
	pct := 0
	if total > 0 {
		pct = int(transferred * 100 / total)
	}
	fmt.Fprintf(os.Stderr, "\r\x1b[K  %s  %5d%%  \x1b[1m%s\x1b[0m", fileTag, pct, current.Name)
}

func humanSize(n int64) string {
	const (
		KB = int64(1024)
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)
	switch {
	case n >= 1000*GB:
		return fmt.Sprintf("%.1fT", float64(n)/float64(TB))
	case n >= 1000*MB:
		return fmt.Sprintf("%.1fG", float64(n)/float64(GB))
	case n >= 1000*KB:
		return fmt.Sprintf("%.1fM", float64(n)/float64(MB))
	case n >= KB:
		return fmt.Sprintf("%.1fK", float64(n)/float64(KB))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
