package upload

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"time"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// File is a local file to be uploaded. Body must support random access so
// that individual chunks can be re-read when a send is retried.
type File struct {
	Name        string // destination name, relative to the upload destination
	Size        int64
	ModTime     time.Time
	ContentType string
	Body        io.ReaderAt
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

// wellKnownMIME maps file extensions that Go's mime package may not know about
// (especially on macOS) to their canonical MIME type.
var wellKnownMIME = map[string]string{
	".go":   "text/x-go",
	".md":   "text/markdown",
	".sh":   "text/x-shellscript",
	".py":   "text/x-python",
	".ts":   "text/typescript",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".toml": "application/toml",
	".mkv":  "video/x-matroska",
	".iso":  "application/x-iso9660-image",
}

var (
	ErrNotReaderAt = errors.New("file does not support random access")
)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// Open opens a local file for upload. The caller must call Close.
func Open(name string) (File, error) {
	f, err := os.Open(name)
	if err != nil {
		return File{}, err
	}
	info, err := f.Stat()
	if err != nil {
		return File{}, errors.Join(err, f.Close())
	}
	if !info.Mode().IsRegular() {
		return File{}, errors.Join(fmt.Errorf("%s: not a regular file", name), f.Close())
	}
	return File{
		Name:        filepath.Base(name),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: MIMEByExt(filepath.Ext(name)),
		Body:        f,
	}, nil
}

// Walk walks fsys from its root and opens every regular file. Names are the
// slash-separated paths relative to the root. filter is called for every
// entry; return false to skip it (and its subtree when it is a directory).
// On error, any files already opened are closed.
func Walk(fsys fs.FS, filter func(fs.DirEntry) bool) ([]File, error) {
	var files []File
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if filter != nil && !filter(d) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		f, err := fsys.Open(p)
		if err != nil {
			return err
		}
		r, ok := f.(io.ReaderAt)
		if !ok {
			return errors.Join(fmt.Errorf("%s: %w", p, ErrNotReaderAt), f.Close())
		}
		files = append(files, File{
			Name:        p,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			ContentType: MIMEByExt(path.Ext(p)),
			Body:        r,
		})
		return nil
	})
	if err != nil {
		return nil, errors.Join(err, CloseAll(files))
	}
	return files, nil
}

// Close the underlying body, if it can be closed
func (f File) Close() error {
	if c, ok := f.Body.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CloseAll closes every file and returns any errors
func CloseAll(files []File) error {
	var result error
	for _, f := range files {
		result = errors.Join(result, f.Close())
	}
	return result
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Reader returns a reader over the whole file
func (f File) Reader() io.Reader {
	return io.NewSectionReader(f.Body, 0, f.Size)
}

// Section returns a reader over length bytes starting at offset
func (f File) Section(offset, length int64) *io.SectionReader {
	return io.NewSectionReader(f.Body, offset, length)
}

// MIMEByExt returns the MIME type for a file extension, consulting wellKnownMIME
// first and then the system MIME database.
func MIMEByExt(ext string) string {
	if ct, ok := wellKnownMIME[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}
