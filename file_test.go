package upload_test

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	// Packages
	upload "github.com/mutablelogic/go-upload"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

func Test_Walk(t *testing.T) {
	assert := assert.New(t)

	fsys := fstest.MapFS{
		"a.txt":          {Data: []byte("hello")},
		"sub/b.md":       {Data: []byte("world")},
		"sub/deep/c.bin": {Data: []byte("deep")},
		".hidden/d.txt":  {Data: []byte("skip")},
	}
	files, err := upload.Walk(fsys, func(d fs.DirEntry) bool {
		return d.Name() == "." || !strings.HasPrefix(d.Name(), ".")
	})
	require.NoError(t, err)
	defer upload.CloseAll(files)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal([]string{"a.txt", "sub/b.md", "sub/deep/c.bin"}, names)
	assert.Equal(int64(5), files[0].Size)
	assert.Equal("text/markdown", files[1].ContentType)

	data, err := io.ReadAll(files[1].Reader())
	assert.NoError(err)
	assert.Equal("world", string(data))

	data, err = io.ReadAll(files[0].Section(1, 3))
	assert.NoError(err)
	assert.Equal("ell", string(data))
}

func Test_Open(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	p := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(p, []byte("0123456789"), 0o644))

	f, err := upload.Open(p)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal("report.txt", f.Name)
	assert.Equal(int64(10), f.Size)
	assert.False(f.ModTime.IsZero())

	data, err := io.ReadAll(f.Section(8, 2))
	assert.NoError(err)
	assert.Equal("89", string(data))

	_, err = upload.Open(dir)
	assert.Error(err)
	_, err = upload.Open(filepath.Join(dir, "missing"))
	assert.Error(err)
}
