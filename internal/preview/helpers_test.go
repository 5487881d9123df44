package preview

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flmngr/flmngr-server-go/internal/storage/local"
)

// countingCodec counts decodes so tests can tell cache hits from renders.
type countingCodec struct {
	ImagingCodec
	decodes atomic.Int32
}

func (c *countingCodec) Decode(data []byte) (image.Image, error) {
	c.decodes.Add(1)
	return c.ImagingCodec.Decode(data)
}

// failingPuts wraps a cache backend and rejects every write.
type failingPuts struct {
	*local.Backend
}

func (f failingPuts) PutObject(context.Context, string, io.Reader, int64) error {
	return os.ErrPermission
}

// failingGets wraps a cache backend whose reads fail with an I/O error.
type failingGets struct {
	*local.Backend
}

func (f failingGets) GetObject(context.Context, string, int64, int64) (io.ReadCloser, int64, error) {
	return nil, 0, syscall.EIO
}

type fixture struct {
	files    *local.Backend
	cache    *local.Backend
	codec    *countingCodec
	c        *Cache
	filesDir string
	cacheDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	filesDir := t.TempDir()
	cacheDir := filepath.Join(t.TempDir(), ".cache")

	files, err := local.New(local.Config{RootPath: filesDir})
	require.NoError(t, err)
	cache, err := local.New(local.Config{RootPath: cacheDir, CreateDirs: true})
	require.NoError(t, err)

	codec := &countingCodec{}
	return &fixture{
		files:    files,
		cache:    cache,
		codec:    codec,
		c:        NewCache(files, cache, codec, nil, Options{}),
		filesDir: filesDir,
		cacheDir: cacheDir,
	}
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// writeFile writes a file into the files tree with a fixed mtime.
func (f *fixture) writeFile(t *testing.T, rel string, data []byte, mtime time.Time) {
	t.Helper()
	p := filepath.Join(f.filesDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, data, 0644))
	require.NoError(t, os.Chtimes(p, mtime, mtime))
}

func (f *fixture) cachePath(key string) string {
	return filepath.Join(f.cacheDir, filepath.FromSlash(key))
}

func (f *fixture) readRecordFile(t *testing.T, path string) *Record {
	t.Helper()
	data, err := os.ReadFile(f.cachePath(RecordKey(path)))
	require.NoError(t, err)
	rec, err := parseRecord(data)
	require.NoError(t, err)
	return rec
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
