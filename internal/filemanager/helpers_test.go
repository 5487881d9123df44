package filemanager

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flmngr/flmngr-server-go/internal/preview"
	"github.com/flmngr/flmngr-server-go/internal/storage/local"
)

type env struct {
	m        *Manager
	filesDir string
	cacheDir string
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	filesDir := filepath.Join(t.TempDir(), "files")
	require.NoError(t, os.MkdirAll(filesDir, 0755))
	cacheDir := filepath.Join(filesDir, ".cache")

	files, err := local.New(local.Config{RootPath: filesDir})
	require.NoError(t, err)
	cache, err := local.New(local.Config{RootPath: cacheDir, CreateDirs: true})
	require.NoError(t, err)

	if opts.DirCache == "" {
		opts.DirCache = cacheDir
	}
	m := New(files, preview.NewCache(files, cache, nil, nil, preview.Options{}), opts)
	t.Cleanup(m.Close)
	return &env{m: m, filesDir: filesDir, cacheDir: cacheDir}
}

func (e *env) write(t *testing.T, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(e.filesDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, data, 0644))
}

func (e *env) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(e.filesDir, filepath.FromSlash(rel)))
	return err == nil
}

func (e *env) cached(key string) bool {
	_, err := os.Stat(filepath.Join(e.cacheDir, filepath.FromSlash(key)))
	return err == nil
}

// preview renders the preview of a widget path and discards it.
func (e *env) preview(t *testing.T, file string) {
	t.Helper()
	blob, err := e.m.Preview(context.Background(), file)
	require.NoError(t, err)
	require.NoError(t, blob.Body.Close())
}

func solid(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 30, G: 120, B: 200, A: 255})
		}
	}
	return img
}

func pngData(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h)))
	return buf.Bytes()
}

func jpegData(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func imageSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}
