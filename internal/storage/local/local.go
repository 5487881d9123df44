// Package local provides a local filesystem storage backend.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// TempPattern names in-flight writes. Listings skip entries matching it.
const TempPattern = ".flmngr-*.tmp"

// ErrOutsideRoot is returned for keys that would resolve outside the root.
var ErrOutsideRoot = errors.New("key resolves outside root")

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string `mapstructure:"root_path"`
	CreateDirs bool   `mapstructure:"create_dirs"`
}

// Backend implements storage.FileSystem on the local filesystem.
type Backend struct {
	rootPath   string
	createDirs bool
}

// New creates a new local filesystem backend.
func New(cfg Config) (*Backend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %s: %w", cfg.RootPath, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(root, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", root, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", root, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", root)
	}

	return &Backend{
		rootPath:   root,
		createDirs: cfg.CreateDirs,
	}, nil
}

// Dir returns the absolute root path.
func (b *Backend) Dir() string { return b.rootPath }

// fullPath maps a slash key onto the root. Keys are cleaned first, so a key
// can never climb above the root.
func (b *Backend) fullPath(key string) (string, error) {
	if strings.Contains(key, "\x00") {
		return "", fmt.Errorf("%q: %w", key, ErrOutsideRoot)
	}
	for _, seg := range strings.Split(filepath.ToSlash(key), "/") {
		if seg == ".." {
			return "", fmt.Errorf("%q: %w", key, ErrOutsideRoot)
		}
	}
	clean := path.Clean("/" + filepath.ToSlash(key))
	return filepath.Join(b.rootPath, filepath.FromSlash(clean)), nil
}

// GetObject reads a file with range support.
func (b *Backend) GetObject(_ context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	p, err := b.fullPath(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("open %s: is a directory: %w", key, fs.ErrNotExist)
	}

	totalSize := info.Size()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("seek %s: %w", key, err)
		}
	}

	if length > 0 {
		return &limitedReadCloser{
			Reader: io.LimitReader(f, length),
			Closer: f,
		}, length, nil
	}

	returnSize := totalSize - offset
	if returnSize < 0 {
		returnSize = 0
	}
	return f, returnSize, nil
}

// PutObject writes content atomically: a temp file in the target directory is
// renamed over the destination once fully written.
func (b *Backend) PutObject(_ context.Context, key string, body io.Reader, _ int64) error {
	p, err := b.fullPath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)

	if b.createDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dirs for %s: %w", key, err)
		}
	}

	return writeAtomic(dir, p, body)
}

func writeAtomic(dir, dst string, body io.Reader) error {
	tmp, err := os.CreateTemp(dir, TempPattern)
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", dst, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", dst, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp for %s: %w", dst, err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", dst, err)
	}
	return nil
}

// DeleteObject removes a file.
func (b *Backend) DeleteObject(_ context.Context, key string) error {
	p, err := b.fullPath(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes the directory tree at prefix.
func (b *Backend) DeletePrefix(ctx context.Context, prefix string) error {
	return b.DeleteAll(ctx, prefix)
}

// DeleteAll removes a file or directory tree.
func (b *Backend) DeleteAll(_ context.Context, key string) error {
	p, err := b.fullPath(key)
	if err != nil {
		return err
	}
	if p == b.rootPath {
		return fmt.Errorf("delete %s: refusing to delete root", key)
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// CopyObject copies a file.
func (b *Backend) CopyObject(_ context.Context, srcKey, dstKey string) error {
	srcPath, err := b.fullPath(srcKey)
	if err != nil {
		return err
	}
	dstPath, err := b.fullPath(dstKey)
	if err != nil {
		return err
	}

	if b.createDirs {
		if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
			return fmt.Errorf("create dirs for %s: %w", dstKey, err)
		}
	}
	return copyFile(srcPath, dstPath)
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open src %s: %w", srcPath, err)
	}
	defer src.Close()

	return writeAtomic(filepath.Dir(dstPath), dstPath, src)
}

// CopyDir copies a directory tree. The destination must not exist.
func (b *Backend) CopyDir(_ context.Context, srcKey, dstKey string) error {
	srcPath, err := b.fullPath(srcKey)
	if err != nil {
		return err
	}
	dstPath, err := b.fullPath(dstKey)
	if err != nil {
		return err
	}
	if rel, err := filepath.Rel(srcPath, dstPath); err == nil && !strings.HasPrefix(rel, "..") {
		return fmt.Errorf("copy %s -> %s: destination is inside source", srcKey, dstKey)
	}
	if _, err := os.Stat(dstPath); err == nil {
		return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, fs.ErrExist)
	}

	return filepath.WalkDir(srcPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcPath, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dstPath, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(p, target)
	})
}

// ObjectExists checks if a file or directory exists.
func (b *Backend) ObjectExists(_ context.Context, key string) (bool, error) {
	p, err := b.fullPath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

// Stat describes a file or directory.
func (b *Backend) Stat(_ context.Context, key string) (fs.FileInfo, error) {
	p, err := b.fullPath(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return info, nil
}

// List returns the children of dir. Entries that vanish between the
// directory read and the stat are skipped, as are in-flight temp files.
func (b *Backend) List(_ context.Context, dir string) ([]fs.FileInfo, error) {
	p, err := b.fullPath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	out := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		if ok, _ := filepath.Match(TempPattern, e.Name()); ok {
			continue
		}
		info, err := os.Stat(filepath.Join(p, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// MakeDir creates a directory and its parents.
func (b *Backend) MakeDir(_ context.Context, key string) error {
	p, err := b.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", key, err)
	}
	return nil
}

// Move renames a file or directory. An existing destination is an error.
func (b *Backend) Move(_ context.Context, srcKey, dstKey string) error {
	srcPath, err := b.fullPath(srcKey)
	if err != nil {
		return err
	}
	dstPath, err := b.fullPath(dstKey)
	if err != nil {
		return err
	}
	if srcPath == b.rootPath {
		return fmt.Errorf("move %s: refusing to move root", srcKey)
	}
	if _, err := os.Stat(dstPath); err == nil {
		return fmt.Errorf("move %s -> %s: %w", srcKey, dstKey, fs.ErrExist)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return fmt.Errorf("move %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

// Type returns "local".
func (b *Backend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *Backend) Close() error { return nil }

// limitedReadCloser wraps a LimitReader with a separate Closer.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}
