// Package filemanager implements the file manager actions on top of the
// managed files tree, the preview cache and the listing engine.
package filemanager

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/flmngr/flmngr-server-go/internal/apperr"
	"github.com/flmngr/flmngr-server-go/internal/listing"
	"github.com/flmngr/flmngr-server-go/internal/pathlock"
	"github.com/flmngr/flmngr-server-go/internal/preview"
	"github.com/flmngr/flmngr-server-go/internal/storage"
	"github.com/flmngr/flmngr-server-go/internal/wildcard"
)

// Operation names attached to source tree errors.
const (
	OpList      = "list"
	OpDirList   = "dir list"
	OpCreateDir = "create dir"
	OpDeleteDir = "delete dir"
	OpDelete    = "delete"
	OpRename    = "rename"
	OpMoveDir   = "move dir"
	OpMoveFiles = "move files"
	OpCopy      = "copy"
	OpUpload    = "upload"
	OpResize    = "resize"
	OpOriginal  = "original"
)

// Options configure a Manager.
type Options struct {
	// Framework is reported by Version.
	Framework string
	// DirCache describes the cache location in Version.
	DirCache string
	// WarmWorkers enables background preview rendering after uploads.
	// Zero disables it.
	WarmWorkers int
	WarmQueue   int
}

// Manager serves file manager actions.
type Manager struct {
	files    storage.FileSystem
	cache    *preview.Cache
	previews *lockedPreviews
	listing  *listing.Engine
	matcher  *wildcard.GlobMatcher
	warmer   *preview.Warmer
	rootName string
	opts     Options
}

// New creates a Manager over the files tree and the preview cache.
func New(files storage.FileSystem, cache *preview.Cache, opts Options) *Manager {
	previews := &lockedPreviews{cache: cache, locks: pathlock.New()}
	matcher := wildcard.New()

	m := &Manager{
		files:    files,
		cache:    cache,
		previews: previews,
		listing:  listing.NewEngine(files, previews, matcher),
		matcher:  matcher,
		rootName: filepath.Base(files.Dir()),
		opts:     opts,
	}
	if opts.WarmWorkers > 0 {
		m.warmer = preview.NewWarmer(previews, opts.WarmWorkers, opts.WarmQueue)
	}
	return m
}

// Start launches background workers.
func (m *Manager) Start(ctx context.Context) {
	if m.warmer != nil {
		m.warmer.Start(ctx)
	}
}

// Close stops background workers.
func (m *Manager) Close() {
	if m.warmer != nil {
		m.warmer.Stop()
	}
}

// RootName is the name of the files root as the widget sees it.
func (m *Manager) RootName() string { return m.rootName }

// Version describes the server to the widget.
type Version struct {
	Version   string `json:"version"`
	Build     string `json:"build"`
	Language  string `json:"language"`
	Framework string `json:"framework"`
	Storage   string `json:"storage"`
	DirFiles  string `json:"dirFiles"`
	DirCache  string `json:"dirCache"`
}

// Version reports the protocol version and storage layout.
func (m *Manager) Version() Version {
	framework := m.opts.Framework
	if framework == "" {
		framework = "custom"
	}
	storageName := "Local"
	if m.files.Type() != "local" {
		storageName = m.files.Type()
	}
	return Version{
		Version:   "5",
		Build:     "1",
		Language:  "go",
		Framework: framework,
		Storage:   storageName,
		DirFiles:  m.files.Dir(),
		DirCache:  m.opts.DirCache,
	}
}

// lockedPreviews serializes cache access per path.
type lockedPreviews struct {
	cache *preview.Cache
	locks *pathlock.Locker
}

func (p *lockedPreviews) Info(ctx context.Context, path string) (*preview.Record, error) {
	defer p.locks.Lock(path)()
	return p.cache.Info(ctx, path)
}

func (p *lockedPreviews) Preview(ctx context.Context, path string, req preview.Request) (*preview.Result, error) {
	defer p.locks.Lock(path)()
	return p.cache.Preview(ctx, path, req)
}

func (p *lockedPreviews) Delete(ctx context.Context, path string) error {
	defer p.locks.Lock(path)()
	return p.cache.Delete(ctx, path)
}

// sourceError classifies a files tree failure.
func sourceError(op, path string, err error) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return apperr.New(apperr.NotFound, op, path, err)
	case errors.Is(err, fs.ErrExist):
		return apperr.New(apperr.AlreadyExists, op, path, err)
	default:
		return apperr.New(apperr.SourceIO, op, path, err)
	}
}
