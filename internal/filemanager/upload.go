package filemanager

import (
	"context"
	"io"
	"path"

	"go.uber.org/zap"

	"github.com/flmngr/flmngr-server-go/internal/apperr"
	"github.com/flmngr/flmngr-server-go/internal/listing"
	"github.com/flmngr/flmngr-server-go/internal/logging"
	"github.com/flmngr/flmngr-server-go/internal/metrics"
)

// Upload modes.
const (
	UploadAutoRename = "AUTORENAME"
	UploadOverwrite  = "OVERWRITE"
)

// maxRenameAttempts bounds the search for a free "name_N.ext".
const maxRenameAttempts = 10000

// UploadRequest is a single uploaded file.
type UploadRequest struct {
	// Dir is relative to the files root.
	Dir            string
	Name           string
	Body           io.Reader
	Size           int64
	Mode           string
	FormatSuffixes []string
}

// Upload stores a file. In AUTORENAME mode an existing name gets a numeric
// suffix; in OVERWRITE mode the old file, its cache entry and its format
// siblings are removed first.
func (m *Manager) Upload(ctx context.Context, req UploadRequest) (*listing.Entry, error) {
	if req.Body == nil {
		return nil, apperr.New(apperr.MalformedRequest, OpUpload, req.Dir, ErrNoFile)
	}
	dir, err := relative(req.Dir)
	if err != nil {
		return nil, err
	}
	name := FixFileName(req.Name)
	if err := validName(OpUpload, name); err != nil {
		return nil, err
	}
	overwrite := req.Mode == UploadOverwrite

	if err := m.files.MakeDir(ctx, dir); err != nil {
		return nil, sourceError(OpUpload, dir, err)
	}

	name, err = m.freeName(ctx, dir, name, overwrite)
	if err != nil {
		return nil, err
	}
	p := path.Join(dir, name)

	if err := m.files.PutObject(ctx, p, req.Body, req.Size); err != nil {
		metrics.RecordUpload(0, false)
		return nil, sourceError(OpUpload, p, err)
	}

	if overwrite {
		if err := m.clearFormats(ctx, p, req.FormatSuffixes); err != nil {
			return nil, err
		}
	}

	entry, err := m.describe(ctx, p)
	if err != nil {
		return nil, err
	}
	metrics.RecordUpload(entry.Size, true)
	logging.WithContext(ctx).Info("file uploaded",
		zap.String("path", p), zap.Int64("size", entry.Size), zap.Bool("overwrite", overwrite))

	if m.warmer != nil {
		m.warmer.Enqueue(p)
	}
	return entry, nil
}

// freeName picks the name to store an upload under. With overwrite an
// existing file is removed; otherwise the first free "name_N.ext" is used.
func (m *Manager) freeName(ctx context.Context, dir, name string, overwrite bool) (string, error) {
	if overwrite {
		if err := m.files.DeleteAll(ctx, path.Join(dir, name)); err != nil {
			return "", sourceError(OpUpload, path.Join(dir, name), err)
		}
		return name, nil
	}

	candidate := name
	for i := 1; i <= maxRenameAttempts; i++ {
		exists, err := m.files.ObjectExists(ctx, path.Join(dir, candidate))
		if err != nil {
			return "", sourceError(OpUpload, path.Join(dir, candidate), err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = numbered(name, i)
	}
	return "", apperr.Newf(apperr.AlreadyExists, OpUpload, path.Join(dir, name), "no free name after %d attempts", maxRenameAttempts)
}
