package filemanager

import (
	"context"
	"encoding/base64"
	"io"
	"path"

	"go.uber.org/zap"

	"github.com/flmngr/flmngr-server-go/internal/apperr"
	"github.com/flmngr/flmngr-server-go/internal/listing"
	"github.com/flmngr/flmngr-server-go/internal/logging"
	"github.com/flmngr/flmngr-server-go/internal/preview"
)

// Blob is a streamed file with its content type.
type Blob struct {
	MimeType string
	Size     int64
	Body     io.ReadCloser
}

// SpecifiedFile is a validated file with the directory it lives in.
type SpecifiedFile struct {
	Dir  string         `json:"dir"`
	File *listing.Entry `json:"file"`
}

// PreviewAndResolution is a preview inlined as a data URL together with the
// original image size.
type PreviewAndResolution struct {
	Width   *int    `json:"width"`
	Height  *int    `json:"height"`
	Preview *string `json:"preview"`
}

// ListPaged returns one page of the files in the widget directory dir.
func (m *Manager) ListPaged(ctx context.Context, dir string, opts listing.Options) (*listing.Page, error) {
	rel, err := m.Resolve(dir)
	if err != nil {
		return nil, err
	}
	return m.listing.ListPage(ctx, rel, opts)
}

// ListSpecified describes the given files, which are relative to the files
// root. Missing files are left out.
func (m *Manager) ListSpecified(ctx context.Context, files []string) ([]SpecifiedFile, error) {
	out := make([]SpecifiedFile, 0, len(files))
	for _, f := range files {
		p, err := relative(f)
		if err != nil {
			return nil, err
		}
		info, err := m.files.Stat(ctx, p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		dir := path.Dir(p)
		entry, err := m.listing.Describe(ctx, dir, listing.RawEntry{
			Name:  info.Name(),
			MTime: preview.MTimeMillis(info.ModTime()),
			Size:  info.Size(),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, SpecifiedFile{Dir: dir, File: entry})
	}
	return out, nil
}

// describe stats and describes a single file of the files tree.
func (m *Manager) describe(ctx context.Context, p string) (*listing.Entry, error) {
	info, err := m.files.Stat(ctx, p)
	if err != nil {
		return nil, sourceError(OpList, p, err)
	}
	return m.listing.Describe(ctx, path.Dir(p), listing.RawEntry{
		Name:  info.Name(),
		MTime: preview.MTimeMillis(info.ModTime()),
		Size:  info.Size(),
	})
}

// Preview renders (or reuses) the preview of an image and opens it.
func (m *Manager) Preview(ctx context.Context, file string) (*Blob, error) {
	p, err := m.Resolve(file)
	if err != nil {
		return nil, err
	}
	res, err := m.previews.Preview(ctx, p, preview.Request{})
	if err != nil {
		return nil, err
	}
	body, size, err := m.cache.Open(ctx, res)
	if err != nil {
		return nil, err
	}
	return &Blob{MimeType: res.MimeType, Size: size, Body: body}, nil
}

// PreviewAndResolution returns the preview as a data URL and the original
// image dimensions.
func (m *Manager) PreviewAndResolution(ctx context.Context, file string) (*PreviewAndResolution, error) {
	p, err := m.Resolve(file)
	if err != nil {
		return nil, err
	}
	res, err := m.previews.Preview(ctx, p, preview.Request{})
	if err != nil {
		return nil, err
	}
	rec, err := m.previews.Info(ctx, p)
	if err != nil {
		return nil, err
	}

	body, _, err := m.cache.Open(ctx, res)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, sourceError(OpOriginal, res.Key, err)
	}

	url := "data:" + res.MimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	out := &PreviewAndResolution{Preview: &url}
	if rec != nil {
		out.Width, out.Height = rec.Width, rec.Height
	}
	return out, nil
}

// Original opens an image of the files tree as-is.
func (m *Manager) Original(ctx context.Context, file string) (*Blob, error) {
	p, err := m.Resolve(file)
	if err != nil {
		return nil, err
	}
	mime := preview.MimeType(p)
	if mime == "" {
		return nil, apperr.Newf(apperr.NotImage, OpOriginal, p, "not an image")
	}
	body, size, err := m.files.GetObject(ctx, p, 0, 0)
	if err != nil {
		return nil, sourceError(OpOriginal, p, err)
	}
	return &Blob{MimeType: mime, Size: size, Body: body}, nil
}

// DeleteFiles removes files of the files tree together with their cached
// previews and generated format siblings.
func (m *Manager) DeleteFiles(ctx context.Context, files []string, formatSuffixes []string) error {
	if len(files) == 0 {
		return apperr.Newf(apperr.MalformedRequest, OpDelete, "", "no files given")
	}
	paths := make([]string, len(files))
	for i, f := range files {
		p, err := m.Resolve(f)
		if err != nil {
			return err
		}
		paths[i] = p
	}

	for _, p := range paths {
		if err := m.files.DeleteAll(ctx, p); err != nil {
			return sourceError(OpDelete, p, err)
		}
		if err := m.clearFormats(ctx, p, formatSuffixes); err != nil {
			return err
		}
	}
	return nil
}

// siblingExts are the extensions a generated format sibling can have.
var siblingExts = []string{"png", "jpg", "jpeg", "webp"}

// clearFormats drops the cache entry of p and deletes the format siblings
// generated from it, so they get regenerated from the new content.
func (m *Manager) clearFormats(ctx context.Context, p string, formatSuffixes []string) error {
	if err := m.previews.Delete(ctx, p); err != nil {
		return err
	}

	prefix := p[:len(p)-len(path.Ext(p))]
	for _, suffix := range formatSuffixes {
		if suffix == "" {
			continue
		}
		for _, ext := range siblingExts {
			sibling := prefix + suffix + "." + ext
			info, err := m.files.Stat(ctx, sibling)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if err := m.files.DeleteObject(ctx, sibling); err != nil {
				return sourceError(OpDelete, sibling, err)
			}
			if err := m.previews.Delete(ctx, sibling); err != nil {
				return err
			}
			logging.WithContext(ctx).Debug("format sibling removed", zap.String("path", sibling))
		}
	}
	return nil
}
