// Package preview maintains cached preview images and their side-car metadata
// records for files in the managed tree.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"io/fs"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flmngr/flmngr-server-go/internal/apperr"
	"github.com/flmngr/flmngr-server-go/internal/logging"
	"github.com/flmngr/flmngr-server-go/internal/metrics"
	"github.com/flmngr/flmngr-server-go/internal/storage"
)

const (
	DefaultWidth   = 159
	DefaultHeight  = 139
	DefaultQuality = 80
	DefaultTile    = 20

	// PreviewMimeType is the type of every rendered blob. The blob keeps the
	// historical ".png" name even though it holds JPEG data.
	PreviewMimeType = "image/jpeg"

	previewsDir = "previews"
)

// Source is the read side of the managed files tree.
type Source interface {
	Stat(ctx context.Context, key string) (fs.FileInfo, error)
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)
}

// Options tunes preview rendering.
type Options struct {
	Width   int
	Height  int
	Quality int
	Tile    int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 && o.Height <= 0 {
		o.Width, o.Height = DefaultWidth, DefaultHeight
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	if o.Tile <= 0 {
		o.Tile = DefaultTile
	}
	return o
}

// Request asks for a preview of a given box. Zero Width and Height fall back
// to the configured defaults. Data, when set, is used instead of reading the
// source again.
type Request struct {
	Width  int
	Height int
	Data   []byte
}

// Result locates a preview. OriginIsCache is false only for vector images,
// which are served from the files tree as-is.
type Result struct {
	MimeType      string
	Key           string
	OriginIsCache bool
}

// Cache owns the preview records and blobs of the cache tree.
//
// Cache does no locking of its own: callers serialize Preview and Delete per
// path (see pathlock).
type Cache struct {
	files  Source
	cache  storage.Backend
	codec  Codec
	hasher Hasher
	opts   Options
}

// NewCache creates a Cache. A nil codec or hasher selects the defaults.
func NewCache(files Source, cache storage.Backend, codec Codec, hasher Hasher, opts Options) *Cache {
	if codec == nil {
		codec = ImagingCodec{}
	}
	if hasher == nil {
		hasher = NewBlurHasher()
	}
	return &Cache{
		files:  files,
		cache:  cache,
		codec:  codec,
		hasher: hasher,
		opts:   opts.withDefaults(),
	}
}

// Options returns the effective rendering options.
func (c *Cache) Options() Options { return c.opts }

// Codec returns the image codec the cache renders with.
func (c *Cache) Codec() Codec { return c.codec }

// RecordKey is the cache-tree key of the record for a files-tree path.
func RecordKey(path string) string {
	return cacheBase(path) + ".json"
}

// PreviewKey is the cache-tree key of the preview blob for a files-tree path.
func PreviewKey(path string) string {
	return cacheBase(path) + ".png"
}

func cacheBase(path string) string {
	return previewsDir + "/" + strings.TrimLeft(path, "/")
}

// Info returns the metadata record for path, refreshing it first when it is
// missing or stale. A refreshed record only carries mtime and size; the
// derived fields need a decode and are filled by Preview.
//
// A record that exists but cannot be parsed is logged and reported as
// (nil, nil).
func (c *Cache) Info(ctx context.Context, path string) (*Record, error) {
	id, err := c.identity(ctx, "info", path)
	if err != nil {
		return nil, err
	}

	rec, err := c.readRecord(ctx, path)
	if err != nil {
		if apperr.IsKind(err, apperr.CacheReadParse) {
			logging.WithContext(ctx).Warn("unable to parse preview record",
				zap.String("path", path), zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	if rec.Matches(id) {
		return rec, nil
	}

	rec = newRecord(id)
	if err := c.writeRecord(ctx, path, rec); err != nil {
		return nil, err
	}
	// The blob belongs to the old identity; drop it so nobody serves it.
	if err := c.cache.DeleteObject(ctx, PreviewKey(path)); err != nil {
		return nil, apperr.Cached(apperr.CacheWrite, "info", PreviewKey(path), err)
	}
	return rec, nil
}

// Preview returns the location of an up-to-date preview for path, rendering
// and caching it when needed. The record's width, height and blurHash are
// filled in along the way.
func (c *Cache) Preview(ctx context.Context, path string, req Request) (*Result, error) {
	if IsVector(path) {
		if _, err := c.identity(ctx, "preview", path); err != nil {
			return nil, err
		}
		metrics.RecordPreview("passthrough")
		return &Result{MimeType: MimeVector, Key: path, OriginIsCache: false}, nil
	}

	res, err := c.preview(ctx, path, req)
	if err != nil {
		metrics.RecordPreview("error")
		return nil, err
	}
	return res, nil
}

func (c *Cache) preview(ctx context.Context, path string, req Request) (*Result, error) {
	const op = "preview"
	log := logging.WithContext(ctx)

	id, err := c.identity(ctx, op, path)
	if err != nil {
		return nil, err
	}

	rec, err := c.readRecord(ctx, path)
	if err != nil {
		if !apperr.IsKind(err, apperr.CacheReadParse) {
			return nil, err
		}
		log.Warn("unable to parse preview record, regenerating", zap.String("path", path), zap.Error(err))
		rec = nil
	}

	blobKey := PreviewKey(path)
	haveBlob, err := c.cache.ObjectExists(ctx, blobKey)
	if err != nil {
		return nil, apperr.Cached(apperr.CacheRead, op, blobKey, err)
	}

	// A blob is only trusted next to a matching record that knows the
	// original dimensions.
	if haveBlob && (!rec.Matches(id) || !rec.HasDimensions()) {
		if err := c.cache.DeleteObject(ctx, blobKey); err != nil {
			return nil, apperr.Cached(apperr.CacheWrite, op, blobKey, err)
		}
		haveBlob = false
	}

	dirty := false
	if !rec.Matches(id) {
		rec = newRecord(id)
		dirty = true
	}

	var rendered image.Image
	if !haveBlob {
		img, origW, origH, err := c.render(ctx, path, req)
		if err != nil {
			return nil, err
		}
		rendered = img
		rec.Width, rec.Height = &origW, &origH
		rec.BlurHash = nil
		dirty = true
		metrics.RecordPreview("miss")
	} else {
		metrics.RecordPreview("hit")
	}

	if rec.BlurHash == nil || !c.hasher.Valid(*rec.BlurHash) {
		if rendered == nil {
			data, err := storage.ReadAll(ctx, c.cache, blobKey)
			if err != nil {
				return nil, apperr.Cached(apperr.CacheRead, op, blobKey, err)
			}
			rendered, err = c.codec.Decode(data)
			if err != nil {
				return nil, apperr.New(apperr.ImageProcessing, op, path, err)
			}
		}
		hash, err := c.hasher.Encode(rendered)
		if err != nil {
			return nil, apperr.New(apperr.ImageProcessing, op, path, err)
		}
		if c.hasher.Valid(hash) {
			rec.BlurHash = &hash
			dirty = true
		}
	}

	if dirty {
		if err := c.writeRecord(ctx, path, rec); err != nil {
			return nil, err
		}
	}

	return &Result{MimeType: PreviewMimeType, Key: blobKey, OriginIsCache: true}, nil
}

// render decodes the source, normalizes orientation, scales it into the
// requested box over a checkerboard and stores the encoded blob.
func (c *Cache) render(ctx context.Context, path string, req Request) (image.Image, int, int, error) {
	const op = "render"
	start := time.Now()

	data := req.Data
	if data == nil {
		var err error
		data, err = storage.ReadAll(ctx, c.files, path)
		if err != nil {
			return nil, 0, 0, sourceError(op, path, err)
		}
	}

	img, err := c.codec.Decode(data)
	if err != nil {
		return nil, 0, 0, apperr.New(apperr.ImageProcessing, op, path, err)
	}
	img = c.codec.Orient(img, data)

	origW, origH := img.Bounds().Dx(), img.Bounds().Dy()
	if origW <= 0 || origH <= 0 {
		return nil, 0, 0, apperr.Newf(apperr.ImageProcessing, op, path, "image has no pixels (%dx%d)", origW, origH)
	}

	reqW, reqH := req.Width, req.Height
	if reqW <= 0 && reqH <= 0 {
		reqW, reqH = c.opts.Width, c.opts.Height
	}
	w, h, err := TargetSize(origW, origH, reqW, reqH)
	if err != nil {
		return nil, 0, 0, apperr.New(apperr.MalformedRequest, op, path, err)
	}

	out := c.codec.Checkerboard(c.codec.Resize(img, w, h), c.opts.Tile)
	blob, err := c.codec.Encode(out, "jpg", c.opts.Quality)
	if err != nil {
		return nil, 0, 0, apperr.New(apperr.ImageProcessing, op, path, err)
	}

	if err := storage.PutBytes(ctx, c.cache, PreviewKey(path), blob); err != nil {
		metrics.RecordCacheWriteFailure("preview")
		return nil, 0, 0, apperr.Cached(apperr.CacheWrite, op, PreviewKey(path), err)
	}

	metrics.RecordPreviewRender(time.Since(start))
	logging.WithContext(ctx).Debug("preview rendered",
		zap.String("path", path),
		zap.Int("width", w), zap.Int("height", h),
		zap.Duration("took", time.Since(start)),
	)
	return out, origW, origH, nil
}

// Delete removes the record and blob of path. Missing entries are fine.
func (c *Cache) Delete(ctx context.Context, path string) error {
	for _, key := range []string{RecordKey(path), PreviewKey(path)} {
		if err := c.cache.DeleteObject(ctx, key); err != nil {
			return apperr.Cached(apperr.CacheWrite, "delete", key, err)
		}
	}
	return nil
}

// DeleteTree removes the cached entries of every file under dir.
func (c *Cache) DeleteTree(ctx context.Context, dir string) error {
	prefix := cacheBase(dir)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if err := c.cache.DeletePrefix(ctx, prefix); err != nil {
		return apperr.Cached(apperr.CacheWrite, "delete tree", prefix, err)
	}
	return nil
}

// Clear removes every cached record and blob.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.cache.DeletePrefix(ctx, previewsDir); err != nil {
		return apperr.Cached(apperr.CacheWrite, "clear", previewsDir, err)
	}
	return nil
}

// Open streams the file a Result points at from the tree it lives in.
func (c *Cache) Open(ctx context.Context, res *Result) (io.ReadCloser, int64, error) {
	if res.OriginIsCache {
		rc, n, err := c.cache.GetObject(ctx, res.Key, 0, 0)
		if err != nil {
			return nil, 0, apperr.Cached(apperr.CacheRead, "open", res.Key, err)
		}
		return rc, n, nil
	}
	rc, n, err := c.files.GetObject(ctx, res.Key, 0, 0)
	if err != nil {
		return nil, 0, sourceError("open", res.Key, err)
	}
	return rc, n, nil
}

func (c *Cache) identity(ctx context.Context, op, path string) (Identity, error) {
	info, err := c.files.Stat(ctx, path)
	if err != nil {
		return Identity{}, sourceError(op, path, err)
	}
	if info.IsDir() {
		return Identity{}, apperr.Newf(apperr.NotFound, op, path, "is a directory")
	}
	return IdentityOf(info), nil
}

// readRecord returns (nil, nil) when no record exists.
func (c *Cache) readRecord(ctx context.Context, path string) (*Record, error) {
	key := RecordKey(path)
	data, err := storage.ReadAll(ctx, c.cache, key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, apperr.Cached(apperr.CacheRead, "read record", key, err)
	}
	rec, err := parseRecord(data)
	if err != nil {
		return nil, apperr.Cached(apperr.CacheReadParse, "parse record", key, err)
	}
	return rec, nil
}

func (c *Cache) writeRecord(ctx context.Context, path string, rec *Record) error {
	key := RecordKey(path)
	data, err := json.Marshal(rec)
	if err != nil {
		return apperr.Cached(apperr.CacheWrite, "write record", key, err)
	}
	if err := storage.PutBytes(ctx, c.cache, key, data); err != nil {
		metrics.RecordCacheWriteFailure("record")
		return apperr.Cached(apperr.CacheWrite, "write record", key, err)
	}
	return nil
}

func sourceError(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.New(apperr.NotFound, op, path, err)
	}
	return apperr.New(apperr.SourceIO, op, path, err)
}
