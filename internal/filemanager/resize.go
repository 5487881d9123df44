package filemanager

import (
	"context"
	"math"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/flmngr/flmngr-server-go/internal/apperr"
	"github.com/flmngr/flmngr-server-go/internal/logging"
	"github.com/flmngr/flmngr-server-go/internal/preview"
	"github.com/flmngr/flmngr-server-go/internal/storage"
)

// Resize modes.
const (
	// ResizeAlways regenerates the destination in any case.
	ResizeAlways = "ALWAYS"
	// ResizeDoNotUpdate only creates a missing destination.
	ResizeDoNotUpdate = "DO_NOT_UPDATE"
	// ResizeIfExists only regenerates an existing destination.
	ResizeIfExists = "IF_EXISTS"
)

// resizeQuality is the JPEG quality of resized images.
const resizeQuality = 80

// ResizeRequest asks for a scaled-down copy of an image.
type ResizeRequest struct {
	// Path is relative to the files root.
	Path string
	// Name is the destination file name without extension. A name equal to
	// the source's resizes the source in place.
	Name      string
	MaxWidth  int
	MaxHeight int
	Mode      string
}

// Resize writes a copy of an image fitted into MaxWidth x MaxHeight and
// returns its path relative to the files root. When the image already fits,
// the source path is returned and nothing is written, unless an existing
// destination has to be refreshed.
func (m *Manager) Resize(ctx context.Context, req ResizeRequest) (string, error) {
	src, err := relative(req.Path)
	if err != nil {
		return "", err
	}
	if strings.Contains(req.Name, "..") || strings.ContainsAny(req.Name, `/\`) {
		return "", apperr.New(apperr.PathValidation, OpResize, req.Name, ErrInvalidSymbols)
	}

	oldName := path.Base(src)
	oldExt := preview.Ext(src)
	dst := path.Join(path.Dir(src), req.Name+"."+resizeExt(oldExt))
	if preview.NameWithoutExt(dst) == preview.NameWithoutExt(src) {
		dst = src
	}

	dstExists := false
	if info, err := m.files.Stat(ctx, dst); err == nil && info.Mode().IsRegular() {
		dstExists = true
	}
	switch {
	case req.Mode == ResizeIfExists && !dstExists:
		return "", apperr.Newf(apperr.NotNeededToUpdate, OpResize, dst, "destination does not exist")
	case req.Mode == ResizeDoNotUpdate && dstExists:
		return dst, nil
	}

	data, err := storage.ReadAll(ctx, m.files, src)
	if err != nil {
		return "", sourceError(OpResize, src, err)
	}

	// Rendering the preview records the original dimensions.
	if _, err := m.previews.Preview(ctx, src, preview.Request{Data: data}); err != nil {
		return "", err
	}
	rec, err := m.previews.Info(ctx, src)
	if err != nil {
		return "", err
	}
	if !rec.HasDimensions() || *rec.Width <= 0 || *rec.Height <= 0 {
		return "", apperr.Newf(apperr.ImageProcessing, OpResize, src, "original size unknown")
	}
	origW, origH := *rec.Width, *rec.Height

	w, h, fit := fitBox(origW, origH, req.MaxWidth, req.MaxHeight)
	if !fit {
		if !dstExists || req.Name+"."+oldExt == oldName {
			return src, nil
		}
		w, h = origW, origH
	}

	codec := m.cache.Codec()
	img, err := codec.Decode(data)
	if err != nil {
		return "", apperr.New(apperr.ImageProcessing, OpResize, src, err)
	}
	img = codec.Orient(img, data)
	out, err := codec.Encode(codec.Resize(img, w, h), resizeExt(oldExt), resizeQuality)
	if err != nil {
		return "", apperr.New(apperr.ImageProcessing, OpResize, src, err)
	}
	if err := storage.PutBytes(ctx, m.files, dst, out); err != nil {
		return "", sourceError(OpResize, dst, err)
	}

	logging.WithContext(ctx).Debug("image resized",
		zap.String("src", src), zap.String("dst", dst), zap.Int("width", w), zap.Int("height", h))
	return dst, nil
}

// resizeExt is the extension of a resized copy: JPEG and WebP sources keep
// their family, everything else becomes PNG.
func resizeExt(srcExt string) string {
	switch srcExt {
	case "jpg", "jpeg":
		return "jpg"
	case "webp":
		return "webp"
	default:
		return "png"
	}
}

// fitBox scales (origW, origH) down to fit maxW x maxH, where a zero bound is
// unconstrained. It reports false when no axis needs shrinking.
func fitBox(origW, origH, maxW, maxH int) (int, int, bool) {
	fitW := maxW > 0 && origW > maxW
	fitH := maxH > 0 && origH > maxH
	if fitW && fitH {
		if float64(maxW)/float64(origW) < float64(maxH)/float64(origH) {
			fitH = false
		} else {
			fitW = false
		}
	}

	switch {
	case fitW:
		ratio := float64(maxW) / float64(origW)
		return maxW, max(int(math.Floor(float64(origH)*ratio)), 1), true
	case fitH:
		ratio := float64(maxH) / float64(origH)
		return max(int(math.Floor(float64(origW)*ratio)), 1), maxH, true
	default:
		return origW, origH, false
	}
}
