package preview

import (
	"path"
	"strings"
)

// imageExtensions are the extensions the widget treats as pictures.
var imageExtensions = map[string]string{
	"gif":  "image/gif",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"svg":  "image/svg+xml",
	"webp": "image/webp",
	"bmp":  "image/bmp",
}

// MimeVector is the one image type that is never rasterized.
const MimeVector = "image/svg+xml"

// Ext returns the lowercased extension of name without the dot, or "".
func Ext(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// NameWithoutExt strips the last extension from name.
func NameWithoutExt(name string) string {
	ext := path.Ext(name)
	return name[:len(name)-len(ext)]
}

// MimeType returns the image mime type for name, or "" for non-images.
func MimeType(name string) string {
	return imageExtensions[Ext(name)]
}

// IsImage reports whether name has a picture extension.
func IsImage(name string) bool {
	return MimeType(name) != ""
}

// IsVector reports whether name is a vector image that the codec cannot
// rasterize.
func IsVector(name string) bool {
	return MimeType(name) == MimeVector
}
