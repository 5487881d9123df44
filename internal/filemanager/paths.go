package filemanager

import (
	"errors"
	"path"
	"strconv"
	"strings"

	"github.com/flmngr/flmngr-server-go/internal/apperr"
)

// FilesAlias is the root name the widget uses when it does not know the real
// name of the files directory.
const FilesAlias = "Files"

// ProhibitedSymbols are replaced in uploaded file names.
const ProhibitedSymbols = `/\?%*:|"<>`

// Path validation causes. They are wrapped in apperr.PathValidation errors so
// the HTTP layer can report the precise message.
var (
	ErrInvalidSymbols = errors.New("name contains invalid symbols")
	ErrIncorrectRoot  = errors.New("path has incorrect root")
	ErrRootDirMissing = errors.New("root directory does not exist")
	ErrNoFile         = errors.New("no file uploaded")
)

// Resolve converts a widget path ("/<root>/a/b" or "/Files/a/b") into a path
// relative to the files root ("/a/b"). The root itself resolves to "/".
func (m *Manager) Resolve(p string) (string, error) {
	if hasParentSegment(p) {
		return "", apperr.New(apperr.PathValidation, "resolve", p, ErrInvalidSymbols)
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	root := "/" + m.rootName
	switch {
	case p == "/"+FilesAlias:
		p = root
	case strings.HasPrefix(p, "/"+FilesAlias+"/"):
		p = root + p[len(FilesAlias)+1:]
	}

	if p != root && !strings.HasPrefix(p, root+"/") {
		return "", apperr.New(apperr.PathValidation, "resolve", p, ErrIncorrectRoot)
	}
	return path.Clean("/" + p[len(root):]), nil
}

// relative validates a path that is already relative to the files root.
func relative(p string) (string, error) {
	if hasParentSegment(p) {
		return "", apperr.New(apperr.PathValidation, "resolve", p, ErrInvalidSymbols)
	}
	return path.Clean("/" + p), nil
}

// hasParentSegment reports whether p contains a ".." segment. Backslashes
// count as separators too.
func hasParentSegment(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// validName rejects names that would address another directory.
func validName(op, name string) error {
	if name == "" {
		return apperr.Newf(apperr.MalformedRequest, op, "", "name not set")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return apperr.New(apperr.PathValidation, op, name, ErrInvalidSymbols)
	}
	return nil
}

// FixFileName replaces every prohibited symbol in name with an underscore.
func FixFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(ProhibitedSymbols, r) {
			return '_'
		}
		return r
	}, name)
}

// numbered returns name with "_n" inserted before the extension.
func numbered(name string, n int) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + strconv.Itoa(n) + ext
}
