// Package apperr defines the closed set of failure kinds raised by the file
// manager and a structured error type that carries them.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	PathValidation
	ImageProcessing
	CacheWrite
	CacheRead
	CacheReadParse
	SourceIO
	NotFound
	AlreadyExists
	MalformedRequest
	NotImage
	NotNeededToUpdate
	ActionNotFound
	Unauthorized
)

var kindNames = map[Kind]string{
	Unknown:           "unknown",
	PathValidation:    "path_validation",
	ImageProcessing:   "image_processing",
	CacheWrite:        "cache_write",
	CacheRead:         "cache_read",
	CacheReadParse:    "cache_read_parse",
	SourceIO:          "source_io",
	NotFound:          "not_found",
	AlreadyExists:     "already_exists",
	MalformedRequest:  "malformed_request",
	NotImage:          "not_image",
	NotNeededToUpdate: "not_needed_to_update",
	ActionNotFound:    "action_not_found",
	Unauthorized:      "unauthorized",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a failure with its kind and the context it happened in.
// Cache is set when the failure originated in the cache tree rather than the
// source tree.
type Error struct {
	Kind  Kind
	Op    string
	Path  string
	Cache bool
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Newf builds an error of the given kind with a formatted cause.
func Newf(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// Cached builds a cache-tree error of the given kind.
func Cached(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Cache: true, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsCache reports whether err originated in the cache tree.
func IsCache(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Cache
	}
	return false
}
