package apperr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := New(ImageProcessing, "preview", "/Files/a.jpg", errors.New("bad header"))
	assert.Equal(t, "preview: image_processing /Files/a.jpg: bad header", err.Error())

	bare := &Error{Kind: NotFound}
	assert.Equal(t, "not_found", bare.Error())
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	base := Cached(CacheWrite, "write record", "/previews/a.jpg.json", fs.ErrPermission)
	wrapped := fmt.Errorf("get preview: %w", base)

	assert.Equal(t, CacheWrite, KindOf(wrapped))
	assert.True(t, IsCache(wrapped))
	assert.True(t, IsKind(wrapped, CacheWrite))
	assert.True(t, errors.Is(wrapped, fs.ErrPermission))
	assert.False(t, IsKind(wrapped, CacheRead))
}

func TestKindOf_Plain(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("x")))
	assert.False(t, IsCache(errors.New("x")))
	assert.False(t, IsKind(nil, Unknown))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "path_validation", PathValidation.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}
