package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3backend "github.com/flmngr/flmngr-server-go/internal/storage/s3"
)

func TestNewCache_Local(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".cache")
	b, err := NewCache(context.Background(), "local", root, s3backend.Config{})
	require.NoError(t, err)
	assert.Equal(t, "local", b.Type())
	assert.DirExists(t, root)

	require.NoError(t, PutBytes(context.Background(), b, "previews/x.json", []byte("{}")))
	data, err := ReadAll(context.Background(), b, "previews/x.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestNewCache_Unknown(t *testing.T) {
	_, err := NewCache(context.Background(), "smb", t.TempDir(), s3backend.Config{})
	assert.Error(t, err)
}

func TestNewFiles_RequiresExistingRoot(t *testing.T) {
	_, err := NewFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	fsys, err := NewFiles(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "local", fsys.Type())
}
