package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FILEMANAGER_DIR_FILES", "/srv/files")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "/srv/files", cfg.DirFiles)
	assert.Equal(t, filepath.Join("/srv/files", ".cache"), cfg.DirCache)
	assert.Equal(t, "local", cfg.CacheBackend)
	assert.Equal(t, 159, cfg.Preview.Width)
	assert.Equal(t, 139, cfg.Preview.Height)
	assert.Equal(t, 80, cfg.Preview.Quality)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.JWTSecret)
}

func TestLoad_EnvOverridesNested(t *testing.T) {
	t.Setenv("FILEMANAGER_DIR_FILES", "/srv/files")
	t.Setenv("FILEMANAGER_CACHE_BACKEND", "s3")
	t.Setenv("FILEMANAGER_S3_BUCKET", "previews")
	t.Setenv("FILEMANAGER_S3_USE_SSL", "true")
	t.Setenv("FILEMANAGER_PREVIEW_WIDTH", "300")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "s3", cfg.CacheBackend)
	assert.Equal(t, "previews", cfg.S3.Bucket)
	assert.True(t, cfg.S3.UseSSL)
	assert.Equal(t, 300, cfg.Preview.Width)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dir_files: /data/files
dir_cache: /data/cache
log_level: debug
warm_workers: 0
preview:
  quality: 60
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/cache", cfg.DirCache)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0, cfg.WarmWorkers)
	assert.Equal(t, 60, cfg.Preview.Quality)
	assert.Equal(t, 20, cfg.Preview.Tile)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{"missing files dir", map[string]string{}, "DirFiles"},
		{"bad level", map[string]string{"FILEMANAGER_DIR_FILES": "/f", "FILEMANAGER_LOG_LEVEL": "loud"}, "LogLevel"},
		{"s3 without bucket", map[string]string{"FILEMANAGER_DIR_FILES": "/f", "FILEMANAGER_CACHE_BACKEND": "s3"}, "s3.bucket"},
		{"short secret", map[string]string{"FILEMANAGER_DIR_FILES": "/f", "FILEMANAGER_JWT_SECRET": "short"}, "JWTSecret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
