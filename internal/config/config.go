// Package config loads server configuration from an optional YAML file and
// FILEMANAGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	s3backend "github.com/flmngr/flmngr-server-go/internal/storage/s3"
)

// EnvPrefix prefixes every environment variable, e.g. FILEMANAGER_DIR_FILES.
const EnvPrefix = "FILEMANAGER"

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr      string        `mapstructure:"listen_addr" validate:"required"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`

	// Logging
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json console"`

	// Trees
	DirFiles     string          `mapstructure:"dir_files" validate:"required"`
	DirCache     string          `mapstructure:"dir_cache"`
	CacheBackend string          `mapstructure:"cache_backend" validate:"oneof=local s3"`
	S3           s3backend.Config `mapstructure:"s3"`

	Preview PreviewConfig `mapstructure:"preview"`

	// Uploads
	MaxUploadSize int64 `mapstructure:"max_upload_size" validate:"gt=0"`
	WarmWorkers   int   `mapstructure:"warm_workers" validate:"gte=0"`
	WarmQueue     int   `mapstructure:"warm_queue" validate:"gte=0"`

	// Auth (optional; empty disables it)
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=16"`

	// Reported by getVersion.
	Framework string `mapstructure:"framework"`
}

// PreviewConfig tunes preview rendering.
type PreviewConfig struct {
	Width   int `mapstructure:"width" validate:"gte=0"`
	Height  int `mapstructure:"height" validate:"gte=0"`
	Quality int `mapstructure:"quality" validate:"gte=1,lte=100"`
	Tile    int `mapstructure:"tile" validate:"gte=1"`
}

var validate = validator.New()

// Load reads the configuration. An empty configPath skips the file; a
// configPath that does not exist is an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.DirCache == "" && cfg.DirFiles != "" {
		cfg.DirCache = filepath.Join(cfg.DirFiles, ".cache")
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("dir_files", "")
	v.SetDefault("dir_cache", "")
	v.SetDefault("cache_backend", "local")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("s3.prefix", "")
	v.SetDefault("preview.width", 159)
	v.SetDefault("preview.height", 139)
	v.SetDefault("preview.quality", 80)
	v.SetDefault("preview.tile", 20)
	v.SetDefault("max_upload_size", 100*1024*1024) // 100MB
	v.SetDefault("warm_workers", 2)
	v.SetDefault("warm_queue", 256)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("framework", "net/http")
}

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if cfg.CacheBackend == "s3" && cfg.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when cache_backend is s3")
	}
	if cfg.Preview.Width == 0 && cfg.Preview.Height == 0 {
		return fmt.Errorf("preview: width and height cannot both be zero")
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
