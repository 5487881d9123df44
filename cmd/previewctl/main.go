// Command previewctl inspects and maintains the preview cache of a file
// manager deployment from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flmngr/flmngr-server-go/internal/config"
	"github.com/flmngr/flmngr-server-go/internal/filemanager"
	"github.com/flmngr/flmngr-server-go/internal/logging"
	"github.com/flmngr/flmngr-server-go/internal/preview"
	"github.com/flmngr/flmngr-server-go/internal/storage"
)

var (
	configPath string
	jsonMode   bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "previewctl",
		Short: "Inspect and maintain the file manager preview cache",
		Long: `previewctl works directly on the files tree and the cache tree configured
for the server (same config file and FILEMANAGER_* variables).

Examples:
  # List a directory the way the widget sees it
  previewctl list /gallery --order date --desc

  # Render previews for everything below a directory
  previewctl warm /gallery --workers 8

  # Issue an API token
  previewctl token --subject editor --ttl 720h`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Init(logging.Config{Level: "warn", Format: "console", OutputPath: "stderr"})
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("FILEMANAGER_CONFIG"), "path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&jsonMode, "json", false, "print JSON instead of text")

	cmd.AddCommand(
		newListCmd(),
		newInfoCmd(),
		newPreviewCmd(),
		newClearCmd(),
		newWarmCmd(),
		newTokenCmd(),
	)
	return cmd
}

// env is what the commands operate on.
type env struct {
	cfg   *config.Config
	files storage.FileSystem
	cache *preview.Cache
	fm    *filemanager.Manager
	close func()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	files, err := storage.NewFiles(cfg.DirFiles)
	if err != nil {
		return nil, fmt.Errorf("open files tree: %w", err)
	}
	cacheStore, err := storage.NewCache(ctx, cfg.CacheBackend, cfg.DirCache, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("open cache tree: %w", err)
	}

	cache := preview.NewCache(files, cacheStore, nil, nil, preview.Options{
		Width:   cfg.Preview.Width,
		Height:  cfg.Preview.Height,
		Quality: cfg.Preview.Quality,
		Tile:    cfg.Preview.Tile,
	})
	fm := filemanager.New(files, cache, filemanager.Options{DirCache: cfg.DirCache})

	return &env{
		cfg:   cfg,
		files: files,
		cache: cache,
		fm:    fm,
		close: func() {
			fm.Close()
			cacheStore.Close()
		},
	}, nil
}

// widgetPath turns a path relative to the files root into the form the file
// manager actions take.
func (e *env) widgetPath(rel string) string {
	return "/" + e.fm.RootName() + "/" + strings.Trim(rel, "/")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
