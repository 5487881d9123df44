package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/flmngr/flmngr-server-go/internal/auth"
	"github.com/flmngr/flmngr-server-go/internal/listing"
	"github.com/flmngr/flmngr-server-go/internal/preview"
)

func newListCmd() *cobra.Command {
	var (
		orderBy  string
		desc     bool
		filter   string
		pageSize int
		formats  []string
	)
	cmd := &cobra.Command{
		Use:   "list [dir]",
		Short: "List the files of a directory with their preview metadata",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			dir := "/"
			if len(args) == 1 {
				dir = args[0]
			}
			opts := listing.Options{
				OrderBy:  orderBy,
				Asc:      !desc,
				Filter:   filter,
				PageSize: pageSize,
			}
			for _, f := range formats {
				id, suffix, ok := strings.Cut(f, "=")
				if !ok {
					return fmt.Errorf("format %q: expected id=suffix", f)
				}
				opts.Formats = append(opts.Formats, listing.Format{ID: id, Suffix: suffix})
			}

			page, err := e.fm.ListPaged(ctx, e.widgetPath(dir), opts)
			if err != nil {
				return err
			}
			if jsonMode {
				return printJSON(page)
			}

			for _, f := range page.Files {
				dims := color.HiBlackString("-")
				if f.Width != nil && f.Height != nil {
					dims = fmt.Sprintf("%dx%d", *f.Width, *f.Height)
				}
				ts := time.UnixMilli(int64(f.Timestamp)).Format(time.DateTime)
				fmt.Printf("%-40s %10s %12s  %s\n", f.Name, formatBytes(f.Size), dims, ts)
				for id, sib := range f.Formats {
					fmt.Printf("  %s %s\n", color.CyanString(id), sib.Name)
				}
			}
			fmt.Printf("\n%d shown, %d filtered, %d total\n", len(page.Files), page.CountFiltered, page.CountTotal)
			if !page.IsEnd {
				fmt.Println(color.YellowString("more files follow; raise --page-size to see them"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&orderBy, "order", listing.OrderByName, "sort key: name, date or size")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	cmd.Flags().StringVar(&filter, "filter", listing.DefaultFilter, "case-insensitive wildcard on file names")
	cmd.Flags().IntVar(&pageSize, "page-size", 1000, "maximum number of files")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "format sibling as id=suffix (repeatable)")
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Show the cached metadata record of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			p := "/" + strings.Trim(args[0], "/")
			rec, err := e.cache.Info(ctx, p)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("record for %s is unreadable", p)
			}
			if jsonMode {
				return printJSON(rec)
			}

			fmt.Printf("%s %s\n", color.CyanString("Record:"), preview.RecordKey(p))
			if rec.MTime != nil {
				fmt.Printf("  mtime:    %.3f (%s)\n", *rec.MTime, time.UnixMilli(int64(*rec.MTime)).Format(time.RFC3339))
			}
			if rec.Size != nil {
				fmt.Printf("  size:     %s\n", formatBytes(*rec.Size))
			}
			if rec.HasDimensions() {
				fmt.Printf("  original: %dx%d\n", *rec.Width, *rec.Height)
			} else {
				fmt.Printf("  original: %s\n", color.YellowString("unknown (no preview rendered yet)"))
			}
			if rec.BlurHash != nil {
				fmt.Printf("  blurHash: %s\n", *rec.BlurHash)
			}
			return nil
		},
	}
}

func newPreviewCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Render (or reuse) the preview of an image and write it out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			blob, err := e.fm.Preview(ctx, e.widgetPath(args[0]))
			if err != nil {
				return err
			}
			defer blob.Body.Close()

			if out == "" {
				out = preview.NameWithoutExt(path.Base(args[0])) + "_preview.jpg"
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			n, err := io.Copy(f, blob.Body)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s (%s, %s)\n", color.GreenString("Wrote"), out, blob.MimeType, formatBytes(n))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default <name>_preview.jpg)")
	return cmd
}

func newClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear [dir]",
		Short: "Delete cached previews, for the whole cache or below a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the cache without --yes")
			}
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if len(args) == 0 || strings.Trim(args[0], "/") == "" {
				err = e.cache.Clear(ctx)
			} else {
				err = e.cache.DeleteTree(ctx, "/"+strings.Trim(args[0], "/"))
			}
			if err != nil {
				return err
			}
			fmt.Println(color.GreenString("Cache cleared"))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func newWarmCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "warm [dir]",
		Short: "Render missing previews for every image below a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			dir := "/"
			if len(args) == 1 {
				dir = "/" + strings.Trim(args[0], "/")
			}

			var images []string
			if err := collectImages(ctx, e, dir, &images); err != nil {
				return err
			}

			var done, failed atomic.Int64
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(workers)
			for _, p := range images {
				p := p
				g.Go(func() error {
					if _, err := e.cache.Preview(gctx, p, preview.Request{}); err != nil {
						failed.Add(1)
						fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("failed"), p, err)
						return nil
					}
					done.Add(1)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			fmt.Printf("%s %d previews, %d failed\n", color.GreenString("Warmed"), done.Load(), failed.Load())
			if failed.Load() > 0 {
				return fmt.Errorf("%d previews failed", failed.Load())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "concurrent renders")
	return cmd
}

// collectImages walks dir and gathers raster images, skipping the cache dir.
func collectImages(ctx context.Context, e *env, dir string, out *[]string) error {
	infos, err := e.files.List(ctx, dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	for _, fi := range infos {
		p := path.Join(dir, fi.Name())
		switch {
		case fi.IsDir() && fi.Name() == ".cache":
		case fi.IsDir():
			if err := collectImages(ctx, e, p, out); err != nil {
				return err
			}
		case preview.IsImage(p) && !preview.IsVector(p):
			*out = append(*out, p)
		}
	}
	return nil
}

func newTokenCmd() *cobra.Command {
	var (
		subject  string
		ttl      time.Duration
		readOnly bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a JWT for the file manager API",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			if e.cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is not configured; the API is open")
			}

			tok, err := auth.New(e.cfg.JWTSecret).Issue(subject, ttl, readOnly)
			if err != nil {
				return err
			}
			if jsonMode {
				return printJSON(map[string]any{"token": tok, "expires_in": ttl.Seconds()})
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "previewctl", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "only allow listing and previews")
	return cmd
}
