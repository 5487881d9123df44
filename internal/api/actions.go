package api

import (
	"context"
	"strings"

	"github.com/flmngr/flmngr-server-go/internal/apperr"
	"github.com/flmngr/flmngr-server-go/internal/filemanager"
	"github.com/flmngr/flmngr-server-go/internal/listing"
)

// routes maps widget action names to handlers.
func (s *Server) routes() map[string]action {
	upload := action{json: s.upload, writes: true}
	rename := action{json: s.rename, writes: true}

	return map[string]action{
		// Directories
		"dirList":   {json: s.dirList},
		"dirCreate": {json: s.dirCreate, writes: true},
		"dirRename": rename,
		"dirDelete": {json: s.dirDelete, writes: true},
		"dirCopy":   {json: s.dirCopy, writes: true},
		"dirMove":   {json: s.dirMove, writes: true},

		// Files
		"fileListPaged":            {json: s.fileListPaged},
		"fileListSpecified":        {json: s.fileListSpecified},
		"fileDelete":               {json: s.fileDelete, writes: true},
		"fileCopy":                 {json: s.fileCopy, writes: true},
		"fileRename":               rename,
		"fileMove":                 {json: s.fileMove, writes: true},
		"fileResize":               {json: s.fileResize, writes: true},
		"fileOriginal":             {blob: s.fileOriginal},
		"filePreview":              {blob: s.filePreview},
		"filePreviewAndResolution": {json: s.filePreviewAndResolution},

		"upload":     upload,
		"uploadFile": upload,
		"getVersion": {json: s.getVersion},
	}
}

func (s *Server) dirList(ctx context.Context, p *params) (any, error) {
	return s.fm.DirList(ctx,
		p.str("fromDir", ""),
		p.numberOr("maxDepth", filemanager.DefaultMaxDepth),
		p.array("hideDirs"))
}

func (s *Server) dirCreate(ctx context.Context, p *params) (any, error) {
	return true, s.fm.CreateDir(ctx, p.str("d", ""), p.str("n", ""))
}

// rename serves both dirRename ("d") and fileRename ("f").
func (s *Server) rename(ctx context.Context, p *params) (any, error) {
	target, ok := p.lookup("d")
	if !ok {
		target = p.str("f", "")
	}
	return true, s.fm.Rename(ctx, target, p.str("n", ""))
}

func (s *Server) dirDelete(ctx context.Context, p *params) (any, error) {
	return true, s.fm.DeleteDir(ctx, p.str("d", ""))
}

func (s *Server) dirCopy(ctx context.Context, p *params) (any, error) {
	return true, s.fm.CopyDir(ctx, p.str("d", ""), p.str("n", ""))
}

func (s *Server) dirMove(ctx context.Context, p *params) (any, error) {
	return true, s.fm.MoveDir(ctx, p.str("d", ""), p.str("n", ""))
}

func (s *Server) fileListPaged(ctx context.Context, p *params) (any, error) {
	ids, suffixes := p.array("formatIds"), p.array("formatSuffixes")
	if len(ids) != len(suffixes) {
		return nil, apperr.Newf(apperr.MalformedRequest, "fileListPaged", "",
			"%d format ids for %d suffixes", len(ids), len(suffixes))
	}
	formats := make([]listing.Format, len(ids))
	for i := range ids {
		formats[i] = listing.Format{ID: ids[i], Suffix: suffixes[i]}
	}

	opts := listing.Options{
		Formats:  formats,
		Allow:    p.array("whiteList"),
		Deny:     p.array("blackList"),
		Filter:   p.str("filter", listing.DefaultFilter),
		OrderBy:  p.str("orderBy", listing.OrderByName),
		Asc:      strings.EqualFold(p.str("orderAsc", "true"), "true"),
		PageSize: p.numberOr("maxFiles", 0),
		Pinned:   p.array("alwaysInclude"),
	}
	if v, ok := p.lookup("lastFile"); ok && v != "" {
		opts.LastFile = &v
	}
	if n, ok := p.number("lastIndex"); ok {
		opts.LastIndex = &n
	}
	return s.fm.ListPaged(ctx, p.str("dir", ""), opts)
}

func (s *Server) fileListSpecified(ctx context.Context, p *params) (any, error) {
	return s.fm.ListSpecified(ctx, p.array("files"))
}

func (s *Server) fileDelete(ctx context.Context, p *params) (any, error) {
	return true, s.fm.DeleteFiles(ctx, p.list("fs"), p.array("formatSuffixes"))
}

func (s *Server) fileCopy(ctx context.Context, p *params) (any, error) {
	return true, s.fm.CopyFiles(ctx, p.list("fs"), p.str("n", ""))
}

func (s *Server) fileMove(ctx context.Context, p *params) (any, error) {
	return true, s.fm.MoveFiles(ctx, p.list("fs"), p.str("n", ""))
}

func (s *Server) fileResize(ctx context.Context, p *params) (any, error) {
	return s.fm.Resize(ctx, filemanager.ResizeRequest{
		Path:      p.str("f", ""),
		Name:      p.str("n", ""),
		MaxWidth:  p.numberOr("mw", 0),
		MaxHeight: p.numberOr("mh", 0),
		Mode:      p.str("mode", filemanager.ResizeAlways),
	})
}

func (s *Server) fileOriginal(ctx context.Context, p *params) (*filemanager.Blob, error) {
	return s.fm.Original(ctx, p.str("f", ""))
}

func (s *Server) filePreview(ctx context.Context, p *params) (*filemanager.Blob, error) {
	return s.fm.Preview(ctx, p.str("f", ""))
}

func (s *Server) filePreviewAndResolution(ctx context.Context, p *params) (any, error) {
	return s.fm.PreviewAndResolution(ctx, p.str("f", ""))
}

func (s *Server) upload(ctx context.Context, p *params) (any, error) {
	fh := p.file("file")
	if fh == nil {
		return nil, apperr.New(apperr.MalformedRequest, filemanager.OpUpload, "", filemanager.ErrNoFile)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.New(apperr.MalformedRequest, filemanager.OpUpload, fh.Filename, err)
	}
	defer f.Close()

	entry, err := s.fm.Upload(ctx, filemanager.UploadRequest{
		Dir:            p.str("dir", "/"),
		Name:           fh.Filename,
		Body:           f,
		Size:           fh.Size,
		Mode:           p.str("mode", filemanager.UploadAutoRename),
		FormatSuffixes: p.array("formatSuffixes"),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"file": entry}, nil
}

func (s *Server) getVersion(ctx context.Context, p *params) (any, error) {
	return s.fm.Version(), nil
}
