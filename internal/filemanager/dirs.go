package filemanager

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/flmngr/flmngr-server-go/internal/apperr"
	"github.com/flmngr/flmngr-server-go/internal/natsort"
)

const (
	// DefaultMaxDepth is used when the widget does not send maxDepth.
	DefaultMaxDepth = 99
	// MaxDepth caps how deep the directory tree is walked.
	MaxDepth = 20
)

// cacheDirName is never shown in the directory tree.
const cacheDirName = ".cache"

// Dir is one node of the directory tree. P is the widget path of the
// directory; Filled is false when its children were not listed because of
// the depth limit. F and D are kept at zero for older widgets.
type Dir struct {
	P      string `json:"p"`
	Filled bool   `json:"filled"`
	F      int    `json:"f"`
	D      int    `json:"d"`
}

// DirList walks the directory tree from fromDir (relative to the files root)
// down to maxDepth levels. Directories matching a hideDirs pattern are left
// out along with their subtrees.
func (m *Manager) DirList(ctx context.Context, fromDir string, maxDepth int, hideDirs []string) ([]Dir, error) {
	from := "/" + strings.Trim(fromDir, "/")
	if strings.Contains(from, "..") {
		return nil, apperr.New(apperr.PathValidation, OpDirList, fromDir, ErrInvalidSymbols)
	}
	if maxDepth < 0 {
		maxDepth = DefaultMaxDepth
	}
	depth := min(maxDepth, MaxDepth)
	hide := append([]string{cacheDirName}, hideDirs...)

	info, err := m.files.Stat(ctx, from)
	if err != nil || !info.IsDir() {
		return nil, apperr.New(apperr.NotFound, OpDirList, from, ErrRootDirMissing)
	}

	var dirs []Dir
	if err := m.walkDirs(ctx, from, 0, depth, hide, &dirs); err != nil {
		return nil, err
	}
	return dirs, nil
}

func (m *Manager) walkDirs(ctx context.Context, rel string, level, depth int, hide []string, out *[]Dir) error {
	filled := level < depth
	*out = append(*out, Dir{P: m.widgetPath(rel), Filled: filled})
	if !filled {
		return nil
	}

	infos, err := m.files.List(ctx, rel)
	if err != nil {
		return sourceError(OpDirList, rel, err)
	}
	var names []string
	for _, fi := range infos {
		if fi.IsDir() && !m.matcher.MatchAny(hide, fi.Name(), false) {
			names = append(names, fi.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool { return natsort.Less(names[i], names[j]) })

	for _, name := range names {
		if err := m.walkDirs(ctx, path.Join(rel, name), level+1, depth, hide, out); err != nil {
			return err
		}
	}
	return nil
}

// widgetPath converts a path relative to the files root into a widget path.
func (m *Manager) widgetPath(rel string) string {
	if rel == "/" || rel == "" {
		return "/" + m.rootName
	}
	return "/" + m.rootName + rel
}

// CreateDir creates directory name inside the widget directory dir.
func (m *Manager) CreateDir(ctx context.Context, dir, name string) error {
	parent, err := m.Resolve(dir)
	if err != nil {
		return err
	}
	if err := validName(OpCreateDir, name); err != nil {
		return err
	}
	p := path.Join(parent, name)
	if err := m.files.MakeDir(ctx, p); err != nil {
		return sourceError(OpCreateDir, p, err)
	}
	return nil
}

// DeleteDir removes a directory tree and the cached previews under it.
func (m *Manager) DeleteDir(ctx context.Context, dir string) error {
	p, err := m.Resolve(dir)
	if err != nil {
		return err
	}
	if p == "/" {
		return apperr.Newf(apperr.PathValidation, OpDeleteDir, p, "refusing to delete the root directory")
	}
	if info, err := m.files.Stat(ctx, p); err != nil || !info.IsDir() {
		return apperr.Newf(apperr.NotFound, OpDeleteDir, p, "no such directory")
	}
	if err := m.files.DeleteAll(ctx, p); err != nil {
		return sourceError(OpDeleteDir, p, err)
	}
	return m.cache.DeleteTree(ctx, p)
}

// Rename gives a file or directory a new name in the same parent.
func (m *Manager) Rename(ctx context.Context, target, newName string) error {
	if err := validName(OpRename, newName); err != nil {
		return err
	}
	p, err := m.Resolve(target)
	if err != nil {
		return err
	}
	return m.move(ctx, OpRename, p, path.Join(path.Dir(p), newName))
}

// MoveDir moves a directory into the widget directory newParent.
func (m *Manager) MoveDir(ctx context.Context, dir, newParent string) error {
	p, err := m.Resolve(dir)
	if err != nil {
		return err
	}
	parent, err := m.Resolve(newParent)
	if err != nil {
		return err
	}
	return m.move(ctx, OpMoveDir, p, path.Join(parent, path.Base(p)))
}

// MoveFiles moves files into the widget directory newDir.
func (m *Manager) MoveFiles(ctx context.Context, files []string, newDir string) error {
	paths, dst, err := m.resolveBatch(OpMoveFiles, files, newDir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := m.move(ctx, OpMoveFiles, p, path.Join(dst, path.Base(p))); err != nil {
			return err
		}
	}
	return nil
}

// CopyDir copies a directory tree to the widget path newPath.
func (m *Manager) CopyDir(ctx context.Context, dir, newPath string) error {
	src, err := m.Resolve(dir)
	if err != nil {
		return err
	}
	dst, err := m.Resolve(newPath)
	if err != nil {
		return err
	}
	if err := m.files.CopyDir(ctx, src, dst); err != nil {
		return sourceError(OpCopy, src, err)
	}
	return nil
}

// CopyFiles copies files into the widget directory newDir.
func (m *Manager) CopyFiles(ctx context.Context, files []string, newDir string) error {
	paths, dst, err := m.resolveBatch(OpCopy, files, newDir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := m.files.CopyObject(ctx, p, path.Join(dst, path.Base(p))); err != nil {
			return sourceError(OpCopy, p, err)
		}
	}
	return nil
}

// resolveBatch validates every path of a multi-file action before anything
// is touched.
func (m *Manager) resolveBatch(op string, files []string, dir string) ([]string, string, error) {
	if len(files) == 0 {
		return nil, "", apperr.Newf(apperr.MalformedRequest, op, "", "no files given")
	}
	paths := make([]string, len(files))
	for i, f := range files {
		p, err := m.Resolve(f)
		if err != nil {
			return nil, "", err
		}
		paths[i] = p
	}
	dst, err := m.Resolve(dir)
	if err != nil {
		return nil, "", err
	}
	return paths, dst, nil
}

// move renames src to dst and forgets the cached previews of src.
func (m *Manager) move(ctx context.Context, op, src, dst string) error {
	info, err := m.files.Stat(ctx, src)
	if err != nil {
		return sourceError(op, src, err)
	}
	if err := m.files.Move(ctx, src, dst); err != nil {
		return sourceError(op, src, err)
	}
	if info.IsDir() {
		return m.cache.DeleteTree(ctx, src)
	}
	return m.previews.Delete(ctx, src)
}
