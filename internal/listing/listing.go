// Package listing builds paged directory listings for the file manager.
//
// A listing groups format siblings (photo_thumb.jpg next to photo.jpg) under
// their base image, applies the allow, deny and filter wildcard passes, sorts
// with natural string order and cuts a page, keeping pinned names in front.
package listing

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flmngr/flmngr-server-go/internal/apperr"
	"github.com/flmngr/flmngr-server-go/internal/logging"
	"github.com/flmngr/flmngr-server-go/internal/metrics"
	"github.com/flmngr/flmngr-server-go/internal/natsort"
	"github.com/flmngr/flmngr-server-go/internal/preview"
	"github.com/flmngr/flmngr-server-go/internal/wildcard"
)

// Sort fields.
const (
	OrderByName = "name"
	OrderByDate = "date"
	OrderBySize = "size"
)

// DefaultFilter matches every file.
const DefaultFilter = "*"

// Format is one configured format family member. A file whose name without
// extension ends in Suffix belongs to the family of the base image.
type Format struct {
	ID     string
	Suffix string
}

// Options control a single listing request.
type Options struct {
	Formats   []Format
	Allow     []string
	Deny      []string
	Filter    string
	OrderBy   string
	Asc       bool
	PageSize  int
	LastFile  *string
	LastIndex *int
	Pinned    []string
}

// RawEntry is one file of a directory as enumerated from storage.
type RawEntry struct {
	Name  string
	MTime float64
	Size  int64
}

// Entry is a file on a listing page.
type Entry struct {
	Name      string            `json:"name"`
	Size      int64             `json:"size"`
	Timestamp float64           `json:"timestamp"`
	Width     *int              `json:"width,omitempty"`
	Height    *int              `json:"height,omitempty"`
	BlurHash  *string           `json:"blurHash,omitempty"`
	Formats   map[string]*Entry `json:"formats,omitempty"`
}

// Page is the result of a listing request.
type Page struct {
	Files         []*Entry `json:"files"`
	CountTotal    int      `json:"countTotal"`
	CountFiltered int      `json:"countFiltered"`
	IsEnd         bool     `json:"isEnd"`
}

// Lister enumerates the direct children of a directory.
type Lister interface {
	List(ctx context.Context, dir string) ([]fs.FileInfo, error)
}

// InfoProvider returns cached image metadata for a file path.
type InfoProvider interface {
	Info(ctx context.Context, path string) (*preview.Record, error)
}

// Engine produces listing pages.
type Engine struct {
	lister  Lister
	info    InfoProvider
	matcher wildcard.Matcher
}

// NewEngine creates a listing engine. A nil matcher uses glob matching.
func NewEngine(lister Lister, info InfoProvider, matcher wildcard.Matcher) *Engine {
	if matcher == nil {
		matcher = wildcard.New()
	}
	return &Engine{lister: lister, info: info, matcher: matcher}
}

// ListPage enumerates dir and returns one page of its files.
func (e *Engine) ListPage(ctx context.Context, dir string, opts Options) (*Page, error) {
	infos, err := e.lister.List(ctx, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.New(apperr.NotFound, "listing.ListPage", dir, err)
		}
		return nil, apperr.New(apperr.SourceIO, "listing.ListPage", dir, err)
	}

	raw := make([]RawEntry, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		raw = append(raw, RawEntry{
			Name:  fi.Name(),
			MTime: preview.MTimeMillis(fi.ModTime()),
			Size:  fi.Size(),
		})
	}
	return e.PageOf(ctx, dir, raw, opts)
}

// PageOf builds a page from an already enumerated directory.
func (e *Engine) PageOf(ctx context.Context, dir string, raw []RawEntry, opts Options) (*Page, error) {
	if opts.PageSize < 1 {
		return nil, apperr.Newf(apperr.MalformedRequest, "listing.PageOf", dir, "page size %d", opts.PageSize)
	}
	if opts.Filter == "" {
		opts.Filter = DefaultFilter
	}
	start := time.Now()

	g := group(raw, opts.Formats)

	if len(opts.Allow) > 0 {
		g.retain(func(name string) bool { return e.matchAny(opts.Allow, name, false) })
	}
	g.retain(func(name string) bool { return !e.matchAny(opts.Deny, name, false) })
	countTotal := len(g.primaries)

	g.retain(func(name string) bool { return e.matcher.Match(opts.Filter, name, true) })
	countFiltered := len(g.primaries)

	names := sortNames(g.primaries, opts.OrderBy, opts.Asc)
	pageNames, isEnd := paginate(names, opts)

	files := make([]*Entry, 0, len(pageNames))
	for _, name := range pageNames {
		entry, err := e.Describe(ctx, dir, g.byName[name])
		if err != nil {
			return nil, err
		}
		for _, f := range opts.Formats {
			sibling, ok := g.siblings[f.ID][name]
			if !ok {
				continue
			}
			se, err := e.Describe(ctx, dir, sibling)
			if err != nil {
				return nil, err
			}
			if entry.Formats == nil {
				entry.Formats = make(map[string]*Entry)
			}
			entry.Formats[f.ID] = se
		}
		files = append(files, entry)
	}

	metrics.RecordListing(time.Since(start), len(files))
	logging.Debug("listing page built",
		zap.String("dir", dir),
		zap.Int("raw", len(raw)),
		zap.Int("total", countTotal),
		zap.Int("filtered", countFiltered),
		zap.Int("page", len(files)),
		zap.Bool("isEnd", isEnd),
	)

	return &Page{
		Files:         files,
		CountTotal:    countTotal,
		CountFiltered: countFiltered,
		IsEnd:         isEnd,
	}, nil
}

func (e *Engine) matchAny(patterns []string, name string, caseInsensitive bool) bool {
	for _, p := range patterns {
		if e.matcher.Match(p, name, caseInsensitive) {
			return true
		}
	}
	return false
}

// Describe turns a raw entry of dir into a page entry. Images also get the
// cached dimensions and blurHash, when known.
func (e *Engine) Describe(ctx context.Context, dir string, raw RawEntry) (*Entry, error) {
	entry := &Entry{Name: raw.Name, Size: raw.Size, Timestamp: raw.MTime}
	if !preview.IsImage(raw.Name) || e.info == nil {
		return entry, nil
	}
	rec, err := e.info.Info(ctx, path.Join("/", dir, raw.Name))
	if err != nil {
		return nil, err
	}
	if rec != nil {
		entry.Width, entry.Height, entry.BlurHash = rec.Width, rec.Height, rec.BlurHash
	}
	return entry, nil
}

// grouping is a directory split into primaries and per-format siblings.
type grouping struct {
	primaries []RawEntry
	byName    map[string]RawEntry
	// siblings maps format ID to base name to sibling entry.
	siblings map[string]map[string]RawEntry
}

func group(raw []RawEntry, formats []Format) *grouping {
	g := &grouping{
		byName:   make(map[string]RawEntry, len(raw)),
		siblings: make(map[string]map[string]RawEntry, len(formats)),
	}
	for _, f := range formats {
		g.siblings[f.ID] = make(map[string]RawEntry)
	}

	for _, r := range raw {
		if base, id, ok := siblingOf(r.Name, formats); ok {
			g.siblings[id][base] = r
			continue
		}
		g.primaries = append(g.primaries, r)
		g.byName[r.Name] = r
	}
	return g
}

// siblingOf reports whether name is a format sibling, returning the name of
// its base image and the format ID. The first matching suffix wins.
func siblingOf(name string, formats []Format) (string, string, bool) {
	if !preview.IsImage(name) {
		return "", "", false
	}
	stem := preview.NameWithoutExt(name)
	for _, f := range formats {
		if f.Suffix == "" || !strings.HasSuffix(stem, f.Suffix) {
			continue
		}
		return stem[:len(stem)-len(f.Suffix)] + path.Ext(name), f.ID, true
	}
	return "", "", false
}

// retain keeps the primaries for which keep returns true and drops the
// siblings of every removed primary.
func (g *grouping) retain(keep func(name string) bool) {
	kept := g.primaries[:0]
	for _, p := range g.primaries {
		if keep(p.Name) {
			kept = append(kept, p)
			continue
		}
		delete(g.byName, p.Name)
		for _, s := range g.siblings {
			delete(s, p.Name)
		}
	}
	g.primaries = kept
}

// sortNames orders primaries by the requested field with the other two as
// tie breakers, then reverses for descending order.
func sortNames(entries []RawEntry, orderBy string, asc bool) []string {
	sorted := make([]RawEntry, len(entries))
	copy(sorted, entries)

	keys := keyOrder(orderBy)
	sort.SliceStable(sorted, func(i, j int) bool {
		for _, k := range keys {
			if c := k(sorted[i], sorted[j]); c != 0 {
				return c < 0
			}
		}
		return false
	})

	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.Name
	}
	if !asc {
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
	}
	return names
}

type compareFunc func(a, b RawEntry) int

func byName(a, b RawEntry) int { return natsort.Compare(a.Name, b.Name) }

func byDate(a, b RawEntry) int {
	switch {
	case a.MTime < b.MTime:
		return -1
	case a.MTime > b.MTime:
		return 1
	}
	return 0
}

func bySize(a, b RawEntry) int {
	switch {
	case a.Size < b.Size:
		return -1
	case a.Size > b.Size:
		return 1
	}
	return 0
}

func keyOrder(orderBy string) []compareFunc {
	switch orderBy {
	case OrderByDate:
		return []compareFunc{byDate, byName, bySize}
	case OrderBySize:
		return []compareFunc{bySize, byName, byDate}
	default:
		return []compareFunc{byName, byDate, bySize}
	}
}

// paginate cuts one page out of the sorted names. Pinned names that exist are
// moved to the front of a bounded page; missing ones are dropped.
func paginate(names []string, opts Options) ([]string, bool) {
	start := 0
	if opts.LastIndex != nil {
		start = min(max(*opts.LastIndex, -1), len(names)-1) + 1
	}
	if opts.LastFile != nil {
		for i, n := range names {
			if n == *opts.LastFile {
				start = i + 1
				break
			}
		}
	}
	start = max(start, 0)

	// Both operands stay within len(names), so the sums below cannot overflow.
	size := min(opts.PageSize, len(names))
	isEnd := start+size >= len(names)
	if start == 0 && size >= len(names) {
		return names, isEnd
	}

	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	var pins []string
	pinned := make(map[string]bool, len(opts.Pinned))
	for _, p := range opts.Pinned {
		if present[p] && !pinned[p] {
			pins = append(pins, p)
			pinned[p] = true
		}
	}

	rest := make([]string, 0, len(names))
	for _, n := range names {
		if !pinned[n] {
			rest = append(rest, n)
		}
	}

	lo := min(start, len(rest))
	hi := min(start+size, len(rest))
	page := make([]string, 0, len(pins)+hi-lo)
	page = append(page, pins...)
	return append(page, rest[lo:hi]...), isEnd
}
