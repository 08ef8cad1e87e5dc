// Package tree turns a source directory into the ordered SetOutPath/File
// directives of an install section.
//
// The walk is depth-first. Within a directory every regular file is listed
// before any subdirectory is entered, and each non-empty directory opens with
// its own SetOutPath directive:
//
//	SetOutPath "$INSTDIR"
//	File "C:\src\a.txt"
//	SetOutPath "$INSTDIR\sub"
//	File "C:\src\sub\b.txt"
//
// Entries that are neither regular files nor directories (symlinks, devices,
// sockets) are left out of the output.
package tree

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/cpcf/nsisgen/render"
)

// Order controls how the entries of one directory are sequenced.
type Order int

const (
	// ListingOrder keeps the order returned by the directory listing. It
	// differs between filesystems and platforms.
	ListingOrder Order = iota
	// LexicalOrder sorts entries by name.
	LexicalOrder
)

// Stats counts what a walk saw.
type Stats struct {
	Directories int
	Files       int
	Skipped     int
}

// Result is the outcome of a walk.
type Result struct {
	Directives []Directive
	Stats      Stats
}

type entryKind int

const (
	kindOther entryKind = iota
	kindFile
	kindDir
)

type Emitter struct {
	logger      *slog.Logger
	order       Order
	concurrency int
}

type Option func(*Emitter)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		e.logger = logger
	}
}

func WithOrder(order Order) Option {
	return func(e *Emitter) {
		e.order = order
	}
}

// WithConcurrency sets how many status checks of sibling entries may run at
// once. Values below 2 check entries one at a time. The directive order is
// the same either way.
func WithConcurrency(n int) Option {
	return func(e *Emitter) {
		e.concurrency = n
	}
}

func New(opts ...Option) *Emitter {
	e := &Emitter{
		logger:      slog.Default(),
		order:       ListingOrder,
		concurrency: 8,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Emit walks fsys from its root and returns the directives in installer
// order. root is the host path fsys is rooted at; it only appears in the
// rendered File paths and in error messages.
//
// Any listing or status error aborts the walk. The returned error is an
// *fs.PathError naming the host path that failed.
func (e *Emitter) Emit(ctx context.Context, fsys fs.FS, root string) (Result, error) {
	w := &walk{
		emitter: e,
		fsys:    fsys,
		root:    root,
		base:    filepath.ToSlash(root),
	}

	directives, err := w.dir(ctx, ".")
	if err != nil {
		return Result{}, err
	}

	e.logger.Debug("walked source tree",
		"root", root,
		"directories", w.stats.Directories,
		"files", w.stats.Files,
		"skipped", w.stats.Skipped)

	return Result{Directives: directives, Stats: w.stats}, nil
}

// walk is the state of a single Emit call.
type walk struct {
	emitter *Emitter
	fsys    fs.FS
	root    string
	base    string
	stats   Stats
}

func (w *walk) dir(ctx context.Context, dir string) ([]Directive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := w.list(dir)
	if err != nil {
		return nil, w.pathError("readdir", dir, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	kinds, err := w.classify(ctx, dir, entries)
	if err != nil {
		return nil, err
	}

	w.stats.Directories++
	out := []Directive{{Kind: SetOutPath, Path: w.relative(dir)}}

	var subdirs []string
	for i, entry := range entries {
		name := path.Join(dir, entry.Name())
		switch kinds[i] {
		case kindFile:
			w.stats.Files++
			out = append(out, Directive{Kind: File, Path: w.absolute(name)})
		case kindDir:
			subdirs = append(subdirs, name)
		default:
			w.stats.Skipped++
			w.emitter.logger.Debug("skipping entry that is neither a file nor a directory",
				"path", w.hostPath(name))
		}
	}

	for _, sub := range subdirs {
		directives, err := w.dir(ctx, sub)
		if err != nil {
			return nil, err
		}
		out = append(out, directives...)
	}

	return out, nil
}

func (w *walk) list(dir string) ([]fs.DirEntry, error) {
	if w.emitter.order == LexicalOrder {
		return fs.ReadDir(w.fsys, dir)
	}

	// fs.ReadDir sorts by name, so read the raw listing from the handle.
	f, err := w.fsys.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rdf, ok := f.(fs.ReadDirFile)
	if !ok {
		return fs.ReadDir(w.fsys, dir)
	}
	return rdf.ReadDir(-1)
}

// classify runs a status check on every entry. Results are stored by index so
// concurrent checks cannot reorder the output.
func (w *walk) classify(ctx context.Context, dir string, entries []fs.DirEntry) ([]entryKind, error) {
	kinds := make([]entryKind, len(entries))

	check := func(i int) error {
		info, err := entries[i].Info()
		if err != nil {
			return w.pathError("stat", path.Join(dir, entries[i].Name()), err)
		}
		switch mode := info.Mode(); {
		case mode.IsRegular():
			kinds[i] = kindFile
		case mode.IsDir():
			kinds[i] = kindDir
		default:
			kinds[i] = kindOther
		}
		return nil
	}

	if w.emitter.concurrency < 2 || len(entries) < 2 {
		for i := range entries {
			if err := check(i); err != nil {
				return nil, err
			}
		}
		return kinds, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.emitter.concurrency)
	for i := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return check(i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return kinds, nil
}

// relative renders dir for SetOutPath; the root becomes the empty path.
func (w *walk) relative(dir string) string {
	if dir == "." {
		return ""
	}
	return render.WindowsPath(dir)
}

func (w *walk) absolute(name string) string {
	return render.WindowsPath(path.Join(w.base, name))
}

func (w *walk) hostPath(name string) string {
	return filepath.Join(w.root, filepath.FromSlash(name))
}

// pathError reports err against the host path of name, dropping the
// fs-relative path an inner *fs.PathError already carries.
func (w *walk) pathError(op, name string, err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	return &fs.PathError{Op: op, Path: w.hostPath(name), Err: err}
}
