// Package watch regenerates a script when the packaged tree or the package
// configuration changes.
//
// The source directory is watched recursively; directories created later are
// added as they appear. Configuration files are watched through their parent
// directory so editors that replace files by rename are still seen. Bursts of
// events are coalesced and OnChange runs once per quiet period.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 300 * time.Millisecond

// defaultIgnores never trigger a rebuild. They are matched against paths
// relative to the source directory.
var defaultIgnores = []string{
	"**/.git/**",
	"**/*.swp",
	"**/*~",
	"**/.DS_Store",
	"**/*.tmp",
	"**/.nsisgen.manifest.json*",
}

type Config struct {
	// SourceDir is watched recursively. Empty means only Files are watched.
	SourceDir string
	// Files are individual files, such as the configuration and .env files.
	Files []string
	// Ignore adds doublestar patterns, relative to SourceDir.
	Ignore []string
	// IgnorePaths are host paths that never trigger a rebuild, such as the
	// generated script when it lives inside SourceDir.
	IgnorePaths []string
	Debounce    time.Duration
	Logger      *slog.Logger
	// OnChange receives the absolute paths that changed since the last call.
	OnChange func(ctx context.Context, changed []string) error
}

type Watcher struct {
	cfg         Config
	fsw         *fsnotify.Watcher
	logger      *slog.Logger
	sourceDir   string
	files       map[string]struct{}
	ignores     []string
	ignorePaths map[string]struct{}
	debounce    time.Duration
	started     atomic.Bool
}

func New(cfg Config) (*Watcher, error) {
	if cfg.SourceDir == "" && len(cfg.Files) == 0 {
		return nil, errors.New("watch: nothing to watch")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	for _, pat := range cfg.Ignore {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("watch: invalid ignore pattern %q", pat)
		}
	}

	w := &Watcher{
		cfg:         cfg,
		logger:      logger,
		files:       make(map[string]struct{}),
		ignores:     append(slices.Clone(defaultIgnores), cfg.Ignore...),
		ignorePaths: make(map[string]struct{}),
		debounce:    debounce,
	}

	for _, p := range cfg.IgnorePaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve %q: %w", p, err)
		}
		w.ignorePaths[abs] = struct{}{}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.register(); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			logger.Warn("watch: close after init failure", "error", closeErr)
		}
		return nil, err
	}

	return w, nil
}

func (w *Watcher) register() error {
	if w.cfg.SourceDir != "" {
		abs, err := filepath.Abs(w.cfg.SourceDir)
		if err != nil {
			return fmt.Errorf("watch: resolve source directory: %w", err)
		}
		w.sourceDir = abs
		if err := w.addTree(abs); err != nil {
			return err
		}
	}

	dirs := make(map[string]struct{})
	for _, f := range w.cfg.Files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("watch: resolve %q: %w", f, err)
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", dir, err)
		}
	}
	return nil
}

// Run blocks until ctx is canceled. It may only be called once.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire skips a run while the previous one is still going and re-arms
	// the timer so the pending set is not lost.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			w.logger.Debug("rebuild still running, deferring")
			mu.Lock()
			timer.Reset(w.debounce)
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		w.logger.Info("change detected", "paths", len(changed))
		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Error("rebuild failed", "error", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("watch: close fsnotify", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if !w.relevant(evt) {
				continue
			}

			mu.Lock()
			pending[evt.Name] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("watch: event queue overflowed, some changes may be missed", "error", err)
				continue
			}
			w.logger.Warn("watch: fsnotify error", "error", err)
		}
	}
}

// relevant filters an event down to watched files and non-ignored source
// paths, adding new source directories as a side effect.
func (w *Watcher) relevant(evt fsnotify.Event) bool {
	if evt.Has(fsnotify.Chmod) && !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
		return false
	}
	if _, ok := w.ignorePaths[evt.Name]; ok {
		return false
	}
	if _, ok := w.files[evt.Name]; ok {
		return true
	}

	rel, ok := w.sourceRelative(evt.Name)
	if !ok || w.isIgnored(rel) {
		return false
	}

	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if err := w.addTree(evt.Name); err != nil {
				w.logger.Warn("watch: add new directory", "path", evt.Name, "error", err)
			}
		}
	}
	return true
}

func (w *Watcher) sourceRelative(path string) (string, bool) {
	if w.sourceDir == "" {
		return "", false
	}
	rel, err := filepath.Rel(w.sourceDir, path)
	if err != nil || rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return "", false
	}
	return rel, true
}

// addTree registers root and every non-ignored directory below it.
// Unreadable directories are skipped with a warning.
func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			w.logger.Warn("watch: skipping inaccessible path", "path", path, "error", walkErr)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.sourceRelative(path); ok && rel != "." && (w.isIgnored(rel) || w.isIgnored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", root, err)
	}
	return nil
}

func (w *Watcher) isIgnored(rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}
