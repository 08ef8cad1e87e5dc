package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
	fired chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan struct{}, 16)}
}

func (r *recorder) onChange(_ context.Context, changed []string) error {
	r.mu.Lock()
	r.calls = append(r.calls, changed)
	r.mu.Unlock()
	r.fired <- struct{}{}
	return nil
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		out = append(out, c...)
	}
	return out
}

func start(t *testing.T, cfg Config) {
	t.Helper()
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run failed: %v", err)
		}
	})
}

func TestWatcher_DebouncesSourceChanges(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	start(t, Config{SourceDir: dir, Debounce: 100 * time.Millisecond, OnChange: rec.onChange})

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec.wait(t)
	time.Sleep(250 * time.Millisecond)

	rec.mu.Lock()
	calls := len(rec.calls)
	rec.mu.Unlock()
	if calls != 1 {
		t.Errorf("Expected one debounced callback, got %d", calls)
	}

	changed := rec.all()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if !slices.Contains(changed, filepath.Join(dir, name)) {
			t.Errorf("Expected %s in %v", name, changed)
		}
	}
}

func TestWatcher_NewSubdirectoriesAreWatched(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	start(t, Config{SourceDir: dir, Debounce: 50 * time.Millisecond, OnChange: rec.onChange})

	sub := filepath.Join(dir, "lib")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)

	if err := os.WriteFile(filepath.Join(sub, "c.dll"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)

	if !slices.Contains(rec.all(), filepath.Join(sub, "c.dll")) {
		t.Errorf("Change inside new directory not seen: %v", rec.all())
	}
}

func TestWatcher_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "nsisgen.yaml")
	if err := os.WriteFile(cfgPath, []byte("name: a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := newRecorder()
	start(t, Config{Files: []string{cfgPath}, Debounce: 50 * time.Millisecond, OnChange: rec.onChange})

	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := os.WriteFile(cfgPath, []byte("name: b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)

	changed := rec.all()
	if !slices.Contains(changed, cfgPath) {
		t.Errorf("Expected config change, got %v", changed)
	}
	if slices.Contains(changed, filepath.Join(dir, "unrelated.txt")) {
		t.Error("Sibling of the config file triggered a rebuild")
	}
}

func TestWatcher_Ignores(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "setup.nsi")

	rec := newRecorder()
	start(t, Config{
		SourceDir:   dir,
		Ignore:      []string{"**/*.log"},
		IgnorePaths: []string{script},
		Debounce:    50 * time.Millisecond,
		OnChange:    rec.onChange,
	})

	for _, name := range []string{"debug.log", "setup.nsi", "scratch.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "app.exe"), []byte("MZ"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)

	changed := rec.all()
	if !slices.Contains(changed, filepath.Join(dir, "app.exe")) {
		t.Errorf("Expected app.exe in %v", changed)
	}
	for _, name := range []string{"debug.log", "setup.nsi", "scratch.tmp"} {
		if slices.Contains(changed, filepath.Join(dir, name)) {
			t.Errorf("Ignored %s triggered a rebuild", name)
		}
	}
}

func TestWatcher_RunTwice(t *testing.T) {
	w, err := New(Config{SourceDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := w.Run(ctx); err == nil {
		t.Error("Expected error from second Run")
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("Expected error with nothing to watch")
	}
	if _, err := New(Config{SourceDir: t.TempDir(), Ignore: []string{"[unclosed"}}); err == nil {
		t.Error("Expected error for invalid ignore pattern")
	}
	if _, err := New(Config{SourceDir: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("Expected error for missing source directory")
	}
}

func TestIsIgnored(t *testing.T) {
	w := &Watcher{ignores: append(slices.Clone(defaultIgnores), "build/**")}

	tests := []struct {
		rel  string
		want bool
	}{
		{"a.txt", false},
		{filepath.Join("lib", "c.dll"), false},
		{filepath.Join(".git", "HEAD"), true},
		{"notes.txt~", true},
		{".setup.nsi.123.tmp", true},
		{".nsisgen.manifest.json", true},
		{filepath.Join("build", "out.exe"), true},
	}
	for _, tt := range tests {
		if got := w.isIgnored(tt.rel); got != tt.want {
			t.Errorf("isIgnored(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}
