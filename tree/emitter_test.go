package tree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	nsistest "github.com/cpcf/nsisgen/testing"
)

func lines(directives []Directive) []string {
	out := make([]string, 0, len(directives))
	for _, d := range directives {
		out = append(out, d.String())
	}
	return out
}

func emit(t *testing.T, fsys fs.FS, root string, opts ...Option) Result {
	t.Helper()
	result, err := New(opts...).Emit(context.Background(), fsys, root)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	return result
}

func TestEmitFilesBeforeSubdirectories(t *testing.T) {
	memFS := nsistest.NewMemoryFS()
	memFS.WriteFile("a.txt", []byte("a"))
	memFS.WriteFile("sub/b.txt", []byte("b"))

	result := emit(t, memFS, "/src")

	expected := []string{
		`SetOutPath "$INSTDIR"`,
		`File "\src\a.txt"`,
		`SetOutPath "$INSTDIR\sub"`,
		`File "\src\sub\b.txt"`,
	}
	if got := lines(result.Directives); !reflect.DeepEqual(got, expected) {
		t.Errorf("Directive mismatch.\nExpected: %q\nGot: %q", expected, got)
	}
}

func TestEmitDefersSubdirectoryListedFirst(t *testing.T) {
	memFS := nsistest.NewMemoryFS()
	memFS.WriteFile("sub/b.txt", []byte("b"))
	memFS.WriteFile("a.txt", []byte("a"))

	result := emit(t, memFS, "/src")

	expected := []Directive{
		{Kind: SetOutPath, Path: ""},
		{Kind: File, Path: `\src\a.txt`},
		{Kind: SetOutPath, Path: "sub"},
		{Kind: File, Path: `\src\sub\b.txt`},
	}
	if !reflect.DeepEqual(result.Directives, expected) {
		t.Errorf("Expected files before subdirectories, got %v", result.Directives)
	}
}

func TestEmitNestedDepthFirst(t *testing.T) {
	memFS := nsistest.NewMemoryFS()
	memFS.WriteFile("top.txt", nil)
	memFS.WriteFile("a/one.txt", nil)
	memFS.WriteFile("a/deep/two.txt", nil)
	memFS.WriteFile("b/three.txt", nil)

	result := emit(t, memFS, "C:/build/dist", WithOrder(LexicalOrder))

	expected := []string{
		`SetOutPath "$INSTDIR"`,
		`File "C:\build\dist\top.txt"`,
		`SetOutPath "$INSTDIR\a"`,
		`File "C:\build\dist\a\one.txt"`,
		`SetOutPath "$INSTDIR\a\deep"`,
		`File "C:\build\dist\a\deep\two.txt"`,
		`SetOutPath "$INSTDIR\b"`,
		`File "C:\build\dist\b\three.txt"`,
	}
	if got := lines(result.Directives); !reflect.DeepEqual(got, expected) {
		t.Errorf("Directive mismatch.\nExpected: %q\nGot: %q", expected, got)
	}

	if result.Stats != (Stats{Directories: 4, Files: 4}) {
		t.Errorf("Unexpected stats: %+v", result.Stats)
	}
}

func TestEmitEmptyRoot(t *testing.T) {
	result := emit(t, nsistest.NewMemoryFS(), "/src")
	if len(result.Directives) != 0 {
		t.Errorf("Expected no directives for empty source, got %v", lines(result.Directives))
	}
}

func TestEmitSkipsEmptyDirectory(t *testing.T) {
	memFS := nsistest.NewMemoryFS()
	memFS.WriteFile("a.txt", nil)
	memFS.Mkdir("empty")

	result := emit(t, memFS, "/src")

	expected := []string{`SetOutPath "$INSTDIR"`, `File "\src\a.txt"`}
	if got := lines(result.Directives); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected empty directory to emit nothing, got %q", got)
	}
}

func TestEmitDirectoryWithOnlySubdirectory(t *testing.T) {
	memFS := nsistest.NewMemoryFS()
	memFS.WriteFile("outer/inner/x.txt", nil)

	result := emit(t, memFS, "/src")

	expected := []string{
		`SetOutPath "$INSTDIR"`,
		`SetOutPath "$INSTDIR\outer"`,
		`SetOutPath "$INSTDIR\outer\inner"`,
		`File "\src\outer\inner\x.txt"`,
	}
	if got := lines(result.Directives); !reflect.DeepEqual(got, expected) {
		t.Errorf("Directive mismatch.\nExpected: %q\nGot: %q", expected, got)
	}
}

func TestEmitSkipsSymlinks(t *testing.T) {
	memFS := nsistest.NewMemoryFS()
	memFS.WriteFile("real.txt", nil)
	memFS.Symlink("real.txt", "link.txt")

	result := emit(t, memFS, "/src")

	for _, line := range lines(result.Directives) {
		if strings.Contains(line, "link.txt") {
			t.Errorf("Symlink leaked into output: %s", line)
		}
	}
	if result.Stats.Skipped != 1 || result.Stats.Files != 1 {
		t.Errorf("Unexpected stats: %+v", result.Stats)
	}
}

func TestEmitListingOrder(t *testing.T) {
	memFS := nsistest.NewMemoryFS()
	memFS.WriteFile("zeta.txt", nil)
	memFS.WriteFile("alpha.txt", nil)

	t.Run("Listing", func(t *testing.T) {
		result := emit(t, memFS, "/src", WithOrder(ListingOrder))
		if result.Directives[1].Path != `\src\zeta.txt` {
			t.Errorf("Expected listing order to be kept, got %v", lines(result.Directives))
		}
	})

	t.Run("Lexical", func(t *testing.T) {
		result := emit(t, memFS, "/src", WithOrder(LexicalOrder))
		if result.Directives[1].Path != `\src\alpha.txt` {
			t.Errorf("Expected lexical order, got %v", lines(result.Directives))
		}
	})
}

func TestEmitConcurrencyKeepsOrder(t *testing.T) {
	memFS := nsistest.NewMemoryFS()
	for d := 0; d < 5; d++ {
		for f := 0; f < 20; f++ {
			memFS.WriteFile(fmt.Sprintf("dir%d/file%02d.bin", d, 19-f), nil)
		}
		memFS.WriteFile(fmt.Sprintf("root%d.txt", d), nil)
	}

	sequential := emit(t, memFS, "/src", WithConcurrency(1))
	concurrent := emit(t, memFS, "/src", WithConcurrency(16))

	if !reflect.DeepEqual(sequential.Directives, concurrent.Directives) {
		t.Error("Concurrent status checks changed the directive order")
	}
	if sequential.Stats != concurrent.Stats {
		t.Errorf("Stats differ: %+v vs %+v", sequential.Stats, concurrent.Stats)
	}
}

func TestEmitPropagatesListingError(t *testing.T) {
	memFS := nsistest.NewMemoryFS()
	memFS.WriteFile("a.txt", nil)
	memFS.WriteFile("locked/b.txt", nil)
	memFS.Fail("locked", fs.ErrPermission)

	_, err := New().Emit(context.Background(), memFS, "/src")
	if err == nil {
		t.Fatal("Expected error for unreadable directory")
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Errorf("Expected permission error, got %v", err)
	}

	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) {
		t.Fatalf("Expected *fs.PathError, got %T", err)
	}
	if pathErr.Op != "readdir" || pathErr.Path != filepath.Join("/src", "locked") {
		t.Errorf("Unexpected error location: op=%s path=%s", pathErr.Op, pathErr.Path)
	}
}

func TestEmitPropagatesStatError(t *testing.T) {
	memFS := nsistest.NewMemoryFS()
	memFS.WriteFile("a.txt", nil)
	memFS.WriteFile("b.txt", nil)
	memFS.FailStat("b.txt", errors.New("i/o error"))

	for _, n := range []int{1, 8} {
		_, err := New(WithConcurrency(n)).Emit(context.Background(), memFS, "/src")
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) || pathErr.Op != "stat" {
			t.Errorf("concurrency %d: expected stat path error, got %v", n, err)
		}
	}
}

func TestEmitMissingRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")

	_, err := New().Emit(context.Background(), os.DirFS(dir), dir)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestEmitCanceledContext(t *testing.T) {
	memFS := nsistest.NewMemoryFS()
	memFS.WriteFile("a.txt", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().Emit(ctx, memFS, "/src"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestEmitRealFilesystem(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub", "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.txt", filepath.Join("sub", "b.txt")} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link.txt")); err != nil {
		t.Logf("symlinks unavailable, skipping link check: %v", err)
	}

	result := emit(t, os.DirFS(dir), dir, WithOrder(LexicalOrder))

	native := func(p string) string {
		return strings.ReplaceAll(filepath.ToSlash(p), "/", `\`)
	}
	expected := []string{
		`SetOutPath "$INSTDIR"`,
		`File "` + native(filepath.Join(dir, "a.txt")) + `"`,
		`SetOutPath "$INSTDIR\sub"`,
		`File "` + native(filepath.Join(dir, "sub", "b.txt")) + `"`,
	}
	if got := lines(result.Directives); !reflect.DeepEqual(got, expected) {
		t.Errorf("Directive mismatch.\nExpected: %q\nGot: %q", expected, got)
	}
}

func TestEmitIsRepeatable(t *testing.T) {
	memFS := nsistest.NewMemoryFS()
	memFS.WriteFile("x/1.txt", nil)
	memFS.WriteFile("y/2.txt", nil)
	memFS.WriteFile("3.txt", nil)

	emitter := New()
	first, err := emitter.Emit(context.Background(), memFS, "/src")
	if err != nil {
		t.Fatal(err)
	}
	second, err := emitter.Emit(context.Background(), memFS, "/src")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Two walks of the same tree differ")
	}
}
