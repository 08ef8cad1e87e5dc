// Package testing provides an in-memory filesystem and golden snapshots for
// tests of the generator.
package testing

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"time"
)

// MemoryFS is an fs.FS that remembers the order entries were added in.
//
// ReadDir on the filesystem returns entries sorted by name, as fs.ReadDirFS
// requires. ReadDir on an opened directory handle returns them in insertion
// order, which stands in for the unsorted listing a real directory yields.
type MemoryFS struct {
	files      map[string]*MemoryFile
	order      []string
	faults     map[string]error
	statFaults map[string]error
}

type MemoryFile struct {
	name    string
	content []byte
	mode    fs.FileMode
	modTime time.Time
	target  string
}

func NewMemoryFS() *MemoryFS {
	return &MemoryFS{
		files:      make(map[string]*MemoryFile),
		faults:     make(map[string]error),
		statFaults: make(map[string]error),
	}
}

func (mfs *MemoryFS) WriteFile(name string, data []byte) {
	mfs.add(&MemoryFile{
		name:    path.Clean(name),
		content: data,
		mode:    0o644,
	})
}

// Mkdir adds a directory, which may stay empty.
func (mfs *MemoryFS) Mkdir(name string) {
	name = path.Clean(name)
	if name == "." {
		return
	}
	if _, exists := mfs.files[name]; exists {
		return
	}
	mfs.add(&MemoryFile{
		name: name,
		mode: 0o755 | fs.ModeDir,
	})
}

// Symlink adds a symbolic link. Links are never followed; Stat and Info
// describe the link itself.
func (mfs *MemoryFS) Symlink(target, name string) {
	mfs.add(&MemoryFile{
		name:   path.Clean(name),
		mode:   0o777 | fs.ModeSymlink,
		target: target,
	})
}

// Fail makes opening or listing name return err, simulating permission and
// I/O errors.
func (mfs *MemoryFS) Fail(name string, err error) {
	mfs.faults[path.Clean(name)] = err
}

// FailStat makes the status check of the entry name return err.
func (mfs *MemoryFS) FailStat(name string, err error) {
	mfs.statFaults[path.Clean(name)] = err
}

func (mfs *MemoryFS) add(file *MemoryFile) {
	file.modTime = time.Now()
	mfs.Mkdir(path.Dir(file.name))
	if _, exists := mfs.files[file.name]; !exists {
		mfs.order = append(mfs.order, file.name)
	}
	mfs.files[file.name] = file
}

func (mfs *MemoryFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	name = path.Clean(name)
	if err := mfs.faults[name]; err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if name == "." {
		return &memoryFileHandle{file: &MemoryFile{name: ".", mode: 0o755 | fs.ModeDir}, mfs: mfs, path: name}, nil
	}
	file, exists := mfs.files[name]
	if !exists {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &memoryFileHandle{file: file, mfs: mfs, path: name}, nil
}

// ReadDir returns the entries of name sorted by filename.
func (mfs *MemoryFS) ReadDir(name string) ([]fs.DirEntry, error) {
	entries, err := mfs.listing("readdir", name)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries, nil
}

func (mfs *MemoryFS) listing(op, name string) ([]fs.DirEntry, error) {
	name = path.Clean(name)
	if err := mfs.faults[name]; err != nil {
		return nil, &fs.PathError{Op: op, Path: name, Err: err}
	}
	if name != "." {
		dir, exists := mfs.files[name]
		if !exists {
			return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
		}
		if !dir.IsDir() {
			return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
		}
	}

	entries := []fs.DirEntry{}
	for _, filePath := range mfs.order {
		if path.Dir(filePath) == name {
			entries = append(entries, &memoryDirEntry{file: mfs.files[filePath], mfs: mfs})
		}
	}
	return entries, nil
}

type memoryFileHandle struct {
	file   *MemoryFile
	mfs    *MemoryFS
	path   string
	offset int
	listed bool
}

func (f *memoryFileHandle) Read(b []byte) (int, error) {
	if f.file.IsDir() {
		return 0, &fs.PathError{Op: "read", Path: f.path, Err: fs.ErrInvalid}
	}

	if f.offset >= len(f.file.content) {
		return 0, io.EOF
	}

	n := copy(b, f.file.content[f.offset:])
	f.offset += n
	return n, nil
}

func (f *memoryFileHandle) Stat() (fs.FileInfo, error) {
	return f.file, nil
}

func (f *memoryFileHandle) Close() error {
	return nil
}

// ReadDir returns the directory entries in insertion order.
func (f *memoryFileHandle) ReadDir(n int) ([]fs.DirEntry, error) {
	if !f.file.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: f.path, Err: fs.ErrInvalid}
	}

	if f.listed {
		if n > 0 {
			return nil, io.EOF
		}
		return nil, nil
	}

	entries, err := f.mfs.listing("readdir", f.path)
	if err != nil {
		return nil, err
	}
	f.listed = true

	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}
	return entries, nil
}

type memoryDirEntry struct {
	file *MemoryFile
	mfs  *MemoryFS
}

func (e *memoryDirEntry) Name() string {
	return path.Base(e.file.name)
}

func (e *memoryDirEntry) IsDir() bool {
	return e.file.IsDir()
}

func (e *memoryDirEntry) Type() fs.FileMode {
	return e.file.mode.Type()
}

func (e *memoryDirEntry) Info() (fs.FileInfo, error) {
	if err := e.mfs.statFaults[e.file.name]; err != nil {
		return nil, &fs.PathError{Op: "lstat", Path: e.file.name, Err: err}
	}
	return e.file, nil
}

func (f *MemoryFile) Name() string {
	return path.Base(f.name)
}

func (f *MemoryFile) Size() int64 {
	return int64(len(f.content))
}

func (f *MemoryFile) Mode() fs.FileMode {
	return f.mode
}

func (f *MemoryFile) ModTime() time.Time {
	return f.modTime
}

func (f *MemoryFile) IsDir() bool {
	return f.mode.IsDir()
}

func (f *MemoryFile) Sys() any {
	return nil
}

// Target returns the link target of a symlink and "" otherwise.
func (f *MemoryFile) Target() string {
	return f.target
}
