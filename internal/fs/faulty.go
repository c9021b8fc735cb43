package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected fault")

// Fault describes how a matching file should misbehave.
type Fault struct {
	// FailWrites makes every Write on the file return the fault error.
	FailWrites bool

	// FailSync makes Sync return the fault error.
	FailSync bool

	// Err overrides ErrInjected as the returned error.
	Err error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}

	return ErrInjected
}

// FaultyFS wraps a FileSystem and injects errors into files whose path
// contains a registered pattern. Used to exercise degraded-durability and
// failed-compaction paths in tests.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	rules map[string]Fault
}

// NewFaultyFS wraps the given file system (Default when nil).
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}

	return &FaultyFS{
		FS:    fsys,
		rules: make(map[string]Fault),
	}
}

// FailPath registers a fault for every file whose path contains pattern.
func (f *FaultyFS) FailPath(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules[pattern] = fault
}

// Clear drops all registered faults.
func (f *FaultyFS) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules = make(map[string]Fault)
}

func (f *FaultyFS) match(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for pattern, fault := range f.rules {
		if strings.Contains(name, pattern) {
			return fault, true
		}
	}

	return Fault{}, false
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	// Rules are evaluated per operation, not at open time, so faults can
	// be armed while a file is already in use.
	return &faultyFile{File: file, fs: f, name: name}, nil
}

func (f *FaultyFS) Remove(name string) error             { return f.FS.Remove(name) }
func (f *FaultyFS) Rename(oldpath, newpath string) error { return f.FS.Rename(oldpath, newpath) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) {
	return f.FS.Stat(name)
}
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

type faultyFile struct {
	File
	fs   *FaultyFS
	name string
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if fault, ok := ff.fs.match(ff.name); ok && fault.FailWrites {
		return 0, fault.err()
	}

	return ff.File.Write(p)
}

func (ff *faultyFile) Sync() error {
	if fault, ok := ff.fs.match(ff.name); ok && fault.FailSync {
		return fault.err()
	}

	return ff.File.Sync()
}
