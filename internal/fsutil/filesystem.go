// Package fsutil provides filesystem abstractions for testability.
package fsutil

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrFinished is returned when a PendingFile is used after Commit or Discard.
var ErrFinished = errors.New("pending file already finished")

// FileSystem abstracts the file operations the downsampler needs.
// Use OSFileSystem for production; MemoryFileSystem for testing.
type FileSystem interface {
	// Open opens the named file for reading.
	Open(name string) (fs.File, error)

	// CreateAtomic starts writing name. Nothing is visible at name until
	// Commit succeeds; Discard drops the pending data.
	CreateAtomic(name string) (PendingFile, error)

	// Exists checks if a file exists.
	Exists(name string) bool
}

// PendingFile is a file being written that replaces its destination on Commit.
type PendingFile interface {
	io.Writer

	// Commit flushes the data and moves it into place.
	Commit() error

	// Discard abandons the write. It is safe to call after Commit.
	Discard() error
}

// OSFileSystem implements FileSystem using the os package.
type OSFileSystem struct{}

// Open opens the named file.
func (OSFileSystem) Open(name string) (fs.File, error) {
	return os.Open(name)
}

// CreateAtomic writes to a temp file in the destination directory and
// renames it over name on Commit.
func (OSFileSystem) CreateAtomic(name string) (PendingFile, error) {
	dir, base := filepath.Split(filepath.Clean(name))
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &osPendingFile{f: tmp, dest: name}, nil
}

// Exists checks if a file exists.
func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

type osPendingFile struct {
	f    *os.File
	dest string
	done bool
}

func (p *osPendingFile) Write(b []byte) (int, error) {
	if p.done {
		return 0, ErrFinished
	}
	return p.f.Write(b)
}

func (p *osPendingFile) Commit() error {
	if p.done {
		return ErrFinished
	}
	p.done = true
	tmpName := p.f.Name()
	if err := p.f.Sync(); err != nil {
		p.f.Close()
		os.Remove(tmpName)
		return err
	}
	if err := p.f.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	// CreateTemp uses 0600; match what os.Create would have produced.
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p.dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (p *osPendingFile) Discard() error {
	if p.done {
		return nil
	}
	p.done = true
	p.f.Close()
	return os.Remove(p.f.Name())
}

// MemoryFileSystem provides an in-memory filesystem for testing.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte

	// FailWrites makes every PendingFile.Write fail, to exercise sink errors.
	FailWrites bool
}

// NewMemoryFileSystem creates a new in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{files: make(map[string][]byte)}
}

// WriteFile stores data under name, replacing any previous contents.
func (m *MemoryFileSystem) WriteFile(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(name)] = bytes.Clone(data)
}

// ReadFile returns a copy of the named file's contents.
func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	data, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return bytes.Clone(data), nil
}

// Open opens a file for reading.
func (m *MemoryFileSystem) Open(name string) (fs.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	data, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &memFileReader{name: name, r: bytes.NewReader(data), size: int64(len(data))}, nil
}

// CreateAtomic buffers writes and stores them on Commit.
func (m *MemoryFileSystem) CreateAtomic(name string) (PendingFile, error) {
	return &memPendingFile{fs: m, name: filepath.Clean(name)}, nil
}

// Exists checks if a file exists.
func (m *MemoryFileSystem) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[filepath.Clean(name)]
	return ok
}

// memFileReader implements fs.File for reading.
type memFileReader struct {
	name string
	r    *bytes.Reader
	size int64
}

func (f *memFileReader) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *memFileReader) Close() error { return nil }

func (f *memFileReader) Stat() (fs.FileInfo, error) {
	return &memFileInfo{name: filepath.Base(f.name), size: f.size}, nil
}

type memPendingFile struct {
	fs   *MemoryFileSystem
	name string
	buf  bytes.Buffer
	done bool
}

func (f *memPendingFile) Write(p []byte) (int, error) {
	if f.done {
		return 0, ErrFinished
	}
	if f.fs.FailWrites {
		return 0, &fs.PathError{Op: "write", Path: f.name, Err: fs.ErrPermission}
	}
	return f.buf.Write(p)
}

func (f *memPendingFile) Commit() error {
	if f.done {
		return ErrFinished
	}
	f.done = true
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.fs.files[f.name] = bytes.Clone(f.buf.Bytes())
	return nil
}

func (f *memPendingFile) Discard() error {
	f.done = true
	return nil
}

// memFileInfo implements fs.FileInfo.
type memFileInfo struct {
	name string
	size int64
}

func (i *memFileInfo) Name() string       { return i.name }
func (i *memFileInfo) Size() int64        { return i.size }
func (i *memFileInfo) Mode() os.FileMode  { return 0644 }
func (i *memFileInfo) ModTime() time.Time { return time.Time{} }
func (i *memFileInfo) IsDir() bool        { return false }
func (i *memFileInfo) Sys() any           { return nil }
