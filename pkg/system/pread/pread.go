//go:build linux

package pread

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// Pool tracks pseudo-files that are read repeatedly from offset zero.
//
// Positioned reads (pread) fail with ESPIPE on certain procfs files under
// some kernel versions, even at offset zero. The first time that happens the
// whole pool permanently switches to an open/read/close sequence per call,
// for every tracked file. A read is never silently skipped; any failure
// other than the ESPIPE capability probe is returned to the caller.
type Pool struct {
	reopen bool
}

func NewPool() *Pool { return &Pool{} }

// Reopening reports whether the pool has fallen back to reopen-per-call.
func (p *Pool) Reopening() bool { return p.reopen }

// File is a pseudo-file registered with a Pool.
type File struct {
	pool *Pool
	path string
	f    *os.File
}

// Open opens path and registers the handle with the pool.
func (p *Pool) Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pread: open %s: %w", path, err)
	}
	return &File{pool: p, f: f, path: path}, nil
}

func (f *File) Path() string { return f.path }

// ReadZero reads up to len(buf) bytes from offset zero of the file.
// A short read at EOF is a success; pseudo-files are almost always
// shorter than the buffer.
func (f *File) ReadZero(buf []byte) (int, error) {
	if f.pool.reopen {
		return f.readFresh(buf)
	}
	n, err := f.f.ReadAt(buf, 0)
	if err != nil {
		if errors.Is(err, io.EOF) && n > 0 {
			return n, nil
		}
		if errors.Is(err, syscall.ESPIPE) {
			f.pool.reopen = true
			return f.readFresh(buf)
		}
		return n, fmt.Errorf("pread: read %s: %w", f.path, err)
	}
	return n, nil
}

func (f *File) readFresh(buf []byte) (int, error) {
	g, err := os.Open(f.path)
	if err != nil {
		return 0, fmt.Errorf("pread: reopen %s: %w", f.path, err)
	}
	defer g.Close()
	n, err := g.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("pread: read %s: %w", f.path, err)
	}
	return n, nil
}

func (f *File) Close() error { return f.f.Close() }
