// Package fileio opens slide files as memory-mapped, random-access
// io.ReaderAt sources, falling back to ordinary file reads when mmap is
// unavailable: backends must be able to serve concurrent reads from
// multiple goroutines without duplicating the whole file in memory.
//
// Grounded on internal/cog/mmap_unix.go's / internal/cog/mmap_other.go's
// build-tag pair, generalized from a COG-reader-specific helper into a
// standalone reusable file source any backend can open.
package fileio

import (
	"os"

	"github.com/pspoerri/slidepyramid/internal/slideerr"
)

// File is a random-access source backed by a memory-mapped (or, on
// platforms without mmap support, ordinary pread-based) open file.
type File struct {
	f       *os.File
	data    []byte // non-nil when memory-mapped
	size    int64
	mmapped bool
}

// Open opens path for random-access reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, slideerr.IOf("fileio", "Open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, slideerr.IOf("fileio", "Open", err)
	}
	size := info.Size()

	data, err := mmapFile(f.Fd(), int(size))
	if err != nil {
		// mmap unavailable (platform, or file too large for the address
		// space) — fall back to pread-style access through the open
		// file handle rather than failing the open outright.
		return &File{f: f, size: size}, nil
	}
	return &File{f: f, data: data, size: size, mmapped: true}, nil
}

// ReadAt implements io.ReaderAt.
func (mf *File) ReadAt(p []byte, off int64) (int, error) {
	if mf.mmapped {
		if off < 0 || off > mf.size {
			return 0, slideerr.IOf("fileio", "ReadAt", os.ErrInvalid)
		}
		n := copy(p, mf.data[off:])
		if n < len(p) {
			return n, errShortRead
		}
		return n, nil
	}
	return mf.f.ReadAt(p, off)
}

// Size returns the file's byte length.
func (mf *File) Size() int64 { return mf.size }

// Close releases the mapping (if any) and the underlying file handle.
func (mf *File) Close() error {
	var mErr error
	if mf.mmapped {
		mErr = munmapFile(mf.data)
	}
	fErr := mf.f.Close()
	if mErr != nil {
		return mErr
	}
	return fErr
}

var errShortRead = shortReadError{}

type shortReadError struct{}

func (shortReadError) Error() string { return "fileio: short read at end of mapped file" }
