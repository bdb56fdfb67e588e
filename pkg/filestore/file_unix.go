//go:build unix

package filestore

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// File is a RecordStore over a file on disk. Reads go through a read-only
// shared mapping that is refreshed after every write.
type File struct {
	mu   sync.RWMutex
	f    *os.File
	data []byte
}

// Open opens or creates path.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	fs := &File{f: f}
	if err := fs.remap(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return fs, nil
}

// remap replaces the mapping with one covering the current file size.
// mu must be held for writing.
func (fs *File) remap() error {
	if err := unmapFile(fs.data); err != nil {
		return err
	}
	fs.data = nil
	data, err := mapFile(fs.f)
	if err != nil {
		return err
	}
	fs.data = data
	return nil
}

// mapFile maps all of f read-only. An empty file maps to nil.
func mapFile(f *os.File) ([]byte, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("filestore: mmap %s: %w", f.Name(), err)
	}
	return data, nil
}

func unmapFile(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}

func (fs *File) ReadRecord(offset int64) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.f == nil {
		return nil, ErrClosed
	}
	return decodeRecord(fs.data, offset)
}

func (fs *File) WriteRecord(offset int64, data []byte) (uint32, error) {
	if err := checkWrite(offset, len(data)); err != nil {
		return 0, err
	}
	rec, sum := encodeRecord(data)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.f == nil {
		return 0, ErrClosed
	}
	if _, err := fs.f.WriteAt(rec, offset); err != nil {
		return 0, err
	}
	return sum, fs.remap()
}

// Append writes data after the last byte of the file and returns its
// offset.
func (fs *File) Append(data []byte) (int64, uint32, error) {
	rec, sum := encodeRecord(data)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.f == nil {
		return 0, 0, ErrClosed
	}
	st, err := fs.f.Stat()
	if err != nil {
		return 0, 0, err
	}
	offset := st.Size()
	if err := checkWrite(offset, len(data)); err != nil {
		return 0, 0, err
	}
	if _, err := fs.f.WriteAt(rec, offset); err != nil {
		return 0, 0, err
	}
	return offset, sum, fs.remap()
}

// Size is the current mapped length.
func (fs *File) Size() int64 {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return int64(len(fs.data))
}

func (fs *File) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.f == nil {
		return nil
	}
	err := multierr.Append(unmapFile(fs.data), fs.f.Close())
	fs.data = nil
	fs.f = nil
	return err
}
