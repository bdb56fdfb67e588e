package filestore

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"go.uber.org/multierr"
)

// Storage is read access to an archive by virtual path.
type Storage interface {
	Paths() []string
	Read(path string) ([]byte, error)
}

// verify checks data against n. A zero checksum is not verified; older
// archives leave it unset.
func verify(n *Inode, path string, data []byte) error {
	if n.Checksum != 0 && Checksum(data) != n.Checksum {
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, path)
	}
	return nil
}

// Archive is a read-only archive. The data file is mapped into memory.
type Archive struct {
	mu     sync.RWMutex
	header *Header
	f      *os.File
	data   []byte
}

// OpenArchive opens the header at headerPath and maps dataPath.
func OpenArchive(headerPath, dataPath string) (*Archive, error) {
	h, err := ReadHeader(headerPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dataPath)
	if err != nil {
		return nil, err
	}
	data, err := mapFile(f)
	if err != nil {
		return nil, multierr.Append(err, f.Close())
	}
	return &Archive{header: h, f: f, data: data}, nil
}

func (a *Archive) Paths() []string { return a.header.Paths() }

// Read returns a copy of the file at path.
func (a *Archive) Read(path string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.f == nil {
		return nil, ErrClosed
	}
	n := a.header.Lookup(path)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	size := uint64(len(a.data))
	if n.Offset > size || uint64(n.Length) > size-n.Offset {
		return nil, fmt.Errorf("%w: %s: %d bytes at %d, size %d", ErrOutOfRange, path, n.Length, n.Offset, size)
	}
	data := append([]byte(nil), a.data[n.Offset:n.Offset+uint64(n.Length)]...)
	if err := verify(n, path, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := multierr.Append(unmapFile(a.data), a.f.Close())
	a.data = nil
	a.f = nil
	return err
}

// MutableArchive reads and writes an archive through the header and data
// files. A rewrite that fits the old space is done in place, zero padded;
// anything larger is appended to the data file.
type MutableArchive struct {
	mu     sync.Mutex
	header *Header
	hf     *os.File
	df     *os.File
}

// OpenMutableArchive opens an existing archive for writing.
func OpenMutableArchive(headerPath, dataPath string) (*MutableArchive, error) {
	h, err := ReadHeader(headerPath)
	if err != nil {
		return nil, err
	}
	return openMutable(h, headerPath, dataPath, 0)
}

// CreateMutableArchive creates an empty archive, truncating both files.
func CreateMutableArchive(headerPath, dataPath string) (*MutableArchive, error) {
	m, err := openMutable(new(Header), headerPath, dataPath, os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, err
	}
	if err := m.flush(); err != nil {
		return nil, multierr.Append(err, m.Close())
	}
	return m, nil
}

func openMutable(h *Header, headerPath, dataPath string, flag int) (*MutableArchive, error) {
	hf, err := os.OpenFile(headerPath, os.O_RDWR|flag, 0o644)
	if err != nil {
		return nil, err
	}
	df, err := os.OpenFile(dataPath, os.O_RDWR|flag, 0o644)
	if err != nil {
		return nil, multierr.Append(err, hf.Close())
	}
	return &MutableArchive{header: h, hf: hf, df: df}, nil
}

func (m *MutableArchive) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.header.Paths()
}

func (m *MutableArchive) Read(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.df == nil {
		return nil, ErrClosed
	}
	n := m.header.Lookup(path)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if n.Offset > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %s: offset %d", ErrOutOfRange, path, n.Offset)
	}
	data := make([]byte, n.Length)
	if _, err := m.df.ReadAt(data, int64(n.Offset)); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s: %d bytes at %d", ErrOutOfRange, path, n.Length, n.Offset)
		}
		return nil, err
	}
	if err := verify(n, path, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Write stores data at path and rewrites the header.
func (m *MutableArchive) Write(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(path, data); err != nil {
		return err
	}
	return m.flush()
}

// Patch copies every file of src into m, then rewrites the header once.
func (m *MutableArchive) Patch(src Storage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range src.Paths() {
		data, err := src.Read(p)
		if err != nil {
			return fmt.Errorf("filestore: patch %s: %w", p, err)
		}
		if err := m.write(p, data); err != nil {
			return fmt.Errorf("filestore: patch %s: %w", p, err)
		}
	}
	return m.flush()
}

func (m *MutableArchive) write(path string, data []byte) error {
	if m.df == nil {
		return ErrClosed
	}
	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("%w: %s: %d bytes", ErrOutOfRange, path, len(data))
	}
	if _, err := splitPath(path); err != nil {
		return err
	}
	sum := Checksum(data)

	if n := m.header.Lookup(path); n != nil && uint64(len(data)) <= uint64(n.Length) {
		buf := make([]byte, n.Length)
		copy(buf, data)
		if _, err := m.df.WriteAt(buf, int64(n.Offset)); err != nil {
			return err
		}
		n.Length = uint32(len(data))
		n.Checksum = sum
		return nil
	}

	st, err := m.df.Stat()
	if err != nil {
		return err
	}
	offset := st.Size()
	if _, err := m.df.WriteAt(data, offset); err != nil {
		return err
	}
	return m.header.Put(path, &Inode{Offset: uint64(offset), Length: uint32(len(data)), Checksum: sum})
}

// flush rewrites the header file. mu must be held.
func (m *MutableArchive) flush() error {
	if m.hf == nil {
		return ErrClosed
	}
	b, err := m.header.MarshalBinary()
	if err != nil {
		return err
	}
	if err := m.hf.Truncate(0); err != nil {
		return err
	}
	_, err = m.hf.WriteAt(b, 0)
	return err
}

func (m *MutableArchive) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.df == nil {
		return nil
	}
	err := multierr.Combine(m.df.Sync(), m.df.Close(), m.hf.Close())
	m.df = nil
	m.hf = nil
	return err
}
