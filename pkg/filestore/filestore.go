// Package filestore holds the client data stores: checksummed records in a
// flat file, where each record is length (u32 LE) | crc32 (u32 LE, IEEE) |
// data, and archives, where a SAH header indexes raw file bodies in a SAF
// data file by virtual path.
package filestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"sync"
)

const (
	HeaderLen = 8
	// MaxOffset bounds the end of any record written.
	MaxOffset = math.MaxInt32
)

var (
	ErrChecksumMismatch = errors.New("filestore: checksum mismatch")
	ErrOutOfRange       = errors.New("filestore: record out of range")
	ErrClosed           = errors.New("filestore: store is closed")
)

// RecordStore is random access to records by byte offset.
type RecordStore interface {
	ReadRecord(offset int64) ([]byte, error)
	// WriteRecord stores data at offset and returns its CRC32.
	WriteRecord(offset int64, data []byte) (uint32, error)
}

// Checksum is the CRC32 (IEEE) stored with every record.
func Checksum(data []byte) uint32 { return crc32.ChecksumIEEE(data) }

func encodeRecord(data []byte) ([]byte, uint32) {
	sum := Checksum(data)
	buf := make([]byte, HeaderLen+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(buf[4:8], sum)
	copy(buf[HeaderLen:], data)
	return buf, sum
}

// decodeRecord reads the record at offset in buf and returns a copy of its
// data.
func decodeRecord(buf []byte, offset int64) ([]byte, error) {
	size := int64(len(buf))
	if offset < 0 || size < HeaderLen || offset > size-HeaderLen {
		return nil, fmt.Errorf("%w: header at %d, size %d", ErrOutOfRange, offset, len(buf))
	}
	n := int64(binary.LittleEndian.Uint32(buf[offset : offset+4]))
	sum := binary.LittleEndian.Uint32(buf[offset+4 : offset+8])
	start := offset + HeaderLen
	if n > size-start {
		return nil, fmt.Errorf("%w: %d bytes at %d, size %d", ErrOutOfRange, n, start, len(buf))
	}
	data := append([]byte(nil), buf[start:start+n]...)
	if Checksum(data) != sum {
		return nil, fmt.Errorf("%w at offset %d", ErrChecksumMismatch, offset)
	}
	return data, nil
}

// checkWrite rejects a record of n data bytes that would end past
// MaxOffset.
func checkWrite(offset int64, n int) error {
	if offset < 0 || offset > MaxOffset || int64(n) > MaxOffset-HeaderLen-offset {
		return fmt.Errorf("%w: %d bytes at %d", ErrOutOfRange, n, offset)
	}
	return nil
}

// Memory is a RecordStore backed by a byte slice.
type Memory struct {
	mu  sync.RWMutex
	buf []byte
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) ReadRecord(offset int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return decodeRecord(m.buf, offset)
}

func (m *Memory) WriteRecord(offset int64, data []byte) (uint32, error) {
	if err := checkWrite(offset, len(data)); err != nil {
		return 0, err
	}
	rec, sum := encodeRecord(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if end := offset + int64(len(rec)); end > int64(len(m.buf)) {
		m.buf = append(m.buf, make([]byte, end-int64(len(m.buf)))...)
	}
	copy(m.buf[offset:], rec)
	return sum, nil
}

// Size is the length of the underlying buffer.
func (m *Memory) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.buf))
}
