//go:build !unix

package filestore

import (
	"errors"
	"os"
)

// File needs mmap and is only available on unix.
type File struct{}

func Open(path string) (*File, error) { return nil, errors.ErrUnsupported }

func (*File) ReadRecord(int64) ([]byte, error)         { return nil, ErrClosed }
func (*File) WriteRecord(int64, []byte) (uint32, error) { return 0, ErrClosed }
func (*File) Append([]byte) (int64, uint32, error)      { return 0, 0, ErrClosed }
func (*File) Size() int64                               { return 0 }
func (*File) Close() error                              { return nil }

func mapFile(*os.File) ([]byte, error) { return nil, errors.ErrUnsupported }

func unmapFile([]byte) error { return nil }
