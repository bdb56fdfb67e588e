package filestore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// Header file layout, all integers little endian:
//
//	"SAH" | version u32 | file count u32 | 40 zero bytes | root directory | u64 0
//
// A directory is name | node count u32 | nodes | subdirectory count u32 |
// subdirectories, and a node is name | offset u64 | length u32 | crc32 u32.
// Names are a u32 length followed by that many bytes, NUL terminated.
const (
	headerMagic   = "SAH"
	headerVersion = 0
	headerPadding = 40
	headerPrefix  = len(headerMagic) + 4 + 4 + headerPadding

	minNodeLen = 4 + 8 + 4 + 4
	minDirLen  = 4 + 4 + 4
	maxDepth   = 64
)

var (
	ErrBadMagic        = errors.New("filestore: header magic is not SAH")
	ErrMalformedHeader = errors.New("filestore: malformed header")
	ErrNotFound        = errors.New("filestore: no such file")
	ErrInvalidPath     = errors.New("filestore: invalid path")
)

// Inode locates one file in the data file.
type Inode struct {
	Name     string
	Offset   uint64
	Length   uint32
	Checksum uint32
}

type Directory struct {
	Name    string
	Nodes   []*Inode
	Subdirs []*Directory
}

// Header indexes a data file by virtual path. Path components are
// separated by '/' and compared case-insensitively.
type Header struct {
	Root Directory
}

// ParseHeader decodes a header file body.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < headerPrefix {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(b))
	}
	if string(b[:len(headerMagic)]) != headerMagic {
		return nil, ErrBadMagic
	}
	r := &headerReader{buf: b[headerPrefix:]}
	h := new(Header)
	if err := r.directory(&h.Root, 0); err != nil {
		return nil, err
	}
	return h, nil
}

// ReadHeader reads and decodes the header file at path.
func ReadHeader(path string) (*Header, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseHeader(b)
}

// MarshalBinary encodes h in the header file layout.
func (h *Header) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(headerMagic)
	var prefix [4 + 4 + headerPadding]byte
	binary.LittleEndian.PutUint32(prefix[0:4], headerVersion)
	binary.LittleEndian.PutUint32(prefix[4:8], uint32(len(h.Paths())))
	buf.Write(prefix[:])
	if err := writeDirectory(&buf, &h.Root); err != nil {
		return nil, err
	}
	var trailer [8]byte
	buf.Write(trailer[:])
	return buf.Bytes(), nil
}

// Paths lists every file, depth first, nodes before subdirectories.
func (h *Header) Paths() []string {
	var out []string
	for _, n := range h.Root.Nodes {
		out = append(out, n.Name)
	}
	for _, d := range h.Root.Subdirs {
		out = d.appendPaths(out, "")
	}
	return out
}

func (d *Directory) appendPaths(out []string, prefix string) []string {
	prefix += d.Name + "/"
	for _, n := range d.Nodes {
		out = append(out, prefix+n.Name)
	}
	for _, sub := range d.Subdirs {
		out = sub.appendPaths(out, prefix)
	}
	return out
}

// Lookup returns the inode at path, or nil.
func (h *Header) Lookup(path string) *Inode {
	parts := strings.Split(path, "/")
	dir := &h.Root
	for _, name := range parts[:len(parts)-1] {
		if dir = dir.subdir(name); dir == nil {
			return nil
		}
	}
	return dir.node(parts[len(parts)-1])
}

// Put inserts n at path, creating intermediate directories. The last path
// component replaces n.Name.
func (h *Header) Put(path string, n *Inode) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	dir := &h.Root
	for _, name := range parts[:len(parts)-1] {
		sub := dir.subdir(name)
		if sub == nil {
			sub = &Directory{Name: name}
			dir.Subdirs = append(dir.Subdirs, sub)
		}
		dir = sub
	}
	n.Name = parts[len(parts)-1]
	if old := dir.node(n.Name); old != nil {
		*old = *n
		return nil
	}
	dir.Nodes = append(dir.Nodes, n)
	return nil
}

func (d *Directory) subdir(name string) *Directory {
	for _, s := range d.Subdirs {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

func (d *Directory) node(name string) *Inode {
	for _, n := range d.Nodes {
		if strings.EqualFold(n.Name, name) {
			return n
		}
	}
	return nil
}

func splitPath(path string) ([]string, error) {
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" || strings.IndexByte(p, 0) >= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

type headerReader struct {
	buf []byte
}

func (r *headerReader) take(n int) ([]byte, error) {
	if n < 0 || n > len(r.buf) {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedHeader, n, len(r.buf))
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b, nil
}

func (r *headerReader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *headerReader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *headerReader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(len(r.buf)) {
		return "", fmt.Errorf("%w: name of %d bytes", ErrMalformedHeader, n)
	}
	b, _ := r.take(int(n))
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

// count reads an element count and checks it against what the remaining
// bytes could hold.
func (r *headerReader) count(minLen int) (int, error) {
	n, err := r.u32()
	if err != nil {
		return 0, err
	}
	if uint64(n) > uint64(len(r.buf)/minLen) {
		return 0, fmt.Errorf("%w: count %d exceeds input", ErrMalformedHeader, n)
	}
	return int(n), nil
}

func (r *headerReader) directory(d *Directory, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: directories nested deeper than %d", ErrMalformedHeader, maxDepth)
	}
	var err error
	if d.Name, err = r.name(); err != nil {
		return err
	}
	nodes, err := r.count(minNodeLen)
	if err != nil {
		return err
	}
	d.Nodes = make([]*Inode, 0, nodes)
	for i := 0; i < nodes; i++ {
		n := new(Inode)
		if n.Name, err = r.name(); err != nil {
			return err
		}
		if n.Offset, err = r.u64(); err != nil {
			return err
		}
		if n.Length, err = r.u32(); err != nil {
			return err
		}
		if n.Checksum, err = r.u32(); err != nil {
			return err
		}
		d.Nodes = append(d.Nodes, n)
	}
	subdirs, err := r.count(minDirLen)
	if err != nil {
		return err
	}
	d.Subdirs = make([]*Directory, 0, subdirs)
	for i := 0; i < subdirs; i++ {
		sub := new(Directory)
		if err := r.directory(sub, depth+1); err != nil {
			return err
		}
		d.Subdirs = append(d.Subdirs, sub)
	}
	return nil
}

func writeName(buf *bytes.Buffer, name string) error {
	if uint64(len(name)) >= math.MaxUint32 {
		return fmt.Errorf("%w: name of %d bytes", ErrInvalidPath, len(name))
	}
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(name)+1))
	buf.Write(n[:])
	buf.WriteString(name)
	buf.WriteByte(0)
	return nil
}

func writeDirectory(buf *bytes.Buffer, d *Directory) error {
	if err := writeName(buf, d.Name); err != nil {
		return err
	}
	var b [8]byte
	binary.LittleEndian.PutUint32(b[:4], uint32(len(d.Nodes)))
	buf.Write(b[:4])
	for _, n := range d.Nodes {
		if err := writeName(buf, n.Name); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(b[:], n.Offset)
		buf.Write(b[:])
		binary.LittleEndian.PutUint32(b[:4], n.Length)
		binary.LittleEndian.PutUint32(b[4:], n.Checksum)
		buf.Write(b[:])
	}
	binary.LittleEndian.PutUint32(b[:4], uint32(len(d.Subdirs)))
	buf.Write(b[:4])
	for _, sub := range d.Subdirs {
		if err := writeDirectory(buf, sub); err != nil {
			return err
		}
	}
	return nil
}
