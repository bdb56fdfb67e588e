// Package wire moves session frames and handshake messages over a byte
// stream.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/session"
)

const (
	// Version is the handshake format version.
	Version = 1

	// DefaultMaxFrameSize bounds a frame's ciphertext.
	DefaultMaxFrameSize = 1 << 20

	FrameHeaderLen             = 12 // seq(8) + ct_len(4)
	HandshakeRequestHeaderLen  = 9
	HandshakeResponseHeaderLen = 2
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
	ErrShortBuffer   = errors.New("buffer too short")
	ErrVersion       = errors.New("unsupported handshake version")
	ErrFieldTooLong  = errors.New("field exceeds 16-bit length")
)

// FrameError wraps a codec or transport failure with the operation that
// hit it.
type FrameError struct {
	Op  string
	Err error
}

func (e *FrameError) Error() string { return "wire: " + e.Op + ": " + e.Err.Error() }

func (e *FrameError) Unwrap() error { return e.Err }

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &FrameError{Op: op, Err: err}
}

// EncodeFrame serializes f as seq | ct_len | ct | tag.
func EncodeFrame(f *session.Frame) ([]byte, error) {
	if uint64(len(f.Ciphertext)) > math.MaxUint32 {
		return nil, opError("encode frame", fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(f.Ciphertext)))
	}
	buf := make([]byte, FrameHeaderLen+len(f.Ciphertext)+len(f.Tag))
	binary.BigEndian.PutUint64(buf[0:8], f.Sequence)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(f.Ciphertext)))
	copy(buf[FrameHeaderLen:], f.Ciphertext)
	copy(buf[FrameHeaderLen+len(f.Ciphertext):], f.Tag)
	return buf, nil
}

// DecodeFrame parses one frame from data, which must hold exactly the
// frame. tagSize comes from the session suite.
func DecodeFrame(data []byte, tagSize int, maxSize uint32) (*session.Frame, error) {
	if len(data) < FrameHeaderLen {
		return nil, opError("decode frame", ErrShortBuffer)
	}
	ctLen := binary.BigEndian.Uint32(data[8:12])
	if ctLen > maxSize {
		return nil, opError("decode frame", fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, ctLen, maxSize))
	}
	if uint64(len(data)) != uint64(FrameHeaderLen)+uint64(ctLen)+uint64(tagSize) {
		return nil, opError("decode frame", ErrShortBuffer)
	}
	body := data[FrameHeaderLen:]
	return &session.Frame{
		Sequence:   binary.BigEndian.Uint64(data[0:8]),
		Ciphertext: append([]byte(nil), body[:ctLen]...),
		Tag:        append([]byte(nil), body[ctLen:]...),
	}, nil
}

// ReadFrame reads one frame from r. The length is checked against maxSize
// before the body is allocated.
func ReadFrame(r io.Reader, tagSize int, maxSize uint32) (*session.Frame, error) {
	var hdr [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, opError("read frame", err)
	}
	ctLen := binary.BigEndian.Uint32(hdr[8:12])
	if ctLen > maxSize {
		return nil, opError("read frame", fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, ctLen, maxSize))
	}
	body := make([]byte, int(ctLen)+tagSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, opError("read frame", err)
	}
	return &session.Frame{
		Sequence:   binary.BigEndian.Uint64(hdr[0:8]),
		Ciphertext: body[:ctLen:ctLen],
		Tag:        body[ctLen:],
	}, nil
}

// EncodeHandshakeRequest serializes the server's opening message.
func EncodeHandshakeRequest(req *session.HandshakeRequest) ([]byte, error) {
	pub, err := req.PublicKey.Bytes()
	if err != nil {
		return nil, opError("encode handshake request", err)
	}
	if len(pub) > 0xFFFF {
		return nil, opError("encode handshake request", ErrFieldTooLong)
	}
	s := req.Suite
	buf := make([]byte, HandshakeRequestHeaderLen+len(pub))
	buf[0] = Version
	buf[1] = uint8(s.Exchange)
	binary.BigEndian.PutUint16(buf[2:4], uint16(req.PublicKey.Bits()))
	buf[4] = uint8(s.Cipher)
	buf[5] = uint8(s.Counter)
	buf[6] = uint8(s.Digest)
	binary.BigEndian.PutUint16(buf[7:9], uint16(len(pub)))
	copy(buf[HandshakeRequestHeaderLen:], pub)
	return buf, nil
}

// DecodeHandshakeRequest parses EncodeHandshakeRequest output.
func DecodeHandshakeRequest(data []byte) (*session.HandshakeRequest, error) {
	if len(data) < HandshakeRequestHeaderLen {
		return nil, opError("decode handshake request", ErrShortBuffer)
	}
	if data[0] != Version {
		return nil, opError("decode handshake request", fmt.Errorf("%w: %d", ErrVersion, data[0]))
	}
	suite, err := crypto.SuiteFromIDs(data[1], binary.BigEndian.Uint16(data[2:4]), data[4], data[5], data[6])
	if err != nil {
		return nil, opError("decode handshake request", err)
	}
	n := int(binary.BigEndian.Uint16(data[7:9]))
	if len(data) != HandshakeRequestHeaderLen+n {
		return nil, opError("decode handshake request", ErrShortBuffer)
	}
	pub, err := crypto.ParsePublicKey(suite.Exchange, data[HandshakeRequestHeaderLen:])
	if err != nil {
		return nil, opError("decode handshake request", err)
	}
	return &session.HandshakeRequest{Suite: suite, PublicKey: pub}, nil
}

// EncodeHandshakeResponse serializes blob_len | blob.
func EncodeHandshakeResponse(resp *session.HandshakeResponse) ([]byte, error) {
	if len(resp.Blob) > 0xFFFF {
		return nil, opError("encode handshake response", ErrFieldTooLong)
	}
	buf := make([]byte, HandshakeResponseHeaderLen+len(resp.Blob))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(resp.Blob)))
	copy(buf[HandshakeResponseHeaderLen:], resp.Blob)
	return buf, nil
}

func DecodeHandshakeResponse(data []byte) (*session.HandshakeResponse, error) {
	if len(data) < HandshakeResponseHeaderLen {
		return nil, opError("decode handshake response", ErrShortBuffer)
	}
	n := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) != HandshakeResponseHeaderLen+n {
		return nil, opError("decode handshake response", ErrShortBuffer)
	}
	return &session.HandshakeResponse{Blob: append([]byte(nil), data[HandshakeResponseHeaderLen:]...)}, nil
}

func readHandshakeRequest(r io.Reader) (*session.HandshakeRequest, error) {
	var hdr [HandshakeRequestHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, opError("read handshake request", err)
	}
	n := int(binary.BigEndian.Uint16(hdr[7:9]))
	buf := make([]byte, HandshakeRequestHeaderLen+n)
	copy(buf, hdr[:])
	if _, err := io.ReadFull(r, buf[HandshakeRequestHeaderLen:]); err != nil {
		return nil, opError("read handshake request", err)
	}
	return DecodeHandshakeRequest(buf)
}

func readHandshakeResponse(r io.Reader) (*session.HandshakeResponse, error) {
	var hdr [HandshakeResponseHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, opError("read handshake response", err)
	}
	blob := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, blob); err != nil {
		return nil, opError("read handshake response", err)
	}
	return &session.HandshakeResponse{Blob: blob}, nil
}
