// Package packet defines the application messages carried inside session
// frames. Each message is opcode (u16 LE) followed by its body.
package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

type Opcode uint16

const (
	// OpHandshake is reserved; the handshake travels outside frames.
	OpHandshake  Opcode = 0xA101
	OpLogin      Opcode = 0xA102
	OpServerList Opcode = 0xA201
)

func (o Opcode) String() string {
	switch o {
	case OpHandshake:
		return "handshake"
	case OpLogin:
		return "login"
	case OpServerList:
		return "server-list"
	}
	return fmt.Sprintf("opcode(%#04x)", uint16(o))
}

const OpcodeLen = 2

var (
	ErrUnknownOpcode       = errors.New("packet: unknown opcode")
	ErrMalformed           = errors.New("packet: malformed body")
	ErrInvalidString       = errors.New("packet: string does not fit field")
	ErrInvalidServerStatus = errors.New("packet: invalid server status")
	ErrTooManyEntries      = errors.New("packet: too many server entries")
)

type Packet interface {
	Opcode() Opcode
	Encode() ([]byte, error)
}

// Marshal prefixes p's body with its opcode.
func Marshal(p Packet) ([]byte, error) {
	body, err := p.Encode()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, OpcodeLen+len(body))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(p.Opcode()))
	copy(buf[OpcodeLen:], body)
	return buf, nil
}

func splitOpcode(data []byte) (Opcode, []byte, error) {
	if len(data) < OpcodeLen {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}
	return Opcode(binary.LittleEndian.Uint16(data[0:2])), data[OpcodeLen:], nil
}

// DecodeClient parses a message sent by a client.
func DecodeClient(data []byte) (Packet, error) {
	op, body, err := splitOpcode(data)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpLogin:
		return decodeLoginRequest(body)
	case OpServerList:
		if len(body) != 0 {
			return nil, fmt.Errorf("%w: server list request has a body", ErrMalformed)
		}
		return &ServerListRequest{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
}

// DecodeServer parses a message sent by a server.
func DecodeServer(data []byte) (Packet, error) {
	op, body, err := splitOpcode(data)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpLogin:
		return decodeLoginResponse(body)
	case OpServerList:
		return decodeServerList(body)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
}

// putString writes s NUL padded into a field of len(dst) bytes.
func putString(dst []byte, s string) error {
	if len(s) > len(dst) || strings.IndexByte(s, 0) >= 0 {
		return fmt.Errorf("%w: %q in %d bytes", ErrInvalidString, s, len(dst))
	}
	copy(dst, s)
	return nil
}

// getString reads a NUL-terminated string from a fixed field.
func getString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}

