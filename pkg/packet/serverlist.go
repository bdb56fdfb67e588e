package packet

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	ServerNameLen  = 32
	serverEntryLen = 1 + 1 + 2 + 2 + ServerNameLen
)

type ServerStatus uint8

const (
	ServerNormal ServerStatus = 0
	ServerLocked ServerStatus = 1
	ServerClosed ServerStatus = 2
)

func (s ServerStatus) String() string {
	switch s {
	case ServerNormal:
		return "normal"
	case ServerLocked:
		return "locked"
	case ServerClosed:
		return "closed"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ParseServerStatus accepts the names printed by ServerStatus.String.
func ParseServerStatus(name string) (ServerStatus, error) {
	for _, s := range []ServerStatus{ServerNormal, ServerLocked, ServerClosed} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidServerStatus, name)
}

type ServerEntry struct {
	ID       uint8
	Status   ServerStatus
	Players  uint16
	Capacity uint16
	Name     string
}

// ServerListRequest asks for the game server list. It has no body.
type ServerListRequest struct{}

func (*ServerListRequest) Opcode() Opcode { return OpServerList }

func (*ServerListRequest) Encode() ([]byte, error) { return nil, nil }

type ServerList struct {
	Servers []ServerEntry
}

func (*ServerList) Opcode() Opcode { return OpServerList }

func (p *ServerList) Encode() ([]byte, error) {
	if len(p.Servers) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %d", ErrTooManyEntries, len(p.Servers))
	}
	buf := make([]byte, 1+len(p.Servers)*serverEntryLen)
	buf[0] = uint8(len(p.Servers))
	for i, e := range p.Servers {
		if e.Status > ServerClosed {
			return nil, fmt.Errorf("%w: %d", ErrInvalidServerStatus, e.Status)
		}
		b := buf[1+i*serverEntryLen : 1+(i+1)*serverEntryLen]
		b[0] = e.ID
		b[1] = uint8(e.Status)
		binary.LittleEndian.PutUint16(b[2:4], e.Players)
		binary.LittleEndian.PutUint16(b[4:6], e.Capacity)
		if err := putString(b[6:], e.Name); err != nil {
			return nil, fmt.Errorf("server %d name: %w", e.ID, err)
		}
	}
	return buf, nil
}

func decodeServerList(body []byte) (*ServerList, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("%w: empty server list", ErrMalformed)
	}
	n := int(body[0])
	if len(body) != 1+n*serverEntryLen {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrMalformed, n, len(body))
	}
	list := &ServerList{Servers: make([]ServerEntry, 0, n)}
	for i := 0; i < n; i++ {
		b := body[1+i*serverEntryLen : 1+(i+1)*serverEntryLen]
		status := ServerStatus(b[1])
		if status > ServerClosed {
			return nil, fmt.Errorf("%w: %d", ErrInvalidServerStatus, b[1])
		}
		list.Servers = append(list.Servers, ServerEntry{
			ID:       b[0],
			Status:   status,
			Players:  binary.LittleEndian.Uint16(b[2:4]),
			Capacity: binary.LittleEndian.Uint16(b[4:6]),
			Name:     getString(b[6:]),
		})
	}
	return list, nil
}
