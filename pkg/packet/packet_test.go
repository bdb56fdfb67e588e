package packet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoginRequestLayout(t *testing.T) {
	buf, err := Marshal(&LoginRequest{Username: "admin", Password: "hunter2"})
	require.NoError(t, err)
	require.Len(t, buf, 2+UsernameLen+PasswordLen)
	require.Equal(t, []byte{0x02, 0xA1}, buf[:2])
	require.Equal(t, "admin", string(buf[2:7]))
	require.Zero(t, buf[7])
	require.Equal(t, "hunter2", string(buf[2+UsernameLen:2+UsernameLen+7]))

	p, err := DecodeClient(buf)
	require.NoError(t, err)
	require.Equal(t, &LoginRequest{Username: "admin", Password: "hunter2"}, p)
}

func TestLoginRequestFieldLimits(t *testing.T) {
	_, err := Marshal(&LoginRequest{Username: strings.Repeat("u", 33), Password: "x"})
	require.ErrorIs(t, err, ErrInvalidString)

	_, err = Marshal(&LoginRequest{Username: "u", Password: strings.Repeat("p", 20)})
	require.ErrorIs(t, err, ErrInvalidString)

	_, err = Marshal(&LoginRequest{Username: "a\x00b", Password: "p"})
	require.ErrorIs(t, err, ErrInvalidString)

	// A field may be filled completely, with no terminator.
	full := strings.Repeat("u", UsernameLen)
	buf, err := Marshal(&LoginRequest{Username: full, Password: strings.Repeat("p", PasswordLen)})
	require.NoError(t, err)
	p, err := DecodeClient(buf)
	require.NoError(t, err)
	require.Equal(t, full, p.(*LoginRequest).Username)
}

func TestLoginResponse(t *testing.T) {
	ok := &LoginResponse{Status: LoginSuccess, UserID: 0x01020304, Privilege: 5}
	ok.Identity[0] = 0xEE
	ok.Identity[15] = 0xFF

	buf, err := Marshal(ok)
	require.NoError(t, err)
	require.Len(t, buf, 2+loginSuccessLen)
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf[3:7])

	p, err := DecodeServer(buf)
	require.NoError(t, err)
	require.Equal(t, ok, p)

	for _, st := range []LoginStatus{LoginAccountDoesNotExist, LoginInvalidCredentials, LoginAccountDisabled} {
		buf, err := Marshal(&LoginResponse{Status: st, UserID: 99})
		require.NoError(t, err)
		require.Len(t, buf, 3)
		p, err := DecodeServer(buf)
		require.NoError(t, err)
		require.Equal(t, &LoginResponse{Status: st}, p)
	}

	p, err = DecodeServer([]byte{0x02, 0xA1, 77})
	require.NoError(t, err)
	require.Equal(t, LoginCannotConnect, p.(*LoginResponse).Status)

	_, err = DecodeServer([]byte{0x02, 0xA1, 0, 1, 2})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestServerList(t *testing.T) {
	list := &ServerList{Servers: []ServerEntry{
		{ID: 1, Status: ServerNormal, Players: 120, Capacity: 1000, Name: "Teos"},
		{ID: 2, Status: ServerLocked, Players: 0, Capacity: 500, Name: "Dios"},
	}}
	buf, err := Marshal(list)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0xA2, 2}, buf[:3])
	require.Len(t, buf, 3+2*serverEntryLen)

	p, err := DecodeServer(buf)
	require.NoError(t, err)
	require.Equal(t, list, p)

	bad := append([]byte(nil), buf...)
	bad[4] = 9
	_, err = DecodeServer(bad)
	require.ErrorIs(t, err, ErrInvalidServerStatus)

	_, err = DecodeServer(buf[:len(buf)-1])
	require.ErrorIs(t, err, ErrMalformed)

	empty, err := Marshal(&ServerList{})
	require.NoError(t, err)
	p, err = DecodeServer(empty)
	require.NoError(t, err)
	require.Empty(t, p.(*ServerList).Servers)

	_, err = Marshal(&ServerList{Servers: make([]ServerEntry, 256)})
	require.ErrorIs(t, err, ErrTooManyEntries)

	st, err := ParseServerStatus("locked")
	require.NoError(t, err)
	require.Equal(t, ServerLocked, st)
	_, err = ParseServerStatus("busy")
	require.ErrorIs(t, err, ErrInvalidServerStatus)
}

func TestServerListRequest(t *testing.T) {
	buf, err := Marshal(&ServerListRequest{})
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0xA2}, buf)

	p, err := DecodeClient(buf)
	require.NoError(t, err)
	require.IsType(t, &ServerListRequest{}, p)
}

func TestUnknownOpcode(t *testing.T) {
	_, err := DecodeClient([]byte{0x01, 0xA1})
	require.ErrorIs(t, err, ErrUnknownOpcode)

	_, err = DecodeServer([]byte{0xFF, 0xFF, 1})
	require.ErrorIs(t, err, ErrUnknownOpcode)

	_, err = DecodeClient([]byte{0x01})
	require.ErrorIs(t, err, ErrMalformed)
}
