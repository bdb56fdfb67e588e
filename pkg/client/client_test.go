package client

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/packet"
	"github.com/iniwex5/shaiya-go/pkg/session"
	"github.com/iniwex5/shaiya-go/pkg/wire"
)

func boxSuite() crypto.Suite {
	return crypto.Suite{
		Exchange: crypto.ExchangeX25519Box,
		Cipher:   crypto.CipherAES128CTR,
		Counter:  crypto.Counter64,
		Digest:   crypto.DigestHMACSHA256,
	}
}

// pipeServer handshakes the server end of a pipe and hands every request
// to answer. A nil reply sends nothing.
func pipeServer(t *testing.T, nc net.Conn, answer func(packet.Packet) packet.Packet) {
	t.Helper()
	sess, err := session.New(session.Config{Role: session.RoleServer, Suite: boxSuite(), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	conn := wire.NewConn(nc, sess, 0, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := conn.Handshake(ctx); err != nil {
			t.Errorf("server Handshake: %v", err)
			return
		}
		for {
			data, err := conn.Recv()
			if err != nil {
				return
			}
			req, err := packet.DecodeClient(data)
			if err != nil {
				t.Errorf("DecodeClient: %v", err)
				return
			}
			resp := answer(req)
			if resp == nil {
				continue
			}
			out, err := packet.Marshal(resp)
			if err != nil {
				t.Errorf("Marshal: %v", err)
				return
			}
			if err := conn.Send(out); err != nil {
				return
			}
		}
	}()
}

func newTestClient(t *testing.T, timeout time.Duration, answer func(packet.Packet) packet.Packet) *Client {
	t.Helper()
	a, b := net.Pipe()
	pipeServer(t, a, answer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := NewClient(ctx, b, Config{Suite: boxSuite(), RequestTimeout: timeout, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLoginAndServerList(t *testing.T) {
	c := newTestClient(t, 0, func(p packet.Packet) packet.Packet {
		switch p.(type) {
		case *packet.LoginRequest:
			return &packet.LoginResponse{Status: packet.LoginSuccess, UserID: 42, Privilege: 1}
		case *packet.ServerListRequest:
			return &packet.ServerList{Servers: []packet.ServerEntry{{ID: 1, Name: "Teos"}}}
		}
		return nil
	})
	require.Equal(t, DefaultRequestTimeout, c.timeout)

	resp, err := c.Login("alice", "secret")
	require.NoError(t, err)
	require.Equal(t, packet.LoginSuccess, resp.Status)
	require.Equal(t, uint32(42), resp.UserID)

	servers, err := c.ServerList()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	require.Equal(t, "Teos", servers[0].Name)
}

func TestRequestTimeout(t *testing.T) {
	c := newTestClient(t, 100*time.Millisecond, func(packet.Packet) packet.Packet { return nil })

	start := time.Now()
	_, err := c.Login("alice", "secret")
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, session.PhaseClosed, c.Session().Phase())

	_, err = c.ServerList()
	require.Error(t, err)
}
