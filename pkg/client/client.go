// Package client dials a login server and speaks the login protocol over
// an established session.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/logger"
	"github.com/iniwex5/shaiya-go/pkg/packet"
	"github.com/iniwex5/shaiya-go/pkg/session"
	"github.com/iniwex5/shaiya-go/pkg/wire"
)

// DefaultRequestTimeout bounds the wait for each response.
const DefaultRequestTimeout = 10 * time.Second

type Config struct {
	Suite        crypto.Suite
	MaxFrameSize uint32
	LockMemory   bool
	// RequestTimeout is how long a request waits for its response. Zero
	// selects DefaultRequestTimeout.
	RequestTimeout time.Duration
	Logger         *zap.Logger
	Observer       session.Observer
}

type Client struct {
	conn    *wire.Conn
	timeout time.Duration
	log     *zap.Logger
}

// Dial connects to addr and completes the handshake within ctx.
func Dial(ctx context.Context, addr string, cfg Config) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := NewClient(ctx, nc, cfg)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	return c, nil
}

// NewClient runs the client handshake over an existing connection. The
// Client owns nc on success.
func NewClient(ctx context.Context, nc net.Conn, cfg Config) (*Client, error) {
	log := logger.OrGlobal(cfg.Logger).Named("client")
	sess, err := session.New(session.Config{
		Role:       session.RoleClient,
		Suite:      cfg.Suite,
		LockMemory: cfg.LockMemory,
		Logger:     log,
		Observer:   cfg.Observer,
	})
	if err != nil {
		return nil, err
	}
	conn := wire.NewConn(nc, sess, cfg.MaxFrameSize, log)
	if err := conn.Handshake(ctx); err != nil {
		return nil, err
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{conn: conn, timeout: timeout, log: log}, nil
}

func (c *Client) Session() *session.Session { return c.conn.Session() }

func (c *Client) roundTrip(req packet.Packet) (packet.Packet, error) {
	out, err := packet.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := c.conn.Send(out); err != nil {
		return nil, err
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	data, err := c.conn.Recv()
	if errors.Is(err, os.ErrDeadlineExceeded) {
		// A late response would be taken as the answer to the next request.
		c.log.Warn("no response, closing", logger.Stringer("request", req.Opcode()), logger.Duration("timeout", c.timeout))
		if cerr := c.conn.Close(); cerr != nil {
			c.log.Debug("close after timeout", logger.Err(cerr))
		}
		return nil, fmt.Errorf("client: %s: %w", req.Opcode(), err)
	}
	if err != nil {
		return nil, err
	}
	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}
	resp, err := packet.DecodeServer(data)
	if err != nil {
		return nil, err
	}
	if resp.Opcode() != req.Opcode() {
		return nil, fmt.Errorf("%w: sent %s, got %s", packet.ErrUnknownOpcode, req.Opcode(), resp.Opcode())
	}
	return resp, nil
}

// Login sends credentials and returns the server's verdict. A rejected
// login is a response, not an error.
func (c *Client) Login(username, password string) (*packet.LoginResponse, error) {
	resp, err := c.roundTrip(&packet.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	lr := resp.(*packet.LoginResponse)
	c.log.Debug("login answered", logger.Stringer("status", lr.Status))
	return lr, nil
}

func (c *Client) ServerList() ([]packet.ServerEntry, error) {
	resp, err := c.roundTrip(&packet.ServerListRequest{})
	if err != nil {
		return nil, err
	}
	return resp.(*packet.ServerList).Servers, nil
}

func (c *Client) Close() error { return c.conn.Close() }
