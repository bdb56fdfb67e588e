package wire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/iniwex5/shaiya-go/pkg/logger"
	"github.com/iniwex5/shaiya-go/pkg/session"
)

// Conn carries one Session over a stream connection.
type Conn struct {
	nc       net.Conn
	sess     *session.Session
	maxFrame uint32
	log      *zap.Logger

	rmu sync.Mutex
	wmu sync.Mutex
}

// NewConn wraps nc. A zero maxFrame selects DefaultMaxFrameSize. The Conn
// owns both nc and sess.
func NewConn(nc net.Conn, sess *session.Session, maxFrame uint32, log *zap.Logger) *Conn {
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &Conn{
		nc:       nc,
		sess:     sess,
		maxFrame: maxFrame,
		log:      logger.OrGlobal(log).With(logger.Stringer("remote", nc.RemoteAddr())),
	}
}

func (c *Conn) Session() *session.Session { return c.sess }

func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Handshake runs this side's half of the key transport. ctx bounds the
// whole exchange. On failure the session is closed; the connection is
// left for the caller to close.
func (c *Conn) Handshake(ctx context.Context) error {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if d, ok := ctx.Deadline(); ok {
		if err := c.nc.SetDeadline(d); err != nil {
			return opError("handshake", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.nc.SetDeadline(time.Unix(1, 0))
	})

	err := c.handshake()
	if !stop() && ctx.Err() != nil {
		err = opError("handshake", ctx.Err())
	}
	if err != nil {
		if cerr := c.sess.Close(); cerr != nil {
			c.log.Debug("release session after handshake error", logger.Err(cerr))
		}
		return err
	}
	return opError("handshake", c.nc.SetDeadline(time.Time{}))
}

func (c *Conn) handshake() error {
	switch c.sess.Role() {
	case session.RoleServer:
		req, err := c.sess.BeginHandshake()
		if err != nil {
			return err
		}
		msg, err := EncodeHandshakeRequest(req)
		if err != nil {
			return err
		}
		if _, err := c.nc.Write(msg); err != nil {
			return opError("write handshake request", err)
		}
		resp, err := readHandshakeResponse(c.nc)
		if err != nil {
			return err
		}
		return c.sess.CompleteHandshake(resp)

	case session.RoleClient:
		req, err := readHandshakeRequest(c.nc)
		if err != nil {
			return err
		}
		resp, err := c.sess.RespondHandshake(req, nil)
		if err != nil {
			return err
		}
		msg, err := EncodeHandshakeResponse(resp)
		if err != nil {
			return err
		}
		if _, err := c.nc.Write(msg); err != nil {
			return opError("write handshake response", err)
		}
		return nil
	}
	return session.ErrInvalidRole
}

// Send encrypts p into the next frame and writes it. A payload over the
// frame limit is refused before it uses a sequence number.
func (c *Conn) Send(p []byte) error {
	if uint64(len(p)) > uint64(c.maxFrame) {
		return opError("send", fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(p), c.maxFrame))
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	f, err := c.sess.Encode(p)
	if err != nil {
		return err
	}
	buf, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	if _, err := c.nc.Write(buf); err != nil {
		return opError("send", err)
	}
	return nil
}

// Recv reads and decodes the next frame. Session errors such as
// crypto.ErrTagMismatch are returned as is; the frame has been consumed
// and the connection remains usable. An oversized frame header leaves the
// stream at an unknown position, so the Conn is closed.
func (c *Conn) Recv() ([]byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	f, err := ReadFrame(c.nc, c.sess.Suite().TagSize(), c.maxFrame)
	if errors.Is(err, ErrFrameTooLarge) {
		c.log.Warn("oversized frame, closing connection", logger.Err(err))
		if cerr := c.Close(); cerr != nil {
			c.log.Debug("close after oversized frame", logger.Err(cerr))
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return c.sess.Decode(f)
}

// SetReadDeadline bounds the next Recv.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.nc.SetReadDeadline(t) }

// Close zeroizes the session and closes the connection.
func (c *Conn) Close() error {
	return multierr.Combine(c.sess.Close(), c.nc.Close())
}
