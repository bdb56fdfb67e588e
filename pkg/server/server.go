// Package server is the login server: it accepts connections, runs the
// server side of the session handshake and answers login and server list
// requests.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/logger"
	"github.com/iniwex5/shaiya-go/pkg/packet"
	"github.com/iniwex5/shaiya-go/pkg/session"
	"github.com/iniwex5/shaiya-go/pkg/wire"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultMaxRejects       = 3
)

var ErrTooManyRejects = errors.New("server: too many rejected frames")

type Config struct {
	Suite        crypto.Suite
	MaxFrameSize uint32

	HandshakeTimeout time.Duration
	// IdleTimeout closes connections that send nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// MaxRejects is how many consecutive frames may fail authentication
	// before the connection is dropped.
	MaxRejects int

	LockMemory bool

	// Servers is returned verbatim to server list requests.
	Servers []packet.ServerEntry

	Observer session.Observer
}

type Server struct {
	cfg      Config
	key      *crypto.PrivateKey
	auth     Authenticator
	log      *zap.Logger
	sessions *SessionManager
	nextID   atomic.Uint64
}

// New returns a Server using key for every handshake. key may be nil, in
// which case each connection gets a fresh key pair.
func New(cfg Config, key *crypto.PrivateKey, auth Authenticator, log *zap.Logger) (*Server, error) {
	if err := cfg.Suite.Validate(); err != nil {
		return nil, err
	}
	if key != nil && key.Exchange() != cfg.Suite.Exchange {
		return nil, fmt.Errorf("%w: %s key for %s suite", crypto.ErrInvalidKey, key.Exchange(), cfg.Suite.Exchange)
	}
	if auth == nil {
		return nil, errors.New("server: nil authenticator")
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.MaxRejects <= 0 {
		cfg.MaxRejects = DefaultMaxRejects
	}
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	return &Server{
		cfg:      cfg,
		key:      key,
		auth:     auth,
		log:      logger.OrGlobal(log).Named("server"),
		sessions: NewSessionManager(),
	}, nil
}

func (s *Server) Sessions() *SessionManager { return s.sessions }

// Serve accepts connections on ln until ctx is cancelled, then closes
// every live connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info("listening",
		logger.Stringer("addr", ln.Addr()),
		logger.Stringer("suite", s.cfg.Suite))

	var err error
	for {
		nc, aerr := ln.Accept()
		if aerr != nil {
			if ctx.Err() == nil {
				err = aerr
			}
			break
		}
		if serr := s.startConn(ctx, nc); serr != nil {
			s.log.Warn("reject connection", logger.Err(serr))
			_ = nc.Close()
		}
	}

	if serr := s.sessions.Shutdown(); serr != nil {
		s.log.Debug("shutdown sessions", logger.Err(serr))
	}
	s.log.Info("stopped")
	return err
}

func (s *Server) startConn(ctx context.Context, nc net.Conn) error {
	id := fmt.Sprintf("%d", s.nextID.Add(1))
	log := s.log.With(logger.String("conn", id))

	sess, err := session.New(session.Config{
		Role:       session.RoleServer,
		Suite:      s.cfg.Suite,
		PrivateKey: s.key,
		LockMemory: s.cfg.LockMemory,
		Logger:     log,
		Observer:   s.cfg.Observer,
	})
	if err != nil {
		return err
	}
	c := wire.NewConn(nc, sess, s.cfg.MaxFrameSize, log)
	if err := s.sessions.Start(ctx, id, c, s.handle); err != nil {
		_ = sess.Close()
		return err
	}
	return nil
}

func (s *Server) handle(ctx context.Context, c *wire.Conn) error {
	log := s.log.With(logger.Stringer("remote", c.RemoteAddr()))

	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	err := c.Handshake(hctx)
	cancel()
	if err != nil {
		log.Warn("handshake failed", logger.Err(err))
		return err
	}

	// Unblock Recv when the manager cancels this connection.
	stop := context.AfterFunc(ctx, func() { _ = c.SetReadDeadline(time.Unix(1, 0)) })
	defer stop()

	rejects := 0
	for {
		if s.cfg.IdleTimeout > 0 && ctx.Err() == nil {
			if err := c.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
				return err
			}
		}
		data, err := c.Recv()
		switch {
		case err == nil:
			rejects = 0
		case errors.Is(err, crypto.ErrTagMismatch), errors.Is(err, session.ErrReplayOrReorder):
			rejects++
			log.Warn("frame rejected", logger.Err(err), logger.Int("consecutive", rejects))
			if rejects >= s.cfg.MaxRejects {
				return ErrTooManyRejects
			}
			continue
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			log.Debug("peer closed")
			return nil
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		req, err := packet.DecodeClient(data)
		if err != nil {
			log.Warn("bad packet", logger.Err(err))
			continue
		}
		resp := s.dispatch(req, log)
		if resp == nil {
			continue
		}
		out, err := packet.Marshal(resp)
		if err != nil {
			return err
		}
		if err := c.Send(out); err != nil {
			return err
		}
	}
}

func (s *Server) dispatch(req packet.Packet, log *zap.Logger) packet.Packet {
	switch p := req.(type) {
	case *packet.LoginRequest:
		resp := s.login(p)
		log.Info("login",
			logger.String("user", p.Username),
			logger.Stringer("status", resp.Status))
		return resp
	case *packet.ServerListRequest:
		return &packet.ServerList{Servers: s.cfg.Servers}
	}
	log.Debug("unhandled packet", logger.Stringer("opcode", req.Opcode()))
	return nil
}

func (s *Server) login(req *packet.LoginRequest) *packet.LoginResponse {
	acct, err := s.auth.Authenticate(req.Username, req.Password)
	switch {
	case errors.Is(err, ErrUnknownAccount):
		return &packet.LoginResponse{Status: packet.LoginAccountDoesNotExist}
	case errors.Is(err, ErrInvalidCredentials):
		return &packet.LoginResponse{Status: packet.LoginInvalidCredentials}
	case err != nil:
		s.log.Error("authenticator failed", logger.Err(err))
		return &packet.LoginResponse{Status: packet.LoginCannotConnect}
	case acct.Disabled:
		return &packet.LoginResponse{Status: packet.LoginAccountDisabled}
	}

	resp := &packet.LoginResponse{
		Status:    packet.LoginSuccess,
		UserID:    acct.UserID,
		Privilege: acct.Privilege,
	}
	identity, err := crypto.RandomBytes(nil, len(resp.Identity))
	if err != nil {
		s.log.Error("identity generation failed", logger.Err(err))
		return &packet.LoginResponse{Status: packet.LoginCannotConnect}
	}
	copy(resp.Identity[:], identity)
	return resp
}
