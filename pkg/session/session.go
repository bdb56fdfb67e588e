// Package session implements the per-connection protocol state machine:
// key transport, then sequenced, authenticated, encrypted frames.
package session

import (
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/logger"
)

// Phase is the lifecycle position of a Session.
type Phase uint32

const (
	PhaseHandshaking Phase = iota
	PhaseEstablished
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseHandshaking:
		return "handshaking"
	case PhaseEstablished:
		return "established"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// Role decides which half of the handshake a Session plays and which
// direction keys it sends with.
type Role uint8

const (
	// RoleServer owns the key-transport key pair.
	RoleServer Role = iota + 1
	// RoleClient chooses the KeyMaterial and wraps it.
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	}
	return "unknown"
}

type Config struct {
	Role  Role
	Suite crypto.Suite

	// PrivateKey is a long-lived server key. When nil the server generates
	// a fresh key pair per handshake. A supplied key is not zeroized by
	// Close; it belongs to the caller.
	PrivateKey *crypto.PrivateKey

	// Rand is the randomness source, crypto/rand when nil.
	Rand io.Reader

	// LockMemory asks for session keys to be pinned in RAM. Failure to lock
	// is logged, not fatal.
	LockMemory bool

	Logger   *zap.Logger
	Observer Observer
}

// Stats is a point-in-time view of a session.
type Stats struct {
	Phase        Phase
	SendSequence uint64
	RecvSequence uint64
	Rejected     uint64
}

// Session is one endpoint of an encrypted connection. Encode and Decode
// may run concurrently with each other; calls in the same direction are
// serialized.
type Session struct {
	cfg      Config
	log      *zap.Logger
	observer Observer

	phase    atomic.Uint32
	rejected atomic.Uint64

	// hsMu serializes the handshake steps and Close. Lock order is hsMu,
	// txMu, rxMu.
	hsMu    sync.Mutex
	priv    *crypto.PrivateKey
	ownPriv bool

	// txMu guards the send half, rxMu the receive half.
	txMu sync.Mutex
	rxMu sync.Mutex

	km     *crypto.KeyMaterial
	tx     *crypto.StreamCipher
	rx     *crypto.StreamCipher
	txMAC  []byte
	rxMAC  []byte
	locked bool
}

// New returns a Session in PhaseHandshaking.
func New(cfg Config) (*Session, error) {
	if cfg.Role != RoleServer && cfg.Role != RoleClient {
		return nil, ErrInvalidRole
	}
	if err := cfg.Suite.Validate(); err != nil {
		return nil, err
	}
	if cfg.PrivateKey != nil && cfg.PrivateKey.Exchange() != cfg.Suite.Exchange {
		return nil, crypto.ErrInvalidKey
	}
	s := &Session{
		cfg:      cfg,
		log:      logger.OrGlobal(cfg.Logger).With(logger.Stringer("role", cfg.Role)),
		observer: cfg.Observer,
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	s.phase.Store(uint32(PhaseHandshaking))
	return s, nil
}

func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Session) Role() Role { return s.cfg.Role }

func (s *Session) Suite() crypto.Suite { return s.cfg.Suite }

func (s *Session) Stats() Stats {
	s.txMu.Lock()
	s.rxMu.Lock()
	defer s.rxMu.Unlock()
	defer s.txMu.Unlock()

	st := Stats{Phase: s.Phase(), Rejected: s.rejected.Load()}
	if s.km != nil {
		st.SendSequence = s.km.SendCounter
		st.RecvSequence = s.km.RecvCounter
	}
	return st
}

// Close zeroizes all key material and moves the session to PhaseClosed.
// It is idempotent; later Encode and Decode calls fail with
// ErrSessionClosed.
func (s *Session) Close() error {
	s.hsMu.Lock()
	defer s.hsMu.Unlock()
	return s.shutdown()
}

// shutdown is Close with hsMu already held.
func (s *Session) shutdown() error {
	s.txMu.Lock()
	s.rxMu.Lock()
	defer s.rxMu.Unlock()
	defer s.txMu.Unlock()

	if Phase(s.phase.Swap(uint32(PhaseClosed))) == PhaseClosed {
		return nil
	}

	var err error
	if s.km != nil {
		if s.locked {
			err = multierr.Append(err, crypto.UnlockBuffer(s.km.Key))
			err = multierr.Append(err, crypto.UnlockBuffer(s.km.IV))
		}
		s.km.Zeroize()
	}
	if s.tx != nil {
		err = multierr.Append(err, s.tx.Zeroize())
	}
	if s.rx != nil {
		err = multierr.Append(err, s.rx.Zeroize())
	}
	if s.locked {
		err = multierr.Append(err, crypto.UnlockBuffer(s.txMAC))
		err = multierr.Append(err, crypto.UnlockBuffer(s.rxMAC))
		s.locked = false
	}
	crypto.Wipe(s.txMAC)
	crypto.Wipe(s.rxMAC)

	s.zeroizePrivateKey()

	s.log.Debug("session closed")
	return err
}

// zeroizePrivateKey drops the key-transport key; only generated keys are
// wiped. hsMu must be held.
func (s *Session) zeroizePrivateKey() {
	if s.priv != nil && s.ownPriv {
		s.priv.Zeroize()
	}
	s.priv = nil
	s.ownPriv = false
}
