package session

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/logger"
)

// HandshakeRequest is sent by the server: the negotiated suite and the
// public key the client must wrap its KeyMaterial under.
type HandshakeRequest struct {
	Suite     crypto.Suite
	PublicKey *crypto.PublicKey
}

// HandshakeResponse carries the client's wrapped KeyMaterial.
type HandshakeResponse struct {
	Blob []byte
}

// BeginHandshake produces the server's opening message. It may be called
// once per session.
func (s *Session) BeginHandshake() (*HandshakeRequest, error) {
	if s.cfg.Role != RoleServer {
		return nil, ErrInvalidRole
	}
	s.hsMu.Lock()
	defer s.hsMu.Unlock()

	if err := s.checkHandshaking(); err != nil {
		return nil, err
	}
	if s.priv != nil {
		return nil, ErrInvalidPhase
	}

	if s.cfg.PrivateKey != nil {
		s.priv = s.cfg.PrivateKey
	} else {
		_, priv, err := crypto.GenerateKeyPair(s.cfg.Suite, s.cfg.Rand)
		if err != nil {
			return nil, s.failHandshake(err)
		}
		s.priv = priv
		s.ownPriv = true
	}

	pub := s.priv.Public()
	s.log.Debug("handshake started",
		logger.Stringer("suite", s.cfg.Suite),
		logger.String("key", pub.Fingerprint()),
		logger.Bool("ephemeral", s.ownPriv))
	return &HandshakeRequest{Suite: s.cfg.Suite, PublicKey: pub}, nil
}

// RespondHandshake wraps km under the server's public key and establishes
// the client session. When km is nil a fresh KeyMaterial is generated. The
// session takes ownership of km and zeroizes it on Close.
//
// Any failure closes the session and returns an error matching
// ErrHandshakeFailed.
func (s *Session) RespondHandshake(req *HandshakeRequest, km *crypto.KeyMaterial) (*HandshakeResponse, error) {
	if s.cfg.Role != RoleClient {
		return nil, ErrInvalidRole
	}
	s.hsMu.Lock()
	defer s.hsMu.Unlock()

	if err := s.checkHandshaking(); err != nil {
		return nil, err
	}
	if km != nil {
		// Owned from here on, so a failed handshake still wipes it.
		s.km = km
	}

	if req == nil || req.PublicKey == nil {
		return nil, s.failHandshake(crypto.ErrInvalidKey)
	}
	if !req.Suite.Equal(s.cfg.Suite) {
		return nil, s.failHandshake(fmt.Errorf("suite mismatch: offered %s, configured %s", req.Suite, s.cfg.Suite))
	}
	if req.PublicKey.Exchange() != s.cfg.Suite.Exchange ||
		(s.cfg.Suite.Exchange == crypto.ExchangeRSAOAEP && req.PublicKey.Bits() != s.cfg.Suite.ExchangeBits) {
		return nil, s.failHandshake(fmt.Errorf("%w: public key does not match suite %s", crypto.ErrInvalidKey, s.cfg.Suite))
	}

	if km == nil {
		fresh, err := crypto.NewKeyMaterial(s.cfg.Suite, s.cfg.Rand)
		if err != nil {
			return nil, s.failHandshake(err)
		}
		km = fresh
		s.km = km
	} else if len(km.Key) != s.cfg.Suite.KeySize() || len(km.IV) != s.cfg.Suite.NonceSize() {
		return nil, s.failHandshake(crypto.ErrInvalidKeyLength)
	}

	blob, err := crypto.Wrap(s.cfg.Rand, req.PublicKey, km)
	if err != nil {
		return nil, s.failHandshake(err)
	}
	if err := s.establish(km); err != nil {
		return nil, s.failHandshake(err)
	}
	return &HandshakeResponse{Blob: blob}, nil
}

// CompleteHandshake unwraps the client's KeyMaterial and establishes the
// server session. The key-transport private key is released either way.
func (s *Session) CompleteHandshake(resp *HandshakeResponse) error {
	if s.cfg.Role != RoleServer {
		return ErrInvalidRole
	}
	s.hsMu.Lock()
	defer s.hsMu.Unlock()

	if err := s.checkHandshaking(); err != nil {
		return err
	}
	if s.priv == nil {
		return ErrInvalidPhase
	}

	var blob []byte
	if resp != nil {
		blob = resp.Blob
	}
	km, err := crypto.Unwrap(s.priv, blob, s.cfg.Suite)
	s.zeroizePrivateKey()
	if err != nil {
		return s.failHandshake(err)
	}
	s.km = km
	if err := s.establish(km); err != nil {
		return s.failHandshake(err)
	}
	return nil
}

func (s *Session) checkHandshaking() error {
	switch s.Phase() {
	case PhaseClosed:
		return ErrSessionClosed
	case PhaseEstablished:
		return ErrInvalidPhase
	}
	return nil
}

// failHandshake closes the session and wraps cause. hsMu must be held.
func (s *Session) failHandshake(cause error) error {
	s.observer.FrameRejected(RejectHandshake)
	s.log.Warn("handshake failed", logger.Err(cause))
	if err := s.shutdown(); err != nil {
		s.log.Debug("release after failed handshake", logger.Err(err))
	}
	return fmt.Errorf("%w: %w", ErrHandshakeFailed, cause)
}

// establish derives the direction keys from km and flips the session to
// PhaseEstablished. hsMu must be held.
func (s *Session) establish(km *crypto.KeyMaterial) error {
	keys, err := crypto.DeriveSessionKeys(s.cfg.Suite, km)
	if err != nil {
		return err
	}
	defer keys.Zeroize()

	send, recv := keys.ClientToServer, keys.ServerToClient
	if s.cfg.Role == RoleServer {
		send, recv = recv, send
	}

	tx, err := crypto.NewStreamCipher(s.cfg.Suite.Cipher, send.Key, send.Nonce)
	if err != nil {
		return err
	}
	rx, err := crypto.NewStreamCipher(s.cfg.Suite.Cipher, recv.Key, recv.Nonce)
	if err != nil {
		_ = tx.Zeroize()
		return err
	}

	s.txMu.Lock()
	s.rxMu.Lock()
	defer s.rxMu.Unlock()
	defer s.txMu.Unlock()

	km.SendCounter = 0
	km.RecvCounter = 0
	s.km = km
	s.tx = tx
	s.rx = rx
	s.txMAC = append([]byte(nil), send.MAC...)
	s.rxMAC = append([]byte(nil), recv.MAC...)
	if s.cfg.LockMemory {
		s.lockMemory()
	}

	s.phase.Store(uint32(PhaseEstablished))
	s.observer.HandshakeCompleted(s.cfg.Role, s.cfg.Suite)
	s.log.Info("session established", logger.Stringer("suite", s.cfg.Suite))
	return nil
}

// lockMemory pins all session secrets. Both direction locks must be held.
func (s *Session) lockMemory() {
	err := multierr.Combine(
		crypto.LockBuffer(s.km.Key),
		crypto.LockBuffer(s.km.IV),
		crypto.LockBuffer(s.txMAC),
		crypto.LockBuffer(s.rxMAC),
		s.tx.LockMemory(),
		s.rx.LockMemory(),
	)
	if err == nil {
		s.locked = true
		return
	}
	_ = crypto.UnlockBuffer(s.km.Key)
	_ = crypto.UnlockBuffer(s.km.IV)
	_ = crypto.UnlockBuffer(s.txMAC)
	_ = crypto.UnlockBuffer(s.rxMAC)
	s.log.Warn("memory locking unavailable, continuing unlocked", logger.Err(err))
}
