package session

import (
	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/logger"
)

// Frame is one encrypted, authenticated unit of traffic.
type Frame struct {
	Sequence   uint64
	Ciphertext []byte
	Tag        []byte
}

// Encode encrypts plaintext under the next send sequence. The first frame
// of a session carries sequence 1.
func (s *Session) Encode(plaintext []byte) (*Frame, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := s.checkEstablished(); err != nil {
		return nil, err
	}
	if s.km.SendCounter >= s.cfg.Suite.MaxSequence() {
		return nil, ErrSequenceExhausted
	}
	seq := s.km.SendCounter + 1

	ct, err := s.tx.Apply(seq, plaintext)
	if err != nil {
		return nil, err
	}
	tag, err := crypto.ComputeTag(s.cfg.Suite.Digest, s.txMAC, seq, ct)
	if err != nil {
		return nil, err
	}

	s.km.SendCounter = seq
	s.observer.FrameEncoded(len(plaintext))
	return &Frame{Sequence: seq, Ciphertext: ct, Tag: tag}, nil
}

// Decode authenticates and decrypts f. The tag is checked before any
// decryption; a frame at or below the last accepted sequence is refused
// with ErrReplayOrReorder. A rejected frame leaves the session unchanged.
func (s *Session) Decode(f *Frame) ([]byte, error) {
	s.rxMu.Lock()
	defer s.rxMu.Unlock()

	if err := s.checkEstablished(); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, s.reject(RejectTag, crypto.ErrTagMismatch)
	}
	if f.Sequence <= s.km.RecvCounter {
		s.log.Debug("frame replayed or reordered",
			logger.Uint64("seq", f.Sequence),
			logger.Uint64("last", s.km.RecvCounter))
		return nil, s.reject(RejectReplay, ErrReplayOrReorder)
	}
	if err := crypto.VerifyTag(s.cfg.Suite.Digest, s.rxMAC, f.Sequence, f.Ciphertext, f.Tag); err != nil {
		return nil, s.reject(RejectTag, err)
	}

	pt, err := s.rx.Apply(f.Sequence, f.Ciphertext)
	if err != nil {
		return nil, err
	}
	s.km.RecvCounter = f.Sequence
	s.observer.FrameDecoded(len(pt))
	return pt, nil
}

func (s *Session) checkEstablished() error {
	switch s.Phase() {
	case PhaseClosed:
		return ErrSessionClosed
	case PhaseHandshaking:
		return ErrInvalidPhase
	}
	return nil
}

func (s *Session) reject(reason RejectReason, err error) error {
	s.rejected.Add(1)
	s.observer.FrameRejected(reason)
	return err
}
