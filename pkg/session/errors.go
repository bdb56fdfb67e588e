package session

import "errors"

var (
	// ErrHandshakeFailed is fatal: the session is closed and must be discarded.
	ErrHandshakeFailed = errors.New("session: handshake failed")

	// ErrReplayOrReorder means a frame's sequence was not above the last
	// accepted one.
	ErrReplayOrReorder = errors.New("session: replayed or reordered frame")

	// ErrSessionClosed is returned by every call after Close.
	ErrSessionClosed = errors.New("session: closed")

	ErrInvalidPhase      = errors.New("session: operation not valid in current phase")
	ErrInvalidRole       = errors.New("session: operation not valid for this role")
	ErrSequenceExhausted = errors.New("session: send sequence exhausted, rekey required")
)
