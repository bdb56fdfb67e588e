package session

import "github.com/iniwex5/shaiya-go/pkg/crypto"

// RejectReason labels why Decode refused a frame.
type RejectReason string

const (
	RejectReplay    RejectReason = "replay"
	RejectTag       RejectReason = "tag"
	RejectHandshake RejectReason = "handshake"
)

// Observer receives session events, e.g. for metrics. Calls are made while
// the relevant direction lock is held and must not block.
type Observer interface {
	HandshakeCompleted(role Role, suite crypto.Suite)
	FrameEncoded(size int)
	FrameDecoded(size int)
	FrameRejected(reason RejectReason)
}

type nopObserver struct{}

func (nopObserver) HandshakeCompleted(Role, crypto.Suite) {}
func (nopObserver) FrameEncoded(int)                      {}
func (nopObserver) FrameDecoded(int)                      {}
func (nopObserver) FrameRejected(RejectReason)            {}
