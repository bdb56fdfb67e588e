package crypto

import (
	"math/big"
	"runtime"
)

// Wipe overwrites b with zeros.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}

// IsZero reports whether every byte of b is zero.
func IsZero(b []byte) bool {
	var v byte
	for _, x := range b {
		v |= x
	}
	return v == 0
}

// LockBuffer pins b in RAM so it is never written to swap. It is best
// effort: the call fails when RLIMIT_MEMLOCK is exhausted and is a no-op on
// platforms without mlock.
func LockBuffer(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return lockMemory(b)
}

// UnlockBuffer reverses LockBuffer.
func UnlockBuffer(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unlockMemory(b)
}

func wipeBig(x *big.Int) {
	if x == nil {
		return
	}
	words := x.Bits()
	for i := range words {
		words[i] = 0
	}
	x.SetInt64(0)
}
