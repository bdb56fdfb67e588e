package crypto

import (
	"crypto/hmac"
	"errors"
	"hash"
)

// maxPrfBlocks is the largest counter a single-byte block index allows.
const maxPrfBlocks = 255

var ErrPrfOutputTooLong = errors.New("crypto: prf+ output too long")

// PrfPlus stretches key over seed to n bytes with HMAC(newHash), chaining
// each block into the next:
//
//	T1 = HMAC(K, S | 0x01)
//	Tn = HMAC(K, Tn-1 | S | n)
func PrfPlus(newHash func() hash.Hash, key, seed []byte, n int) ([]byte, error) {
	mac := hmac.New(newHash, key)
	if blocks := (n + mac.Size() - 1) / mac.Size(); blocks > maxPrfBlocks {
		return nil, ErrPrfOutputTooLong
	}

	out := make([]byte, 0, n+mac.Size())
	var prev []byte
	for i := byte(1); len(out) < n; i++ {
		mac.Reset()
		mac.Write(prev)
		mac.Write(seed)
		mac.Write([]byte{i})
		prev = mac.Sum(out[len(out):])
		out = out[:len(out)+len(prev)]
	}
	Wipe(out[n:cap(out)])
	return out[:n:n], nil
}
