package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/crypto/chacha20"
)

func (c CipherAlgorithm) KeySize() int {
	switch c {
	case CipherAES128CTR:
		return 16
	case CipherAES256CTR:
		return 32
	case CipherChaCha20:
		return chacha20.KeySize
	}
	return 0
}

func (c CipherAlgorithm) NonceSize() int {
	switch c {
	case CipherAES128CTR, CipherAES256CTR:
		return aes.BlockSize
	case CipherChaCha20:
		return chacha20.NonceSize
	}
	return 0
}

// BlockSize is the keystream granularity of the cipher.
func (c CipherAlgorithm) BlockSize() int {
	switch c {
	case CipherAES128CTR, CipherAES256CTR:
		return aes.BlockSize
	case CipherChaCha20:
		return 64
	}
	return 0
}

// StreamCipher produces the keystream for one direction of a session.
//
// The keystream of frame n is the cipher run from a per-frame IV: the
// direction nonce with n (big-endian) XORed into bytes 4..12 and the
// trailing 4 bytes cleared for the block counter. Distinct frames therefore
// never share keystream, and the same (key, nonce, n) always yields the same
// bytes, which is what makes Apply self-inverse.
type StreamCipher struct {
	alg    CipherAlgorithm
	key    []byte
	nonce  []byte
	wiped  bool
	locked bool
}

func NewStreamCipher(alg CipherAlgorithm, key, nonce []byte) (*StreamCipher, error) {
	if alg.KeySize() == 0 {
		return nil, fmt.Errorf("%w: cipher %d", ErrUnsupportedAlgorithm, alg)
	}
	if len(key) != alg.KeySize() || len(nonce) != alg.NonceSize() {
		return nil, fmt.Errorf("%w: %s wants %d/%d bytes, got %d/%d",
			ErrInvalidKeyLength, alg, alg.KeySize(), alg.NonceSize(), len(key), len(nonce))
	}
	return &StreamCipher{
		alg:   alg,
		key:   append([]byte(nil), key...),
		nonce: append([]byte(nil), nonce...),
	}, nil
}

func (c *StreamCipher) Algorithm() CipherAlgorithm { return c.alg }

// KeystreamBlock returns the first keystream block for counter.
func (c *StreamCipher) KeystreamBlock(counter uint64) ([]byte, error) {
	return c.Apply(counter, make([]byte, c.alg.BlockSize()))
}

// Apply returns data XOR keystream(counter). Encryption and decryption are
// the same call.
func (c *StreamCipher) Apply(counter uint64, data []byte) ([]byte, error) {
	if c.wiped {
		return nil, ErrInvalidKey
	}
	iv := c.frameIV(counter)
	defer Wipe(iv)

	out := make([]byte, len(data))
	switch c.alg {
	case CipherAES128CTR, CipherAES256CTR:
		block, err := aes.NewCipher(c.key)
		if err != nil {
			return nil, err
		}
		cipher.NewCTR(block, iv).XORKeyStream(out, data)
	case CipherChaCha20:
		s, err := chacha20.NewUnauthenticatedCipher(c.key, iv)
		if err != nil {
			return nil, err
		}
		s.XORKeyStream(out, data)
	default:
		return nil, ErrUnsupportedAlgorithm
	}
	return out, nil
}

func (c *StreamCipher) frameIV(counter uint64) []byte {
	iv := append([]byte(nil), c.nonce...)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], counter)
	for i := 0; i < 8; i++ {
		iv[4+i] ^= seq[i]
	}
	for i := 12; i < len(iv); i++ {
		iv[i] = 0
	}
	return iv
}

// LockMemory pins the key and nonce in RAM (see LockBuffer).
func (c *StreamCipher) LockMemory() error {
	if err := LockBuffer(c.key); err != nil {
		return err
	}
	if err := LockBuffer(c.nonce); err != nil {
		_ = UnlockBuffer(c.key)
		return err
	}
	c.locked = true
	return nil
}

// Zeroize wipes the key and nonce and releases any memory lock. Apply
// fails afterwards.
func (c *StreamCipher) Zeroize() error {
	Wipe(c.key)
	Wipe(c.nonce)
	c.wiped = true
	if !c.locked {
		return nil
	}
	c.locked = false
	return multierr.Append(UnlockBuffer(c.key), UnlockBuffer(c.nonce))
}

// Wiped reports whether Zeroize has run and every secret byte is zero.
func (c *StreamCipher) Wiped() bool {
	return c.wiped && IsZero(c.key) && IsZero(c.nonce)
}
