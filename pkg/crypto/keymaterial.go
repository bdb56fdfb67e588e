package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
)

// KeyMaterial is the symmetric secret shared by both endpoints once the
// handshake is done. The counters start at zero and only grow; a
// (key, counter) pair must never be used twice.
type KeyMaterial struct {
	Key []byte
	IV  []byte

	SendCounter uint64
	RecvCounter uint64
}

// NewKeyMaterial draws a fresh key and IV sized for the suite.
func NewKeyMaterial(s Suite, r io.Reader) (*KeyMaterial, error) {
	key, err := RandomBytes(r, s.KeySize())
	if err != nil {
		return nil, err
	}
	iv, err := RandomBytes(r, s.NonceSize())
	if err != nil {
		Wipe(key)
		return nil, err
	}
	return &KeyMaterial{Key: key, IV: iv}, nil
}

// KeyMaterialFromBytes copies key and iv after checking their lengths
// against the suite.
func KeyMaterialFromBytes(s Suite, key, iv []byte) (*KeyMaterial, error) {
	if len(key) != s.KeySize() {
		return nil, fmt.Errorf("%w: key is %d bytes, %s needs %d", ErrInvalidKeyLength, len(key), s.Cipher, s.KeySize())
	}
	if len(iv) != s.NonceSize() {
		return nil, fmt.Errorf("%w: iv is %d bytes, %s needs %d", ErrInvalidKeyLength, len(iv), s.Cipher, s.NonceSize())
	}
	return &KeyMaterial{
		Key: append([]byte(nil), key...),
		IV:  append([]byte(nil), iv...),
	}, nil
}

// Marshal returns key || iv, the plaintext of the key-transport blob.
// The caller owns the result and should Wipe it.
func (k *KeyMaterial) Marshal() []byte {
	out := make([]byte, 0, len(k.Key)+len(k.IV))
	out = append(out, k.Key...)
	return append(out, k.IV...)
}

func unmarshalKeyMaterial(s Suite, b []byte) (*KeyMaterial, error) {
	if len(b) != s.KeySize()+s.NonceSize() {
		return nil, ErrInvalidKeyLength
	}
	return KeyMaterialFromBytes(s, b[:s.KeySize()], b[s.KeySize():])
}

// Equal compares the secret bytes in constant time. Counters are ignored.
func (k *KeyMaterial) Equal(o *KeyMaterial) bool {
	if k == nil || o == nil {
		return k == o
	}
	return subtle.ConstantTimeCompare(k.Key, o.Key)&subtle.ConstantTimeCompare(k.IV, o.IV) == 1
}

// Zeroize wipes the key and IV in place and resets the counters.
func (k *KeyMaterial) Zeroize() {
	if k == nil {
		return
	}
	Wipe(k.Key)
	Wipe(k.IV)
	k.SendCounter = 0
	k.RecvCounter = 0
}

// RandomBytes reads n bytes from r, or from crypto/rand when r is nil.
func RandomBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(Reader(r), b); err != nil {
		return nil, err
	}
	return b, nil
}

// Reader returns r, or crypto/rand.Reader when r is nil.
func Reader(r io.Reader) io.Reader {
	if r == nil {
		return rand.Reader
	}
	return r
}
