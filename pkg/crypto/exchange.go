package crypto

import (
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

var oaepLabel = []byte("shaiya key transport")

// maxBoxPayload caps sealed-box plaintexts; the primitive itself has no
// limit but the handshake response length field is 16 bits.
const maxBoxPayload = 1024

// GenerateKeyPair creates a key pair for the suite's exchange, drawing all
// randomness from r (crypto/rand when nil).
func GenerateKeyPair(s Suite, r io.Reader) (*PublicKey, *PrivateKey, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	switch s.Exchange {
	case ExchangeRSAOAEP:
		rk, err := rsa.GenerateKey(Reader(r), s.ExchangeBits)
		if err != nil {
			return nil, nil, err
		}
		priv := newRSAPrivateKey(rk)
		return priv.Public(), priv, nil
	case ExchangeX25519Box:
		_, sk, err := box.GenerateKey(Reader(r))
		if err != nil {
			return nil, nil, err
		}
		priv, err := newBoxPrivateKey(sk)
		if err != nil {
			return nil, nil, err
		}
		return priv.Public(), priv, nil
	}
	return nil, nil, ErrUnsupportedAlgorithm
}

// Wrap encrypts km under pub. Padding is randomised, so two calls with the
// same input give different but equally valid blobs.
func Wrap(r io.Reader, pub *PublicKey, km *KeyMaterial) ([]byte, error) {
	if pub == nil || km == nil {
		return nil, ErrInvalidKey
	}
	plaintext := km.Marshal()
	defer Wipe(plaintext)

	if len(plaintext) > pub.MaxPayload() {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrEncodingTooLarge, len(plaintext), pub.MaxPayload())
	}

	switch pub.exchange {
	case ExchangeRSAOAEP:
		return rsa.EncryptOAEP(sha256.New(), Reader(r), pub.rsa, plaintext, oaepLabel)
	case ExchangeX25519Box:
		return box.SealAnonymous(nil, plaintext, pub.box, Reader(r))
	}
	return nil, ErrUnsupportedAlgorithm
}

// Unwrap recovers KeyMaterial from a Wrap blob. Every failure, whatever
// its cause, is reported as the bare ErrDecryptionFailed.
func Unwrap(priv *PrivateKey, blob []byte, s Suite) (*KeyMaterial, error) {
	if priv == nil || priv.exchange != s.Exchange {
		return nil, ErrDecryptionFailed
	}

	var (
		plaintext []byte
		err       error
	)
	switch priv.exchange {
	case ExchangeRSAOAEP:
		if priv.rsa == nil {
			return nil, ErrDecryptionFailed
		}
		plaintext, err = rsa.DecryptOAEP(sha256.New(), nil, priv.rsa, blob, oaepLabel)
	case ExchangeX25519Box:
		var ok bool
		plaintext, ok = box.OpenAnonymous(nil, blob, priv.public.box, priv.box)
		if !ok {
			err = ErrDecryptionFailed
		}
	default:
		err = ErrDecryptionFailed
	}
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	defer Wipe(plaintext)

	km, err := unmarshalKeyMaterial(s, plaintext)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return km, nil
}
