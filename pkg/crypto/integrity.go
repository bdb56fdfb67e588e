package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Size is the tag length in bytes.
func (d Digest) Size() int {
	switch d {
	case DigestHMACSHA256, DigestHMACSHA512_256, DigestBLAKE2b256:
		return 32
	}
	return 0
}

// KeySize is the MAC key length derived for the digest.
func (d Digest) KeySize() int {
	switch d {
	case DigestHMACSHA256, DigestBLAKE2b256:
		return 32
	case DigestHMACSHA512_256:
		return 64
	}
	return 0
}

func (d Digest) newMAC(key []byte) (hash.Hash, error) {
	switch d {
	case DigestHMACSHA256:
		return hmac.New(sha256.New, key), nil
	case DigestHMACSHA512_256:
		// truncated below, as in HMAC-SHA2-512-256
		return hmac.New(sha512.New, key), nil
	case DigestBLAKE2b256:
		return blake2b.New256(key)
	}
	return nil, ErrUnsupportedAlgorithm
}

// ComputeTag returns the keyed digest over sequence (big-endian) || ciphertext.
func ComputeTag(d Digest, key []byte, sequence uint64, ciphertext []byte) ([]byte, error) {
	if len(key) != d.KeySize() {
		return nil, ErrInvalidKeyLength
	}
	mac, err := d.newMAC(key)
	if err != nil {
		return nil, err
	}
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	mac.Write(seq[:])
	mac.Write(ciphertext)
	return mac.Sum(nil)[:d.Size()], nil
}

// VerifyTag recomputes the tag and compares it in constant time.
func VerifyTag(d Digest, key []byte, sequence uint64, ciphertext, tag []byte) error {
	expected, err := ComputeTag(d, key, sequence, ciphertext)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(expected, tag) != 1 {
		return ErrTagMismatch
	}
	return nil
}
