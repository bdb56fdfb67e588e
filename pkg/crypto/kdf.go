package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/hkdf"
)

const sessionLabel = "shaiya session v1"

// DirectionKeys are the sub-keys protecting one direction of traffic.
type DirectionKeys struct {
	Key   []byte
	Nonce []byte
	MAC   []byte
}

func (d *DirectionKeys) zeroize() {
	Wipe(d.Key)
	Wipe(d.Nonce)
	Wipe(d.MAC)
}

// SessionKeys holds independent sub-keys for each direction, so learning
// one of them says nothing about the others.
type SessionKeys struct {
	ClientToServer DirectionKeys
	ServerToClient DirectionKeys
}

// Zeroize wipes every sub-key.
func (k *SessionKeys) Zeroize() {
	if k == nil {
		return
	}
	k.ClientToServer.zeroize()
	k.ServerToClient.zeroize()
}

// DeriveSessionKeys turns KeyMaterial into per-direction keys:
//
//	SEED = HKDF-Extract(SHA-256, salt = IV, secret = Key)
//	C2S-Key | S2C-Key | C2S-Nonce | S2C-Nonce | C2S-MAC | S2C-MAC = prf+(SEED, label)
func DeriveSessionKeys(s Suite, km *KeyMaterial) (*SessionKeys, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if km == nil || len(km.Key) != s.KeySize() || len(km.IV) != s.NonceSize() {
		return nil, ErrInvalidKeyLength
	}

	seed := hkdf.Extract(sha256.New, km.Key, km.IV)
	defer Wipe(seed)

	keyLen := s.KeySize()
	nonceLen := s.NonceSize()
	macLen := s.Digest.KeySize()
	total := 2*keyLen + 2*nonceLen + 2*macLen

	keyMat, err := PrfPlus(sha256.New, seed, []byte(sessionLabel), total)
	if err != nil {
		return nil, err
	}
	defer Wipe(keyMat)

	cursor := 0
	take := func(n int) []byte {
		b := append([]byte(nil), keyMat[cursor:cursor+n]...)
		cursor += n
		return b
	}

	keys := &SessionKeys{}
	keys.ClientToServer.Key = take(keyLen)
	keys.ServerToClient.Key = take(keyLen)
	keys.ClientToServer.Nonce = take(nonceLen)
	keys.ServerToClient.Nonce = take(nonceLen)
	keys.ClientToServer.MAC = take(macLen)
	keys.ServerToClient.MAC = take(macLen)
	return keys, nil
}
