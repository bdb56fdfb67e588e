package crypto

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

const (
	pemTypeRSAPrivate    = "RSA PRIVATE KEY"
	pemTypeX25519Private = "X25519 PRIVATE KEY"
)

// PublicKey is the recipient key of the key-transport step.
type PublicKey struct {
	exchange Exchange
	rsa      *rsa.PublicKey
	box      *[32]byte
}

func (p *PublicKey) Exchange() Exchange { return p.exchange }

// Bits is the modulus size for RSA, 256 for X25519.
func (p *PublicKey) Bits() int {
	if p.exchange == ExchangeRSAOAEP {
		return p.rsa.N.BitLen()
	}
	return 256
}

// MaxPayload is the largest plaintext Wrap accepts for this key.
func (p *PublicKey) MaxPayload() int {
	switch p.exchange {
	case ExchangeRSAOAEP:
		return p.rsa.Size() - 2*sha256.Size - 2
	case ExchangeX25519Box:
		return maxBoxPayload
	}
	return 0
}

// Bytes encodes the key for the handshake request: PKIX DER for RSA, the
// raw 32-byte point for X25519.
func (p *PublicKey) Bytes() ([]byte, error) {
	switch p.exchange {
	case ExchangeRSAOAEP:
		return x509.MarshalPKIXPublicKey(p.rsa)
	case ExchangeX25519Box:
		return append([]byte(nil), p.box[:]...), nil
	}
	return nil, ErrUnsupportedAlgorithm
}

// Fingerprint is a short hex SHA-256 digest of Bytes, for logs.
func (p *PublicKey) Fingerprint() string {
	b, err := p.Bytes()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:10])
}

func (p *PublicKey) Equal(o *PublicKey) bool {
	if p == nil || o == nil || p.exchange != o.exchange {
		return false
	}
	switch p.exchange {
	case ExchangeRSAOAEP:
		return p.rsa.Equal(o.rsa)
	case ExchangeX25519Box:
		return *p.box == *o.box
	}
	return false
}

// ParsePublicKey decodes the output of PublicKey.Bytes.
func ParsePublicKey(ex Exchange, b []byte) (*PublicKey, error) {
	switch ex {
	case ExchangeRSAOAEP:
		k, err := x509.ParsePKIXPublicKey(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		rk, ok := k.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidKey)
		}
		return &PublicKey{exchange: ex, rsa: rk}, nil
	case ExchangeX25519Box:
		if len(b) != 32 {
			return nil, fmt.Errorf("%w: x25519 key is %d bytes", ErrInvalidKey, len(b))
		}
		var k [32]byte
		copy(k[:], b)
		return &PublicKey{exchange: ex, box: &k}, nil
	}
	return nil, ErrUnsupportedAlgorithm
}

// PrivateKey is the holder's half of the key-transport key pair.
type PrivateKey struct {
	exchange Exchange
	rsa      *rsa.PrivateKey
	box      *[32]byte
	public   *PublicKey
}

func (k *PrivateKey) Exchange() Exchange { return k.exchange }

func (k *PrivateKey) Public() *PublicKey { return k.public }

// Zeroize overwrites the private scalar or exponent and primes. For RSA it
// reaches only the exported fields of rsa.PrivateKey; the copies that
// crypto/rsa precomputes internally are not wiped and stay until the key
// is garbage collected.
func (k *PrivateKey) Zeroize() {
	if k == nil {
		return
	}
	if k.box != nil {
		Wipe(k.box[:])
	}
	if k.rsa != nil {
		wipeBig(k.rsa.D)
		for _, p := range k.rsa.Primes {
			wipeBig(p)
		}
		wipeBig(k.rsa.Precomputed.Dp)
		wipeBig(k.rsa.Precomputed.Dq)
		wipeBig(k.rsa.Precomputed.Qinv)
		k.rsa = nil
	}
}

// MarshalPrivateKeyPEM encodes k as PKCS#1 PEM (RSA) or a raw X25519 PEM
// block.
func MarshalPrivateKeyPEM(k *PrivateKey) ([]byte, error) {
	var block *pem.Block
	switch k.exchange {
	case ExchangeRSAOAEP:
		block = &pem.Block{Type: pemTypeRSAPrivate, Bytes: x509.MarshalPKCS1PrivateKey(k.rsa)}
	case ExchangeX25519Box:
		block = &pem.Block{Type: pemTypeX25519Private, Bytes: append([]byte(nil), k.box[:]...)}
	default:
		return nil, ErrUnsupportedAlgorithm
	}
	out := pem.EncodeToMemory(block)
	Wipe(block.Bytes)
	return out, nil
}

// ParsePrivateKeyPEM decodes MarshalPrivateKeyPEM output.
func ParsePrivateKeyPEM(data []byte) (*PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKey)
	}
	defer Wipe(block.Bytes)

	switch block.Type {
	case pemTypeRSAPrivate:
		rk, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return newRSAPrivateKey(rk), nil
	case pemTypeX25519Private:
		if len(block.Bytes) != 32 {
			return nil, fmt.Errorf("%w: x25519 key is %d bytes", ErrInvalidKey, len(block.Bytes))
		}
		var priv [32]byte
		copy(priv[:], block.Bytes)
		return newBoxPrivateKey(&priv)
	}
	return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidKey, block.Type)
}

func newRSAPrivateKey(rk *rsa.PrivateKey) *PrivateKey {
	return &PrivateKey{
		exchange: ExchangeRSAOAEP,
		rsa:      rk,
		public:   &PublicKey{exchange: ExchangeRSAOAEP, rsa: &rk.PublicKey},
	}
}

func newBoxPrivateKey(priv *[32]byte) (*PrivateKey, error) {
	pb, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	var pub [32]byte
	copy(pub[:], pb)
	return &PrivateKey{
		exchange: ExchangeX25519Box,
		box:      priv,
		public:   &PublicKey{exchange: ExchangeX25519Box, box: &pub},
	}, nil
}
