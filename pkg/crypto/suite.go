package crypto

import (
	"fmt"
	"math"
	"strings"
)

// Exchange selects the public-key primitive used to transport KeyMaterial.
type Exchange uint8

const (
	ExchangeRSAOAEP   Exchange = 1 // RSA-OAEP with SHA-256
	ExchangeX25519Box Exchange = 2 // anonymous NaCl sealed box
)

// CipherAlgorithm selects the stream cipher of the symmetric tunnel.
type CipherAlgorithm uint8

const (
	CipherAES128CTR CipherAlgorithm = 1
	CipherAES256CTR CipherAlgorithm = 2
	CipherChaCha20  CipherAlgorithm = 3
)

// CounterWidth bounds the frame sequence space.
type CounterWidth uint8

const (
	Counter32 CounterWidth = 32
	Counter64 CounterWidth = 64
)

// Digest selects the keyed digest used for frame tags.
type Digest uint8

const (
	DigestHMACSHA256     Digest = 1
	DigestHMACSHA512_256 Digest = 2 // HMAC-SHA512 truncated to 256 bits
	DigestBLAKE2b256     Digest = 3 // keyed BLAKE2b-256
)

// Suite fixes every algorithm choice of a session. Both endpoints must use
// the same Suite; it cannot change after construction.
type Suite struct {
	Exchange     Exchange
	ExchangeBits int // RSA modulus size; ignored for X25519
	Cipher       CipherAlgorithm
	Counter      CounterWidth
	Digest       Digest
}

// DefaultSuite matches the game client: 1024-bit RSA and AES-128-CTR.
func DefaultSuite() Suite {
	return Suite{
		Exchange:     ExchangeRSAOAEP,
		ExchangeBits: 1024,
		Cipher:       CipherAES128CTR,
		Counter:      Counter64,
		Digest:       DigestHMACSHA256,
	}
}

// RSA key sizes accepted by Validate.
const (
	MinRSABits = 1024
	MaxRSABits = 4096
)

func (s Suite) Validate() error {
	switch s.Exchange {
	case ExchangeRSAOAEP:
		if s.ExchangeBits < MinRSABits || s.ExchangeBits > MaxRSABits || s.ExchangeBits%8 != 0 {
			return fmt.Errorf("%w: rsa key size %d", ErrUnsupportedAlgorithm, s.ExchangeBits)
		}
	case ExchangeX25519Box:
	default:
		return fmt.Errorf("%w: exchange %d", ErrUnsupportedAlgorithm, s.Exchange)
	}
	if s.Cipher.KeySize() == 0 {
		return fmt.Errorf("%w: cipher %d", ErrUnsupportedAlgorithm, s.Cipher)
	}
	if s.Counter != Counter32 && s.Counter != Counter64 {
		return fmt.Errorf("%w: counter width %d", ErrUnsupportedAlgorithm, s.Counter)
	}
	if s.Digest.Size() == 0 {
		return fmt.Errorf("%w: digest %d", ErrUnsupportedAlgorithm, s.Digest)
	}
	return nil
}

// Equal compares two suites, ignoring ExchangeBits where the exchange has
// no size parameter.
func (s Suite) Equal(o Suite) bool {
	if s.Exchange == ExchangeX25519Box {
		s.ExchangeBits = 0
	}
	if o.Exchange == ExchangeX25519Box {
		o.ExchangeBits = 0
	}
	return s == o
}

// KeySize is the symmetric key length carried in KeyMaterial.
func (s Suite) KeySize() int { return s.Cipher.KeySize() }

// NonceSize is the IV length carried in KeyMaterial.
func (s Suite) NonceSize() int { return s.Cipher.NonceSize() }

// TagSize is the length of every frame tag.
func (s Suite) TagSize() int { return s.Digest.Size() }

// MaxSequence is the largest sequence number a frame may carry.
func (s Suite) MaxSequence() uint64 {
	if s.Counter == Counter32 {
		return math.MaxUint32
	}
	return math.MaxUint64
}

func (s Suite) String() string {
	bits := ""
	if s.Exchange == ExchangeRSAOAEP {
		bits = fmt.Sprintf("-%d", s.ExchangeBits)
	}
	return fmt.Sprintf("%s%s/%s/ctr%d/%s", s.Exchange, bits, s.Cipher, s.Counter, s.Digest)
}

func (e Exchange) String() string {
	switch e {
	case ExchangeRSAOAEP:
		return "rsa-oaep"
	case ExchangeX25519Box:
		return "x25519-box"
	}
	return fmt.Sprintf("exchange(%d)", uint8(e))
}

func (c CipherAlgorithm) String() string {
	switch c {
	case CipherAES128CTR:
		return "aes-128-ctr"
	case CipherAES256CTR:
		return "aes-256-ctr"
	case CipherChaCha20:
		return "chacha20"
	}
	return fmt.Sprintf("cipher(%d)", uint8(c))
}

func (d Digest) String() string {
	switch d {
	case DigestHMACSHA256:
		return "hmac-sha256"
	case DigestHMACSHA512_256:
		return "hmac-sha512-256"
	case DigestBLAKE2b256:
		return "blake2b-256"
	}
	return fmt.Sprintf("digest(%d)", uint8(d))
}

// ParseExchange accepts the names printed by Exchange.String.
func ParseExchange(name string) (Exchange, error) {
	switch strings.ToLower(name) {
	case "rsa-oaep", "rsa":
		return ExchangeRSAOAEP, nil
	case "x25519-box", "x25519":
		return ExchangeX25519Box, nil
	}
	return 0, fmt.Errorf("%w: exchange %q", ErrUnsupportedAlgorithm, name)
}

func ParseCipher(name string) (CipherAlgorithm, error) {
	switch strings.ToLower(name) {
	case "aes-128-ctr":
		return CipherAES128CTR, nil
	case "aes-256-ctr":
		return CipherAES256CTR, nil
	case "chacha20":
		return CipherChaCha20, nil
	}
	return 0, fmt.Errorf("%w: cipher %q", ErrUnsupportedAlgorithm, name)
}

func ParseDigest(name string) (Digest, error) {
	switch strings.ToLower(name) {
	case "hmac-sha256":
		return DigestHMACSHA256, nil
	case "hmac-sha512-256":
		return DigestHMACSHA512_256, nil
	case "blake2b-256":
		return DigestBLAKE2b256, nil
	}
	return 0, fmt.Errorf("%w: digest %q", ErrUnsupportedAlgorithm, name)
}

func ParseCounterWidth(bits int) (CounterWidth, error) {
	switch bits {
	case 32:
		return Counter32, nil
	case 64:
		return Counter64, nil
	}
	return 0, fmt.Errorf("%w: counter width %d", ErrUnsupportedAlgorithm, bits)
}

// SuiteFromIDs rebuilds a Suite from its wire identifiers.
func SuiteFromIDs(exchange uint8, bits uint16, cipher, counter, digest uint8) (Suite, error) {
	s := Suite{
		Exchange:     Exchange(exchange),
		ExchangeBits: int(bits),
		Cipher:       CipherAlgorithm(cipher),
		Counter:      CounterWidth(counter),
		Digest:       Digest(digest),
	}
	if s.Exchange == ExchangeX25519Box {
		s.ExchangeBits = 0
	}
	if err := s.Validate(); err != nil {
		return Suite{}, err
	}
	return s, nil
}
