package crypto

import "errors"

var (
	// ErrEncodingTooLarge means the key-transport plaintext exceeds what the
	// public-key primitive can encrypt in one block.
	ErrEncodingTooLarge = errors.New("crypto: encoding too large for public key")

	// ErrDecryptionFailed is the only error Unwrap returns. Wrong keys,
	// malformed blobs and bad padding are deliberately indistinguishable.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")

	// ErrTagMismatch means a frame tag did not verify.
	ErrTagMismatch = errors.New("crypto: tag mismatch")

	ErrUnsupportedAlgorithm = errors.New("crypto: unsupported algorithm")
	ErrInvalidKeyLength     = errors.New("crypto: invalid key length")
	ErrInvalidKey           = errors.New("crypto: invalid key")
)
