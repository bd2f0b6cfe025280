package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	// Archive key sizes
	KeySize   = 16 // AES-128
	BlockSize = 16

	// Key sealing
	SealKeySize = 32 // AES-256
	NonceSize   = 12 // GCM standard
	TagSize     = 16 // GCM tag

	// PBKDF2 parameters
	DefaultIterations = 100000
	SaltSize          = 32

	sealedPrefix = "sealed"
)

// Errors
var (
	ErrInvalidCiphertext  = errors.New("invalid ciphertext format")
	ErrInvalidKey         = errors.New("invalid key")
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrPassphraseRequired = errors.New("key file is sealed with a passphrase")
)

// GenerateKey returns a new random archive key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// EncodeKey returns the hex form stored in key files.
func EncodeKey(key []byte) string {
	return hex.EncodeToString(key)
}

// DecodeKey parses a hex encoded archive key.
func DecodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if err := ValidateKeySize(key); err != nil {
		return nil, err
	}
	return key, nil
}

// IsSealed reports whether key file content was sealed with a passphrase.
func IsSealed(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), sealedPrefix+":")
}

// SealKey encrypts key with a passphrase derived key.
// Format: sealed:<salt hex>:<nonce || ciphertext || tag hex>
func SealKey(key []byte, passphrase string) (string, error) {
	if err := ValidateKeySize(key); err != nil {
		return "", err
	}
	if passphrase == "" {
		return "", ErrPassphraseRequired
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	blob, err := EncryptData(key, DeriveSealKey(passphrase, salt))
	if err != nil {
		return "", fmt.Errorf("seal key: %w", err)
	}

	return strings.Join([]string{sealedPrefix, hex.EncodeToString(salt), hex.EncodeToString(blob)}, ":"), nil
}

// OpenKey reverses SealKey.
func OpenKey(sealed, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	parts := strings.Split(strings.TrimSpace(sealed), ":")
	if len(parts) != 3 || parts[0] != sealedPrefix {
		return nil, fmt.Errorf("%w: malformed sealed key", ErrInvalidKey)
	}

	salt, err := hex.DecodeString(parts[1])
	if err != nil || len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: malformed salt", ErrInvalidKey)
	}

	blob, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed sealed key", ErrInvalidKey)
	}

	key, err := DecryptData(blob, DeriveSealKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	if err := ValidateKeySize(key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveSealKey derives the key sealing key from a passphrase.
func DeriveSealKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key(
		[]byte(normalizeText(passphrase)),
		salt,
		DefaultIterations,
		SealKeySize,
		sha256.New,
	)
}

// normalizeText normalizes Unicode text to NFKC form so equivalent
// passphrases typed on different platforms derive the same key.
func normalizeText(s string) string {
	return norm.NFKC.String(s)
}
