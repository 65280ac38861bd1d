// Package crypto seals credentials so API secrets can live in config
// files without being readable at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// prefix marks sealed values in env vars and config files.
	prefix = "enc:"
)

var (
	ErrInvalidKey = errors.New("sealer key must be 32 bytes")
	ErrNotSealed  = errors.New("value is not sealed")
	ErrOpenFailed = errors.New("unseal failed: wrong key or corrupt value")
	ErrShortValue = errors.New("sealed value too short")
)

// Sealer encrypts and decrypts short secrets with AES-256-GCM.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a raw 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// KeyFromBase64 decodes a base64-encoded 32-byte key, the format used
// in the CREDENTIALS_KEY env var.
func KeyFromBase64(v string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// IsSealed reports whether a value carries the sealed prefix.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, prefix)
}

// Seal encrypts plaintext into "enc:" + base64(nonce|ciphertext).
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return "", ErrNotSealed
	}
	data, err := base64.StdEncoding.DecodeString(value[len(prefix):])
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(data) < s.aead.NonceSize() {
		return "", ErrShortValue
	}
	nonce, ciphertext := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plain), nil
}
