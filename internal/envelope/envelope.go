// Package envelope seals message text with AES-256-GCM and encodes the result
// as a self-describing "<nonce_hex>:<ciphertext_hex>:<tag_hex>" string.
//
// A Cipher is immutable once constructed and safe for concurrent use. Every
// Encrypt call draws a fresh 96-bit nonce from the configured random source.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
	// Separator joins the three hex segments of an envelope.
	Separator = ":"
)

// Cipher encrypts and decrypts envelopes under a single provisioned key.
type Cipher struct {
	aead   cipher.AEAD
	random io.Reader
	logger *slog.Logger
}

// Option customises a Cipher.
type Option func(*Cipher)

// WithRandom overrides the nonce source. Intended for tests.
func WithRandom(r io.Reader) Option {
	return func(c *Cipher) {
		if r != nil {
			c.random = r
		}
	}
}

// WithLogger sets the logger used by the Safe* helpers.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cipher) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ParseKey decodes a 64 character hex string into a 32 byte key.
func ParseKey(hexKey string) ([]byte, error) {
	trimmed := strings.TrimSpace(hexKey)
	if trimmed == "" {
		return nil, &ConfigurationError{Reason: "encryption key is not set"}
	}
	if len(trimmed) != KeySize*2 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("encryption key must be %d hex characters, got %d", KeySize*2, len(trimmed))}
	}
	key, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, &ConfigurationError{Reason: "encryption key is not valid hex"}
	}
	return key, nil
}

// New constructs a Cipher from a raw 32 byte key.
func New(key []byte, opts ...Option) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("encryption key must be %d bytes, got %d", KeySize, len(key))}
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}

	c := &Cipher{aead: aead, random: rand.Reader, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromHex parses hexKey with ParseKey and constructs a Cipher.
func NewFromHex(hexKey string, opts ...Option) (*Cipher, error) {
	key, err := ParseKey(hexKey)
	if err != nil {
		return nil, err
	}
	return New(key, opts...)
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("envelope: read nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(sealed) - TagSize
	ciphertext, tag := sealed[:split], sealed[split:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(ciphertext),
		hex.EncodeToString(tag),
	}, Separator), nil
}

// Decrypt authenticates and opens an envelope produced by Encrypt. Any
// failure is reported as an *IntegrityError and no plaintext is returned.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, Separator)
	if len(parts) != 3 {
		return "", integrityError(fmt.Sprintf("expected 3 segments, got %d", len(parts)), nil)
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", integrityError("nonce is not hex", err)
	}
	if len(nonce) != NonceSize {
		return "", integrityError(fmt.Sprintf("nonce must be %d bytes, got %d", NonceSize, len(nonce)), nil)
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", integrityError("ciphertext is not hex", err)
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", integrityError("tag is not hex", err)
	}
	if len(tag) != TagSize {
		return "", integrityError(fmt.Sprintf("tag must be %d bytes, got %d", TagSize, len(tag)), nil)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", integrityError("authentication failed", err)
	}
	return string(plaintext), nil
}

// LooksEncrypted reports whether s has the shape of an envelope: exactly three
// non-empty, hex-only segments. It is a migration heuristic for untagged
// legacy rows and says nothing about authenticity.
func LooksEncrypted(s string) bool {
	parts := strings.Split(s, Separator)
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" || !isHex(part) {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'f':
		case ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}
