package envelope

import (
	"errors"
	"fmt"
	"strings"
)

// Format tags how a stored value was written. Every persisted record carries
// its format explicitly so readers never infer it from the value's shape.
type Format string

const (
	// FormatPlaintext marks legacy rows stored without encryption.
	FormatPlaintext Format = "plain"
	// FormatAESGCMv1 marks envelopes produced by Cipher.Encrypt.
	FormatAESGCMv1 Format = "aes-256-gcm/v1"
)

// ErrUnknownFormat is returned for format tags this package cannot read.
var ErrUnknownFormat = errors.New("envelope: unknown record format")

// ParseFormat validates a stored format tag.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.TrimSpace(value)) {
	case FormatPlaintext:
		return FormatPlaintext, nil
	case FormatAESGCMv1:
		return FormatAESGCMv1, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
	}
}

// Record is a stored value paired with its format tag.
type Record struct {
	Format  Format
	Payload string
}

// Seal encrypts plaintext into a FormatAESGCMv1 record.
func (c *Cipher) Seal(plaintext string) (Record, error) {
	payload, err := c.Encrypt(plaintext)
	if err != nil {
		return Record{}, err
	}
	return Record{Format: FormatAESGCMv1, Payload: payload}, nil
}

// Open returns the plaintext of a record according to its format tag.
func (c *Cipher) Open(record Record) (string, error) {
	switch record.Format {
	case FormatAESGCMv1:
		return c.Decrypt(record.Payload)
	case FormatPlaintext:
		return record.Payload, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, record.Format)
	}
}

// ClassifyLegacy guesses the format of an untagged legacy value. It exists
// only to backfill format tags and must not be used on the read path.
func ClassifyLegacy(value string) Format {
	if LooksEncrypted(value) {
		return FormatAESGCMv1
	}
	return FormatPlaintext
}
