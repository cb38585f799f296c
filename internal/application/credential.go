package application

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/example/session-gate/internal/envelope"
)

var (
	ErrInvalidCredentialHash         = errors.New("invalid credential hash format")
	ErrIncompatibleCredentialVersion = errors.New("incompatible credential hash version")
	ErrUnknownCredentialMode         = errors.New("unknown credential mode")

	errCredentialMismatch = errors.New("credential mismatch")
)

// CredentialMode selects how window credentials are stored.
type CredentialMode string

const (
	// CredentialModeHashed stores an argon2id hash. Verification re-derives
	// the hash; the plaintext cannot be recovered.
	CredentialModeHashed CredentialMode = "argon2id"
	// CredentialModeEncrypted stores an AES-256-GCM envelope so operators can
	// read the credential back.
	CredentialModeEncrypted CredentialMode = "encrypted"
)

// credentialFormatHashed tags argon2id values in the credential_format column.
const credentialFormatHashed = "argon2id"

// ParseCredentialMode validates a configured mode.
func ParseCredentialMode(value string) (CredentialMode, error) {
	switch mode := CredentialMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case CredentialModeHashed, CredentialModeEncrypted:
		return mode, nil
	case "":
		return CredentialModeHashed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCredentialMode, value)
	}
}

// Argon2idParams tunes argon2id. Memory is in KiB.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams are used for window credentials in hashed mode.
var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

const credentialHashPrefix = "argon2id"

// CreateCredentialHash derives an argon2id hash of credential under a fresh
// random salt and encodes it in the PHC string format
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<hash>, with salt
// and hash in unpadded base64.
func CreateCredentialHash(credential string, params Argon2idParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := argon2.IDKey([]byte(credential), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		credentialHashPrefix, argon2.Version,
		params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyCredentialHash re-derives the hash of credential with the parameters
// and salt recorded in encoded and compares the two in constant time. It
// returns nil on a match, ErrInvalidCredentialHash or
// ErrIncompatibleCredentialVersion when encoded cannot be read, and an
// internal mismatch error otherwise.
func VerifyCredentialHash(encoded, credential string) error {
	params, salt, want, err := parseCredentialHash(encoded)
	if err != nil {
		return err
	}

	got := argon2.IDKey([]byte(credential), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return errCredentialMismatch
	}
	return nil
}

func parseCredentialHash(encoded string) (Argon2idParams, []byte, []byte, error) {
	var params Argon2idParams

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != credentialHashPrefix {
		return params, nil, nil, ErrInvalidCredentialHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return params, nil, nil, ErrInvalidCredentialHash
	}
	if version != argon2.Version {
		return params, nil, nil, ErrIncompatibleCredentialVersion
	}

	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return params, nil, nil, ErrInvalidCredentialHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return params, nil, nil, ErrInvalidCredentialHash
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return params, nil, nil, ErrInvalidCredentialHash
	}
	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(key))
	return params, salt, key, nil
}

// CredentialVault seals window credentials for storage and checks candidates
// against stored values. Stored values are read according to their format
// tag, so windows written under a previous mode keep working.
type CredentialVault struct {
	mode   CredentialMode
	cipher *envelope.Cipher
	params Argon2idParams
}

// NewCredentialVault builds a vault. The cipher is required for the encrypted
// mode and for reading encrypted values.
func NewCredentialVault(mode CredentialMode, cipher *envelope.Cipher, params Argon2idParams) (*CredentialVault, error) {
	if mode == "" {
		mode = CredentialModeHashed
	}
	if mode != CredentialModeHashed && mode != CredentialModeEncrypted {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCredentialMode, mode)
	}
	if mode == CredentialModeEncrypted && cipher == nil {
		return nil, fmt.Errorf("credential vault: encrypted mode requires a cipher")
	}
	if params.KeyLength == 0 {
		params = DefaultArgon2idParams
	}
	return &CredentialVault{mode: mode, cipher: cipher, params: params}, nil
}

// Mode returns the mode used for new credentials.
func (v *CredentialVault) Mode() CredentialMode {
	return v.mode
}

// Seal converts a plaintext credential into its stored value and format tag.
func (v *CredentialVault) Seal(credential string) (value, format string, err error) {
	switch v.mode {
	case CredentialModeEncrypted:
		record, err := v.cipher.Seal(credential)
		if err != nil {
			return "", "", err
		}
		return record.Payload, string(record.Format), nil
	default:
		hashed, err := CreateCredentialHash(credential, v.params)
		if err != nil {
			return "", "", err
		}
		return hashed, credentialFormatHashed, nil
	}
}

// Matches reports whether candidate equals the stored credential. A stored
// value that cannot be read is an error, never a match.
func (v *CredentialVault) Matches(stored, format, candidate string) (bool, error) {
	if format == credentialFormatHashed {
		switch err := VerifyCredentialHash(stored, candidate); {
		case err == nil:
			return true, nil
		case errors.Is(err, errCredentialMismatch):
			return false, nil
		default:
			return false, err
		}
	}

	parsed, err := envelope.ParseFormat(format)
	if err != nil {
		return false, err
	}
	expected := stored
	if parsed == envelope.FormatAESGCMv1 {
		if v.cipher == nil {
			return false, fmt.Errorf("credential vault: no cipher for %s credential", parsed)
		}
		expected, err = v.cipher.Open(envelope.Record{Format: parsed, Payload: stored})
		if err != nil {
			return false, err
		}
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1, nil
}
