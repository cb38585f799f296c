package application

import (
	"errors"
	"strings"
	"testing"

	"github.com/example/session-gate/internal/envelope"
)

func TestParseCredentialMode(t *testing.T) {
	t.Parallel()

	cases := map[string]CredentialMode{
		"":           CredentialModeHashed,
		"argon2id":   CredentialModeHashed,
		" Encrypted": CredentialModeEncrypted,
	}
	for input, want := range cases {
		got, err := ParseCredentialMode(input)
		if err != nil || got != want {
			t.Fatalf("ParseCredentialMode(%q) = %q, %v; want %q", input, got, err, want)
		}
	}

	if _, err := ParseCredentialMode("rot13"); !errors.Is(err, ErrUnknownCredentialMode) {
		t.Fatalf("expected unknown mode error, got %v", err)
	}
}

func TestCredentialHash_RoundTrip(t *testing.T) {
	t.Parallel()

	hashed, err := CreateCredentialHash("letmein", cheapArgon2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(hashed, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Fatalf("unexpected hash layout %q", hashed)
	}
	if err := VerifyCredentialHash(hashed, "letmein"); err != nil {
		t.Fatalf("expected credential to verify, got %v", err)
	}
	if err := VerifyCredentialHash(hashed, "letmeout"); !errors.Is(err, errCredentialMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := VerifyCredentialHash("$bcrypt$whatever", "x"); !errors.Is(err, ErrInvalidCredentialHash) {
		t.Fatalf("expected invalid hash error, got %v", err)
	}
}

func TestVerifyCredentialHash_RejectsMalformedEncodings(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA":    ErrInvalidCredentialHash,
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$aGFzaA":   ErrIncompatibleCredentialVersion,
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA":      ErrInvalidCredentialHash,
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA":      ErrInvalidCredentialHash,
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$":         ErrInvalidCredentialHash,
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA$x": ErrInvalidCredentialHash,
	}
	for encoded, want := range cases {
		if err := VerifyCredentialHash(encoded, "pw"); !errors.Is(err, want) {
			t.Fatalf("%q: expected %v, got %v", encoded, want, err)
		}
	}
}

func TestCredentialVault(t *testing.T) {
	t.Parallel()

	if _, err := NewCredentialVault(CredentialModeEncrypted, nil, cheapArgon2); err == nil {
		t.Fatalf("expected encrypted mode without cipher to fail")
	}

	hashedVault := newTestVault(t, CredentialModeHashed)
	encryptedVault := newTestVault(t, CredentialModeEncrypted)

	t.Run("reads values sealed under either mode", func(t *testing.T) {
		for _, sealer := range []*CredentialVault{hashedVault, encryptedVault} {
			value, format, err := sealer.Seal("s3cret")
			if err != nil {
				t.Fatalf("seal failed: %v", err)
			}
			if value == "s3cret" {
				t.Fatalf("%s mode stored the plaintext", sealer.Mode())
			}
			for _, reader := range []*CredentialVault{hashedVault, encryptedVault} {
				ok, err := reader.Matches(value, format, "s3cret")
				if err != nil || !ok {
					t.Fatalf("%s vault could not match %s value: %v", reader.Mode(), format, err)
				}
				ok, err = reader.Matches(value, format, "S3cret")
				if err != nil || ok {
					t.Fatalf("%s vault matched a wrong candidate: %v", reader.Mode(), err)
				}
			}
		}
	})

	t.Run("legacy plaintext", func(t *testing.T) {
		ok, err := hashedVault.Matches("legacy", string(envelope.FormatPlaintext), "legacy")
		if err != nil || !ok {
			t.Fatalf("expected plaintext credential to match, got %v", err)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if _, err := hashedVault.Matches("x", "rot13", "x"); !errors.Is(err, envelope.ErrUnknownFormat) {
			t.Fatalf("expected unknown format error, got %v", err)
		}
	})
}
