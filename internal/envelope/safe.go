package envelope

import "context"

// Status describes the outcome of a Safe* call.
type Status int

const (
	// StatusSealed means SafeEncrypt produced an envelope.
	StatusSealed Status = iota + 1
	// StatusOpened means SafeDecrypt authenticated and opened an envelope.
	StatusOpened
	// StatusDegraded means the operation failed and Value holds the input
	// unchanged. Callers decide whether unprotected content is acceptable.
	StatusDegraded
)

// String returns a stable label for logs and API payloads.
func (s Status) String() string {
	switch s {
	case StatusSealed:
		return "sealed"
	case StatusOpened:
		return "opened"
	case StatusDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Result is the outcome of SafeEncrypt or SafeDecrypt.
type Result struct {
	Value  string
	Status Status
	Err    error
}

// Degraded reports whether the operation fell back to the original input.
func (r Result) Degraded() bool {
	return r.Status == StatusDegraded
}

// SafeEncrypt never fails. On error it logs at ERROR level and returns the
// plaintext unchanged with StatusDegraded. Use only on best-effort paths.
func (c *Cipher) SafeEncrypt(ctx context.Context, plaintext string) Result {
	sealed, err := c.Encrypt(plaintext)
	if err != nil {
		c.logger.ErrorContext(ctx, "encryption degraded to plaintext", "component", "envelope", "error", err)
		return Result{Value: plaintext, Status: StatusDegraded, Err: err}
	}
	return Result{Value: sealed, Status: StatusSealed}
}

// SafeDecrypt never fails. On error it logs at ERROR level and returns the
// input unchanged with StatusDegraded. It must not feed analysis or audit
// paths, which need Decrypt's IntegrityError instead.
func (c *Cipher) SafeDecrypt(ctx context.Context, value string) Result {
	plaintext, err := c.Decrypt(value)
	if err != nil {
		c.logger.ErrorContext(ctx, "decryption degraded to stored value", "component", "envelope", "error", err, "looks_encrypted", LooksEncrypted(value))
		return Result{Value: value, Status: StatusDegraded, Err: err}
	}
	return Result{Value: plaintext, Status: StatusOpened}
}
