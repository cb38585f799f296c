package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/session-gate/internal/application"
)

// TestKeyHex is a fixed AES-256 key for tests. Never use it outside tests.
const TestKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// CheapArgon2 keeps hashed-credential tests fast.
var CheapArgon2 = application.Argon2idParams{
	Memory:      64,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

var windowCounter uint64

var referenceTime = time.Date(2024, time.January, 2, 15, 0, 0, 0, time.UTC)

// ReferenceTime returns the baseline instant used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// WindowFixture describes a window to create through SchedulingService.
type WindowFixture struct {
	Slug       string
	Name       string
	Start      time.Time
	End        time.Time
	Credential string
}

// WindowOption configures a WindowFixture.
type WindowOption func(*WindowFixture)

// NewWindowFixture returns a one hour window starting at ReferenceTime on a
// slug unique to the process.
func NewWindowFixture(opts ...WindowOption) WindowFixture {
	idx := atomic.AddUint64(&windowCounter, 1)
	fixture := WindowFixture{
		Slug:       fmt.Sprintf("group-%03d", idx),
		Name:       fmt.Sprintf("Session %03d", idx),
		Start:      referenceTime,
		End:        referenceTime.Add(time.Hour),
		Credential: fmt.Sprintf("pass-%03d", idx),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithSlug(slug string) WindowOption {
	return func(f *WindowFixture) { f.Slug = slug }
}

// WithInterval sets both bounds.
func WithInterval(start, end time.Time) WindowOption {
	return func(f *WindowFixture) {
		f.Start = start
		f.End = end
	}
}

func WithCredential(credential string) WindowOption {
	return func(f *WindowFixture) { f.Credential = credential }
}

// Input converts the fixture into a service input.
func (f WindowFixture) Input() application.WindowInput {
	return application.WindowInput{
		Slug:       f.Slug,
		Name:       f.Name,
		Start:      f.Start,
		End:        f.End,
		Credential: f.Credential,
	}
}
