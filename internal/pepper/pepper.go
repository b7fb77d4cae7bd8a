// Package pepper supplies the device-local secret mixed into key derivation.
// Without it the correct password alone cannot derive the master key, which
// binds a vault to the enrolled device.
package pepper

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// Size is the required pepper length.
const Size = 32

// DefaultCredentialID is the credential name used unless configured otherwise.
const DefaultCredentialID = "digisafe-pepper"

// ErrUnavailable means the sealed credential could not be retrieved (not
// enrolled, or the platform store refused to unseal it). Callers on the
// unlock path must fold this into the generic authentication failure.
var ErrUnavailable = errors.New("pepper: credential unavailable")

// Source retrieves a sealed device credential. It is an injected capability,
// never a process-wide singleton, so tests can substitute a fake.
type Source interface {
	Retrieve(credentialID string) ([]byte, error)
}

// Static is a fixed in-memory pepper for tests.
type Static struct {
	Key []byte
}

func (s Static) Retrieve(string) ([]byte, error) {
	if len(s.Key) != Size {
		return nil, fmt.Errorf("%w: static pepper is %d bytes", ErrUnavailable, len(s.Key))
	}
	return append([]byte(nil), s.Key...), nil
}

// NewStatic returns a Static with fresh random bytes, for test setup.
func NewStatic() (Static, error) {
	key := make([]byte, Size)
	if _, err := rand.Read(key); err != nil {
		return Static{}, err
	}
	return Static{Key: key}, nil
}
