package pepper

import (
	"crypto/rand"
	"fmt"

	"github.com/99designs/keyring"
)

// KeyringSource seals the pepper in the OS credential store (Secret Service,
// macOS Keychain, Windows Credential Manager, or an encrypted file backend).
type KeyringSource struct {
	ring keyring.Keyring
}

func NewKeyringSource(service string) (*KeyringSource, error) {
	ring, err := keyring.Open(keyring.Config{ServiceName: service})
	if err != nil {
		return nil, fmt.Errorf("pepper: open keyring: %w", err)
	}
	return &KeyringSource{ring: ring}, nil
}

func (k *KeyringSource) Retrieve(credentialID string) ([]byte, error) {
	item, err := k.ring.Get(credentialID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(item.Data) != Size {
		return nil, fmt.Errorf("%w: stored credential is %d bytes", ErrUnavailable, len(item.Data))
	}
	return append([]byte(nil), item.Data...), nil
}

// Enroll generates and seals a fresh pepper under credentialID. It refuses to
// overwrite an existing credential: re-enrolling would orphan every vault
// derived from the old pepper.
func (k *KeyringSource) Enroll(credentialID string) error {
	if _, err := k.ring.Get(credentialID); err == nil {
		return fmt.Errorf("pepper: credential %q already enrolled", credentialID)
	}
	key := make([]byte, Size)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	err := k.ring.Set(keyring.Item{
		Key:   credentialID,
		Label: "digisafe device pepper",
		Data:  key,
	})
	for i := range key {
		key[i] = 0
	}
	if err != nil {
		return fmt.Errorf("pepper: seal credential: %w", err)
	}
	return nil
}
