// Package sync reconciles the local vault file against a remote backup copy.
// Resolution is last-writer-wins at whole-vault granularity: only public
// metadata is compared, and only the winning side is ever decrypted.
package sync

import (
	"crypto/rand"
	"time"

	"github.com/JoelBondurant/digisafe/internal/crypto"
	"github.com/JoelBondurant/digisafe/internal/envelope"
	"github.com/JoelBondurant/digisafe/internal/pepper"
	"github.com/JoelBondurant/digisafe/internal/secmem"
	"github.com/JoelBondurant/digisafe/internal/vault"
)

// Config carries the unlock inputs for Reconcile.
type Config struct {
	Name     string
	Password []byte
	Pepper   pepper.Source
	PepperID string
	Cost     crypto.KDFCost
	Now      time.Time
}

func (c *Config) setDefaults() {
	if c.PepperID == "" {
		c.PepperID = pepper.DefaultCredentialID
	}
	if c.Cost == 0 {
		c.Cost = crypto.CostFull
	}
	if c.Now.IsZero() {
		c.Now = time.Now()
	}
}

// Reconcile resolves a local and a remote envelope blob (either may be nil)
// into an unlocked vault and its master key. With both present, the side
// whose modified_ts is newer wins; on a tie the local copy wins. The losing
// ciphertext is discarded without being decrypted, so the key is derived at
// most once.
//
// A missing pepper is reported as crypto.ErrAuthentication, the same as a
// wrong password; the caller must not be able to tell which it was.
func Reconcile(local, remote []byte, cfg Config) (*vault.Vault, *secmem.Buffer, error) {
	cfg.setDefaults()

	pep, err := cfg.Pepper.Retrieve(cfg.PepperID)
	if err != nil {
		return nil, nil, crypto.ErrAuthentication
	}
	defer crypto.Zero(pep)

	chosen, err := choose(local, remote)
	if err != nil {
		return nil, nil, err
	}

	if chosen == nil {
		salt := make([]byte, crypto.KeySize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
		key, err := crypto.DeriveMasterKey(cfg.Password, salt, pep, cfg.Cost)
		if err != nil {
			return nil, nil, err
		}
		return envelope.NewVault(cfg.Name, salt, cfg.Now), key, nil
	}

	meta, err := envelope.PublicMeta(chosen)
	if err != nil {
		return nil, nil, err
	}
	salt, err := envelope.Salt(meta)
	if err != nil {
		return nil, nil, err
	}
	// A salt of the wrong length is corruption; it must not be
	// distinguishable from a wrong password.
	if len(salt) != crypto.KeySize {
		return nil, nil, crypto.ErrAuthentication
	}
	key, err := crypto.DeriveMasterKey(cfg.Password, salt, pep, cfg.Cost)
	if err != nil {
		return nil, nil, err
	}
	v, err := envelope.Open(chosen, key)
	if err != nil {
		key.Destroy()
		return nil, nil, err
	}
	return v, key, nil
}

// choose picks the blob to decrypt by public metadata alone. A side whose
// metadata does not decode is treated as absent; if that leaves nothing, the
// decode error surfaces.
func choose(local, remote []byte) ([]byte, error) {
	switch {
	case local == nil && remote == nil:
		return nil, nil
	case remote == nil:
		return local, nil
	case local == nil:
		return remote, nil
	}

	localTS, lerr := modifiedTS(local)
	remoteTS, rerr := modifiedTS(remote)
	switch {
	case lerr != nil && rerr != nil:
		return nil, lerr
	case lerr != nil:
		return remote, nil
	case rerr != nil:
		return local, nil
	}
	if localTS >= remoteTS {
		return local, nil
	}
	return remote, nil
}

func modifiedTS(blob []byte) (int64, error) {
	meta, err := envelope.PublicMeta(blob)
	if err != nil {
		return 0, err
	}
	return envelope.ModifiedTS(meta)
}
