// Package session is the surface the presentation layer talks to: unlock a
// named vault, read and write entries while it is open, save, lock. One
// session exclusively owns its vault and master key; locking erases both.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/JoelBondurant/digisafe/internal/audit"
	"github.com/JoelBondurant/digisafe/internal/crypto"
	"github.com/JoelBondurant/digisafe/internal/durable"
	"github.com/JoelBondurant/digisafe/internal/envelope"
	"github.com/JoelBondurant/digisafe/internal/pepper"
	"github.com/JoelBondurant/digisafe/internal/secmem"
	"github.com/JoelBondurant/digisafe/internal/storage"
	sv "github.com/JoelBondurant/digisafe/internal/sync"
	"github.com/JoelBondurant/digisafe/internal/vault"
)

var (
	// ErrThrottled means unlock attempts for this vault are arriving faster
	// than the limiter allows.
	ErrThrottled = errors.New("session: too many unlock attempts")
	// ErrLocalWrite means the vault file could not be committed to disk; the
	// on-disk copy is whatever it was before Save.
	ErrLocalWrite = errors.New("session: local write failed")
	// ErrBackup means the local file is safe but the remote push failed.
	ErrBackup = errors.New("session: backup failed")
)

type Options struct {
	Dir      string            // local vault directory
	Remote   storage.BlobStore // optional remote backup
	Pepper   pepper.Source
	PepperID string
	Cost     crypto.KDFCost

	UnlockLimit rate.Limit
	UnlockBurst int
}

func (o *Options) setDefaults() {
	if o.Dir == "" {
		o.Dir = "."
	}
	if o.PepperID == "" {
		o.PepperID = pepper.DefaultCredentialID
	}
	if o.Cost == 0 {
		o.Cost = crypto.CostFull
	}
	if o.UnlockLimit == 0 {
		o.UnlockLimit = rate.Every(2 * time.Second)
	}
	if o.UnlockBurst == 0 {
		o.UnlockBurst = 5
	}
}

// Manager opens sessions against one local vault directory.
type Manager struct {
	opts    Options
	files   *durable.Store
	limiter *multiLimiter
	log     *audit.Log
}

func NewManager(opts Options) *Manager {
	opts.setDefaults()
	// A broken audit chain must not lock the user out of their secrets; the
	// operation log is best effort.
	log, _ := audit.Open(filepath.Join(opts.Dir, "audit.log"))
	return &Manager{
		opts:    opts,
		files:   durable.NewStore(opts.Dir),
		limiter: newMultiLimiter(opts.UnlockLimit, opts.UnlockBurst, 30*time.Minute),
		log:     log,
	}
}

func (m *Manager) record(name, op string) {
	if m.log != nil {
		_ = m.log.Append(name, op)
	}
}

// Unlock loads the local shard file and the remote backup copy, reconciles
// them by modification timestamp, and decrypts the winner. A vault that
// exists on neither side is created fresh. Wrong password, tampered data,
// and a missing pepper all surface as crypto.ErrAuthentication.
func (m *Manager) Unlock(ctx context.Context, name string, password []byte) (*Session, error) {
	if !m.limiter.allow(name) {
		m.record(name, "unlock_throttled")
		return nil, ErrThrottled
	}

	var local []byte
	var localErr error
	local, localErr = m.files.Read(name)
	if localErr != nil {
		local = nil
	}

	var remote []byte
	if m.opts.Remote != nil {
		if raw, err := m.opts.Remote.Get(ctx, name); err == nil {
			// Remote bytes are untrusted until the shard hashes check out.
			if blob, err := durable.Decode(raw); err == nil {
				remote = blob
			}
		}
	}

	if local == nil && remote == nil && localErr != nil && !os.IsNotExist(localErr) {
		// The local file exists but is unrecoverable and no backup can
		// replace it. Surfacing the integrity error beats silently creating
		// an empty vault over the wreckage.
		return nil, localErr
	}

	v, key, err := sv.Reconcile(local, remote, sv.Config{
		Name:     name,
		Password: password,
		Pepper:   m.opts.Pepper,
		PepperID: m.opts.PepperID,
		Cost:     m.opts.Cost,
	})
	if err != nil {
		m.record(name, "unlock_failed")
		return nil, err
	}
	m.record(name, "unlock")
	return &Session{name: name, vault: v, key: key, mgr: m}, nil
}

// Session is one unlocked vault.
type Session struct {
	name  string
	vault *vault.Vault
	key   *secmem.Buffer
	mgr   *Manager
}

// Get returns the stored password for a login entry.
func (s *Session) Get(name string) (string, bool) {
	e, ok := s.vault.GetLogin(name)
	if !ok {
		return "", false
	}
	return e.Password(), true
}

// Set upserts a login entry with the given password.
func (s *Session) Set(name, password string) error {
	e, ok := s.vault.GetLogin(name)
	if !ok {
		e = vault.NewLoginEntry(name)
	}
	e.SetPassword(password)
	return s.vault.SetLogin(e)
}

func (s *Session) GetLogin(name string) (vault.LoginEntry, bool) { return s.vault.GetLogin(name) }
func (s *Session) SetLogin(e vault.LoginEntry) error             { return s.vault.SetLogin(e) }
func (s *Session) GetMeta(name string) (string, bool)            { return s.vault.GetMeta(name) }
func (s *Session) SetMeta(name, value string)                    { s.vault.SetMeta(name, value) }
func (s *Session) Names() []string                               { return s.vault.Names(vault.KindLogin) }

// Save seals the vault and commits it locally, then pushes the same shard
// file to the backup store. The returned message tells the user whether the
// local copy is safe even when the backup is not.
func (s *Session) Save(ctx context.Context) (string, error) {
	blob, err := envelope.Seal(s.vault, s.key, time.Now())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLocalWrite, err)
	}
	raw, err := durable.Encode(blob)
	crypto.Zero(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLocalWrite, err)
	}
	if err := s.mgr.files.WriteEncoded(s.name, raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLocalWrite, err)
	}
	if s.mgr.opts.Remote != nil {
		if err := s.mgr.opts.Remote.Put(ctx, s.name, raw); err != nil {
			s.mgr.record(s.name, "save_backup_failed")
			return "Vault saved locally; backup failed.", fmt.Errorf("%w: %v", ErrBackup, err)
		}
	}
	s.mgr.record(s.name, "save")
	return "Vault saved.", nil
}

// Lock erases the vault contents and the master key. The session must not be
// used afterwards.
func (s *Session) Lock() {
	s.vault.SecureTeardown()
	s.key.Destroy()
}
