package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/JoelBondurant/digisafe/internal/crypto"
	"github.com/JoelBondurant/digisafe/internal/pepper"
	"github.com/JoelBondurant/digisafe/internal/storage"
)

func testOptions(t *testing.T, pep pepper.Source) Options {
	t.Helper()
	return Options{
		Dir:         t.TempDir(),
		Pepper:      pep,
		Cost:        crypto.CostLow,
		UnlockLimit: rate.Inf,
	}
}

func TestUnlockSetSaveUnlock(t *testing.T) {
	pep, err := pepper.NewStatic()
	if err != nil {
		t.Fatal(err)
	}
	opts := testOptions(t, pep)
	ctx := context.Background()

	mgr := NewManager(opts)
	sess, err := mgr.Unlock(ctx, "v1", []byte("correct-horse"))
	if err != nil {
		t.Fatalf("unlock fresh: %v", err)
	}
	if err := sess.Set("example.com", "hunter2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	msg, err := sess.Save(ctx)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if msg != "Vault saved." {
		t.Fatalf("msg = %q", msg)
	}
	sess.Lock()

	// New manager, same directory: the entry must come back from disk.
	mgr2 := NewManager(opts)
	sess2, err := mgr2.Unlock(ctx, "v1", []byte("correct-horse"))
	if err != nil {
		t.Fatalf("unlock persisted: %v", err)
	}
	defer sess2.Lock()
	pw, ok := sess2.Get("example.com")
	if !ok || pw != "hunter2" {
		t.Fatalf("get = %q, %v", pw, ok)
	}
}

func TestUnlockWrongPassword(t *testing.T) {
	pep, err := pepper.NewStatic()
	if err != nil {
		t.Fatal(err)
	}
	opts := testOptions(t, pep)
	ctx := context.Background()

	mgr := NewManager(opts)
	sess, err := mgr.Unlock(ctx, "v1", []byte("right"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Save(ctx); err != nil {
		t.Fatal(err)
	}
	sess.Lock()

	if _, err := mgr.Unlock(ctx, "v1", []byte("wrong")); !errors.Is(err, crypto.ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
}

func TestUnlockThrottled(t *testing.T) {
	pep, err := pepper.NewStatic()
	if err != nil {
		t.Fatal(err)
	}
	opts := testOptions(t, pep)
	opts.UnlockLimit = rate.Every(time.Hour)
	opts.UnlockBurst = 1

	mgr := NewManager(opts)
	ctx := context.Background()
	sess, err := mgr.Unlock(ctx, "v1", []byte("pw"))
	if err != nil {
		t.Fatalf("first unlock: %v", err)
	}
	sess.Lock()

	if _, err := mgr.Unlock(ctx, "v1", []byte("pw")); !errors.Is(err, ErrThrottled) {
		t.Fatalf("second unlock: err = %v, want ErrThrottled", err)
	}
	// Other vaults have their own budget.
	sess2, err := mgr.Unlock(ctx, "v2", []byte("pw"))
	if err != nil {
		t.Fatalf("other vault throttled: %v", err)
	}
	sess2.Lock()
}

func TestSaveBackupFailureKeepsLocal(t *testing.T) {
	pep, err := pepper.NewStatic()
	if err != nil {
		t.Fatal(err)
	}
	opts := testOptions(t, pep)
	opts.Remote = failingStore{}
	ctx := context.Background()

	mgr := NewManager(opts)
	sess, err := mgr.Unlock(ctx, "v1", []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Set("example.com", "secret"); err != nil {
		t.Fatal(err)
	}
	msg, err := sess.Save(ctx)
	if !errors.Is(err, ErrBackup) {
		t.Fatalf("err = %v, want ErrBackup", err)
	}
	if msg != "Vault saved locally; backup failed." {
		t.Fatalf("msg = %q", msg)
	}
	sess.Lock()

	// The local copy survived; unlock without the remote still sees the entry.
	localOnly := opts
	localOnly.Remote = nil
	sess2, err := NewManager(localOnly).Unlock(ctx, "v1", []byte("pw"))
	if err != nil {
		t.Fatalf("unlock local copy: %v", err)
	}
	defer sess2.Lock()
	if pw, ok := sess2.Get("example.com"); !ok || pw != "secret" {
		t.Fatalf("get = %q, %v", pw, ok)
	}
}

func TestRemoteBackupRestores(t *testing.T) {
	pep, err := pepper.NewStatic()
	if err != nil {
		t.Fatal(err)
	}
	remote := storage.NewFileBlobStore(t.TempDir())
	ctx := context.Background()

	opts := testOptions(t, pep)
	opts.Remote = remote
	sess, err := NewManager(opts).Unlock(ctx, "v1", []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Set("example.com", "from-device-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Save(ctx); err != nil {
		t.Fatal(err)
	}
	sess.Lock()

	// A second device shares the remote but has an empty local directory.
	deviceB := testOptions(t, pep)
	deviceB.Remote = remote
	sessB, err := NewManager(deviceB).Unlock(ctx, "v1", []byte("pw"))
	if err != nil {
		t.Fatalf("unlock from backup: %v", err)
	}
	defer sessB.Lock()
	if pw, ok := sessB.Get("example.com"); !ok || pw != "from-device-a" {
		t.Fatalf("get = %q, %v", pw, ok)
	}
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, []byte) error { return errors.New("remote down") }
func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, storage.ErrNotFound
}
func (failingStore) Delete(context.Context, string) error { return nil }
