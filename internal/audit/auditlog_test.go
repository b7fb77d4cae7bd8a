package audit

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, op := range []string{"unlock", "save", "save"} {
		if err := l.Append("main", op); err != nil {
			t.Fatalf("append %q: %v", op, err)
		}
	}

	// Reopening verifies the chain end to end.
	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	entries, err := l2.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Op != "unlock" || entries[0].Vault != "main" {
		t.Fatalf("first entry = %+v", entries[0])
	}

	// Appending after reopen must continue the chain, not restart it.
	if err := l2.Append("main", "unlock"); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if _, err := Open(path); err != nil {
		t.Fatalf("chain broken after continued append: %v", err)
	}
}

func TestTamperDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Append("main", "unlock"); err != nil {
		t.Fatal(err)
	}
	if err := l.Append("main", "save"); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Rewrite the first operation without recomputing its hash.
	tampered := bytes.Replace(raw, []byte(`"unlock"`), []byte(`"UNLOCK"`), 1)
	if err := os.WriteFile(path, tampered, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("err = %v, want ErrChainBroken", err)
	}
}

func TestMissingFileIsEmptyLog(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "never-written.log"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	entries, err := l.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries from missing file", len(entries))
	}
}
