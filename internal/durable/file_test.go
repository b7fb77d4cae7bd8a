package durable

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 100, 4096, 40000, 65537} {
		data := make([]byte, size)
		rand.Read(data)
		raw, err := Encode(data)
		if err != nil {
			t.Fatalf("size %d: encode: %v", size, err)
		}
		if len(raw)%TotalShards != 0 {
			t.Fatalf("size %d: raw length %d not divisible by %d", size, len(raw), TotalShards)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("size %d: decode: %v", size, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("size %d: round trip mismatch", size)
		}
	}
}

// corrupt flips a byte inside the body of shard i.
func corrupt(raw []byte, i int) {
	chunkSize := len(raw) / TotalShards
	raw[i*chunkSize+shardHeaderSize+7] ^= 0xff
}

func TestDecodeRepairsUpToParity(t *testing.T) {
	data := make([]byte, 10000)
	rand.Read(data)
	encoded, err := Encode(data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for bad := 1; bad <= ParityShards; bad++ {
		raw := append([]byte(nil), encoded...)
		for i := 0; i < bad; i++ {
			corrupt(raw, i)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("%d bad shards: decode: %v", bad, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("%d bad shards: reconstruction mismatch", bad)
		}
	}
}

func TestDecodeFailsClosedPastParity(t *testing.T) {
	data := make([]byte, 10000)
	rand.Read(data)
	raw, err := Encode(data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i <= ParityShards; i++ {
		corrupt(raw, i)
	}
	if _, err := Decode(raw); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
}

func TestDecodeRejectsBadSize(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("nil: err = %v, want ErrIntegrity", err)
	}
	if _, err := Decode(make([]byte, TotalShards*shardHeaderSize+1)); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("odd size: err = %v, want ErrIntegrity", err)
	}
}

func TestStoreWriteRead(t *testing.T) {
	s := NewStore(t.TempDir())
	data := []byte("vault contents")
	if err := s.Write("main", data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.Read("main")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round trip mismatch")
	}

	// The staging file must not survive a completed write.
	if _, err := os.Stat(s.stagingPath("main")); !os.IsNotExist(err) {
		t.Fatalf("staging file left behind: %v", err)
	}
}

func TestStoreReadRepairsDamagedFile(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	data := make([]byte, 5000)
	rand.Read(data)
	if err := s.Write("main", data); err != nil {
		t.Fatalf("write: %v", err)
	}

	raw, err := os.ReadFile(s.Path("main"))
	if err != nil {
		t.Fatal(err)
	}
	corrupt(raw, 3)
	if err := os.WriteFile(s.Path("main"), raw, 0600); err != nil {
		t.Fatal(err)
	}

	got, err := s.Read("main")
	if err != nil {
		t.Fatalf("read after damage: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("repaired content mismatch")
	}
}

func TestStoreReadMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Read("nope"); !os.IsNotExist(err) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}
