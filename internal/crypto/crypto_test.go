package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/JoelBondurant/digisafe/internal/secmem"
)

func keyBytes(t *testing.T, b *secmem.Buffer) []byte {
	t.Helper()
	var out []byte
	err := b.WithRead(func(p []byte) error {
		out = append([]byte(nil), p...)
		return nil
	})
	if err != nil {
		t.Fatalf("read key: %v", err)
	}
	return out
}

func TestDeriveMasterKeyDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x11}, KeySize)
	pepper := bytes.Repeat([]byte{0x22}, KeySize)

	a, err := DeriveMasterKey([]byte("correct-horse"), salt, pepper, CostLow)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	defer a.Destroy()
	b, err := DeriveMasterKey([]byte("correct-horse"), salt, pepper, CostLow)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	defer b.Destroy()

	ka, kb := keyBytes(t, a), keyBytes(t, b)
	if len(ka) != KeySize {
		t.Fatalf("key length = %d, want %d", len(ka), KeySize)
	}
	if !bytes.Equal(ka, kb) {
		t.Fatal("same inputs derived different keys")
	}
}

func TestDeriveMasterKeyInputSensitivity(t *testing.T) {
	salt := bytes.Repeat([]byte{0x11}, KeySize)
	pepper := bytes.Repeat([]byte{0x22}, KeySize)

	base, err := DeriveMasterKey([]byte("pw"), salt, pepper, CostLow)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	defer base.Destroy()
	ref := keyBytes(t, base)

	otherSalt := bytes.Repeat([]byte{0x12}, KeySize)
	otherPepper := bytes.Repeat([]byte{0x23}, KeySize)
	cases := []struct {
		name             string
		pw, salt, pepper []byte
	}{
		{"password", []byte("pw2"), salt, pepper},
		{"salt", []byte("pw"), otherSalt, pepper},
		{"pepper", []byte("pw"), salt, otherPepper},
	}
	for _, tc := range cases {
		k, err := DeriveMasterKey(tc.pw, tc.salt, tc.pepper, CostLow)
		if err != nil {
			t.Fatalf("%s: derive: %v", tc.name, err)
		}
		got := keyBytes(t, k)
		k.Destroy()
		if bytes.Equal(got, ref) {
			t.Fatalf("changing %s did not change the key", tc.name)
		}
	}
}

func TestDeriveMasterKeyBadInputs(t *testing.T) {
	ok := bytes.Repeat([]byte{0x01}, KeySize)
	if _, err := DeriveMasterKey([]byte("pw"), ok[:16], ok, CostLow); err == nil {
		t.Fatal("short salt accepted")
	}
	if _, err := DeriveMasterKey([]byte("pw"), ok, ok[:16], CostLow); err == nil {
		t.Fatal("short pepper accepted")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	key := make([]byte, KeySize)
	rand.Read(key)
	nonce, err := CounterNonce(big.NewInt(7))
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}

	pt := []byte("attack at dawn")
	ct, err := Encrypt(pt, key, nonce[:])
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := Decrypt(ct, key, nonce[:])
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, pt) {
		t.Fatalf("round trip: got %q want %q", got, pt)
	}
}

func TestDecryptFailuresAreUniform(t *testing.T) {
	key := make([]byte, KeySize)
	rand.Read(key)
	nonce, _ := CounterNonce(big.NewInt(1))
	ct, err := Encrypt([]byte("payload"), key, nonce[:])
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	tampered := append([]byte(nil), ct...)
	tampered[0] ^= 0x01
	if _, err := Decrypt(tampered, key, nonce[:]); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("tampered ciphertext: err = %v, want ErrAuthentication", err)
	}

	wrongKey := make([]byte, KeySize)
	rand.Read(wrongKey)
	if _, err := Decrypt(ct, wrongKey, nonce[:]); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("wrong key: err = %v, want ErrAuthentication", err)
	}

	otherNonce, _ := CounterNonce(big.NewInt(2))
	if _, err := Decrypt(ct, key, otherNonce[:]); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("wrong nonce: err = %v, want ErrAuthentication", err)
	}
}

func TestCounterNonceLayout(t *testing.T) {
	// Counter is little-endian in the first 16 bytes, high 8 bytes zero.
	n, err := CounterNonce(big.NewInt(1))
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if n[0] != 1 {
		t.Fatalf("nonce[0] = %d, want 1", n[0])
	}
	for i := 1; i < NonceSize; i++ {
		if n[i] != 0 {
			t.Fatalf("nonce[%d] = %d, want 0", i, n[i])
		}
	}

	n, err = CounterNonce(big.NewInt(0x0102))
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if n[0] != 0x02 || n[1] != 0x01 {
		t.Fatalf("nonce[0:2] = %v, want [2 1]", n[:2])
	}
}

func TestCounterNonceBounds(t *testing.T) {
	max := new(big.Int).Lsh(big.NewInt(1), 128) // 2^128, one past the top
	if _, err := CounterNonce(max); err == nil {
		t.Fatal("129-bit counter accepted")
	}
	top := new(big.Int).Sub(max, big.NewInt(1))
	if _, err := CounterNonce(top); err != nil {
		t.Fatalf("2^128-1 rejected: %v", err)
	}
	if _, err := CounterNonce(big.NewInt(-1)); err == nil {
		t.Fatal("negative counter accepted")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox "), 200)
	packed, err := Compress(data)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(packed) >= len(data) {
		t.Fatalf("repetitive input did not shrink: %d -> %d", len(data), len(packed))
	}
	got, err := Decompress(packed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round trip mismatch")
	}
}
