// Package envelope turns a vault into its at-rest form and back: the full
// record stream is compressed, sealed under the master key, and carried as a
// single base64 field inside a meta-only outer vault. The outer metadata
// (salt, nonce counter, identifiers, timestamps) stays in the clear because
// it must be readable before the master key exists.
package envelope

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/JoelBondurant/digisafe/internal/codec"
	"github.com/JoelBondurant/digisafe/internal/crypto"
	"github.com/JoelBondurant/digisafe/internal/secmem"
	"github.com/JoelBondurant/digisafe/internal/vault"
)

// Public metadata names. MetaCipher holds the sealed inner vault and is the
// only outer field that is not plain bootstrap metadata.
const (
	MetaDBName   = "db_name"
	MetaSalt     = "salt"
	MetaNonce    = "nonce"
	MetaCreated  = "created_ts"
	MetaModified = "modified_ts"
	MetaCipher   = "db"
)

var one = big.NewInt(1)

// NewVault creates an empty vault seeded with its public bootstrap metadata.
func NewVault(name string, salt []byte, now time.Time) *vault.Vault {
	ts := strconv.FormatInt(now.Unix(), 10)
	v := vault.New()
	v.SetMeta(MetaDBName, name)
	v.SetMeta(MetaNonce, "0")
	v.SetMeta(MetaSalt, base64.StdEncoding.EncodeToString(salt))
	v.SetMeta(MetaCreated, ts)
	v.SetMeta(MetaModified, ts)
	return v
}

// Seal produces the at-rest blob for v. The nonce counter is incremented and
// written back into v's metadata before any ciphertext exists; reusing a
// counter value under the same key would void the AEAD's confidentiality, so
// the updated counter travels inside both the sealed payload and the clear
// outer metadata.
func Seal(v *vault.Vault, key *secmem.Buffer, now time.Time) ([]byte, error) {
	v.SetMeta(MetaModified, strconv.FormatInt(now.Unix(), 10))

	counterStr, ok := v.GetMeta(MetaNonce)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q metadata", codec.ErrFormat, MetaNonce)
	}
	counter, ok := new(big.Int).SetString(counterStr, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad %q metadata", codec.ErrFormat, MetaNonce)
	}
	counter.Add(counter, one)
	v.SetMeta(MetaNonce, counter.String())
	nonce, err := crypto.CounterNonce(counter)
	if err != nil {
		return nil, err
	}

	inner := v.Serialize()
	defer crypto.Zero(inner)
	compressed, err := crypto.Compress(inner)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(compressed)

	var sealed []byte
	err = key.WithRead(func(k []byte) error {
		var cerr error
		sealed, cerr = crypto.Encrypt(compressed, k, nonce[:])
		return cerr
	})
	if err != nil {
		return nil, err
	}

	outer := v.MetaOnly()
	outer.SetMeta(MetaCipher, base64.StdEncoding.EncodeToString(sealed))
	blob := outer.Serialize()
	outer.SecureTeardown()
	return blob, nil
}

// PublicMeta decodes the outer metadata without touching the private payload
// and without needing a key.
func PublicMeta(blob []byte) (*vault.Vault, error) {
	return vault.Deserialize(blob)
}

// Salt extracts the key-derivation salt from decoded public metadata.
func Salt(meta *vault.Vault) ([]byte, error) {
	s, ok := meta.GetMeta(MetaSalt)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q metadata", codec.ErrFormat, MetaSalt)
	}
	salt, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad %q metadata", codec.ErrFormat, MetaSalt)
	}
	return salt, nil
}

// ModifiedTS extracts the logical modification timestamp (integer seconds).
func ModifiedTS(meta *vault.Vault) (int64, error) {
	s, ok := meta.GetMeta(MetaModified)
	if !ok {
		return 0, fmt.Errorf("%w: missing %q metadata", codec.ErrFormat, MetaModified)
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %q metadata", codec.ErrFormat, MetaModified)
	}
	return ts, nil
}

// Open reverses Seal. Every failure past the outer decode is reported as an
// authentication failure; a caller cannot tell a wrong password from a
// tampered payload.
func Open(blob []byte, key *secmem.Buffer) (*vault.Vault, error) {
	outer, err := vault.Deserialize(blob)
	if err != nil {
		return nil, err
	}
	defer outer.SecureTeardown()

	counterStr, ok := outer.GetMeta(MetaNonce)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q metadata", codec.ErrFormat, MetaNonce)
	}
	counter, ok := new(big.Int).SetString(counterStr, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad %q metadata", codec.ErrFormat, MetaNonce)
	}
	nonce, err := crypto.CounterNonce(counter)
	if err != nil {
		return nil, err
	}

	cipherB64, ok := outer.GetMeta(MetaCipher)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q metadata", codec.ErrFormat, MetaCipher)
	}
	sealed, err := base64.StdEncoding.DecodeString(cipherB64)
	if err != nil {
		return nil, crypto.ErrAuthentication
	}

	var compressed []byte
	err = key.WithRead(func(k []byte) error {
		var derr error
		compressed, derr = crypto.Decrypt(sealed, k, nonce[:])
		return derr
	})
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(compressed)

	inner, err := crypto.Decompress(compressed)
	if err != nil {
		// The AEAD authenticated this payload, so a decompression failure is
		// a format defect, not tampering.
		return nil, fmt.Errorf("%w: %v", codec.ErrFormat, err)
	}
	defer crypto.Zero(inner)

	return vault.Deserialize(inner)
}
