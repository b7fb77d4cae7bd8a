package crypto

import (
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/sha3"

	"github.com/JoelBondurant/digisafe/internal/secmem"
)

const (
	// KeySize is the master key length and also the required salt and pepper
	// length.
	KeySize = 32

	argonTime    = 1
	argonThreads = 1
)

// KDFCost is the Argon2id memory cost in KiB.
type KDFCost uint32

const (
	// CostFull is the production memory cost (4 GiB).
	CostFull KDFCost = 1 << 22
	// CostLow keeps interactive tests and debug builds fast (4 MiB).
	CostLow KDFCost = 1 << 12
)

var errBadKDFInput = errors.New("crypto: salt and pepper must be 32 bytes")

// DeriveMasterKey turns a password, a per-vault salt, and a device-local
// pepper into the 256-bit master key:
//
//	pre  = SHA3-256(salt || pepper || password)
//	main = Argon2id(pre, salt || pepper, t=1, m=cost, p=1, 32)
//	key  = SHA3-256(main || pepper || salt)
//
// The chain is fixed; changing any step breaks every existing vault. All
// intermediates are wiped before return and only the final key survives,
// written directly into protected memory.
func DeriveMasterKey(password, salt, pepper []byte, cost KDFCost) (*secmem.Buffer, error) {
	if len(salt) != KeySize || len(pepper) != KeySize {
		return nil, errBadKDFInput
	}

	h := sha3.New256()
	h.Write(salt)
	h.Write(pepper)
	h.Write(password)
	pre := h.Sum(nil)
	defer Zero(pre)

	argonSalt := make([]byte, 0, 2*KeySize)
	argonSalt = append(argonSalt, salt...)
	argonSalt = append(argonSalt, pepper...)
	defer Zero(argonSalt)

	main := argon2.IDKey(pre, argonSalt, argonTime, uint32(cost), argonThreads, KeySize)
	defer Zero(main)

	h = sha3.New256()
	h.Write(main)
	h.Write(pepper)
	h.Write(salt)
	key := h.Sum(nil)
	defer Zero(key)

	buf, err := secmem.Allocate(KeySize)
	if err != nil {
		return nil, err
	}
	if err := buf.Write(0, key); err != nil {
		buf.Destroy()
		return nil, err
	}
	return buf, nil
}
