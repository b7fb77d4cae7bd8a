package crypto

import (
	"errors"
	"math/big"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is the XChaCha20-Poly1305 nonce length.
const NonceSize = chacha20poly1305.NonceSizeX

// ErrAuthentication covers every decryption failure: wrong password, missing
// pepper, corrupted or tampered ciphertext. The causes are deliberately not
// distinguishable from each other.
var ErrAuthentication = errors.New("crypto: decryption failed")

var errNonceOverflow = errors.New("crypto: nonce counter exceeds 128 bits")

// Encrypt seals plaintext under an XChaCha20-Poly1305 key with the given
// 24-byte nonce. The nonce is a persisted counter, never random; the caller
// must have committed the incremented counter before using it here.
func Encrypt(plaintext, key, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt opens a sealed payload. Any failure yields ErrAuthentication and no
// plaintext, partial or otherwise.
func Decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return pt, nil
}

// CounterNonce expands a 128-bit monotone counter into a 24-byte nonce:
// counter little-endian in the first 16 bytes, high 8 bytes zero.
func CounterNonce(counter *big.Int) ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if counter.Sign() < 0 || counter.BitLen() > 128 {
		return nonce, errNonceOverflow
	}
	var be [16]byte
	counter.FillBytes(be[:])
	for i := 0; i < 16; i++ {
		nonce[i] = be[15-i]
	}
	return nonce, nil
}
