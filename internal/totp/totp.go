// Package totp implements RFC 6238 one-time codes for login entries that
// carry an authenticator secret. Secrets are stored base32-encoded inside the
// encrypted vault, never in public metadata.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Step       = 30 * time.Second
	Digits     = 6
	secretSize = 20 // 160-bit secret
)

var ErrBadSecret = errors.New("totp: secret is not valid base32")

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a fresh base32 secret suitable for enrolling with an
// authenticator app.
func GenerateSecret() (string, error) {
	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return b32.EncodeToString(secret), nil
}

// Code returns the six-digit code for the time step containing when.
func Code(secret string, when time.Time) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	defer zero(raw)
	counter := uint64(when.Unix() / int64(Step/time.Second))
	return hotp(raw, counter), nil
}

// Verify checks code against the current step and one step either side, to
// tolerate clock skew between this device and the authenticator.
func Verify(code, secret string, when time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != Digits {
		return false
	}
	raw, err := decodeSecret(secret)
	if err != nil {
		return false
	}
	defer zero(raw)

	counter := when.Unix() / int64(Step/time.Second)
	for i := int64(-1); i <= 1; i++ {
		cur := counter + i
		if cur < 0 {
			continue
		}
		if hmac.Equal([]byte(hotp(raw, uint64(cur))), []byte(code)) {
			return true
		}
	}
	return false
}

// ProvisionURI builds the otpauth:// URI that authenticator apps import.
func ProvisionURI(account, issuer, secret string) string {
	account = strings.ReplaceAll(account, " ", "")
	issuer = strings.ReplaceAll(issuer, " ", "")
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=%d&period=%d",
		urlEscape(issuer), urlEscape(account), secret, urlEscape(issuer), Digits, int(Step/time.Second))
}

func hotp(secret []byte, counter uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0F
	trunc := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF
	return fmt.Sprintf("%0*d", Digits, trunc%1000000)
}

func decodeSecret(secret string) ([]byte, error) {
	raw, err := b32.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return nil, ErrBadSecret
	}
	return raw, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func urlEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		for _, bt := range []byte(string(r)) {
			fmt.Fprintf(&b, "%%%02X", bt)
		}
	}
	return b.String()
}
