package vault

import (
	"github.com/JoelBondurant/digisafe/internal/codec"
)

// Kind discriminates record types inside a vault.
type Kind uint8

const (
	KindMeta  Kind = 0
	KindLogin Kind = 1
)

// indexName is the textual kind used in index keys.
func (k Kind) indexName() string {
	switch k {
	case KindMeta:
		return "meta"
	case KindLogin:
		return "login"
	default:
		return "unknown"
	}
}

// Field tags are closed enumerations per kind; encode and decode go through
// these constants, never raw integers.
const (
	MetaName  uint8 = 1
	MetaValue uint8 = 2
)

// nameTag is the tag every kind stores its logical name under; the index and
// the positional-id rebuild both depend on it.
const nameTag uint8 = 1

const (
	LoginName     uint8 = 1
	LoginUsername uint8 = 2
	LoginPassword uint8 = 3
	LoginNote     uint8 = 4
	LoginTOTP     uint8 = 5
)

// MetaEntry is a name/value pair. Meta records are the only records carried
// in the clear by the outer envelope, so they must never hold secrets.
type MetaEntry struct {
	Fields *codec.FieldSet
}

func NewMetaEntry(name, value string) MetaEntry {
	fs := codec.NewFieldSet()
	fs.SetString(MetaName, name)
	fs.SetString(MetaValue, value)
	return MetaEntry{Fields: fs}
}

func (e MetaEntry) Name() string {
	s, _ := e.Fields.GetString(MetaName)
	return s
}

func (e MetaEntry) Value() string {
	s, _ := e.Fields.GetString(MetaValue)
	return s
}

// LoginEntry is a stored credential.
type LoginEntry struct {
	Fields *codec.FieldSet
}

func NewLoginEntry(name string) LoginEntry {
	fs := codec.NewFieldSet()
	fs.SetString(LoginName, name)
	return LoginEntry{Fields: fs}
}

func (e LoginEntry) Name() string {
	s, _ := e.Fields.GetString(LoginName)
	return s
}

func (e LoginEntry) Username() string {
	s, _ := e.Fields.GetString(LoginUsername)
	return s
}

func (e LoginEntry) Password() string {
	s, _ := e.Fields.GetString(LoginPassword)
	return s
}

func (e LoginEntry) Note() string {
	s, _ := e.Fields.GetString(LoginNote)
	return s
}

// TOTPSecret is the base32 authenticator secret, empty when the entry has
// no second factor.
func (e LoginEntry) TOTPSecret() string {
	s, _ := e.Fields.GetString(LoginTOTP)
	return s
}

func (e LoginEntry) SetUsername(v string)   { e.Fields.SetString(LoginUsername, v) }
func (e LoginEntry) SetPassword(v string)   { e.Fields.SetString(LoginPassword, v) }
func (e LoginEntry) SetNote(v string)       { e.Fields.SetString(LoginNote, v) }
func (e LoginEntry) SetTOTPSecret(v string) { e.Fields.SetString(LoginTOTP, v) }
