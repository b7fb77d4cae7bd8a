// Package vault holds the decrypted, in-memory set of secret records and the
// name index over them. Everything here must support explicit erasure; the
// collections never own the only copy of a secret longer than a session.
package vault

import (
	"errors"
	"sort"
	"sync"

	"github.com/JoelBondurant/digisafe/internal/codec"
	"github.com/JoelBondurant/digisafe/internal/crypto"
)

var ErrNoName = errors.New("vault: entry has no name field")

// indexEntry maps a lookup key to a record id. Keys are kept as byte slices,
// not strings, so teardown can actually zero them.
type indexEntry struct {
	key []byte
	id  uint32
}

// Vault is the mutable record store for one unlocked session. Ids are
// assigned monotonically at first insertion and reused on update, so encode
// order (ascending id) matches the positional ids reconstructed on decode.
type Vault struct {
	mu      sync.RWMutex
	nextID  uint32
	records map[uint32]codec.Record
	index   []indexEntry
}

func New() *Vault {
	return &Vault{records: make(map[uint32]codec.Record)}
}

func indexKey(kind Kind, name string) []byte {
	k := make([]byte, 0, len(kind.indexName())+1+len(name))
	k = append(k, kind.indexName()...)
	k = append(k, 0)
	k = append(k, name...)
	return k
}

func (v *Vault) lookup(key []byte) (uint32, bool) {
	for _, e := range v.index {
		if string(e.key) == string(key) {
			return e.id, true
		}
	}
	return 0, false
}

// SetEntry upserts by logical name: an existing kind+name pair keeps its id,
// a new one takes the next id. The name is read from the nameTag field of fs.
func (v *Vault) SetEntry(kind Kind, fs *codec.FieldSet) error {
	name, ok := fs.GetString(nameTag)
	if !ok {
		return ErrNoName
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setLocked(kind, name, fs.Encode())
	return nil
}

func (v *Vault) setLocked(kind Kind, name string, payload []byte) {
	key := indexKey(kind, name)
	id, ok := v.lookup(key)
	if !ok {
		id = v.nextID
		v.nextID++
		v.index = append(v.index, indexEntry{key: key, id: id})
	}
	if old, ok := v.records[id]; ok {
		old.Zero()
	}
	v.records[id] = codec.Record{Kind: uint8(kind), Payload: payload}
}

// GetEntry returns a decoded copy of the named entry's fields.
func (v *Vault) GetEntry(kind Kind, name string) (*codec.FieldSet, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	id, ok := v.lookup(indexKey(kind, name))
	if !ok {
		return nil, false
	}
	rec, ok := v.records[id]
	if !ok {
		return nil, false
	}
	fs, err := codec.DecodeFieldSet(rec.Payload)
	if err != nil {
		return nil, false
	}
	return fs, true
}

func (v *Vault) SetMeta(name, value string) {
	_ = v.SetEntry(KindMeta, NewMetaEntry(name, value).Fields)
}

func (v *Vault) GetMeta(name string) (string, bool) {
	fs, ok := v.GetEntry(KindMeta, name)
	if !ok {
		return "", false
	}
	return MetaEntry{Fields: fs}.Value(), true
}

func (v *Vault) SetLogin(e LoginEntry) error {
	return v.SetEntry(KindLogin, e.Fields)
}

func (v *Vault) GetLogin(name string) (LoginEntry, bool) {
	fs, ok := v.GetEntry(KindLogin, name)
	if !ok {
		return LoginEntry{}, false
	}
	return LoginEntry{Fields: fs}, true
}

// Names lists the logical names of one kind, sorted.
func (v *Vault) Names(kind Kind) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	prefix := kind.indexName()
	var names []string
	for _, e := range v.index {
		k := string(e.key)
		if len(k) > len(prefix)+1 && k[:len(prefix)] == prefix && k[len(prefix)] == 0 {
			names = append(names, k[len(prefix)+1:])
		}
	}
	sort.Strings(names)
	return names
}

func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}

func (v *Vault) sortedIDs() []uint32 {
	ids := make([]uint32, 0, len(v.records))
	for id := range v.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Serialize encodes all records in ascending id order. The order is load
// bearing: ids are positional on the wire.
func (v *Vault) Serialize() []byte {
	v.mu.RLock()
	defer v.mu.RUnlock()
	records := make([]codec.Record, 0, len(v.records))
	for _, id := range v.sortedIDs() {
		records = append(records, v.records[id])
	}
	return codec.EncodeRecords(records)
}

// Deserialize rebuilds a vault from a record stream, reassigning ids by
// position and rebuilding the name index from each record's name field.
func Deserialize(data []byte) (*Vault, error) {
	records, err := codec.DecodeRecords(data)
	if err != nil {
		return nil, err
	}
	v := New()
	for _, rec := range records {
		fs, err := codec.DecodeFieldSet(rec.Payload)
		if err != nil {
			return nil, err
		}
		name, ok := fs.GetString(nameTag)
		if !ok {
			return nil, ErrNoName
		}
		v.setLocked(Kind(rec.Kind), name, rec.Payload)
		fs.Zero()
	}
	return v, nil
}

// MetaOnly derives a reduced vault holding only the meta records, renumbered
// with fresh sequential ids starting at 1. It backs the public half of the
// envelope, so no login record may ever leak into it.
func (v *Vault) MetaOnly() *Vault {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := New()
	out.nextID = 1
	for _, id := range v.sortedIDs() {
		rec := v.records[id]
		if Kind(rec.Kind) != KindMeta {
			continue
		}
		fs, err := codec.DecodeFieldSet(rec.Payload)
		if err != nil {
			continue
		}
		name, ok := fs.GetString(nameTag)
		fs.Zero()
		if !ok {
			continue
		}
		out.setLocked(KindMeta, name, append([]byte(nil), rec.Payload...))
	}
	return out
}

// SecureTeardown zeroes every record payload and every index key, then drops
// the backing collections. This runs on every lock, not just process exit.
func (v *Vault) SecureTeardown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, rec := range v.records {
		rec.Zero()
		delete(v.records, id)
	}
	for i := range v.index {
		crypto.Zero(v.index[i].key)
		v.index[i].key = nil
	}
	v.index = nil
	v.nextID = 0
}
