// Package codec implements the tag-length-value wire format used for entry
// fields and for the record stream of a serialized vault.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// ErrFormat is returned for any malformed or truncated TLV input. The format
// has no end marker, so corrupt input must be rejected here, never passed on
// as a partial parse.
var ErrFormat = errors.New("codec: malformed field data")

// FieldSet is an ordered mapping from a one-byte tag to a value. Tags are
// unique and always serialized in ascending order so encoding is
// deterministic.
type FieldSet struct {
	fields map[uint8][]byte
}

func NewFieldSet() *FieldSet {
	return &FieldSet{fields: make(map[uint8][]byte)}
}

// Set stores a copy of value under tag, replacing any previous value.
func (fs *FieldSet) Set(tag uint8, value []byte) {
	fs.fields[tag] = append([]byte(nil), value...)
}

func (fs *FieldSet) SetString(tag uint8, value string) {
	fs.fields[tag] = []byte(value)
}

func (fs *FieldSet) Get(tag uint8) ([]byte, bool) {
	v, ok := fs.fields[tag]
	return v, ok
}

func (fs *FieldSet) GetString(tag uint8) (string, bool) {
	v, ok := fs.fields[tag]
	if !ok {
		return "", false
	}
	return string(v), true
}

// Tags returns the present tags in ascending order.
func (fs *FieldSet) Tags() []uint8 {
	tags := make([]uint8, 0, len(fs.fields))
	for t := range fs.fields {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Zero overwrites every field value in place and drops the fields.
func (fs *FieldSet) Zero() {
	for t, v := range fs.fields {
		wipe(v)
		delete(fs.fields, t)
	}
}

// Encode emits tag (u8), length (u32 little-endian), value for each field in
// ascending tag order.
func (fs *FieldSet) Encode() []byte {
	size := 0
	for _, v := range fs.fields {
		size += 1 + 4 + len(v)
	}
	buf := make([]byte, 0, size)
	for _, tag := range fs.Tags() {
		v := fs.fields[tag]
		buf = append(buf, tag)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

// DecodeFieldSet scans data until it is exhausted. A length prefix that runs
// past the input is a fatal decode error.
func DecodeFieldSet(data []byte) (*FieldSet, error) {
	fs := NewFieldSet()
	cursor := 0
	for cursor < len(data) {
		if cursor+5 > len(data) {
			return nil, fmt.Errorf("%w: truncated field header at offset %d", ErrFormat, cursor)
		}
		tag := data[cursor]
		length := int(binary.LittleEndian.Uint32(data[cursor+1 : cursor+5]))
		cursor += 5
		if length > len(data)-cursor {
			return nil, fmt.Errorf("%w: field %d overruns input", ErrFormat, tag)
		}
		fs.Set(tag, data[cursor:cursor+length])
		cursor += length
	}
	return fs, nil
}
