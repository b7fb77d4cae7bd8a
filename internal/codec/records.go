package codec

import (
	"encoding/binary"
	"fmt"
	"runtime"
)

// Record is one typed entry in a serialized vault: a kind discriminator and
// the encoded FieldSet bytes. The record id is not on the wire; it is the
// 0-based position of the record in the stream. Callers must therefore encode
// records in id order, or existing files stop round-tripping.
type Record struct {
	Kind    uint8
	Payload []byte
}

// Zero overwrites the payload in place.
func (r *Record) Zero() {
	wipe(r.Payload)
	r.Payload = nil
}

// EncodeRecords emits kind (u8), length (u32 little-endian), payload for each
// record in the given order.
func EncodeRecords(records []Record) []byte {
	size := 0
	for _, r := range records {
		size += 1 + 4 + len(r.Payload)
	}
	buf := make([]byte, 0, size)
	for _, r := range records {
		buf = append(buf, r.Kind)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Payload)))
		buf = append(buf, r.Payload...)
	}
	return buf
}

// DecodeRecords scans data until exhausted. The index of each returned record
// is its id.
func DecodeRecords(data []byte) ([]Record, error) {
	var records []Record
	cursor := 0
	for cursor < len(data) {
		if cursor+5 > len(data) {
			return nil, fmt.Errorf("%w: truncated record header at offset %d", ErrFormat, cursor)
		}
		kind := data[cursor]
		length := int(binary.LittleEndian.Uint32(data[cursor+1 : cursor+5]))
		cursor += 5
		if length > len(data)-cursor {
			return nil, fmt.Errorf("%w: record %d overruns input", ErrFormat, len(records))
		}
		records = append(records, Record{
			Kind:    kind,
			Payload: append([]byte(nil), data[cursor:cursor+length]...),
		})
		cursor += length
	}
	return records, nil
}

func wipe(p []byte) {
	for i := range p {
		p[i] = 0
	}
	runtime.KeepAlive(p)
}
