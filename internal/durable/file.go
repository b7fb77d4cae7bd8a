// Package durable writes the envelope blob as an erasure-coded, hash-checked
// shard file so partial corruption of the file is detected and repaired
// instead of destroying the vault.
package durable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/reedsolomon"
	"lukechampine.com/blake3"

	"github.com/JoelBondurant/digisafe/internal/crypto"
)

const (
	DataShards   = 8
	ParityShards = 4
	TotalShards  = DataShards + ParityShards

	// minShardSize keeps tiny vaults from degenerating into shards so small
	// that a single disk sector error takes out several of them.
	minShardSize = 4096

	// Per-shard prefix: original length (u64 LE) + BLAKE3-256 of the shard.
	shardHeaderSize = 8 + 32
)

// ErrIntegrity means fewer than DataShards shards survived hash verification,
// so the content is unrecoverable. Anything up to ParityShards bad shards is
// repaired silently.
var ErrIntegrity = errors.New("durable: too few valid shards to reconstruct")

// Encode splits data into DataShards equal shards (padded, at least
// minShardSize each), appends ParityShards parity shards, and prefixes every
// shard with the original length and its content hash.
func Encode(data []byte) ([]byte, error) {
	enc, err := reedsolomon.New(DataShards, ParityShards)
	if err != nil {
		return nil, err
	}
	shardSize := (len(data) + DataShards - 1) / DataShards
	if shardSize < minShardSize {
		shardSize = minShardSize
	}
	padded := make([]byte, shardSize*DataShards)
	copy(padded, data)
	defer crypto.Zero(padded)

	shards := make([][]byte, TotalShards)
	for i := 0; i < DataShards; i++ {
		shards[i] = padded[i*shardSize : (i+1)*shardSize]
	}
	for i := DataShards; i < TotalShards; i++ {
		shards[i] = make([]byte, shardSize)
	}
	if err := enc.Encode(shards); err != nil {
		return nil, err
	}

	out := make([]byte, 0, TotalShards*(shardHeaderSize+shardSize))
	originalLen := uint64(len(data))
	for _, shard := range shards {
		out = binary.LittleEndian.AppendUint64(out, originalLen)
		sum := blake3.Sum256(shard)
		out = append(out, sum[:]...)
		out = append(out, shard...)
	}
	for i := DataShards; i < TotalShards; i++ {
		crypto.Zero(shards[i])
	}
	return out, nil
}

// Decode verifies each shard against its embedded hash, treats mismatches as
// missing, reconstructs the data shards from any DataShards valid shards, and
// truncates to the recorded original length. Fails closed once more than
// ParityShards shards are bad.
func Decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%TotalShards != 0 {
		return nil, fmt.Errorf("%w: file size %d not divisible into %d shards", ErrIntegrity, len(raw), TotalShards)
	}
	chunkSize := len(raw) / TotalShards
	if chunkSize <= shardHeaderSize {
		return nil, fmt.Errorf("%w: shard chunk too small", ErrIntegrity)
	}
	shardSize := chunkSize - shardHeaderSize

	shards := make([][]byte, TotalShards)
	var originalLen uint64
	haveLen := false
	for i := 0; i < TotalShards; i++ {
		chunk := raw[i*chunkSize : (i+1)*chunkSize]
		recordedLen := binary.LittleEndian.Uint64(chunk[:8])
		var want [32]byte
		copy(want[:], chunk[8:shardHeaderSize])
		shard := chunk[shardHeaderSize:]
		if blake3.Sum256(shard) != want {
			continue
		}
		if !haveLen {
			originalLen = recordedLen
			haveLen = true
		}
		shards[i] = append([]byte(nil), shard...)
	}

	enc, err := reedsolomon.New(DataShards, ParityShards)
	if err != nil {
		return nil, err
	}
	if err := enc.ReconstructData(shards); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	if !haveLen || originalLen > uint64(DataShards*shardSize) {
		return nil, fmt.Errorf("%w: recorded length implausible", ErrIntegrity)
	}

	out := make([]byte, 0, DataShards*shardSize)
	for i := 0; i < DataShards; i++ {
		out = append(out, shards[i]...)
	}
	return out[:originalLen], nil
}

// Store keeps shard files in one directory: "<name>.vlt" canonical,
// ".<name>.vlt" as the atomic-write staging path.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	_ = os.MkdirAll(dir, 0700)
	return &Store{dir: dir}
}

func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".vlt")
}

func (s *Store) stagingPath(name string) string {
	return filepath.Join(s.dir, "."+name+".vlt")
}

// WriteEncoded commits already-encoded shard bytes: staging file, fsync, then
// rename over the canonical path so a crash mid-write never leaves a torn
// file there.
func (s *Store) WriteEncoded(name string, raw []byte) error {
	tmp := s.stagingPath(name)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path(name))
}

func (s *Store) Write(name string, data []byte) error {
	raw, err := Encode(data)
	if err != nil {
		return err
	}
	return s.WriteEncoded(name, raw)
}

// ReadEncoded returns the raw shard file, e.g. for pushing to a backup store.
func (s *Store) ReadEncoded(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

func (s *Store) Read(name string) ([]byte, error) {
	raw, err := s.ReadEncoded(name)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}
