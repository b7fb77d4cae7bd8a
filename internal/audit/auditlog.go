// Package audit keeps a tamper-evident record of vault operations. Each entry
// hashes over its predecessor, so truncating or rewriting history breaks the
// chain. Entries name the vault and the operation only; no secret material
// and no entry names are ever logged.
package audit

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"lukechampine.com/blake3"
)

var ErrChainBroken = errors.New("audit: hash chain broken")

type Entry struct {
	TS    int64  `json:"ts"`
	Vault string `json:"vault"`
	Op    string `json:"op"`
	Hash  string `json:"hash"`
}

// Log appends entries to a JSON-lines file, one object per line.
type Log struct {
	mu       sync.Mutex
	path     string
	lastHash []byte
}

// Open loads the log at path, verifying the chain end to end. A missing file
// starts an empty log.
func Open(path string) (*Log, error) {
	l := &Log{path: path}
	entries, err := readAll(path)
	if err != nil {
		return nil, err
	}
	var prev []byte
	for i, e := range entries {
		sum := chainHash(prev, e.Vault, e.Op, e.TS)
		if hex.EncodeToString(sum) != e.Hash {
			return nil, fmt.Errorf("%w: entry %d", ErrChainBroken, i)
		}
		prev = sum
	}
	l.lastHash = prev
	return l, nil
}

// Append records one operation and flushes it to disk.
func (l *Log) Append(vaultName, op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{TS: time.Now().Unix(), Vault: vaultName, Op: op}
	sum := chainHash(l.lastHash, e.Vault, e.Op, e.TS)
	e.Hash = hex.EncodeToString(sum)

	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	l.lastHash = sum
	return nil
}

// Entries re-reads the file and returns all entries in order.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return readAll(l.path)
}

func readAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrChainBroken, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

func chainHash(prev []byte, vaultName, op string, ts int64) []byte {
	h := blake3.New(32, nil)
	h.Write(prev)
	fmt.Fprintf(h, "%s\x00%s\x00%d", vaultName, op, ts)
	return h.Sum(nil)
}
