// Package secmem provides fixed-capacity buffers for key material that are
// kept out of swap and core dumps and are explicitly zeroed on release.
package secmem

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

var (
	// ErrUnsupported means no suitable backing memory could be acquired on
	// this platform. This is a fatal configuration error, not a retryable one.
	ErrUnsupported = errors.New("secmem: secure memory unavailable")
	ErrOutOfBounds = errors.New("secmem: write out of bounds")
	ErrDestroyed   = errors.New("secmem: buffer destroyed")
)

// region is the OS-specific backing of a Buffer. A view maps the full
// capacity; the returned teardown func invalidates the mapping.
type region interface {
	view() (p []byte, done func(), err error)
	release()
}

// Buffer is an opaque handle over a protected memory region. Content is only
// mutated through Write, WithWrite or Zero, and the full capacity is wiped
// when the buffer is destroyed.
type Buffer struct {
	mu        sync.Mutex
	reg       region
	capacity  int
	length    int
	destroyed bool
}

// Allocate acquires a protected region of the given capacity.
func Allocate(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrUnsupported)
	}
	reg, err := newRegion(capacity)
	if err != nil {
		return nil, err
	}
	return &Buffer{reg: reg, capacity: capacity}, nil
}

func (b *Buffer) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Write copies p into the region at offset and extends the logical length.
func (b *Buffer) Write(offset int, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	end := offset + len(p)
	if offset < 0 || end > b.capacity {
		return ErrOutOfBounds
	}
	v, done, err := b.reg.view()
	if err != nil {
		return err
	}
	defer done()
	copy(v[offset:end], p)
	if end > b.length {
		b.length = end
	}
	return nil
}

// WithRead runs fn over the logical content. The slice is only valid for the
// duration of the call; fn must not retain it.
func (b *Buffer) WithRead(fn func(p []byte) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	v, done, err := b.reg.view()
	if err != nil {
		return err
	}
	defer done()
	return fn(v[:b.length])
}

// WithWrite runs fn over the full capacity. fn returns the number of bytes it
// considers live, which becomes the new logical length.
func (b *Buffer) WithWrite(fn func(p []byte) (int, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	v, done, err := b.reg.view()
	if err != nil {
		return err
	}
	defer done()
	n, err := fn(v)
	if err != nil {
		return err
	}
	if n < 0 || n > b.capacity {
		return ErrOutOfBounds
	}
	b.length = n
	return nil
}

// Zero overwrites the full capacity, not just the logical length, and resets
// the length to 0.
func (b *Buffer) Zero() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	return b.zeroLocked()
}

func (b *Buffer) zeroLocked() error {
	v, done, err := b.reg.view()
	if err != nil {
		return err
	}
	defer done()
	wipe(v)
	b.length = 0
	return nil
}

// Destroy zeroes the region and releases it. Safe to call more than once.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	_ = b.zeroLocked()
	b.reg.release()
	b.destroyed = true
}

// wipe overwrites p with zeros. KeepAlive stops the store loop from being
// treated as dead by the compiler.
func wipe(p []byte) {
	for i := range p {
		p[i] = 0
	}
	runtime.KeepAlive(p)
}
