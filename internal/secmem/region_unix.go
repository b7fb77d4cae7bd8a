//go:build linux || darwin

package secmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// anonRegion is an anonymous, mlocked mapping. It is the portable fallback
// when no kernel secret-memory facility is available: never swapped (mlock),
// excluded from dumps where the platform allows it, zeroed before unmap.
type anonRegion struct {
	buf []byte
}

func newAnonRegion(capacity int) (region, error) {
	buf, err := unix.Mmap(-1, 0, capacity, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", ErrUnsupported, err)
	}
	if err := unix.Mlock(buf); err != nil {
		_ = unix.Munmap(buf)
		return nil, fmt.Errorf("%w: mlock: %v", ErrUnsupported, err)
	}
	excludeFromDumps(buf)
	return &anonRegion{buf: buf}, nil
}

func (r *anonRegion) view() ([]byte, func(), error) {
	// The mapping is held for the region's lifetime.
	return r.buf, func() {}, nil
}

func (r *anonRegion) release() {
	_ = unix.Munlock(r.buf)
	_ = unix.Munmap(r.buf)
	r.buf = nil
}
