//go:build linux

package secmem

import (
	"golang.org/x/sys/unix"
)

// secretRegion is backed by memfd_secret(2): the pages are invisible to the
// kernel's direct map, so they cannot appear in swap, core dumps, or another
// process's view of memory. Each view is a fresh mapping torn down on return.
type secretRegion struct {
	fd       int
	capacity int
}

// newRegion prefers the kernel secret-memory facility and falls back to an
// mlocked anonymous mapping when the kernel does not offer it
// (CONFIG_SECRETMEM off, secretmem.enable=0, or pre-5.14 kernels).
func newRegion(capacity int) (region, error) {
	fd, err := unix.MemfdSecret(0)
	if err != nil {
		return newAnonRegion(capacity)
	}
	if err := unix.Ftruncate(fd, int64(capacity)); err != nil {
		_ = unix.Close(fd)
		return newAnonRegion(capacity)
	}
	return &secretRegion{fd: fd, capacity: capacity}, nil
}

func (r *secretRegion) view() ([]byte, func(), error) {
	p, err := unix.Mmap(r.fd, 0, r.capacity, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return p, func() { _ = unix.Munmap(p) }, nil
}

func (r *secretRegion) release() {
	_ = unix.Close(r.fd)
	r.fd = -1
}

func excludeFromDumps(p []byte) {
	_ = unix.Madvise(p, unix.MADV_DONTDUMP)
}
