//go:build darwin

package secmem

func newRegion(capacity int) (region, error) {
	return newAnonRegion(capacity)
}

// Darwin has no MADV_DONTDUMP; the preflight rlimit on core files is the only
// dump protection available.
func excludeFromDumps(p []byte) {}
