package crypto

import "runtime"

// Zero overwrites a byte slice in memory with zeros.
// KeepAlive prevents the loop from being eliminated as a dead store.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
