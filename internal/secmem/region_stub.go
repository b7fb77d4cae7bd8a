//go:build !linux && !darwin

package secmem

func newRegion(capacity int) (region, error) {
	return nil, ErrUnsupported
}
