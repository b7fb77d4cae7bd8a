//go:build !linux

package platform

import "errors"

var errUnsupported = errors.New("platform: hardening not supported on this OS")

func DisableCoreDumps() error { return errUnsupported }

func LockAllMemory() error { return errUnsupported }

func RejectPreloadHooks() error { return nil }

func RequireWaylandSession() error { return nil }

// Preflight is a no-op off Linux; the secmem fallback still mlocks the key
// region itself.
func Preflight() error { return nil }
