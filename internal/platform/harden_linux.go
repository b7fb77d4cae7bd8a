//go:build linux

// Package platform gates process startup. These checks run before any secret
// exists; they never touch the data path, but the storage engine assumes the
// process is neither dumpable nor swappable by the time a vault is unlocked.
package platform

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DisableCoreDumps clamps RLIMIT_CORE to zero and marks the process not
// dumpable, which also blocks ptrace attachment from non-privileged peers.
func DisableCoreDumps() error {
	rlim := unix.Rlimit{Cur: 0, Max: 0}
	if err := unix.Setrlimit(unix.RLIMIT_CORE, &rlim); err != nil {
		return err
	}
	return unix.Prctl(unix.PR_SET_DUMPABLE, 0, 0, 0, 0)
}

// LockAllMemory pins current and future pages so nothing the process touches
// can be written to swap. Needs CAP_IPC_LOCK or a generous RLIMIT_MEMLOCK.
func LockAllMemory() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}

// RejectPreloadHooks refuses to run under LD_PRELOAD-style interposition.
func RejectPreloadHooks() error {
	for _, v := range []string{"LD_PRELOAD", "LD_AUDIT"} {
		if os.Getenv(v) != "" {
			return fmt.Errorf("platform: %s is set", v)
		}
	}
	return nil
}

// RequireWaylandSession rejects X11 sessions, where any client can read any
// window's keystrokes.
func RequireWaylandSession() error {
	if os.Getenv("XDG_SESSION_TYPE") != "wayland" {
		return fmt.Errorf("platform: XDG_SESSION_TYPE must be wayland")
	}
	return nil
}

// Preflight runs the startup gates that have no user-facing tradeoff. The
// display-session check is separate; headless callers skip it.
func Preflight() error {
	if err := RejectPreloadHooks(); err != nil {
		return err
	}
	if err := DisableCoreDumps(); err != nil {
		return fmt.Errorf("platform: disable core dumps: %w", err)
	}
	if err := LockAllMemory(); err != nil {
		return fmt.Errorf("platform: lock memory: %w", err)
	}
	return nil
}
