package winctl

import (
	"fmt"

	"github.com/jacques-sh/jacques/internal/proc"
	"github.com/jacques-sh/jacques/internal/termkey"
)

// ancestorDepth caps the parent-process walk. Console sessions are usually
// shell → terminal host within two or three hops; six leaves headroom for
// wrappers like tmux or script(1).
const ancestorDepth = 6

// resolveOwnerPID turns a PID-bearing terminal key into the pid of the
// process that owns the visible window hosting it. Console apps frequently
// do not own their window, so the walk climbs the parent chain looking for
// the first ancestor that does. ancestors and owns are injectable for
// tests; production callers pass proc.Ancestors and a platform probe.
func resolveOwnerPID(key string, ancestors func(pid, depth int) []int, owns func(pid int) bool) (int, error) {
	pid, ok := termkey.PID(key)
	if !ok {
		return 0, fmt.Errorf("%w: key %q encodes no pid", ErrNoWindow, key)
	}
	for _, p := range ancestors(pid, ancestorDepth) {
		if owns(p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: no window-owning ancestor of pid %d", ErrNoWindow, pid)
}

// ownerPID is resolveOwnerPID wired to the real process table.
func ownerPID(key string, owns func(pid int) bool) (int, error) {
	return resolveOwnerPID(key, proc.Ancestors, owns)
}
