// Package termkey parses the platform-specific keys that identify the
// OS-level terminal window hosting a session: ITERM:<id>, TTY:<dev>,
// PID:<pid>, CONPTY:<pid>, WINTERM:<pid>, optionally prefixed DISCOVERED:
// when a startup scan found the session rather than the session announcing
// itself.
package termkey

import (
	"strconv"
	"strings"
)

const discoveredPrefix = "DISCOVERED:"

// Strip removes the DISCOVERED: prefix when present.
func Strip(key string) string {
	return strings.TrimPrefix(key, discoveredPrefix)
}

// Discovered reports whether the key was produced by a startup scan.
func Discovered(key string) bool {
	return strings.HasPrefix(key, discoveredPrefix)
}

// Kind returns the scheme portion of the key ("ITERM", "TTY", "PID", ...),
// ignoring any DISCOVERED: prefix. Empty for keys without a scheme.
func Kind(key string) string {
	key = Strip(key)
	i := strings.IndexByte(key, ':')
	if i <= 0 {
		return ""
	}
	return key[:i]
}

// PID extracts a process id from keys that encode one: PID:<n>, CONPTY:<n>,
// WINTERM:<n>, or any variant whose trailing segment is numeric. Returns
// false when the key encodes no pid.
func PID(key string) (int, bool) {
	key = Strip(key)
	i := strings.LastIndexByte(key, ':')
	if i < 0 || i == len(key)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(key[i+1:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Equal reports whether two keys identify the same window, ignoring
// DISCOVERED: prefixes.
func Equal(a, b string) bool {
	return Strip(a) != "" && Strip(a) == Strip(b)
}
