//go:build darwin

package focus

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// probeTimeout bounds one osascript round trip; shorter than the poll
// interval would be ideal but AppleScript cannot be hurried.
const probeTimeout = 2 * time.Second

// darwinProber asks iTerm2 for its current session when iTerm2 is the
// frontmost application. Two candidate keys come back for the same window:
// the session's unique id and its tty, so the registry matches whichever
// form the session announced.
type darwinProber struct{}

// NewProber returns the macOS prober.
func NewProber() Prober {
	return darwinProber{}
}

const frontmostScript = `tell application "System Events" to set frontApp to name of first process whose frontmost is true
if frontApp is not "iTerm2" then return ""
tell application "iTerm2"
	set s to current session of current window
	return (unique ID of s as text) & "|" & (tty of s as text)
end tell`

func (darwinProber) FrontmostTerminal(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "osascript", "-e", frontmostScript).Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("frontmost probe timed out")
		}
		return nil, fmt.Errorf("frontmost probe: %w", err)
	}

	reply := strings.TrimSpace(string(out))
	if reply == "" {
		return nil, nil // frontmost app is not a terminal
	}
	id, tty, found := strings.Cut(reply, "|")
	if !found {
		return nil, fmt.Errorf("unexpected probe reply %q", reply)
	}

	var candidates []string
	if id != "" {
		candidates = append(candidates, "ITERM:"+id)
	}
	if tty != "" {
		candidates = append(candidates, "TTY:"+tty)
	}
	return candidates, nil
}
