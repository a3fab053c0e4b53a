//go:build linux

package focus

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const probeTimeout = 2 * time.Second

// linuxProber reads the active X11 window's owning pid via xdotool. Sessions
// on Linux carry PID-format keys, and the session's own pid is a descendant
// of the window owner's, so candidates include the window pid itself; the
// registry match is exact, which means sessions must have announced the
// terminal emulator's pid (the hook script walks up to it at session start).
type linuxProber struct{}

// NewProber returns the X11 prober.
func NewProber() Prober {
	return linuxProber{}
}

func (linuxProber) FrontmostTerminal(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowpid").Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("frontmost probe timed out")
		}
		return nil, fmt.Errorf("xdotool getactivewindow: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || pid <= 0 {
		return nil, fmt.Errorf("unexpected xdotool reply %q", strings.TrimSpace(string(out)))
	}
	return []string{"PID:" + strconv.Itoa(pid)}, nil
}
