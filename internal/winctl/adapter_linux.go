//go:build linux

package winctl

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// linuxAdapter drives X11 window managers through xdotool and xprop. It
// resolves PID-bearing terminal keys by walking the parent chain until an
// ancestor owns an X window, because terminal emulators host the shell as a
// child process. Wayland-only environments fail with ErrNoWindow on every
// call; there is no portable Wayland window-control protocol.
type linuxAdapter struct {
	cache displayCache
}

func (a *linuxAdapter) InvalidateDisplays() {
	a.cache.invalidate()
}

func newPlatformAdapter() Adapter {
	return &linuxAdapter{}
}

func runTool(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrTimeout, name)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s not installed", ErrUnsupported, name)
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// xWindowForPID returns the X window id of the first visible window owned by
// pid, or 0 when pid owns none.
func xWindowForPID(ctx context.Context, pid int) int {
	out, err := runTool(ctx, "xdotool", "search", "--onlyvisible", "--pid", strconv.Itoa(pid))
	if err != nil || out == "" {
		return 0
	}
	// Multiple ids come back newline-separated; the first is the oldest.
	first := strings.Fields(out)[0]
	id, err := strconv.Atoi(first)
	if err != nil {
		return 0
	}
	return id
}

// windowForKey resolves a terminal key to an X window id via the
// parent-process walk.
func (a *linuxAdapter) windowForKey(ctx context.Context, terminalKey string) (int, error) {
	ownerPid, err := ownerPID(terminalKey, func(pid int) bool {
		return xWindowForPID(ctx, pid) != 0
	})
	if err != nil {
		return 0, err
	}
	return xWindowForPID(ctx, ownerPid), nil
}

func (a *linuxAdapter) EnumerateDisplays(ctx context.Context) ([]Display, error) {
	return a.cache.get(func() ([]Display, error) {
		geom, err := runTool(ctx, "xdotool", "getdisplaygeometry")
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(geom)
		if len(fields) != 2 {
			return nil, fmt.Errorf("unexpected display geometry %q", geom)
		}
		w, err1 := strconv.Atoi(fields[0])
		h, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("unexpected display geometry %q", geom)
		}

		d := Display{
			ID:        "0",
			IsPrimary: true,
			Bounds:    rect{W: w, H: h},
			WorkArea:  rect{W: w, H: h},
		}
		if wa, ok := a.netWorkArea(ctx); ok {
			d.WorkArea = wa
		}
		return []Display{d}, nil
	})
}

// netWorkArea reads _NET_WORKAREA from the root window: the screen minus
// panels, as maintained by EWMH-compliant window managers.
func (a *linuxAdapter) netWorkArea(ctx context.Context) (rect, bool) {
	out, err := runTool(ctx, "xprop", "-root", "_NET_WORKAREA")
	if err != nil {
		return rect{}, false
	}
	// _NET_WORKAREA(CARDINAL) = x, y, w, h, x, y, w, h, ... (one quad per
	// desktop); the first quad is the current arrangement.
	_, values, found := strings.Cut(out, "=")
	if !found {
		return rect{}, false
	}
	parts := strings.Split(values, ",")
	if len(parts) < 4 {
		return rect{}, false
	}
	nums := make([]int, 4)
	for i := 0; i < 4; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return rect{}, false
		}
		nums[i] = n
	}
	return rect{X: nums[0], Y: nums[1], W: nums[2], H: nums[3]}, true
}

func (a *linuxAdapter) PositionWindow(ctx context.Context, terminalKey string, r rect) error {
	id, err := a.windowForKey(ctx, terminalKey)
	if err != nil {
		return err
	}
	win := strconv.Itoa(id)
	if _, err := runTool(ctx, "xdotool", "windowmove", win, strconv.Itoa(r.X), strconv.Itoa(r.Y)); err != nil {
		return fmt.Errorf("windowmove: %w", err)
	}
	if _, err := runTool(ctx, "xdotool", "windowsize", win, strconv.Itoa(r.W), strconv.Itoa(r.H)); err != nil {
		return fmt.Errorf("windowsize: %w", err)
	}
	return nil
}

func (a *linuxAdapter) GetWindowBounds(ctx context.Context, terminalKey string) (rect, error) {
	id, err := a.windowForKey(ctx, terminalKey)
	if err != nil {
		return rect{}, err
	}
	out, err := runTool(ctx, "xdotool", "getwindowgeometry", "--shell", strconv.Itoa(id))
	if err != nil {
		return rect{}, err
	}
	// --shell output: one KEY=value per line (X, Y, WIDTH, HEIGHT, ...).
	vals := map[string]int{}
	for _, line := range strings.Split(out, "\n") {
		k, v, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			vals[k] = n
		}
	}
	r := rect{X: vals["X"], Y: vals["Y"], W: vals["WIDTH"], H: vals["HEIGHT"]}
	if r.Empty() {
		return rect{}, fmt.Errorf("unexpected geometry reply %q", out)
	}
	return r, nil
}

func (a *linuxAdapter) Activate(ctx context.Context, terminalKey string) error {
	id, err := a.windowForKey(ctx, terminalKey)
	if err != nil {
		return err
	}
	if _, err := runTool(ctx, "xdotool", "windowactivate", strconv.Itoa(id)); err != nil {
		return fmt.Errorf("windowactivate: %w", err)
	}
	return nil
}
