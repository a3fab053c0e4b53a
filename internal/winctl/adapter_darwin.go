//go:build darwin

package winctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jacques-sh/jacques/internal/termkey"
)

// darwinAdapter drives iTerm2 and Terminal.app through osascript. AppleScript
// handles geometry and activation; display enumeration goes through JXA so
// the result comes back as JSON.
type darwinAdapter struct {
	cache displayCache
}

func (a *darwinAdapter) InvalidateDisplays() {
	a.cache.invalidate()
}

func newPlatformAdapter() Adapter {
	return &darwinAdapter{}
}

// runOSA executes one AppleScript expression under the call timeout.
func runOSA(ctx context.Context, script string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "osascript", "-e", script).Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: osascript", ErrTimeout)
		}
		return "", fmt.Errorf("osascript: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// runJXA executes a JavaScript-for-Automation program under the call timeout.
func runJXA(ctx context.Context, script string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "osascript", "-l", "JavaScript", "-e", script).Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: osascript", ErrTimeout)
		}
		return "", fmt.Errorf("osascript -l JavaScript: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// displaysJXA reports every screen with AppKit's bottom-left-origin frames
// flipped into top-left-origin coordinates relative to the primary screen.
const displaysJXA = `
ObjC.import('AppKit');
var screens = $.NSScreen.screens;
var primary = screens.objectAtIndex(0).frame;
var out = [];
for (var i = 0; i < screens.count; i++) {
  var s = screens.objectAtIndex(i);
  var f = s.frame, v = s.visibleFrame;
  out.push({
    id: String(i),
    primary: i === 0,
    x: f.origin.x, y: primary.size.height - (f.origin.y + f.size.height),
    w: f.size.width, h: f.size.height,
    wax: v.origin.x, way: primary.size.height - (v.origin.y + v.size.height),
    waw: v.size.width, wah: v.size.height
  });
}
JSON.stringify(out);`

func (a *darwinAdapter) EnumerateDisplays(ctx context.Context) ([]Display, error) {
	return a.cache.get(func() ([]Display, error) {
		raw, err := runJXA(ctx, displaysJXA)
		if err != nil {
			return nil, err
		}
		var rows []struct {
			ID      string  `json:"id"`
			Primary bool    `json:"primary"`
			X       float64 `json:"x"`
			Y       float64 `json:"y"`
			W       float64 `json:"w"`
			H       float64 `json:"h"`
			WAX     float64 `json:"wax"`
			WAY     float64 `json:"way"`
			WAW     float64 `json:"waw"`
			WAH     float64 `json:"wah"`
		}
		if err := json.Unmarshal([]byte(raw), &rows); err != nil {
			return nil, fmt.Errorf("parse display json: %w", err)
		}
		displays := make([]Display, 0, len(rows))
		for _, r := range rows {
			displays = append(displays, Display{
				ID:        r.ID,
				IsPrimary: r.Primary,
				Bounds:    rectFromFloats(r.X, r.Y, r.W, r.H),
				WorkArea:  rectFromFloats(r.WAX, r.WAY, r.WAW, r.WAH),
			})
		}
		if len(displays) == 0 {
			return nil, errors.New("no displays reported")
		}
		return displays, nil
	})
}

func rectFromFloats(x, y, w, h float64) (r rect) {
	r.X, r.Y, r.W, r.H = int(x), int(y), int(w), int(h)
	return r
}

// findITermWindowID locates the iTerm2 window hosting a terminal key. ITERM
// keys carry the session's unique id; TTY keys carry the pty device. Both
// are matched by walking every window's sessions.
func findITermWindowID(ctx context.Context, key string) (int, error) {
	key = termkey.Strip(key)
	var property, needle string
	switch termkey.Kind(key) {
	case "ITERM":
		property = "unique ID"
		needle = strings.TrimPrefix(key, "ITERM:")
	case "TTY":
		property = "tty"
		needle = strings.TrimPrefix(key, "TTY:")
	default:
		return 0, fmt.Errorf("%w: unsupported key %q on macOS", ErrNoWindow, key)
	}

	script := fmt.Sprintf(`tell application "iTerm2"
	repeat with w in windows
		repeat with t in tabs of w
			repeat with s in sessions of t
				if (%s of s as text) is equal to %q then return id of w
			end repeat
		end repeat
	end repeat
end tell
return ""`, property, needle)

	out, err := runOSA(ctx, script)
	if err != nil {
		return 0, err
	}
	if out == "" {
		return 0, fmt.Errorf("%w: no iTerm window for %q", ErrNoWindow, key)
	}
	id, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parse iTerm window id %q: %w", out, err)
	}
	return id, nil
}

func (a *darwinAdapter) PositionWindow(ctx context.Context, terminalKey string, r rect) error {
	id, err := findITermWindowID(ctx, terminalKey)
	if err != nil {
		return err
	}
	// AppleScript bounds are {left, top, right, bottom}.
	script := fmt.Sprintf(
		`tell application "iTerm2" to set the bounds of window id %d to {%d, %d, %d, %d}`,
		id, r.X, r.Y, r.Right(), r.Bottom())
	if _, err := runOSA(ctx, script); err != nil {
		return fmt.Errorf("set bounds: %w", err)
	}
	return nil
}

func (a *darwinAdapter) GetWindowBounds(ctx context.Context, terminalKey string) (rect, error) {
	id, err := findITermWindowID(ctx, terminalKey)
	if err != nil {
		return rect{}, err
	}
	out, err := runOSA(ctx, fmt.Sprintf(
		`tell application "iTerm2" to get the bounds of window id %d`, id))
	if err != nil {
		return rect{}, err
	}
	return parseBoundsList(out)
}

// parseBoundsList decodes AppleScript's "left, top, right, bottom" reply.
func parseBoundsList(s string) (rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return rect{}, fmt.Errorf("unexpected bounds reply %q", s)
	}
	nums := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return rect{}, fmt.Errorf("unexpected bounds reply %q: %w", s, err)
		}
		nums[i] = n
	}
	return rect{X: nums[0], Y: nums[1], W: nums[2] - nums[0], H: nums[3] - nums[1]}, nil
}

func (a *darwinAdapter) Activate(ctx context.Context, terminalKey string) error {
	id, err := findITermWindowID(ctx, terminalKey)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(`tell application "iTerm2"
	activate
	select window id %d
end tell`, id)
	if _, err := runOSA(ctx, script); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	return nil
}

// PositionBrowserWindow places the frontmost window of the default-ish
// browser: Chrome when it is running, Safari otherwise.
func (a *darwinAdapter) PositionBrowserWindow(ctx context.Context, r rect) error {
	script := fmt.Sprintf(`set target to "Safari"
if application "Google Chrome" is running then set target to "Google Chrome"
tell application target
	activate
	set the bounds of the front window to {%d, %d, %d, %d}
end tell`, r.X, r.Y, r.Right(), r.Bottom())
	if _, err := runOSA(ctx, script); err != nil {
		return fmt.Errorf("position browser: %w", err)
	}
	return nil
}
