//go:build darwin

package launcher

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

type darwinLauncher struct{}

func newPlatformLauncher() Launcher { return darwinLauncher{} }

func runOSA(ctx context.Context, script string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "osascript", "-e", script).Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("osascript timed out after %s", launchTimeout)
		}
		return "", fmt.Errorf("osascript: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Launch opens iTerm2 when it is running (or preferred), Terminal.app
// otherwise. Bounds are applied to the new window in the same script so
// there is no flash at the default position.
func (darwinLauncher) Launch(ctx context.Context, opts Options) (string, error) {
	if err := validate(opts); err != nil {
		return "", err
	}

	useITerm := false
	switch strings.ToLower(opts.PreferredTerminal) {
	case "iterm", "iterm2":
		useITerm = true
	case "terminal":
	default:
		running, err := runOSA(ctx, `application "iTerm2" is running`)
		if err == nil && running == "true" {
			useITerm = true
		}
	}

	cmdLine := fmt.Sprintf("cd %s && %s", quoteShell(opts.CWD), sessionShellLine(opts))
	if useITerm {
		if err := launchITerm(ctx, cmdLine, opts); err != nil {
			return "", err
		}
		return "iterm", nil
	}
	if err := launchTerminalApp(ctx, cmdLine, opts); err != nil {
		return "", err
	}
	return "terminal", nil
}

func launchITerm(ctx context.Context, cmdLine string, opts Options) error {
	var b strings.Builder
	fmt.Fprintf(&b, `tell application "iTerm2"
	activate
	set w to (create window with default profile)
	tell current session of w to write text %q
`, cmdLine)
	if r := opts.Bounds; r != nil {
		fmt.Fprintf(&b, "\tset the bounds of w to {%d, %d, %d, %d}\n", r.X, r.Y, r.Right(), r.Bottom())
	}
	b.WriteString("end tell")
	_, err := runOSA(ctx, b.String())
	return err
}

func launchTerminalApp(ctx context.Context, cmdLine string, opts Options) error {
	var b strings.Builder
	fmt.Fprintf(&b, `tell application "Terminal"
	activate
	set t to do script %q
`, cmdLine)
	if r := opts.Bounds; r != nil {
		fmt.Fprintf(&b, "\tset the bounds of the front window to {%d, %d, %d, %d}\n", r.X, r.Y, r.Right(), r.Bottom())
	}
	b.WriteString("end tell")
	if _, err := runOSA(ctx, b.String()); err != nil {
		return err
	}
	// Terminal.app creates the window asynchronously; give it a beat
	// before the caller repositions.
	time.Sleep(100 * time.Millisecond)
	return nil
}

func quoteShell(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
