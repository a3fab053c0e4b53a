//go:build linux

package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

type linuxLauncher struct{}

func newPlatformLauncher() Launcher { return linuxLauncher{} }

// Launch tries $TERMINAL first, then the Debian alternative, then common
// emulators. Bounds are ignored at launch; the caller repositions through
// the window adapter once the window exists.
func (linuxLauncher) Launch(ctx context.Context, opts Options) (string, error) {
	if err := validate(opts); err != nil {
		return "", err
	}

	var candidates []string
	if opts.PreferredTerminal != "" {
		candidates = append(candidates, opts.PreferredTerminal)
	}
	if term := os.Getenv("TERMINAL"); term != "" {
		candidates = append(candidates, term)
	}
	candidates = append(candidates, "x-terminal-emulator", "gnome-terminal", "xterm")

	var lastErr error
	for _, term := range candidates {
		path, err := exec.LookPath(term)
		if err != nil {
			continue
		}
		if err := startEmulator(ctx, path, opts); err != nil {
			lastErr = err
			continue
		}
		return filepath.Base(term), nil
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", errors.New("no terminal emulator found")
}

func startEmulator(ctx context.Context, path string, opts Options) error {
	args := emulatorArgs(filepath.Base(path), opts)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = opts.CWD
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", filepath.Base(path), err)
	}
	// The emulator owns its own lifetime; reap it in the background so it
	// never turns into a zombie.
	go cmd.Wait()
	return nil
}

// emulatorArgs maps the session command onto each emulator's run-command
// convention. gnome-terminal dropped -e in favour of `--`.
func emulatorArgs(name string, opts Options) []string {
	session := sessionArgs(opts)
	switch name {
	case "gnome-terminal":
		return append([]string{fmt.Sprintf("--working-directory=%s", opts.CWD), "--"}, session...)
	default:
		return append([]string{"-e"}, session...)
	}
}
