// Package launcher opens new terminal windows running an AI-coding session.
// Each platform picks from its usual terminal emulators and reports which
// one it used, so tiling results can name the launch method.
package launcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jacques-sh/jacques/internal/layout"
)

// sessionCommand is the program launched inside the new terminal.
const sessionCommand = "claude"

const launchTimeout = 15 * time.Second

// Options configure one launch.
type Options struct {
	// CWD is the working directory for the new session. Required.
	CWD string
	// Bounds, when non-nil, is the target window geometry. Best effort:
	// emulators that cannot be positioned at launch ignore it and the
	// caller repositions afterwards.
	Bounds *layout.Rect
	// PreferredTerminal names an emulator to try first, overriding the
	// platform default order.
	PreferredTerminal string
	// SkipPermissions passes the permission bypass flag to the session
	// command.
	SkipPermissions bool
}

// Launcher starts a terminal window running a session. Method identifies
// the emulator actually used.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (method string, err error)
}

// New returns the launcher for the current platform.
func New() Launcher { return newPlatformLauncher() }

// sessionArgs builds the in-terminal command line.
func sessionArgs(opts Options) []string {
	args := []string{sessionCommand}
	if opts.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	return args
}

func sessionShellLine(opts Options) string {
	return strings.Join(sessionArgs(opts), " ")
}

func validate(opts Options) error {
	if opts.CWD == "" {
		return fmt.Errorf("launch: cwd is required")
	}
	return nil
}
