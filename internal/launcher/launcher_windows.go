//go:build windows

package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type windowsLauncher struct{}

func newPlatformLauncher() Launcher { return windowsLauncher{} }

// Launch prefers Windows Terminal, falling back to a conhost-hosted
// PowerShell window. Bounds are ignored at launch; the caller repositions
// through the window adapter once the window exists.
func (windowsLauncher) Launch(ctx context.Context, opts Options) (string, error) {
	if err := validate(opts); err != nil {
		return "", err
	}

	session := sessionArgs(opts)

	if strings.EqualFold(opts.PreferredTerminal, "powershell") {
		return launchPowerShell(ctx, opts, session)
	}
	if wt, err := exec.LookPath("wt.exe"); err == nil {
		args := append([]string{"-d", opts.CWD}, session...)
		cmd := exec.CommandContext(ctx, wt, args...)
		if err := cmd.Start(); err != nil {
			return "", fmt.Errorf("start wt.exe: %w", err)
		}
		go cmd.Wait()
		return "wt", nil
	}
	return launchPowerShell(ctx, opts, session)
}

func launchPowerShell(ctx context.Context, opts Options, session []string) (string, error) {
	inner := strings.Join(session, " ")
	cmd := exec.CommandContext(ctx, "powershell.exe",
		"-NoExit", "-Command",
		fmt.Sprintf("Set-Location -LiteralPath '%s'; %s", strings.ReplaceAll(opts.CWD, "'", "''"), inner))
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start powershell: %w", err)
	}
	go cmd.Wait()
	return "powershell", nil
}
