//go:build windows

package focus

import (
	"context"
	"fmt"
	"strconv"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
)

// windowsProber reads the foreground window's owning pid. Terminal keys on
// Windows encode the console host pid in several schemes, so one pid yields
// three candidates.
type windowsProber struct{}

// NewProber returns the Win32 prober.
func NewProber() Prober {
	return windowsProber{}
}

func (windowsProber) FrontmostTerminal(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return nil, nil // no foreground window (lock screen, transition)
	}
	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	if pid == 0 {
		return nil, fmt.Errorf("foreground window has no owning process")
	}

	p := strconv.Itoa(int(pid))
	return []string{"CONPTY:" + p, "WINTERM:" + p, "PID:" + p}, nil
}
