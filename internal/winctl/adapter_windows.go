//go:build windows

package winctl

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsAdapter drives user32 directly. Console sessions under conhost or
// Windows Terminal never own their top-level window, so every key resolution
// goes through the parent-chain walk looking for the first ancestor with a
// visible, titled top-level window.
type windowsAdapter struct {
	cache displayCache
}

func (a *windowsAdapter) InvalidateDisplays() {
	a.cache.invalidate()
}

func newPlatformAdapter() Adapter {
	return &windowsAdapter{}
}

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procEnumWindows              = user32.NewProc("EnumWindows")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procGetWindowTextLengthW     = user32.NewProc("GetWindowTextLengthW")
	procGetWindowRect            = user32.NewProc("GetWindowRect")
	procSetWindowPos             = user32.NewProc("SetWindowPos")
	procSetForegroundWindow      = user32.NewProc("SetForegroundWindow")
	procShowWindow               = user32.NewProc("ShowWindow")
	procEnumDisplayMonitors      = user32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfoW          = user32.NewProc("GetMonitorInfoW")
)

const (
	swpNoZOrder   = 0x0004
	swpNoActivate = 0x0010
	swRestore     = 9

	monitorinfofPrimary = 0x0001
)

// winRect mirrors the Win32 RECT struct (left, top, right, bottom).
type winRect struct {
	Left, Top, Right, Bottom int32
}

func (r winRect) toRect() rect {
	return rect{X: int(r.Left), Y: int(r.Top), W: int(r.Right - r.Left), H: int(r.Bottom - r.Top)}
}

// monitorInfoEx mirrors MONITORINFOEXW. The field layout must match the
// Win32 binary layout exactly.
type monitorInfoEx struct {
	cbSize    uint32
	rcMonitor winRect
	rcWork    winRect
	dwFlags   uint32
	szDevice  [32]uint16
}

// hasVisibleTitledWindow reports whether pid owns at least one visible
// top-level window with a non-empty title.
func hasVisibleTitledWindow(pid int) bool {
	return topWindowForPID(pid) != 0
}

// topWindowForPID returns the handle of pid's first visible titled top-level
// window, or 0.
func topWindowForPID(pid int) windows.HWND {
	var found windows.HWND
	cb := windows.NewCallback(func(hwnd windows.HWND, _ uintptr) uintptr {
		var windowPid uint32
		procGetWindowThreadProcessId.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&windowPid)))
		if int(windowPid) != pid {
			return 1 // keep enumerating
		}
		if visible, _, _ := procIsWindowVisible.Call(uintptr(hwnd)); visible == 0 {
			return 1
		}
		if length, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd)); length == 0 {
			return 1
		}
		found = hwnd
		return 0 // stop
	})
	procEnumWindows.Call(cb, 0)
	return found
}

// windowForKey resolves a terminal key (PID:, CONPTY:, WINTERM:) to the
// handle of the hosting window.
func (a *windowsAdapter) windowForKey(terminalKey string) (windows.HWND, error) {
	ownerPid, err := ownerPID(terminalKey, hasVisibleTitledWindow)
	if err != nil {
		return 0, err
	}
	hwnd := topWindowForPID(ownerPid)
	if hwnd == 0 {
		return 0, fmt.Errorf("%w: pid %d lost its window", ErrNoWindow, ownerPid)
	}
	return hwnd, nil
}

func (a *windowsAdapter) EnumerateDisplays(ctx context.Context) ([]Display, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.cache.get(func() ([]Display, error) {
		var displays []Display
		cb := windows.NewCallback(func(hMonitor windows.Handle, _ windows.Handle, _ *winRect, _ uintptr) uintptr {
			var info monitorInfoEx
			info.cbSize = uint32(unsafe.Sizeof(info))
			if ok, _, _ := procGetMonitorInfoW.Call(uintptr(hMonitor), uintptr(unsafe.Pointer(&info))); ok != 0 {
				displays = append(displays, Display{
					ID:        windows.UTF16ToString(info.szDevice[:]),
					Bounds:    info.rcMonitor.toRect(),
					WorkArea:  info.rcWork.toRect(),
					IsPrimary: info.dwFlags&monitorinfofPrimary != 0,
				})
			}
			return 1
		})
		procEnumDisplayMonitors.Call(0, 0, cb, 0)
		if len(displays) == 0 {
			return nil, fmt.Errorf("EnumDisplayMonitors reported no monitors")
		}
		// Primary first so callers that take displays[0] get the right one.
		for i, d := range displays {
			if d.IsPrimary && i != 0 {
				displays[0], displays[i] = displays[i], displays[0]
				break
			}
		}
		return displays, nil
	})
}

func (a *windowsAdapter) PositionWindow(ctx context.Context, terminalKey string, r rect) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hwnd, err := a.windowForKey(terminalKey)
	if err != nil {
		return err
	}
	// Restore first: SetWindowPos on a maximized window silently keeps the
	// maximized size.
	procShowWindow.Call(uintptr(hwnd), swRestore)
	ok, _, callErr := procSetWindowPos.Call(uintptr(hwnd), 0,
		uintptr(r.X), uintptr(r.Y), uintptr(r.W), uintptr(r.H),
		swpNoZOrder|swpNoActivate)
	if ok == 0 {
		return fmt.Errorf("SetWindowPos: %w", callErr)
	}
	return nil
}

func (a *windowsAdapter) GetWindowBounds(ctx context.Context, terminalKey string) (rect, error) {
	if err := ctx.Err(); err != nil {
		return rect{}, err
	}
	hwnd, err := a.windowForKey(terminalKey)
	if err != nil {
		return rect{}, err
	}
	var wr winRect
	ok, _, callErr := procGetWindowRect.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&wr)))
	if ok == 0 {
		return rect{}, fmt.Errorf("GetWindowRect: %w", callErr)
	}
	return wr.toRect(), nil
}

func (a *windowsAdapter) Activate(ctx context.Context, terminalKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hwnd, err := a.windowForKey(terminalKey)
	if err != nil {
		return err
	}
	procShowWindow.Call(uintptr(hwnd), swRestore)
	if ok, _, _ := procSetForegroundWindow.Call(uintptr(hwnd)); ok == 0 {
		// Foreground lock: Windows refuses focus steals from background
		// processes. The window is restored and flashing; nothing more to do.
		return fmt.Errorf("%w: SetForegroundWindow refused", ErrNoWindow)
	}
	return nil
}
