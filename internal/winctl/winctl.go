// Package winctl positions and activates the OS-level windows that host
// observed sessions. The Adapter interface is the capability set the request
// router consumes; each platform supplies its own implementation, and
// optional capabilities are discovered by interface assertion.
package winctl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jacques-sh/jacques/internal/layout"
)

// Sentinel errors for the failure classes callers report back to clients.
var (
	// ErrNoWindow means no window could be found for the terminal key.
	ErrNoWindow = errors.New("no window found")
	// ErrTimeout means the OS call did not return within the deadline.
	ErrTimeout = errors.New("window operation timed out")
	// ErrUnsupported means the platform lacks the requested capability.
	ErrUnsupported = errors.New("unsupported on this platform")
)

// rect aliases the layout engine's rectangle so adapters and callers share
// one geometry type.
type rect = layout.Rect

// callTimeout bounds every adapter invocation; AppleScript in particular can
// hang when the scripted application shows a modal dialog.
const callTimeout = 10 * time.Second

// displayCacheTTL is how long display enumeration results are reused.
const displayCacheTTL = 30 * time.Second

// Display is one attached monitor.
type Display struct {
	ID     string      `json:"id"`
	Bounds layout.Rect `json:"bounds"`
	// WorkArea is Bounds minus OS chrome (menu bar, task bar, dock).
	WorkArea  layout.Rect `json:"work_area"`
	IsPrimary bool        `json:"is_primary"`
}

// Adapter is the mandatory capability set. Implementations are assumed
// single-threaded; the router serialises calls per display.
type Adapter interface {
	// EnumerateDisplays lists attached displays, primary first.
	EnumerateDisplays(ctx context.Context) ([]Display, error)
	// PositionWindow moves the window identified by a terminal key to rect.
	PositionWindow(ctx context.Context, terminalKey string, rect layout.Rect) error
	// Activate brings the window identified by a terminal key to the front.
	Activate(ctx context.Context, terminalKey string) error
}

// BoundsReader is the optional capability to read a window's current
// rectangle, used for bounds-based tile validation and for the free-space
// finder to see windows the daemon does not track.
type BoundsReader interface {
	GetWindowBounds(ctx context.Context, terminalKey string) (layout.Rect, error)
}

// BrowserPositioner is the optional capability to place the default
// browser's frontmost window, used by the browser-layout request.
type BrowserPositioner interface {
	PositionBrowserWindow(ctx context.Context, rect layout.Rect) error
}

// DisplayInvalidator is the optional capability to drop cached display
// enumeration, so a caller that misses on a display id can force a fresh
// look before giving up (monitors attach and detach within the cache TTL).
type DisplayInvalidator interface {
	InvalidateDisplays()
}

// Classify maps an adapter error onto the wire-level error class clients
// receive: no_window, timeout, unsupported, or other.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoWindow):
		return "no_window"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	default:
		return "other"
	}
}

// New returns the adapter for the running platform. Platforms without an
// implementation get a stub whose every call reports ErrUnsupported.
func New() Adapter {
	return newPlatformAdapter()
}

// displayCache memoises display enumeration for displayCacheTTL; on macOS
// and Linux each enumeration shells out, which is too slow to do per
// request. The hub dispatches every request on its own goroutine, so the
// cache guards itself; holding mu across fetch also keeps concurrent misses
// from enumerating twice.
type displayCache struct {
	mu        sync.Mutex
	displays  []Display
	fetchedAt time.Time
	now       func() time.Time
}

func (c *displayCache) get(fetch func() ([]Display, error)) ([]Display, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	if c.displays != nil && now().Sub(c.fetchedAt) < displayCacheTTL {
		return c.displays, nil
	}
	ds, err := fetch()
	if err != nil {
		return nil, err
	}
	c.displays = ds
	c.fetchedAt = now()
	return ds, nil
}

func (c *displayCache) invalidate() {
	c.mu.Lock()
	c.displays = nil
	c.mu.Unlock()
}
