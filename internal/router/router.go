// Package router dispatches client requests against the daemon's
// collaborators: the registry, the window adapter, the tile state, the
// terminal launcher, the worktree collaborator and the settings stores.
// Every request except select_session gets exactly one <type>_result reply.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jacques-sh/jacques/internal/hub"
	"github.com/jacques-sh/jacques/internal/launcher"
	"github.com/jacques-sh/jacques/internal/session"
	"github.com/jacques-sh/jacques/internal/settings"
	"github.com/jacques-sh/jacques/internal/tilestate"
	"github.com/jacques-sh/jacques/internal/winctl"
	"github.com/jacques-sh/jacques/internal/worktree"
)

// positionDelay spaces consecutive window-geometry calls so the platform's
// window manager keeps up.
const positionDelay = 100 * time.Millisecond

// Broadcasts is the hub surface the router pushes global announcements
// through.
type Broadcasts interface {
	BroadcastAutocompactToggled(enabled bool, warning string)
}

// replySender delivers one result message to the requesting client.
type replySender interface {
	Send(msgType string, payload interface{})
}

// Deps are the router's collaborators, all wired at startup.
type Deps struct {
	Registry      *session.Registry
	Adapter       winctl.Adapter
	Tiles         *tilestate.Manager
	Launcher      launcher.Launcher
	Worktrees     worktree.Worktrees
	Autocompact   *settings.AutocompactStore
	Notifications *settings.NotificationStore
	Broadcasts    Broadcasts
}

type handlerFunc func(ctx context.Context, reply replySender, req hub.Request)

// Router implements hub.RequestHandler.
type Router struct {
	deps     Deps
	handlers map[string]handlerFunc
	displays displayLocks

	// sleep spaces sequential positioning calls; replaced in tests.
	sleep func(time.Duration)
}

func New(deps Deps) *Router {
	r := &Router{
		deps:  deps,
		sleep: time.Sleep,
	}
	r.handlers = map[string]handlerFunc{
		"select_session":               r.handleSelectSession,
		"focus_terminal":               r.handleFocusTerminal,
		"tile_windows":                 r.handleTileWindows,
		"maximize_window":              r.handleMaximizeWindow,
		"position_browser_layout":      r.handlePositionBrowserLayout,
		"smart_tile_add":               r.handleSmartTileAdd,
		"create_worktree":              r.handleCreateWorktree,
		"list_worktrees":               r.handleListWorktrees,
		"remove_worktree":              r.handleRemoveWorktree,
		"launch_session":               r.handleLaunchSession,
		"toggle_autocompact":           r.handleToggleAutocompact,
		"update_notification_settings": r.handleUpdateNotificationSettings,
	}
	return r
}

// Handle dispatches one request. The context belongs to the requesting
// client and ends on disconnect.
func (r *Router) Handle(ctx context.Context, c *hub.Client, req hub.Request) {
	r.dispatch(ctx, c, req)
}

func (r *Router) dispatch(ctx context.Context, reply replySender, req hub.Request) {
	h, ok := r.handlers[req.Type]
	if !ok {
		slog.Warn("[router] unknown request type", "type", req.Type)
		r.reply(ctx, reply, req, Result{
			RequestID: req.RequestID,
			Error:     fmt.Sprintf("unknown request type %q", req.Type),
		})
		return
	}
	h(ctx, reply, req)
}

// Result is the common shape of every reply. Handlers with more to say
// embed it.
type Result struct {
	RequestID  string `json:"request_id"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
}

func okResult(req hub.Request) Result {
	return Result{RequestID: req.RequestID, Success: true}
}

func errResult(req hub.Request, err error) Result {
	return Result{
		RequestID:  req.RequestID,
		Error:      err.Error(),
		ErrorClass: winctl.Classify(err),
	}
}

// reply sends the <type>_result message unless the client is already gone,
// in which case the result is discarded.
func (r *Router) reply(ctx context.Context, reply replySender, req hub.Request, payload interface{}) {
	if ctx.Err() != nil {
		slog.Debug("[router] client disconnected, dropping result", "type", req.Type, "request", req.RequestID)
		return
	}
	reply.Send(req.Type+"_result", payload)
}

func decode(req hub.Request, into interface{}) error {
	if len(req.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Payload, into); err != nil {
		return fmt.Errorf("decode %s payload: %w", req.Type, err)
	}
	return nil
}

// displayLocks serialises window-adapter traffic per display. Platform
// adapters are assumed single-threaded per display.
type displayLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (d *displayLocks) lock(displayID string) (unlock func()) {
	d.mu.Lock()
	if d.locks == nil {
		d.locks = make(map[string]*sync.Mutex)
	}
	l, ok := d.locks[displayID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[displayID] = l
	}
	d.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// resolveDisplay picks the requested display, or the primary when no id is
// given.
func (r *Router) resolveDisplay(ctx context.Context, displayID string) (winctl.Display, error) {
	displays, err := r.deps.Adapter.EnumerateDisplays(ctx)
	if err != nil {
		return winctl.Display{}, fmt.Errorf("enumerate displays: %w", err)
	}
	if len(displays) == 0 {
		return winctl.Display{}, fmt.Errorf("no displays available")
	}
	if displayID == "" {
		for _, d := range displays {
			if d.IsPrimary {
				return d, nil
			}
		}
		return displays[0], nil
	}
	if d, ok := findDisplay(displays, displayID); ok {
		return d, nil
	}
	// The id may have missed on a stale enumeration; force one fresh look
	// before reporting the display gone.
	if inv, ok := r.deps.Adapter.(winctl.DisplayInvalidator); ok {
		inv.InvalidateDisplays()
		if fresh, err := r.deps.Adapter.EnumerateDisplays(ctx); err == nil {
			if d, ok := findDisplay(fresh, displayID); ok {
				return d, nil
			}
		}
	}
	return winctl.Display{}, fmt.Errorf("unknown display %q", displayID)
}

func findDisplay(displays []winctl.Display, id string) (winctl.Display, bool) {
	for _, d := range displays {
		if d.ID == id {
			return d, true
		}
	}
	return winctl.Display{}, false
}

// terminalKeyFor resolves a session id to its terminal key.
func (r *Router) terminalKeyFor(sessionID string) (string, error) {
	s, ok := r.deps.Registry.Get(sessionID)
	if !ok {
		return "", fmt.Errorf("unknown session %q", sessionID)
	}
	if s.TerminalKey == "" {
		return "", fmt.Errorf("%w: session %q has no terminal key", winctl.ErrNoWindow, sessionID)
	}
	return s.TerminalKey, nil
}
