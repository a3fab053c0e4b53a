package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacques-sh/jacques/internal/hub"
	"github.com/jacques-sh/jacques/internal/layout"
	"github.com/jacques-sh/jacques/internal/tilestate"
	"github.com/jacques-sh/jacques/internal/winctl"
)

// WindowError is one per-window failure inside a multi-window operation.
type WindowError struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
	Class     string `json:"class"`
}

// TileResult reports a multi-window positioning operation. Success means
// every window was positioned; partial success shows in the counts.
type TileResult struct {
	Result
	Positioned int           `json:"positioned"`
	Total      int           `json:"total"`
	Errors     []WindowError `json:"errors,omitempty"`
}

// handleSelectSession moves the focus; the focus_changed broadcast is the
// only reply. Failures are logged, not returned.
func (r *Router) handleSelectSession(ctx context.Context, reply replySender, req hub.Request) {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := decode(req, &p); err != nil {
		slog.Warn("[router] select_session", "error", err)
		return
	}
	if _, err := r.deps.Registry.SetFocus(p.SessionID); err != nil {
		slog.Warn("[router] select_session", "session", p.SessionID, "error", err)
	}
}

// FocusResult reports a focus_terminal request.
type FocusResult struct {
	Result
	Method string `json:"method,omitempty"`
}

func (r *Router) handleFocusTerminal(ctx context.Context, reply replySender, req hub.Request) {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := decode(req, &p); err != nil {
		r.reply(ctx, reply, req, errResult(req, err))
		return
	}

	key, err := r.terminalKeyFor(p.SessionID)
	if err != nil {
		r.reply(ctx, reply, req, FocusResult{Result: errResult(req, err)})
		return
	}
	if err := r.deps.Adapter.Activate(ctx, key); err != nil {
		r.reply(ctx, reply, req, FocusResult{Result: errResult(req, err)})
		return
	}
	// Activating the terminal makes it frontmost; record the focus change
	// now rather than waiting a poll interval.
	if _, err := r.deps.Registry.SetFocus(p.SessionID); err != nil {
		slog.Warn("[router] focus after activate", "session", p.SessionID, "error", err)
	}
	r.reply(ctx, reply, req, FocusResult{Result: okResult(req), Method: "activate"})
}

func (r *Router) handleTileWindows(ctx context.Context, reply replySender, req hub.Request) {
	var p struct {
		SessionIDs []string `json:"session_ids"`
		Layout     []int    `json:"layout,omitempty"`
		DisplayID  string   `json:"display_id,omitempty"`
	}
	if err := decode(req, &p); err != nil {
		r.reply(ctx, reply, req, TileResult{Result: errResult(req, err)})
		return
	}
	if len(p.SessionIDs) == 0 {
		r.reply(ctx, reply, req, TileResult{Result: errResult(req, fmt.Errorf("no sessions given"))})
		return
	}
	if len(p.SessionIDs) > layout.MaxTiled {
		r.reply(ctx, reply, req, TileResult{Result: errResult(req,
			fmt.Errorf("%d sessions exceed the %d-window tiling limit", len(p.SessionIDs), layout.MaxTiled))})
		return
	}

	display, err := r.resolveDisplay(ctx, p.DisplayID)
	if err != nil {
		r.reply(ctx, reply, req, TileResult{Result: errResult(req, err)})
		return
	}

	res := TileResult{Result: Result{RequestID: req.RequestID}, Total: len(p.SessionIDs)}

	// Resolve keys first so the grid is computed for the windows we can
	// actually address.
	type target struct {
		sessionID, key string
	}
	var targets []target
	for _, id := range p.SessionIDs {
		key, err := r.terminalKeyFor(id)
		if err != nil {
			res.Errors = append(res.Errors, WindowError{SessionID: id, Error: err.Error(), Class: winctl.Classify(err)})
			continue
		}
		targets = append(targets, target{sessionID: id, key: key})
	}
	if len(targets) == 0 {
		res.Error = "no positionable windows"
		r.reply(ctx, reply, req, res)
		return
	}

	slots := slotsFor(display.WorkArea, len(targets), p.Layout)

	unlock := r.displays.lock(display.ID)
	defer unlock()

	var tiled []tilestate.Tiled
	for i, t := range targets {
		if i > 0 {
			r.sleep(positionDelay)
		}
		if err := r.deps.Adapter.PositionWindow(ctx, t.key, slots[i].Rect); err != nil {
			res.Errors = append(res.Errors, WindowError{SessionID: t.sessionID, Error: err.Error(), Class: winctl.Classify(err)})
			continue
		}
		res.Positioned++
		tiled = append(tiled, tilestate.Tiled{SessionID: t.sessionID, TerminalKey: t.key})
	}

	// The tile state records only arrangements that fully happened; a
	// partial tile would plan future smart-adds against windows that never
	// moved.
	if res.Positioned == res.Total {
		r.deps.Tiles.BuildFromManualTile(display.ID, display.WorkArea, tiled)
		res.Success = true
	}
	r.reply(ctx, reply, req, res)
}

// slotsFor applies a columns-per-row hint when it matches the window count,
// the default grid otherwise.
func slotsFor(workArea layout.Rect, n int, hint []int) []layout.Slot {
	if len(hint) > 0 {
		sum := 0
		for _, c := range hint {
			sum += c
		}
		if sum == n {
			if slots := layout.CalculateSlotsForGrid(workArea, hint); slots != nil {
				return slots
			}
		}
		slog.Warn("[router] layout hint ignored", "hint", hint, "windows", n)
	}
	return layout.CalculateAllSlots(workArea, n)
}

func (r *Router) handleMaximizeWindow(ctx context.Context, reply replySender, req hub.Request) {
	var p struct {
		SessionID string `json:"session_id"`
		DisplayID string `json:"display_id,omitempty"`
	}
	if err := decode(req, &p); err != nil {
		r.reply(ctx, reply, req, errResult(req, err))
		return
	}

	key, err := r.terminalKeyFor(p.SessionID)
	if err != nil {
		r.reply(ctx, reply, req, errResult(req, err))
		return
	}
	display, err := r.resolveDisplay(ctx, p.DisplayID)
	if err != nil {
		r.reply(ctx, reply, req, errResult(req, err))
		return
	}

	unlock := r.displays.lock(display.ID)
	defer unlock()

	if err := r.deps.Adapter.PositionWindow(ctx, key, display.WorkArea); err != nil {
		r.reply(ctx, reply, req, errResult(req, err))
		return
	}
	r.reply(ctx, reply, req, okResult(req))
}

// Browser layouts: the browser takes the left three fifths, terminals stack
// in the remaining right column.
const (
	layoutBrowserTerminal     = "browser-terminal"
	layoutBrowserTwoTerminals = "browser-two-terminals"
)

func (r *Router) handlePositionBrowserLayout(ctx context.Context, reply replySender, req hub.Request) {
	var p struct {
		SessionIDs []string `json:"session_ids"`
		Layout     string   `json:"layout"`
		DisplayID  string   `json:"display_id,omitempty"`
	}
	if err := decode(req, &p); err != nil {
		r.reply(ctx, reply, req, TileResult{Result: errResult(req, err)})
		return
	}

	var wantTerminals int
	switch p.Layout {
	case layoutBrowserTerminal:
		wantTerminals = 1
	case layoutBrowserTwoTerminals:
		wantTerminals = 2
	default:
		r.reply(ctx, reply, req, TileResult{Result: errResult(req, fmt.Errorf("unknown layout %q", p.Layout))})
		return
	}
	if len(p.SessionIDs) != wantTerminals {
		r.reply(ctx, reply, req, TileResult{Result: errResult(req,
			fmt.Errorf("layout %s needs %d sessions, got %d", p.Layout, wantTerminals, len(p.SessionIDs)))})
		return
	}

	browser, ok := r.deps.Adapter.(winctl.BrowserPositioner)
	if !ok {
		r.reply(ctx, reply, req, TileResult{Result: errResult(req,
			fmt.Errorf("%w: browser positioning", winctl.ErrUnsupported))})
		return
	}

	display, err := r.resolveDisplay(ctx, p.DisplayID)
	if err != nil {
		r.reply(ctx, reply, req, TileResult{Result: errResult(req, err)})
		return
	}

	browserRect, terminalRects := browserSplit(display.WorkArea, wantTerminals)
	res := TileResult{Result: Result{RequestID: req.RequestID}, Total: wantTerminals + 1}

	unlock := r.displays.lock(display.ID)
	defer unlock()

	if err := browser.PositionBrowserWindow(ctx, browserRect); err != nil {
		res.Errors = append(res.Errors, WindowError{Error: err.Error(), Class: winctl.Classify(err)})
	} else {
		res.Positioned++
	}

	for i, id := range p.SessionIDs {
		r.sleep(positionDelay)
		key, err := r.terminalKeyFor(id)
		if err == nil {
			err = r.deps.Adapter.PositionWindow(ctx, key, terminalRects[i])
		}
		if err != nil {
			res.Errors = append(res.Errors, WindowError{SessionID: id, Error: err.Error(), Class: winctl.Classify(err)})
			continue
		}
		res.Positioned++
	}

	res.Success = res.Positioned == res.Total
	r.reply(ctx, reply, req, res)
}

// browserSplit carves the work area into the browser's left pane and the
// terminal rectangles on the right.
func browserSplit(workArea layout.Rect, terminals int) (layout.Rect, []layout.Rect) {
	browserW := workArea.W * 3 / 5
	browser := layout.Rect{X: workArea.X, Y: workArea.Y, W: browserW, H: workArea.H}

	right := layout.Rect{X: workArea.X + browserW, Y: workArea.Y, W: workArea.W - browserW, H: workArea.H}
	if terminals == 1 {
		return browser, []layout.Rect{right}
	}
	topH := right.H / 2
	return browser, []layout.Rect{
		{X: right.X, Y: right.Y, W: right.W, H: topH},
		{X: right.X, Y: right.Y + topH, W: right.W, H: right.H - topH},
	}
}
