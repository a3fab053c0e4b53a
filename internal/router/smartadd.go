package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacques-sh/jacques/internal/hub"
	"github.com/jacques-sh/jacques/internal/launcher"
	"github.com/jacques-sh/jacques/internal/layout"
	"github.com/jacques-sh/jacques/internal/tilestate"
	"github.com/jacques-sh/jacques/internal/winctl"
)

// SmartAddResult reports a smart_tile_add: how many existing windows moved,
// how many are tiled afterwards, whether the free-space fallback placed the
// new window, and which launcher opened it.
type SmartAddResult struct {
	Result
	Repositioned  int    `json:"repositioned"`
	TotalTiled    int    `json:"total_tiled"`
	UsedFreeSpace bool   `json:"used_free_space"`
	LaunchMethod  string `json:"launch_method,omitempty"`
}

type smartAddParams struct {
	LaunchCWD       string `json:"launch_cwd,omitempty"`
	NewSessionID    string `json:"new_session_id,omitempty"`
	DisplayID       string `json:"display_id,omitempty"`
	SkipPermissions bool   `json:"dangerously_skip_permissions,omitempty"`
}

func (r *Router) handleSmartTileAdd(ctx context.Context, reply replySender, req hub.Request) {
	var p smartAddParams
	if err := decode(req, &p); err != nil {
		r.reply(ctx, reply, req, SmartAddResult{Result: errResult(req, err)})
		return
	}
	r.reply(ctx, reply, req, r.smartTileAdd(ctx, req, p))
}

// smartTileAdd grows the tiled grid by one window, or drops the new window
// into free space when no valid grid exists. Shared with create_worktree,
// which chains into it after creating the checkout.
func (r *Router) smartTileAdd(ctx context.Context, req hub.Request, p smartAddParams) SmartAddResult {
	res := SmartAddResult{Result: Result{RequestID: req.RequestID}}

	if p.LaunchCWD == "" && p.NewSessionID == "" {
		res.Result = errResult(req, fmt.Errorf("launch_cwd or new_session_id is required"))
		return res
	}

	// Resolve the existing session's key up front so a bad id fails before
	// any window moves, and so the reserved slot records the key.
	var newKey string
	if p.LaunchCWD == "" {
		key, err := r.terminalKeyFor(p.NewSessionID)
		if err != nil {
			res.Result = errResult(req, err)
			return res
		}
		newKey = key
	}

	display, err := r.pickDisplay(ctx, p.DisplayID)
	if err != nil {
		res.Result = errResult(req, err)
		return res
	}

	unlock := r.displays.lock(display.ID)
	defer unlock()

	targetRect, gridded := r.growGrid(ctx, display, p.NewSessionID, newKey, &res)
	if !gridded {
		targetRect = r.freeSpaceRect(ctx, display)
		res.UsedFreeSpace = true
	}

	if p.LaunchCWD != "" {
		method, err := r.deps.Launcher.Launch(ctx, launcher.Options{
			CWD:             p.LaunchCWD,
			Bounds:          &targetRect,
			SkipPermissions: p.SkipPermissions,
		})
		if err != nil {
			res.Result = errResult(req, fmt.Errorf("launch terminal: %w", err))
			return res
		}
		res.LaunchMethod = method
	} else {
		if res.Repositioned > 0 {
			r.sleep(positionDelay)
		}
		if err := r.deps.Adapter.PositionWindow(ctx, newKey, targetRect); err != nil {
			res.Result = errResult(req, err)
			return res
		}
	}

	res.Success = true
	return res
}

// pickDisplay resolves the smart-add target display: explicit id, else the
// display already holding tile state, else the display showing most live
// terminals, else primary.
func (r *Router) pickDisplay(ctx context.Context, displayID string) (winctl.Display, error) {
	if displayID != "" {
		return r.resolveDisplay(ctx, displayID)
	}
	if state, ok := r.deps.Tiles.Any(); ok {
		if d, err := r.resolveDisplay(ctx, state.DisplayID); err == nil {
			return d, nil
		}
		// The tiled display went away; fall through.
	}
	if id := r.majorityDisplay(ctx); id != "" {
		if d, err := r.resolveDisplay(ctx, id); err == nil {
			return d, nil
		}
	}
	return r.resolveDisplay(ctx, "")
}

// majorityDisplay finds the display showing the most live terminal windows,
// when the adapter can read window bounds. Empty when it cannot tell.
func (r *Router) majorityDisplay(ctx context.Context) string {
	reader, ok := r.deps.Adapter.(winctl.BoundsReader)
	if !ok {
		return ""
	}
	displays, err := r.deps.Adapter.EnumerateDisplays(ctx)
	if err != nil {
		return ""
	}

	counts := make(map[string]int)
	for _, s := range r.deps.Registry.All() {
		if s.TerminalKey == "" {
			continue
		}
		bounds, err := reader.GetWindowBounds(ctx, s.TerminalKey)
		if err != nil {
			continue
		}
		cx, cy := bounds.X+bounds.W/2, bounds.Y+bounds.H/2
		for _, d := range displays {
			if cx >= d.Bounds.X && cx < d.Bounds.Right() && cy >= d.Bounds.Y && cy < d.Bounds.Bottom() {
				counts[d.ID]++
				break
			}
		}
	}

	best, bestCount := "", 0
	for id, n := range counts {
		if n > bestCount || (n == bestCount && id < best) {
			best, bestCount = id, n
		}
	}
	return best
}

// growGrid attempts the grid path: a valid existing tile state below the
// window limit is transitioned to the next grid size, existing windows are
// repositioned, and the state is updated with a slot reserved for the new
// session. Returns the new window's rect and whether the grid path applied.
func (r *Router) growGrid(ctx context.Context, display winctl.Display, newSessionID, newKey string, res *SmartAddResult) (layout.Rect, bool) {
	state, ok := r.deps.Tiles.Get(display.ID)
	if !ok || len(state.Slots) == 0 || len(state.Slots) >= layout.MaxTiled {
		return layout.Rect{}, false
	}
	if err := r.validateState(ctx, state); err != nil {
		slog.Info("[router] tile state invalid, using free space", "display", display.ID, "reason", err)
		return layout.Rect{}, false
	}

	existing := make([]layout.Slot, len(state.Slots))
	for i, s := range state.Slots {
		existing[i] = layout.Slot{Rect: s.Rect, Column: s.Column, Row: s.Row}
	}
	plan := layout.PlanTransition(existing, state.WorkArea)
	if plan == nil {
		return layout.Rect{}, false
	}

	for i, move := range plan.Repositions {
		if i > 0 {
			r.sleep(positionDelay)
		}
		slot := state.Slots[move.Index]
		if err := r.deps.Adapter.PositionWindow(ctx, slot.TerminalKey, move.To); err != nil {
			slog.Warn("[router] reposition failed", "session", slot.SessionID, "error", err)
			continue
		}
		res.Repositioned++
	}

	// Record the grown grid, pairing sessions to slots by index; the last
	// slot is reserved for the incoming session.
	nextSlots := layout.CalculateAllSlots(state.WorkArea, len(state.Slots)+1)
	next := &tilestate.State{
		DisplayID:     display.ID,
		WorkArea:      state.WorkArea,
		ColumnsPerRow: plan.NewGrid,
		Slots:         make([]tilestate.Slot, len(nextSlots)),
	}
	for i, old := range state.Slots {
		next.Slots[i] = tilestate.Slot{
			TerminalKey: old.TerminalKey,
			SessionID:   old.SessionID,
			Rect:        nextSlots[i].Rect,
			Column:      nextSlots[i].Column,
			Row:         nextSlots[i].Row,
		}
	}
	last := len(nextSlots) - 1
	next.Slots[last] = tilestate.Slot{
		SessionID:   newSessionID,
		TerminalKey: newKey,
		Rect:        nextSlots[last].Rect,
		Column:      nextSlots[last].Column,
		Row:         nextSlots[last].Row,
	}
	r.deps.Tiles.Set(display.ID, next)

	res.TotalTiled = len(next.Slots)
	return plan.NewRect, true
}

// validateState picks the strongest validation the platform supports.
func (r *Router) validateState(ctx context.Context, state *tilestate.State) error {
	if reader, ok := r.deps.Adapter.(winctl.BoundsReader); ok {
		return tilestate.ValidateBounds(state, func(key string) (layout.Rect, error) {
			return reader.GetWindowBounds(ctx, key)
		})
	}
	return tilestate.ValidateSessions(state, func(sessionID string) bool {
		_, ok := r.deps.Registry.Get(sessionID)
		return ok
	})
}

// freeSpaceRect finds the least-occupied spot: live window bounds when the
// adapter can read them, recorded tile rects otherwise, an empty work area
// failing both.
func (r *Router) freeSpaceRect(ctx context.Context, display winctl.Display) layout.Rect {
	var existing []layout.Rect
	if reader, ok := r.deps.Adapter.(winctl.BoundsReader); ok {
		for _, s := range r.deps.Registry.All() {
			if s.TerminalKey == "" {
				continue
			}
			bounds, err := reader.GetWindowBounds(ctx, s.TerminalKey)
			if err != nil {
				continue
			}
			existing = append(existing, bounds)
		}
	} else if state, ok := r.deps.Tiles.Get(display.ID); ok {
		for _, slot := range state.Slots {
			existing = append(existing, slot.Rect)
		}
	}
	return layout.FindFreeSpace(display.WorkArea, existing)
}
