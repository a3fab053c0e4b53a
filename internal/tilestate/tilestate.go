// Package tilestate holds the daemon's belief about how session windows are
// arranged per display. The state is advisory: it records what the last
// tiling operation did so the next smart-add can plan against it, and it is
// never a trigger for window placement by itself.
package tilestate

import (
	"fmt"
	"sync"
	"time"

	"github.com/jacques-sh/jacques/internal/layout"
)

// boundsSlack is how far (per axis, in pixels) a window may have drifted
// from its recorded slot before bounds validation rejects the state.
const boundsSlack = 50

// Slot is one tiled window: which session sits where.
type Slot struct {
	TerminalKey string      `json:"terminal_key"`
	SessionID   string      `json:"session_id"`
	Rect        layout.Rect `json:"rect"`
	Column      int         `json:"column"`
	Row         int         `json:"row"`
}

// State is the arrangement on one display. ColumnsPerRow always sums to
// len(Slots), and slots are kept in the layout engine's column-major order.
type State struct {
	DisplayID     string      `json:"display_id"`
	WorkArea      layout.Rect `json:"work_area"`
	ColumnsPerRow []int       `json:"columns_per_row"`
	Slots         []Slot      `json:"slots"`
	TiledAt       time.Time   `json:"tiled_at"`
}

func (s *State) clone() *State {
	c := *s
	c.ColumnsPerRow = append([]int(nil), s.ColumnsPerRow...)
	c.Slots = append([]Slot(nil), s.Slots...)
	return &c
}

// Manager owns at most one State per display. All operations are serialised
// by its mutex; everything handed out is a copy.
type Manager struct {
	mu     sync.Mutex
	states map[string]*State
	now    func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		states: make(map[string]*State),
		now:    time.Now,
	}
}

// Get returns a copy of the state for one display.
func (m *Manager) Get(displayID string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[displayID]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// Any returns a copy of some display's state, for callers that do not know
// which display to ask about. The choice is arbitrary but stable while the
// set of tiled displays does not change.
func (m *Manager) Any() (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *State
	for _, s := range m.states {
		if best == nil || s.DisplayID < best.DisplayID {
			best = s
		}
	}
	if best == nil {
		return nil, false
	}
	return best.clone(), true
}

// Set replaces the state for a display. Sessions referenced by the new state
// are evicted from every other display first, so a session is tiled in one
// place at most.
func (m *Manager) Set(displayID string, state *State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, slot := range state.Slots {
		m.removeSessionLocked(slot.SessionID, displayID)
	}

	c := state.clone()
	c.DisplayID = displayID
	if c.TiledAt.IsZero() {
		c.TiledAt = m.now()
	}
	m.states[displayID] = c
}

// Clear drops the state for one display.
func (m *Manager) Clear(displayID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, displayID)
}

// ClearAll drops every display's state.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]*State)
}

// RemoveSession takes a session out of whatever display tiles it, then
// recomputes the grid for the smaller count so the remaining slots reflect
// what the next smart-add should plan against. Windows are not repositioned
// from here. Idempotent: removing an absent session changes nothing.
func (m *Manager) RemoveSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeSessionLocked(sessionID, "")
}

// removeSessionLocked removes sessionID from every display except skip.
func (m *Manager) removeSessionLocked(sessionID, skip string) {
	for displayID, s := range m.states {
		if displayID == skip {
			continue
		}
		kept := s.Slots[:0:0]
		for _, slot := range s.Slots {
			if slot.SessionID != sessionID {
				kept = append(kept, slot)
			}
		}
		if len(kept) == len(s.Slots) {
			continue
		}
		if len(kept) == 0 {
			delete(m.states, displayID)
			continue
		}
		m.states[displayID] = regrid(s, kept, m.now())
	}
}

// regrid lays the kept slots out on the grid for their new count, preserving
// their relative order.
func regrid(s *State, kept []Slot, now time.Time) *State {
	slots := layout.CalculateAllSlots(s.WorkArea, len(kept))
	next := &State{
		DisplayID:     s.DisplayID,
		WorkArea:      s.WorkArea,
		ColumnsPerRow: layout.GridSpec(len(kept)),
		Slots:         make([]Slot, len(kept)),
		TiledAt:       now,
	}
	for i, old := range kept {
		next.Slots[i] = Slot{
			TerminalKey: old.TerminalKey,
			SessionID:   old.SessionID,
			Rect:        slots[i].Rect,
			Column:      slots[i].Column,
			Row:         slots[i].Row,
		}
	}
	return next
}

// Tiled is the session/terminal pairing callers hand to BuildFromManualTile.
type Tiled struct {
	SessionID   string
	TerminalKey string
}

// BuildFromManualTile replaces a display's state with the grid for the given
// sessions, assigned to slots in the order provided.
func (m *Manager) BuildFromManualTile(displayID string, workArea layout.Rect, sessions []Tiled) *State {
	slots := layout.CalculateAllSlots(workArea, len(sessions))
	s := &State{
		DisplayID:     displayID,
		WorkArea:      workArea,
		ColumnsPerRow: layout.GridSpec(len(sessions)),
		Slots:         make([]Slot, len(sessions)),
	}
	for i, t := range sessions {
		s.Slots[i] = Slot{
			TerminalKey: t.TerminalKey,
			SessionID:   t.SessionID,
			Rect:        slots[i].Rect,
			Column:      slots[i].Column,
			Row:         slots[i].Row,
		}
	}
	m.Set(displayID, s)
	return s
}

// ValidateBounds checks that every slot's window still sits within
// boundsSlack of its recorded rectangle, using live bounds from the window
// adapter. Used on platforms that can read window geometry.
func ValidateBounds(s *State, getBounds func(terminalKey string) (layout.Rect, error)) error {
	for _, slot := range s.Slots {
		actual, err := getBounds(slot.TerminalKey)
		if err != nil {
			return fmt.Errorf("slot %s: read bounds: %w", slot.SessionID, err)
		}
		if off, axis := exceedsSlack(slot.Rect, actual); off {
			return fmt.Errorf("slot %s drifted on %s: recorded %+v, actual %+v",
				slot.SessionID, axis, slot.Rect, actual)
		}
	}
	return nil
}

func exceedsSlack(want, got layout.Rect) (bool, string) {
	switch {
	case abs(want.X-got.X) > boundsSlack:
		return true, "x"
	case abs(want.Y-got.Y) > boundsSlack:
		return true, "y"
	case abs(want.W-got.W) > boundsSlack:
		return true, "width"
	case abs(want.H-got.H) > boundsSlack:
		return true, "height"
	}
	return false, ""
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ValidateSessions checks that every tiled session still exists. This is the
// weaker validation used where window bounds cannot be read; it catches
// closed sessions but not windows the user moved by hand.
func ValidateSessions(s *State, exists func(sessionID string) bool) error {
	for _, slot := range s.Slots {
		if !exists(slot.SessionID) {
			return fmt.Errorf("slot session %s no longer exists (bounds unreadable on this platform, session check only)", slot.SessionID)
		}
	}
	return nil
}
