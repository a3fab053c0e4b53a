package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownSession is returned by operations referencing a session id the
// registry does not hold.
var ErrUnknownSession = errors.New("unknown session")

// ErrUnknownKind is returned for event kinds the registry does not
// recognise. Callers log these at debug and move on.
var ErrUnknownKind = errors.New("unknown event kind")

// Registry is the single authority for live session state and the focused
// session id. Mutations are serialised: commitMu is held across each
// mutation and its change notification, so the notifier observes changes in
// commit order. Reads take only the data lock and hand out clones.
//
// Lock order: commitMu, then mu. The notifier runs with commitMu held but
// never mu, and must not call back into registry mutations.
type Registry struct {
	commitMu sync.Mutex
	mu       sync.RWMutex

	sessions  map[string]*Session
	focusedID string

	notify func(Change)
	now    func() time.Time

	// autocompact is the persisted setting echoed onto sessions at
	// registration time.
	autocompact bool
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		notify:   func(Change) {},
		now:      time.Now,
	}
}

// SetNotifier wires the change sink. Call once during startup, before any
// event flows.
func (r *Registry) SetNotifier(fn func(Change)) {
	if fn != nil {
		r.notify = fn
	}
}

// Ingest applies one ingress event and returns a clone of the mutated
// session, or nil when the event mutated nothing (removals, telemetry for
// unknown sessions, unknown kinds).
func (r *Registry) Ingest(ev Event) (*Session, error) {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	switch ev.Kind {
	case KindSessionStart:
		return r.applyStart(ev), nil
	case KindSessionUpdate:
		return r.applyPatch(ev)
	case KindToolUseStart:
		return r.applyToolStart(ev, StatusWorking)
	case KindToolUseAwaiting:
		return r.applyToolStart(ev, StatusAwaiting)
	case KindToolUseEnd:
		return r.applyToolEnd(ev)
	case KindResponseComplete:
		return r.applyComplete(ev)
	case KindSessionEnd:
		return nil, r.removeLocked(ev.SessionID)
	case KindClaudeOperation, KindAPILog:
		return r.applyTouch(ev)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}
}

// applyStart registers a new session or re-registers a live one. A missing
// session id gets a server-assigned one. Re-registration refreshes the
// descriptive fields (terminal key, cwd, title, paths) but preserves the
// status and registration time.
func (r *Registry) applyStart(ev Event) *Session {
	now := r.now()

	r.mu.Lock()
	id := ev.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	s, exists := r.sessions[id]
	if !exists {
		s = &Session{
			ID:           id,
			Status:       StatusActive,
			RegisteredAt: now,
			Autocompact:  &AutocompactInfo{Enabled: r.autocompact},
		}
		r.sessions[id] = s
	}
	prev := s.Status
	applyDescriptive(s, ev)
	s.touch(now)
	clone := s.Clone()
	count := len(r.sessions)
	r.mu.Unlock()

	typ := ChangeAdded
	if exists {
		typ = ChangeUpdated
	}
	r.notify(Change{Type: typ, SessionID: id, Session: clone, PrevStatus: prev, ActiveCount: count})
	return clone
}

func (r *Registry) applyPatch(ev Event) (*Session, error) {
	now := r.now()

	r.mu.Lock()
	s, ok := r.sessions[ev.SessionID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrUnknownSession
	}
	prev := s.Status
	applyDescriptive(s, ev)
	s.touch(now)
	clone := s.Clone()
	count := len(r.sessions)
	r.mu.Unlock()

	r.notify(Change{Type: ChangeUpdated, SessionID: clone.ID, Session: clone, PrevStatus: prev, ActiveCount: count})
	return clone, nil
}

func (r *Registry) applyToolStart(ev Event, status Status) (*Session, error) {
	now := r.now()

	r.mu.Lock()
	s, ok := r.sessions[ev.SessionID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrUnknownSession
	}
	prev := s.Status
	s.Status = status
	if status == StatusWorking {
		s.toolDepth++
	}
	if ev.ToolName != "" {
		s.LastToolName = ev.ToolName
	}
	s.touch(now)
	clone := s.Clone()
	count := len(r.sessions)
	r.mu.Unlock()

	r.notify(Change{Type: ChangeUpdated, SessionID: clone.ID, Session: clone, PrevStatus: prev, ActiveCount: count})
	return clone, nil
}

func (r *Registry) applyToolEnd(ev Event) (*Session, error) {
	now := r.now()

	r.mu.Lock()
	s, ok := r.sessions[ev.SessionID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrUnknownSession
	}
	prev := s.Status
	if s.toolDepth > 0 {
		s.toolDepth--
	}
	// Nested tool calls keep the session working until the last one ends.
	if s.toolDepth > 0 {
		s.Status = StatusWorking
	} else {
		s.Status = StatusIdle
	}
	if ev.ToolName != "" {
		s.LastToolName = ev.ToolName
	}
	s.touch(now)
	clone := s.Clone()
	count := len(r.sessions)
	r.mu.Unlock()

	r.notify(Change{Type: ChangeUpdated, SessionID: clone.ID, Session: clone, PrevStatus: prev, ActiveCount: count})
	return clone, nil
}

func (r *Registry) applyComplete(ev Event) (*Session, error) {
	now := r.now()

	r.mu.Lock()
	s, ok := r.sessions[ev.SessionID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrUnknownSession
	}
	prev := s.Status
	s.Status = StatusIdle
	s.toolDepth = 0
	if ev.ContextMetrics != nil {
		m := *ev.ContextMetrics
		s.ContextMetrics = &m
	}
	s.touch(now)
	clone := s.Clone()
	count := len(r.sessions)
	r.mu.Unlock()

	r.notify(Change{Type: ChangeUpdated, SessionID: clone.ID, Session: clone, PrevStatus: prev, ActiveCount: count})
	return clone, nil
}

// applyTouch advances last_activity for telemetry events without emitting a
// change: subscribers receive the telemetry itself, and the touch only
// matters to the stale reaper.
func (r *Registry) applyTouch(ev Event) (*Session, error) {
	if ev.SessionID == "" {
		return nil, nil
	}
	now := r.now()

	r.mu.Lock()
	s, ok := r.sessions[ev.SessionID]
	if !ok {
		r.mu.Unlock()
		return nil, nil
	}
	s.touch(now)
	clone := s.Clone()
	r.mu.Unlock()
	return clone, nil
}

// applyDescriptive copies the attribute fields an event carries onto the
// session. Absent (empty) fields never overwrite.
func applyDescriptive(s *Session, ev Event) {
	if ev.Title != "" {
		s.Title = ev.Title
	}
	if ev.TranscriptPath != "" {
		s.TranscriptPath = ev.TranscriptPath
	}
	if ev.CWD != "" {
		s.CWD = ev.CWD
	}
	if ev.Project != "" {
		s.Project = ev.Project
	}
	if ev.Terminal != "" {
		s.Terminal = ev.Terminal
	}
	if ev.TerminalKey != "" {
		s.TerminalKey = ev.TerminalKey
	}
	if ev.GitRepoRoot != "" {
		s.GitRepoRoot = ev.GitRepoRoot
	}
	if ev.GitBranch != "" {
		s.GitBranch = ev.GitBranch
	}
	if ev.GitWorktree != "" {
		s.GitWorktree = ev.GitWorktree
	}
	if ev.ContextMetrics != nil {
		m := *ev.ContextMetrics
		s.ContextMetrics = &m
	}
}

// Remove drops a session, transitioning it through ended and firing a
// removal notification. Reports whether the session existed.
func (r *Registry) Remove(id string) bool {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()
	return r.removeLocked(id) == nil
}

func (r *Registry) removeLocked(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownSession
	}
	prev := s.Status
	s.Status = StatusEnded
	delete(r.sessions, id)
	focusCleared := r.focusedID == id
	if focusCleared {
		r.focusedID = ""
	}
	count := len(r.sessions)
	r.mu.Unlock()

	r.notify(Change{Type: ChangeRemoved, SessionID: id, PrevStatus: prev, ActiveCount: count})
	if focusCleared {
		r.notify(Change{Type: ChangeFocus, SessionID: "", ActiveCount: count})
	}
	return nil
}

// SetFocus records the focused session; the empty string clears focus.
// Reports whether the focus actually changed. Unknown ids leave the focus
// untouched and return ErrUnknownSession.
func (r *Registry) SetFocus(id string) (bool, error) {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	r.mu.Lock()
	var clone *Session
	if id != "" {
		s, ok := r.sessions[id]
		if !ok {
			r.mu.Unlock()
			return false, ErrUnknownSession
		}
		clone = s.Clone()
	}
	if r.focusedID == id {
		r.mu.Unlock()
		return false, nil
	}
	r.focusedID = id
	count := len(r.sessions)
	r.mu.Unlock()

	r.notify(Change{Type: ChangeFocus, SessionID: id, Session: clone, ActiveCount: count})
	return true, nil
}

// SetAutocompact records the persisted autocompact setting, stamps it onto
// every live session, and emits one update per session. Returns the updated
// clones.
func (r *Registry) SetAutocompact(enabled bool) []*Session {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	r.mu.Lock()
	r.autocompact = enabled
	clones := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.Autocompact = &AutocompactInfo{Enabled: enabled}
		clones = append(clones, s.Clone())
	}
	count := len(r.sessions)
	r.mu.Unlock()

	sortSessions(clones)
	for _, c := range clones {
		r.notify(Change{Type: ChangeUpdated, SessionID: c.ID, Session: c, PrevStatus: c.Status, ActiveCount: count})
	}
	return clones
}

// Get returns a clone of one session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// All returns clones of every live session, oldest registration first.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allLocked()
}

func (r *Registry) allLocked() []*Session {
	result := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s.Clone())
	}
	sortSessions(result)
	return result
}

// Snapshot returns the sessions and the focused id as one consistent read.
func (r *Registry) Snapshot() ([]*Session, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allLocked(), r.focusedID
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// FocusedID returns the focused session id, empty when none.
func (r *Registry) FocusedID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.focusedID
}

func sortSessions(ss []*Session) {
	sort.Slice(ss, func(i, j int) bool {
		if !ss[i].RegisteredAt.Equal(ss[j].RegisteredAt) {
			return ss[i].RegisteredAt.Before(ss[j].RegisteredAt)
		}
		return ss[i].ID < ss[j].ID
	})
}
