package session

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of an observed session.
type Status int

const (
	// StatusActive means the session registered but has produced no
	// tool or response activity yet.
	StatusActive Status = iota
	// StatusWorking means a tool call is in progress.
	StatusWorking
	// StatusAwaiting means a tool call is waiting for user approval.
	StatusAwaiting
	// StatusIdle means the assistant finished responding.
	StatusIdle
	// StatusEnded is terminal; sessions in this state are observable
	// only through the removal notification.
	StatusEnded
)

var statusNames = map[Status]string{
	StatusActive:   "active",
	StatusWorking:  "working",
	StatusAwaiting: "awaiting",
	StatusIdle:     "idle",
	StatusEnded:    "ended",
}

var statusFromName = map[string]Status{
	"active":   StatusActive,
	"working":  StatusWorking,
	"awaiting": StatusAwaiting,
	"idle":     StatusIdle,
	"ended":    StatusEnded,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := statusFromName[name]; ok {
		*s = v
	}
	return nil
}

// ContextMetrics is the token accounting reported by a session, latest
// observation wins. ContextWindow is zero when the model's window size is
// not known.
type ContextMetrics struct {
	InputTokens         int `json:"input_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_tokens,omitempty"`
	OutputTokens        int `json:"output_tokens,omitempty"`
	ContextWindow       int `json:"context_window,omitempty"`
}

// TotalContext returns the tokens occupying the context window: fresh input
// plus everything served from cache.
func (m ContextMetrics) TotalContext() int {
	return m.InputTokens + m.CacheCreationTokens + m.CacheReadTokens
}

// Utilization returns the context window fill fraction in [0, 1], or 0 when
// the window size is unknown.
func (m ContextMetrics) Utilization() float64 {
	if m.ContextWindow <= 0 {
		return 0
	}
	u := float64(m.TotalContext()) / float64(m.ContextWindow)
	if u > 1.0 {
		u = 1.0
	}
	return u
}

// AutocompactInfo echoes the persisted autocompact setting on each session
// so clients see the current value without a separate query.
type AutocompactInfo struct {
	Enabled bool `json:"enabled"`
}

// Session is one observed AI-coding process. The registry owns all Session
// records; everything handed out crosses the boundary as a Clone.
type Session struct {
	ID             string           `json:"session_id"`
	Title          string           `json:"title,omitempty"`
	TranscriptPath string           `json:"transcript_path,omitempty"`
	CWD            string           `json:"cwd,omitempty"`
	Project        string           `json:"project_name,omitempty"`
	GitRepoRoot    string           `json:"git_repo_root,omitempty"`
	GitBranch      string           `json:"git_branch,omitempty"`
	GitWorktree    string           `json:"git_worktree,omitempty"`
	Terminal       string           `json:"terminal,omitempty"`
	TerminalKey    string           `json:"terminal_key,omitempty"`
	Status         Status           `json:"status"`
	LastToolName   string           `json:"last_tool_name,omitempty"`
	ContextMetrics *ContextMetrics  `json:"context_metrics,omitempty"`
	Autocompact    *AutocompactInfo `json:"autocompact,omitempty"`
	RegisteredAt   time.Time        `json:"registered_at"`
	LastActivity   time.Time        `json:"last_activity"`

	// toolDepth counts tool calls that started and have not ended; the
	// session stays working until it returns to zero.
	toolDepth int
}

// Clone returns a deep copy of the Session, duplicating pointer fields so
// the copy can be mutated independently of the original.
func (s *Session) Clone() *Session {
	c := *s
	if s.ContextMetrics != nil {
		m := *s.ContextMetrics
		c.ContextMetrics = &m
	}
	if s.Autocompact != nil {
		a := *s.Autocompact
		c.Autocompact = &a
	}
	return &c
}

// Ended reports whether the session reached its terminal state.
func (s *Session) Ended() bool {
	return s.Status == StatusEnded
}

// touch advances last_activity, never backwards.
func (s *Session) touch(now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}
