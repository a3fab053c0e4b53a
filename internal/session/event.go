package session

import "encoding/json"

// Wire event kinds accepted on the ingress socket. Each record is a JSON
// object whose "event" field carries one of these values.
const (
	KindSessionStart       = "session_start"
	KindSessionUpdate      = "session_update"
	KindToolUseStart       = "tool_use_start"
	KindToolUseAwaiting    = "tool_use_awaiting_approval"
	KindToolUseEnd         = "tool_use_end"
	KindResponseComplete   = "assistant_response_complete"
	KindSessionEnd         = "session_end"
	KindClaudeOperation    = "claude_operation"
	KindAPILog             = "api_log"
)

// Event is one decoded ingress record. Fields beyond Kind and SessionID are
// populated only by the kinds that carry them; absent fields stay zero and
// never overwrite existing session attributes.
type Event struct {
	Kind           string          `json:"event"`
	SessionID      string          `json:"session_id,omitempty"`
	Title          string          `json:"title,omitempty"`
	TranscriptPath string          `json:"transcript_path,omitempty"`
	CWD            string          `json:"cwd,omitempty"`
	Project        string          `json:"project,omitempty"`
	Terminal       string          `json:"terminal,omitempty"`
	TerminalKey    string          `json:"terminal_key,omitempty"`
	GitRepoRoot    string          `json:"git_repo_root,omitempty"`
	GitBranch      string          `json:"git_branch,omitempty"`
	GitWorktree    string          `json:"git_worktree,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`
	ContextMetrics *ContextMetrics `json:"context_metrics,omitempty"`

	// Raw preserves the record as received, for telemetry kinds that are
	// forwarded to subscribers verbatim.
	Raw json.RawMessage `json:"-"`
}

// Telemetry reports whether this event is opaque passthrough data rather
// than a state transition.
func (e Event) Telemetry() bool {
	return e.Kind == KindClaudeOperation || e.Kind == KindAPILog
}

// ChangeType classifies registry change notifications.
type ChangeType int

const (
	ChangeAdded   ChangeType = iota // session entered the registry
	ChangeUpdated                   // observable fields changed
	ChangeRemoved                   // session left the registry
	ChangeFocus                     // focused session changed
)

// Change carries a registry mutation to the notifier wired at startup.
// Session is a clone, safe to retain; it is nil for a focus clear and for
// removals (SessionID identifies the subject in both cases).
type Change struct {
	Type        ChangeType
	SessionID   string
	Session     *Session
	PrevStatus  Status
	ActiveCount int // live sessions after the change
}
