package hub

import (
	"encoding/json"

	"github.com/jacques-sh/jacques/internal/session"
)

// Server→client message types. Request results use the requesting message's
// type with a "_result" suffix and are built by the router.
const (
	MsgInitialState       = "initial_state"
	MsgSessionUpdate      = "session_update"
	MsgSessionRemoved     = "session_removed"
	MsgFocusChanged       = "focus_changed"
	MsgAutocompactToggled = "autocompact_toggled"
	MsgHandoffReady       = "handoff_ready"
	MsgNotificationFired  = "notification_fired"
	MsgClaudeOperation    = "claude_operation"
	MsgAPILog             = "api_log"
	MsgServerLog          = "server_log"
)

// Envelope wraps every server→client message. Seq is stamped from a global
// counter in production order; under backpressure coalescing a client may
// observe gaps.
type Envelope struct {
	Type    string      `json:"type"`
	Seq     uint64      `json:"seq"`
	Payload interface{} `json:"payload"`
}

// Request is a decoded client→server message. Payload holds the
// request-specific fields for the router to unmarshal.
type Request struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type InitialStatePayload struct {
	Sessions         []*session.Session `json:"sessions"`
	FocusedSessionID string             `json:"focused_session_id,omitempty"`
}

type SessionUpdatePayload struct {
	Session *session.Session `json:"session"`
}

type SessionRemovedPayload struct {
	SessionID string `json:"session_id"`
}

type FocusChangedPayload struct {
	SessionID string           `json:"session_id"`
	Session   *session.Session `json:"session,omitempty"`
}

type AutocompactToggledPayload struct {
	Enabled bool   `json:"enabled"`
	Warning string `json:"warning,omitempty"`
}

type HandoffReadyPayload struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
}

// NotificationPayload is a fired notification; rendering is the client's
// concern.
type NotificationPayload struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	FiredAt   string `json:"fired_at"`
}

type ServerLogPayload struct {
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Time    string            `json:"time"`
}

// class buckets message types for the backpressure policy.
type class int

const (
	// classNeverDrop messages disconnect the client rather than be lost.
	classNeverDrop class = iota
	// classCoalesce messages carry full state; only the newest per key
	// matters.
	classCoalesce
	// classTelemetry messages are droppable, oldest first.
	classTelemetry
)

func classify(msgType string) class {
	switch msgType {
	case MsgSessionUpdate:
		return classCoalesce
	case MsgClaudeOperation, MsgAPILog, MsgServerLog:
		return classTelemetry
	default:
		return classNeverDrop
	}
}
