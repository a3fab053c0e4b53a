// Package hub fans daemon state out to connected UI clients over WebSocket.
// Every client gets one initial snapshot on connect, then a live delta
// stream; per-client bounded queues keep one slow UI from stalling the rest.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jacques-sh/jacques/internal/session"
)

// RequestHandler dispatches one decoded client request. The context is the
// client's: it ends on disconnect, at which point the result is moot.
type RequestHandler interface {
	Handle(ctx context.Context, c *Client, req Request)
}

// Hub owns the set of connected clients. The registry and privacy filter
// are read-only collaborators; mutations flow in through OnChange.
type Hub struct {
	registry *session.Registry
	filter   *session.PrivacyFilter

	mu      sync.Mutex
	clients map[*Client]struct{}

	handlerMu sync.RWMutex
	handler   RequestHandler

	seq       atomic.Uint64
	queueSize int
}

func New(registry *session.Registry, filter *session.PrivacyFilter) *Hub {
	if filter == nil {
		filter = &session.PrivacyFilter{}
	}
	return &Hub{
		registry:  registry,
		filter:    filter,
		clients:   make(map[*Client]struct{}),
		queueSize: defaultQueueSize,
	}
}

// SetRequestHandler wires the router. Call once during startup.
func (h *Hub) SetRequestHandler(handler RequestHandler) {
	h.handlerMu.Lock()
	h.handler = handler
	h.handlerMu.Unlock()
}

func (h *Hub) requestHandler() RequestHandler {
	h.handlerMu.RLock()
	defer h.handlerMu.RUnlock()
	return h.handler
}

func (h *Hub) nextSeq() uint64 {
	return h.seq.Add(1)
}

// AddClient registers a connection and seeds it with the initial snapshot.
// The hub lock is held across snapshot and registration so no delta can slip
// into the gap between them.
func (h *Hub) AddClient(conn *websocket.Conn) *Client {
	c := newClient(h, conn, h.queueSize)

	h.mu.Lock()
	sessions, focused := h.registry.Snapshot()
	c.Send(MsgInitialState, InitialStatePayload{
		Sessions:         h.filter.FilterSlice(sessions),
		FocusedSessionID: focused,
	})
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()

	slog.Debug("[hub] client connected", "client", c.ID, "clients", h.ClientCount())
	return c
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if present {
		c.close()
		slog.Debug("[hub] client disconnected", "client", c.ID, "clients", h.ClientCount())
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// OnChange is the registry's change notifier: it translates registry
// mutations into broadcast messages. Runs with the registry's commit lock
// held, so it must stay non-blocking — enqueues never block.
func (h *Hub) OnChange(ch session.Change) {
	switch ch.Type {
	case session.ChangeAdded, session.ChangeUpdated:
		if !h.filter.IsAllowed(ch.Session.CWD) {
			return
		}
		h.broadcast(MsgSessionUpdate, ch.SessionID, SessionUpdatePayload{Session: h.filter.Apply(ch.Session)})
	case session.ChangeRemoved:
		h.broadcast(MsgSessionRemoved, ch.SessionID, SessionRemovedPayload{SessionID: ch.SessionID})
	case session.ChangeFocus:
		p := FocusChangedPayload{SessionID: ch.SessionID}
		if ch.Session != nil {
			if !h.filter.IsAllowed(ch.Session.CWD) {
				return
			}
			p.Session = h.filter.Apply(ch.Session)
		}
		h.broadcast(MsgFocusChanged, ch.SessionID, p)
	}
}

// BroadcastTelemetry forwards an opaque ingress record (claude_operation or
// api_log) to every client.
func (h *Hub) BroadcastTelemetry(msgType string, raw json.RawMessage) {
	h.broadcast(msgType, "", json.RawMessage(raw))
}

// BroadcastHandoffReady announces a handoff artifact appearing on disk.
func (h *Hub) BroadcastHandoffReady(sessionID, path string) {
	h.broadcast(MsgHandoffReady, "", HandoffReadyPayload{SessionID: sessionID, Path: path})
}

// BroadcastNotification announces a fired notification.
func (h *Hub) BroadcastNotification(p NotificationPayload) {
	h.broadcast(MsgNotificationFired, "", p)
}

// BroadcastAutocompactToggled announces the new autocompact setting.
func (h *Hub) BroadcastAutocompactToggled(enabled bool, warning string) {
	h.broadcast(MsgAutocompactToggled, "", AutocompactToggledPayload{Enabled: enabled, Warning: warning})
}

// BroadcastServerLog forwards one teed log record.
func (h *Hub) BroadcastServerLog(level slog.Level, msg string, at time.Time, attrs map[string]string) {
	h.broadcast(MsgServerLog, "", ServerLogPayload{
		Level:   level.String(),
		Message: msg,
		Attrs:   attrs,
		Time:    at.UTC().Format(time.RFC3339Nano),
	})
}

// broadcast marshals one envelope and enqueues it for every client. key is
// the coalescing key for session updates.
func (h *Hub) broadcast(msgType, key string, payload interface{}) {
	env := Envelope{Type: msgType, Seq: h.nextSeq(), Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("[hub] marshal broadcast", "type", msgType, "error", err)
		return
	}
	m := outMessage{msgType: msgType, class: classify(msgType), key: key, data: data}

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.enqueue(m)
	}
}
