// Package notify decides when a session transition warrants a notification
// and broadcasts it. Rendering (sound, toast) is entirely the UI's job; the
// daemon only fires the structured event.
package notify

import (
	"fmt"
	"time"

	"github.com/jacques-sh/jacques/internal/hub"
	"github.com/jacques-sh/jacques/internal/session"
	"github.com/jacques-sh/jacques/internal/settings"
)

// Broadcaster is the hub surface the notifier needs.
type Broadcaster interface {
	BroadcastNotification(p hub.NotificationPayload)
}

// Notifier watches registry changes for transitions into awaiting (and,
// when configured, idle) and fires notification_fired broadcasts.
type Notifier struct {
	store       *settings.NotificationStore
	broadcaster Broadcaster
	now         func() time.Time
}

func New(store *settings.NotificationStore, broadcaster Broadcaster) *Notifier {
	return &Notifier{
		store:       store,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// OnChange inspects one registry change. Runs inside the registry's commit
// path, so it must stay fast: one settings read (cached file, tiny) and a
// non-blocking broadcast.
func (n *Notifier) OnChange(ch session.Change) {
	if ch.Type != session.ChangeUpdated || ch.Session == nil {
		return
	}

	cur := ch.Session.Status
	if cur == ch.PrevStatus {
		return
	}

	prefs := n.store.Load()
	if !prefs.Enabled {
		return
	}

	switch cur {
	case session.StatusAwaiting:
		if !prefs.NotifyOnAwaiting {
			return
		}
		n.fire(ch.Session, "awaiting", awaitingBody(ch.Session))
	case session.StatusIdle:
		if !prefs.NotifyOnIdle {
			return
		}
		n.fire(ch.Session, "idle", "finished responding")
	}
}

func (n *Notifier) fire(s *session.Session, kind, body string) {
	n.broadcaster.BroadcastNotification(hub.NotificationPayload{
		SessionID: s.ID,
		Kind:      kind,
		Title:     title(s),
		Body:      body,
		FiredAt:   n.now().UTC().Format(time.RFC3339),
	})
}

func title(s *session.Session) string {
	if s.Title != "" {
		return s.Title
	}
	if s.Project != "" {
		return s.Project
	}
	return s.ID
}

func awaitingBody(s *session.Session) string {
	if s.LastToolName != "" {
		return fmt.Sprintf("%s awaiting approval", s.LastToolName)
	}
	return "awaiting approval"
}
