package router

import (
	"context"

	"github.com/jacques-sh/jacques/internal/hub"
	"github.com/jacques-sh/jacques/internal/launcher"
	"github.com/jacques-sh/jacques/internal/settings"
)

// LaunchResult reports launch_session.
type LaunchResult struct {
	Result
	Method string `json:"method,omitempty"`
}

func (r *Router) handleLaunchSession(ctx context.Context, reply replySender, req hub.Request) {
	var p struct {
		CWD               string `json:"cwd"`
		PreferredTerminal string `json:"preferred_terminal,omitempty"`
		SkipPermissions   bool   `json:"dangerously_skip_permissions,omitempty"`
	}
	if err := decode(req, &p); err != nil {
		r.reply(ctx, reply, req, LaunchResult{Result: errResult(req, err)})
		return
	}

	method, err := r.deps.Launcher.Launch(ctx, launcher.Options{
		CWD:               p.CWD,
		PreferredTerminal: p.PreferredTerminal,
		SkipPermissions:   p.SkipPermissions,
	})
	if err != nil {
		r.reply(ctx, reply, req, LaunchResult{Result: errResult(req, err)})
		return
	}
	r.reply(ctx, reply, req, LaunchResult{Result: okResult(req), Method: method})
}

// AutocompactResult reports toggle_autocompact. Warning is set when the
// settings file was corrupt and got rewritten.
type AutocompactResult struct {
	Result
	Enabled bool   `json:"enabled"`
	Warning string `json:"warning,omitempty"`
}

func (r *Router) handleToggleAutocompact(ctx context.Context, reply replySender, req hub.Request) {
	enabled, warning, err := r.deps.Autocompact.Toggle()
	if err != nil {
		r.reply(ctx, reply, req, AutocompactResult{Result: errResult(req, err)})
		return
	}

	// Stamp the new value onto every session (each emits a session_update)
	// and tell all clients about the flip.
	r.deps.Registry.SetAutocompact(enabled)
	r.deps.Broadcasts.BroadcastAutocompactToggled(enabled, warning)

	r.reply(ctx, reply, req, AutocompactResult{Result: okResult(req), Enabled: enabled, Warning: warning})
}

// NotificationSettingsResult echoes the persisted preferences.
type NotificationSettingsResult struct {
	Result
	Settings settings.NotificationSettings `json:"settings"`
}

func (r *Router) handleUpdateNotificationSettings(ctx context.Context, reply replySender, req hub.Request) {
	var patch settings.NotificationPatch
	if err := decode(req, &patch); err != nil {
		r.reply(ctx, reply, req, NotificationSettingsResult{Result: errResult(req, err)})
		return
	}

	updated, err := r.deps.Notifications.Update(patch)
	if err != nil {
		r.reply(ctx, reply, req, NotificationSettingsResult{Result: errResult(req, err)})
		return
	}
	r.reply(ctx, reply, req, NotificationSettingsResult{Result: okResult(req), Settings: updated})
}
