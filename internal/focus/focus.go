// Package focus keeps the registry's focused session in step with whichever
// terminal window the OS reports as frontmost. It polls: window-focus change
// notifications are not portably available, and one probe per few hundred
// milliseconds is a single OS call.
package focus

import (
	"context"
	"log/slog"
	"time"

	"github.com/jacques-sh/jacques/internal/session"
	"github.com/jacques-sh/jacques/internal/termkey"
)

// Prober reports candidate terminal keys describing the frontmost terminal
// window, most specific first. Several candidates may describe one window:
// on macOS an iTerm window is known both by session id and by tty.
type Prober interface {
	FrontmostTerminal(ctx context.Context) ([]string, error)
}

// Watcher polls the prober and pushes focus changes into the registry, which
// broadcasts them. A failed probe is logged once per distinct error and the
// loop continues.
type Watcher struct {
	registry *session.Registry
	prober   Prober
	interval time.Duration

	lastErr string
}

func NewWatcher(registry *session.Registry, prober Prober, interval time.Duration) *Watcher {
	return &Watcher{
		registry: registry,
		prober:   prober,
		interval: interval,
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("[focus] watcher running", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

// pollOnce performs one probe-and-match cycle. Probing is skipped entirely
// while no sessions are registered.
func (w *Watcher) pollOnce(ctx context.Context) {
	if w.registry.Count() == 0 {
		return
	}

	candidates, err := w.prober.FrontmostTerminal(ctx)
	if err != nil {
		if err.Error() != w.lastErr {
			w.lastErr = err.Error()
			slog.Warn("[focus] probe failed", "error", err)
		}
		return
	}
	w.lastErr = ""

	id, ok := w.match(candidates)
	if !ok {
		// Frontmost window hosts no observed session; focus is left alone
		// rather than cleared, so switching to a browser keeps the last
		// terminal highlighted.
		return
	}
	if id == w.registry.FocusedID() {
		return
	}
	if changed, err := w.registry.SetFocus(id); err == nil && changed {
		slog.Debug("[focus] focus changed", "session_id", id)
	}
}

// match returns the first live session whose terminal key matches any
// candidate, in candidate order.
func (w *Watcher) match(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	sessions := w.registry.All()
	for _, cand := range candidates {
		for _, s := range sessions {
			if termkey.Equal(s.TerminalKey, cand) {
				return s.ID, true
			}
		}
	}
	return "", false
}
