// Package handoff watches each observed project for the handoff artifact, a
// file a session writes when the user serialises its state, and surfaces the
// moment it appears. The artifact's relative path is configuration; this
// package treats it as opaque.
package handoff

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// pollInterval is the fallback scan rate when inotify-style watches
	// cannot be established (and a safety net when they can: events on some
	// filesystems are lossy).
	pollInterval = 5 * time.Second
)

// NotifyFunc receives one ready artifact. Wired to the hub's
// handoff_ready broadcast.
type NotifyFunc func(sessionID, path string)

// Watcher runs one filesystem watch per observed session.
type Watcher struct {
	relPath  string
	debounce time.Duration
	notify   NotifyFunc

	mu      sync.Mutex
	watches map[string]context.CancelFunc
}

func NewWatcher(relPath string, debounce time.Duration, notify NotifyFunc) *Watcher {
	if debounce < 2*time.Second {
		debounce = 2 * time.Second
	}
	return &Watcher{
		relPath:  relPath,
		debounce: debounce,
		notify:   notify,
		watches:  make(map[string]context.CancelFunc),
	}
}

// Watch starts (or restarts) the watch for one session's project. No-op when
// the project path is empty.
func (w *Watcher) Watch(sessionID, projectPath string) {
	if projectPath == "" || sessionID == "" {
		return
	}
	target := filepath.Join(projectPath, w.relPath)

	w.mu.Lock()
	if cancel, ok := w.watches[sessionID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.watches[sessionID] = cancel
	w.mu.Unlock()

	go w.run(ctx, sessionID, target)
}

// Stop ends the watch for one session and releases its OS resources.
func (w *Watcher) Stop(sessionID string) {
	w.mu.Lock()
	cancel, ok := w.watches[sessionID]
	delete(w.watches, sessionID)
	w.mu.Unlock()
	if ok {
		cancel()
	}
}

// StopAll ends every watch.
func (w *Watcher) StopAll() {
	w.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(w.watches))
	for _, c := range w.watches {
		cancels = append(cancels, c)
	}
	w.watches = make(map[string]context.CancelFunc)
	w.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// run is one session's watch loop. It combines fsnotify events on the
// deepest existing ancestor of the target with a low-rate poll, so a watch
// that cannot be established (or silently loses events) still fires, just
// later.
func (w *Watcher) run(ctx context.Context, sessionID, target string) {
	state := &targetState{target: target, debounce: w.debounce}
	state.prime()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("[handoff] fsnotify unavailable, polling only", "error", err)
	} else {
		defer fsw.Close()
	}

	watched := ""
	reaim := func() {
		if fsw == nil {
			return
		}
		dir := deepestExistingAncestor(target)
		if dir == watched {
			return
		}
		if watched != "" {
			fsw.Remove(watched)
		}
		if err := fsw.Add(dir); err != nil {
			// Transient FS error: the poll ticker keeps covering, and the
			// next tick retries the watch.
			slog.Warn("[handoff] watch failed, retrying", "dir", dir, "error", err)
			watched = ""
			return
		}
		watched = dir
	}
	reaim()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	var errs chan error
	if fsw != nil {
		events = fsw.Events
		errs = fsw.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaim()
			w.check(state, sessionID)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// Directory births move the watch closer to the target; writes
			// to the target itself are checked directly.
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				reaim()
				w.check(state, sessionID)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("[handoff] watch error", "error", err)
		}
	}
}

// check fires the notification when the target newly exists or changed,
// outside the debounce window.
func (w *Watcher) check(state *targetState, sessionID string) {
	if !state.changed() {
		return
	}
	slog.Info("[handoff] artifact ready", "session_id", sessionID, "path", state.target)
	w.notify(sessionID, state.target)
}

// targetState tracks the artifact's last observed mtime and the debounce
// window. Used by one goroutine only.
type targetState struct {
	target   string
	debounce time.Duration

	known     bool
	mtime     time.Time
	lastFired time.Time
}

// prime records the pre-existing state so an artifact already on disk does
// not fire at startup; only appearances and modifications after the watch
// starts count.
func (s *targetState) prime() {
	if info, err := os.Stat(s.target); err == nil {
		s.known = true
		s.mtime = info.ModTime()
	}
}

// changed reports whether the artifact newly appeared or was modified, and
// arms the debounce window when it did.
func (s *targetState) changed() bool {
	info, err := os.Stat(s.target)
	if err != nil {
		s.known = false
		return false
	}
	if s.known && info.ModTime().Equal(s.mtime) {
		return false
	}
	s.known = true
	s.mtime = info.ModTime()

	now := time.Now()
	if now.Sub(s.lastFired) < s.debounce {
		return false // coalesced into the previous firing
	}
	s.lastFired = now
	return true
}

// deepestExistingAncestor walks from the target's directory upward to the
// first path that exists, which is where the watch must sit until deeper
// directories are created.
func deepestExistingAncestor(target string) string {
	dir := filepath.Dir(target)
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
