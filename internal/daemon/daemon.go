// Package daemon assembles the coordinator: one registry at the centre, the
// ingress socket feeding it, the hub fanning it out, and the watchers and
// request router around them. Main builds a Daemon from config and calls Run.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/jacques-sh/jacques/internal/config"
	"github.com/jacques-sh/jacques/internal/focus"
	"github.com/jacques-sh/jacques/internal/handoff"
	"github.com/jacques-sh/jacques/internal/hub"
	"github.com/jacques-sh/jacques/internal/ingress"
	"github.com/jacques-sh/jacques/internal/launcher"
	"github.com/jacques-sh/jacques/internal/mock"
	"github.com/jacques-sh/jacques/internal/notify"
	"github.com/jacques-sh/jacques/internal/proc"
	"github.com/jacques-sh/jacques/internal/router"
	"github.com/jacques-sh/jacques/internal/session"
	"github.com/jacques-sh/jacques/internal/settings"
	"github.com/jacques-sh/jacques/internal/tilestate"
	"github.com/jacques-sh/jacques/internal/winctl"
	"github.com/jacques-sh/jacques/internal/worktree"
)

// shutdownGrace bounds how long shutdown waits for listeners and in-flight
// work to drain.
const shutdownGrace = 3 * time.Second

// Options tune daemon assembly beyond the config file.
type Options struct {
	// Mock runs the scripted session generator instead of waiting for real
	// ingress traffic (real traffic still works alongside it).
	Mock bool
}

// Daemon is the assembled coordinator.
type Daemon struct {
	cfg  *config.Config
	opts Options

	registry *session.Registry
	hub      *hub.Hub
	tiles    *tilestate.Manager
	notifier *notify.Notifier
	handoffs *handoff.Watcher
	focus    *focus.Watcher

	ingressSrv *ingress.Server
	hubSrv     *hub.Server

	lock *flock.Flock

	// watched tracks each session's handoff watch root so project updates
	// re-aim the watch only when the root actually changes.
	watchedMu sync.Mutex
	watched   map[string]string
}

// New wires every component. Nothing is started yet; Run does that.
func New(cfg *config.Config, opts Options) *Daemon {
	d := &Daemon{
		cfg:     cfg,
		opts:    opts,
		watched: make(map[string]string),
	}

	filter := &session.PrivacyFilter{
		MaskWorkingDirs:  cfg.Privacy.MaskWorkingDirs,
		MaskTerminalKeys: cfg.Privacy.MaskTerminalKeys,
		AllowedPaths:     cfg.Privacy.AllowedPaths,
		BlockedPaths:     cfg.Privacy.BlockedPaths,
	}

	d.registry = session.NewRegistry()
	d.hub = hub.New(d.registry, filter)
	d.tiles = tilestate.NewManager()

	notifStore := settings.NewNotificationStore(cfg.NotificationsPath())
	d.notifier = notify.New(notifStore, d.hub)
	d.handoffs = handoff.NewWatcher(cfg.Handoff.RelativePath, cfg.Handoff.Debounce, d.hub.BroadcastHandoffReady)
	d.registry.SetNotifier(d.onChange)

	r := router.New(router.Deps{
		Registry:      d.registry,
		Adapter:       winctl.New(),
		Tiles:         d.tiles,
		Launcher:      launcher.New(),
		Worktrees:     worktree.NewGit(),
		Autocompact:   settings.NewAutocompactStore(cfg.AutocompactPath()),
		Notifications: notifStore,
		Broadcasts:    d.hub,
	})
	d.hub.SetRequestHandler(r)

	d.ingressSrv = ingress.NewServer(ingressEndpoint(cfg), cfg.Ingress.MaxRecordBytes, d.handleEvent)
	d.hubSrv = hub.NewServer(d.hub, cfg.Server.Host, cfg.Server.Port)

	if prober := focus.NewProber(); prober != nil {
		d.focus = focus.NewWatcher(d.registry, prober, cfg.Focus.PollInterval)
	}

	d.lock = flock.New(cfg.LockPath())
	return d
}

// Hub exposes the hub for the log tee, which main wires before Run.
func (d *Daemon) Hub() *hub.Hub {
	return d.hub
}

func ingressEndpoint(cfg *config.Config) string {
	if runtime.GOOS == "windows" {
		return cfg.PipeName()
	}
	return cfg.SocketPath()
}

// Run starts everything and blocks until ctx is cancelled, then shuts down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(config.DefaultDir(), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another daemon instance holds %s", d.cfg.LockPath())
	}
	defer d.lock.Unlock()

	if err := d.startListeners(); err != nil {
		return err
	}

	reapCtx, stopReapers := context.WithCancel(context.Background())
	go d.registry.RunReapers(reapCtx, session.ReaperConfig{
		StaleInterval:   d.cfg.Registry.StaleCheckInterval,
		StaleThreshold:  d.cfg.Registry.StaleThreshold,
		ProcessInterval: d.cfg.Registry.ProcessCheckInterval,
		Alive:           proc.Alive,
	})
	if d.focus != nil {
		go d.focus.Run(reapCtx)
	}
	if d.opts.Mock {
		mock.NewGenerator(d.registry).Start(reapCtx)
	}

	slog.Info("[daemon] running", "pid", os.Getpid())
	<-ctx.Done()

	slog.Info("[daemon] shutting down")
	d.shutdown(stopReapers)
	return nil
}

// startListeners opens the ingress and hub endpoints concurrently; if either
// fails the other is unwound so a half-started daemon never lingers.
func (d *Daemon) startListeners() error {
	errs := make(chan error, 2)
	go func() { errs <- d.ingressSrv.Start() }()
	go func() { errs <- d.hubSrv.Start() }()

	var failed error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && failed == nil {
			failed = err
		}
	}
	if failed != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		d.ingressSrv.Shutdown(ctx)
		d.hubSrv.Shutdown(ctx)
		return failed
	}
	return nil
}

// shutdown stops listeners in parallel, then the timers and watchers, with a
// short grace for in-flight work.
func (d *Daemon) shutdown(stopReapers context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := d.ingressSrv.Shutdown(ctx); err != nil {
			slog.Warn("[daemon] ingress shutdown", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := d.hubSrv.Shutdown(ctx); err != nil {
			slog.Warn("[daemon] hub shutdown", "error", err)
		}
	}()
	wg.Wait()

	stopReapers()
	d.handoffs.StopAll()
}

// handleEvent is the ingress sink: registry first, then telemetry fan-out.
func (d *Daemon) handleEvent(ev session.Event) {
	if _, err := d.registry.Ingest(ev); err != nil {
		slog.Debug("[daemon] event not applied", "event", ev.Kind, "session", ev.SessionID, "error", err)
	}
	if ev.Telemetry() && len(ev.Raw) > 0 {
		d.hub.BroadcastTelemetry(ev.Kind, ev.Raw)
	}
}

// onChange is the registry notifier: broadcast, notification check, and the
// per-session side effects of arrivals and departures. Runs on the registry's
// commit path, so everything here is quick.
func (d *Daemon) onChange(ch session.Change) {
	d.hub.OnChange(ch)
	d.notifier.OnChange(ch)

	switch ch.Type {
	case session.ChangeAdded, session.ChangeUpdated:
		if ch.Session != nil {
			d.aimHandoffWatch(ch.SessionID, watchRoot(ch.Session))
		}
	case session.ChangeRemoved:
		d.tiles.RemoveSession(ch.SessionID)
		d.handoffs.Stop(ch.SessionID)
		d.watchedMu.Lock()
		delete(d.watched, ch.SessionID)
		d.watchedMu.Unlock()
	}
}

// aimHandoffWatch starts the session's artifact watch, restarting it only
// when the project root changes (session updates arrive constantly; watches
// must not churn).
func (d *Daemon) aimHandoffWatch(sessionID, root string) {
	if root == "" {
		return
	}
	d.watchedMu.Lock()
	prev := d.watched[sessionID]
	if prev == root {
		d.watchedMu.Unlock()
		return
	}
	d.watched[sessionID] = root
	d.watchedMu.Unlock()

	d.handoffs.Watch(sessionID, root)
}

// watchRoot picks the directory the handoff artifact lives under: the
// worktree when the session runs in one, else the repository, else the
// working directory.
func watchRoot(s *session.Session) string {
	switch {
	case s.GitWorktree != "":
		return s.GitWorktree
	case s.GitRepoRoot != "":
		return s.GitRepoRoot
	default:
		return s.CWD
	}
}
