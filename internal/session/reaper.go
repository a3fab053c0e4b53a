package session

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jacques-sh/jacques/internal/termkey"
)

// ReaperConfig tunes the two removal sweeps.
type ReaperConfig struct {
	// StaleInterval is how often the stale sweep runs.
	StaleInterval time.Duration
	// StaleThreshold is how long a session may sit without activity (and
	// without transcript writes) before it is reaped.
	StaleThreshold time.Duration
	// ProcessInterval is how often hosting processes are verified.
	ProcessInterval time.Duration
	// Alive probes whether a pid refers to a running process.
	Alive func(pid int) bool
}

// RunReapers periodically sweeps stale and dead sessions until ctx is
// cancelled. Both sweeps go through Remove, so removals serialise with
// event ingestion.
func (r *Registry) RunReapers(ctx context.Context, cfg ReaperConfig) {
	staleTick := time.NewTicker(cfg.StaleInterval)
	defer staleTick.Stop()
	procTick := time.NewTicker(cfg.ProcessInterval)
	defer procTick.Stop()

	slog.Info("[registry] reapers running",
		"stale_interval", cfg.StaleInterval,
		"stale_threshold", cfg.StaleThreshold,
		"process_interval", cfg.ProcessInterval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-staleTick.C:
			r.SweepStale(cfg.StaleThreshold)
		case <-procTick.C:
			r.SweepDead(cfg.Alive)
		}
	}
}

// SweepStale removes every session whose last activity is older than
// threshold and whose transcript has not been written within the same
// window. A session without a consultable transcript is judged on activity
// alone. Returns the number removed.
func (r *Registry) SweepStale(threshold time.Duration) int {
	if threshold <= 0 {
		return 0
	}
	now := r.now()

	var victims []string
	for _, s := range r.All() {
		idle := now.Sub(s.LastActivity)
		if idle <= threshold {
			continue
		}
		if mtime, ok := transcriptMtime(s.TranscriptPath); ok && now.Sub(mtime) <= threshold {
			continue
		}
		slog.Info("[registry] reaping stale session",
			"session_id", s.ID, "idle", idle.Round(time.Second), "status", s.Status.String())
		victims = append(victims, s.ID)
	}

	for _, id := range victims {
		r.Remove(id)
	}
	return len(victims)
}

// SweepDead removes every session whose terminal key encodes a pid that no
// longer refers to a running process. Keys without a pid give no conclusion
// and are skipped. Returns the number removed.
func (r *Registry) SweepDead(alive func(pid int) bool) int {
	if alive == nil {
		return 0
	}

	var victims []string
	for _, s := range r.All() {
		pid, ok := termkey.PID(s.TerminalKey)
		if !ok {
			continue
		}
		if alive(pid) {
			continue
		}
		slog.Info("[registry] reaping dead session",
			"session_id", s.ID, "pid", pid, "terminal_key", s.TerminalKey)
		victims = append(victims, s.ID)
	}

	for _, id := range victims {
		r.Remove(id)
	}
	return len(victims)
}

// transcriptMtime stats the transcript, reporting false when the path is
// unset or the file cannot be read (a vanished transcript never keeps a
// session alive).
func transcriptMtime(path string) (time.Time, bool) {
	if path == "" {
		return time.Time{}, false
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
