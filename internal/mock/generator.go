// Package mock feeds the registry scripted session activity so the UI can be
// developed without a real AI-coding session on the machine. Enabled by the
// -mock flag; never active in normal operation.
package mock

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jacques-sh/jacques/internal/session"
)

const tickInterval = 2 * time.Second

var commonTools = []string{"Read", "Write", "Edit", "Bash", "Grep", "Glob", "Task"}

// mockSession is one scripted session: a pattern name plus the cursor state
// the pattern advances.
type mockSession struct {
	id          string
	title       string
	project     string
	cwd         string
	terminalKey string
	pattern     string
	tools       []string

	toolIdx int
	tokens  int
	window  int
	perTick int
	inTool  bool
	ended   bool
}

// Generator replays scripted activity into the registry through the same
// event kinds the ingress socket delivers.
type Generator struct {
	registry *session.Registry
	sessions []*mockSession
	rand     *rand.Rand
}

func NewGenerator(registry *session.Registry) *Generator {
	return &Generator{
		registry: registry,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start registers the scripted sessions and begins ticking until ctx ends.
func (g *Generator) Start(ctx context.Context) {
	g.sessions = []*mockSession{
		{
			id: "mock-refactor", title: "refactor storage layer", project: "myproject",
			cwd: "/home/user/myproject", terminalKey: "TTY:/dev/ttys001",
			pattern: "steady", tools: []string{"Read", "Grep", "Edit", "Write", "Bash"},
			window: 200000, perTick: 2400,
		},
		{
			id: "mock-tests", title: "fix failing tests", project: "webapp",
			cwd: "/home/user/webapp", terminalKey: "TTY:/dev/ttys002",
			pattern: "burst", tools: []string{"Bash", "Read", "Edit", "Bash"},
			window: 200000, perTick: 5200,
		},
		{
			id: "mock-deploy", title: "deployment scripts", project: "infra",
			cwd: "/home/user/infra", terminalKey: "TTY:/dev/ttys003",
			pattern: "awaiting", tools: []string{"Bash", "Write", "Bash"},
			window: 200000, perTick: 1100,
		},
		{
			id: "mock-review", title: "review api changes", project: "api-server",
			cwd: "/home/user/api-server", terminalKey: "TTY:/dev/ttys004",
			pattern: "shortlived", tools: []string{"Read", "Grep", "Read"},
			window: 200000, perTick: 900,
		},
	}

	for _, ms := range g.sessions {
		g.ingest(session.Event{
			Kind:        session.KindSessionStart,
			SessionID:   ms.id,
			Title:       ms.title,
			Project:     ms.project,
			CWD:         ms.cwd,
			TerminalKey: ms.terminalKey,
			Terminal:    "mock",
		})
	}
	slog.Info("[mock] generator started", "sessions", len(g.sessions))

	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			g.step(tick)
		}
	}
}

// step advances every live scripted session by one tick.
func (g *Generator) step(tick int) {
	for _, ms := range g.sessions {
		if ms.ended {
			continue
		}
		switch ms.pattern {
		case "steady":
			g.advanceSteady(ms, tick)
		case "burst":
			g.advanceBurst(ms, tick)
		case "awaiting":
			g.advanceAwaiting(ms, tick)
		case "shortlived":
			g.advanceShortlived(ms, tick)
		}
	}
}

// advanceSteady alternates tool calls with responses at an even pace.
func (g *Generator) advanceSteady(ms *mockSession, tick int) {
	switch {
	case ms.inTool:
		g.toolEnd(ms)
	case tick%3 == 0:
		g.toolStart(ms)
	default:
		g.respond(ms)
	}
}

// advanceBurst runs tight tool loops, then rests idle between bursts.
func (g *Generator) advanceBurst(ms *mockSession, tick int) {
	if tick%8 < 5 {
		if ms.inTool {
			g.toolEnd(ms)
		} else {
			g.toolStart(ms)
		}
		return
	}
	if ms.inTool {
		g.toolEnd(ms)
		return
	}
	g.respond(ms)
}

// advanceAwaiting parks the session at an approval prompt for long
// stretches, the state the notification path cares about.
func (g *Generator) advanceAwaiting(ms *mockSession, tick int) {
	const cycle = 10
	switch tick % cycle {
	case 0:
		g.toolStart(ms)
	case 1:
		g.ingest(session.Event{
			Kind:      session.KindToolUseAwaiting,
			SessionID: ms.id,
			ToolName:  ms.currentTool(),
		})
	case 7:
		g.toolEnd(ms)
	case 8:
		g.respond(ms)
	}
}

// advanceShortlived works briefly, then ends, exercising removal.
func (g *Generator) advanceShortlived(ms *mockSession, tick int) {
	if tick >= 12 {
		if ms.inTool {
			g.toolEnd(ms)
		}
		g.ingest(session.Event{Kind: session.KindSessionEnd, SessionID: ms.id})
		ms.ended = true
		return
	}
	g.advanceSteady(ms, tick)
}

func (ms *mockSession) currentTool() string {
	if len(ms.tools) == 0 {
		return commonTools[0]
	}
	return ms.tools[ms.toolIdx%len(ms.tools)]
}

func (g *Generator) toolStart(ms *mockSession) {
	g.ingest(session.Event{
		Kind:      session.KindToolUseStart,
		SessionID: ms.id,
		ToolName:  ms.currentTool(),
	})
	ms.inTool = true
}

func (g *Generator) toolEnd(ms *mockSession) {
	g.ingest(session.Event{
		Kind:      session.KindToolUseEnd,
		SessionID: ms.id,
		ToolName:  ms.currentTool(),
	})
	ms.toolIdx++
	ms.inTool = false
}

func (g *Generator) respond(ms *mockSession) {
	ms.tokens += ms.perTick + g.rand.Intn(400)
	if ms.tokens > ms.window {
		ms.tokens = ms.window
	}
	g.ingest(session.Event{
		Kind:      session.KindResponseComplete,
		SessionID: ms.id,
		ContextMetrics: &session.ContextMetrics{
			InputTokens:   ms.tokens,
			OutputTokens:  ms.perTick / 4,
			ContextWindow: ms.window,
		},
	})
}

func (g *Generator) ingest(ev session.Event) {
	if _, err := g.registry.Ingest(ev); err != nil {
		slog.Warn("[mock] ingest", "event", ev.Kind, "session", ev.SessionID, "error", err)
	}
}
