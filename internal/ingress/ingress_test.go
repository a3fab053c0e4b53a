//go:build !windows

package ingress

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jacques-sh/jacques/internal/session"
)

// eventRecorder collects sink deliveries.
type eventRecorder struct {
	mu     sync.Mutex
	events []session.Event
}

func (r *eventRecorder) sink(ev session.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []session.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.Event, len(r.events))
	copy(out, r.events)
	return out
}

// waitFor polls until the recorder holds n events or the deadline passes.
func (r *eventRecorder) waitFor(t *testing.T, n int) []session.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := r.all(); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("recorder has %d events, want %d", len(r.all()), n)
	return nil
}

func startServer(t *testing.T, maxRecord int) (*Server, *eventRecorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "d.sock")
	rec := &eventRecorder{}
	srv := NewServer(path, maxRecord, rec.sink)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv, rec, path
}

func dialAndSend(t *testing.T, path string, lines ...string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	for _, line := range lines {
		if _, err := conn.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return conn
}

func TestServeConn_FIFOOrder(t *testing.T) {
	_, rec, path := startServer(t, 1<<20)

	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, `{"event":"tool_use_start","session_id":"s1","tool_name":"tool-%02d"}`+"\n", i)
	}
	conn := dialAndSend(t, path, b.String())
	defer conn.Close()

	events := rec.waitFor(t, 20)
	for i, ev := range events[:20] {
		want := fmt.Sprintf("tool-%02d", i)
		if ev.ToolName != want {
			t.Errorf("event %d tool = %q, want %q (order broken)", i, ev.ToolName, want)
		}
	}
}

func TestServeConn_MalformedRecordSkipped(t *testing.T) {
	_, rec, path := startServer(t, 1<<20)

	conn := dialAndSend(t, path,
		`{"event":"session_start","session_id":"s1"}`+"\n",
		"this is not json\n",
		`{"event":"missing"`+"\n",
		`{"no_event_field":true}`+"\n",
		`{"event":"session_end","session_id":"s1"}`+"\n",
	)
	defer conn.Close()

	events := rec.waitFor(t, 2)
	if events[0].Kind != session.KindSessionStart || events[1].Kind != session.KindSessionEnd {
		t.Errorf("events = %+v, want start then end with garbage skipped", events)
	}
}

func TestServeConn_OversizeRecordKeepsConnection(t *testing.T) {
	_, rec, path := startServer(t, 4096)

	huge := `{"event":"session_update","session_id":"s1","title":"` + strings.Repeat("x", 8192) + `"}` + "\n"
	conn := dialAndSend(t, path,
		huge,
		`{"event":"session_start","session_id":"after"}`+"\n",
	)
	defer conn.Close()

	events := rec.waitFor(t, 1)
	if events[0].SessionID != "after" {
		t.Errorf("surviving event = %+v, want the record after the oversized one", events[0])
	}
}

func TestServeConn_FinalRecordWithoutNewline(t *testing.T) {
	_, rec, path := startServer(t, 1<<20)

	conn := dialAndSend(t, path, `{"event":"session_start","session_id":"s1"}`)
	conn.Close() // EOF with an unterminated final record

	events := rec.waitFor(t, 1)
	if events[0].SessionID != "s1" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestServeConn_TelemetryCarriesRaw(t *testing.T) {
	_, rec, path := startServer(t, 1<<20)

	raw := `{"event":"claude_operation","session_id":"s1","op":"compact"}`
	conn := dialAndSend(t, path, raw+"\n")
	defer conn.Close()

	events := rec.waitFor(t, 1)
	if string(events[0].Raw) != raw {
		t.Errorf("raw = %s, want the verbatim record", events[0].Raw)
	}
}

func TestListen_ReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.sock")

	first := NewServer(path, 1<<20, func(session.Event) {})
	if err := first.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	// Simulate a crash: close the listener but leave the file behind is not
	// possible portably (close unlinks), so create a dead socket file.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	first.Shutdown(ctx)

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("plant socket: %v", err)
	}
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	ln.Close()

	second := NewServer(path, 1<<20, func(session.Event) {})
	if err := second.Start(); err != nil {
		t.Fatalf("Start over stale socket: %v", err)
	}
	second.Shutdown(ctx)
}

func TestListen_RefusesLiveDaemon(t *testing.T) {
	_, _, path := startServer(t, 1<<20)

	dup := NewServer(path, 1<<20, func(session.Event) {})
	if err := dup.Start(); err == nil {
		dup.Shutdown(context.Background())
		t.Fatal("second daemon bound the same socket")
	}
}

func TestConcurrentConnections(t *testing.T) {
	_, rec, path := startServer(t, 1<<20)

	const conns, perConn = 8, 10
	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn, err := net.Dial("unix", path)
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			defer conn.Close()
			for j := 0; j < perConn; j++ {
				line := fmt.Sprintf(`{"event":"session_update","session_id":"s%d","title":"t%d"}`+"\n", n, j)
				if _, err := conn.Write([]byte(line)); err != nil {
					t.Errorf("write: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	events := rec.waitFor(t, conns*perConn)

	// Per-connection order holds even though connections interleave.
	lastPerSession := make(map[string]string)
	for _, ev := range events {
		if last, ok := lastPerSession[ev.SessionID]; ok && ev.Title <= last {
			t.Fatalf("session %s saw %q after %q", ev.SessionID, ev.Title, last)
		}
		lastPerSession[ev.SessionID] = ev.Title
	}
}
