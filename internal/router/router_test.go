package router

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jacques-sh/jacques/internal/hub"
	"github.com/jacques-sh/jacques/internal/launcher"
	"github.com/jacques-sh/jacques/internal/layout"
	"github.com/jacques-sh/jacques/internal/session"
	"github.com/jacques-sh/jacques/internal/settings"
	"github.com/jacques-sh/jacques/internal/tilestate"
	"github.com/jacques-sh/jacques/internal/winctl"
	"github.com/jacques-sh/jacques/internal/worktree"
)

type positionCall struct {
	key  string
	rect layout.Rect
}

// fakeAdapter implements the mandatory capability set only.
type fakeAdapter struct {
	mu        sync.Mutex
	displays  []winctl.Display
	positions []positionCall
	activated []string
	fail      map[string]error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		displays: []winctl.Display{{
			ID:        "d1",
			IsPrimary: true,
			Bounds:    layout.Rect{W: 1920, H: 1080},
			WorkArea:  layout.Rect{Y: 40, W: 1920, H: 1040},
		}},
		fail: make(map[string]error),
	}
}

func (a *fakeAdapter) EnumerateDisplays(context.Context) ([]winctl.Display, error) {
	return a.displays, nil
}

func (a *fakeAdapter) PositionWindow(_ context.Context, key string, r layout.Rect) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err, ok := a.fail[key]; ok {
		return err
	}
	a.positions = append(a.positions, positionCall{key: key, rect: r})
	return nil
}

func (a *fakeAdapter) Activate(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err, ok := a.fail[key]; ok {
		return err
	}
	a.activated = append(a.activated, key)
	return nil
}

// staleDisplayAdapter hides one display until the cache is invalidated,
// mimicking a monitor attached within the enumeration cache TTL.
type staleDisplayAdapter struct {
	*fakeAdapter
	hidden      winctl.Display
	invalidated bool
}

func (a *staleDisplayAdapter) InvalidateDisplays() {
	a.invalidated = true
}

func (a *staleDisplayAdapter) EnumerateDisplays(ctx context.Context) ([]winctl.Display, error) {
	if a.invalidated {
		return append(a.fakeAdapter.displays, a.hidden), nil
	}
	return a.fakeAdapter.EnumerateDisplays(ctx)
}

// fullAdapter adds the optional bounds and browser capabilities.
type fullAdapter struct {
	*fakeAdapter
	bounds       map[string]layout.Rect
	browserRects []layout.Rect
}

func newFullAdapter() *fullAdapter {
	return &fullAdapter{
		fakeAdapter: newFakeAdapter(),
		bounds:      make(map[string]layout.Rect),
	}
}

func (a *fullAdapter) GetWindowBounds(_ context.Context, key string) (layout.Rect, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err, ok := a.fail[key]; ok {
		return layout.Rect{}, err
	}
	r, ok := a.bounds[key]
	if !ok {
		return layout.Rect{}, fmt.Errorf("%w: %s", winctl.ErrNoWindow, key)
	}
	return r, nil
}

func (a *fullAdapter) PositionBrowserWindow(_ context.Context, r layout.Rect) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.browserRects = append(a.browserRects, r)
	return nil
}

type launchCall struct {
	cwd    string
	bounds *layout.Rect
	skip   bool
}

type fakeLauncher struct {
	mu     sync.Mutex
	calls  []launchCall
	method string
	err    error
}

func (l *fakeLauncher) Launch(_ context.Context, opts launcher.Options) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, launchCall{cwd: opts.CWD, bounds: opts.Bounds, skip: opts.SkipPermissions})
	if l.err != nil {
		return "", l.err
	}
	if l.method == "" {
		return "iterm", nil
	}
	return l.method, nil
}

type fakeWorktrees struct {
	created []string
	removed []string
	list    []worktree.Info
	err     error
}

func (w *fakeWorktrees) Create(_ context.Context, repoRoot, name, base string) (worktree.Info, error) {
	if w.err != nil {
		return worktree.Info{}, w.err
	}
	w.created = append(w.created, name)
	return worktree.Info{Path: repoRoot + "-" + name, Branch: name}, nil
}

func (w *fakeWorktrees) List(context.Context, string) ([]worktree.Info, error) {
	return w.list, w.err
}

func (w *fakeWorktrees) Remove(_ context.Context, _, path string, _ bool) error {
	if w.err != nil {
		return w.err
	}
	w.removed = append(w.removed, path)
	return nil
}

type fakeBroadcasts struct {
	toggles []bool
}

func (b *fakeBroadcasts) BroadcastAutocompactToggled(enabled bool, _ string) {
	b.toggles = append(b.toggles, enabled)
}

// replyRecorder captures the single result each request must produce.
type replyRecorder struct {
	mu       sync.Mutex
	messages []recordedReply
}

type recordedReply struct {
	msgType string
	payload interface{}
}

func (r *replyRecorder) Send(msgType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, recordedReply{msgType: msgType, payload: payload})
}

func (r *replyRecorder) only(t *testing.T, wantType string) interface{} {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) != 1 {
		t.Fatalf("got %d replies, want exactly 1: %+v", len(r.messages), r.messages)
	}
	if r.messages[0].msgType != wantType {
		t.Fatalf("reply type = %q, want %q", r.messages[0].msgType, wantType)
	}
	return r.messages[0].payload
}

func (r *replyRecorder) none(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) != 0 {
		t.Fatalf("got %d replies, want none: %+v", len(r.messages), r.messages)
	}
}

type testRig struct {
	router    *Router
	registry  *session.Registry
	tiles     *tilestate.Manager
	launcher  *fakeLauncher
	worktrees *fakeWorktrees
	casts     *fakeBroadcasts
}

func newTestRig(t *testing.T, adapter winctl.Adapter) *testRig {
	t.Helper()
	rig := &testRig{
		registry:  session.NewRegistry(),
		tiles:     tilestate.NewManager(),
		launcher:  &fakeLauncher{},
		worktrees: &fakeWorktrees{},
		casts:     &fakeBroadcasts{},
	}
	dir := t.TempDir()
	rig.router = New(Deps{
		Registry:      rig.registry,
		Adapter:       adapter,
		Tiles:         rig.tiles,
		Launcher:      rig.launcher,
		Worktrees:     rig.worktrees,
		Autocompact:   settings.NewAutocompactStore(filepath.Join(dir, "settings.json")),
		Notifications: settings.NewNotificationStore(filepath.Join(dir, "notifications.json")),
		Broadcasts:    rig.casts,
	})
	rig.router.sleep = func(time.Duration) {}
	return rig
}

func (rig *testRig) addSession(t *testing.T, id, terminalKey string) {
	t.Helper()
	if _, err := rig.registry.Ingest(session.Event{
		Kind:        session.KindSessionStart,
		SessionID:   id,
		TerminalKey: terminalKey,
	}); err != nil {
		t.Fatal(err)
	}
}

func request(t *testing.T, reqType, requestID string, payload interface{}) hub.Request {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return hub.Request{Type: reqType, RequestID: requestID, Payload: data}
}

func TestUnknownRequestType(t *testing.T) {
	rig := newTestRig(t, newFakeAdapter())
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply, hub.Request{Type: "frobnicate", RequestID: "r1"})

	res := reply.only(t, "frobnicate_result").(Result)
	if res.Success || res.Error == "" || res.RequestID != "r1" {
		t.Errorf("result = %+v", res)
	}
}

func TestResolveDisplayRefreshesStaleEnumeration(t *testing.T) {
	adapter := &staleDisplayAdapter{
		fakeAdapter: newFakeAdapter(),
		hidden: winctl.Display{
			ID:       "d2",
			Bounds:   layout.Rect{X: 1920, W: 1920, H: 1080},
			WorkArea: layout.Rect{X: 1920, W: 1920, H: 1080},
		},
	}
	rig := newTestRig(t, adapter)

	d, err := rig.router.resolveDisplay(context.Background(), "d2")
	if err != nil {
		t.Fatalf("resolveDisplay: %v", err)
	}
	if d.ID != "d2" {
		t.Errorf("display = %+v, want d2", d)
	}
	if !adapter.invalidated {
		t.Error("stale enumeration was not invalidated before the retry")
	}

	if _, err := rig.router.resolveDisplay(context.Background(), "d9"); err == nil {
		t.Error("genuinely unknown display resolved")
	}
}

func TestSelectSessionSendsNoResult(t *testing.T) {
	rig := newTestRig(t, newFakeAdapter())
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "select_session", "r1", map[string]string{"session_id": "s1"}))

	reply.none(t)
	if got := rig.registry.FocusedID(); got != "s1" {
		t.Errorf("focus = %q, want s1", got)
	}
}

func TestFocusTerminal(t *testing.T) {
	adapter := newFakeAdapter()
	rig := newTestRig(t, adapter)
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "focus_terminal", "r1", map[string]string{"session_id": "s1"}))

	res := reply.only(t, "focus_terminal_result").(FocusResult)
	if !res.Success || res.Method != "activate" {
		t.Errorf("result = %+v", res)
	}
	if len(adapter.activated) != 1 || adapter.activated[0] != "TTY:/dev/ttys001" {
		t.Errorf("activated = %v", adapter.activated)
	}
	if rig.registry.FocusedID() != "s1" {
		t.Error("activation did not move the focus")
	}
}

func TestFocusTerminalUnknownSession(t *testing.T) {
	rig := newTestRig(t, newFakeAdapter())
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "focus_terminal", "r1", map[string]string{"session_id": "ghost"}))

	res := reply.only(t, "focus_terminal_result").(FocusResult)
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestFocusTerminalNoWindowClass(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.fail["TTY:/dev/ttys001"] = fmt.Errorf("%w: gone", winctl.ErrNoWindow)
	rig := newTestRig(t, adapter)
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "focus_terminal", "r1", map[string]string{"session_id": "s1"}))

	res := reply.only(t, "focus_terminal_result").(FocusResult)
	if res.Success || res.ErrorClass != "no_window" {
		t.Errorf("result = %+v", res)
	}
}

func TestTileWindows(t *testing.T) {
	adapter := newFakeAdapter()
	rig := newTestRig(t, adapter)
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	rig.addSession(t, "s2", "TTY:/dev/ttys002")
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "tile_windows", "r1", map[string]interface{}{"session_ids": []string{"s1", "s2"}}))

	res := reply.only(t, "tile_windows_result").(TileResult)
	if !res.Success || res.Positioned != 2 || res.Total != 2 {
		t.Fatalf("result = %+v", res)
	}

	workArea := layout.Rect{Y: 40, W: 1920, H: 1040}
	want := layout.CalculateAllSlots(workArea, 2)
	if adapter.positions[0].rect != want[0].Rect || adapter.positions[1].rect != want[1].Rect {
		t.Errorf("positions = %+v, want %+v", adapter.positions, want)
	}

	state, ok := rig.tiles.Get("d1")
	if !ok || len(state.Slots) != 2 {
		t.Fatalf("tile state = %+v", state)
	}
	if state.Slots[0].SessionID != "s1" || state.Slots[1].SessionID != "s2" {
		t.Errorf("slot order = %+v", state.Slots)
	}
}

func TestTileWindowsLayoutHint(t *testing.T) {
	adapter := newFakeAdapter()
	rig := newTestRig(t, adapter)
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	rig.addSession(t, "s2", "TTY:/dev/ttys002")
	reply := &replyRecorder{}

	// Two windows stacked vertically instead of the default side-by-side.
	rig.router.dispatch(context.Background(), reply,
		request(t, "tile_windows", "r1", map[string]interface{}{
			"session_ids": []string{"s1", "s2"},
			"layout":      []int{1, 1},
		}))

	res := reply.only(t, "tile_windows_result").(TileResult)
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	workArea := layout.Rect{Y: 40, W: 1920, H: 1040}
	want := layout.CalculateSlotsForGrid(workArea, []int{1, 1})
	if adapter.positions[0].rect != want[0].Rect || adapter.positions[1].rect != want[1].Rect {
		t.Errorf("positions = %+v, want %+v", adapter.positions, want)
	}
}

func TestTileWindowsPartialFailure(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.fail["TTY:/dev/ttys002"] = fmt.Errorf("%w: closed", winctl.ErrNoWindow)
	rig := newTestRig(t, adapter)
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	rig.addSession(t, "s2", "TTY:/dev/ttys002")
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "tile_windows", "r1", map[string]interface{}{"session_ids": []string{"s1", "s2"}}))

	res := reply.only(t, "tile_windows_result").(TileResult)
	if res.Success {
		t.Error("partial tile reported as full success")
	}
	if res.Positioned != 1 || res.Total != 2 || len(res.Errors) != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.Errors[0].Class != "no_window" {
		t.Errorf("error class = %q", res.Errors[0].Class)
	}
	if _, ok := rig.tiles.Get("d1"); ok {
		t.Error("partial tile must not record tile state")
	}
}

func TestMaximizeWindow(t *testing.T) {
	adapter := newFakeAdapter()
	rig := newTestRig(t, adapter)
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "maximize_window", "r1", map[string]string{"session_id": "s1"}))

	res := reply.only(t, "maximize_window_result").(Result)
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	want := layout.Rect{Y: 40, W: 1920, H: 1040}
	if adapter.positions[0].rect != want {
		t.Errorf("positioned to %+v, want work area %+v", adapter.positions[0].rect, want)
	}
}

func TestPositionBrowserLayout(t *testing.T) {
	adapter := newFullAdapter()
	rig := newTestRig(t, adapter)
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	rig.addSession(t, "s2", "TTY:/dev/ttys002")
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "position_browser_layout", "r1", map[string]interface{}{
			"session_ids": []string{"s1", "s2"},
			"layout":      "browser-two-terminals",
		}))

	res := reply.only(t, "position_browser_layout_result").(TileResult)
	if !res.Success || res.Positioned != 3 || res.Total != 3 {
		t.Fatalf("result = %+v", res)
	}

	workArea := layout.Rect{Y: 40, W: 1920, H: 1040}
	browserW := workArea.W * 3 / 5
	if len(adapter.browserRects) != 1 || adapter.browserRects[0].W != browserW {
		t.Errorf("browser rects = %+v, want width %d", adapter.browserRects, browserW)
	}
	// Terminals split the right column's height between them.
	if adapter.positions[0].rect.X != workArea.X+browserW {
		t.Errorf("first terminal at x=%d, want %d", adapter.positions[0].rect.X, workArea.X+browserW)
	}
	if adapter.positions[0].rect.H+adapter.positions[1].rect.H != workArea.H {
		t.Errorf("terminal heights %d+%d do not cover the work area",
			adapter.positions[0].rect.H, adapter.positions[1].rect.H)
	}
}

func TestPositionBrowserLayoutUnsupported(t *testing.T) {
	rig := newTestRig(t, newFakeAdapter())
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "position_browser_layout", "r1", map[string]interface{}{
			"session_ids": []string{"s1"},
			"layout":      "browser-terminal",
		}))

	res := reply.only(t, "position_browser_layout_result").(TileResult)
	if res.Success || res.ErrorClass != "unsupported" {
		t.Errorf("result = %+v", res)
	}
}

func TestCreateWorktreeChainsIntoSmartAdd(t *testing.T) {
	rig := newTestRig(t, newFakeAdapter())
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "create_worktree", "r1", map[string]interface{}{
			"repo_root": "/home/u/proj",
			"name":      "fix",
		}))

	res := reply.only(t, "create_worktree_result").(WorktreeResult)
	if !res.Success || res.Path != "/home/u/proj-fix" || res.Branch != "fix" {
		t.Fatalf("result = %+v", res)
	}
	if res.SmartAdd == nil || !res.SmartAdd.Success || !res.SmartAdd.UsedFreeSpace {
		t.Fatalf("smart add = %+v", res.SmartAdd)
	}
	if len(rig.launcher.calls) != 1 || rig.launcher.calls[0].cwd != "/home/u/proj-fix" {
		t.Errorf("launcher calls = %+v", rig.launcher.calls)
	}
}

func TestCreateWorktreeWithoutLaunch(t *testing.T) {
	rig := newTestRig(t, newFakeAdapter())
	reply := &replyRecorder{}
	noLaunch := false

	rig.router.dispatch(context.Background(), reply,
		request(t, "create_worktree", "r1", map[string]interface{}{
			"repo_root":      "/home/u/proj",
			"name":           "fix",
			"launch_session": noLaunch,
		}))

	res := reply.only(t, "create_worktree_result").(WorktreeResult)
	if !res.Success || res.SmartAdd != nil {
		t.Errorf("result = %+v", res)
	}
	if len(rig.launcher.calls) != 0 {
		t.Errorf("launcher called despite launch_session=false: %+v", rig.launcher.calls)
	}
}

func TestListAndRemoveWorktrees(t *testing.T) {
	rig := newTestRig(t, newFakeAdapter())
	rig.worktrees.list = []worktree.Info{{Path: "/home/u/proj", Branch: "main"}}
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "list_worktrees", "r1", map[string]string{"repo_root": "/home/u/proj"}))
	res := reply.only(t, "list_worktrees_result").(WorktreeListResult)
	if !res.Success || len(res.Worktrees) != 1 {
		t.Fatalf("result = %+v", res)
	}

	reply = &replyRecorder{}
	rig.router.dispatch(context.Background(), reply,
		request(t, "remove_worktree", "r2", map[string]interface{}{
			"repo_root": "/home/u/proj",
			"path":      "/home/u/proj-fix",
		}))
	if rres := reply.only(t, "remove_worktree_result").(Result); !rres.Success {
		t.Fatalf("result = %+v", rres)
	}
	if len(rig.worktrees.removed) != 1 {
		t.Errorf("removed = %v", rig.worktrees.removed)
	}
}

func TestLaunchSession(t *testing.T) {
	rig := newTestRig(t, newFakeAdapter())
	rig.launcher.method = "wt"
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "launch_session", "r1", map[string]interface{}{
			"cwd":                          "/home/u/proj",
			"dangerously_skip_permissions": true,
		}))

	res := reply.only(t, "launch_session_result").(LaunchResult)
	if !res.Success || res.Method != "wt" {
		t.Fatalf("result = %+v", res)
	}
	if !rig.launcher.calls[0].skip {
		t.Error("skip-permissions flag not forwarded")
	}
}

func TestToggleAutocompact(t *testing.T) {
	rig := newTestRig(t, newFakeAdapter())
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply, hub.Request{Type: "toggle_autocompact", RequestID: "r1"})

	res := reply.only(t, "toggle_autocompact_result").(AutocompactResult)
	if !res.Success || res.Enabled {
		t.Fatalf("result = %+v, want toggle from the true default to false", res)
	}
	if len(rig.casts.toggles) != 1 || rig.casts.toggles[0] {
		t.Errorf("broadcasts = %v", rig.casts.toggles)
	}
	s, _ := rig.registry.Get("s1")
	if s.Autocompact == nil || s.Autocompact.Enabled {
		t.Errorf("session autocompact = %+v, want disabled", s.Autocompact)
	}
}

func TestUpdateNotificationSettings(t *testing.T) {
	rig := newTestRig(t, newFakeAdapter())
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "update_notification_settings", "r1", map[string]bool{"notify_on_idle": true}))

	res := reply.only(t, "update_notification_settings_result").(NotificationSettingsResult)
	if !res.Success || !res.Settings.NotifyOnIdle || !res.Settings.Enabled {
		t.Fatalf("result = %+v", res)
	}
}

func TestDisconnectedClientGetsNoResult(t *testing.T) {
	rig := newTestRig(t, newFakeAdapter())
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	reply := &replyRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rig.router.dispatch(ctx, reply,
		request(t, "focus_terminal", "r1", map[string]string{"session_id": "s1"}))

	reply.none(t)
}
