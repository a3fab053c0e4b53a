package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/jacques-sh/jacques/internal/layout"
	"github.com/jacques-sh/jacques/internal/tilestate"
	"github.com/jacques-sh/jacques/internal/winctl"
)

var testWorkArea = layout.Rect{Y: 40, W: 1920, H: 1040}

// seedTiles records n sessions as tiled on d1, with live bounds matching the
// recorded slots when the adapter reads bounds.
func seedTiles(t *testing.T, rig *testRig, adapter *fullAdapter, n int) {
	t.Helper()
	tiled := make([]tilestate.Tiled, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%d", i+1)
		key := fmt.Sprintf("TTY:/dev/ttys%03d", i+1)
		rig.addSession(t, id, key)
		tiled[i] = tilestate.Tiled{SessionID: id, TerminalKey: key}
	}
	state := rig.tiles.BuildFromManualTile("d1", testWorkArea, tiled)
	if adapter != nil {
		for _, slot := range state.Slots {
			adapter.bounds[slot.TerminalKey] = slot.Rect
		}
	}
}

func TestSmartAddGrowsGrid(t *testing.T) {
	adapter := newFullAdapter()
	rig := newTestRig(t, adapter)
	seedTiles(t, rig, adapter, 2)
	rig.addSession(t, "s3", "TTY:/dev/ttys003")
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "smart_tile_add", "r1", map[string]string{"new_session_id": "s3"}))

	res := reply.only(t, "smart_tile_add_result").(SmartAddResult)
	if !res.Success || res.UsedFreeSpace {
		t.Fatalf("result = %+v", res)
	}
	if res.TotalTiled != 3 {
		t.Errorf("total_tiled = %d, want 3", res.TotalTiled)
	}
	// Growing 2 -> 3 in one row narrows both existing windows.
	if res.Repositioned != 2 {
		t.Errorf("repositioned = %d, want 2", res.Repositioned)
	}

	// The new window landed in the last slot of the 3-grid.
	want := layout.CalculateAllSlots(testWorkArea, 3)[2].Rect
	last := adapter.positions[len(adapter.positions)-1]
	if last.key != "TTY:/dev/ttys003" || last.rect != want {
		t.Errorf("new window placed %+v, want %+v", last, want)
	}

	state, ok := rig.tiles.Get("d1")
	if !ok || len(state.Slots) != 3 {
		t.Fatalf("tile state = %+v", state)
	}
	if state.Slots[2].SessionID != "s3" || state.Slots[2].TerminalKey != "TTY:/dev/ttys003" {
		t.Errorf("last slot = %+v, want s3 with its terminal key", state.Slots[2])
	}
	if state.Slots[0].SessionID != "s1" || state.Slots[1].SessionID != "s2" {
		t.Errorf("existing slots lost identity: %+v", state.Slots)
	}
}

func TestSmartAddLaunchReservesPendingSlot(t *testing.T) {
	adapter := newFullAdapter()
	rig := newTestRig(t, adapter)
	seedTiles(t, rig, adapter, 1)
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "smart_tile_add", "r1", map[string]interface{}{
			"launch_cwd":                   "/home/u/proj",
			"dangerously_skip_permissions": true,
		}))

	res := reply.only(t, "smart_tile_add_result").(SmartAddResult)
	if !res.Success || res.UsedFreeSpace || res.LaunchMethod != "iterm" {
		t.Fatalf("result = %+v", res)
	}

	call := rig.launcher.calls[0]
	want := layout.CalculateAllSlots(testWorkArea, 2)[1].Rect
	if call.bounds == nil || *call.bounds != want {
		t.Errorf("launch bounds = %+v, want %+v", call.bounds, want)
	}
	if !call.skip {
		t.Error("skip-permissions flag not forwarded")
	}
}

func TestSmartAddFreeSpaceWhenNoState(t *testing.T) {
	adapter := newFullAdapter()
	rig := newTestRig(t, adapter)
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "smart_tile_add", "r1", map[string]string{"launch_cwd": "/home/u/proj"}))

	res := reply.only(t, "smart_tile_add_result").(SmartAddResult)
	if !res.Success || !res.UsedFreeSpace {
		t.Fatalf("result = %+v", res)
	}
	if res.Repositioned != 0 || res.TotalTiled != 0 {
		t.Errorf("free-space path reported grid counts: %+v", res)
	}
}

func TestSmartAddFreeSpaceWhenStateDrifted(t *testing.T) {
	adapter := newFullAdapter()
	rig := newTestRig(t, adapter)
	seedTiles(t, rig, adapter, 2)
	// The user dragged s1's window far from its recorded slot.
	drifted := adapter.bounds["TTY:/dev/ttys001"]
	drifted.X += 300
	adapter.bounds["TTY:/dev/ttys001"] = drifted
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "smart_tile_add", "r1", map[string]string{"launch_cwd": "/home/u/proj"}))

	res := reply.only(t, "smart_tile_add_result").(SmartAddResult)
	if !res.Success || !res.UsedFreeSpace {
		t.Fatalf("drifted state should fall back to free space: %+v", res)
	}
	// Free space must not rewrite the recorded state.
	state, ok := rig.tiles.Get("d1")
	if !ok || len(state.Slots) != 2 {
		t.Errorf("tile state changed by free-space path: %+v", state)
	}
}

func TestSmartAddSessionValidationWithoutBoundsReader(t *testing.T) {
	adapter := newFakeAdapter()
	rig := newTestRig(t, adapter)
	seedTiles(t, rig, nil, 2)
	// s2 ended since the last tile; session validation must reject the state.
	rig.registry.Remove("s2")
	// Registry removal is wired to tile state in the daemon, not here, so
	// the stale slot survives for the validator to catch.
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "smart_tile_add", "r1", map[string]string{"launch_cwd": "/home/u/proj"}))

	res := reply.only(t, "smart_tile_add_result").(SmartAddResult)
	if !res.Success || !res.UsedFreeSpace {
		t.Fatalf("result = %+v", res)
	}
}

func TestSmartAddAtCapacityUsesFreeSpace(t *testing.T) {
	adapter := newFullAdapter()
	rig := newTestRig(t, adapter)
	seedTiles(t, rig, adapter, layout.MaxTiled)
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "smart_tile_add", "r1", map[string]string{"launch_cwd": "/home/u/proj"}))

	res := reply.only(t, "smart_tile_add_result").(SmartAddResult)
	if !res.Success || !res.UsedFreeSpace {
		t.Fatalf("full grid should use free space: %+v", res)
	}
	state, _ := rig.tiles.Get("d1")
	if len(state.Slots) != layout.MaxTiled {
		t.Errorf("full grid resized to %d slots", len(state.Slots))
	}
}

func TestSmartAddUnknownSessionFailsEarly(t *testing.T) {
	adapter := newFullAdapter()
	rig := newTestRig(t, adapter)
	seedTiles(t, rig, adapter, 2)
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "smart_tile_add", "r1", map[string]string{"new_session_id": "ghost"}))

	res := reply.only(t, "smart_tile_add_result").(SmartAddResult)
	if res.Success || res.Error == "" {
		t.Fatalf("result = %+v", res)
	}
	if len(adapter.positions) != 0 {
		t.Errorf("windows moved for an unknown session: %+v", adapter.positions)
	}
	state, _ := rig.tiles.Get("d1")
	if len(state.Slots) != 2 {
		t.Errorf("tile state rewritten for an unknown session: %+v", state.Slots)
	}
}

func TestSmartAddRequiresTarget(t *testing.T) {
	rig := newTestRig(t, newFakeAdapter())
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply, request(t, "smart_tile_add", "r1", map[string]string{}))

	res := reply.only(t, "smart_tile_add_result").(SmartAddResult)
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestSmartAddPrefersTiledDisplay(t *testing.T) {
	adapter := newFullAdapter()
	adapter.displays = append(adapter.displays, winctl.Display{
		ID:       "d2",
		Bounds:   layout.Rect{X: 1920, W: 1920, H: 1080},
		WorkArea: layout.Rect{X: 1920, W: 1920, H: 1080},
	})
	rig := newTestRig(t, adapter)

	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	state := rig.tiles.BuildFromManualTile("d2", adapter.displays[1].WorkArea, []tilestate.Tiled{
		{SessionID: "s1", TerminalKey: "TTY:/dev/ttys001"},
	})
	adapter.bounds["TTY:/dev/ttys001"] = state.Slots[0].Rect
	rig.addSession(t, "s2", "TTY:/dev/ttys002")
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "smart_tile_add", "r1", map[string]string{"new_session_id": "s2"}))

	res := reply.only(t, "smart_tile_add_result").(SmartAddResult)
	if !res.Success || res.UsedFreeSpace {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := rig.tiles.Get("d2"); !ok {
		t.Error("grid did not grow on the already-tiled display")
	}
	state2, _ := rig.tiles.Get("d2")
	if len(state2.Slots) != 2 {
		t.Errorf("d2 slots = %d, want 2", len(state2.Slots))
	}
}

func TestSmartAddMajorityDisplay(t *testing.T) {
	adapter := newFullAdapter()
	adapter.displays = append(adapter.displays, winctl.Display{
		ID:       "d2",
		Bounds:   layout.Rect{X: 1920, W: 1920, H: 1080},
		WorkArea: layout.Rect{X: 1920, W: 1920, H: 1080},
	})
	rig := newTestRig(t, adapter)

	// Two live terminals sit on d2, none on the primary. No tile state.
	rig.addSession(t, "s1", "TTY:/dev/ttys001")
	rig.addSession(t, "s2", "TTY:/dev/ttys002")
	adapter.bounds["TTY:/dev/ttys001"] = layout.Rect{X: 2000, Y: 100, W: 800, H: 600}
	adapter.bounds["TTY:/dev/ttys002"] = layout.Rect{X: 2900, Y: 100, W: 800, H: 600}
	reply := &replyRecorder{}

	rig.router.dispatch(context.Background(), reply,
		request(t, "smart_tile_add", "r1", map[string]string{"launch_cwd": "/home/u/proj"}))

	res := reply.only(t, "smart_tile_add_result").(SmartAddResult)
	if !res.Success || !res.UsedFreeSpace {
		t.Fatalf("result = %+v", res)
	}
	// The free-space target must lie on d2, where the terminals are.
	call := rig.launcher.calls[0]
	if call.bounds == nil || call.bounds.X < 1920 {
		t.Errorf("launch bounds = %+v, want a rect on d2", call.bounds)
	}
}
