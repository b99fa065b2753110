package host

import (
	"context"
	"testing"
	"time"

	"github.com/halcyon271/strafetimer/internal/checkpoint"
	"github.com/halcyon271/strafetimer/internal/config"
	"github.com/halcyon271/strafetimer/internal/dispatch"
	"github.com/halcyon271/strafetimer/internal/points"
	"github.com/halcyon271/strafetimer/internal/session"
	"github.com/halcyon271/strafetimer/internal/store"
	"github.com/halcyon271/strafetimer/internal/timer"
)

func newHost(t *testing.T) (*Host, *store.Memory) {
	t.Helper()
	cfg := &config.AppConfig{Tickrate: 64, StartSpeedCap: 350}
	mem := store.NewMemory()
	eng := points.NewEngine(mem, config.NewProfileRef(nil), cfg.Tickrate)
	disp := dispatch.New(dispatch.Options{QueueSize: 32, Backoff: time.Millisecond})
	disp.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		disp.Shutdown(ctx)
	})

	h := New(cfg, session.NewRegistry(), eng, disp)
	h.SetMap("surf_utopia", 3)
	return h, mem
}

// tickUntil keeps ticking the host until the predicate holds, so async
// persistence has a chance to rejoin.
func tickUntil(t *testing.T, h *Host, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !pred() {
		if time.Now().After(deadline) {
			t.Fatalf("condition never held")
		}
		h.Tick()
		time.Sleep(time.Millisecond)
	}
}

func TestFinishPipeline(t *testing.T) {
	h, mem := newHost(t)

	var results []points.FinishResult
	h.Notify = func(res points.FinishResult) { results = append(results, res) }

	h.Connect("s1", "alice")
	h.EnterStartZone("s1", 0)
	h.ExitStartZone("s1", 0)
	for i := 0; i < 6400; i++ {
		h.Tick()
	}
	h.EnterEndZone("s1", 0)

	tickUntil(t, h, func() bool { return len(results) == 1 })
	res := results[0]
	if res.Ticks != 6400 || res.OldBest != 0 || res.TimesFinished != 1 {
		t.Fatalf("finish result: %+v", res)
	}
	if res.FormattedTime != "1:40.00" || res.Rank != 1 {
		t.Fatalf("finish result: %+v", res)
	}

	got, found, err := mem.GetPlayerBest(context.Background(), "surf_utopia", "s1", 0)
	if err != nil || !found || got.BestTicks != 6400 {
		t.Fatalf("persisted record: found=%v %+v err=%v", found, got, err)
	}
}

func TestEndZoneWithoutLeavingStartIsNoFinish(t *testing.T) {
	h, mem := newHost(t)

	notified := false
	h.Notify = func(points.FinishResult) { notified = true }

	h.Connect("s1", "alice")
	h.EnterStartZone("s1", 0)
	h.EnterEndZone("s1", 0)
	for i := 0; i < 50; i++ {
		h.Tick()
		time.Sleep(time.Millisecond)
	}
	if notified {
		t.Fatalf("finish notified without ever leaving the start zone")
	}
	if _, found, _ := mem.GetPlayerBest(context.Background(), "surf_utopia", "s1", 0); found {
		t.Fatalf("record persisted without a running state")
	}
}

func TestConnectLoadsProfile(t *testing.T) {
	h, _ := newHost(t)
	h.Connect("s1", "alice")

	var p *session.Player
	tickUntil(t, h, func() bool {
		var ok bool
		p, ok = h.reg.Get("s1")
		return ok && p.Profile.TimesConnected == 1
	})
	if p.Profile.SteamID != "s1" {
		t.Fatalf("profile: %+v", p.Profile)
	}
}

func TestPracticeModeSkipsPersistence(t *testing.T) {
	h, mem := newHost(t)
	p := h.Connect("s1", "alice")
	p.PracticeMode = true

	h.EnterStartZone("s1", 0)
	h.ExitStartZone("s1", 0)
	for i := 0; i < 100; i++ {
		h.Tick()
	}
	h.EnterEndZone("s1", 0)
	for i := 0; i < 50; i++ {
		h.Tick()
		time.Sleep(time.Millisecond)
	}
	if _, found, _ := mem.GetPlayerBest(context.Background(), "surf_utopia", "s1", 0); found {
		t.Fatalf("practice finish must not persist")
	}
}

func TestCheckpointCommands(t *testing.T) {
	h, _ := newHost(t)
	h.Connect("s1", "alice")

	var teleported []checkpoint.Snapshot
	h.Teleport = func(_ string, to checkpoint.Snapshot) { teleported = append(teleported, to) }

	for _, pos := range []string{"a", "b", "c"} {
		if err := h.SaveCheckpoint("s1", checkpoint.Snapshot{Position: pos}, false); err != nil {
			t.Fatalf("SaveCheckpoint(%s): %v", pos, err)
		}
	}
	// Index sits at the newest entry; Previous from 0 wraps to the end.
	snap, err := h.LoadCheckpoint("s1", Next)
	if err != nil || snap.Position != "a" {
		t.Fatalf("Next wrap: %+v err=%v", snap, err)
	}
	snap, err = h.LoadCheckpoint("s1", Previous)
	if err != nil || snap.Position != "c" {
		t.Fatalf("Previous wrap: %+v err=%v", snap, err)
	}
	if len(teleported) != 2 {
		t.Fatalf("teleports = %d", len(teleported))
	}

	// Arming a run clears the list.
	h.EnterStartZone("s1", 0)
	if _, err := h.LoadCheckpoint("s1", Current); err != checkpoint.ErrEmpty {
		t.Fatalf("load after arm: %v", err)
	}
}

func TestFinishClearsCheckpoints(t *testing.T) {
	h, _ := newHost(t)
	p := h.Connect("s1", "alice")

	h.EnterStartZone("s1", 0)
	h.ExitStartZone("s1", 0)
	for i := 0; i < 100; i++ {
		h.Tick()
	}
	if err := h.SaveCheckpoint("s1", checkpoint.Snapshot{Position: "mid"}, false); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	h.EnterEndZone("s1", 0)

	// The run boundary clears the list; a finished player cannot teleport
	// back into the course they just completed.
	if n := p.Checkpoints.Count(); n != 0 {
		t.Fatalf("checkpoints after finish = %d", n)
	}
	if _, err := h.LoadCheckpoint("s1", Current); err != checkpoint.ErrEmpty {
		t.Fatalf("load after finish: %v", err)
	}
}

func TestGroundedProbeGatesSaves(t *testing.T) {
	h, _ := newHost(t)
	h.Connect("s1", "alice")
	h.Grounded = func(string) bool { return false }

	err := h.SaveCheckpoint("s1", checkpoint.Snapshot{Position: "air"}, false)
	if err != checkpoint.ErrNotGrounded {
		t.Fatalf("airborne save: %v", err)
	}
	if err := h.SaveCheckpoint("s1", checkpoint.Snapshot{Position: "air"}, true); err != nil {
		t.Fatalf("override save: %v", err)
	}
}

func TestStartOrStopRun(t *testing.T) {
	h, _ := newHost(t)
	p := h.Connect("s1", "alice")

	if err := h.StartOrStopRun("s1", 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.Machine.ActiveCourse() != 0 {
		t.Fatalf("course not armed")
	}
	if err := h.StartOrStopRun("s1", 0); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.Machine.ActiveCourse() != -1 {
		t.Fatalf("course not stopped")
	}
	if err := h.StartOrStopRun("ghost", 0); err != ErrUnknownPlayer {
		t.Fatalf("unknown player: %v", err)
	}
}

func TestStartOrStopRunRejectedWhileBlocked(t *testing.T) {
	h, _ := newHost(t)
	p := h.Connect("s1", "alice")

	if blocked, err := h.ToggleBlocked("s1"); err != nil || !blocked {
		t.Fatalf("ToggleBlocked: blocked=%v err=%v", blocked, err)
	}
	if err := h.StartOrStopRun("s1", 0); err != timer.ErrBlocked {
		t.Fatalf("blocked restart: %v", err)
	}
	if p.Machine.ActiveCourse() != -1 {
		t.Fatalf("blocked restart armed a course")
	}
}

func TestRequestTopAndRank(t *testing.T) {
	h, _ := newHost(t)
	h.Connect("s1", "alice")
	h.EnterStartZone("s1", 0)
	h.ExitStartZone("s1", 0)
	for i := 0; i < 6400; i++ {
		h.Tick()
	}
	h.EnterEndZone("s1", 0)

	tickUntil(t, h, func() bool {
		top, err := h.RequestTop(context.Background(), 0, 10)
		return err == nil && len(top) == 1
	})
	rank, found, err := h.RequestRank(context.Background(), "s1")
	if err != nil || !found || rank.Rank != 1 || rank.Total != 1 {
		t.Fatalf("rank: %+v found=%v err=%v", rank, found, err)
	}
}

func TestClampSpeedFiresOnArm(t *testing.T) {
	h, _ := newHost(t)
	h.Connect("s1", "alice")

	var caps []float64
	h.ClampSpeed = func(_ string, cap float64) { caps = append(caps, cap) }

	h.EnterStartZone("s1", 0)
	if len(caps) != 1 || caps[0] != 350 {
		t.Fatalf("clamp calls: %v", caps)
	}
}
