package store

import (
	"context"
	"testing"
	"time"

	"github.com/halcyon271/strafetimer/internal/domain"
)

func rec(ticks int64, when time.Time) domain.Record {
	return domain.Record{
		MapName:       "surf_beginner",
		SteamID:       "76561198000000001",
		PlayerName:    "alice",
		BestTicks:     ticks,
		FormattedTime: "x",
		Style:         0,
		LastFinished:  when,
	}
}

func TestMemoryRecordLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	// First finish inserts the row.
	prev, times, err := m.UpsertRecord(ctx, rec(6400, now))
	if err != nil || prev != 0 || times != 1 {
		t.Fatalf("first finish: prev=%d times=%d err=%v", prev, times, err)
	}

	// An improvement lowers the best.
	prev, times, err = m.UpsertRecord(ctx, rec(6272, now.Add(time.Minute)))
	if err != nil || prev != 6400 || times != 2 {
		t.Fatalf("second finish: prev=%d times=%d err=%v", prev, times, err)
	}

	// A slower finish bumps the count but keeps the best.
	prev, times, err = m.UpsertRecord(ctx, rec(6400, now.Add(2*time.Minute)))
	if err != nil || prev != 6272 || times != 3 {
		t.Fatalf("third finish: prev=%d times=%d err=%v", prev, times, err)
	}
	got, found, err := m.GetPlayerBest(ctx, "surf_beginner", "76561198000000001", 0)
	if err != nil || !found {
		t.Fatalf("GetPlayerBest: found=%v err=%v", found, err)
	}
	if got.BestTicks != 6272 || got.TimesFinished != 3 {
		t.Fatalf("record after three finishes: %+v", got)
	}
}

func TestMemoryGetPlayerBestAbsent(t *testing.T) {
	m := NewMemory()
	_, found, err := m.GetPlayerBest(context.Background(), "surf_x", "nobody", 0)
	if err != nil || found {
		t.Fatalf("absent record: found=%v err=%v", found, err)
	}
}

func TestMemoryStylesAreSeparateRows(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	r := rec(6400, time.Now())
	if _, _, err := m.UpsertRecord(ctx, r); err != nil {
		t.Fatalf("style 0 upsert: %v", err)
	}
	r.Style = 1
	r.BestTicks = 9000
	if _, _, err := m.UpsertRecord(ctx, r); err != nil {
		t.Fatalf("style 1 upsert: %v", err)
	}

	styled, found, _ := m.GetPlayerBest(ctx, r.MapName, r.SteamID, 1)
	if !found || styled.BestTicks != 9000 || styled.TimesFinished != 1 {
		t.Fatalf("styled record: found=%v %+v", found, styled)
	}
}

func TestMemoryTopRecordsAndRank(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	for i, p := range []struct {
		id    string
		ticks int64
	}{
		{"a", 5000}, {"b", 6000}, {"c", 7000}, {"d", 8000},
	} {
		r := rec(p.ticks, now.Add(time.Duration(i)*time.Second))
		r.SteamID = p.id
		r.PlayerName = p.id
		if _, _, err := m.UpsertRecord(ctx, r); err != nil {
			t.Fatalf("seed %s: %v", p.id, err)
		}
	}

	top, err := m.GetTopRecords(ctx, "surf_beginner", 0, 3)
	if err != nil || len(top) != 3 {
		t.Fatalf("top: len=%d err=%v", len(top), err)
	}
	if top[0].SteamID != "a" || top[0].Rank != 1 || top[2].SteamID != "c" {
		t.Fatalf("top order: %+v", top)
	}

	rank, found, err := m.GetPlayerRank(ctx, "surf_beginner", "c", 0)
	if err != nil || !found || rank.Rank != 3 || rank.Total != 4 {
		t.Fatalf("rank of c: %+v found=%v err=%v", rank, found, err)
	}
	if _, found, _ := m.GetPlayerRank(ctx, "surf_beginner", "nobody", 0); found {
		t.Fatalf("rank for unknown player should be absent")
	}

	holders, err := m.CountRecordHolders(ctx, "surf_beginner", 0)
	if err != nil || holders != 4 {
		t.Fatalf("holders = %d err=%v", holders, err)
	}
}

func TestMemoryStageTimeMinWins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	st := domain.StageTime{MapName: "surf_beginner", SteamID: "a", Stage: 2, Ticks: 900, Velocity: "300"}
	if err := m.UpsertStageTime(ctx, st); err != nil {
		t.Fatalf("stage insert: %v", err)
	}
	st.Ticks = 1200
	st.Velocity = "250"
	if err := m.UpsertStageTime(ctx, st); err != nil {
		t.Fatalf("stage slower upsert: %v", err)
	}
	if got := m.stages[stageKey{"surf_beginner", "a", 2}]; got.Ticks != 900 || got.Velocity != "300" {
		t.Fatalf("stage row after slower finish: %+v", got)
	}
}

func TestMemoryProfileAndPoints(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	p, err := m.RegisterConnect(ctx, "a", "alice")
	if err != nil || p.TimesConnected != 1 {
		t.Fatalf("first connect: %+v err=%v", p, err)
	}
	p, err = m.RegisterConnect(ctx, "a", "alice2")
	if err != nil || p.TimesConnected != 2 || p.PlayerName != "alice2" {
		t.Fatalf("second connect: %+v err=%v", p, err)
	}

	total, err := m.AddGlobalPoints(ctx, "a", 120)
	if err != nil || total != 120 {
		t.Fatalf("AddGlobalPoints: total=%d err=%v", total, err)
	}
	total, err = m.AddGlobalPoints(ctx, "a", 30)
	if err != nil || total != 150 {
		t.Fatalf("AddGlobalPoints again: total=%d err=%v", total, err)
	}

	// Preference writes never touch points or counters.
	if err := m.UpsertProfile(ctx, domain.Profile{SteamID: "a", PlayerName: "alice2", HideHUD: true, PlayerFov: 110}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	p, _ = m.RegisterConnect(ctx, "a", "alice2")
	if p.GlobalPoints != 150 || !p.HideHUD || p.PlayerFov != 110 {
		t.Fatalf("profile after prefs: %+v", p)
	}

	board, err := m.GetGlobalPointsLeaderboard(ctx, 10)
	if err != nil || len(board) != 1 || board[0].GlobalPoints != 150 {
		t.Fatalf("points leaderboard: %+v err=%v", board, err)
	}
}
