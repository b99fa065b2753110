package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/halcyon271/strafetimer/internal/domain"
)

// Memory mirrors the SQL backends' semantics in process memory. It backs
// development setups and sessions where the configured backend is down.
type Memory struct {
	mu sync.RWMutex

	records map[recordKey]*domain.Record
	stages  map[stageKey]*domain.StageTime
	stats   map[string]*domain.Profile

	schemaCalls int
}

type recordKey struct {
	mapName string
	steamID string
	style   int
}

type stageKey struct {
	mapName string
	steamID string
	stage   int
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[recordKey]*domain.Record),
		stages:  make(map[stageKey]*domain.StageTime),
		stats:   make(map[string]*domain.Profile),
	}
}

func (m *Memory) Open(ctx context.Context) error { return nil }

func (m *Memory) EnsureSchema(ctx context.Context) error {
	m.mu.Lock()
	m.schemaCalls++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) UpsertRecord(ctx context.Context, r domain.Record) (int64, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{r.MapName, r.SteamID, r.Style}
	cur, ok := m.records[key]
	if !ok {
		cp := r
		cp.TimesFinished = 1
		if cp.FirstFinished.IsZero() {
			cp.FirstFinished = cp.LastFinished
		}
		m.records[key] = &cp
		return 0, 1, nil
	}

	prevBest := cur.BestTicks
	cur.PlayerName = r.PlayerName
	cur.TimesFinished++
	cur.LastFinished = r.LastFinished
	if r.BestTicks < cur.BestTicks {
		cur.BestTicks = r.BestTicks
		cur.FormattedTime = r.FormattedTime
	}
	return prevBest, cur.TimesFinished, nil
}

func (m *Memory) GetPlayerBest(ctx context.Context, mapName, steamID string, style int) (domain.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.records[recordKey{mapName, steamID, style}]; ok {
		return *r, true, nil
	}
	return domain.Record{}, false, nil
}

func (m *Memory) UpsertStageTime(ctx context.Context, s domain.StageTime) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stageKey{s.MapName, s.SteamID, s.Stage}
	cur, ok := m.stages[key]
	if !ok || s.Ticks < cur.Ticks {
		cp := s
		m.stages[key] = &cp
	}
	return nil
}

func (m *Memory) RegisterConnect(ctx context.Context, steamID, name string) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.stats[steamID]
	if !ok {
		p = &domain.Profile{SteamID: steamID, SoundsEnabled: true, PlayerFov: 90}
		m.stats[steamID] = p
	}
	p.PlayerName = name
	p.TimesConnected++
	p.LastConnected = time.Now()
	return *p, nil
}

func (m *Memory) UpsertProfile(ctx context.Context, in domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.stats[in.SteamID]
	if !ok {
		p = &domain.Profile{SteamID: in.SteamID}
		m.stats[in.SteamID] = p
	}
	p.PlayerName = in.PlayerName
	p.HideHUD = in.HideHUD
	p.HideKeys = in.HideKeys
	p.HideTimer = in.HideTimer
	p.SoundsEnabled = in.SoundsEnabled
	p.PlayerFov = in.PlayerFov
	p.IsVip = in.IsVip
	p.BigGifID = in.BigGifID
	return nil
}

func (m *Memory) AddGlobalPoints(ctx context.Context, steamID string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.stats[steamID]
	if !ok {
		p = &domain.Profile{SteamID: steamID}
		m.stats[steamID] = p
	}
	p.GlobalPoints += delta
	return p.GlobalPoints, nil
}

func (m *Memory) GetTopRecords(ctx context.Context, mapName string, style, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.sortedRecords(mapName, style)
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]domain.LeaderboardEntry, 0, len(list))
	for i, r := range list {
		out = append(out, domain.LeaderboardEntry{
			Rank:          i + 1,
			SteamID:       r.SteamID,
			PlayerName:    r.PlayerName,
			Ticks:         r.BestTicks,
			FormattedTime: r.FormattedTime,
			TimesFinished: r.TimesFinished,
		})
	}
	return out, nil
}

func (m *Memory) GetPlayerRank(ctx context.Context, mapName, steamID string, style int) (domain.PlayerRank, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	self, ok := m.records[recordKey{mapName, steamID, style}]
	if !ok {
		return domain.PlayerRank{}, false, nil
	}
	faster := 0
	total := 0
	for key, r := range m.records {
		if key.mapName != mapName || key.style != style {
			continue
		}
		total++
		if r.BestTicks < self.BestTicks {
			faster++
		}
	}
	return domain.PlayerRank{Rank: faster + 1, Total: total}, true, nil
}

func (m *Memory) CountRecordHolders(ctx context.Context, mapName string, style int) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for key := range m.records {
		if key.mapName == mapName && key.style == style {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetGlobalPointsLeaderboard(ctx context.Context, limit int) ([]domain.PointsEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*domain.Profile, 0, len(m.stats))
	for _, p := range m.stats {
		if p.GlobalPoints > 0 {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].GlobalPoints > list[j].GlobalPoints })
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]domain.PointsEntry, 0, len(list))
	for i, p := range list {
		out = append(out, domain.PointsEntry{
			Rank:         i + 1,
			SteamID:      p.SteamID,
			PlayerName:   p.PlayerName,
			GlobalPoints: p.GlobalPoints,
		})
	}
	return out, nil
}

func (m *Memory) sortedRecords(mapName string, style int) []*domain.Record {
	list := make([]*domain.Record, 0)
	for key, r := range m.records {
		if key.mapName == mapName && key.style == style {
			list = append(list, r)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].BestTicks != list[j].BestTicks {
			return list[i].BestTicks < list[j].BestTicks
		}
		return list[i].LastFinished.Before(list[j].LastFinished)
	})
	return list
}
