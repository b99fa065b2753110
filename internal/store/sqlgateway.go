package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/halcyon271/strafetimer/internal/domain"
)

// queries holds the dialect-specific SQL text for one backend. The Go logic
// around it is shared; only the statements differ.
type queries struct {
	insertApplied string

	upsertRecord    string // map, steam, name, ticks, fmt, firstUnix, lastUnix, style
	selectRecord    string // map, steam, style
	upsertStage     string // map, steam, stage, ticks, fmt, velocity
	registerConnect string // steam, name, nowUnix
	selectProfile   string // steam
	upsertPrefs     string // steam, name, prefs..., fov, vip, gif
	addPoints       string // steam, delta
	selectPoints    string // steam
	topRecords      string // map, style, limit
	playerTicks     string // map, steam, style
	countFaster     string // map, style, ticks
	countHolders    string // map, style
	pointsTop       string // limit
}

// sqlGateway implements Gateway over database/sql for one dialect. Each
// backend type wraps it with its own driver, pool settings and SQL text.
type sqlGateway struct {
	db      *sql.DB
	backend string
	mig     []migration
	q       queries
}

func (g *sqlGateway) Open(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := g.db.PingContext(pctx); err != nil {
		return fmt.Errorf("%s ping: %w", g.backend, err)
	}
	return nil
}

func (g *sqlGateway) EnsureSchema(ctx context.Context) error {
	return applyMigrations(ctx, g.db, g.backend, g.mig, g.q.insertApplied)
}

func (g *sqlGateway) Close() error { return g.db.Close() }

func (g *sqlGateway) UpsertRecord(ctx context.Context, r domain.Record) (int64, int32, error) {
	prev, found, err := g.GetPlayerBest(ctx, r.MapName, r.SteamID, r.Style)
	if err != nil {
		return 0, 0, err
	}
	prevBest := int64(0)
	if found {
		prevBest = prev.BestTicks
	}

	first := r.FirstFinished
	if first.IsZero() {
		first = r.LastFinished
	}
	_, err = g.db.ExecContext(ctx, g.q.upsertRecord,
		r.MapName, r.SteamID, r.PlayerName,
		r.BestTicks, r.FormattedTime,
		first.Unix(), r.LastFinished.Unix(), r.Style,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("upsert record: %w", err)
	}

	cur, found, err := g.GetPlayerBest(ctx, r.MapName, r.SteamID, r.Style)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, fmt.Errorf("record row missing after upsert")
	}
	return prevBest, cur.TimesFinished, nil
}

func (g *sqlGateway) GetPlayerBest(ctx context.Context, mapName, steamID string, style int) (domain.Record, bool, error) {
	var (
		r         domain.Record
		firstUnix int64
		lastUnix  int64
	)
	err := g.db.QueryRowContext(ctx, g.q.selectRecord, mapName, steamID, style).Scan(
		&r.MapName, &r.SteamID, &r.PlayerName,
		&r.BestTicks, &r.FormattedTime,
		&firstUnix, &r.TimesFinished, &lastUnix, &r.Style,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("select record: %w", err)
	}
	r.FirstFinished = time.Unix(firstUnix, 0)
	r.LastFinished = time.Unix(lastUnix, 0)
	return r, true, nil
}

func (g *sqlGateway) UpsertStageTime(ctx context.Context, s domain.StageTime) error {
	_, err := g.db.ExecContext(ctx, g.q.upsertStage,
		s.MapName, s.SteamID, s.Stage, s.Ticks, s.FormattedTime, s.Velocity,
	)
	if err != nil {
		return fmt.Errorf("upsert stage time: %w", err)
	}
	return nil
}

func (g *sqlGateway) RegisterConnect(ctx context.Context, steamID, name string) (domain.Profile, error) {
	if _, err := g.db.ExecContext(ctx, g.q.registerConnect, steamID, name, time.Now().Unix()); err != nil {
		return domain.Profile{}, fmt.Errorf("register connect: %w", err)
	}
	p, found, err := g.getProfile(ctx, steamID)
	if err != nil {
		return domain.Profile{}, err
	}
	if !found {
		return domain.Profile{}, fmt.Errorf("stats row missing after connect upsert")
	}
	return p, nil
}

func (g *sqlGateway) getProfile(ctx context.Context, steamID string) (domain.Profile, bool, error) {
	var (
		p        domain.Profile
		lastUnix int64
	)
	err := g.db.QueryRowContext(ctx, g.q.selectProfile, steamID).Scan(
		&p.SteamID, &p.PlayerName, &p.TimesConnected, &lastUnix, &p.GlobalPoints,
		&p.HideHUD, &p.HideKeys, &p.HideTimer, &p.SoundsEnabled,
		&p.PlayerFov, &p.IsVip, &p.BigGifID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, false, nil
	}
	if err != nil {
		return domain.Profile{}, false, fmt.Errorf("select stats: %w", err)
	}
	p.LastConnected = time.Unix(lastUnix, 0)
	return p, true, nil
}

func (g *sqlGateway) UpsertProfile(ctx context.Context, p domain.Profile) error {
	_, err := g.db.ExecContext(ctx, g.q.upsertPrefs,
		p.SteamID, p.PlayerName,
		p.HideHUD, p.HideKeys, p.HideTimer, p.SoundsEnabled,
		p.PlayerFov, p.IsVip, p.BigGifID,
	)
	if err != nil {
		return fmt.Errorf("upsert stats prefs: %w", err)
	}
	return nil
}

func (g *sqlGateway) AddGlobalPoints(ctx context.Context, steamID string, delta int64) (int64, error) {
	if _, err := g.db.ExecContext(ctx, g.q.addPoints, steamID, delta); err != nil {
		return 0, fmt.Errorf("add points: %w", err)
	}
	var total int64
	if err := g.db.QueryRowContext(ctx, g.q.selectPoints, steamID).Scan(&total); err != nil {
		return 0, fmt.Errorf("select points: %w", err)
	}
	return total, nil
}

func (g *sqlGateway) GetTopRecords(ctx context.Context, mapName string, style, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := g.db.QueryContext(ctx, g.q.topRecords, mapName, style, limit)
	if err != nil {
		return nil, fmt.Errorf("select top records: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.SteamID, &e.PlayerName, &e.Ticks, &e.FormattedTime, &e.TimesFinished); err != nil {
			return nil, fmt.Errorf("scan top record: %w", err)
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}

func (g *sqlGateway) GetPlayerRank(ctx context.Context, mapName, steamID string, style int) (domain.PlayerRank, bool, error) {
	var ticks int64
	err := g.db.QueryRowContext(ctx, g.q.playerTicks, mapName, steamID, style).Scan(&ticks)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlayerRank{}, false, nil
	}
	if err != nil {
		return domain.PlayerRank{}, false, fmt.Errorf("select player ticks: %w", err)
	}

	var faster int64
	if err := g.db.QueryRowContext(ctx, g.q.countFaster, mapName, style, ticks).Scan(&faster); err != nil {
		return domain.PlayerRank{}, false, fmt.Errorf("count faster: %w", err)
	}
	total, err := g.CountRecordHolders(ctx, mapName, style)
	if err != nil {
		return domain.PlayerRank{}, false, err
	}
	return domain.PlayerRank{Rank: int(faster) + 1, Total: int(total)}, true, nil
}

func (g *sqlGateway) CountRecordHolders(ctx context.Context, mapName string, style int) (int64, error) {
	var n int64
	if err := g.db.QueryRowContext(ctx, g.q.countHolders, mapName, style).Scan(&n); err != nil {
		return 0, fmt.Errorf("count record holders: %w", err)
	}
	return n, nil
}

func (g *sqlGateway) GetGlobalPointsLeaderboard(ctx context.Context, limit int) ([]domain.PointsEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := g.db.QueryContext(ctx, g.q.pointsTop, limit)
	if err != nil {
		return nil, fmt.Errorf("select points leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PointsEntry, 0, limit)
	for rows.Next() {
		var e domain.PointsEntry
		if err := rows.Scan(&e.SteamID, &e.PlayerName, &e.GlobalPoints); err != nil {
			return nil, fmt.Errorf("scan points entry: %w", err)
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}
