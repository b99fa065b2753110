// Package store is the persistence gateway: one backend-agnostic contract,
// implemented against Postgres, MySQL and embedded SQLite, plus an in-memory
// fallback for development and for sessions where no backend is reachable.
//
// Every upsert is a single conflict-resolved statement keyed by the row's
// natural unique key; callers never do check-then-write. Best times are kept
// monotonic by the statement itself (LEAST/MIN of stored and candidate), so
// same-key races degrade to last-committed-wins only for the counters.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/halcyon271/strafetimer/internal/config"
	"github.com/halcyon271/strafetimer/internal/domain"
)

var (
	// ErrDisabled is returned by every operation after the gateway shut
	// itself off due to a connectivity fault.
	ErrDisabled = errors.New("persistence disabled")
)

// Gateway is the backend-agnostic persistence contract.
type Gateway interface {
	// Open verifies connectivity. A failed Open is not fatal to the host;
	// callers are expected to fall back to the memory backend.
	Open(ctx context.Context) error

	// EnsureSchema creates missing tables and columns. Idempotent; applied
	// migration ids are tracked in schema_migrations.
	EnsureSchema(ctx context.Context) error

	// UpsertRecord inserts or improves a (map, steamID, style) record row.
	// r.BestTicks carries the candidate time. Returns the best before this
	// finish (0 on the first ever finish) and the new finish count.
	UpsertRecord(ctx context.Context, r domain.Record) (prevBest int64, timesFinished int32, err error)

	// UpsertStageTime inserts or improves a stage split, min-wins.
	UpsertStageTime(ctx context.Context, s domain.StageTime) error

	// RegisterConnect upserts the player's stats row for a new connection:
	// bumps the connect counter, refreshes name and timestamp, and returns
	// the current row.
	RegisterConnect(ctx context.Context, steamID, name string) (domain.Profile, error)

	// UpsertProfile writes preference fields. GlobalPoints and connection
	// counters are not touched here.
	UpsertProfile(ctx context.Context, p domain.Profile) error

	// AddGlobalPoints adds a (non-negative) delta to the player's points and
	// returns the new total.
	AddGlobalPoints(ctx context.Context, steamID string, delta int64) (int64, error)

	// GetPlayerBest returns the stored record, with found=false (not an
	// error) when the player has never finished.
	GetPlayerBest(ctx context.Context, mapName, steamID string, style int) (domain.Record, bool, error)

	GetTopRecords(ctx context.Context, mapName string, style, limit int) ([]domain.LeaderboardEntry, error)

	// GetPlayerRank locates the player on a map leaderboard.
	GetPlayerRank(ctx context.Context, mapName, steamID string, style int) (domain.PlayerRank, bool, error)

	// CountRecordHolders counts players with a record on the map/style; the
	// points engine uses it for percentile groups.
	CountRecordHolders(ctx context.Context, mapName string, style int) (int64, error)

	GetGlobalPointsLeaderboard(ctx context.Context, limit int) ([]domain.PointsEntry, error)

	Close() error
}

// New selects a backend from configuration. This is the single selection
// point; nothing downstream branches on the driver again.
func New(cfg *config.AppConfig) (Gateway, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		return NewPostgres(cfg.DatabaseURL)
	case "mysql":
		return NewMySQL(cfg.DatabaseURL)
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}
