package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLite is the embedded file-based backend for servers that run without an
// external database. The driver is cgo-free so the binary stays portable.
type SQLite struct {
	sqlGateway
}

func NewSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// SQLite allows one writer; funnel everything through one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}

	return &SQLite{sqlGateway{
		db:      db,
		backend: "sqlite",
		mig:     liteMigrations,
		q:       liteQueries,
	}}, nil
}

var liteMigrations = []migration{
	{
		id: "0001_create_player_records",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS player_records (
				map_name TEXT NOT NULL,
				steam_id TEXT NOT NULL,
				player_name TEXT NOT NULL DEFAULT '',
				timer_ticks INTEGER NOT NULL,
				formatted_time TEXT NOT NULL DEFAULT '',
				unix_stamp INTEGER NOT NULL DEFAULT 0,
				times_finished INTEGER NOT NULL DEFAULT 1,
				last_finished INTEGER NOT NULL DEFAULT 0,
				style INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (map_name, steam_id, style)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_player_records_map_style_ticks
				ON player_records (map_name, style, timer_ticks)`,
		},
	},
	{
		id: "0002_create_player_stage_times",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS player_stage_times (
				map_name TEXT NOT NULL,
				steam_id TEXT NOT NULL,
				stage INTEGER NOT NULL,
				timer_ticks INTEGER NOT NULL,
				formatted_time TEXT NOT NULL DEFAULT '',
				velocity TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (map_name, steam_id, stage)
			)`,
		},
	},
	{
		id: "0003_create_player_stats",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS player_stats (
				steam_id TEXT PRIMARY KEY,
				player_name TEXT NOT NULL DEFAULT '',
				times_connected INTEGER NOT NULL DEFAULT 0,
				last_connected INTEGER NOT NULL DEFAULT 0,
				global_points INTEGER NOT NULL DEFAULT 0,
				hide_hud INTEGER NOT NULL DEFAULT 0,
				hide_keys INTEGER NOT NULL DEFAULT 0,
				hide_timer INTEGER NOT NULL DEFAULT 0,
				sounds_enabled INTEGER NOT NULL DEFAULT 1,
				is_vip INTEGER NOT NULL DEFAULT 0
			)`,
		},
	},
	{
		id: "0004_add_stats_display_columns",
		stmts: []string{
			`ALTER TABLE player_stats ADD COLUMN player_fov INTEGER NOT NULL DEFAULT 90`,
			`ALTER TABLE player_stats ADD COLUMN big_gif_id TEXT NOT NULL DEFAULT ''`,
		},
	},
}

var liteQueries = queries{
	insertApplied: `INSERT OR IGNORE INTO schema_migrations (id, applied_at) VALUES (?, ?)`,

	upsertRecord: `
		INSERT INTO player_records
			(map_name, steam_id, player_name, timer_ticks, formatted_time, unix_stamp, times_finished, last_finished, style)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (map_name, steam_id, style) DO UPDATE SET
			player_name = excluded.player_name,
			formatted_time = CASE WHEN excluded.timer_ticks < timer_ticks
				THEN excluded.formatted_time ELSE formatted_time END,
			timer_ticks = MIN(timer_ticks, excluded.timer_ticks),
			times_finished = times_finished + 1,
			last_finished = excluded.last_finished`,

	selectRecord: `
		SELECT map_name, steam_id, player_name, timer_ticks, formatted_time,
			unix_stamp, times_finished, last_finished, style
		FROM player_records
		WHERE map_name = ? AND steam_id = ? AND style = ?`,

	upsertStage: `
		INSERT INTO player_stage_times (map_name, steam_id, stage, timer_ticks, formatted_time, velocity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (map_name, steam_id, stage) DO UPDATE SET
			formatted_time = CASE WHEN excluded.timer_ticks < timer_ticks
				THEN excluded.formatted_time ELSE formatted_time END,
			velocity = CASE WHEN excluded.timer_ticks < timer_ticks
				THEN excluded.velocity ELSE velocity END,
			timer_ticks = MIN(timer_ticks, excluded.timer_ticks)`,

	registerConnect: `
		INSERT INTO player_stats (steam_id, player_name, times_connected, last_connected)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (steam_id) DO UPDATE SET
			player_name = excluded.player_name,
			times_connected = times_connected + 1,
			last_connected = excluded.last_connected`,

	selectProfile: `
		SELECT steam_id, player_name, times_connected, last_connected, global_points,
			hide_hud, hide_keys, hide_timer, sounds_enabled, player_fov, is_vip, big_gif_id
		FROM player_stats
		WHERE steam_id = ?`,

	upsertPrefs: `
		INSERT INTO player_stats
			(steam_id, player_name, hide_hud, hide_keys, hide_timer, sounds_enabled, player_fov, is_vip, big_gif_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (steam_id) DO UPDATE SET
			player_name = excluded.player_name,
			hide_hud = excluded.hide_hud,
			hide_keys = excluded.hide_keys,
			hide_timer = excluded.hide_timer,
			sounds_enabled = excluded.sounds_enabled,
			player_fov = excluded.player_fov,
			is_vip = excluded.is_vip,
			big_gif_id = excluded.big_gif_id`,

	addPoints: `
		INSERT INTO player_stats (steam_id, global_points)
		VALUES (?, ?)
		ON CONFLICT (steam_id) DO UPDATE SET
			global_points = global_points + excluded.global_points`,

	selectPoints: `SELECT global_points FROM player_stats WHERE steam_id = ?`,

	topRecords: `
		SELECT steam_id, player_name, timer_ticks, formatted_time, times_finished
		FROM player_records
		WHERE map_name = ? AND style = ?
		ORDER BY timer_ticks ASC, last_finished ASC
		LIMIT ?`,

	playerTicks: `
		SELECT timer_ticks FROM player_records
		WHERE map_name = ? AND steam_id = ? AND style = ?`,

	countFaster: `
		SELECT COUNT(*) FROM player_records
		WHERE map_name = ? AND style = ? AND timer_ticks < ?`,

	countHolders: `
		SELECT COUNT(*) FROM player_records
		WHERE map_name = ? AND style = ?`,

	pointsTop: `
		SELECT steam_id, player_name, global_points
		FROM player_stats
		WHERE global_points > 0
		ORDER BY global_points DESC
		LIMIT ?`,
}
