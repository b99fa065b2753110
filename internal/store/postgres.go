package store

import (
	"fmt"
	"strings"
	"time"

	"database/sql"

	_ "github.com/lib/pq"
)

// Postgres is the server-based Postgres backend.
type Postgres struct {
	sqlGateway
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("postgres: DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Postgres{sqlGateway{
		db:      db,
		backend: "postgres",
		mig:     pgMigrations,
		q:       pgQueries,
	}}, nil
}

var pgMigrations = []migration{
	{
		id: "0001_create_player_records",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS player_records (
				map_name VARCHAR(128) NOT NULL,
				steam_id VARCHAR(32) NOT NULL,
				player_name VARCHAR(64) NOT NULL DEFAULT '',
				timer_ticks BIGINT NOT NULL,
				formatted_time VARCHAR(32) NOT NULL DEFAULT '',
				unix_stamp BIGINT NOT NULL DEFAULT 0,
				times_finished INT NOT NULL DEFAULT 1,
				last_finished BIGINT NOT NULL DEFAULT 0,
				style INT NOT NULL DEFAULT 0,
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
				map_name VARCHAR(128) NOT NULL,
				steam_id VARCHAR(32) NOT NULL,
				stage INT NOT NULL,
				timer_ticks BIGINT NOT NULL,
				formatted_time VARCHAR(32) NOT NULL DEFAULT '',
				velocity VARCHAR(32) NOT NULL DEFAULT '',
				PRIMARY KEY (map_name, steam_id, stage)
			)`,
		},
	},
	{
		id: "0003_create_player_stats",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS player_stats (
				steam_id VARCHAR(32) PRIMARY KEY,
				player_name VARCHAR(64) NOT NULL DEFAULT '',
				times_connected INT NOT NULL DEFAULT 0,
				last_connected BIGINT NOT NULL DEFAULT 0,
				global_points BIGINT NOT NULL DEFAULT 0,
				hide_hud BOOLEAN NOT NULL DEFAULT FALSE,
				hide_keys BOOLEAN NOT NULL DEFAULT FALSE,
				hide_timer BOOLEAN NOT NULL DEFAULT FALSE,
				sounds_enabled BOOLEAN NOT NULL DEFAULT TRUE,
				is_vip BOOLEAN NOT NULL DEFAULT FALSE
			)`,
		},
	},
	{
		id: "0004_add_stats_display_columns",
		stmts: []string{
			`ALTER TABLE player_stats ADD COLUMN IF NOT EXISTS player_fov INT NOT NULL DEFAULT 90`,
			`ALTER TABLE player_stats ADD COLUMN IF NOT EXISTS big_gif_id VARCHAR(64) NOT NULL DEFAULT ''`,
		},
	},
}

var pgQueries = queries{
	insertApplied: `INSERT INTO schema_migrations (id, applied_at) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,

	upsertRecord: `
		INSERT INTO player_records
			(map_name, steam_id, player_name, timer_ticks, formatted_time, unix_stamp, times_finished, last_finished, style)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8)
		ON CONFLICT (map_name, steam_id, style) DO UPDATE SET
			player_name = EXCLUDED.player_name,
			formatted_time = CASE WHEN EXCLUDED.timer_ticks < player_records.timer_ticks
				THEN EXCLUDED.formatted_time ELSE player_records.formatted_time END,
			timer_ticks = LEAST(player_records.timer_ticks, EXCLUDED.timer_ticks),
			times_finished = player_records.times_finished + 1,
			last_finished = EXCLUDED.last_finished`,

	selectRecord: `
		SELECT map_name, steam_id, player_name, timer_ticks, formatted_time,
			unix_stamp, times_finished, last_finished, style
		FROM player_records
		WHERE map_name = $1 AND steam_id = $2 AND style = $3`,

	upsertStage: `
		INSERT INTO player_stage_times (map_name, steam_id, stage, timer_ticks, formatted_time, velocity)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (map_name, steam_id, stage) DO UPDATE SET
			formatted_time = CASE WHEN EXCLUDED.timer_ticks < player_stage_times.timer_ticks
				THEN EXCLUDED.formatted_time ELSE player_stage_times.formatted_time END,
			velocity = CASE WHEN EXCLUDED.timer_ticks < player_stage_times.timer_ticks
				THEN EXCLUDED.velocity ELSE player_stage_times.velocity END,
			timer_ticks = LEAST(player_stage_times.timer_ticks, EXCLUDED.timer_ticks)`,

	registerConnect: `
		INSERT INTO player_stats (steam_id, player_name, times_connected, last_connected)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (steam_id) DO UPDATE SET
			player_name = EXCLUDED.player_name,
			times_connected = player_stats.times_connected + 1,
			last_connected = EXCLUDED.last_connected`,

	selectProfile: `
		SELECT steam_id, player_name, times_connected, last_connected, global_points,
			hide_hud, hide_keys, hide_timer, sounds_enabled, player_fov, is_vip, big_gif_id
		FROM player_stats
		WHERE steam_id = $1`,

	upsertPrefs: `
		INSERT INTO player_stats
			(steam_id, player_name, hide_hud, hide_keys, hide_timer, sounds_enabled, player_fov, is_vip, big_gif_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (steam_id) DO UPDATE SET
			player_name = EXCLUDED.player_name,
			hide_hud = EXCLUDED.hide_hud,
			hide_keys = EXCLUDED.hide_keys,
			hide_timer = EXCLUDED.hide_timer,
			sounds_enabled = EXCLUDED.sounds_enabled,
			player_fov = EXCLUDED.player_fov,
			is_vip = EXCLUDED.is_vip,
			big_gif_id = EXCLUDED.big_gif_id`,

	addPoints: `
		INSERT INTO player_stats (steam_id, global_points)
		VALUES ($1, $2)
		ON CONFLICT (steam_id) DO UPDATE SET
			global_points = player_stats.global_points + EXCLUDED.global_points`,

	selectPoints: `SELECT global_points FROM player_stats WHERE steam_id = $1`,

	topRecords: `
		SELECT steam_id, player_name, timer_ticks, formatted_time, times_finished
		FROM player_records
		WHERE map_name = $1 AND style = $2
		ORDER BY timer_ticks ASC, last_finished ASC
		LIMIT $3`,

	playerTicks: `
		SELECT timer_ticks FROM player_records
		WHERE map_name = $1 AND steam_id = $2 AND style = $3`,

	countFaster: `
		SELECT COUNT(*) FROM player_records
		WHERE map_name = $1 AND style = $2 AND timer_ticks < $3`,

	countHolders: `
		SELECT COUNT(*) FROM player_records
		WHERE map_name = $1 AND style = $2`,

	pointsTop: `
		SELECT steam_id, player_name, global_points
		FROM player_stats
		WHERE global_points > 0
		ORDER BY global_points DESC
		LIMIT $1`,
}
