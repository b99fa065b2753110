package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQL is the server-based MySQL/MariaDB backend.
type MySQL struct {
	sqlGateway
}

func NewMySQL(dsn string) (*MySQL, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("mysql: DATABASE_URL is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql open: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &MySQL{sqlGateway{
		db:      db,
		backend: "mysql",
		mig:     myMigrations,
		q:       myQueries,
	}}, nil
}

var myMigrations = []migration{
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
				PRIMARY KEY (map_name, steam_id, style),
				KEY idx_player_records_map_style_ticks (map_name, style, timer_ticks)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
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
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
	},
	{
		id: "0003_create_player_stats",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS player_stats (
				steam_id VARCHAR(32) NOT NULL,
				player_name VARCHAR(64) NOT NULL DEFAULT '',
				times_connected INT NOT NULL DEFAULT 0,
				last_connected BIGINT NOT NULL DEFAULT 0,
				global_points BIGINT NOT NULL DEFAULT 0,
				hide_hud TINYINT(1) NOT NULL DEFAULT 0,
				hide_keys TINYINT(1) NOT NULL DEFAULT 0,
				hide_timer TINYINT(1) NOT NULL DEFAULT 0,
				sounds_enabled TINYINT(1) NOT NULL DEFAULT 1,
				is_vip TINYINT(1) NOT NULL DEFAULT 0,
				PRIMARY KEY (steam_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
	},
	{
		// MySQL before 8.0 has no ADD COLUMN IF NOT EXISTS; the migration
		// ledger keeps these from running twice.
		id: "0004_add_stats_display_columns",
		stmts: []string{
			`ALTER TABLE player_stats ADD COLUMN player_fov INT NOT NULL DEFAULT 90`,
			`ALTER TABLE player_stats ADD COLUMN big_gif_id VARCHAR(64) NOT NULL DEFAULT ''`,
		},
	},
}

var myQueries = queries{
	insertApplied: `INSERT IGNORE INTO schema_migrations (id, applied_at) VALUES (?, ?)`,

	upsertRecord: `
		INSERT INTO player_records
			(map_name, steam_id, player_name, timer_ticks, formatted_time, unix_stamp, times_finished, last_finished, style)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON DUPLICATE KEY UPDATE
			player_name = VALUES(player_name),
			formatted_time = IF(VALUES(timer_ticks) < timer_ticks, VALUES(formatted_time), formatted_time),
			timer_ticks = LEAST(timer_ticks, VALUES(timer_ticks)),
			times_finished = times_finished + 1,
			last_finished = VALUES(last_finished)`,

	selectRecord: `
		SELECT map_name, steam_id, player_name, timer_ticks, formatted_time,
			unix_stamp, times_finished, last_finished, style
		FROM player_records
		WHERE map_name = ? AND steam_id = ? AND style = ?`,

	upsertStage: `
		INSERT INTO player_stage_times (map_name, steam_id, stage, timer_ticks, formatted_time, velocity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			formatted_time = IF(VALUES(timer_ticks) < timer_ticks, VALUES(formatted_time), formatted_time),
			velocity = IF(VALUES(timer_ticks) < timer_ticks, VALUES(velocity), velocity),
			timer_ticks = LEAST(timer_ticks, VALUES(timer_ticks))`,

	registerConnect: `
		INSERT INTO player_stats (steam_id, player_name, times_connected, last_connected)
		VALUES (?, ?, 1, ?)
		ON DUPLICATE KEY UPDATE
			player_name = VALUES(player_name),
			times_connected = times_connected + 1,
			last_connected = VALUES(last_connected)`,

	selectProfile: `
		SELECT steam_id, player_name, times_connected, last_connected, global_points,
			hide_hud, hide_keys, hide_timer, sounds_enabled, player_fov, is_vip, big_gif_id
		FROM player_stats
		WHERE steam_id = ?`,

	upsertPrefs: `
		INSERT INTO player_stats
			(steam_id, player_name, hide_hud, hide_keys, hide_timer, sounds_enabled, player_fov, is_vip, big_gif_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			player_name = VALUES(player_name),
			hide_hud = VALUES(hide_hud),
			hide_keys = VALUES(hide_keys),
			hide_timer = VALUES(hide_timer),
			sounds_enabled = VALUES(sounds_enabled),
			player_fov = VALUES(player_fov),
			is_vip = VALUES(is_vip),
			big_gif_id = VALUES(big_gif_id)`,

	addPoints: `
		INSERT INTO player_stats (steam_id, global_points)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE
			global_points = global_points + VALUES(global_points)`,

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
