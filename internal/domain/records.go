// Package domain defines the durable row models and query DTOs shared by the
// timer core and the persistence gateway.
package domain

import "time"

// Record is a player's best completion of a map course under one style.
// Keyed by (MapName, SteamID, Style); BestTicks only ever decreases.
type Record struct {
	MapName       string
	SteamID       string
	PlayerName    string
	BestTicks     int64
	FormattedTime string
	Style         int
	TimesFinished int32
	FirstFinished time.Time
	LastFinished  time.Time
}

// StageTime is a player's best split for one stage of a map, independent of
// the main course record.
type StageTime struct {
	MapName       string
	SteamID       string
	Stage         int
	Ticks         int64
	FormattedTime string
	Velocity      string
}

// Profile is the per-player durable state: connection counters, UI
// preferences and the global points total maintained by the points engine.
type Profile struct {
	SteamID        string
	PlayerName     string
	TimesConnected int32
	LastConnected  time.Time
	GlobalPoints   int64

	HideHUD       bool
	HideKeys      bool
	HideTimer     bool
	SoundsEnabled bool
	PlayerFov     int

	IsVip    bool
	BigGifID string
}

// LeaderboardEntry is one row of a map's top-N listing.
type LeaderboardEntry struct {
	Rank          int
	SteamID       string
	PlayerName    string
	Ticks         int64
	FormattedTime string
	TimesFinished int32
}

// PlayerRank locates a player inside a map leaderboard.
type PlayerRank struct {
	Rank  int
	Total int
}

// PointsEntry is one row of the global points leaderboard.
type PointsEntry struct {
	Rank         int
	SteamID      string
	PlayerName   string
	GlobalPoints int64
}
