// Package points turns qualifying finishes into persisted records and global
// skill points. The numeric blending of tier baseline, top-10 rank weight and
// percentile group is deliberately pluggable: servers tune these, so the
// engine ships combinators as swappable functions over the points profile.
package points

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/halcyon271/strafetimer/internal/config"
	"github.com/halcyon271/strafetimer/internal/domain"
	"github.com/halcyon271/strafetimer/internal/obslog"
	"github.com/halcyon271/strafetimer/internal/store"
	"github.com/halcyon271/strafetimer/pkg/timefmt"
)

// AwardReason explains why a finish earned (or did not earn) points.
type AwardReason string

const (
	AwardFirstFinish AwardReason = "first_finish"
	AwardBeatPB      AwardReason = "beat_pb"
	AwardFreeSlot    AwardReason = "free_completion"
	AwardNone        AwardReason = "none"
)

// FinishInput describes a completed run handed over by the timer layer.
type FinishInput struct {
	MapName    string
	MapTier    int
	SteamID    string
	PlayerName string
	Course     int
	Style      int
	Ticks      int64
}

// FinishResult is what the notification boundary gets back.
type FinishResult struct {
	MapName       string
	SteamID       string
	PlayerName    string
	Course        int
	Style         int
	Ticks         int64
	FormattedTime string

	OldBest       int64 // 0 when this was the first finish
	BeatPB        bool
	TimesFinished int32
	Rank          int
	TotalHolders  int

	Reason      AwardReason
	PointsDelta int64
	PointsTotal int64
}

// StageInput describes a stage split during a main-course run.
type StageInput struct {
	MapName  string
	SteamID  string
	Stage    int
	Ticks    int64
	Velocity string
}

// Engine computes awards against a store.Gateway. The three cut functions
// default to the table-driven combinators below; hosts may replace them.
type Engine struct {
	store    store.Gateway
	profiles *config.ProfileRef
	tickrate float64

	// PoolFor derives the per-map maximum record points from the tier.
	PoolFor func(p *config.PointsProfile, tier int) float64
	// RankCut is the pool fraction for leaderboard ranks 1..10.
	RankCut func(p *config.PointsProfile, rank int) float64
	// GroupCut is the pool fraction for everyone past rank 10, chosen by
	// the percentile of the finisher among all record holders.
	GroupCut func(p *config.PointsProfile, rank int, holders int) float64
}

func NewEngine(g store.Gateway, profiles *config.ProfileRef, tickrate float64) *Engine {
	return &Engine{
		store:    g,
		profiles: profiles,
		tickrate: tickrate,
		PoolFor:  DefaultPool,
		RankCut:  DefaultRankCut,
		GroupCut: DefaultGroupCut,
	}
}

// Store exposes the gateway for callers that persist outside the award path,
// such as the connect upsert.
func (e *Engine) Store() store.Gateway { return e.store }

// DefaultPool scales the tier baseline by the configured pool factor.
func DefaultPool(p *config.PointsProfile, tier int) float64 {
	return p.Baseline(tier) * p.TierPoolFactor
}

// DefaultRankCut reads the configured top-10 weight table.
func DefaultRankCut(p *config.PointsProfile, rank int) float64 {
	if rank < 1 || rank > len(p.RankWeights) {
		return 0
	}
	return p.RankWeights[rank-1]
}

// DefaultGroupCut buckets the finisher by percentile among record holders.
// Past the last configured group the finish is worth nothing.
func DefaultGroupCut(p *config.PointsProfile, rank, holders int) float64 {
	if holders <= 0 || rank < 1 {
		return 0
	}
	percentile := float64(rank) / float64(holders) * 100
	for i, threshold := range p.GroupPercentiles {
		if percentile <= threshold {
			return p.GroupWeights[i]
		}
	}
	return 0
}

// HandleFinish persists the record and, when the finish qualifies, awards
// points. Runs off the tick loop inside a dispatch job.
func (e *Engine) HandleFinish(ctx context.Context, in FinishInput) (FinishResult, error) {
	now := time.Now()
	res := FinishResult{
		MapName:       in.MapName,
		SteamID:       in.SteamID,
		PlayerName:    in.PlayerName,
		Course:        in.Course,
		Style:         in.Style,
		Ticks:         in.Ticks,
		FormattedTime: timefmt.Format(in.Ticks, e.tickrate),
		Reason:        AwardNone,
	}

	prevBest, times, err := e.store.UpsertRecord(ctx, domain.Record{
		MapName:       courseMap(in.MapName, in.Course),
		SteamID:       in.SteamID,
		PlayerName:    in.PlayerName,
		BestTicks:     in.Ticks,
		FormattedTime: res.FormattedTime,
		Style:         in.Style,
		FirstFinished: now,
		LastFinished:  now,
	})
	if err != nil {
		return res, fmt.Errorf("persist finish: %w", err)
	}
	res.OldBest = prevBest
	res.TimesFinished = times
	res.BeatPB = prevBest > 0 && in.Ticks < prevBest

	rank, found, err := e.store.GetPlayerRank(ctx, courseMap(in.MapName, in.Course), in.SteamID, in.Style)
	if err != nil {
		return res, fmt.Errorf("rank lookup: %w", err)
	}
	if found {
		res.Rank = rank.Rank
		res.TotalHolders = rank.Total
	}

	profile := e.profiles.Current()
	res.Reason = awardReason(profile, prevBest, times, res.BeatPB)
	if res.Reason == AwardNone {
		return res, nil
	}

	delta := e.computeDelta(profile, in, res.Rank, res.TotalHolders)
	if delta <= 0 {
		res.Reason = AwardNone
		return res, nil
	}

	total, err := e.store.AddGlobalPoints(ctx, in.SteamID, delta)
	if err != nil {
		return res, fmt.Errorf("award points: %w", err)
	}
	res.PointsDelta = delta
	res.PointsTotal = total

	obslog.L().Info("points_award",
		zap.String("map", in.MapName),
		zap.String("steam_id", in.SteamID),
		zap.Int("course", in.Course),
		zap.Int("style", in.Style),
		zap.Int64("delta", delta),
		zap.Int64("old_total", total-delta),
		zap.Int64("new_total", total),
		zap.String("reason", string(res.Reason)),
	)
	return res, nil
}

// HandleStageFinish persists a stage split, min-wins.
func (e *Engine) HandleStageFinish(ctx context.Context, in StageInput) error {
	err := e.store.UpsertStageTime(ctx, domain.StageTime{
		MapName:       in.MapName,
		SteamID:       in.SteamID,
		Stage:         in.Stage,
		Ticks:         in.Ticks,
		FormattedTime: timefmt.Format(in.Ticks, e.tickrate),
		Velocity:      in.Velocity,
	})
	if err != nil {
		return fmt.Errorf("persist stage finish: %w", err)
	}
	return nil
}

// Top serves the RequestTop command.
func (e *Engine) Top(ctx context.Context, mapName string, style, limit int) ([]domain.LeaderboardEntry, error) {
	return e.store.GetTopRecords(ctx, mapName, style, limit)
}

// Rank serves the RequestRank command.
func (e *Engine) Rank(ctx context.Context, mapName, steamID string, style int) (domain.PlayerRank, bool, error) {
	return e.store.GetPlayerRank(ctx, mapName, steamID, style)
}

func awardReason(p *config.PointsProfile, prevBest int64, times int32, beatPB bool) AwardReason {
	if !p.RankingEnabled {
		return AwardNone
	}
	switch {
	case prevBest == 0:
		if p.FreeCompletions < 1 {
			return AwardNone
		}
		return AwardFirstFinish
	case beatPB:
		return AwardBeatPB
	case times <= p.FreeCompletions:
		return AwardFreeSlot
	default:
		return AwardNone
	}
}

func (e *Engine) computeDelta(p *config.PointsProfile, in FinishInput, rank, holders int) int64 {
	pool := e.PoolFor(p, in.MapTier)
	var frac float64
	if rank >= 1 && rank <= len(p.RankWeights) {
		frac = e.RankCut(p, rank)
	} else {
		frac = e.GroupCut(p, rank, holders)
	}
	value := pool * frac

	if in.Style != 0 {
		if !p.StylePointsEnabled {
			return 0
		}
		value *= p.StyleMultiplier(in.Style)
	}
	if in.Course != timerMainCourse {
		value *= p.BonusMultiplier
	}

	delta := int64(math.Round(value))
	if delta < 0 {
		delta = 0
	}
	return delta
}

const timerMainCourse = 0

// courseMap namespaces bonus-course records so they never collide with the
// main leaderboard for the same map.
func courseMap(mapName string, course int) string {
	if course == timerMainCourse {
		return mapName
	}
	return fmt.Sprintf("%s//bonus%d", mapName, course)
}
