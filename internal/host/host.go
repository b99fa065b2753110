// Package host binds the gameplay core together for the embedding game
// logic: it owns the session registry wiring, translates zone events into
// machine transitions, routes finishes through the dispatcher into the
// points engine, and exposes the player command surface.
//
// Everything except Connect/Disconnect is expected on the tick goroutine.
package host

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/halcyon271/strafetimer/internal/checkpoint"
	"github.com/halcyon271/strafetimer/internal/config"
	"github.com/halcyon271/strafetimer/internal/dispatch"
	"github.com/halcyon271/strafetimer/internal/domain"
	"github.com/halcyon271/strafetimer/internal/obslog"
	"github.com/halcyon271/strafetimer/internal/points"
	"github.com/halcyon271/strafetimer/internal/session"
	"github.com/halcyon271/strafetimer/internal/timer"
)

// ErrUnknownPlayer is returned by commands for ids with no session. Zone and
// tick events never return it; they drop silently.
var ErrUnknownPlayer = errors.New("player not connected")

// Direction selects a checkpoint navigation step for LoadCheckpoint.
type Direction int

const (
	Current Direction = iota
	Previous
	Next
)

// Host is the in-process entry point the game logic drives.
type Host struct {
	cfg  *config.AppConfig
	reg  *session.Registry
	eng  *points.Engine
	disp *dispatch.Dispatcher

	mapName string
	mapTier int

	// ClampSpeed is called when a run arms and the start speed cap applies.
	ClampSpeed func(steamID string, cap float64)
	// Grounded probes whether the player stands on the ground. Checkpoint
	// saves assume grounded when no probe is wired.
	Grounded func(steamID string) bool
	// Teleport moves the player to a loaded checkpoint.
	Teleport func(steamID string, to checkpoint.Snapshot)
	// Notify receives finish results on the tick goroutine, after the
	// persistence job rejoined. Chat and webhook formatting hang off this.
	Notify func(res points.FinishResult)
}

func New(cfg *config.AppConfig, reg *session.Registry, eng *points.Engine, disp *dispatch.Dispatcher) *Host {
	return &Host{cfg: cfg, reg: reg, eng: eng, disp: disp}
}

// SetMap switches the active map. Every connected player's run and
// checkpoints reset; records always attribute to the map current at arm time,
// so the reset keeps cross-map times impossible.
func (h *Host) SetMap(name string, tier int) {
	h.mapName = name
	h.mapTier = tier
	h.reg.Each(func(p *session.Player) {
		if p.Machine.ActiveCourse() >= 0 {
			p.Machine.StopRun()
		}
		p.Checkpoints.Clear()
	})
	obslog.L().Info("map_change", zap.String("map", name), zap.Int("tier", tier))
}

// MapName returns the active map.
func (h *Host) MapName() string { return h.mapName }

// Connect creates the player session and queues the connect upsert. The
// profile row lands on the session at a later Drain.
func (h *Host) Connect(steamID, name string) *session.Player {
	p := h.reg.Connect(steamID, name, h.hooksFor(steamID))
	var prof domain.Profile
	err := h.disp.Submit(dispatch.Job{
		SteamID: steamID,
		Kind:    "connect",
		Do: func(ctx context.Context) error {
			var err error
			prof, err = h.eng.Store().RegisterConnect(ctx, steamID, name)
			return err
		},
		Rejoin: func(err error) {
			if err != nil {
				return
			}
			// Only the rejoin, on the tick goroutine, touches session state.
			if cur, ok := h.reg.Get(steamID); ok && cur == p {
				cur.Profile = prof
			}
		},
	})
	if err != nil {
		obslog.L().Warn("connect_persist_skipped", zap.String("steam_id", steamID), zap.Error(err))
	}
	return p
}

// Disconnect tears down the session. In-flight persistence still completes;
// its rejoin finds the player gone and does nothing.
func (h *Host) Disconnect(steamID string) {
	h.reg.Disconnect(steamID)
}

// Tick is the per-tick heartbeat: completed persistence rejoins first, then
// every machine advances.
func (h *Host) Tick() {
	h.disp.Drain()
	h.reg.Each(func(p *session.Player) { p.Machine.Tick() })
}

// Zone events. Unknown players drop silently; these race with disconnect.

func (h *Host) EnterStartZone(steamID string, course int) {
	if p, ok := h.reg.Get(steamID); ok {
		p.Machine.EnterStartZone(course)
	}
}

func (h *Host) ExitStartZone(steamID string, course int) {
	if p, ok := h.reg.Get(steamID); ok {
		p.Machine.ExitStartZone(course)
	}
}

func (h *Host) EnterStageZone(steamID string, stage int, velocity string) {
	if p, ok := h.reg.Get(steamID); ok {
		p.Machine.EnterStageZone(stage, velocity)
	}
}

func (h *Host) EnterEndZone(steamID string, course int) {
	if p, ok := h.reg.Get(steamID); ok {
		p.Machine.EnterEndZone(course)
	}
}

// StartOrStopRun implements the restart command: an active run stops, an
// idle player re-arms the course (the host teleports them to its start).
func (h *Host) StartOrStopRun(steamID string, course int) error {
	p, ok := h.reg.Get(steamID)
	if !ok {
		return ErrUnknownPlayer
	}
	if p.Machine.Blocked() {
		return timer.ErrBlocked
	}
	if p.Machine.ActiveCourse() >= 0 {
		return p.Machine.StopRun()
	}
	p.Machine.EnterStartZone(course)
	return nil
}

// ToggleBlocked flips the player's timer off or on.
func (h *Host) ToggleBlocked(steamID string) (bool, error) {
	p, ok := h.reg.Get(steamID)
	if !ok {
		return false, ErrUnknownPlayer
	}
	blocked := p.Machine.ToggleBlocked()
	if blocked {
		p.Checkpoints.Clear()
	}
	return blocked, nil
}

// SaveCheckpoint stores the player's current snapshot.
func (h *Host) SaveCheckpoint(steamID string, snap checkpoint.Snapshot, override bool) error {
	p, ok := h.reg.Get(steamID)
	if !ok {
		return ErrUnknownPlayer
	}
	grounded := true
	if h.Grounded != nil {
		grounded = h.Grounded(steamID)
	}
	return p.Checkpoints.Save(snap, checkpoint.SaveContext{
		Grounded:  grounded,
		Override:  override,
		Exempt:    p.PracticeMode,
		Replaying: p.Machine.Replaying(),
	})
}

// LoadCheckpoint navigates the checkpoint list and teleports the player.
func (h *Host) LoadCheckpoint(steamID string, dir Direction) (checkpoint.Snapshot, error) {
	p, ok := h.reg.Get(steamID)
	if !ok {
		return checkpoint.Snapshot{}, ErrUnknownPlayer
	}
	var (
		snap checkpoint.Snapshot
		err  error
	)
	switch dir {
	case Previous:
		snap, err = p.Checkpoints.Previous()
	case Next:
		snap, err = p.Checkpoints.Next()
	default:
		snap, err = p.Checkpoints.Load()
	}
	if err != nil {
		return checkpoint.Snapshot{}, err
	}
	if h.Teleport != nil {
		h.Teleport(steamID, snap)
	}
	return snap, nil
}

// RequestTop serves the map leaderboard command.
func (h *Host) RequestTop(ctx context.Context, style, limit int) ([]domain.LeaderboardEntry, error) {
	return h.eng.Top(ctx, h.mapName, style, limit)
}

// RequestRank serves the personal rank command for the active map.
func (h *Host) RequestRank(ctx context.Context, steamID string) (domain.PlayerRank, bool, error) {
	p, ok := h.reg.Get(steamID)
	if !ok {
		return domain.PlayerRank{}, false, ErrUnknownPlayer
	}
	return h.eng.Rank(ctx, h.mapName, steamID, p.Machine.Style())
}

// hooksFor wires a fresh machine's outbound edges back into the host.
func (h *Host) hooksFor(steamID string) timer.Hooks {
	return timer.Hooks{
		OnArm: func(course int) {
			if p, ok := h.reg.Get(steamID); ok {
				p.Checkpoints.Clear()
			}
			if h.ClampSpeed != nil {
				h.ClampSpeed(steamID, h.cfg.StartSpeedCap)
			}
		},
		OnReset: func(course int) {
			if p, ok := h.reg.Get(steamID); ok {
				p.Checkpoints.Clear()
			}
		},
		OnFinish: func(ev timer.FinishEvent) {
			// A finish ends the run boundary the same way a restart does:
			// saved checkpoints do not survive into the next attempt.
			if p, ok := h.reg.Get(steamID); ok {
				p.Checkpoints.Clear()
			}
			h.submitFinish(steamID, ev)
		},
		OnStageFinish: func(ev timer.StageEvent) { h.submitStage(steamID, ev) },
	}
}

func (h *Host) submitFinish(steamID string, ev timer.FinishEvent) {
	p, ok := h.reg.Get(steamID)
	if !ok || p.PracticeMode {
		return
	}
	in := points.FinishInput{
		MapName:    h.mapName,
		MapTier:    h.mapTier,
		SteamID:    steamID,
		PlayerName: p.Name,
		Course:     ev.Course,
		Style:      ev.Style,
		Ticks:      ev.Ticks,
	}
	var res points.FinishResult
	err := h.disp.Submit(dispatch.Job{
		SteamID: steamID,
		Kind:    "finish",
		Do: func(ctx context.Context) error {
			var err error
			res, err = h.eng.HandleFinish(ctx, in)
			return err
		},
		Rejoin: func(err error) {
			if err != nil {
				return
			}
			if _, ok := h.reg.Get(steamID); !ok {
				return
			}
			if h.Notify != nil {
				h.Notify(res)
			}
		},
	})
	if err != nil {
		obslog.L().Error("finish_persist_dropped",
			zap.String("steam_id", steamID),
			zap.String("map", in.MapName),
			zap.Int64("ticks", in.Ticks),
		)
	}
}

func (h *Host) submitStage(steamID string, ev timer.StageEvent) {
	p, ok := h.reg.Get(steamID)
	if !ok || p.PracticeMode {
		return
	}
	in := points.StageInput{
		MapName:  h.mapName,
		SteamID:  steamID,
		Stage:    ev.Stage,
		Ticks:    ev.Ticks,
		Velocity: ev.Velocity,
	}
	err := h.disp.Submit(dispatch.Job{
		SteamID: steamID,
		Kind:    "stage",
		Do:      func(ctx context.Context) error { return h.eng.HandleStageFinish(ctx, in) },
	})
	if err != nil {
		obslog.L().Error("stage_persist_dropped",
			zap.String("steam_id", steamID),
			zap.String("map", in.MapName),
			zap.Int("stage", in.Stage),
		)
	}
}
