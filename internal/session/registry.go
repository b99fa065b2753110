// Package session tracks connected players. The registry replaces the
// classic per-slot global arrays: entries are keyed by SteamID, created on
// connect, removed on disconnect, and every lookup is existence-checked.
package session

import (
	"sync"
	"time"

	"github.com/halcyon271/strafetimer/internal/checkpoint"
	"github.com/halcyon271/strafetimer/internal/domain"
	"github.com/halcyon271/strafetimer/internal/timer"
)

// Player is the ephemeral per-connection state. The machine and checkpoint
// manager are only touched on the tick loop; the registry map itself is
// locked because connect/disconnect may originate elsewhere in the host.
type Player struct {
	SteamID     string
	Name        string
	ConnectedAt time.Time

	Machine     *timer.Machine
	Checkpoints *checkpoint.Manager

	// Profile holds the persisted stats and preference row. Filled in by the
	// connect rejoin once the store answers; zero until then.
	Profile domain.Profile

	// PracticeMode exempts the player from run recording and from the
	// checkpoint grounded rule.
	PracticeMode bool
}

type Registry struct {
	mu      sync.RWMutex
	players map[string]*Player
}

func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// Connect registers a player, replacing any stale entry for the same id.
// The hooks are attached to the player's fresh timer machine.
func (r *Registry) Connect(steamID, name string, hooks timer.Hooks) *Player {
	p := &Player{
		SteamID:     steamID,
		Name:        name,
		ConnectedAt: time.Now(),
		Machine:     timer.NewMachine(hooks),
		Checkpoints: checkpoint.New(),
	}
	r.mu.Lock()
	r.players[steamID] = p
	r.mu.Unlock()
	return p
}

// Get returns the player for an id. Zone events for ids that miss here race
// with connect/disconnect and are treated as no-ops by callers.
func (r *Registry) Get(steamID string) (*Player, bool) {
	r.mu.RLock()
	p, ok := r.players[steamID]
	r.mu.RUnlock()
	return p, ok
}

// Disconnect removes a player. In-flight persistence for them still
// completes; only gameplay state goes away.
func (r *Registry) Disconnect(steamID string) {
	r.mu.Lock()
	delete(r.players, steamID)
	r.mu.Unlock()
}

// Each visits every connected player; the host tick loop uses this for the
// per-tick heartbeat.
func (r *Registry) Each(fn func(*Player)) {
	r.mu.RLock()
	snapshot := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		snapshot = append(snapshot, p)
	}
	r.mu.RUnlock()
	for _, p := range snapshot {
		fn(p)
	}
}

// Len reports the number of connected players.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}
