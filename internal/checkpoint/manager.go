// Package checkpoint keeps a player's saved position snapshots with circular
// navigation. The manager never touches the game world; the host teleports
// using whatever Load returns.
package checkpoint

import "errors"

var (
	ErrNotGrounded = errors.New("must be grounded to save a checkpoint")
	ErrReplaying   = errors.New("checkpoints are disabled while replaying")
	ErrEmpty       = errors.New("no checkpoint saved")
)

// Snapshot is a saved player state. Vectors stay opaque strings at this
// boundary; only the engine layer knows their encoding.
type Snapshot struct {
	Position string
	Rotation string
	Velocity string
}

// SaveContext carries the conditions the manager needs to accept a save.
type SaveContext struct {
	Grounded  bool // host probe: player standing on ground
	Override  bool // admin/practice override of the grounded rule
	Exempt    bool // timer mode that waives the grounded rule entirely
	Replaying bool
}

// Manager is one player's checkpoint list. Not safe for concurrent use; it
// lives on the host tick loop like the rest of the gameplay state.
type Manager struct {
	list []Snapshot
	idx  int
}

func New() *Manager { return &Manager{} }

// Save appends a snapshot and points navigation at it.
func (m *Manager) Save(s Snapshot, sc SaveContext) error {
	if sc.Replaying {
		return ErrReplaying
	}
	if !sc.Grounded && !sc.Override && !sc.Exempt {
		return ErrNotGrounded
	}
	m.list = append(m.list, s)
	m.idx = len(m.list) - 1
	return nil
}

// Load returns the currently indexed snapshot.
func (m *Manager) Load() (Snapshot, error) {
	if len(m.list) == 0 {
		return Snapshot{}, ErrEmpty
	}
	return m.list[m.idx], nil
}

// Previous moves the navigation index back one entry, wrapping at the front,
// and returns the snapshot there. A single-entry list just reloads it.
func (m *Manager) Previous() (Snapshot, error) {
	return m.step(-1)
}

// Next moves the navigation index forward one entry, wrapping at the end.
func (m *Manager) Next() (Snapshot, error) {
	return m.step(1)
}

func (m *Manager) step(d int) (Snapshot, error) {
	n := len(m.list)
	if n == 0 {
		return Snapshot{}, ErrEmpty
	}
	if n == 1 {
		return m.list[0], nil
	}
	m.idx = ((m.idx+d)%n + n) % n
	return m.list[m.idx], nil
}

// Clear drops every snapshot. Called on run boundaries: start, finish,
// restart, block toggle and disconnect.
func (m *Manager) Clear() {
	m.list = m.list[:0]
	m.idx = 0
}

// Count reports how many snapshots are stored.
func (m *Manager) Count() int { return len(m.list) }

// Index reports the current navigation position.
func (m *Manager) Index() int { return m.idx }
