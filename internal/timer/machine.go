// Package timer implements the per-player run lifecycle: one state machine
// instance per course (main course 0 plus numbered bonuses), driven by zone
// events from the trigger layer and by explicit player commands.
//
// All methods run on the host tick loop; nothing here is safe for concurrent
// use and nothing here blocks.
package timer

import "errors"

type State int

const (
	StateIdle State = iota
	StateArmed
	StateRunning
	StateBlocked
	StateReplaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateReplaying:
		return "replaying"
	default:
		return "unknown"
	}
}

// MainCourse is the course id of the map's main route; bonuses are 1..N.
const MainCourse = 0

var (
	ErrBlocked    = errors.New("timer is blocked")
	ErrRunActive  = errors.New("a run is active")
	ErrNotRunning = errors.New("no active run")
	ErrNotReplay  = errors.New("not replaying")
	ErrReplayBusy = errors.New("replay already active")
)

// FinishEvent reports a completed course run.
type FinishEvent struct {
	Course int
	Style  int
	Ticks  int64
}

// StageEvent reports a stage split during a main-course run.
type StageEvent struct {
	Stage    int
	Style    int
	Ticks    int64
	Velocity string
}

// Hooks are the machine's outbound edges. Any hook may be nil.
type Hooks struct {
	// OnArm fires when a run arms; the host clears checkpoints and applies
	// the start speed clamp there.
	OnArm func(course int)
	// OnReset fires when a run is abandoned (restart, block, course switch).
	OnReset func(course int)
	OnFinish      func(FinishEvent)
	OnStageFinish func(StageEvent)
}

// run is the per-course lifecycle state.
type run struct {
	state  State
	ticks  int64
	splits map[int]int64
}

// Snapshot is a read-only view of one course's run, for HUD-style readouts.
type Snapshot struct {
	Course int
	State  State
	Style  int
	Ticks  int64
}

// Machine owns every course run for a single player. The blocked and
// replaying conditions apply to the player as a whole.
type Machine struct {
	hooks     Hooks
	style     int
	blocked   bool
	replaying bool

	runs   map[int]*run
	active int // course currently Armed or Running, -1 when none
}

func NewMachine(hooks Hooks) *Machine {
	return &Machine{
		hooks:  hooks,
		runs:   map[int]*run{MainCourse: newRun()},
		active: -1,
	}
}

func newRun() *run {
	return &run{state: StateIdle, splits: make(map[int]int64)}
}

func (m *Machine) course(c int) *run {
	r, ok := m.runs[c]
	if !ok {
		r = newRun()
		m.runs[c] = r
	}
	return r
}

// Style returns the player's current movement style.
func (m *Machine) Style() int { return m.style }

// SetStyle switches the movement style. A running or armed course is reset
// first since the style is a leaderboard dimension of the whole run.
func (m *Machine) SetStyle(style int) {
	if m.active >= 0 {
		m.resetCourse(m.active)
	}
	m.style = style
}

// Snapshot reports the state of one course.
func (m *Machine) Snapshot(course int) Snapshot {
	r := m.course(course)
	st := r.state
	if m.replaying {
		st = StateReplaying
	} else if m.blocked {
		st = StateBlocked
	}
	return Snapshot{Course: course, State: st, Style: m.style, Ticks: r.ticks}
}

// ActiveCourse returns the course that is Armed or Running, or -1.
func (m *Machine) ActiveCourse() int { return m.active }

// StageSplit returns the recorded split for a stage of the main course.
func (m *Machine) StageSplit(stage int) (int64, bool) {
	t, ok := m.course(MainCourse).splits[stage]
	return t, ok
}

// Tick advances the active run by one server tick. Ticks only accumulate in
// the Running state; every other state ignores the heartbeat.
func (m *Machine) Tick() {
	if m.blocked || m.replaying || m.active < 0 {
		return
	}
	if r := m.course(m.active); r.state == StateRunning {
		r.ticks++
	}
}

// EnterStartZone arms the course. Entering the volume never starts the clock;
// that happens on exit, so loitering in the start zone cannot re-trigger a
// run. Arming one course abandons any run on another.
func (m *Machine) EnterStartZone(course int) {
	if m.blocked || m.replaying {
		return
	}
	if m.active >= 0 && m.active != course {
		m.resetCourse(m.active)
	}
	r := m.course(course)
	r.state = StateArmed
	r.ticks = 0
	clear(r.splits)
	m.active = course
	if m.hooks.OnArm != nil {
		m.hooks.OnArm(course)
	}
}

// ExitStartZone starts the clock for an armed course.
func (m *Machine) ExitStartZone(course int) {
	if m.blocked || m.replaying {
		return
	}
	if r := m.course(course); r.state == StateArmed {
		r.state = StateRunning
	}
}

// EnterStageZone records a split. Stage 1 is the start segment and has no
// split; events outside a running main-course run are race artifacts of
// asynchronous zone detection. Both are dropped.
func (m *Machine) EnterStageZone(stage int, velocity string) {
	if m.blocked || m.replaying || stage < 2 {
		return
	}
	r := m.course(MainCourse)
	if r.state != StateRunning || m.active != MainCourse {
		return
	}
	if _, seen := r.splits[stage]; seen {
		return
	}
	r.splits[stage] = r.ticks
	if m.hooks.OnStageFinish != nil {
		m.hooks.OnStageFinish(StageEvent{Stage: stage, Style: m.style, Ticks: r.ticks, Velocity: velocity})
	}
}

// EnterEndZone finishes a running course: the elapsed ticks go to the finish
// hook and the course returns to Idle. An end zone touched without ever
// leaving the start volume finds the course Armed, not Running, and does
// nothing.
func (m *Machine) EnterEndZone(course int) {
	if m.blocked || m.replaying {
		return
	}
	r := m.course(course)
	if r.state != StateRunning {
		return
	}
	ev := FinishEvent{Course: course, Style: m.style, Ticks: r.ticks}
	r.state = StateIdle
	r.ticks = 0
	clear(r.splits)
	m.active = -1
	if m.hooks.OnFinish != nil {
		m.hooks.OnFinish(ev)
	}
}

// StopRun abandons the active run, if any.
func (m *Machine) StopRun() error {
	if m.blocked {
		return ErrBlocked
	}
	if m.active < 0 {
		return ErrNotRunning
	}
	m.resetCourse(m.active)
	return nil
}

// ToggleBlocked flips the blocked condition. Blocking abandons the active
// run; while blocked every zone event is ignored.
func (m *Machine) ToggleBlocked() bool {
	if m.blocked {
		m.blocked = false
		return false
	}
	if m.active >= 0 {
		m.resetCourse(m.active)
	}
	m.blocked = true
	return true
}

// Blocked reports the blocked condition.
func (m *Machine) Blocked() bool { return m.blocked }

// Replaying reports whether ghost playback owns the player.
func (m *Machine) Replaying() bool { return m.replaying }

// StartReplay enters ghost playback. Only allowed when no run is armed or
// running; zone and tick events are suppressed until StopReplay.
func (m *Machine) StartReplay() error {
	if m.replaying {
		return ErrReplayBusy
	}
	if m.active >= 0 {
		return ErrRunActive
	}
	m.replaying = true
	return nil
}

// StopReplay exits ghost playback back to Idle. Also called by the host at
// end-of-ghost.
func (m *Machine) StopReplay() error {
	if !m.replaying {
		return ErrNotReplay
	}
	m.replaying = false
	m.blocked = false
	return nil
}

func (m *Machine) resetCourse(course int) {
	r := m.course(course)
	r.state = StateIdle
	r.ticks = 0
	clear(r.splits)
	if m.active == course {
		m.active = -1
	}
	if m.hooks.OnReset != nil {
		m.hooks.OnReset(course)
	}
}
