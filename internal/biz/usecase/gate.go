package usecase

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
)

// Timer is a pending trigger that can be cancelled
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// GateOption configures a ScheduleGate
type GateOption func(*ScheduleGate)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) GateOption {
	return func(g *ScheduleGate) { g.now = now }
}

// WithAfterFunc overrides trigger scheduling
func WithAfterFunc(f AfterFunc) GateOption {
	return func(g *ScheduleGate) { g.afterFunc = f }
}

// ScheduleGate is the time-window state machine deciding whether relaying is active.
// Only transition logic writes the active flag; everything else reads it.
type ScheduleGate struct {
	active atomic.Bool

	mu         sync.Mutex
	window     domain.ScheduleWindow
	started    bool
	generation uint64
	startTimer Timer
	endTimer   Timer
	listeners  []func(domain.Transition)

	now       func() time.Time
	afterFunc AfterFunc
	log       zerolog.Logger
}

// NewScheduleGate creates a gate whose initial state is evaluated from window at construction
func NewScheduleGate(window domain.ScheduleWindow, log zerolog.Logger, opts ...GateOption) *ScheduleGate {
	g := &ScheduleGate{
		window:    window,
		now:       time.Now,
		afterFunc: realAfterFunc,
		log:       log.With().Str("component", "schedule").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.active.Store(window.ActiveAt(g.now()))
	return g
}

// IsActive returns the current active flag
func (g *ScheduleGate) IsActive() bool {
	return g.active.Load()
}

// Window returns the current schedule window
func (g *ScheduleGate) Window() domain.ScheduleWindow {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window
}

// OnTransition registers a listener called after every state change.
// Listeners run synchronously on the goroutine that caused the change.
func (g *ScheduleGate) OnTransition(fn func(domain.Transition)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Start arms the daily triggers
func (g *ScheduleGate) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return
	}
	g.started = true
	g.armLocked()
}

// Stop cancels all pending triggers
func (g *ScheduleGate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started = false
	g.generation++
	g.disarmLocked()
}

// Reload tears down pending triggers, installs window and recomputes the active flag.
// A state change caused by reload is reported with CauseReload.
func (g *ScheduleGate) Reload(window domain.ScheduleWindow) {
	g.mu.Lock()
	g.generation++
	g.disarmLocked()
	g.window = window
	if g.started {
		g.armLocked()
	}
	g.mu.Unlock()

	if window.Enabled && window.Empty() {
		g.log.Warn().Str("window", window.String()).Msg("Schedule window is empty, relaying stays paused")
	}
	g.log.Info().Str("window", window.String()).Msg("Schedule reloaded")
	g.set(window.ActiveAt(g.now()), domain.CauseReload)
}

// Fire applies a trigger. Returns true when the state changed.
func (g *ScheduleGate) Fire(active bool, cause domain.TransitionCause) bool {
	return g.set(active, cause)
}

// CheckDrift recomputes the expected state from the wall clock and corrects it.
// Returns true when drift was found.
func (g *ScheduleGate) CheckDrift() bool {
	window := g.Window()
	expected := window.ActiveAt(g.now())
	if expected == g.IsActive() {
		return false
	}
	g.log.Warn().
		Bool("expected", expected).
		Bool("actual", !expected).
		Msg("Schedule state drift detected, correcting")
	return g.set(expected, domain.CauseDrift)
}

// NextEvents returns the next activation and deactivation instants, ok=false when no triggers exist
func (g *ScheduleGate) NextEvents() (start, end time.Time, ok bool) {
	window := g.Window()
	if !window.Enabled || window.Empty() {
		return time.Time{}, time.Time{}, false
	}
	now := g.now()
	return window.NextStart(now), window.NextEnd(now), true
}

func (g *ScheduleGate) set(active bool, cause domain.TransitionCause) bool {
	if g.active.Swap(active) == active {
		return false
	}

	tr := domain.Transition{Active: active, Cause: cause, At: g.now()}
	g.log.Info().
		Bool("active", active).
		Str("cause", string(cause)).
		Msg("Relay state changed")

	g.mu.Lock()
	listeners := make([]func(domain.Transition), len(g.listeners))
	copy(listeners, g.listeners)
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(tr)
	}
	return true
}

func (g *ScheduleGate) armLocked() {
	if !g.window.Enabled || g.window.Empty() {
		return
	}
	gen := g.generation
	now := g.now()
	g.startTimer = g.scheduleLocked(gen, g.window.NextStart(now), true)
	g.endTimer = g.scheduleLocked(gen, g.window.NextEnd(now), false)
}

func (g *ScheduleGate) scheduleLocked(gen uint64, at time.Time, activate bool) Timer {
	delay := at.Sub(g.now())
	if delay < 0 {
		delay = 0
	}
	return g.afterFunc(delay, func() { g.trigger(gen, activate) })
}

// trigger runs a daily trigger and re-arms it for the next day
func (g *ScheduleGate) trigger(gen uint64, activate bool) {
	g.mu.Lock()
	if gen != g.generation || !g.started {
		g.mu.Unlock()
		return
	}
	window := g.window
	next := g.scheduleLocked(gen, g.nextAfterTrigger(window, activate), activate)
	if activate {
		g.startTimer = next
	} else {
		g.endTimer = next
	}
	g.mu.Unlock()

	cause := domain.CauseEndTrigger
	if activate {
		cause = domain.CauseStartTrigger
	}
	g.set(activate, cause)
}

// nextAfterTrigger avoids re-arming for the same instant when a timer fires slightly early
func (g *ScheduleGate) nextAfterTrigger(window domain.ScheduleWindow, activate bool) time.Time {
	from := g.now().Add(time.Second)
	if activate {
		return window.NextStart(from)
	}
	return window.NextEnd(from)
}

func (g *ScheduleGate) disarmLocked() {
	if g.startTimer != nil {
		g.startTimer.Stop()
		g.startTimer = nil
	}
	if g.endTimer != nil {
		g.endTimer.Stop()
		g.endTimer = nil
	}
}
