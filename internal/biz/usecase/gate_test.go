package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) pending() []*fakeTimer {
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

func clockAt(hh, mm int) time.Time {
	return time.Date(2024, 5, 10, hh, mm, 0, 0, time.UTC)
}

func window(start, end string) domain.ScheduleWindow {
	s, _ := domain.ParseClockTime(start)
	e, _ := domain.ParseClockTime(end)
	return domain.ScheduleWindow{Enabled: true, Start: s, End: e, Location: time.UTC}
}

func newTestGate(w domain.ScheduleWindow, now time.Time) (*ScheduleGate, *fakeClock, *fakeScheduler) {
	clock := &fakeClock{now: now}
	sched := &fakeScheduler{}
	g := NewScheduleGate(w, zerolog.Nop(), WithClock(clock.Now), WithAfterFunc(sched.AfterFunc))
	return g, clock, sched
}

func TestScheduleGate_InitialState(t *testing.T) {
	tests := []struct {
		name string
		w    domain.ScheduleWindow
		now  time.Time
		want bool
	}{
		{"inside day window", window("09:00", "17:00"), clockAt(10, 0), true},
		{"outside day window", window("09:00", "17:00"), clockAt(20, 0), false},
		{"inside overnight window", window("22:00", "06:00"), clockAt(23, 30), true},
		{"outside overnight window", window("22:00", "06:00"), clockAt(12, 0), false},
		{"disabled", domain.ScheduleWindow{}, clockAt(3, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _, _ := newTestGate(tt.w, tt.now)
			if got := g.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduleGate_TriggersFireAndRearm(t *testing.T) {
	g, clock, sched := newTestGate(window("09:00", "17:00"), clockAt(8, 0))
	var got []domain.Transition
	g.OnTransition(func(tr domain.Transition) { got = append(got, tr) })
	g.Start()

	timers := sched.pending()
	if len(timers) != 2 {
		t.Fatalf("pending timers = %d, want 2", len(timers))
	}
	start, end := timers[0], timers[1]
	if start.delay != time.Hour {
		t.Errorf("start delay = %v, want 1h", start.delay)
	}
	if end.delay != 9*time.Hour {
		t.Errorf("end delay = %v, want 9h", end.delay)
	}

	clock.Set(clockAt(9, 0))
	start.fn()
	if !g.IsActive() {
		t.Fatal("gate not active after start trigger")
	}
	if len(got) != 1 || got[0].Cause != domain.CauseStartTrigger || !got[0].Active {
		t.Fatalf("transitions = %+v", got)
	}

	// Start trigger re-armed for tomorrow
	rearmed := sched.timers[len(sched.timers)-1]
	if rearmed.delay != 24*time.Hour {
		t.Errorf("re-armed delay = %v, want 24h", rearmed.delay)
	}

	// A repeated activation is a no-op and emits nothing
	if g.Fire(true, domain.CauseStartTrigger) {
		t.Error("Fire(true) on active gate reported a change")
	}
	if len(got) != 1 {
		t.Errorf("no-op transition emitted: %+v", got)
	}

	clock.Set(clockAt(17, 0))
	end.fn()
	if g.IsActive() {
		t.Fatal("gate active after end trigger")
	}
	if len(got) != 2 || got[1].Cause != domain.CauseEndTrigger {
		t.Fatalf("transitions = %+v", got)
	}
}

func TestScheduleGate_ReloadDisarmsStaleTriggers(t *testing.T) {
	g, clock, sched := newTestGate(window("09:00", "17:00"), clockAt(10, 0))
	g.Start()
	old := sched.pending()

	var got []domain.Transition
	g.OnTransition(func(tr domain.Transition) { got = append(got, tr) })

	g.Reload(window("11:00", "12:00"))
	for _, tm := range old {
		if !tm.stopped {
			t.Error("old trigger still armed after reload")
		}
	}
	if g.IsActive() {
		t.Error("gate should be inactive at 10:00 for 11:00-12:00")
	}
	if len(got) != 1 || got[0].Cause != domain.CauseReload {
		t.Fatalf("transitions = %+v", got)
	}
	if got[0].Notification() != "" {
		t.Error("reload transition should not produce a notification")
	}

	// A stale callback from before the reload is ignored
	clock.Set(clockAt(17, 0))
	old[1].fn()
	if g.IsActive() {
		t.Error("stale trigger changed state")
	}

	if n := len(sched.pending()); n != 2 {
		t.Errorf("pending timers after reload = %d, want 2", n)
	}
}

func TestScheduleGate_EmptyWindowArmsNothing(t *testing.T) {
	g, _, sched := newTestGate(window("08:00", "08:00"), clockAt(8, 0))
	g.Start()
	if g.IsActive() {
		t.Error("empty window should be inactive")
	}
	if len(sched.timers) != 0 {
		t.Errorf("empty window armed %d timers", len(sched.timers))
	}
	if _, _, ok := g.NextEvents(); ok {
		t.Error("NextEvents reported triggers for empty window")
	}
}

func TestScheduleGate_CheckDrift(t *testing.T) {
	g, clock, _ := newTestGate(window("09:00", "17:00"), clockAt(10, 0))
	var got []domain.Transition
	g.OnTransition(func(tr domain.Transition) { got = append(got, tr) })

	if g.CheckDrift() {
		t.Error("drift reported while consistent")
	}

	// The end trigger was missed
	clock.Set(clockAt(18, 0))
	if !g.CheckDrift() {
		t.Fatal("drift not detected")
	}
	if g.IsActive() {
		t.Error("drift not corrected")
	}
	if len(got) != 1 || got[0].Cause != domain.CauseDrift || got[0].Notification() == "" {
		t.Fatalf("transitions = %+v", got)
	}
}

func TestScheduleGate_StopCancelsTriggers(t *testing.T) {
	g, _, sched := newTestGate(window("09:00", "17:00"), clockAt(10, 0))
	g.Start()
	g.Stop()
	if n := len(sched.pending()); n != 0 {
		t.Errorf("pending timers after Stop = %d", n)
	}
}
