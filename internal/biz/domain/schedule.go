package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day with second precision
type ClockTime struct {
	Hour   int
	Minute int
	Second int
}

// ParseClockTime parses "HH:MM" or "HH:MM:SS"
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return ClockTime{}, fmt.Errorf("invalid time %q: expected HH:MM or HH:MM:SS", s)
	}

	var vals [3]int
	limits := [3]int{23, 59, 59}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return ClockTime{}, fmt.Errorf("invalid time %q", s)
		}
		vals[i] = v
	}
	return ClockTime{Hour: vals[0], Minute: vals[1], Second: vals[2]}, nil
}

// SecondsOfDay returns the offset from midnight in seconds
func (c ClockTime) SecondsOfDay() int {
	return c.Hour*3600 + c.Minute*60 + c.Second
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// On returns the instant at this clock time on the calendar day of t, in loc
func (c ClockTime) On(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, c.Second, 0, loc)
}

// ScheduleWindow is the daily period during which relaying is active.
// The window is half-open [Start, End). When End is earlier than Start the
// window spans midnight. Start equal to End is an empty window.
type ScheduleWindow struct {
	Enabled  bool
	Start    ClockTime
	End      ClockTime
	Location *time.Location
}

func (w ScheduleWindow) location() *time.Location {
	if w.Location == nil {
		return time.Local
	}
	return w.Location
}

// Empty reports whether the window can never contain an instant
func (w ScheduleWindow) Empty() bool {
	return w.Start.SecondsOfDay() == w.End.SecondsOfDay()
}

// SpansMidnight reports whether the window crosses midnight
func (w ScheduleWindow) SpansMidnight() bool {
	return w.End.SecondsOfDay() < w.Start.SecondsOfDay()
}

// Contains reports whether t falls inside the window, ignoring Enabled
func (w ScheduleWindow) Contains(t time.Time) bool {
	t = t.In(w.location())
	now := t.Hour()*3600 + t.Minute()*60 + t.Second()
	start, end := w.Start.SecondsOfDay(), w.End.SecondsOfDay()

	switch {
	case start == end:
		return false
	case start < end:
		return now >= start && now < end
	default:
		return now >= start || now < end
	}
}

// ActiveAt is the gate predicate: always active when scheduling is disabled
func (w ScheduleWindow) ActiveAt(t time.Time) bool {
	if !w.Enabled {
		return true
	}
	return w.Contains(t)
}

// NextOccurrence returns the first instant strictly after from at clock time c
func (w ScheduleWindow) NextOccurrence(c ClockTime, from time.Time) time.Time {
	loc := w.location()
	next := c.On(from, loc)
	if !next.After(from) {
		next = c.On(from.In(loc).AddDate(0, 0, 1), loc)
	}
	return next
}

// NextStart returns the next activation instant after from
func (w ScheduleWindow) NextStart(from time.Time) time.Time {
	return w.NextOccurrence(w.Start, from)
}

// NextEnd returns the next deactivation instant after from
func (w ScheduleWindow) NextEnd(from time.Time) time.Time {
	return w.NextOccurrence(w.End, from)
}

func (w ScheduleWindow) String() string {
	if !w.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%s-%s %s", w.Start, w.End, w.location())
}

// TransitionCause says what moved the gate
type TransitionCause string

const (
	CauseStartTrigger TransitionCause = "start"
	CauseEndTrigger   TransitionCause = "end"
	CauseDrift        TransitionCause = "drift"
	CauseReload       TransitionCause = "reload"
)

// Transition is a change of the gate's active flag
type Transition struct {
	Active bool
	Cause  TransitionCause
	At     time.Time
}

// Notification renders the admin notification text, empty for silent causes
func (t Transition) Notification() string {
	if t.Cause == CauseReload {
		return ""
	}
	at := t.At.Format("15:04:05")
	if t.Active {
		return fmt.Sprintf("Relay activated by schedule at %s. Messages are being relayed again.", at)
	}
	return fmt.Sprintf("Relay paused by schedule at %s. Messages are no longer relayed.", at)
}
