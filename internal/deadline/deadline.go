// Package deadline derives answer-window time from server-anchored deadlines.
package deadline

import (
	"sync"
	"time"
)

// Deadline is an authoritative answer window: Anchor plus Limit.
type Deadline struct {
	Anchor time.Time
	Limit  time.Duration
}

// End is the wall-clock instant the window closes.
func (d Deadline) End() time.Time {
	return d.Anchor.Add(d.Limit)
}

// Remaining is Anchor + Limit - now, clamped to zero.
func (d Deadline) Remaining(now time.Time) time.Duration {
	return clamp(d.End().Sub(now))
}

// Tracker holds the current deadline. Each Refresh replaces it wholesale and
// pins the end instant to now's monotonic reading, so later Remaining calls
// are immune to wall-clock steps between refreshes. A Tracker is owned by a
// single goroutine.
type Tracker struct {
	current *Deadline
	end     time.Time
}

// Refresh replaces the deadline as observed at now.
func (t *Tracker) Refresh(d Deadline, now time.Time) {
	t.current = &d
	t.end = now.Add(d.End().Sub(now))
}

// Remaining returns the time left and false when no deadline is set.
func (t *Tracker) Remaining(now time.Time) (time.Duration, bool) {
	if t.current == nil {
		return 0, false
	}
	return clamp(t.end.Sub(now)), true
}

// Current returns the active deadline, if any.
func (t *Tracker) Current() (Deadline, bool) {
	if t.current == nil {
		return Deadline{}, false
	}
	return *t.current, true
}

func (t *Tracker) Clear() {
	t.current = nil
	t.end = time.Time{}
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// Timer raises a one-shot expiry callback. Arm reschedules it; a fire from
// a superseded arm is dropped.
type Timer struct {
	fire func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	fired bool
}

func NewTimer(fire func()) *Timer {
	if fire == nil {
		fire = func() {}
	}
	return &Timer{fire: fire}
}

// Arm schedules expiry after d. A non-positive d fires immediately on
// another goroutine.
func (t *Timer) Arm(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	t.fired = false
	gen := t.gen
	t.timer = time.AfterFunc(clamp(d), func() {
		t.mu.Lock()
		if gen != t.gen || t.fired {
			t.mu.Unlock()
			return
		}
		t.fired = true
		t.mu.Unlock()
		t.fire()
	})
}

// Stop cancels a pending expiry. It is safe to call repeatedly.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Fired reports whether the current arm has expired.
func (t *Timer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Countdown is the local display counter. It has no authority over
// recording; it only feeds banners.
type Countdown struct {
	value int
}

func (c *Countdown) Start(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	c.value = seconds
}

// Tick decrements the counter and returns the new value, never below zero.
func (c *Countdown) Tick() int {
	if c.value > 0 {
		c.value--
	}
	return c.value
}

func (c *Countdown) Value() int {
	return c.value
}
