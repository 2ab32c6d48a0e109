// Package timectrl drives the simulation from outside: a Scheduler calls a
// single tick function on a speed-scaled interval, and clocks are
// injectable so the loop can be tested without real timers.
package timectrl

import (
	"context"
	"math"
	"sync"
	"time"
)

// SimClock is the time source used by the Scheduler.
type SimClock interface {
	// Now returns the current time.
	Now() time.Time
	// NewTimer returns a timer that fires once d has elapsed.
	NewTimer(d time.Duration) Timer
}

// Timer is a single-shot timer. Stop releases a timer that has not fired.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) NewTimer(d time.Duration) Timer { return wallTimer{time.NewTimer(d)} }

type wallTimer struct{ t *time.Timer }

func (w wallTimer) C() <-chan time.Time { return w.t.C }
func (w wallTimer) Stop() bool          { return w.t.Stop() }

// WallClock returns a SimClock backed by the time package.
func WallClock() SimClock { return wallClock{} }

// Mode describes how the Scheduler paces ticks.
type Mode int

const (
	// RealTime waits interval/speed between ticks.
	RealTime Mode = iota
	// Accelerated runs ticks back to back.
	Accelerated
)

const (
	MinSpeed = 0.1
	MaxSpeed = 10.0
)

// TickFunc runs one tick. Returning false pauses the Scheduler.
type TickFunc func(ctx context.Context) bool

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c SimClock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMode selects the pacing mode.
func WithMode(m Mode) Option {
	return func(s *Scheduler) { s.mode = m }
}

// WithSpeed sets the initial speed multiplier.
func WithSpeed(v float64) Option {
	return func(s *Scheduler) { s.speed = clampSpeed(v) }
}

// Scheduler repeatedly invokes a TickFunc while resumed. Ticks never
// overlap: the next wait starts only after the previous tick returned.
type Scheduler struct {
	mu       sync.Mutex
	clock    SimClock
	interval time.Duration
	speed    float64
	mode     Mode
	running  bool
	ticks    int

	fn        TickFunc
	wake      chan struct{}
	listeners []func(tick int)
}

// NewScheduler builds a paused scheduler that calls fn every interval at
// speed 1.
func NewScheduler(interval time.Duration, fn TickFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    WallClock(),
		interval: interval,
		speed:    1,
		fn:       fn,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// AddListener registers a callback invoked after every tick with the tick
// count.
func (s *Scheduler) AddListener(fn func(tick int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Resume starts or continues ticking.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.notify()
}

// Pause stops ticking after any tick in progress.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.notify()
}

// Running reports whether the scheduler is resumed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetSpeed changes the speed multiplier, clamped to [MinSpeed, MaxSpeed].
// A pending wait restarts with the new delay.
func (s *Scheduler) SetSpeed(v float64) float64 {
	s.mu.Lock()
	s.speed = clampSpeed(v)
	speed := s.speed
	s.mu.Unlock()
	s.notify()
	return speed
}

// SetInterval changes the base interval.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	s.notify()
}

// Speed returns the current multiplier.
func (s *Scheduler) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// Ticks returns the number of ticks run so far.
func (s *Scheduler) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Delay returns the wait before the next tick.
func (s *Scheduler) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayLocked()
}

func (s *Scheduler) delayLocked() time.Duration {
	if s.mode == Accelerated {
		return 0
	}
	return time.Duration(float64(s.interval) / s.speed)
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives ticks until ctx is cancelled and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		// Controls that landed before the state read below are already
		// reflected in it.
		s.drainWake()

		s.mu.Lock()
		running, delay := s.running, s.delayLocked()
		s.mu.Unlock()

		if !running {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}

		if delay > 0 {
			if fired, err := s.wait(ctx, delay); err != nil {
				return err
			} else if !fired {
				continue
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		// Pause may have landed while waiting.
		if !s.Running() {
			continue
		}

		cont := s.fn(ctx)

		s.mu.Lock()
		s.ticks++
		n := s.ticks
		if !cont {
			s.running = false
		}
		listeners := append([]func(int){}, s.listeners...)
		s.mu.Unlock()

		for _, fn := range listeners {
			fn(n)
		}
	}
}

// wait blocks for delay. It reports false when a control woke it first; the
// timer is stopped so the clock does not keep the abandoned wait.
func (s *Scheduler) wait(ctx context.Context, delay time.Duration) (bool, error) {
	t := s.clock.NewTimer(delay)
	select {
	case <-ctx.Done():
		t.Stop()
		return false, ctx.Err()
	case <-s.wake:
		t.Stop()
		return false, nil
	case <-t.C():
		return true, nil
	}
}

func (s *Scheduler) drainWake() {
	select {
	case <-s.wake:
	default:
	}
}

// Start runs the scheduler in a goroutine. The returned channel is closed
// once ctx is cancelled and the loop has exited.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	return done
}

func clampSpeed(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 1
	case v < MinSpeed:
		return MinSpeed
	case v > MaxSpeed:
		return MaxSpeed
	default:
		return v
	}
}
