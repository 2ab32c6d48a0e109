package timectrl

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func waitTick(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tick")
		return 0
	}
}

func newTestScheduler(t *testing.T, clock *ManualClock, opts ...Option) (*Scheduler, <-chan int) {
	t.Helper()
	ticks := make(chan int, 16)
	var n atomic.Int32
	s := NewScheduler(time.Second, func(context.Context) bool {
		ticks <- int(n.Add(1))
		return true
	}, append([]Option{WithClock(clock)}, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := s.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, ticks
}

func TestSchedulerTicksAtScaledInterval(t *testing.T) {
	clock := NewManualClock(epoch)
	s, ticks := newTestScheduler(t, clock, WithSpeed(2))

	if got := s.Delay(); got != 500*time.Millisecond {
		t.Fatalf("Delay() = %v, want 500ms", got)
	}

	s.Resume()
	clock.BlockUntil(1)
	clock.Advance(499 * time.Millisecond)
	if got := s.Ticks(); got != 0 {
		t.Fatalf("Ticks() = %d before the interval elapsed, want 0", got)
	}

	clock.Advance(time.Millisecond)
	if n := waitTick(t, ticks); n != 1 {
		t.Fatalf("first tick = %d, want 1", n)
	}

	clock.BlockUntil(1)
	clock.Advance(500 * time.Millisecond)
	if n := waitTick(t, ticks); n != 2 {
		t.Fatalf("second tick = %d, want 2", n)
	}
}

func TestSchedulerPauseStopsTicks(t *testing.T) {
	clock := NewManualClock(epoch)
	s, ticks := newTestScheduler(t, clock)

	s.Resume()
	clock.BlockUntil(1)
	s.Pause()
	clock.Advance(time.Second)

	select {
	case n := <-ticks:
		t.Fatalf("tick %d ran while paused", n)
	case <-time.After(20 * time.Millisecond):
	}
	if s.Running() {
		t.Fatalf("Running() = true after Pause")
	}

	s.Resume()
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	if n := waitTick(t, ticks); n != 1 {
		t.Fatalf("tick after resume = %d, want 1", n)
	}
}

func TestSchedulerSpeedChangeRestartsWait(t *testing.T) {
	clock := NewManualClock(epoch)
	s, ticks := newTestScheduler(t, clock)

	s.Resume()
	clock.BlockUntilDeadline(time.Second)
	if got := s.SetSpeed(25); got != MaxSpeed {
		t.Fatalf("SetSpeed(25) = %v, want %v", got, MaxSpeed)
	}

	clock.BlockUntilDeadline(100 * time.Millisecond)
	clock.Advance(100 * time.Millisecond)
	if n := waitTick(t, ticks); n != 1 {
		t.Fatalf("tick = %d, want 1", n)
	}
}

func TestSchedulerAbandonedWaitsAreReleased(t *testing.T) {
	clock := NewManualClock(epoch)
	s, _ := newTestScheduler(t, clock)

	s.Resume()
	clock.BlockUntilDeadline(time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := clock.Waiters(); got != 1 {
		t.Fatalf("Waiters() after Resume = %d, want 1", got)
	}

	s.SetSpeed(4)
	clock.BlockUntilDeadline(250 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if got := clock.Waiters(); got != 1 {
		t.Fatalf("Waiters() after SetSpeed = %d, want 1", got)
	}
}

func TestSchedulerStopsWhenTickFuncDeclines(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	s := NewScheduler(time.Hour, func(context.Context) bool {
		if calls.Add(1) == 3 {
			close(done)
			return false
		}
		return true
	}, WithMode(Accelerated))

	var seen atomic.Int32
	s.AddListener(func(int) { seen.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	stopped := s.Start(ctx)
	s.Resume()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for three ticks")
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.Running() || seen.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("scheduler still running after tick func declined")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-stopped
	if got := calls.Load(); got != 3 {
		t.Fatalf("tick func called %d times, want 3", got)
	}
	if got := s.Ticks(); got != 3 {
		t.Fatalf("Ticks() = %d, want 3", got)
	}
}

func TestSchedulerRunReturnsOnCancel(t *testing.T) {
	s := NewScheduler(time.Second, func(context.Context) bool { return true })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != context.Canceled {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
}

func TestSpeedClamping(t *testing.T) {
	s := NewScheduler(time.Second, nil)
	cases := []struct {
		in, want float64
	}{
		{0, MinSpeed},
		{-3, MinSpeed},
		{2.5, 2.5},
		{100, MaxSpeed},
	}
	for _, c := range cases {
		if got := s.SetSpeed(c.in); got != c.want {
			t.Fatalf("SetSpeed(%v) = %v, want %v", c.in, got, c.want)
		}
	}
	s.SetSpeed(4)
	s.SetInterval(2 * time.Second)
	if got := s.Delay(); got != 500*time.Millisecond {
		t.Fatalf("Delay() = %v, want 500ms", got)
	}
}

func TestManualClockFiresDueWaiters(t *testing.T) {
	clock := NewManualClock(epoch)
	early := clock.NewTimer(time.Second)
	late := clock.NewTimer(time.Minute)

	clock.Advance(30 * time.Second)
	select {
	case got := <-early.C():
		if !got.Equal(epoch.Add(30 * time.Second)) {
			t.Fatalf("early fired at %v", got)
		}
	default:
		t.Fatalf("early waiter did not fire")
	}
	select {
	case <-late.C():
		t.Fatalf("late waiter fired too soon")
	default:
	}
	if got := clock.Waiters(); got != 1 {
		t.Fatalf("Waiters() = %d, want 1", got)
	}
	if got := clock.Now(); !got.Equal(epoch.Add(30 * time.Second)) {
		t.Fatalf("Now() = %v", got)
	}
	if early.Stop() {
		t.Fatalf("Stop() on a fired timer = true")
	}
}

func TestManualClockStopRemovesWaiter(t *testing.T) {
	clock := NewManualClock(epoch)
	timer := clock.NewTimer(time.Second)
	if !timer.Stop() {
		t.Fatalf("Stop() = false for a pending timer")
	}
	if got := clock.Waiters(); got != 0 {
		t.Fatalf("Waiters() = %d after Stop, want 0", got)
	}
	clock.Advance(time.Minute)
	select {
	case <-timer.C():
		t.Fatalf("stopped timer fired")
	default:
	}
}

func TestSchedulerResumeBeforeStartWaitsOnce(t *testing.T) {
	clock := NewManualClock(epoch)
	s := NewScheduler(time.Second, func(context.Context) bool { return true }, WithClock(clock))
	s.Resume()

	ctx, cancel := context.WithCancel(context.Background())
	done := s.Start(ctx)
	defer func() {
		cancel()
		<-done
	}()

	clock.BlockUntilDeadline(time.Second)
	time.Sleep(50 * time.Millisecond)
	if got := clock.Waiters(); got != 1 {
		t.Fatalf("Waiters() = %d after a single Resume, want 1", got)
	}
}
