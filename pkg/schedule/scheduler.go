// Package schedule coalesces re-layout requests so that an arbitrary burst
// of resize or data-change events yields at most one re-layout per rendering
// tick.
package schedule

import (
	"sync"
	"time"
)

// DefaultTick approximates one rendering frame.
const DefaultTick = 16 * time.Millisecond

// Size is the container extent passed to the re-layout callback.
type Size struct {
	Width  int
	Height int
}

// Scheduler holds at most one pending re-layout token. Requesting while a
// token is pending replaces the recorded size instead of scheduling another
// callback; replacing before the tick fires is the cancellation mechanism.
type Scheduler struct {
	mu      sync.Mutex
	tick    time.Duration
	fn      func(Size)
	timer   *time.Timer
	pending bool
	latest  Size
	closed  bool
}

// New creates a scheduler invoking fn on each tick that has a pending
// request. A non-positive tick falls back to DefaultTick.
func New(tick time.Duration, fn func(Size)) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{tick: tick, fn: fn}
}

// Request records the latest known size and arms the tick timer if no
// request is already pending.
func (s *Scheduler) Request(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.latest = Size{Width: width, Height: height}
	if s.pending {
		return
	}
	s.pending = true
	s.timer = time.AfterFunc(s.tick, s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.closed || !s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = false
	size := s.latest
	fn := s.fn
	s.mu.Unlock()

	if fn != nil {
		fn(size)
	}
}

// Close cancels any pending re-layout. Further requests are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
	}
}
