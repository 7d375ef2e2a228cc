package lib

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

type Timer interface {
	// Stop prevents the callback from running. Returns false if it already ran or was stopped
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// LoopScheduler fires timers on the loop goroutine. A timer stopped after it expired
// but before the loop picked it up never runs its callback
type LoopScheduler struct {
	clock  clock.Clock
	poster Poster
}

func NewLoopScheduler(c clock.Clock, poster Poster) *LoopScheduler {
	return &LoopScheduler{clock: c, poster: poster}
}

func (s *LoopScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &loopTimer{}
	t.timer = s.clock.AfterFunc(d, func() {
		s.poster.Post(func() {
			if t.done.CAS(false, true) {
				f()
			}
		})
	})
	return t
}

type loopTimer struct {
	timer *clock.Timer
	done  atomic.Bool
}

func (t *loopTimer) Stop() bool {
	t.timer.Stop()
	return t.done.CAS(false, true)
}

// TimerSlot holds at most one pending timer, scheduling a new one cancels the previous
type TimerSlot struct {
	scheduler Scheduler
	timer     Timer
}

func NewTimerSlot(s Scheduler) *TimerSlot {
	return &TimerSlot{scheduler: s}
}

func (s *TimerSlot) Reset(d time.Duration, f func()) {
	s.Stop()
	var t Timer
	t = s.scheduler.AfterFunc(d, func() {
		if s.timer == t {
			s.timer = nil
		}
		f()
	})
	s.timer = t
}

func (s *TimerSlot) Stop() bool {
	if s.timer == nil {
		return false
	}
	stopped := s.timer.Stop()
	s.timer = nil
	return stopped
}

func (s *TimerSlot) Pending() bool {
	return s.timer != nil
}
