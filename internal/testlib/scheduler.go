package testlib

import (
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
)

// ManualScheduler fires timers synchronously from Advance, in deadline order
type ManualScheduler struct {
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	at   time.Duration
	seq  int
	f    func()
	done bool
}

func (t *manualTimer) Stop() bool {
	if t.done {
		return false
	}
	t.done = true
	return true
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) lib.Timer {
	s.seq++
	t := &manualTimer{at: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward, running every timer that expires on the way,
// including the ones scheduled by callbacks
func (s *ManualScheduler) Advance(d time.Duration) {
	target := s.now + d
	for {
		t := s.nextDue(target)
		if t == nil {
			break
		}
		s.now = t.at
		t.done = true
		t.f()
	}
	s.now = target
}

func (s *ManualScheduler) Now() time.Duration {
	return s.now
}

// Pending returns the number of timers that were neither fired nor stopped
func (s *ManualScheduler) Pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.done {
			n++
		}
	}
	return n
}

func (s *ManualScheduler) nextDue(target time.Duration) *manualTimer {
	var next *manualTimer
	live := s.timers[:0]
	for _, t := range s.timers {
		if t.done {
			continue
		}
		live = append(live, t)
		if t.at > target {
			continue
		}
		if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
			next = t
		}
	}
	s.timers = live
	return next
}
