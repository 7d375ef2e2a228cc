package lib

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestLoopSchedulerFiresOnLoop(t *testing.T) {
	loop, _ := startLoop(t)
	mock := clock.NewMock()
	sched := NewLoopScheduler(mock, loop)

	fired := make(chan struct{})
	sched.AfterFunc(time.Second, func() { close(fired) })

	mock.Add(500 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("fired too early")
	case <-time.After(20 * time.Millisecond):
	}

	mock.Add(500 * time.Millisecond)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestLoopSchedulerStopBeforeLoopPicksUp(t *testing.T) {
	loop := NewLoop(NewTestLogger())
	mock := clock.NewMock()
	sched := NewLoopScheduler(mock, loop)

	fired := false
	timer := sched.AfterFunc(time.Second, func() { fired = true })
	mock.Add(time.Second)

	// expired callback is queued but the loop is not running yet
	require.Eventually(t, func() bool { return loop.Len() == 1 }, time.Second, time.Millisecond)
	require.True(t, timer.Stop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	require.NoError(t, loop.Do(ctx, func() {}))
	require.False(t, fired)
	require.False(t, timer.Stop())
}

type recordingScheduler struct {
	timers []*recordedTimer
}

type recordedTimer struct {
	f       func()
	stopped bool
}

func (t *recordedTimer) Stop() bool {
	wasPending := !t.stopped
	t.stopped = true
	return wasPending
}

func (s *recordingScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	t := &recordedTimer{f: f}
	s.timers = append(s.timers, t)
	return t
}

func TestTimerSlotReplacesPending(t *testing.T) {
	sched := &recordingScheduler{}
	slot := NewTimerSlot(sched)

	slot.Reset(time.Second, func() {})
	slot.Reset(time.Second, func() {})

	require.Len(t, sched.timers, 2)
	require.True(t, sched.timers[0].stopped)
	require.False(t, sched.timers[1].stopped)
	require.True(t, slot.Pending())

	sched.timers[1].f()
	require.False(t, slot.Pending())
	require.False(t, slot.Stop())
}
