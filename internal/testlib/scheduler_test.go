package testlib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualSchedulerOrder(t *testing.T) {
	s := NewManualScheduler()
	var got []string

	s.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	s.AfterFunc(time.Second, func() {
		got = append(got, "a")
		s.AfterFunc(500*time.Millisecond, func() { got = append(got, "a2") })
	})
	stopped := s.AfterFunc(time.Second, func() { got = append(got, "x") })
	require.True(t, stopped.Stop())

	s.Advance(1999 * time.Millisecond)
	require.Equal(t, []string{"a", "a2"}, got)
	require.Equal(t, 1, s.Pending())

	s.Advance(time.Millisecond)
	require.Equal(t, []string{"a", "a2", "b"}, got)
	require.Equal(t, 0, s.Pending())
}

func TestQueueExecutorOutOfOrder(t *testing.T) {
	e := NewQueueExecutor()
	var got []int

	for i := 0; i < 3; i++ {
		i := i
		e.Async(func() func() { return func() { got = append(got, i) } })
	}
	e.ResolveAsync(2)
	e.ResolveAll()

	require.Equal(t, []int{2, 0, 1}, got)
}
