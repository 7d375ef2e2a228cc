package lib

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitterOnOff(t *testing.T) {
	var e Emitter[int]
	var got []int

	off := e.On(func(v int) { got = append(got, v) })
	e.Emit(1)
	off()
	off()
	e.Emit(2)

	require.Equal(t, []int{1}, got)
	require.Equal(t, 0, e.Len())
}

func TestEmitterOneShotListener(t *testing.T) {
	var e Emitter[string]
	calls := 0

	var off func()
	off = e.On(func(string) {
		calls++
		off()
	})
	e.Emit("a")
	e.Emit("b")

	require.Equal(t, 1, calls)
}

func TestEmitterRemovedDuringEmitIsSkipped(t *testing.T) {
	var e Emitter[int]
	secondCalled := false

	var offSecond func()
	e.On(func(int) { offSecond() })
	offSecond = e.On(func(int) { secondCalled = true })

	e.Emit(1)
	require.False(t, secondCalled)
	require.Equal(t, 1, e.Len())
}
