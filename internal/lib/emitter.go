package lib

import "golang.org/x/exp/slices"

// Emitter is a listener list owned by the loop goroutine
type Emitter[T any] struct {
	listeners []*listener[T]
}

type listener[T any] struct {
	fn      func(T)
	removed bool
}

// On registers fn and returns a function that deregisters it. Calling off more than once is a no-op
func (e *Emitter[T]) On(fn func(T)) (off func()) {
	l := &listener[T]{fn: fn}
	e.listeners = append(e.listeners, l)
	return func() {
		if l.removed {
			return
		}
		l.removed = true
		if i := slices.Index(e.listeners, l); i >= 0 {
			e.listeners = slices.Delete(e.listeners, i, i+1)
		}
	}
}

// Emit calls the listeners registered at the time of the call,
// a listener removed by an earlier one in the same round is skipped
func (e *Emitter[T]) Emit(v T) {
	for _, l := range slices.Clone(e.listeners) {
		if !l.removed {
			l.fn(v)
		}
	}
}

func (e *Emitter[T]) Len() int {
	return len(e.listeners)
}
