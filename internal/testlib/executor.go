package testlib

// ImmediateExecutor runs posted functions and async work inline
type ImmediateExecutor struct{}

func (ImmediateExecutor) Post(f func()) {
	f()
}

func (ImmediateExecutor) Async(work func() func()) {
	if apply := work(); apply != nil {
		apply()
	}
}

// QueueExecutor holds posted functions and async work until the test releases them,
// which allows to complete lookups out of order
type QueueExecutor struct {
	queue   []func()
	pending []func() func()
}

func NewQueueExecutor() *QueueExecutor {
	return &QueueExecutor{}
}

func (e *QueueExecutor) Post(f func()) {
	e.queue = append(e.queue, f)
}

func (e *QueueExecutor) Async(work func() func()) {
	e.pending = append(e.pending, work)
}

// Flush runs queued functions until the queue is empty
func (e *QueueExecutor) Flush() {
	for len(e.queue) > 0 {
		f := e.queue[0]
		e.queue = e.queue[1:]
		f()
	}
}

func (e *QueueExecutor) PendingAsync() int {
	return len(e.pending)
}

// ResolveAsync completes the i-th pending async work and applies its result
func (e *QueueExecutor) ResolveAsync(i int) {
	work := e.pending[i]
	e.pending = append(e.pending[:i], e.pending[i+1:]...)
	if apply := work(); apply != nil {
		e.Post(apply)
	}
	e.Flush()
}

// ResolveAll completes pending async work in submission order, including work submitted meanwhile
func (e *QueueExecutor) ResolveAll() {
	for len(e.pending) > 0 {
		e.ResolveAsync(0)
	}
}
