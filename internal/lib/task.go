package lib

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
)

// Task runs a function in a separate goroutine that can be started and stopped repeatedly
type Task struct {
	runFunc func(ctx context.Context) error

	isRunning atomic.Bool
	stopCh    atomic.Value          // chan struct{}
	doneCh    atomic.Value          // chan struct{}
	cancel    atomic.Value          // context.CancelFunc
	err       atomic.Pointer[error] // error
}

func NewTask(runnable interfaces.Runnable) *Task {
	return NewTaskFunc(runnable.Run)
}

func NewTaskFunc(f func(ctx context.Context) error) *Task {
	t := &Task{runFunc: f}
	t.doneCh.Store(make(chan struct{}))
	stopped := make(chan struct{})
	close(stopped)
	t.stopCh.Store(stopped)
	return t
}

// Start launches the function. Returns false if the task is already running
func (s *Task) Start(ctx context.Context) bool {
	if !s.isRunning.CompareAndSwap(false, true) {
		return false
	}
	select {
	case <-s.Done():
		s.doneCh.Store(make(chan struct{}))
		s.err.Store(nil)
	default:
	}
	subCtx, cancel := context.WithCancel(ctx)
	s.cancel.Store(cancel)

	stopCh := make(chan struct{})
	s.stopCh.Store(stopCh)

	go func() {
		defer close(stopCh)
		err := s.runFunc(subCtx)
		isContextErr := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)

		// stopped through Stop(), task can be started again
		if ctx.Err() == nil && subCtx.Err() != nil && isContextErr {
			return
		}

		s.isRunning.Store(false)
		s.err.Store(&err)
		close(s.doneCh.Load().(chan struct{}))
	}()
	return true
}

// Stop cancels the function, the returned channel is closed once it returned
func (s *Task) Stop() <-chan struct{} {
	if !s.isRunning.CompareAndSwap(true, false) {
		return s.stopCh.Load().(chan struct{})
	}
	if c, ok := s.cancel.Load().(context.CancelFunc); ok {
		c()
	}
	return s.stopCh.Load().(chan struct{})
}

func (s *Task) IsRunning() bool {
	return s.isRunning.Load()
}

// Done is closed when the function exited on its own or the parent context was cancelled.
// It is not closed by Stop
func (s *Task) Done() <-chan struct{} {
	return s.doneCh.Load().(chan struct{})
}

// Err returns the error that caused the function to exit
func (s *Task) Err() error {
	e := s.err.Load()
	if e == nil {
		return nil
	}
	return *e
}
