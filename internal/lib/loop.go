package lib

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/gammazero/deque"
	"go.uber.org/atomic"
)

var ErrLoopRunning = errors.New("loop is already running")

// Poster queues a function for execution on the owning goroutine
type Poster interface {
	Post(f func())
}

// Executor is what presenters need from the event loop: queued handlers and
// off-loop work whose result is applied back on the loop
type Executor interface {
	Poster
	Async(work func() (apply func()))
}

// Loop runs queued functions one after another on a single goroutine
type Loop struct {
	mu      sync.Mutex
	queue   *deque.Deque[func()]
	signal  chan struct{}
	running atomic.Bool
	log     interfaces.ILogger
}

func NewLoop(log interfaces.ILogger) *Loop {
	return &Loop{
		queue:  deque.New[func()](),
		signal: make(chan struct{}, 1),
		log:    log,
	}
}

// Post never blocks, the function runs once every earlier queued function returned
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	l.queue.PushBack(f)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Do posts f and waits for it to complete
func (l *Loop) Do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		f()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Async runs work on its own goroutine and posts the returned function back to the loop
func (l *Loop) Async(work func() (apply func())) {
	go func() {
		apply := work()
		if apply != nil {
			l.Post(apply)
		}
	}()
}

func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CAS(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, ok := l.next()
		if ok {
			l.exec(f)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.signal:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.queue.Len() == 0 {
		return nil, false
	}
	return l.queue.PopFront(), true
}

func (l *Loop) exec(f func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorf("handler panicked: %s", fmt.Sprint(r))
		}
	}()
	f()
}
