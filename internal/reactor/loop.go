package reactor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Loop.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Error(string, ...any) {}

// Loop executes posted functions sequentially on a single goroutine.
//
// Thread Safety: Post, Call and AfterFunc are safe for concurrent use.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped chan struct{}
	running bool
	closed  bool

	logger Logger
}

// New creates a loop. Call Run to start processing.
func New() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger used for recovered panics.
func (l *Loop) SetLogger(logger Logger) {
	l.logger = logger
}

// Run processes posted functions until ctx is cancelled.
//
// Functions still queued at cancellation are discarded.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.closed {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
		close(l.stopped)
	}()

	l.logger.Debug("reactor loop started")
	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.execute(fn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("reactor loop stopped")
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// next pops the oldest queued function.
func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// execute runs fn, recovering panics so one bad callback cannot stop the loop.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("reactor task panic recovered", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// Post queues fn for execution on the loop goroutine. It never blocks.
// Functions posted after the loop stopped are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop and waits for it to finish.
//
// fn is skipped if ctx is already done when its turn comes. A nil return
// means fn ran to completion; a panic in fn is returned as ErrPanic.
// Must not be called from the loop goroutine itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	var result error
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		if err := ctx.Err(); err != nil {
			result = fmt.Errorf("reactor call: %w", err)
			return
		}
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("reactor call panic recovered", "panic", fmt.Sprint(r))
				result = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		fn()
	})

	select {
	case <-finished:
		return result
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("reactor call: %w", ctx.Err())
	}
}

// AfterFunc posts fn to the loop once d has elapsed.
// The returned stop function cancels the timer if it has not fired yet.
func (l *Loop) AfterFunc(d time.Duration, fn func()) (stop func() bool) {
	t := time.AfterFunc(d, func() { l.Post(fn) })
	return t.Stop
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Stopped returns a channel closed once Run has returned.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}
