package offline

import (
	"context"
	"errors"
	"sync"
)

// ErrTerminated is returned when work is started on a terminated worker.
var ErrTerminated = errors.New("offline worker terminated")

// Lifetime tracks outstanding work so the host can end a worker only after
// every held operation has settled.
type Lifetime struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

func newLifetime() *Lifetime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Lifetime{ctx: ctx, cancel: cancel}
}

// Hold keeps the worker alive until release is called. It fails once
// Terminate has begun.
func (l *Lifetime) Hold() (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrTerminated
	}
	l.wg.Add(1)
	var once sync.Once
	return func() { once.Do(l.wg.Done) }, nil
}

// Context is cancelled when the worker is terminated.
func (l *Lifetime) Context() context.Context {
	return l.ctx
}

// Terminate refuses new holds and waits for current ones. If ctx ends first
// the worker context is cancelled anyway and ctx.Err is returned.
func (l *Lifetime) Terminate(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	defer l.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminated reports whether Terminate has been called.
func (l *Lifetime) Terminated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
