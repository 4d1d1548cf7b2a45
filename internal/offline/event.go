package offline

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Event is one lifecycle or fetch dispatch. Work registered with WaitUntil
// extends the event, and the worker stays alive until Wait returns.
type Event struct {
	ID   string
	Kind string

	ctx     context.Context
	release func()
	wg      sync.WaitGroup
	mu      sync.Mutex
	errs    []error
}

func (w *Worker) newEvent(ctx context.Context, kind string) (*Event, error) {
	release, err := w.lifetime.Hold()
	if err != nil {
		return nil, err
	}
	ectx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(w.lifetime.Context(), func() { cancel(ErrTerminated) })
	return &Event{
		ID:   uuid.NewString(),
		Kind: kind,
		ctx:  ectx,
		release: func() {
			stop()
			cancel(nil)
			release()
		},
	}, nil
}

// Context is done when either the caller or the worker gives up.
func (e *Event) Context() context.Context {
	return e.ctx
}

// WaitUntil runs fn concurrently and extends the event until it returns.
func (e *Event) WaitUntil(fn func(ctx context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := fn(e.ctx); err != nil {
			e.mu.Lock()
			e.errs = append(e.errs, err)
			e.mu.Unlock()
		}
	}()
}

// Wait blocks until all extensions settle, releases the worker and returns
// their joined errors.
func (e *Event) Wait() error {
	e.wg.Wait()
	e.release()
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.errs...)
}
