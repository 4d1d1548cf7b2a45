package offline

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"simpletasks/internal/utils"
)

// ErrNoController is returned when a request arrives before any worker is active.
var ErrNoController = errors.New("no active offline worker")

// Registration owns the active worker and at most one waiting successor.
type Registration struct {
	// gate is held shared by fetches and exclusively while workers swap.
	gate sync.RWMutex

	mu      sync.Mutex
	active  *Worker
	waiting *Worker
}

// NewRegistration returns an empty registration.
func NewRegistration() *Registration {
	return &Registration{}
}

// Register installs w and either promotes it right away or parks it until the
// active worker is idle.
func (r *Registration) Register(ctx context.Context, w *Worker) (*InstallReport, error) {
	report, err := w.Install(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	promote := r.active == nil || w.SkipWaiting()
	if !promote {
		if r.waiting != nil {
			old := r.waiting
			go func() { _ = old.Terminate(context.Background()) }()
		}
		r.waiting = w
		utils.GetLogger().Debug("Offline worker %s is waiting for %s to go idle", w.Version(), r.active.Version())
	}
	r.mu.Unlock()

	if promote {
		if err := r.promote(ctx, w); err != nil {
			return report, err
		}
	}
	return report, nil
}

// promote retires the current worker and activates w in its place.
func (r *Registration) promote(ctx context.Context, w *Worker) error {
	r.gate.Lock()
	defer r.gate.Unlock()

	r.mu.Lock()
	old := r.active
	if r.waiting == w {
		r.waiting = nil
	}
	r.mu.Unlock()
	if old == w {
		return nil
	}

	if old != nil {
		if err := old.Terminate(ctx); err != nil {
			utils.GetLogger().Warn("Offline worker %s did not settle: %v", old.Version(), err)
		}
	}

	_, err := w.Activate(ctx)

	r.mu.Lock()
	r.active = w
	r.mu.Unlock()
	utils.GetLogger().Info("Offline worker %s is active", w.Version())
	return err
}

// Active returns the controlling worker, or nil.
func (r *Registration) Active() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Waiting returns the installed worker waiting to take over, or nil.
func (r *Registration) Waiting() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// RoundTrip routes req through the active worker, then promotes a waiting
// worker if the active one has gone idle.
func (r *Registration) RoundTrip(req *http.Request) (*http.Response, error) {
	r.gate.RLock()
	w := r.Active()
	if w == nil {
		r.gate.RUnlock()
		return nil, ErrNoController
	}
	resp, err := w.Fetch(req.Context(), req)
	r.gate.RUnlock()

	r.mu.Lock()
	next := r.waiting
	ready := next != nil && r.active == w && w.InFlight() == 0
	r.mu.Unlock()
	if ready {
		if perr := r.promote(context.WithoutCancel(req.Context()), next); perr != nil {
			utils.GetLogger().Warn("Promoting offline worker %s: %v", next.Version(), perr)
		}
	}
	return resp, err
}

// Close terminates every worker held by the registration.
func (r *Registration) Close(ctx context.Context) error {
	r.mu.Lock()
	workers := []*Worker{r.active, r.waiting}
	r.active, r.waiting = nil, nil
	r.mu.Unlock()

	var errs []error
	for _, w := range workers {
		if w != nil {
			errs = append(errs, w.Terminate(ctx))
		}
	}
	return errors.Join(errs...)
}
