// Package offline implements an offline-first cache worker: it precaches an
// asset manifest into a versioned bucket, evicts stale buckets on
// activation, and answers requests cache-first with a network fallback.
package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"simpletasks/internal/cache"
	"simpletasks/internal/utils"
)

// FallbackBody is served when neither the cache nor the network can answer.
const FallbackBody = "Offline content not available"

// FallbackStatus is the status of the fallback response.
const FallbackStatus = http.StatusServiceUnavailable

// ErrNotActive is returned by Fetch on a worker that has not been activated.
var ErrNotActive = errors.New("offline worker is not active")

// State is a worker's lifecycle position.
type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config describes one worker version.
type Config struct {
	// Version names the bucket this worker owns.
	Version string
	// Assets are precached on install. Relative entries resolve against Origin.
	Assets []string
	Origin *url.URL
	// Network answers cache misses. Defaults to http.DefaultTransport.
	Network http.RoundTripper
	Storage cache.Storage
	// WaitForIdle keeps an installed worker waiting until the current one has
	// no fetch in flight, instead of taking over immediately.
	WaitForIdle bool
}

// InstallReport lists the outcome of precaching each asset.
type InstallReport struct {
	Version string            `json:"version"`
	Cached  []string          `json:"cached"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// Worker is one installed version of the offline cache worker.
type Worker struct {
	cfg      Config
	lifetime *Lifetime
	tracer   trace.Tracer

	mu          sync.Mutex
	state       State
	skipWaiting bool
	inflight    atomic.Int64
}

// New validates cfg and returns a parsed worker.
func New(cfg Config) (*Worker, error) {
	if strings.TrimSpace(cfg.Version) == "" {
		return nil, errors.New("offline worker version is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("offline worker storage is required")
	}
	if cfg.Network == nil {
		cfg.Network = http.DefaultTransport
	}
	return &Worker{
		cfg:      cfg,
		lifetime: newLifetime(),
		tracer:   otel.Tracer("simpletasks/offline"),
		state:    StateParsed,
	}, nil
}

// Version returns the bucket name this worker owns.
func (w *Worker) Version() string {
	return w.cfg.Version
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// SkipWaiting reports whether the worker asked to replace the current one
// without waiting.
func (w *Worker) SkipWaiting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.skipWaiting
}

// InFlight returns the number of fetches currently being answered.
func (w *Worker) InFlight() int64 {
	return w.inflight.Load()
}

// Lifetime exposes the worker's keepalive.
func (w *Worker) Lifetime() *Lifetime {
	return w.lifetime
}

func (w *Worker) resolve(asset string) (string, error) {
	u, err := url.Parse(asset)
	if err != nil {
		return "", err
	}
	if u.IsAbs() || w.cfg.Origin == nil {
		return u.String(), nil
	}
	return w.cfg.Origin.ResolveReference(u).String(), nil
}

// Install precaches every asset into the worker's bucket. Assets are fetched
// concurrently and a failed asset is logged and skipped; the install itself
// only fails when the bucket cannot be opened.
func (w *Worker) Install(ctx context.Context) (*InstallReport, error) {
	ev, err := w.newEvent(ctx, "install")
	if err != nil {
		return nil, err
	}
	ctx, span := w.tracer.Start(ev.Context(), "offline.install", trace.WithAttributes(
		attribute.String("offline.version", w.cfg.Version),
		attribute.String("offline.event_id", ev.ID),
		attribute.Int("offline.assets", len(w.cfg.Assets)),
	))
	defer span.End()

	w.setState(StateInstalling)
	log := utils.GetLogger()
	log.Debug("Installing offline worker %s (%d assets)", w.cfg.Version, len(w.cfg.Assets))

	bucket, err := w.cfg.Storage.Open(ctx, w.cfg.Version)
	if err != nil {
		_ = ev.Wait()
		w.setState(StateRedundant)
		span.RecordError(err)
		span.SetStatus(codes.Error, "open bucket")
		return nil, utils.ErrCacheUnavailable(w.cfg.Version, err)
	}

	report := &InstallReport{Version: w.cfg.Version, Cached: []string{}, Failed: map[string]string{}}
	var mu sync.Mutex
	for _, asset := range w.cfg.Assets {
		ev.WaitUntil(func(ctx context.Context) error {
			err := w.precache(ctx, bucket, asset)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("Failed to cache asset: %s: %v", asset, err)
				report.Failed[asset] = err.Error()
				return nil
			}
			report.Cached = append(report.Cached, asset)
			return nil
		})
	}
	_ = ev.Wait()

	span.SetAttributes(
		attribute.Int("offline.cached", len(report.Cached)),
		attribute.Int("offline.failed", len(report.Failed)),
	)

	w.mu.Lock()
	w.state = StateInstalled
	w.skipWaiting = !w.cfg.WaitForIdle
	w.mu.Unlock()

	log.Info("Installed offline worker %s: %d cached, %d failed", w.cfg.Version, len(report.Cached), len(report.Failed))
	return report, nil
}

func (w *Worker) precache(ctx context.Context, bucket cache.Bucket, asset string) error {
	target, err := w.resolve(asset)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := w.cfg.Network.RoundTrip(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	entry, _, err := cache.NewEntry(req, resp)
	if err != nil {
		return err
	}
	return bucket.Put(ctx, entry)
}

// Activate deletes every bucket not named by this worker's version and marks
// the worker active. Deletion failures are returned, but the worker still
// activates; the next activation retries them.
func (w *Worker) Activate(ctx context.Context) ([]string, error) {
	ev, err := w.newEvent(ctx, "activate")
	if err != nil {
		return nil, err
	}
	ctx, span := w.tracer.Start(ev.Context(), "offline.activate", trace.WithAttributes(
		attribute.String("offline.version", w.cfg.Version),
		attribute.String("offline.event_id", ev.ID),
	))
	defer span.End()

	w.setState(StateActivating)
	log := utils.GetLogger()

	names, err := w.cfg.Storage.Keys(ctx)
	if err != nil {
		_ = ev.Wait()
		w.setState(StateActivated)
		span.RecordError(err)
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	var mu sync.Mutex
	evicted := []string{}
	for _, name := range names {
		if name == w.cfg.Version {
			continue
		}
		ev.WaitUntil(func(ctx context.Context) error {
			if _, err := w.cfg.Storage.Delete(ctx, name); err != nil {
				return fmt.Errorf("delete bucket %s: %w", name, err)
			}
			log.Info("Deleting old cache: %s", name)
			mu.Lock()
			evicted = append(evicted, name)
			mu.Unlock()
			return nil
		})
	}
	err = ev.Wait()

	w.setState(StateActivated)
	span.SetAttributes(attribute.Int("offline.evicted", len(evicted)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evict buckets")
		log.Warn("Activation of %s left stale buckets: %v", w.cfg.Version, err)
	}
	return evicted, err
}

// Fetch answers req from the worker's bucket, falling back to the network.
// Successful network GETs are written through to the bucket. When both fail
// the fallback response is returned. The returned body is fully buffered.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if w.State() != StateActivated {
		return nil, ErrNotActive
	}
	ev, err := w.newEvent(ctx, "fetch")
	if err != nil {
		return nil, err
	}
	defer func() { _ = ev.Wait() }()

	w.inflight.Add(1)
	defer w.inflight.Add(-1)

	ctx, span := w.tracer.Start(ev.Context(), "offline.fetch", trace.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.full", req.URL.String()),
		attribute.String("offline.event_id", ev.ID),
	))
	defer span.End()

	log := utils.GetLogger()

	if req.Method != http.MethodGet {
		entry, err := w.network(ctx, req)
		if err != nil {
			log.Debug("Network failed for %s %s: %v", req.Method, req.URL, err)
			span.SetStatus(codes.Error, "network")
			return fallback(req), nil
		}
		span.SetAttributes(attribute.String("offline.source", "network"))
		return entry.Response(req), nil
	}

	key := cache.Key(req)
	bucket, err := w.cfg.Storage.Open(ctx, w.cfg.Version)
	if err != nil {
		log.Warn("Cache unavailable for %s: %v", w.cfg.Version, err)
	}
	if bucket != nil {
		entry, err := bucket.Match(ctx, key)
		if err != nil {
			log.Warn("Cache lookup failed for %s: %v", key, err)
		}
		if entry != nil {
			span.SetAttributes(attribute.String("offline.source", "cache"))
			return entry.Response(req), nil
		}
	}

	entry, err := w.network(ctx, req)
	if err != nil {
		log.Debug("Network failed for %s: %v", req.URL, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "network")
		span.SetAttributes(attribute.String("offline.source", "fallback"))
		return fallback(req), nil
	}
	span.SetAttributes(
		attribute.String("offline.source", "network"),
		attribute.Int("http.response.status_code", entry.Status),
	)

	if bucket != nil && entry.Status >= 200 && entry.Status <= 299 {
		if err := bucket.Put(ctx, entry); err != nil {
			log.Warn("Failed to store %s: %v", key, err)
		}
	}
	return entry.Response(req), nil
}

// network performs req and buffers the response.
func (w *Worker) network(ctx context.Context, req *http.Request) (*cache.Entry, error) {
	resp, err := w.cfg.Network.RoundTrip(req.Clone(ctx))
	if err != nil {
		return nil, err
	}
	entry, _, err := cache.NewEntry(req, resp)
	return entry, err
}

// RoundTrip lets an active worker serve as an http.Client transport.
func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	return w.Fetch(req.Context(), req)
}

// Terminate retires the worker once every held operation has settled.
func (w *Worker) Terminate(ctx context.Context) error {
	err := w.lifetime.Terminate(ctx)
	w.setState(StateRedundant)
	return err
}

func fallback(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", FallbackStatus, http.StatusText(FallbackStatus)),
		StatusCode:    FallbackStatus,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:          io.NopCloser(strings.NewReader(FallbackBody)),
		ContentLength: int64(len(FallbackBody)),
		Request:       req,
	}
}
