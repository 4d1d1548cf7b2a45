package offline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"simpletasks/internal/cache"
)

const testOrigin = "http://app.test"

// fakeNetwork answers from a fixed route table and counts every request.
type fakeNetwork struct {
	mu     sync.Mutex
	routes map[string]string
	hits   map[string]int
	down   atomic.Bool
}

func newFakeNetwork(routes map[string]string) *fakeNetwork {
	return &fakeNetwork{routes: routes, hits: make(map[string]int)}
}

func (n *fakeNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	if n.down.Load() {
		return nil, errors.New("dial tcp: connection refused")
	}
	n.mu.Lock()
	n.hits[req.Method+" "+req.URL.String()]++
	body, ok := n.routes[req.URL.String()]
	n.mu.Unlock()

	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
		body = "not found"
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func (n *fakeNetwork) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	sum := 0
	for _, c := range n.hits {
		sum += c
	}
	return sum
}

func shellRoutes() map[string]string {
	return map[string]string{
		testOrigin + "/":                     "<html>shell</html>",
		testOrigin + "/index.html":           "<html>shell</html>",
		testOrigin + "/static/styles.css":    "body{}",
		testOrigin + "/static/script.js":     "console.log(1)",
		testOrigin + "/static/manifest.json": "{}",
		testOrigin + "/README.md":            "# readme",
	}
}

func mustNewWorker(t *testing.T, version string, storage cache.Storage, network http.RoundTripper, assets ...string) *Worker {
	t.Helper()
	origin, _ := url.Parse(testOrigin)
	if assets == nil {
		assets = []string{"/", "/index.html", "/static/styles.css", "/static/script.js", "/static/manifest.json", "/README.md"}
	}
	w, err := New(Config{
		Version: version,
		Assets:  assets,
		Origin:  origin,
		Network: network,
		Storage: storage,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return w
}

func mustActivate(t *testing.T, w *Worker) {
	t.Helper()
	ctx := context.Background()
	if _, err := w.Install(ctx); err != nil {
		t.Fatalf("Install error: %v", err)
	}
	if _, err := w.Activate(ctx); err != nil {
		t.Fatalf("Activate error: %v", err)
	}
}

func get(t *testing.T, w *Worker, path string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, testOrigin+path, nil)
	resp, err := w.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch(%s) error: %v", path, err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, string(body)
}

func TestNewRequiresVersionAndStorage(t *testing.T) {
	if _, err := New(Config{Storage: cache.NewMemory()}); err == nil {
		t.Error("expected error for missing version")
	}
	if _, err := New(Config{Version: "v1"}); err == nil {
		t.Error("expected error for missing storage")
	}
}

func TestInstallPrecachesAssets(t *testing.T) {
	storage := cache.NewMemory()
	w := mustNewWorker(t, DefaultVersion, storage, newFakeNetwork(shellRoutes()))

	report, err := w.Install(context.Background())
	if err != nil {
		t.Fatalf("Install error: %v", err)
	}
	if len(report.Cached) != 6 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v, want 6 cached", report)
	}
	if w.State() != StateInstalled {
		t.Errorf("state = %s, want installed", w.State())
	}
	if !w.SkipWaiting() {
		t.Error("installed worker should skip waiting")
	}

	b, _ := storage.Open(context.Background(), DefaultVersion)
	keys, _ := b.Keys(context.Background())
	if len(keys) != 6 {
		t.Errorf("bucket has %d entries, want 6", len(keys))
	}
}

func TestInstallIsBestEffort(t *testing.T) {
	routes := shellRoutes()
	delete(routes, testOrigin+"/README.md")
	net := newFakeNetwork(routes)
	storage := cache.NewMemory()
	w := mustNewWorker(t, DefaultVersion, storage, &failingHost{host: "cdn.example", next: net},
		"/", "/README.md", "https://cdn.example/font.woff2")

	report, err := w.Install(context.Background())
	if err != nil {
		t.Fatalf("Install should not fail on asset errors: %v", err)
	}
	if len(report.Cached) != 1 || report.Cached[0] != "/" {
		t.Errorf("cached = %v, want [/]", report.Cached)
	}
	if _, ok := report.Failed["/README.md"]; !ok {
		t.Error("404 asset should be reported as failed")
	}
	if _, ok := report.Failed["https://cdn.example/font.woff2"]; !ok {
		t.Error("unreachable asset should be reported as failed")
	}
	if w.State() != StateInstalled {
		t.Errorf("state = %s, want installed", w.State())
	}
}

type failingHost struct {
	host string
	next http.RoundTripper
}

func (f *failingHost) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host == f.host {
		return nil, errors.New("no such host")
	}
	return f.next.RoundTrip(req)
}

func TestActivateDeletesStaleBuckets(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemory()
	for _, name := range []string{"tasks-app-v0", "scratch"} {
		if _, err := storage.Open(ctx, name); err != nil {
			t.Fatalf("Open error: %v", err)
		}
	}

	w := mustNewWorker(t, DefaultVersion, storage, newFakeNetwork(shellRoutes()))
	if _, err := w.Install(ctx); err != nil {
		t.Fatalf("Install error: %v", err)
	}
	evicted, err := w.Activate(ctx)
	if err != nil {
		t.Fatalf("Activate error: %v", err)
	}
	if len(evicted) != 2 {
		t.Errorf("evicted = %v, want 2 buckets", evicted)
	}

	keys, _ := storage.Keys(ctx)
	if len(keys) != 1 || keys[0] != DefaultVersion {
		t.Errorf("buckets after activate = %v, want [%s]", keys, DefaultVersion)
	}
	if w.State() != StateActivated {
		t.Errorf("state = %s, want activated", w.State())
	}

	// A second activation finds nothing left to evict.
	evicted, err = w.Activate(ctx)
	if err != nil || len(evicted) != 0 {
		t.Errorf("second Activate = %v, %v", evicted, err)
	}
}

func TestFetchBeforeActivate(t *testing.T) {
	w := mustNewWorker(t, DefaultVersion, cache.NewMemory(), newFakeNetwork(shellRoutes()))
	req := httptest.NewRequest(http.MethodGet, testOrigin+"/", nil)
	if _, err := w.Fetch(context.Background(), req); !errors.Is(err, ErrNotActive) {
		t.Errorf("expected ErrNotActive, got %v", err)
	}
}

func TestFetchPrefersCache(t *testing.T) {
	net := newFakeNetwork(shellRoutes())
	w := mustNewWorker(t, DefaultVersion, cache.NewMemory(), net)
	mustActivate(t, w)

	before := net.total()
	resp, body := get(t, w, "/index.html")
	if resp.StatusCode != http.StatusOK || body != "<html>shell</html>" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
	if net.total() != before {
		t.Errorf("cache hit went to the network (%d -> %d)", before, net.total())
	}
}

func TestFetchWritesThrough(t *testing.T) {
	routes := shellRoutes()
	routes[testOrigin+"/later.txt"] = "fetched later"
	net := newFakeNetwork(routes)
	w := mustNewWorker(t, DefaultVersion, cache.NewMemory(), net)
	mustActivate(t, w)

	_, body := get(t, w, "/later.txt")
	if body != "fetched later" {
		t.Fatalf("body = %q", body)
	}

	net.down.Store(true)
	resp, body := get(t, w, "/later.txt")
	if resp.StatusCode != http.StatusOK || body != "fetched later" {
		t.Errorf("offline repeat got %d %q, want cached copy", resp.StatusCode, body)
	}
}

func TestFetchFallback(t *testing.T) {
	net := newFakeNetwork(shellRoutes())
	w := mustNewWorker(t, DefaultVersion, cache.NewMemory(), net)
	mustActivate(t, w)

	net.down.Store(true)
	resp, body := get(t, w, "/never-cached")
	if resp.StatusCode != FallbackStatus {
		t.Errorf("status = %d, want %d", resp.StatusCode, FallbackStatus)
	}
	if body != FallbackBody {
		t.Errorf("body = %q, want %q", body, FallbackBody)
	}
}

func TestFetchDoesNotCacheErrors(t *testing.T) {
	net := newFakeNetwork(shellRoutes())
	w := mustNewWorker(t, DefaultVersion, cache.NewMemory(), net)
	mustActivate(t, w)

	resp, _ := get(t, w, "/missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	net.down.Store(true)
	resp, _ = get(t, w, "/missing")
	if resp.StatusCode != FallbackStatus {
		t.Errorf("404 should not have been cached, got %d", resp.StatusCode)
	}
}

func TestFetchBypassesCacheForWrites(t *testing.T) {
	routes := shellRoutes()
	net := newFakeNetwork(routes)
	w := mustNewWorker(t, DefaultVersion, cache.NewMemory(), net)
	mustActivate(t, w)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, testOrigin+"/", strings.NewReader("x"))
		resp, err := w.Fetch(context.Background(), req)
		if err != nil {
			t.Fatalf("Fetch error: %v", err)
		}
		_ = resp.Body.Close()
	}
	net.mu.Lock()
	hits := net.hits["POST "+testOrigin+"/"]
	net.mu.Unlock()
	if hits != 2 {
		t.Errorf("POST reached the network %d times, want 2", hits)
	}
}

func TestFetchServesFromCurrentBucketOnly(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemory()
	net := newFakeNetwork(shellRoutes())

	v1 := mustNewWorker(t, "tasks-app-v1", storage, net)
	mustActivate(t, v1)
	_ = v1.Terminate(ctx)

	v2 := mustNewWorker(t, "tasks-app-v2", storage, net, "/")
	mustActivate(t, v2)

	net.down.Store(true)
	resp, _ := get(t, v2, "/README.md")
	if resp.StatusCode != FallbackStatus {
		t.Errorf("v2 answered from a stale bucket: %d", resp.StatusCode)
	}
}

func TestWorkerAsTransport(t *testing.T) {
	net := newFakeNetwork(shellRoutes())
	w := mustNewWorker(t, DefaultVersion, cache.NewMemory(), net)
	mustActivate(t, w)
	net.down.Store(true)

	client := &http.Client{Transport: w}
	resp, err := client.Get(testOrigin + "/static/script.js")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "console.log(1)" {
		t.Errorf("body = %q", body)
	}
}

func TestTerminateWaitsForHolds(t *testing.T) {
	w := mustNewWorker(t, DefaultVersion, cache.NewMemory(), newFakeNetwork(nil))
	release, err := w.Lifetime().Hold()
	if err != nil {
		t.Fatalf("Hold error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Terminate(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Terminate returned while a hold was outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Terminate error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Terminate did not return after release")
	}

	if _, err := w.Lifetime().Hold(); !errors.Is(err, ErrTerminated) {
		t.Errorf("Hold after terminate = %v, want ErrTerminated", err)
	}
	if w.State() != StateRedundant {
		t.Errorf("state = %s, want redundant", w.State())
	}
}

func TestTerminateDeadline(t *testing.T) {
	w := mustNewWorker(t, DefaultVersion, cache.NewMemory(), newFakeNetwork(nil))
	release, _ := w.Lifetime().Hold()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Terminate(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Terminate = %v, want deadline exceeded", err)
	}
	if w.Lifetime().Context().Err() == nil {
		t.Error("worker context should be cancelled")
	}
}

func TestEventWaitUntilJoinsErrors(t *testing.T) {
	w := mustNewWorker(t, DefaultVersion, cache.NewMemory(), newFakeNetwork(nil))
	ev, err := w.newEvent(context.Background(), "test")
	if err != nil {
		t.Fatalf("newEvent error: %v", err)
	}
	if ev.ID == "" {
		t.Error("event should have an id")
	}

	boom := errors.New("boom")
	var ran atomic.Int32
	ev.WaitUntil(func(context.Context) error { ran.Add(1); return nil })
	ev.WaitUntil(func(context.Context) error { ran.Add(1); return boom })

	if err := ev.Wait(); !errors.Is(err, boom) {
		t.Errorf("Wait = %v, want boom", err)
	}
	if ran.Load() != 2 {
		t.Errorf("ran %d extensions, want 2", ran.Load())
	}
	// The event's hold is released, so terminate returns at once.
	if err := w.Terminate(context.Background()); err != nil {
		t.Errorf("Terminate error: %v", err)
	}
}

func TestStateString(t *testing.T) {
	if StateActivated.String() != "activated" {
		t.Errorf("got %q", StateActivated.String())
	}
	if State(42).String() != "State(42)" {
		t.Errorf("got %q", State(42).String())
	}
}
