package offline

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"simpletasks/internal/utils"
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Handler serves incoming requests through rt as if they were addressed to
// origin. rt is usually a *Registration.
func Handler(rt http.RoundTripper, origin *url.URL) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
		out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out.Header = r.Header.Clone()
		for _, h := range hopHeaders {
			out.Header.Del(h)
		}
		out.ContentLength = r.ContentLength

		resp, err := rt.RoundTrip(out)
		if err != nil {
			if !errors.Is(err, ErrNoController) {
				utils.GetLogger().Warn("Offline handler %s %s: %v", r.Method, r.URL.Path, err)
			}
			resp = fallback(out)
		}
		defer func() { _ = resp.Body.Close() }()

		for k, vv := range resp.Header {
			for _, v := range vv {
				w.Header().Add(k, v)
			}
		}
		for _, h := range hopHeaders {
			w.Header().Del(h)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
	})
}

// OriginTransport answers requests for Origin from Local and sends every
// other request to Remote.
type OriginTransport struct {
	Origin *url.URL
	Local  http.Handler
	Remote http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *OriginTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Local != nil && t.Origin != nil && sameOrigin(req.URL, t.Origin) {
		if err := req.Context().Err(); err != nil {
			return nil, err
		}
		rec := httptest.NewRecorder()
		in := req.Clone(req.Context())
		in.RequestURI = req.URL.RequestURI()
		t.Local.ServeHTTP(rec, in)
		resp := rec.Result()
		resp.Request = req
		return resp, nil
	}
	remote := t.Remote
	if remote == nil {
		remote = http.DefaultTransport
	}
	return remote.RoundTrip(req)
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// Offline is a transport that always fails, as if there were no network.
type Offline struct{}

// RoundTrip implements http.RoundTripper.
func (Offline) RoundTrip(req *http.Request) (*http.Response, error) {
	return nil, utils.ErrUpstreamOffline(req.URL.Host, "network disabled")
}
