package webapp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesShell(t *testing.T) {
	h := Handler()

	tests := []struct {
		path     string
		contains string
	}{
		{"/", "<title>Simple Tasks</title>"},
		{"/index.html", "app-container"},
		{"/static/styles.css", "#app-container"},
		{"/static/script.js", "localStorage"},
		{"/static/manifest.json", "\"display\": \"standalone\""},
		{"/README.md", "# Simple Tasks"},
		{"/static/android-chrome-192x192.png", "PNG"},
		{"/static/android-chrome-512x512.png", "PNG"},
		{"/static/apple-touch-icon.png", "PNG"},
		{"/static/favicon-32x32.png", "PNG"},
		{"/static/favicon-16x16.png", "PNG"},
		{"/static/favicon.ico", "PNG"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			body := rec.Body.Bytes()
			if !strings.Contains(string(body), tt.contains) {
				t.Errorf("body of %s missing %q", tt.path, tt.contains)
			}
		})
	}
}

func TestReadme(t *testing.T) {
	if !strings.HasPrefix(string(Readme()), "# Simple Tasks") {
		t.Errorf("unexpected README: %.40q", Readme())
	}
}

func TestOriginURL(t *testing.T) {
	u := OriginURL()
	if u.Scheme != "http" || u.Host != "simpletasks.local" {
		t.Errorf("OriginURL() = %v", u)
	}
}
