package environment

import (
	"bytes"
	"strings"
	"testing"

	"simpletasks/internal/webapp"
)

func TestDetect(t *testing.T) {
	var buf bytes.Buffer

	tests := []struct {
		mode string
		want View
	}{
		{"app", ViewApp},
		{"readme", ViewReadme},
		{"auto", ViewReadme},
		{"", ViewReadme},
	}
	for _, tt := range tests {
		got, err := Detect(tt.mode, &buf, &buf)
		if err != nil {
			t.Fatalf("Detect(%q) error: %v", tt.mode, err)
		}
		if got != tt.want {
			t.Errorf("Detect(%q) = %s, want %s", tt.mode, got, tt.want)
		}
	}

	if _, err := Detect("kiosk", &buf, &buf); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestIsTerminalNonFile(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
	if IsTerminal(nil) {
		t.Error("nil is not a terminal")
	}
	if w := Width(&bytes.Buffer{}); w != 0 {
		t.Errorf("Width(buffer) = %d, want 0", w)
	}
}

func TestRenderReadme(t *testing.T) {
	out := RenderReadme(string(webapp.Readme()), 60, false)
	if !strings.Contains(out, "Simple Tasks") {
		t.Errorf("rendered readme missing title:\n%s", out)
	}
	if RenderReadme("  ", 60, false) != "" {
		t.Error("blank input should render empty")
	}
}
