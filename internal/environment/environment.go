// Package environment decides whether simpletasks runs as the full app or
// shows its readme, and renders that readme.
package environment

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// View is what the shim presents.
type View int

const (
	ViewReadme View = iota
	ViewApp
)

func (v View) String() string {
	if v == ViewApp {
		return "app"
	}
	return "readme"
}

// fder is satisfied by *os.File.
type fder interface {
	Fd() uintptr
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f any) bool {
	fd, ok := f.(fder)
	if !ok {
		return false
	}
	return term.IsTerminal(int(fd.Fd()))
}

// Width returns the column count of f, or 0 when f is not a terminal.
func Width(f any) int {
	fd, ok := f.(fder)
	if !ok || !term.IsTerminal(int(fd.Fd())) {
		return 0
	}
	w, _, err := term.GetSize(int(fd.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// Detect picks the view for mode. In auto mode the app is shown only when
// both in and out are terminals, the closest thing a CLI has to running
// installed.
func Detect(mode string, in, out any) (View, error) {
	switch mode {
	case "app":
		return ViewApp, nil
	case "readme":
		return ViewReadme, nil
	case "", "auto":
		if IsTerminal(in) && IsTerminal(out) {
			return ViewApp, nil
		}
		return ViewReadme, nil
	default:
		return ViewReadme, fmt.Errorf("unknown ui mode %q", mode)
	}
}

// RenderReadme renders markdown for a terminal of the given width. With
// styled false the notty style is used so output stays plain for pipes.
func RenderReadme(content string, width int, styled bool) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	style := glamour.WithStandardStyle("notty")
	if styled {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n") + "\n"
}
