// Package webapp embeds the static app shell served by the offline worker.
package webapp

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"net/url"
	"time"
)

// Origin is the address the embedded shell is served under when no upstream
// is configured.
const Origin = "http://simpletasks.local"

//go:embed index.html README.md static
var files embed.FS

// FS returns the shell's files.
func FS() fs.FS {
	return files
}

// Readme returns the embedded README.
func Readme() []byte {
	data, _ := files.ReadFile("README.md")
	return data
}

// Handler serves the shell. "/" and "/index.html" both serve the page
// itself, without the file server's redirect, so either can be precached.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServerFS(files))
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
		data, err := files.ReadFile("index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "index.html", time.Time{}, bytes.NewReader(data))
	})
	return mux
}

// OriginURL returns Origin parsed.
func OriginURL() *url.URL {
	u, _ := url.Parse(Origin)
	return u
}
