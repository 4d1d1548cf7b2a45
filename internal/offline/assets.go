package offline

// DefaultVersion names the bucket of the current app shell.
const DefaultVersion = "tasks-app-v1"

// DefaultAssets is the precache manifest of the app shell.
var DefaultAssets = []string{
	"/",
	"/index.html",
	"/static/styles.css",
	"/static/script.js",
	"/static/manifest.json",
	"/README.md",
	"/static/android-chrome-192x192.png",
	"/static/android-chrome-512x512.png",
	"/static/apple-touch-icon.png",
	"/static/favicon-32x32.png",
	"/static/favicon-16x16.png",
	"/static/favicon.ico",
	"https://cdn.jsdelivr.net/npm/@ssense/sf-font@1.0.0/dist/SFPro.css",
	"https://cdn.jsdelivr.net/npm/@ssense/sf-font@1.0.0/dist/SFPro-Regular.woff2",
	"https://cdn.jsdelivr.net/npm/@ssense/sf-font@1.0.0/dist/SFPro-Medium.woff2",
	"https://cdn.jsdelivr.net/npm/@ssense/sf-font@1.0.0/dist/SFPro-Semibold.woff2",
	"https://cdn.jsdelivr.net/npm/@ssense/sf-font@1.0.0/dist/SFPro-Bold.woff2",
}
