package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"simpletasks/internal/cache"
	"simpletasks/internal/config"
	"simpletasks/internal/offline"
	"simpletasks/internal/ratelimit"
	"simpletasks/internal/shutdown"
	"simpletasks/internal/telemetry"
	"simpletasks/internal/utils"
	"simpletasks/internal/webapp"
)

// shutdownTimeout bounds how long serve waits for cleanups
const shutdownTimeout = 10 * time.Second

// newServeCmd creates the 'serve' subcommand
func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web app offline-first",
		Long: "Serve the web app through the offline cache worker. Responses are served from the\n" +
			"cache when possible and fetched from the upstream origin otherwise. Without an\n" +
			"upstream, the built-in app shell is the network.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				a.settings.Server.Addr = addr
			}
			if upstream, _ := cmd.Flags().GetString("upstream"); upstream != "" {
				a.settings.Offline.Upstream = upstream
				if err := a.settings.Validate(); err != nil {
					return err
				}
			}

			ctx := context.Background()
			srv, err := newServer(ctx, a.settings)
			if err != nil {
				return err
			}

			mgr := shutdown.NewManager()
			stop := mgr.NotifySignals()
			defer stop()

			_, _ = fmt.Fprintf(a.stdout, "Serving %s on http://%s (cache %s)\n", srv.origin, srv.Addr(), a.settings.Offline.Version)
			return srv.serve(mgr)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().String("upstream", "", "Origin to serve offline-first, e.g. https://example.com")
	return cmd
}

// server is the offline-first front started by 'serve'
type server struct {
	origin            *url.URL
	storage           cache.Storage
	reg               *offline.Registration
	http              *http.Server
	listener          net.Listener
	shutdownTelemetry func(context.Context) error
}

// newServer sets up tracing, opens the cache, registers the worker for the
// configured version and starts listening. Nothing is served until serve.
func newServer(ctx context.Context, settings *config.Config) (*server, error) {
	shutdownTelemetry, err := telemetry.Setup(ctx, "simpletasks", settings.Telemetry.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("could not set up tracing: %w", err)
	}

	storage, err := openCache(settings)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, err
	}

	origin, network, err := upstream(settings)
	if err != nil {
		_ = storage.Close()
		_ = shutdownTelemetry(ctx)
		return nil, err
	}

	assets := settings.Offline.Assets
	if len(assets) == 0 {
		assets = offline.DefaultAssets
	}
	w, err := offline.New(offline.Config{
		Version:     settings.Offline.Version,
		Assets:      assets,
		Origin:      origin,
		Network:     network,
		Storage:     storage,
		WaitForIdle: settings.Offline.WaitForIdle,
	})
	if err != nil {
		_ = storage.Close()
		_ = shutdownTelemetry(ctx)
		return nil, err
	}

	reg := offline.NewRegistration()
	report, err := reg.Register(ctx, w)
	if err != nil {
		_ = reg.Close(ctx)
		_ = storage.Close()
		_ = shutdownTelemetry(ctx)
		return nil, err
	}
	utils.GetLogger().Debug("Offline worker %s precached %s, %d failed",
		report.Version, utils.Pluralize(len(report.Cached), "asset", "assets"), len(report.Failed))

	ln, err := net.Listen("tcp", settings.Server.Addr)
	if err != nil {
		_ = reg.Close(ctx)
		_ = storage.Close()
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("could not listen on %s: %w", settings.Server.Addr, err)
	}

	return &server{
		origin:   origin,
		storage:  storage,
		reg:      reg,
		listener: ln,
		http: &http.Server{
			Handler:           offline.Handler(reg, origin),
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

// upstream returns the origin to front and the network that reaches it
func upstream(settings *config.Config) (*url.URL, http.RoundTripper, error) {
	if settings.Offline.Upstream == "" {
		origin := webapp.OriginURL()
		return origin, &offline.OriginTransport{
			Origin: origin,
			Local:  webapp.Handler(),
			Remote: ratelimit.NewTransport(nil, ratelimit.Config{EnableJitter: true}),
		}, nil
	}
	origin, err := url.Parse(settings.Offline.Upstream)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid upstream %q: %w", settings.Offline.Upstream, err)
	}
	return origin, ratelimit.NewTransport(nil, ratelimit.Config{Upstream: origin.Host, EnableJitter: true}), nil
}

// openCache opens the sqlite cache storage, creating its directory
func openCache(settings *config.Config) (*cache.SQLite, error) {
	path := settings.GetCachePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, utils.ErrCacheUnavailable(path, err)
	}
	storage, err := cache.NewSQLite(path)
	if err != nil {
		return nil, utils.ErrCacheUnavailable(path, err)
	}
	return storage, nil
}

// Addr returns the address the server listens on
func (s *server) Addr() string {
	return s.listener.Addr().String()
}

// serve handles requests until mgr shuts down, then runs cleanups
func (s *server) serve(mgr *shutdown.Manager) error {
	mgr.RegisterCleanup("telemetry", s.shutdownTelemetry)
	mgr.RegisterCleanup("cache", func(context.Context) error {
		return s.storage.Close()
	})
	mgr.RegisterCleanup("offline worker", s.reg.Close)
	mgr.RegisterCleanup("http server", s.http.Shutdown)

	go func() {
		if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.GetLogger().Error("HTTP server stopped: %v", err)
			mgr.Shutdown()
		}
	}()

	<-mgr.Done()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return mgr.Wait(ctx)
}
