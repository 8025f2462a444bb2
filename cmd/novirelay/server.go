package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/novirelay/internal/api"
	"github.com/kalambet/novirelay/internal/config"
	"github.com/kalambet/novirelay/internal/models"
	"github.com/kalambet/novirelay/internal/proxy"
	"github.com/kalambet/novirelay/internal/stream"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Run the relay server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relay status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showStatus(cmd.Context(), client)
	},
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newHandler wires the relay components from cfg.
func newHandler(cfg config.Config, identity *models.Identity) http.Handler {
	return api.NewRouter(api.Deps{
		Identity: identity,
		Upstream: proxy.NewGateway(cfg.Novita.APIKey, cfg.Novita.Endpoints, cfg.UpstreamTimeout()),
		Emitter:  stream.NewEmitter(cfg.Stream.ChunkSize, cfg.StreamDelay()),
	})
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr(), err)
	}
	return serve(ctx, cfg, ln)
}

// serve runs the relay on ln until ctx is done, then shuts down gracefully.
// Request contexts do not derive from ctx, so in-flight requests are drained
// by Shutdown instead of being cancelled by the signal.
func serve(ctx context.Context, cfg config.Config, ln net.Listener) error {
	identity := models.NewIdentity(cfg.Model.UpstreamBase, cfg.Model.Public, cfg.Model.Aliases)
	srv := &http.Server{
		Handler:           newHandler(cfg, identity),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Novita.APIKey == "" {
		slog.Warn("NOVITA_API_KEY is not set; chat requests will fail until it is configured")
	}
	slog.Info("novirelay starting",
		"version", version,
		"addr", ln.Addr().String(),
		"public_model", identity.Public(),
		"upstream_base", identity.UpstreamBase(),
		"aliases", identity.Aliases(),
		"endpoints", cfg.Novita.Endpoints,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type healthReport struct {
	OK              bool     `json:"ok"`
	PublicModel     string   `json:"public_model"`
	UpstreamBase    string   `json:"upstream_base"`
	Aliases         []string `json:"aliases"`
	NovitaEndpoints []string `json:"novita_endpoints"`
}

func showStatus(ctx context.Context, client *apiClient) error {
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := client.get(ctx, "/healthz")
	if err != nil {
		printStatus("Server", "stopped")
		return nil
	}

	var h healthReport
	if err := decodeJSON(resp, &h); err != nil {
		printStatus("Server", "error (%v)", err)
		return nil
	}

	printStatus("Server", "running at %s", client.baseURL)
	printStatus("Public model", "%s", h.PublicModel)
	printStatus("Upstream model", "%s", h.UpstreamBase)
	printStatus("Aliases", "%d", len(h.Aliases))
	for i, ep := range h.NovitaEndpoints {
		printStatus(fmt.Sprintf("Endpoint %d", i+1), "%s", ep)
	}
	return nil
}
