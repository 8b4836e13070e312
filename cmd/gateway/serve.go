package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/ai-gateway/chat-gateway/internal/config"
	"github.com/ai-gateway/chat-gateway/internal/credstore"
	"github.com/ai-gateway/chat-gateway/internal/gateway"
	"github.com/ai-gateway/chat-gateway/internal/guardrails"
	"github.com/ai-gateway/chat-gateway/internal/metrics"
	"github.com/ai-gateway/chat-gateway/internal/observability"
	"github.com/ai-gateway/chat-gateway/internal/provider"
	"github.com/ai-gateway/chat-gateway/internal/provider/claudeai"
	"github.com/ai-gateway/chat-gateway/internal/provider/echo"
	"github.com/ai-gateway/chat-gateway/internal/routing"
	"github.com/ai-gateway/chat-gateway/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return xerrors.Errorf("load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := slog.Make(sloghuman.Sink(os.Stderr))
	if verbose || cfg.Verbose {
		logger = logger.Leveled(slog.LevelDebug)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	tp, err := observability.Setup(ctx, cfg.TelemetryURL, version)
	if err != nil {
		return xerrors.Errorf("set up tracing: %w", err)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Warn(ctx, "shut down tracer provider", slog.Error(err))
			}
		}()
	}

	store, err := credstore.OpenFile(cfg.StorePath, cfg.LocalStorePath)
	if err != nil {
		return xerrors.Errorf("open credential store: %w", err)
	}
	if err := store.Set(credstore.KeyActiveProvider, cfg.Provider, true); err != nil {
		return xerrors.Errorf("set active provider: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gw := newGateway(cfg, store, logger.Named("gateway"), metrics.New(reg))
	srv := server.New(server.Options{
		Address:  cfg.Address,
		Gateway:  gw,
		Logger:   logger.Named("http"),
		Gatherer: reg,
	})

	logger.Info(ctx, "starting chat gateway",
		slog.F("version", version),
		slog.F("provider", cfg.Provider),
		slog.F("address", cfg.Address))
	return srv.Start(ctx)
}

// newGateway stores login credentials under the configured provider, so the
// resolver finds them when that provider is active.
func newGateway(cfg *config.Config, store credstore.Store, logger slog.Logger, m *metrics.Metrics) *gateway.Gateway {
	return gateway.New(gateway.Options{
		Store:         store,
		Router:        newRouter(cfg),
		LoginProvider: cfg.Provider,
		Guardrails:    guardrails.New(sessionKeyPrefixes),
		Logger:        logger,
		Metrics:       m,
	})
}

// sessionKeyPrefixes lists the key format of each provider. Providers not
// listed accept any non-empty key.
var sessionKeyPrefixes = map[string]string{
	claudeai.Name: claudeai.SessionKeyPrefix,
}

// newRouter registers every provider variant. The echo variant is shared so
// its conversations survive across requests.
func newRouter(cfg *config.Config) *routing.Router {
	r := routing.New()
	r.Register(claudeai.Name, func(sessionKey string) provider.Provider {
		return claudeai.New(claudeai.Options{
			BaseURL:    cfg.ClaudeBaseURL,
			SessionKey: sessionKey,
			Timezone:   cfg.Timezone,
		})
	})
	offline := echo.New()
	r.Register(echo.Name, func(string) provider.Provider { return offline })
	return r
}
