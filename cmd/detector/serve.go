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
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/X0IVY/prompt-injection-detector/internal/api"
	"github.com/X0IVY/prompt-injection-detector/internal/digest"
	"github.com/X0IVY/prompt-injection-detector/internal/hermes"
	"github.com/X0IVY/prompt-injection-detector/internal/processor"
	"github.com/X0IVY/prompt-injection-detector/internal/slack"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, when configured, the NATS pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the detector tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		mcpSrv := api.NewMCPServer(api.MCPDeps{Detector: a.detector, Sessions: a.sessions}, version)
		stdio := server.NewStdioServer(mcpSrv)
		slog.Info("mcp server listening on stdio")
		if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp stdio: %w", err)
		}
		return nil
	},
}

func serve(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	slog.Info("detector starting", "port", cfg.Port, "store", cfg.StoreDriver)

	var alerter processor.Alerter
	if cfg.SlackEnabled() {
		alerter = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, critical prompts will not be alerted")
	}

	var digests *digest.Publisher
	if cfg.NatsEnabled() {
		hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer func() {
			if err := hermesClient.Drain(); err != nil {
				slog.Warn("NATS drain failed, closing", "error", err)
				hermesClient.Close()
			}
		}()
		slog.Info("NATS connected", "url", cfg.NatsURL)

		proc := processor.New(a.sessions, a.detector, hermesClient, alerter, slog.Default())
		if err := proc.Subscribe(hermesClient); err != nil {
			return err
		}
		digests = digest.NewPublisher(hermesClient)

		if err := hermesClient.Publish(hermes.SubjectRegistered, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"version":   version,
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	} else {
		slog.Warn("NATS_URL not set, running HTTP API only")
	}

	srv := api.NewServer(cfg.Port, api.Deps{
		Detector: a.detector,
		Sessions: a.sessions,
		Digests:  digests,
		APIToken: cfg.APIToken,
		Logger:   slog.Default(),
	})
	httpSrv := &http.Server{
		Addr:              srv.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("detector ready", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("detector stopped")
	return nil
}
