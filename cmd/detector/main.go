package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/X0IVY/prompt-injection-detector/internal/analyzer"
	"github.com/X0IVY/prompt-injection-detector/internal/config"
	"github.com/X0IVY/prompt-injection-detector/internal/detector"
	"github.com/X0IVY/prompt-injection-detector/internal/patterns"
	"github.com/X0IVY/prompt-injection-detector/internal/store"
	"github.com/X0IVY/prompt-injection-detector/internal/suspicion"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "detector",
	Short:         "Prompt injection detection and conversation health metrics",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(replayCmd)
}

// app is the wiring shared by every command.
type app struct {
	cfg      config.Config
	detector *detector.Detector
	sessions *analyzer.Registry
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) store() *patterns.Store {
	return a.detector.Store()
}

// openApp loads config, sets up logging, opens the configured backend and
// builds the detector on top of it.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.LogLevel)

	a := &app{cfg: cfg}

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeBackend)

	ps, err := patterns.Open(ctx, backend, cfg.PatternOptions())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open pattern store: %w", err)
	}

	scorer := suspicion.NewScorer(cfg.ScorerThresholds())
	a.detector = detector.New(ps, scorer, cfg.Heuristics.SuspicionThreshold, slog.Default())
	a.sessions = analyzer.NewRegistry(cfg.AnalyzerConfig())
	return a, nil
}

func openBackend(ctx context.Context, cfg config.Config) (patterns.Backend, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		slog.Info("database connected", "driver", cfg.StoreDriver)
		return db, db.Close, nil
	case config.DriverMemory:
		slog.Warn("using in-memory pattern store, records will not survive a restart")
		return store.NewMemory(), func() {}, nil
	default:
		db, err := store.OpenSQLite(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		slog.Debug("sqlite store opened", "dir", cfg.DataDir)
		return db, func() { db.Close() }, nil
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Logs go to stderr so stdout stays clean for command output and MCP stdio.
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
